// ABOUTME: Receiver-side clock synchronization exchange
// ABOUTME: Sliding window of offset samples, median-filtered, feeding playback scheduling
package clocksync

import (
	"sort"
	"sync"
	"time"
)

// MaxWindow bounds the sliding sample window.
const MaxWindow = 50

// MinSamplesForSteadyState is the number of samples below which the
// receiver keeps sampling aggressively instead of waiting for the
// steady-state timer.
const MinSamplesForSteadyState = 20

// ImmediateResyncDelay is how soon the receiver should schedule
// another exchange while below MinSamplesForSteadyState.
const ImmediateResyncDelay = 10 * time.Millisecond

// SteadyStateInterval is the re-sampling period once warmed up (~1 Hz).
const SteadyStateInterval = 1 * time.Second

// ClockSync maintains a bounded window of offset samples computed from
// the four-timestamp player/time <-> source/time exchange and exposes
// the median as the current effective offset, in seconds
// (server_clock - local_audio_clock).
type ClockSync struct {
	mu      sync.RWMutex
	samples []float64 // seconds, oldest first, length <= MaxWindow
}

// New creates an empty ClockSync.
func New() *ClockSync {
	return &ClockSync{}
}

// AddSample records one exchange's four timestamps (all in
// microseconds; T0/T3 on the receiver's local audio clock, T1/T2 on
// the server clock) and appends the computed
// sample offset to the window, evicting the oldest sample once the
// window exceeds MaxWindow.
//
//	T0 = player_transmitted (local, sent by receiver)
//	T1 = source_received (server clock, stamped on arrival)
//	T2 = source_transmitted (server clock, stamped just before reply)
//	T3 = player_received (local, when the reply arrived)
func (c *ClockSync) AddSample(t0, t1, t2, t3 int64) float64 {
	offsetUs := float64((t1-t0)+(t2-t3)) / 2.0
	offsetSec := offsetUs / 1_000_000.0

	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = append(c.samples, offsetSec)
	if len(c.samples) > MaxWindow {
		c.samples = c.samples[len(c.samples)-MaxWindow:]
	}
	return offsetSec
}

// SampleCount returns the number of samples currently in the window.
func (c *ClockSync) SampleCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.samples)
}

// NeedsImmediateResync reports whether the window is still below
// MinSamplesForSteadyState, in which case the receiver should schedule
// another exchange after ImmediateResyncDelay instead of waiting for
// the steady-state timer.
func (c *ClockSync) NeedsImmediateResync() bool {
	return c.SampleCount() < MinSamplesForSteadyState
}

// Offset returns the median of the current sample window, in seconds.
// Zero (with ok=false) is returned when the window is empty.
func (c *ClockSync) Offset() (offset float64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.samples)
	if n == 0 {
		return 0, false
	}

	sorted := append([]float64(nil), c.samples...)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0, true
}

// Reset clears the sample window. Per spec, estimates survive a
// session end and are cleared only on transport reconnect.
func (c *ClockSync) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = nil
}
