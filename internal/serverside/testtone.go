// ABOUTME: Reference test-tone AudioSource: a 440Hz sine wave fed to a group's session
// ABOUTME: Ticks on a 20ms chunk cadence, buffering playback BufferAheadMs into the future
package serverside

import (
	"log"
	"math"
	"sync"
	"time"
)

// Audio format the example server advertises; PCM-only is the only
// format a stock roomstream server needs to produce.
const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2
	DefaultBitDepth   = 16

	chunkDurationMs = 20
	chunkSamples    = (DefaultSampleRate * chunkDurationMs) / 1000

	// BufferAheadMs is how far into the future each chunk's timestamp
	// is stamped, giving receivers room to schedule playback before
	// the audio is due.
	BufferAheadMs = 500
)

// TestToneSource generates a continuous 440Hz sine wave and feeds it
// to one session via SendSamples, on a real-time 20ms tick.
type TestToneSource struct {
	session   *SessionEngine
	clock     Clock
	frequency float64

	mu          sync.Mutex
	sampleIndex uint64

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTestToneSource creates a source that will feed session once
// Start is called.
func NewTestToneSource(session *SessionEngine, clock Clock) *TestToneSource {
	return &TestToneSource{
		session:   session,
		clock:     clock,
		frequency: 440.0,
		stopChan:  make(chan struct{}),
	}
}

// Start runs the generation loop until Stop is called. Call it in its
// own goroutine.
func (s *TestToneSource) Start() {
	log.Printf("test tone source: starting at %dHz", DefaultSampleRate)

	ticker := time.NewTicker(chunkDurationMs * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.generateAndSend()
		case <-s.stopChan:
			log.Printf("test tone source: stopping")
			return
		}
	}
}

// Stop halts the generation loop. Safe to call more than once.
func (s *TestToneSource) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *TestToneSource) generateAndSend() {
	s.mu.Lock()
	startIndex := s.sampleIndex
	s.sampleIndex += chunkSamples
	s.mu.Unlock()

	planes := make([][]float64, DefaultChannels)
	for ch := range planes {
		planes[ch] = make([]float64, chunkSamples)
	}
	for i := 0; i < chunkSamples; i++ {
		t := float64(startIndex+uint64(i)) / float64(DefaultSampleRate)
		sample := math.Sin(2*math.Pi*s.frequency*t) * 0.5
		for ch := range planes {
			planes[ch][i] = sample
		}
	}

	playbackTime := s.clock() + BufferAheadMs*1000
	if err := s.session.SendSamples(playbackTime, planes); err != nil {
		log.Printf("test tone source: send failed: %v", err)
	}
}
