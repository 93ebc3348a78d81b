// ABOUTME: Receiver client: one transport to the server, message routing, and the connection state machine
// ABOUTME: Decodes PlayAudioChunk/MediaArt, drives clock sync, and exposes a typed event stream
package receiver

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/roomstream/roomstream-go/internal/audiosink"
	"github.com/roomstream/roomstream-go/internal/events"
	"github.com/roomstream/roomstream-go/internal/transport"
	"github.com/roomstream/roomstream-go/pkg/clocksync"
	"github.com/roomstream/roomstream-go/pkg/pcm"
	"github.com/roomstream/roomstream-go/pkg/wire"
)

// State is one of the receiver's four connection states.
type State int

const (
	Disconnected State = iota
	Connecting
	ConnectedNoSession
	ConnectedSessionActive
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case ConnectedNoSession:
		return "connected-no-session"
	case ConnectedSessionActive:
		return "connected-session-active"
	default:
		return "unknown"
	}
}

// CloseEvent carries the transport error (nil if none) and whether the
// closure was caller-initiated via Close().
type CloseEvent struct {
	Err      error
	Expected bool
}

// Config describes how to reach a server and what capabilities to
// announce in player/hello.
type Config struct {
	Addr string
	Path string
	Info wire.PlayerInfo
	// Sink is the local audio output; may be nil (e.g. in tests), in
	// which case decoded chunks are scheduled and counted but never
	// played.
	Sink audiosink.Output
}

// Status is a read-only snapshot for status views (e.g. internal/tui).
type Status struct {
	State        State
	ServerInfo   *wire.ServerInfo
	SessionInfo  *wire.SessionInfo
	Metadata     *wire.Metadata
	Offset       float64
	OffsetKnown  bool
	SampleCount  int
	SchedulerLog SchedulerStats
}

// Receiver is one connection to a server: it owns the transport, the
// clock-sync exchange, the playback scheduler, and the cached
// server/session/metadata/art state.
type Receiver struct {
	config Config
	t      *transport.Transport

	clockStart time.Time
	clock      *clocksync.ClockSync
	scheduler  *Scheduler

	mu          sync.RWMutex
	state       State
	serverInfo  *wire.ServerInfo
	sessionInfo *wire.SessionInfo
	metadata    *wire.Metadata
	art         *wire.MediaArt
	channels    int
	closing     bool

	stopChan chan struct{}
	wg       sync.WaitGroup

	Open           events.Emitter[struct{}]
	Closed         events.Emitter[CloseEvent]
	ServerUpdate   events.Emitter[*wire.ServerInfo]
	SessionUpdate  events.Emitter[*wire.SessionInfo]
	MetadataUpdate events.Emitter[*wire.Metadata]
	ArtUpdate      events.Emitter[*wire.MediaArt]
}

// New creates a Receiver; call Connect to open the transport.
func New(config Config) *Receiver {
	if config.Path == "" {
		config.Path = "/roomstream"
	}
	return &Receiver{
		config:   config,
		clock:    clocksync.New(),
		scheduler: NewScheduler(),
		state:    Disconnected,
		stopChan: make(chan struct{}),
	}
}

// localClockNow returns the current local audio clock in microseconds,
// relative to the moment Connect opened the transport.
func (r *Receiver) localClockNow() int64 {
	return time.Since(r.clockStart).Microseconds()
}

// Connect dials the server, sends player/hello, and starts the clock
// sync and scheduler loops. Serve's read loop runs in its own
// goroutine; Connect returns once the handshake has been sent, not
// once a reply has arrived: source/hello and session/start are
// asynchronous events delivered later on the read loop.
func (r *Receiver) Connect() error {
	r.mu.Lock()
	r.state = Connecting
	r.clockStart = time.Now()
	r.mu.Unlock()
	r.clock.Reset()

	t, err := transport.Dial(r.config.Addr, r.config.Path)
	if err != nil {
		r.mu.Lock()
		r.state = Disconnected
		r.mu.Unlock()
		return fmt.Errorf("receiver: connect failed: %w", err)
	}
	r.t = t

	t.OnText(r.handleText)
	t.OnBinary(r.handleBinary)
	t.OnClose(r.handleClose)

	if err := r.t.Send(wire.Message{Type: wire.TypePlayerHello, Payload: r.config.Info}); err != nil {
		r.t.Close()
		return fmt.Errorf("receiver: failed to send player/hello: %w", err)
	}

	r.mu.Lock()
	r.state = ConnectedNoSession
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.scheduler.Run()
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.clockSyncLoop()
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.t.Serve()
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.playbackLoop()
	}()

	r.Open.Emit(struct{}{})
	return nil
}

// clockSyncLoop sends player/time on a cadence that tightens while the
// offset window is still filling: every ~10ms while under
// MinSamplesForSteadyState, otherwise ~1Hz.
func (r *Receiver) clockSyncLoop() {
	for {
		if err := r.t.Send(wire.Message{
			Type:    wire.TypePlayerTime,
			Payload: wire.PlayerTimePayload{PlayerTransmitted: r.localClockNow()},
		}); err != nil {
			return
		}

		delay := clocksync.SteadyStateInterval
		if r.clock.NeedsImmediateResync() {
			delay = clocksync.ImmediateResyncDelay
		}

		select {
		case <-time.After(delay):
		case <-r.stopChan:
			return
		}
	}
}

func (r *Receiver) handleText(data []byte) {
	msg, err := wire.DecodeMessage(data)
	if err != nil {
		log.Printf("receiver: %v, dropping frame", err)
		return
	}

	switch msg.Type {
	case wire.TypeSourceHello:
		var info wire.ServerInfo
		if err := wire.DecodePayload(msg.Payload, &info); err != nil {
			log.Printf("receiver: bad source/hello: %v", err)
			return
		}
		r.mu.Lock()
		r.serverInfo = &info
		r.mu.Unlock()
		r.ServerUpdate.Emit(&info)

	case wire.TypeSourceTime:
		t3 := r.localClockNow()
		var st wire.SourceTimePayload
		if err := wire.DecodePayload(msg.Payload, &st); err != nil {
			log.Printf("receiver: bad source/time: %v", err)
			return
		}
		r.clock.AddSample(st.PlayerTransmitted, st.SourceReceived, st.SourceTransmitted, t3)

	case wire.TypeSessionStart:
		var info wire.SessionInfo
		if err := wire.DecodePayload(msg.Payload, &info); err != nil {
			log.Printf("receiver: bad session/start: %v", err)
			return
		}
		r.mu.Lock()
		r.sessionInfo = &info
		r.channels = info.Channels
		r.state = ConnectedSessionActive
		r.mu.Unlock()
		if r.config.Sink != nil {
			if err := r.config.Sink.Initialize(info.SampleRate, info.Channels); err != nil {
				log.Printf("receiver: audio sink init failed: %v", err)
			}
		}
		r.SessionUpdate.Emit(&info)

	case wire.TypeSessionEnd:
		r.mu.Lock()
		r.sessionInfo = nil
		r.metadata = nil
		r.art = nil
		r.channels = 0
		r.state = ConnectedNoSession
		r.mu.Unlock()
		r.SessionUpdate.Emit(nil)
		r.MetadataUpdate.Emit(nil)
		r.ArtUpdate.Emit(nil)

	case wire.TypeMetadataUpdate:
		var delta wire.Metadata
		if err := wire.DecodePayload(msg.Payload, &delta); err != nil {
			log.Printf("receiver: bad metadata/update: %v", err)
			return
		}
		r.mu.Lock()
		var cached wire.Metadata
		if r.metadata != nil {
			cached = *r.metadata
		}
		merged := wire.MergeMetadata(cached, delta)
		r.metadata = &merged
		r.mu.Unlock()
		r.MetadataUpdate.Emit(&merged)

	default:
		log.Printf("receiver: dropping unhandled message type %q", msg.Type)
	}
}

func (r *Receiver) handleBinary(data []byte) {
	disc, err := wire.DiscriminatorOf(data)
	if err != nil {
		log.Printf("receiver: %v", err)
		return
	}

	switch disc {
	case wire.BinaryTypePlayAudioChunk:
		r.handleAudioChunk(data)
	case wire.BinaryTypeMediaArt:
		art, err := wire.DecodeMediaArt(data)
		if err != nil {
			log.Printf("receiver: %v, dropping art frame", err)
			return
		}
		r.mu.Lock()
		r.art = &art
		r.mu.Unlock()
		r.ArtUpdate.Emit(&art)
	default:
		log.Printf("receiver: unknown binary discriminator 0x%02x, dropping", disc)
	}
}

// handleAudioChunk validates, decodes, converts to float, and schedules
// one PlayAudioChunk against the synchronized clock.
func (r *Receiver) handleAudioChunk(data []byte) {
	r.mu.RLock()
	active := r.state == ConnectedSessionActive
	channels := r.channels
	r.mu.RUnlock()

	if !active || channels == 0 {
		log.Printf("receiver: dropping audio chunk with no active session")
		return
	}

	chunk, err := wire.DecodePlayAudioChunk(data, channels)
	if err != nil {
		log.Printf("receiver: %v, dropping audio chunk", err)
		return
	}

	planes := pcm.DecodeInterleaved(chunk.Samples, channels, int(chunk.SampleCount))

	offset, _ := r.clock.Offset()
	startLocalSec := float64(chunk.TimestampUs)/1_000_000.0 - offset
	playAt := r.clockStart.Add(time.Duration(startLocalSec * float64(time.Second)))

	r.scheduler.Schedule(chunk.TimestampUs, playAt, planes)
}

// playbackLoop is started by Connect whether or not a Sink is
// configured; for receivers with no Sink, decoded chunks still flow through the
// scheduler (exercising its lateness accounting) but are never handed
// to a device.
func (r *Receiver) playbackLoop() {
	for {
		select {
		case chunk, ok := <-r.scheduler.Output():
			if !ok {
				return
			}
			if r.config.Sink != nil {
				if err := r.config.Sink.Play(pcm.EncodeInterleaved(chunk.Planes)); err != nil {
					log.Printf("receiver: audio sink play failed: %v", err)
				}
			}
		case <-r.stopChan:
			return
		}
	}
}

func (r *Receiver) handleClose(err error) {
	r.mu.Lock()
	expected := r.closing
	r.serverInfo = nil
	r.sessionInfo = nil
	r.metadata = nil
	r.art = nil
	r.channels = 0
	r.state = Disconnected
	r.mu.Unlock()

	r.scheduler.Stop()
	close(r.stopChan)

	r.Closed.Emit(CloseEvent{Err: err, Expected: expected})
}

// Close closes the transport, marking the subsequent Close event as
// caller-initiated (Expected: true).
func (r *Receiver) Close() error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()
	if r.t == nil {
		return nil
	}
	return r.t.Close()
}

// Wait blocks until the receiver's background goroutines have exited
// (i.e. after the transport closes).
func (r *Receiver) Wait() {
	r.wg.Wait()
}

// Status returns a read-only snapshot of the receiver's current state.
func (r *Receiver) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	offset, ok := r.clock.Offset()
	return Status{
		State:        r.state,
		ServerInfo:   r.serverInfo,
		SessionInfo:  r.sessionInfo,
		Metadata:     r.metadata,
		Offset:       offset,
		OffsetKnown:  ok,
		SampleCount:  r.clock.SampleCount(),
		SchedulerLog: r.scheduler.Stats(),
	}
}
