// ABOUTME: Session engine owning one group's audio/metadata/art fan-out
// ABOUTME: Tracks which clients have been activated and replays sticky state to late joiners
package serverside

import (
	"fmt"
	"sync"

	"github.com/roomstream/roomstream-go/internal/events"
	"github.com/roomstream/roomstream-go/pkg/pcm"
	"github.com/roomstream/roomstream-go/pkg/wire"
)

// ClientStreamCommand attributes a re-emitted stream/command to the
// client that sent it.
type ClientStreamCommand struct {
	ClientID string
	Command  wire.StreamCommandPayload
}

// ClientPlayerState attributes a re-emitted player/state to the client
// that sent it.
type ClientPlayerState struct {
	ClientID string
	State    wire.PlayerState
}

// activation holds the per-client bookkeeping created the first time a
// client is activated into a running session: its two event bindings,
// torn down on deactivation.
type activation struct {
	streamCmd   events.Subscription
	playerState events.Subscription
}

// SessionEngine fans audio, metadata, and art out to a group's ready
// clients, activating each one (session/start + sticky-state replay)
// the first time it receives anything.
type SessionEngine struct {
	group *Group
	info  wire.SessionInfo

	mu           sync.Mutex
	active       map[string]*activation
	lastMetadata *wire.Metadata
	lastArtFrame []byte
	ended        bool

	// SessionEnd fires once, when End() tears the session down. Members
	// leaving the group do not end the session, even when none remain.
	SessionEnd events.Emitter[struct{}]
	// StreamCommand/PlayerState re-emit the underlying events of every
	// activated client, tagged with ClientID, so a caller can observe
	// the whole group's control-plane traffic from one place.
	StreamCommand events.Emitter[ClientStreamCommand]
	PlayerState   events.Emitter[ClientPlayerState]
}

func newSessionEngine(g *Group, info wire.SessionInfo) *SessionEngine {
	return &SessionEngine{
		group:  g,
		info:   info,
		active: make(map[string]*activation),
	}
}

// Info returns the session's immutable parameters.
func (s *SessionEngine) Info() wire.SessionInfo {
	return s.info
}

// IsActive reports whether clientID has completed activation.
func (s *SessionEngine) IsActive(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[clientID]
	return ok
}

// prepare is the gate every fan-out path runs before sending anything
// to c: not-ready clients are skipped (and retired from the active set
// if they had been active), ready-but-not-yet-active clients go
// through full activation first. proceed is false iff c should be
// skipped entirely for this send. activated is true iff this call just
// ran activation (and so already sent the client the current cached
// metadata and art), letting a caller that's also pushing the latest
// metadata or art skip a redundant resend to that same client.
func (s *SessionEngine) prepare(c *ClientProxy) (proceed, activated bool) {
	if !c.IsReady() {
		s.mu.Lock()
		if a, ok := s.active[c.ID]; ok {
			a.streamCmd.Release()
			a.playerState.Release()
			delete(s.active, c.ID)
		}
		s.mu.Unlock()
		return false, false
	}

	s.mu.Lock()
	_, already := s.active[c.ID]
	s.mu.Unlock()
	if already {
		return true, false
	}

	if err := c.Send(wire.TypeSessionStart, s.info); err != nil {
		return false, false
	}

	s.mu.Lock()
	cachedMeta := s.lastMetadata
	cachedArt := s.lastArtFrame
	s.mu.Unlock()

	if cachedMeta != nil {
		c.Send(wire.TypeMetadataUpdate, *cachedMeta)
	}
	if cachedArt != nil {
		c.SendBinary(cachedArt)
	}

	streamSub := c.StreamCommand.Subscribe(func(cmd wire.StreamCommandPayload) {
		s.StreamCommand.Emit(ClientStreamCommand{ClientID: c.ID, Command: cmd})
	})
	stateSub := c.PlayerState.Subscribe(func(st wire.PlayerState) {
		s.PlayerState.Emit(ClientPlayerState{ClientID: c.ID, State: st})
	})

	s.mu.Lock()
	s.active[c.ID] = &activation{streamCmd: streamSub, playerState: stateSub}
	s.mu.Unlock()

	return true, true
}

// SendAudio encodes one PlayAudioChunk frame and fans it out to every
// ready member, activating late joiners along the way.
func (s *SessionEngine) SendAudio(timestampUs int64, sampleCount uint32, interleaved []byte) {
	frame := wire.EncodePlayAudioChunk(timestampUs, sampleCount, interleaved)
	for _, c := range s.group.AllClients() {
		if proceed, _ := s.prepare(c); !proceed {
			continue
		}
		c.SendBinary(frame)
	}
}

// SendSamples is the PCM-from-raw-samples convenience form of
// SendAudio: it takes one float64 slice per channel (de-interleaved by
// the caller's source). It does not accept interleaved int16 samples;
// SendAudio takes already-encoded interleaved int16 LE bytes.
func (s *SessionEngine) SendSamples(timestampUs int64, planes [][]float64) error {
	if len(planes) != s.info.Channels {
		return fmt.Errorf("session %s: expected %d channels, got %d", s.info.SessionID, s.info.Channels, len(planes))
	}
	if len(planes) == 0 {
		return fmt.Errorf("session %s: no channel data", s.info.SessionID)
	}
	sampleCount := len(planes[0])
	for _, p := range planes {
		if len(p) != sampleCount {
			return fmt.Errorf("session %s: channel plane length mismatch", s.info.SessionID)
		}
	}
	s.SendAudio(timestampUs, uint32(sampleCount), pcm.EncodeInterleaved(planes))
	return nil
}

// SendMetadata diffs candidate against the cached metadata and, if
// anything specified in candidate actually changed, sends only the
// changed fields and merges them into the cache. A candidate that
// matches the cache exactly on every specified field produces no send
// at all.
func (s *SessionEngine) SendMetadata(candidate wire.Metadata) {
	s.mu.Lock()
	var cached wire.Metadata
	if s.lastMetadata != nil {
		cached = *s.lastMetadata
	}
	delta, changed := wire.DiffMetadata(cached, candidate)
	if !changed {
		s.mu.Unlock()
		return
	}
	merged := wire.MergeMetadata(cached, delta)
	s.lastMetadata = &merged
	s.mu.Unlock()

	for _, c := range s.group.AllClients() {
		proceed, activated := s.prepare(c)
		if !proceed {
			continue
		}
		// A client activating right now already received the full
		// merged metadata (the cache prepare just replayed reflects
		// this delta), so sending the delta again would be redundant.
		if activated {
			continue
		}
		c.Send(wire.TypeMetadataUpdate, delta)
	}
}

// SendArt encodes and fans out one media-art frame, caching the
// encoded bytes verbatim for replay to clients that activate later.
func (s *SessionEngine) SendArt(format byte, data []byte) {
	frame := wire.EncodeMediaArt(format, data)

	s.mu.Lock()
	s.lastArtFrame = frame
	s.mu.Unlock()

	for _, c := range s.group.AllClients() {
		proceed, activated := s.prepare(c)
		if !proceed {
			continue
		}
		// A client activating right now was already sent this exact
		// frame as its replayed cached art.
		if activated {
			continue
		}
		c.SendBinary(frame)
	}
}

// End tears the session down: every still-ready active client gets a
// final session/end, all bindings are released, the caches are
// cleared, and SessionEnd fires once.
func (s *SessionEngine) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	active := s.active
	s.active = make(map[string]*activation)
	s.lastMetadata = nil
	s.lastArtFrame = nil
	s.mu.Unlock()

	for id, a := range active {
		a.streamCmd.Release()
		a.playerState.Release()
		if c, ok := s.group.Client(id); ok && c.IsReady() {
			c.Send(wire.TypeSessionEnd, wire.SessionEndPayload{SessionID: s.info.SessionID})
		}
	}

	s.SessionEnd.Emit(struct{}{})
}

// removeClient is the group-driven removal path: called by
// Group.RemoveClient, with the departing client passed directly since
// the group has already dropped it from membership by this point. If
// the client was active and still reachable, it gets a final
// session/end; either way its binding is torn down.
func (s *SessionEngine) removeClient(c *ClientProxy) {
	s.mu.Lock()
	a, ok := s.active[c.ID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, c.ID)
	s.mu.Unlock()

	a.streamCmd.Release()
	a.playerState.Release()

	if c.IsReady() {
		c.Send(wire.TypeSessionEnd, wire.SessionEndPayload{SessionID: s.info.SessionID})
	}
}
