// ABOUTME: Group membership, lifecycle, and session ownership
// ABOUTME: A Group owns at most one SessionEngine; GroupManager is the server's registry of groups
package serverside

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/roomstream/roomstream-go/internal/events"
	"github.com/roomstream/roomstream-go/pkg/wire"
)

// Group states as reported by group/list.
const (
	GroupStateIdle    = "idle"
	GroupStatePlaying = "playing"
	// GroupStatePaused is reserved by the wire format but never
	// produced: pause semantics are unspecified.
	GroupStatePaused = "paused"
)

// ErrSessionAlreadyActive is the semantic error raised by
// StartSession when the group already owns an active session.
var ErrSessionAlreadyActive = fmt.Errorf("session already active")

// Group is a named set of receivers sharing at most one session.
type Group struct {
	ID    string
	clock Clock

	mu      sync.RWMutex
	clients map[string]*ClientProxy
	session *SessionEngine

	ClientAdded   events.Emitter[*ClientProxy]
	ClientRemoved events.Emitter[string]
}

func newGroup(id string, clock Clock) *Group {
	return &Group{
		ID:      id,
		clock:   clock,
		clients: make(map[string]*ClientProxy),
	}
}

// AddClient admits a client to the group and fires client-added.
func (g *Group) AddClient(c *ClientProxy) {
	g.mu.Lock()
	g.clients[c.ID] = c
	g.mu.Unlock()

	c.SetInGroup(true)
	g.ClientAdded.Emit(c)
}

// RemoveClient evicts a client. If a session is active and the client
// was participating in it, the session engine's group-driven removal
// path runs first so the client gets a clean session/end.
func (g *Group) RemoveClient(clientID string) {
	g.mu.Lock()
	c, ok := g.clients[clientID]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.clients, clientID)
	session := g.session
	g.mu.Unlock()

	if session != nil {
		session.removeClient(c)
	}
	c.SetInGroup(false)
	g.ClientRemoved.Emit(clientID)
}

// Client looks up a member by id.
func (g *Group) Client(clientID string) (*ClientProxy, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.clients[clientID]
	return c, ok
}

// ReadyClients returns every currently-ready member.
func (g *Group) ReadyClients() []*ClientProxy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*ClientProxy, 0, len(g.clients))
	for _, c := range g.clients {
		if c.IsReady() {
			out = append(out, c)
		}
	}
	return out
}

// AllClients returns every member regardless of readiness; the session
// engine uses this (rather than ReadyClients) because it must itself
// notice a member going not-ready in order to retire it from the
// active set.
func (g *Group) AllClients() []*ClientProxy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*ClientProxy, 0, len(g.clients))
	for _, c := range g.clients {
		out = append(out, c)
	}
	return out
}

// HasClient reports group membership.
func (g *Group) HasClient(clientID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.clients[clientID]
	return ok
}

// Session returns the active session, if any.
func (g *Group) Session() *SessionEngine {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.session
}

// State reports "playing" iff a session is active, "idle" otherwise.
func (g *Group) State() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session != nil {
		return GroupStatePlaying
	}
	return GroupStateIdle
}

// StartSession allocates and activates a new session owned by this
// group. Fails with ErrSessionAlreadyActive if one is already running.
func (g *Group) StartSession(codec string, sampleRate, channels, bitDepth int) (*SessionEngine, error) {
	g.mu.Lock()
	if g.session != nil {
		g.mu.Unlock()
		return nil, ErrSessionAlreadyActive
	}

	info := wire.SessionInfo{
		SessionID:  uuid.New().String(),
		Codec:      codec,
		SampleRate: sampleRate,
		Channels:   channels,
		BitDepth:   bitDepth,
		OriginUs:   g.clock(),
	}
	engine := newSessionEngine(g, info)
	g.session = engine
	g.mu.Unlock()

	engine.SessionEnd.Subscribe(func(struct{}) {
		g.mu.Lock()
		if g.session == engine {
			g.session = nil
		}
		g.mu.Unlock()
	})

	return engine, nil
}

// GroupManager is the server's registry of groups: the manager tracks
// *which* groups exist; each Group tracks its own membership and
// session.
type GroupManager struct {
	clock Clock

	mu     sync.RWMutex
	groups map[string]*Group
}

// NewGroupManager creates an empty registry.
func NewGroupManager(clock Clock) *GroupManager {
	return &GroupManager{clock: clock, groups: make(map[string]*Group)}
}

// CreateGroup registers a new, empty group. Returns the existing group
// unchanged if id is already registered.
func (m *GroupManager) CreateGroup(id string) *Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.groups[id]; ok {
		return g
	}
	g := newGroup(id, m.clock)
	m.groups[id] = g
	return g
}

// Lookup finds a group by id.
func (m *GroupManager) Lookup(id string) (*Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	return g, ok
}

// All returns every registered group.
func (m *GroupManager) All() []*Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out
}

// RemoveClientFromAll removes clientID from every group it belongs to
// (at most one, per the invariant, but this does not assume that).
func (m *GroupManager) RemoveClientFromAll(clientID string) {
	for _, g := range m.All() {
		if g.HasClient(clientID) {
			g.RemoveClient(clientID)
		}
	}
}

// StopAll ends every group's active session.
func (m *GroupManager) StopAll() {
	for _, g := range m.All() {
		if s := g.Session(); s != nil {
			s.End()
		}
	}
}
