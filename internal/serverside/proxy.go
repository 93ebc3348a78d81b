// ABOUTME: Server-side per-connection client proxy
// ABOUTME: Enforces the player/hello handshake and exposes a typed event stream over one transport
package serverside

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/roomstream/roomstream-go/internal/events"
	"github.com/roomstream/roomstream-go/internal/transport"
	"github.com/roomstream/roomstream-go/pkg/wire"
)

// ErrSendBeforeHello is the protocol error for any message received
// before player/hello.
var ErrSendBeforeHello = errors.New("send message before player hello")

// Clock returns the server's monotonic clock in microseconds.
type Clock func() int64

// GroupCommand is the decoded payload of a group/join, group/unjoin,
// or group/get-list message.
type GroupCommand struct {
	Kind    GroupCommandKind
	GroupID string // only meaningful for Join
}

// GroupCommandKind enumerates the three group commands a client can send.
type GroupCommandKind int

const (
	GroupCommandJoin GroupCommandKind = iota
	GroupCommandUnjoin
	GroupCommandList
)

// ClientProxy represents one connected receiver from the server's
// point of view: a transport plus whatever state/events have been
// negotiated over it.
type ClientProxy struct {
	ID    string
	clock Clock
	t     *transport.Transport

	mu            sync.RWMutex
	info          *wire.PlayerInfo
	state         wire.PlayerState
	helloReceived bool
	inGroup       bool // set/cleared by the group manager; used only by IsReady

	PlayerState   events.Emitter[wire.PlayerState]
	StreamCommand events.Emitter[wire.StreamCommandPayload]
	GroupCommand  events.Emitter[GroupCommand]
	Close         events.Emitter[error]
}

// NewClientProxy wraps an already-open transport. The caller must
// still drive HandleText/HandleBinary/HandleClose from the
// transport's Serve loop (wiring them is the top-level Server's job).
func NewClientProxy(id string, t *transport.Transport, clock Clock) *ClientProxy {
	return &ClientProxy{ID: id, t: t, clock: clock}
}

// Accept completes the handshake's server half: sends source/hello.
// By the time Accept has returned, the proxy is ready to emit events
// (modulo still needing PlayerInfo for IsReady).
func (p *ClientProxy) Accept(info wire.ServerInfo) error {
	return p.Send(wire.TypeSourceHello, info)
}

// SetInGroup is called by the group manager when this client joins or
// leaves a group; it participates in IsReady ("ready" requires
// in-group on the server side).
func (p *ClientProxy) SetInGroup(inGroup bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inGroup = inGroup
}

// IsReady reports transport open AND PlayerInfo received AND
// currently in a group.
func (p *ClientProxy) IsReady() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.t.IsOpen() && p.info != nil && p.inGroup
}

// Info returns the cached PlayerInfo, or nil if player/hello hasn't
// arrived yet.
func (p *ClientProxy) Info() *wire.PlayerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

// Send serializes and enqueues a JSON message. A full send queue is
// treated as a capacity violation: the client is evicted rather than
// left to back up indefinitely.
func (p *ClientProxy) Send(msgType string, payload interface{}) error {
	err := p.t.Send(wire.Message{Type: msgType, Payload: payload})
	p.evictIfBacklogged(err)
	return err
}

// SendBinary enqueues a pre-encoded binary frame, subject to the same
// backlog eviction as Send.
func (p *ClientProxy) SendBinary(data []byte) error {
	err := p.t.SendBinary(data)
	p.evictIfBacklogged(err)
	return err
}

// evictIfBacklogged closes the transport with a policy-violation close
// code when err is the transport's send-queue-full error: the client
// isn't keeping up and a single slow receiver must never stall fan-out
// to the rest of its group.
func (p *ClientProxy) evictIfBacklogged(err error) {
	if !errors.Is(err, transport.ErrSendQueueFull) {
		return
	}
	log.Printf("proxy %s: send queue full, evicting", p.ID)
	p.t.CloseWithReason(websocket.ClosePolicyViolation, "send backlog exceeded")
}

// HandleText processes one incoming text frame. The first message for
// any connection must be player/hello; anything else before that is a
// protocol error.
func (p *ClientProxy) HandleText(data []byte) error {
	msg, err := wire.DecodeMessage(data)
	if err != nil {
		return fmt.Errorf("proxy %s: %w", p.ID, err)
	}

	p.mu.RLock()
	gotHello := p.helloReceived
	p.mu.RUnlock()

	if !gotHello {
		if msg.Type != wire.TypePlayerHello {
			return ErrSendBeforeHello
		}
		var info wire.PlayerInfo
		if err := wire.DecodePayload(msg.Payload, &info); err != nil {
			return err
		}
		p.mu.Lock()
		p.info = &info
		p.helloReceived = true
		p.mu.Unlock()
		return nil
	}

	switch msg.Type {
	case wire.TypePlayerTime:
		return p.handlePlayerTime(msg.Payload)
	case wire.TypePlayerState:
		var st wire.PlayerState
		if err := wire.DecodePayload(msg.Payload, &st); err != nil {
			return err
		}
		p.mu.Lock()
		p.state = st
		p.mu.Unlock()
		p.PlayerState.Emit(st)
	case wire.TypeStreamCommand:
		var cmd wire.StreamCommandPayload
		if err := wire.DecodePayload(msg.Payload, &cmd); err != nil {
			return err
		}
		p.StreamCommand.Emit(cmd)
	case wire.TypeGroupJoin:
		var j wire.GroupJoinPayload
		if err := wire.DecodePayload(msg.Payload, &j); err != nil {
			return err
		}
		p.GroupCommand.Emit(GroupCommand{Kind: GroupCommandJoin, GroupID: j.GroupID})
	case wire.TypeGroupUnjoin:
		p.GroupCommand.Emit(GroupCommand{Kind: GroupCommandUnjoin})
	case wire.TypeGroupGetList:
		p.GroupCommand.Emit(GroupCommand{Kind: GroupCommandList})
	default:
		log.Printf("proxy %s: unknown message type %q", p.ID, msg.Type)
	}
	return nil
}

// handlePlayerTime replies with source/time stamped at receive and
// transmit time: the reply is sent from the same invocation that
// received player/time.
func (p *ClientProxy) handlePlayerTime(payload interface{}) error {
	received := p.clock()

	var pt wire.PlayerTimePayload
	if err := wire.DecodePayload(payload, &pt); err != nil {
		return err
	}

	transmitted := p.clock()
	return p.Send(wire.TypeSourceTime, wire.SourceTimePayload{
		PlayerTransmitted: pt.PlayerTransmitted,
		SourceReceived:    received,
		SourceTransmitted: transmitted,
	})
}

// HandleBinary logs and drops any binary frame from a receiver: the
// binary channel is strictly server-to-client.
func (p *ClientProxy) HandleBinary(data []byte) {
	log.Printf("proxy %s: dropping unexpected binary frame from receiver (%d bytes)", p.ID, len(data))
}

// HandleClose fires the Close event once the transport goes away.
func (p *ClientProxy) HandleClose(err error) {
	p.Close.Emit(err)
}
