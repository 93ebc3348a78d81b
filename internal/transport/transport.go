// ABOUTME: Bidirectional byte-framed transport contract and its websocket implementation
// ABOUTME: Any wire fulfilling the bidirectional framed-channel contract is acceptable; this adapts gorilla/websocket
package transport

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClientNotConnected is returned by Send/SendBinary when the
// transport is not open.
var ErrClientNotConnected = errors.New("transport: not connected")

// ErrSendQueueFull is returned when the outbound queue cannot accept
// another message; callers treat this as a capacity violation and evict
// the client rather than let the backlog grow without bound.
var ErrSendQueueFull = errors.New("transport: send queue full")

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	pingDeadline  = 10 * time.Second
)

// outbound distinguishes a text payload (marshaled by the writer
// goroutine) from a pre-encoded binary frame.
type outbound struct {
	binary []byte
	text   interface{}
}

// Transport is a bidirectional, message-framed, reliable channel:
// JSON text frames and opaque binary frames, closed as a unit.
type Transport struct {
	conn     *websocket.Conn
	sendChan chan outbound

	mu     sync.RWMutex
	open   bool
	closed chan struct{}

	wg sync.WaitGroup

	// onText/onBinary are invoked from the read loop goroutine.
	onText   func([]byte)
	onClose  func(err error)
	onBinary func([]byte)
}

// NewFromConn wraps an already-established websocket connection (the
// server side, after http.Upgrade). backlog bounds the outbound queue;
// once full, sends fail with ErrSendQueueFull instead of backing up
// without bound.
func NewFromConn(conn *websocket.Conn, backlog int) *Transport {
	return &Transport{
		conn:     conn,
		sendChan: make(chan outbound, backlog),
		open:     true,
		closed:   make(chan struct{}),
	}
}

// Dial establishes a new websocket connection to addr (host:port) at
// the given path, returning an open Transport (the receiver side).
func Dial(addr, path string) (*Transport, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: path}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial failed: %w", err)
	}
	return NewFromConn(conn, 256), nil
}

// OnText registers the handler invoked for every text frame received.
func (t *Transport) OnText(fn func([]byte)) { t.onText = fn }

// OnBinary registers the handler invoked for every binary frame
// received. On the server side, binary frames arriving from a receiver
// are logged and dropped by the caller, not by Transport.
func (t *Transport) OnBinary(fn func([]byte)) { t.onBinary = fn }

// OnClose registers the handler invoked once, when the read loop exits.
func (t *Transport) OnClose(fn func(err error)) { t.onClose = fn }

// Serve runs the read loop and the writer loop; it blocks until the
// connection closes. Call it in its own goroutine.
func (t *Transport) Serve() {
	t.wg.Add(1)
	go t.writeLoop()

	var closeErr error
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			closeErr = err
			break
		}
		switch msgType {
		case websocket.TextMessage:
			if t.onText != nil {
				t.onText(data)
			}
		case websocket.BinaryMessage:
			if t.onBinary != nil {
				t.onBinary(data)
			}
		}
	}

	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
	close(t.closed)
	t.wg.Wait()

	if t.onClose != nil {
		t.onClose(closeErr)
	}
}

func (t *Transport) writeLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-t.sendChan:
			if !ok {
				return
			}
			t.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if msg.binary != nil {
				if err := t.conn.WriteMessage(websocket.BinaryMessage, msg.binary); err != nil {
					return
				}
				continue
			}
			if err := t.conn.WriteJSON(msg.text); err != nil {
				return
			}

		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingDeadline)); err != nil {
				return
			}

		case <-t.closed:
			return
		}
	}
}

// IsOpen reports whether the transport is currently connected.
func (t *Transport) IsOpen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.open
}

// Send enqueues a JSON-serializable message for the writer goroutine.
func (t *Transport) Send(v interface{}) error {
	if !t.IsOpen() {
		return ErrClientNotConnected
	}
	select {
	case t.sendChan <- outbound{text: v}:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// SendBinary enqueues a pre-encoded binary frame.
func (t *Transport) SendBinary(data []byte) error {
	if !t.IsOpen() {
		return ErrClientNotConnected
	}
	select {
	case t.sendChan <- outbound{binary: data}:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close closes the underlying connection. Safe to call from any
// goroutine; the resulting read error drives Serve's onClose callback.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// CloseWithReason sends a websocket close frame carrying code/reason
// before tearing down the connection, used for policy-violation
// evictions rather than a bare abnormal close.
func (t *Transport) CloseWithReason(code int, reason string) error {
	deadline := time.Now().Add(writeDeadline)
	msg := websocket.FormatCloseMessage(code, reason)
	t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return t.conn.Close()
}
