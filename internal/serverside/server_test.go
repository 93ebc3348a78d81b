// ABOUTME: Integration tests for the top-level Server: handshake, group join/list/unjoin
// ABOUTME: Drives a real Server over a real TCP listener, matching the corpus's Start/Stop test style
package serverside

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roomstream/roomstream-go/pkg/wire"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func startTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	srv := New(Config{Addr: freeAddr(t), Name: "test-server"})

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start() }()
	time.Sleep(100 * time.Millisecond)

	return srv, func() {
		srv.Stop()
		select {
		case err := <-errChan:
			if err != nil {
				t.Errorf("server error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop in time")
		}
	}
}

func dialServer(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	u := "ws://" + srv.config.Addr + srv.config.Path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestServer_HandshakeSendsSourceHello(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	conn := dialServer(t, srv)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	var msg wire.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != wire.TypeSourceHello {
		t.Fatalf("expected source/hello, got %s", msg.Type)
	}
	var info wire.ServerInfo
	if err := wire.DecodePayload(msg.Payload, &info); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if info.ServerID != srv.ServerID() {
		t.Errorf("server id mismatch: got %s want %s", info.ServerID, srv.ServerID())
	}
}

func TestServer_GroupJoinListUnjoin(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	conn := dialServer(t, srv)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	conn.ReadMessage() // source/hello

	conn.WriteJSON(wire.Message{
		Type: wire.TypePlayerHello,
		Payload: wire.PlayerInfo{
			PlayerID: "p1",
			Name:     "p1",
			Role:     "receiver",
		},
	})

	conn.WriteJSON(wire.Message{
		Type:    wire.TypeGroupJoin,
		Payload: wire.GroupJoinPayload{GroupID: "den"},
	})

	var g *Group
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if found, ok := srv.Groups().Lookup("den"); ok && len(found.AllClients()) == 1 {
			g = found
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if g == nil {
		t.Fatal("group den was never created with its one member")
	}

	conn.WriteJSON(wire.Message{Type: wire.TypeGroupGetList, Payload: struct{}{}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read group/list: %v", err)
	}
	var msg wire.Message
	json.Unmarshal(data, &msg)
	if msg.Type != wire.TypeGroupList {
		t.Fatalf("expected group/list, got %s", msg.Type)
	}
	var list wire.GroupListPayload
	wire.DecodePayload(msg.Payload, &list)
	found := false
	for _, e := range list.Groups {
		if e.GroupID == "den" && e.State == GroupStateIdle {
			found = true
		}
	}
	if !found {
		t.Errorf("expected den/idle in group list, got %+v", list.Groups)
	}

	conn.WriteJSON(wire.Message{Type: wire.TypeGroupUnjoin, Payload: struct{}{}})

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(g.AllClients()) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("client was never removed from group after unjoin")
}
