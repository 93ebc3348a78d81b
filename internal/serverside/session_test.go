// ABOUTME: Integration tests for the session engine, driven over real websocket connections
// ABOUTME: Mirrors the corpus's habit of testing the server against a live client rather than mocks
package serverside

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roomstream/roomstream-go/internal/transport"
	"github.com/roomstream/roomstream-go/pkg/wire"
)

var testUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// testClient bundles a server-side ClientProxy with the raw client
// connection a test uses to drive it.
type testClient struct {
	proxy *ClientProxy
	conn  *websocket.Conn
	srv   *httptest.Server
}

func newTestClient(t *testing.T, id string) *testClient {
	t.Helper()

	ready := make(chan *ClientProxy, 1)
	clock := func() int64 { return time.Now().UnixMicro() }

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		tr := transport.NewFromConn(conn, 64)
		p := NewClientProxy(id, tr, clock)
		tr.OnText(func(d []byte) { p.HandleText(d) })
		tr.OnBinary(p.HandleBinary)
		tr.OnClose(p.HandleClose)
		ready <- p
		go tr.Serve()
	})

	srv := httptest.NewServer(handler)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	tc := &testClient{proxy: <-ready, conn: conn, srv: srv}
	return tc
}

func (tc *testClient) close() {
	tc.conn.Close()
	tc.srv.Close()
}

// sendHello drives player/hello from the client side and waits for the
// proxy to record it.
func (tc *testClient) sendHello(t *testing.T) {
	t.Helper()
	err := tc.conn.WriteJSON(wire.Message{
		Type: wire.TypePlayerHello,
		Payload: wire.PlayerInfo{
			PlayerID: "dummy",
			Name:     "dummy",
			Role:     "receiver",
		},
	})
	if err != nil {
		t.Fatalf("write hello: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tc.proxy.Info() != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("proxy never recorded hello")
}

// readText reads the next text message and decodes its payload.
func (tc *testClient) readText(t *testing.T, out interface{}) string {
	t.Helper()
	tc.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := tc.conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var msg wire.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if out != nil {
		if err := wire.DecodePayload(msg.Payload, out); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
	}
	return msg.Type
}

func (tc *testClient) readBinary(t *testing.T) []byte {
	t.Helper()
	tc.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := tc.conn.ReadMessage()
	if err != nil {
		t.Fatalf("read binary: %v", err)
	}
	return data
}

func TestSessionEngine_LateJoinInheritsState(t *testing.T) {
	clock := func() int64 { return 1000 }
	mgr := NewGroupManager(clock)
	group := mgr.CreateGroup("living-room")

	early := newTestClient(t, "early")
	defer early.close()
	early.sendHello(t)
	group.AddClient(early.proxy)

	engine, err := group.StartSession("pcm", 48000, 2, 16)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	// The first fan-out (this metadata push) is what activates the
	// already-joined client: session/start arrives before the delta.
	title := "Track A"
	engine.SendMetadata(wire.Metadata{Title: &title})
	if got := early.readText(t, nil); got != wire.TypeSessionStart {
		t.Fatalf("expected session/start, got %s", got)
	}
	if got := early.readText(t, nil); got != wire.TypeMetadataUpdate {
		t.Fatalf("expected metadata/update, got %s", got)
	}

	engine.SendArt(wire.ArtFormatPNG, []byte{1, 2, 3, 4})
	_ = early.readBinary(t)

	// A new member joins after session start, metadata, and art have
	// all already happened.
	late := newTestClient(t, "late")
	defer late.close()
	late.sendHello(t)
	group.AddClient(late.proxy)

	engine.SendAudio(2000, 1, []byte{0, 0, 0, 0})

	var gotStart bool
	var gotMeta wire.Metadata
	var gotArt bool
	for i := 0; i < 4; i++ {
		_, data, err := late.conn.ReadMessage()
		if err != nil {
			t.Fatalf("read from late joiner: %v", err)
		}
		if len(data) > 0 && (data[0] == wire.BinaryTypeMediaArt || data[0] == wire.BinaryTypePlayAudioChunk) {
			if data[0] == wire.BinaryTypeMediaArt {
				gotArt = true
			}
			continue
		}
		var msg wire.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		switch msg.Type {
		case wire.TypeSessionStart:
			gotStart = true
		case wire.TypeMetadataUpdate:
			wire.DecodePayload(msg.Payload, &gotMeta)
		}
	}

	if !gotStart {
		t.Error("late joiner never got session/start")
	}
	if gotMeta.Title == nil || *gotMeta.Title != "Track A" {
		t.Error("late joiner did not inherit cached metadata")
	}
	if !gotArt {
		t.Error("late joiner did not inherit cached art")
	}
}

func TestSessionEngine_MetadataDeltaSuppressionAndOrder(t *testing.T) {
	clock := func() int64 { return 1000 }
	mgr := NewGroupManager(clock)
	group := mgr.CreateGroup("kitchen")

	tc := newTestClient(t, "c1")
	defer tc.close()
	tc.sendHello(t)
	group.AddClient(tc.proxy)

	engine, err := group.StartSession("pcm", 48000, 2, 16)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	title := "A"
	members := []string{"x", "y"}
	engine.SendMetadata(wire.Metadata{Title: &title, GroupMembers: members})
	if got := tc.readText(t, nil); got != wire.TypeSessionStart {
		t.Fatalf("expected session/start, got %s", got)
	}
	if got := tc.readText(t, nil); got != wire.TypeMetadataUpdate {
		t.Fatalf("expected metadata/update, got %s", got)
	}

	// Identical candidate: no fields differ, so nothing should be sent.
	engine.SendMetadata(wire.Metadata{Title: &title, GroupMembers: []string{"x", "y"}})

	// Reordering group_members is a real change (order-sensitive equality).
	engine.SendMetadata(wire.Metadata{Title: &title, GroupMembers: []string{"y", "x"}})

	var delta wire.Metadata
	if got := tc.readText(t, &delta); got != wire.TypeMetadataUpdate {
		t.Fatalf("expected metadata/update for reordered members, got %s", got)
	}
	if delta.Title != nil {
		t.Error("title unchanged and should have been suppressed from the delta")
	}
	if len(delta.GroupMembers) != 2 || delta.GroupMembers[0] != "y" || delta.GroupMembers[1] != "x" {
		t.Errorf("expected reordered group_members in delta, got %v", delta.GroupMembers)
	}
}

func TestSessionEngine_GroupLeaveEndsSessionForOneClientOnly(t *testing.T) {
	clock := func() int64 { return 1000 }
	mgr := NewGroupManager(clock)
	group := mgr.CreateGroup("office")

	staying := newTestClient(t, "staying")
	defer staying.close()
	staying.sendHello(t)
	group.AddClient(staying.proxy)

	leaving := newTestClient(t, "leaving")
	defer leaving.close()
	leaving.sendHello(t)
	group.AddClient(leaving.proxy)

	engine, err := group.StartSession("pcm", 48000, 2, 16)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	// Activate both via a metadata push (each gets session/start then
	// the delta) so each has an active binding to tear down.
	title := "now playing"
	engine.SendMetadata(wire.Metadata{Title: &title})
	staying.readText(t, nil) // session/start
	staying.readText(t, nil) // metadata/update
	leaving.readText(t, nil) // session/start
	leaving.readText(t, nil) // metadata/update

	group.RemoveClient("leaving")

	var payload wire.SessionEndPayload
	if got := leaving.readText(t, &payload); got != wire.TypeSessionEnd {
		t.Fatalf("expected session/end for the departing client, got %s", got)
	}
	if payload.SessionID != engine.Info().SessionID {
		t.Errorf("session/end carried wrong session id: %s", payload.SessionID)
	}

	if group.Session() == nil {
		t.Fatal("session should still be active for the remaining member")
	}
	if engine.IsActive("leaving") {
		t.Error("departed client should no longer be active")
	}
	if !engine.IsActive("staying") {
		t.Error("remaining client should still be active")
	}

	// The session is still live: a further metadata push must still
	// reach the remaining client and must not touch the departed one.
	artist := "someone"
	engine.SendMetadata(wire.Metadata{Artist: &artist})
	if got := staying.readText(t, nil); got != wire.TypeMetadataUpdate {
		t.Fatalf("remaining client should still receive updates, got %s", got)
	}
}
