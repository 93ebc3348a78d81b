// ABOUTME: Top-level server accepting receivers and dispatching group commands
// ABOUTME: Wraps an http.Server; each upgraded connection becomes one ClientProxy
package serverside

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/roomstream/roomstream-go/internal/transport"
	"github.com/roomstream/roomstream-go/pkg/wire"
)

// Config holds the server's startup parameters.
type Config struct {
	Addr string // host:port to listen on
	Path string // HTTP path the websocket endpoint is mounted at
	Name string
}

// Server accepts receiver connections, runs the handshake, and routes
// group commands through the GroupManager.
type Server struct {
	config   Config
	serverID string
	upgrader websocket.Upgrader

	httpServer *http.Server
	mux        *http.ServeMux

	groups *GroupManager

	clockStart time.Time

	mu         sync.RWMutex
	clients    map[string]*ClientProxy
	isShutdown bool

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a server. Path defaults to "/roomstream" and addr to
// ":7890" if left empty.
func New(config Config) *Server {
	if config.Path == "" {
		config.Path = "/roomstream"
	}
	if config.Addr == "" {
		config.Addr = ":7890"
	}
	if config.Name == "" {
		config.Name = "roomstream-server"
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:        http.NewServeMux(),
		clockStart: time.Now(),
		clients:    make(map[string]*ClientProxy),
		stopChan:   make(chan struct{}),
	}
	s.groups = NewGroupManager(s.clockMicros)
	return s
}

// ServerID returns the UUID generated for this server instance.
func (s *Server) ServerID() string { return s.serverID }

// Groups returns the server's group registry, for read-only inspection
// (status TUIs, tests) and for callers that drive session lifecycle
// directly (e.g. an AudioSource calling StartSession on a specific
// group).
func (s *Server) Groups() *GroupManager { return s.groups }

// clockMicros is the server's monotonic clock, used for source/time
// replies and SessionInfo.OriginUs.
func (s *Server) clockMicros() int64 {
	return time.Since(s.clockStart).Microseconds()
}

// ClockMicros exposes the server's monotonic clock to callers outside
// the package (e.g. an AudioSource stamping chunk timestamps against
// the same clock SessionInfo.OriginUs was drawn from).
func (s *Server) ClockMicros() int64 { return s.clockMicros() }

// Start runs the HTTP server until Stop is called or it errors.
func (s *Server) Start() error {
	s.mux.HandleFunc(s.config.Path, s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:    s.config.Addr,
		Handler: s.mux,
	}

	log.Printf("server %s (%s) listening on %s%s", s.config.Name, s.serverID, s.config.Addr, s.config.Path)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serveErr error
	select {
	case <-s.stopChan:
		log.Printf("server shutting down")
	case err := <-errChan:
		log.Printf("http server error: %v", err)
		serveErr = err
	}

	s.mu.Lock()
	s.isShutdown = true
	s.mu.Unlock()

	s.groups.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}

	s.wg.Wait()
	log.Printf("server stopped cleanly")

	if serveErr != nil {
		return fmt.Errorf("http server failed: %w", serveErr)
	}
	return nil
}

// Stop requests shutdown; safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	shutdown := s.isShutdown
	s.mu.RUnlock()
	if shutdown {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	log.Printf("new connection from %s", r.RemoteAddr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptConnection(conn)
	}()
}

func (s *Server) acceptConnection(conn *websocket.Conn) {
	id := uuid.New().String()
	t := transport.NewFromConn(conn, 256)
	proxy := NewClientProxy(id, t, s.clockMicros)

	t.OnText(func(data []byte) {
		if err := proxy.HandleText(data); err != nil {
			log.Printf("client %s: protocol error: %v", id, err)
			t.Close()
		}
	})
	t.OnBinary(proxy.HandleBinary)
	t.OnClose(proxy.HandleClose)

	proxy.Close.Subscribe(func(error) { s.removeClient(id) })
	proxy.GroupCommand.Subscribe(func(cmd GroupCommand) { s.handleGroupCommand(proxy, cmd) })

	if err := proxy.Accept(wire.ServerInfo{ServerID: s.serverID, Name: s.config.Name}); err != nil {
		log.Printf("client %s: failed to send hello: %v", id, err)
		conn.Close()
		return
	}

	s.mu.Lock()
	s.clients[id] = proxy
	s.mu.Unlock()

	t.Serve()
}

func (s *Server) removeClient(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
	s.groups.RemoveClientFromAll(id)
}

func (s *Server) handleGroupCommand(p *ClientProxy, cmd GroupCommand) {
	switch cmd.Kind {
	case GroupCommandJoin:
		s.groups.RemoveClientFromAll(p.ID)
		group := s.groups.CreateGroup(cmd.GroupID)
		group.AddClient(p)
	case GroupCommandUnjoin:
		s.groups.RemoveClientFromAll(p.ID)
	case GroupCommandList:
		entries := make([]wire.GroupListEntry, 0)
		for _, g := range s.groups.All() {
			entries = append(entries, wire.GroupListEntry{GroupID: g.ID, State: g.State()})
		}
		p.Send(wire.TypeGroupList, wire.GroupListPayload{Groups: entries})
	}
}

// ClientCount returns the number of currently connected clients, for
// status reporting.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
