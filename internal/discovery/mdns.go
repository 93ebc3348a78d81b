// ABOUTME: mDNS service discovery for roomstream servers and receivers
// ABOUTME: Advertised TXT records carry live group/session counts; browsing resolves straight into a receiver.Config
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/hashicorp/mdns"
	"github.com/roomstream/roomstream-go/internal/audiosink"
	"github.com/roomstream/roomstream-go/internal/receiver"
	"github.com/roomstream/roomstream-go/pkg/wire"
)

// Status is a live snapshot of server state, folded into the
// advertised TXT records so a browsing receiver can tell an idle
// server from a busy one before ever dialing it.
type Status struct {
	GroupCount     int
	ActiveSessions int
}

// Config holds discovery configuration.
type Config struct {
	ServiceName string
	Port        int
	ServerMode  bool // If true, advertise as _roomstream-server._tcp, otherwise _roomstream._tcp
	// Path is the websocket upgrade path advertised in the TXT
	// record. Defaults to "/roomstream".
	Path string
	// StatusFn, if set, is polled once at Advertise time to fill the
	// groups/sessions TXT fields. Only meaningful in ServerMode.
	StatusFn func() Status
}

// Manager handles mDNS operations.
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered server, including the fields
// resolved out of its advertised TXT record.
type ServerInfo struct {
	Name           string
	Host           string
	Port           int
	Path           string
	GroupCount     int
	ActiveSessions int
}

// Addr formats the host:port dial target for this server.
func (s *ServerInfo) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ReceiverConfig builds a receiver.Config that dials this discovered
// server on its advertised path, sparing the caller from stitching
// mDNS resolution results into connection parameters by hand.
func (s *ServerInfo) ReceiverConfig(info wire.PlayerInfo, sink audiosink.Output) receiver.Config {
	path := s.Path
	if path == "" {
		path = "/roomstream"
	}
	return receiver.Config{
		Addr: s.Addr(),
		Path: path,
		Info: info,
		Sink: sink,
	}
}

// NewManager creates a discovery manager.
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = "/roomstream"
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise advertises this server via mDNS, folding in a snapshot of
// StatusFn's group/session counts if configured.
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	serviceType := "_roomstream._tcp"
	if m.config.ServerMode {
		serviceType = "_roomstream-server._tcp"
	}

	txt := []string{"path=" + m.config.Path}
	if m.config.ServerMode && m.config.StatusFn != nil {
		status := m.config.StatusFn()
		txt = append(txt,
			fmt.Sprintf("groups=%d", status.GroupCount),
			fmt.Sprintf("sessions=%d", status.ActiveSessions),
		)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		serviceType,
		"",
		"",
		m.config.Port,
		ips,
		txt,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s, txt: %v)", m.config.ServiceName, m.config.Port, serviceType, txt)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for roomstream servers.
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop continuously browses for roomstream servers.
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				server := &ServerInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}
				parseTXT(entry.InfoFields, server)

				log.Printf("Discovered server: %s at %s (groups=%d sessions=%d)", server.Name, server.Addr(), server.GroupCount, server.ActiveSessions)

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: "_roomstream-server._tcp",
			Domain:  "local",
			Timeout: 3,
			Entries: entries,
		}

		mdns.Query(params)
		close(entries)
	}
}

// parseTXT folds a server's advertised TXT fields (path=, groups=,
// sessions=) into info. Malformed or missing fields are left at their
// zero value rather than failing discovery over a cosmetic mismatch.
func parseTXT(fields []string, info *ServerInfo) {
	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			info.Path = value
		case "groups":
			if n, err := strconv.Atoi(value); err == nil {
				info.GroupCount = n
			}
		case "sessions":
			if n, err := strconv.Atoi(value); err == nil {
				info.ActiveSessions = n
			}
		}
	}
}

// Servers returns the channel of discovered servers.
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops the discovery manager.
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IP addresses.
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
