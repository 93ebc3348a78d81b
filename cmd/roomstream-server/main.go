// ABOUTME: Entry point for the roomstream reference server
// ABOUTME: Parses CLI flags, starts a test-tone group, and runs the server until signaled
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/roomstream/roomstream-go/internal/artwork"
	"github.com/roomstream/roomstream-go/internal/discovery"
	"github.com/roomstream/roomstream-go/internal/serverside"
	"github.com/roomstream/roomstream-go/internal/tui"
	"github.com/roomstream/roomstream-go/pkg/wire"
)

var (
	addr    = flag.String("addr", ":7890", "WebSocket listen address")
	name    = flag.String("name", "", "Server friendly name (default: hostname-roomstream-server)")
	groupID = flag.String("group", "default", "Group id the test-tone source streams into")
	artURL  = flag.String("art-url", "", "Optional URL fetched once and sent as the group's MediaArt")
	logFile = flag.String("log-file", "roomstream-server.log", "Log file path")
	noMDNS  = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	noTUI   = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if *noTUI {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	} else {
		log.SetOutput(f)
	}

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-roomstream-server", hostname)
	}

	log.Printf("starting roomstream server %q on %s", serverName, *addr)

	srv := serverside.New(serverside.Config{Addr: *addr, Name: serverName})

	group := srv.Groups().CreateGroup(*groupID)
	session, err := group.StartSession("pcm", serverside.DefaultSampleRate, serverside.DefaultChannels, serverside.DefaultBitDepth)
	if err != nil {
		log.Fatalf("failed to start session on group %s: %v", *groupID, err)
	}

	title := "Test Tone"
	artist := serverName
	session.SendMetadata(metadataOf(title, artist))

	if *artURL != "" {
		fetcher := artwork.NewFetcher()
		if err := fetcher.FetchInto(*artURL, session.SendArt); err != nil {
			log.Printf("artwork fetch failed: %v", err)
		}
	}

	tone := serverside.NewTestToneSource(session, srv.ClockMicros)
	go tone.Start()

	if !*noMDNS {
		mgr := discovery.NewManager(discovery.Config{
			ServiceName: serverName,
			Port:        listenPort(*addr),
			ServerMode:  true,
			StatusFn:    func() discovery.Status { return serverStatus(srv) },
		})
		if err := mgr.Advertise(); err != nil {
			log.Printf("mdns advertise failed: %v", err)
		}
		defer mgr.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Printf("received shutdown signal")
		tone.Stop()
		srv.Stop()
	}()

	if *noTUI {
		if err := srv.Start(); err != nil {
			log.Fatalf("server error: %v", err)
		}
		log.Printf("server stopped")
		return
	}

	view := tui.NewServerView(serverName, *addr)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			var groups []tui.GroupStatus
			for _, g := range srv.Groups().All() {
				groups = append(groups, tui.GroupStatus{
					GroupID:     g.ID,
					State:       g.State(),
					ClientCount: len(g.AllClients()),
					ReadyCount:  len(g.ReadyClients()),
				})
			}
			view.Update(tui.ServerStatus{Name: serverName, Addr: *addr, ClientCount: srv.ClientCount(), Groups: groups})
		}
	}()
	go func() {
		<-view.QuitChan()
		tone.Stop()
		srv.Stop()
	}()
	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("server error: %v", err)
		}
		view.Stop()
	}()

	if err := view.Start(serverName, *addr); err != nil {
		log.Fatalf("tui error: %v", err)
	}
}

func metadataOf(title, artist string) wire.Metadata {
	return wire.Metadata{Title: &title, Artist: &artist}
}

func serverStatus(srv *serverside.Server) discovery.Status {
	groups := srv.Groups().All()
	sessions := 0
	for _, g := range groups {
		if g.Session() != nil {
			sessions++
		}
	}
	return discovery.Status{GroupCount: len(groups), ActiveSessions: sessions}
}

func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(portStr)
	return port
}
