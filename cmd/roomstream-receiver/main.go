// ABOUTME: Entry point for the roomstream reference receiver
// ABOUTME: Parses CLI flags, connects to a server, and plays audio through the local output device
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roomstream/roomstream-go/internal/audiosink"
	"github.com/roomstream/roomstream-go/internal/discovery"
	"github.com/roomstream/roomstream-go/internal/receiver"
	"github.com/roomstream/roomstream-go/internal/tui"
	"github.com/roomstream/roomstream-go/internal/version"
	"github.com/roomstream/roomstream-go/pkg/wire"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

var (
	serverAddr = flag.String("server", "", "Server address, host:port (skip mDNS browsing if set)")
	name       = flag.String("name", "", "Player friendly name (default: hostname-roomstream-receiver)")
	logFile    = flag.String("log-file", "roomstream-receiver.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
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

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-roomstream-receiver", hostname)
	}

	sink := audiosink.NewOtoOutput()
	info := playerInfoOf(playerName)

	var cfg receiver.Config
	if *serverAddr != "" {
		cfg = receiver.Config{Addr: *serverAddr, Info: info, Sink: sink}
	} else {
		found, err := discoverServer(playerName)
		if err != nil {
			log.Fatalf("no -server given and mDNS discovery failed: %v", err)
		}
		log.Printf("discovered %s at %s (groups=%d sessions=%d)", found.Name, found.Addr(), found.GroupCount, found.ActiveSessions)
		cfg = found.ReceiverConfig(info, sink)
	}

	log.Printf("%s %s connecting to %s as %q", version.Product, version.Version, cfg.Addr, playerName)

	r := receiver.New(cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("received shutdown signal")
		r.Close()
	}()

	if err := r.Connect(); err != nil {
		log.Fatalf("connect failed: %v", err)
	}

	if *noTUI {
		r.Wait()
		log.Printf("receiver stopped")
		return
	}

	runTUI(r)
}

func playerInfoOf(name string) wire.PlayerInfo {
	return wire.PlayerInfo{
		PlayerID:          uuid.New().String(),
		Name:              name,
		Role:              "receiver",
		BufferCapacity:    256 * 1024,
		SupportedCodecs:   []string{"pcm"},
		SupportedChannels: []int{1, 2},
		SupportedRates:    []int{44100, 48000},
		SupportedDepths:   []int{16},
		SupportedStreams:  []string{"audio"},
		SupportedArt:      []string{"jpeg", "png"},
	}
}

func discoverServer(playerName string) (*discovery.ServerInfo, error) {
	mgr := discovery.NewManager(discovery.Config{ServiceName: playerName})
	if err := mgr.Browse(); err != nil {
		return nil, err
	}
	defer mgr.Stop()

	select {
	case srv := <-mgr.Servers():
		return srv, nil
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("no server found via mDNS within 5s")
	}
}

func runTUI(r *receiver.Receiver) {
	program := tea.NewProgram(tui.NewReceiverModel(), tea.WithAltScreen())

	r.Closed.Subscribe(func(receiver.CloseEvent) { program.Quit() })

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			status := r.Status()
			msg := tui.ReceiverStatusMsg{
				State:       status.State.String(),
				Received:    int64(status.SchedulerLog.Received),
				Played:      int64(status.SchedulerLog.Played),
				Late:        int64(status.SchedulerLog.Late),
				Offset:      status.Offset,
				OffsetKnown: status.OffsetKnown,
			}
			if status.ServerInfo != nil {
				msg.ServerName = status.ServerInfo.Name
			}
			if status.SessionInfo != nil {
				msg.SampleRate = status.SessionInfo.SampleRate
				msg.Channels = status.SessionInfo.Channels
				msg.BitDepth = status.SessionInfo.BitDepth
			}
			if status.Metadata != nil {
				if status.Metadata.Title != nil {
					msg.Title = *status.Metadata.Title
				}
				if status.Metadata.Artist != nil {
					msg.Artist = *status.Metadata.Artist
				}
			}
			program.Send(msg)
		}
	}()

	if _, err := program.Run(); err != nil {
		log.Printf("tui error: %v", err)
	}
	r.Wait()
}
