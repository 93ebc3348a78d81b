// ABOUTME: Server status TUI: groups, sessions, and client counts
// ABOUTME: Purely observational (reads Server.Groups() snapshots, never mutates state)
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// GroupStatus is one row of the server status view.
type GroupStatus struct {
	GroupID     string
	State       string
	ClientCount int
	ReadyCount  int
}

// ServerStatus is a read-only snapshot rendered by the server TUI.
type ServerStatus struct {
	Name        string
	Addr        string
	ClientCount int
	Groups      []GroupStatus
}

// ServerView runs a bubbletea status display for cmd/roomstream-server.
type ServerView struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{}
}

type serverTickMsg time.Time
type serverStatusMsg ServerStatus

type serverModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

func (m serverModel) Init() tea.Cmd {
	return serverTickEvery()
}

func serverTickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return serverTickMsg(t) })
}

func (m serverModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}
	case serverTickMsg:
		return m, serverTickEvery()
	case serverStatusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}
	return m, nil
}

func (m serverModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	groupHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))

	var b strings.Builder
	b.WriteString(titleStyle.Render("roomstream server"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Name: "))
	b.WriteString(valueStyle.Render(m.status.Name))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Listening: "))
	b.WriteString(valueStyle.Render(m.status.Addr))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	b.WriteString(valueStyle.Render(time.Since(m.startTime).Round(time.Second).String()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Clients: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.status.ClientCount)))
	b.WriteString("\n\n")

	b.WriteString(groupHeaderStyle.Render(fmt.Sprintf("Groups (%d)", len(m.status.Groups))))
	b.WriteString("\n\n")

	if len(m.status.Groups) == 0 {
		b.WriteString(valueStyle.Render("  no groups yet"))
		b.WriteString("\n")
	} else {
		for _, g := range m.status.Groups {
			b.WriteString(fmt.Sprintf("  - %s", g.GroupID))
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s, %d/%d ready)", g.State, g.ReadyCount, g.ClientCount)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))
	return b.String()
}

// NewServerView creates a status view for name running at addr.
func NewServerView(name, addr string) *ServerView {
	return &ServerView{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI program; blocks until the user quits.
func (v *ServerView) Start(name, addr string) error {
	m := serverModel{
		status:    ServerStatus{Name: name, Addr: addr},
		startTime: time.Now(),
		quitChan:  v.quitChan,
	}
	v.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for status := range v.updates {
			if v.program != nil {
				v.program.Send(serverStatusMsg(status))
			}
		}
	}()

	_, err := v.program.Run()
	return err
}

// Update pushes a new snapshot to the view; non-blocking.
func (v *ServerView) Update(status ServerStatus) {
	select {
	case v.updates <- status:
	default:
	}
}

// Stop ends the TUI program.
func (v *ServerView) Stop() {
	if v.program != nil {
		v.program.Quit()
	}
	close(v.updates)
}

// QuitChan signals when the user has requested shutdown.
func (v *ServerView) QuitChan() <-chan struct{} { return v.quitChan }
