// ABOUTME: Receiver status TUI: connection, session, and clock offset stats
// ABOUTME: Purely observational (reads Receiver.Status() snapshots, never drives playback)
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// ReceiverStatusMsg carries a receiver snapshot into the bubbletea loop.
type ReceiverStatusMsg struct {
	State       string
	ServerName  string
	Title       string
	Artist      string
	Album       string
	SampleRate  int
	Channels    int
	BitDepth    int
	Offset      float64
	OffsetKnown bool
	Received    int64
	Played      int64
	Late        int64
	Volume      int
	Muted       bool
}

// ReceiverModel is the bubbletea model for cmd/roomstream-receiver.
type ReceiverModel struct {
	status ReceiverStatusMsg
	width  int
}

// NewReceiverModel creates an empty receiver status model.
func NewReceiverModel() ReceiverModel { return ReceiverModel{} }

func (m ReceiverModel) Init() tea.Cmd { return nil }

func (m ReceiverModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case ReceiverStatusMsg:
		m.status = msg
	}
	return m, nil
}

func (m ReceiverModel) View() string {
	s := m.status

	offsetText := "unknown"
	if s.OffsetKnown {
		offsetText = fmt.Sprintf("%+.1fms", s.Offset*1000)
	}

	out := fmt.Sprintf(`┌─ roomstream receiver ─────────────────────────────────┐
│ State:  %-45s │
│ Server: %-45s │
├──────────────────────────────────────────────────────┤
`, s.State, s.ServerName)

	if s.Title != "" {
		out += fmt.Sprintf("│ Track:  %-45s │\n", s.Title)
		out += fmt.Sprintf("│ Artist: %-45s │\n", s.Artist)
	} else {
		out += "│ No track metadata                                    │\n"
	}

	if s.SampleRate != 0 {
		out += fmt.Sprintf("│ Format: %dHz %dch %d-bit%-28s │\n", s.SampleRate, s.Channels, s.BitDepth, "")
	}

	out += fmt.Sprintf("│ Clock offset: %-38s │\n", offsetText)
	out += fmt.Sprintf("│ Chunks: received %d  played %d  late %d%-10s │\n", s.Received, s.Played, s.Late, "")
	out += "└──────────────────────────────────────────────────────┘\n"
	out += "Press 'q' or Ctrl+C to quit\n"

	return out
}
