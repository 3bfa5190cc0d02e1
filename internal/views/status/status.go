package status

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/launchcart/widgets/internal/phx"
	"github.com/launchcart/widgets/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	// Topics maps each widget's topic to its subscription status.
	Topics    map[string]phx.Status
	Socket    string
	ItemCount int
	Width     int
}

// New creates a status bar model.
func New(socket string) Model {
	return Model{
		Topics: make(map[string]phx.Status),
		Socket: socket,
	}
}

// SetStatus records a topic's subscription status.
func (m *Model) SetStatus(topic string, s phx.Status) {
	m.Topics[topic] = s
}

// Connected reports whether every topic is joined.
func (m Model) Connected() bool {
	if len(m.Topics) == 0 {
		return false
	}
	for _, s := range m.Topics {
		if s != phx.StatusJoined {
			return false
		}
	}
	return true
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected() {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("○ Connecting...")
	}

	topics := make([]string, 0, len(m.Topics))
	for t := range m.Topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	var parts []string
	for _, t := range topics {
		s := m.Topics[t].String()
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.StatusColor(s)).Render(
			fmt.Sprintf("%s %s: %s", theme.StatusGlyph(s), t, s),
		))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + fmt.Sprintf("%d in cart", m.ItemCount)
	if len(parts) > 0 {
		content += sep + strings.Join(parts, "  ")
	}
	if m.Socket != "" {
		content += sep + theme.StyleDimmed.Render(m.Socket)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
