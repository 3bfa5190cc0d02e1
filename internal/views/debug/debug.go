// Package debug renders the in-app log overlay: slog records mirrored from
// the widgets and the socket, filterable by level.
package debug

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/launchcart/widgets/internal/theme"
)

const maxEntries = 200

// Entry is one mirrored log record. Source, Topic and Event are lifted out
// of the record's attributes; the rest stay in Attrs.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Source  string // widget name, or "phx" for the socket
	Topic   string
	Event   string
	Message string
	Attrs   string
}

// Model is a bounded buffer of entries plus the overlay's viewport.
type Model struct {
	entries  []Entry
	minLevel slog.Level
	offset   int // lines hidden below the viewport
}

func New() Model {
	return Model{minLevel: slog.LevelDebug}
}

// Note records an application event that did not come through slog.
func (m *Model) Note(level slog.Level, source, message string) {
	m.Append(Entry{Time: time.Now(), Level: level, Source: source, Message: message})
}

// Append adds e, dropping the oldest entry once the buffer is full. The
// viewport snaps back to the newest entry.
func (m *Model) Append(e Entry) {
	m.entries = append(m.entries, e)
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
	m.offset = 0
}

// Len is the number of buffered entries, filtered or not.
func (m Model) Len() int { return len(m.entries) }

// MinLevel is the lowest level the overlay shows.
func (m Model) MinLevel() slog.Level { return m.minLevel }

// CycleLevel raises the filter one step, wrapping from error back to debug.
func (m *Model) CycleLevel() {
	switch {
	case m.minLevel < slog.LevelInfo:
		m.minLevel = slog.LevelInfo
	case m.minLevel < slog.LevelWarn:
		m.minLevel = slog.LevelWarn
	case m.minLevel < slog.LevelError:
		m.minLevel = slog.LevelError
	default:
		m.minLevel = slog.LevelDebug
	}
	m.offset = 0
}

// Visible returns the entries at or above the filter level, oldest first.
func (m Model) Visible() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Level >= m.minLevel {
			out = append(out, e)
		}
	}
	return out
}

func (m *Model) ScrollUp(n int) {
	m.offset += n
	if max := len(m.Visible()) - 1; m.offset > max {
		m.offset = max
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m *Model) ScrollDown(n int) {
	m.offset -= n
	if m.offset < 0 {
		m.offset = 0
	}
}

// Offset is how many visible entries sit below the viewport.
func (m Model) Offset() int { return m.offset }

// View renders the overlay panel.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	rows := max(height-6, 3)

	title := theme.StyleHeader.Render(" DEBUG LOG ")
	visible := m.Visible()
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  l:level ≥%s  esc:close  %d/%d entries",
		levelLabel(m.minLevel), len(visible), len(m.entries)))

	panel := lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)

	if len(visible) == 0 {
		body := theme.StyleDimmed.Render("  No events recorded yet.")
		if len(m.entries) > 0 {
			body = theme.StyleDimmed.Render("  Nothing at this level.")
		}
		return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := len(visible) - m.offset
	start := max(end-rows, 0)
	lines := make([]string, 0, end-start)
	for _, e := range visible[start:end] {
		lines = append(lines, renderEntry(e, innerW))
	}

	more := ""
	if m.offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.offset))
	}
	return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help))
}

func renderEntry(e Entry, width int) string {
	ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
	lvl := lipgloss.NewStyle().Foreground(levelColor(e.Level)).Bold(e.Level >= slog.LevelWarn).Width(4).Render(levelLabel(e.Level))
	src := lipgloss.NewStyle().Foreground(theme.ColorAccent).Width(7).Render(truncate(e.Source, 7))

	var b strings.Builder
	if e.Topic != "" {
		b.WriteString(e.Topic)
		if e.Event != "" {
			b.WriteString(" " + e.Event)
		}
		b.WriteString(" · ")
	} else if e.Event != "" {
		b.WriteString(e.Event + " · ")
	}
	b.WriteString(e.Message)
	if e.Attrs != "" {
		b.WriteString(" " + e.Attrs)
	}

	text := b.String()
	if room := width - 28; room > 3 && len([]rune(text)) > room {
		text = truncate(text, room-3) + "..."
	}
	return fmt.Sprintf("%s %s %s %s", ts, lvl, src, text)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func levelLabel(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERR"
	case l >= slog.LevelWarn:
		return "WRN"
	case l >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}

func levelColor(l slog.Level) lipgloss.Color {
	switch {
	case l >= slog.LevelError:
		return theme.ColorDanger
	case l >= slog.LevelWarn:
		return theme.ColorWarning
	case l >= slog.LevelInfo:
		return theme.ColorJoined
	default:
		return theme.ColorDimmed
	}
}
