// Package theme provides the Lip Gloss color palette and reusable styles
// for the widgets TUI. It is a leaf package with no internal imports to
// avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Brand colors.
var (
	ColorAccent  = lipgloss.Color("#6366f1")
	ColorPrice   = lipgloss.Color("#f59e0b")
	ColorBadge   = lipgloss.Color("#ec4899")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// Connection colors, keyed by subscription status name.
var (
	ColorJoined       = lipgloss.Color("#22c55e")
	ColorJoining      = lipgloss.Color("#7c3aed")
	ColorDisconnected = lipgloss.Color("#d97706")
	ColorUnavailable  = lipgloss.Color("#dc2626")
	ColorClosed       = lipgloss.Color("#374151")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the color for a subscription status name.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "joined":
		return ColorJoined
	case "joining", "idle":
		return ColorJoining
	case "disconnected":
		return ColorDisconnected
	case "unavailable":
		return ColorUnavailable
	case "closed":
		return ColorClosed
	default:
		return ColorDefault
	}
}

// StatusGlyph returns a Unicode glyph for a subscription status name.
func StatusGlyph(status string) string {
	switch status {
	case "joined":
		return "●"
	case "joining":
		return "◎"
	case "disconnected":
		return "◌"
	case "unavailable":
		return "✗"
	case "closed":
		return "○"
	default:
		return "·"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleFocused = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccent)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)

	StylePrice = lipgloss.NewStyle().
			Foreground(ColorPrice)
)
