package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keyboard bindings. Panel bindings live with the
// panels.
type KeyMap struct {
	Tab    key.Binding
	Escape key.Binding
	Quit   key.Binding
	Debug  key.Binding
	Up     key.Binding
	Down   key.Binding
	Level  key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch panel"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "debug log"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll down"),
		),
		Level: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "log level"),
		),
	}
}
