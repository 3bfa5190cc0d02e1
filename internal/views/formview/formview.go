// Package formview renders the form widget as a column of text inputs and
// shows the server's completion message once the form is done.
package formview

import (
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/launchcart/widgets/internal/form"
	"github.com/launchcart/widgets/internal/theme"
)

// Actions is what the panel asks of the form widget.
type Actions interface {
	Submit(values url.Values) bool
}

// KeyMap defines the form panel bindings.
type KeyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Submit key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Next: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("↓", "next field"),
		),
		Prev: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("↑", "prev field"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "submit"),
		),
	}
}

// Model holds the form panel state.
type Model struct {
	actions  Actions
	keys     KeyMap
	fields   []string
	inputs   []textinput.Model
	focus    int
	view     form.View
	err      string
	renderer *ResultRenderer
	spinner  spinner.Model
	Width    int
	Focused  bool
}

// New creates a form panel with one input per field.
func New(actions Actions, fields []string, renderer *ResultRenderer) Model {
	if renderer == nil {
		renderer = NewResultRenderer("")
	}
	inputs := make([]textinput.Model, len(fields))
	for i, f := range fields {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = f
		ti.CharLimit = 256
		if f == "email" {
			ti.Placeholder = "you@example.com"
		}
		inputs[i] = ti
	}
	return Model{
		actions:  actions,
		keys:     DefaultKeyMap(),
		fields:   fields,
		inputs:   inputs,
		renderer: renderer,
		spinner:  spinner.New(spinner.WithSpinner(spinner.MiniDot)),
	}
}

// Focus gives keyboard focus to the current input.
func (m *Model) Focus() tea.Cmd {
	m.Focused = true
	if len(m.inputs) == 0 {
		return nil
	}
	return m.inputs[m.focus].Focus()
}

// Blur releases keyboard focus.
func (m *Model) Blur() {
	m.Focused = false
	for i := range m.inputs {
		m.inputs[i].Blur()
	}
}

// SetView applies a new widget view. A view change clears the last error.
func (m *Model) SetView(v form.View) tea.Cmd {
	wasPending := m.view.Pending
	m.view = v
	if v.Phase == form.Complete {
		m.err = ""
	}
	if v.Pending && !wasPending {
		return m.spinner.Tick
	}
	return nil
}

// SetError shows a server validation error.
func (m *Model) SetError(e form.Error) {
	m.err = e.Error()
}

// Values collects the inputs.
func (m Model) Values() url.Values {
	v := url.Values{}
	for i, f := range m.fields {
		v.Set(f, strings.TrimSpace(m.inputs[i].Value()))
	}
	return v
}

// Update handles keys and spinner ticks.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !m.view.Pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.view.Phase == form.Complete || len(m.inputs) == 0 {
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Submit):
			m.err = ""
			m.actions.Submit(m.Values())
			return m, nil
		case key.Matches(msg, m.keys.Next):
			return m, m.moveFocus(1)
		case key.Matches(msg, m.keys.Prev):
			return m, m.moveFocus(-1)
		}
		var cmd tea.Cmd
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) moveFocus(delta int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + len(m.inputs)) % len(m.inputs)
	return m.inputs[m.focus].Focus()
}

// Render draws the panel.
func (m Model) Render() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	title := theme.StyleHeader.Render("Sign up")
	var body string
	if m.view.Phase == form.Complete {
		body = m.renderer.Render(m.view.Message(), width-6)
	} else {
		var lines []string
		for i, f := range m.fields {
			label := theme.StyleDimmed.Render(f)
			if i == m.focus && m.Focused {
				label = theme.StyleSelected.Render("> " + f)
			}
			lines = append(lines, label, "  "+m.inputs[i].View())
		}
		switch {
		case m.view.Pending:
			lines = append(lines, "", m.spinner.View()+" Submitting...")
		case m.err != "":
			lines = append(lines, "", theme.StyleError.Render("✗ "+m.err))
		default:
			lines = append(lines, "", theme.StyleDimmed.Render("enter:submit  ↑/↓:field"))
		}
		body = lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	style := theme.StyleBorder
	if m.Focused {
		style = theme.StyleFocused
	}
	return style.Width(width-2).Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body))
}
