// Package app is the root Bubble Tea model. It lays the cart and form
// panels out side by side and routes widget callbacks into the UI loop.
package app

import (
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/launchcart/widgets/internal/cart"
	"github.com/launchcart/widgets/internal/form"
	"github.com/launchcart/widgets/internal/livestate"
	"github.com/launchcart/widgets/internal/phx"
	"github.com/launchcart/widgets/internal/theme"
	"github.com/launchcart/widgets/internal/views/cartview"
	"github.com/launchcart/widgets/internal/views/debug"
	"github.com/launchcart/widgets/internal/views/formview"
	"github.com/launchcart/widgets/internal/views/status"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDebug
)

// Panel identifies the focused panel.
type Panel int

const (
	PanelCart Panel = iota
	PanelForm
)

// sideBySideWidth is the terminal width from which the panels sit in a row.
const sideBySideWidth = 110

// Options configures the root model.
type Options struct {
	// Socket is shown in the status bar.
	Socket string
	// FormFields are the inputs of the form panel.
	FormFields []string
	// Renderer renders the form's completion message.
	Renderer *formview.ResultRenderer
}

// Model is the root Bubble Tea model.
type Model struct {
	events *Events
	cart   *cart.Widget
	form   *form.Widget
	unsubs []func()

	keys    KeyMap
	width   int
	height  int
	focus   Panel
	overlay Overlay

	statusBar status.Model
	cartView  cartview.Model
	formView  formview.Model
	debug     debug.Model
}

// New creates the root model. Either widget may be nil, in which case its
// panel is not shown. Widget callbacks are registered immediately so no
// update between construction and Init is lost.
func New(events *Events, c *cart.Widget, f *form.Widget, opts Options) Model {
	m := Model{
		events:    events,
		cart:      c,
		form:      f,
		keys:      DefaultKeyMap(),
		statusBar: status.New(opts.Socket),
		debug:     debug.New(),
	}

	if c != nil {
		m.cartView = cartview.New(c)
		m.cartView.SetView(c.View())
		m.statusBar.SetStatus(c.Topic(), c.Status())
		m.statusBar.ItemCount = c.View().ItemCount()
		topic := c.Topic()
		m.unsubs = append(m.unsubs,
			c.OnChange(func(v cart.View) { events.Send(CartChangedMsg{View: v}) }),
			c.OnStatus(func(s livestate.StatusChange) { events.Send(StatusMsg{Topic: topic, Change: s}) }),
		)
	}
	if f != nil {
		m.formView = formview.New(f, opts.FormFields, opts.Renderer)
		m.formView.SetView(f.View())
		m.statusBar.SetStatus(f.Topic(), f.Status())
		topic := f.Topic()
		m.unsubs = append(m.unsubs,
			f.OnChange(func(v form.View) { events.Send(FormChangedMsg{View: v}) }),
			f.OnError(func(e form.Error) { events.Send(FormErrorMsg{Err: e}) }),
			f.OnStatus(func(s livestate.StatusChange) { events.Send(StatusMsg{Topic: topic, Change: s}) }),
		)
	}

	switch {
	case c != nil:
		m.cartView.Focused = true
	case f != nil:
		m.focus = PanelForm
		m.formView.Focus()
	}
	return m
}

// Init starts draining widget events.
func (m Model) Init() tea.Cmd {
	return m.events.Wait()
}

// Focus reports the focused panel.
func (m Model) Focus() Panel { return m.focus }

// Overlay reports the active overlay.
func (m Model) Overlay() Overlay { return m.overlay }

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		pw := m.panelWidth()
		m.cartView.Width = pw
		m.formView.Width = pw
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case CartChangedMsg:
		prev := m.cartView.CartView().Phase
		cmd := m.cartView.SetView(msg.View)
		m.statusBar.ItemCount = msg.View.ItemCount()
		if msg.View.Phase != prev {
			m.debug.Note(slog.LevelInfo, "cart", "phase "+msg.View.Phase.String())
		}
		return m, tea.Batch(cmd, m.events.Wait())

	case FormChangedMsg:
		cmd := m.formView.SetView(msg.View)
		if msg.View.Phase == form.Complete {
			m.debug.Note(slog.LevelInfo, "form", "complete")
		}
		return m, tea.Batch(cmd, m.events.Wait())

	case FormErrorMsg:
		m.formView.SetError(msg.Err)
		m.debug.Note(slog.LevelWarn, "form", msg.Err.Error())
		return m, m.events.Wait()

	case StatusMsg:
		m.statusBar.SetStatus(msg.Topic, msg.Change.Status)
		if msg.Change.Err != nil {
			m.debug.Append(debug.Entry{Time: time.Now(), Level: slog.LevelError, Source: "phx", Topic: msg.Topic, Message: msg.Change.Err.Error()})
		}
		return m, m.events.Wait()

	case LogMsg:
		m.debug.Append(msg.Entry)
		return m, m.events.Wait()
	}

	// Animation frames and spinner ticks.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	if m.cart != nil {
		m.cartView, cmd = m.cartView.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.form != nil {
		m.formView, cmd = m.formView.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}

	if m.overlay == OverlayDebug {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		case key.Matches(msg, m.keys.Level):
			m.debug.CycleLevel()
		}
		return m, nil
	}

	if key.Matches(msg, m.keys.Tab) {
		return m.switchPanel()
	}

	// While typing into the form every printable key belongs to the input.
	if m.focus == PanelForm && m.form != nil {
		if key.Matches(msg, m.keys.Escape) && m.cart != nil {
			return m.switchPanel()
		}
		var cmd tea.Cmd
		m.formView, cmd = m.formView.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil
	}

	if m.cart == nil {
		return m, nil
	}
	var cmd tea.Cmd
	m.cartView, cmd = m.cartView.Update(msg)
	return m, cmd
}

func (m Model) switchPanel() (tea.Model, tea.Cmd) {
	if m.cart == nil || m.form == nil {
		return m, nil
	}
	if m.focus == PanelCart {
		m.focus = PanelForm
		m.cartView.Focused = false
		return m, m.formView.Focus()
	}
	m.focus = PanelCart
	m.formView.Blur()
	m.cartView.Focused = true
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	for _, u := range m.unsubs {
		u()
	}
	m.events.Stop()
	return m, tea.Quit
}

func (m Model) panelWidth() int {
	if m.width >= sideBySideWidth && m.cart != nil && m.form != nil {
		return m.width / 2
	}
	return m.width
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.overlay == OverlayDebug {
		return m.debug.View(m.width, m.height)
	}

	var panels []string
	if m.cart != nil {
		panels = append(panels, m.cartView.Render())
	}
	if m.form != nil {
		panels = append(panels, m.formView.Render())
	}
	body := lipgloss.JoinVertical(lipgloss.Left, panels...)
	if m.panelWidth() < m.width {
		body = lipgloss.JoinHorizontal(lipgloss.Top, panels...)
	}

	sections := []string{m.statusBar.View()}
	if banner := m.connectionBanner(); banner != "" {
		sections = append(sections, banner)
	}
	sections = append(sections, body, m.help())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// connectionBanner warns while any topic has lost its connection.
func (m Model) connectionBanner() string {
	worst := phx.StatusJoined
	for _, s := range m.statusBar.Topics {
		if s == phx.StatusUnavailable {
			worst = s
			break
		}
		if s == phx.StatusDisconnected {
			worst = s
		}
	}
	style := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch worst {
	case phx.StatusDisconnected:
		return style.Foreground(theme.ColorDisconnected).Render("DISCONNECTED · Reconnecting...")
	case phx.StatusUnavailable:
		return style.Foreground(theme.ColorUnavailable).Render("UNAVAILABLE · server unreachable, restart to retry")
	}
	return ""
}

func (m Model) help() string {
	if m.focus == PanelForm {
		return theme.StyleDimmed.Render("  tab/esc:cart  ↑/↓:field  enter:submit  ctrl+c:quit")
	}
	return theme.StyleDimmed.Render("  ↑/↓:select  +/-:qty  x:remove  c:checkout  tab:form  d:debug  q:quit")
}
