// Package cartview renders the cart widget: its lines, total, item-count
// badge, checkout state and purchase confirmation.
package cartview

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/launchcart/widgets/internal/cart"
	"github.com/launchcart/widgets/internal/theme"
)

const (
	badgeFPS    = 60
	badgeRest   = 0.01
	badgeMaxPad = 2
)

// Actions is what the panel asks of the cart widget.
type Actions interface {
	IncreaseQuantity(itemID string) bool
	DecreaseQuantity(itemID string) bool
	RemoveItem(itemID string) bool
	Checkout() bool
	DismissConfirmation()
}

// badgeFrameMsg advances the badge spring one frame.
type badgeFrameMsg struct{}

// Model holds the cart panel state.
type Model struct {
	actions Actions
	keys    KeyMap
	view    cart.View
	table   table.Model
	spinner spinner.Model
	Width   int
	Focused bool

	// The badge bumps when the item count changes and springs back.
	spring    harmonica.Spring
	badgePos  float64
	badgeVel  float64
	animating bool
}

// New creates a cart panel driving actions.
func New(actions Actions) Model {
	t := table.New(
		table.WithColumns(columns(60)),
		table.WithHeight(8),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.ColorBorder).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(theme.ColorBright).
		Background(theme.ColorAccent)
	t.SetStyles(styles)

	return Model{
		actions: actions,
		keys:    DefaultKeyMap(),
		table:   t,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		spring:  harmonica.NewSpring(harmonica.FPS(badgeFPS), 6.0, 0.4),
	}
}

func columns(width int) []table.Column {
	name := width - 30
	if name < 12 {
		name = 12
	}
	return []table.Column{
		{Title: "Product", Width: name},
		{Title: "Qty", Width: 5},
		{Title: "Price", Width: 10},
		{Title: "Subtotal", Width: 11},
	}
}

// CartView returns the widget view last applied.
func (m Model) CartView() cart.View { return m.view }

// SetView applies a new widget view. It returns a command when the badge
// needs animating.
func (m *Model) SetView(v cart.View) tea.Cmd {
	prevCount := m.view.ItemCount()
	prevPhase := m.view.Phase
	m.view = v

	rows := make([]table.Row, 0, len(v.Cart.Items))
	for _, it := range v.Cart.Items {
		rows = append(rows, table.Row{
			it.Product.Name,
			strconv.Itoa(it.Quantity),
			FormatPrice(it.Price),
			FormatPrice(it.Price * it.Quantity),
		})
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}

	var cmds []tea.Cmd
	if v.ItemCount() != prevCount {
		m.badgePos = 1
		if !m.animating {
			m.animating = true
			cmds = append(cmds, badgeFrame())
		}
	}
	if v.Phase == cart.CheckingOut && prevPhase != cart.CheckingOut {
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

func badgeFrame() tea.Cmd {
	return tea.Tick(time.Second/badgeFPS, func(time.Time) tea.Msg { return badgeFrameMsg{} })
}

// SelectedItemID returns the id of the highlighted line.
func (m Model) SelectedItemID() (string, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.view.Cart.Items) {
		return "", false
	}
	return m.view.Cart.Items[i].ID, true
}

// Update handles keys and animation frames.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case badgeFrameMsg:
		m.badgePos, m.badgeVel = m.spring.Update(m.badgePos, m.badgeVel, 0)
		if math.Abs(m.badgePos) < badgeRest && math.Abs(m.badgeVel) < badgeRest {
			m.badgePos, m.badgeVel = 0, 0
			m.animating = false
			return m, nil
		}
		return m, badgeFrame()

	case spinner.TickMsg:
		if m.view.Phase != cart.CheckingOut {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.view.Confirmation {
		if key.Matches(msg, m.keys.Dismiss) {
			m.actions.DismissConfirmation()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Increase):
		if id, ok := m.SelectedItemID(); ok {
			m.actions.IncreaseQuantity(id)
		}
	case key.Matches(msg, m.keys.Decrease):
		if id, ok := m.SelectedItemID(); ok {
			m.actions.DecreaseQuantity(id)
		}
	case key.Matches(msg, m.keys.Remove):
		if id, ok := m.SelectedItemID(); ok {
			m.actions.RemoveItem(id)
		}
	case key.Matches(msg, m.keys.Checkout):
		if len(m.view.Cart.Items) > 0 {
			m.actions.Checkout()
		}
	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Badge renders the item count. While the spring is moving the badge is
// padded out, giving it a bump.
func (m Model) Badge() string {
	pad := int(math.Round(math.Abs(m.badgePos) * badgeMaxPad))
	if pad > badgeMaxPad {
		pad = badgeMaxPad
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorBright).
		Background(theme.ColorBadge).
		Padding(0, 1+pad).
		Render(strconv.Itoa(m.view.ItemCount()))
}

// Render draws the panel.
func (m Model) Render() string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	m.table.SetColumns(columns(width - 4))

	title := theme.StyleHeader.Render("Cart ") + m.Badge()

	var body string
	if len(m.view.Cart.Items) == 0 {
		body = theme.StyleDimmed.Render("Your cart is empty.")
	} else {
		body = m.table.View()
	}

	total := theme.StyleHeader.Render("Total: ") + theme.StylePrice.Render(FormatPrice(m.view.Cart.Total))

	var footer string
	switch m.view.Phase {
	case cart.CheckingOut:
		footer = m.spinner.View() + " Checking out..."
		if m.view.RedirectURL != "" {
			footer += "\n" + theme.StyleDimmed.Render("Opened "+m.view.RedirectURL)
		}
	case cart.Completed:
		footer = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("✓ Order complete")
	default:
		help := "+/-:quantity  x:remove"
		if len(m.view.Cart.Items) > 0 {
			help += "  c:checkout"
		}
		footer = theme.StyleDimmed.Render(help)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", total, footer)

	style := theme.StyleBorder
	if m.Focused {
		style = theme.StyleFocused
	}
	panel := style.Width(width - 2).Padding(0, 1).Render(content)

	if m.view.Confirmation {
		return lipgloss.JoinVertical(lipgloss.Left, panel, confirmation(width))
	}
	return panel
}

func confirmation(width int) string {
	msg := lipgloss.JoinVertical(lipgloss.Center,
		theme.StyleHeader.Render("Thanks for purchasing!"),
		theme.StyleDimmed.Render("enter: dismiss"),
	)
	return lipgloss.NewStyle().
		Width(width-2).
		Align(lipgloss.Center).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorHealthy).
		Render(msg)
}

// Summary is a one-line description for logs and tests.
func (m Model) Summary() string {
	return fmt.Sprintf("%s: %d items, %s", m.view.Phase, m.view.ItemCount(), FormatPrice(m.view.Cart.Total))
}
