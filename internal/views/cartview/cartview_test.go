package cartview

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/launchcart/widgets/internal/cart"
)

type fakeActions struct {
	calls []string
}

func (f *fakeActions) IncreaseQuantity(id string) bool {
	f.calls = append(f.calls, "increase:"+id)
	return true
}

func (f *fakeActions) DecreaseQuantity(id string) bool {
	f.calls = append(f.calls, "decrease:"+id)
	return true
}

func (f *fakeActions) RemoveItem(id string) bool {
	f.calls = append(f.calls, "remove:"+id)
	return true
}

func (f *fakeActions) Checkout() bool {
	f.calls = append(f.calls, "checkout")
	return true
}

func (f *fakeActions) DismissConfirmation() {
	f.calls = append(f.calls, "dismiss")
}

func populated() cart.View {
	return cart.View{
		Phase: cart.Populated,
		Cart: cart.Cart{
			Items: []cart.Item{
				{ID: "i1", Product: cart.Product{Name: "Launch Mug"}, Quantity: 2, Price: 1500},
				{ID: "i2", Product: cart.Product{Name: "Sticker Pack"}, Quantity: 1, Price: 600},
			},
			Total: 3600,
		},
	}
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		cents int
		want  string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{1250, "$12.50"},
		{123456, "$1,234.56"},
		{-300, "-$3.00"},
	}
	for _, tt := range tests {
		if got := FormatPrice(tt.cents); got != tt.want {
			t.Errorf("FormatPrice(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestRenderShowsServerTotal(t *testing.T) {
	m := New(&fakeActions{})
	m.Width = 80
	m.SetView(populated())

	out := m.Render()
	assert.Contains(t, out, "Launch Mug")
	assert.Contains(t, out, "$36.00")
	assert.Contains(t, out, "c:checkout")
}

func TestRenderEmptyCart(t *testing.T) {
	m := New(&fakeActions{})
	m.SetView(cart.View{Phase: cart.Idle})

	out := m.Render()
	assert.Contains(t, out, "Your cart is empty.")
	assert.NotContains(t, out, "c:checkout")
}

func TestBadgeCountsUnits(t *testing.T) {
	m := New(&fakeActions{})
	m.SetView(populated())
	assert.Contains(t, m.Badge(), "3")
}

func TestBadgeAnimatesOnCountChange(t *testing.T) {
	m := New(&fakeActions{})
	cmd := m.SetView(populated())
	assert.NotNil(t, cmd)
	assert.True(t, m.animating)

	// Step the spring until it settles.
	for i := 0; i < 10*badgeFPS && m.animating; i++ {
		m, _ = m.Update(badgeFrameMsg{})
	}
	assert.False(t, m.animating)
	assert.Zero(t, m.badgePos)

	assert.Nil(t, m.SetView(populated()), "same count, no animation")
}

func TestKeysDriveActions(t *testing.T) {
	acts := &fakeActions{}
	m := New(acts)
	m.SetView(populated())

	m, _ = m.Update(keyMsg("+"))
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(keyMsg("-"))
	m, _ = m.Update(keyMsg("x"))
	m, _ = m.Update(keyMsg("c"))

	assert.Equal(t, []string{"increase:i1", "decrease:i2", "remove:i2", "checkout"}, acts.calls)
}

func TestCheckoutNeedsItems(t *testing.T) {
	acts := &fakeActions{}
	m := New(acts)
	m.SetView(cart.View{Phase: cart.Idle})

	m, _ = m.Update(keyMsg("c"))
	m, _ = m.Update(keyMsg("+"))
	assert.Empty(t, acts.calls)
}

func TestCheckingOutShowsRedirect(t *testing.T) {
	m := New(&fakeActions{})
	v := populated()
	v.Phase = cart.CheckingOut
	v.RedirectURL = "https://pay.example/s/1"
	m.SetView(v)

	out := m.Render()
	assert.Contains(t, out, "Checking out")
	assert.Contains(t, out, "https://pay.example/s/1")
}

func TestConfirmationOverlay(t *testing.T) {
	acts := &fakeActions{}
	m := New(acts)
	v := populated()
	v.Phase = cart.Completed
	v.Confirmation = true
	m.SetView(v)

	assert.Contains(t, m.Render(), "Thanks for purchasing!")

	m, _ = m.Update(keyMsg("+"))
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"dismiss"}, acts.calls, "only dismiss works while confirming")

	v.Confirmation = false
	m.SetView(v)
	out := m.Render()
	assert.False(t, strings.Contains(out, "Thanks for purchasing!"))
	assert.Contains(t, out, "Order complete")
}

func TestSummary(t *testing.T) {
	m := New(&fakeActions{})
	m.SetView(populated())
	assert.Equal(t, "populated: 3 items, $36.00", m.Summary())
}
