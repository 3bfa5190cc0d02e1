package app

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/launchcart/widgets/internal/cart"
	"github.com/launchcart/widgets/internal/form"
	"github.com/launchcart/widgets/internal/livestate/livestatetest"
	"github.com/launchcart/widgets/internal/phx"
	"github.com/launchcart/widgets/internal/session"
	"github.com/launchcart/widgets/internal/views/debug"
	"github.com/launchcart/widgets/internal/views/formview"
)

const (
	cartTopic = "launch_cart:store-1"
	formTopic = "launch_form:newsletter"
)

type stubNav struct{}

func (stubNav) Current() string       { return "https://shop.example/" }
func (stubNav) Navigate(string) error { return nil }

type fixture struct {
	transport *livestatetest.Transport
	events    *Events
	model     tea.Model
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tr := livestatetest.New()
	sessions := session.NewStore(session.NewMemoryStorage(), "https://shop.example", nil)

	c, err := cart.New(tr, "store-1", sessions, stubNav{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	f, err := form.New(tr, "newsletter", nil)
	if err != nil {
		t.Fatal(err)
	}

	events := NewEvents()
	t.Cleanup(events.Stop)
	m := New(events, c, f, Options{
		Socket:     "ws://test/socket",
		FormFields: []string{"name", "email"},
		Renderer:   formview.NewResultRenderer("notty"),
	})

	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	fx := &fixture{transport: tr, events: events}
	fx.model, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	fx.drain()
	return fx
}

// drain applies every queued widget event.
func (f *fixture) drain() {
	for {
		select {
		case msg := <-f.events.ch:
			f.model, _ = f.model.Update(msg)
		default:
			return
		}
	}
}

func (f *fixture) key(s string) tea.Cmd {
	var msg tea.KeyMsg
	switch s {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "ctrl+c":
		msg = tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
	var cmd tea.Cmd
	f.model, cmd = f.model.Update(msg)
	return cmd
}

func (f *fixture) root() Model { return f.model.(Model) }

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestInitializing(t *testing.T) {
	m := New(NewEvents(), nil, nil, Options{})
	if got := m.View(); got != "Initializing..." {
		t.Errorf("View() = %q, want Initializing...", got)
	}
}

func TestStatusBarShowsJoinedTopics(t *testing.T) {
	f := newFixture(t)
	sb := f.root().statusBar
	if !sb.Connected() {
		t.Errorf("status bar should be connected, topics = %v", sb.Topics)
	}
	v := f.model.View()
	for _, want := range []string{cartTopic, formTopic, "ws://test/socket"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestCartStateReachesView(t *testing.T) {
	f := newFixture(t)
	f.transport.State(cartTopic, map[string]any{"cart": cart.Cart{
		Items: []cart.Item{{ID: "i1", Product: cart.Product{Name: "Enamel Mug"}, Quantity: 2, Price: 1500}},
		Total: 3000,
	}}, 1)
	f.drain()

	if got := f.root().statusBar.ItemCount; got != 2 {
		t.Errorf("ItemCount = %d, want 2", got)
	}
	v := f.model.View()
	if !strings.Contains(v, "Enamel Mug") {
		t.Error("view should list the cart line")
	}
	if !strings.Contains(v, "$30.00") {
		t.Error("view should show the server total")
	}
}

func TestDisconnectBanner(t *testing.T) {
	f := newFixture(t)
	f.transport.SetStatus(cartTopic, phx.StatusDisconnected, nil)
	f.drain()

	v := f.model.View()
	if !strings.Contains(v, "DISCONNECTED") {
		t.Error("banner should contain 'DISCONNECTED'")
	}
	if !strings.Contains(v, "Reconnecting") {
		t.Error("banner should contain 'Reconnecting'")
	}

	f.transport.Ack(cartTopic)
	f.drain()
	if strings.Contains(f.model.View(), "DISCONNECTED") {
		t.Error("banner should clear after rejoin")
	}
}

func TestTabSwitchesPanel(t *testing.T) {
	f := newFixture(t)
	if f.root().Focus() != PanelCart {
		t.Fatal("cart panel should start focused")
	}
	f.key("tab")
	if f.root().Focus() != PanelForm {
		t.Fatal("tab should focus the form")
	}
	f.key("esc")
	if f.root().Focus() != PanelCart {
		t.Fatal("esc should return to the cart")
	}
}

func TestQuitKeys(t *testing.T) {
	f := newFixture(t)
	if !isQuit(f.key("q")) {
		t.Error("q on the cart panel should quit")
	}

	f = newFixture(t)
	f.key("tab")
	if isQuit(f.key("q")) {
		t.Error("q while typing in the form should not quit")
	}
	if !isQuit(f.key("ctrl+c")) {
		t.Error("ctrl+c should always quit")
	}
}

func TestFormSubmitFromPanel(t *testing.T) {
	f := newFixture(t)
	f.key("tab")
	f.key("Ada")
	f.key("enter")

	pushes := f.transport.Pushes(formTopic, "lvs_evt:"+form.IntentSubmit)
	if len(pushes) != 1 {
		t.Fatalf("got %d submit pushes, want 1", len(pushes))
	}
	if !strings.Contains(string(pushes[0].Payload), `"Ada"`) {
		t.Errorf("payload %s should carry the typed name", pushes[0].Payload)
	}
}

func TestFormErrorShown(t *testing.T) {
	f := newFixture(t)
	f.transport.Deliver(formTopic, "livestate-error", map[string]string{"type": "validation", "message": "email is invalid"})
	f.drain()

	if !strings.Contains(f.model.View(), "email is invalid") {
		t.Error("form panel should show the server error")
	}
}

func TestFormCompletionShown(t *testing.T) {
	f := newFixture(t)
	f.transport.State(formTopic, map[string]any{"complete": true, "result": "<p>Welcome aboard</p>"}, 1)
	f.drain()

	v := f.model.View()
	if !strings.Contains(v, "Welcome aboard") {
		t.Error("completion message should replace the form")
	}
	if strings.Contains(v, "<p>") {
		t.Error("completion message should be rendered, not raw html")
	}
}

func TestDebugOverlay(t *testing.T) {
	f := newFixture(t)
	f.events.Log(debug.Entry{Level: slog.LevelInfo, Source: "phx", Message: "heartbeat ok"})
	f.drain()

	f.key("d")
	if f.root().Overlay() != OverlayDebug {
		t.Fatal("d should open the debug overlay")
	}
	v := f.model.View()
	if !strings.Contains(v, "DEBUG LOG") || !strings.Contains(v, "heartbeat ok") {
		t.Error("debug overlay should list mirrored log entries")
	}

	f.key("l")
	f.key("l")
	if v := f.model.View(); strings.Contains(v, "heartbeat ok") {
		t.Error("raising the level filter to warn should hide info entries")
	}

	f.key("esc")
	if f.root().Overlay() != OverlayNone {
		t.Error("esc should close the overlay")
	}
}

func TestEventsStopReleasesWait(t *testing.T) {
	e := NewEvents()
	e.Stop()
	if msg := e.Wait()(); msg != nil {
		t.Errorf("Wait after Stop = %v, want nil", msg)
	}
	e.Send(CartChangedMsg{})
}
