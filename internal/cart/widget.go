// Package cart is the cart widget: a read-only mirror of the server cart
// that turns user actions into intents and keeps the cart's session id
// across restarts.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/launchcart/widgets/internal/livestate"
	"github.com/launchcart/widgets/internal/phx"
	"github.com/launchcart/widgets/internal/session"
)

// Outbound intents.
const (
	IntentCheckout   = "checkout"
	IntentRemoveItem = "remove_cart_item"
	IntentIncrease   = "increase_quantity"
	IntentDecrease   = "decrease_quantity"
)

// Inbound notifications.
const (
	EventCheckoutRedirect = "checkout_redirect"
	EventCartCreated      = "cart_created"
	EventCheckoutComplete = "checkout_complete"
)

// StateName is the name the cart's shared state is provided under.
const StateName = "cartState"

// Navigator performs a full navigation of the host away from the widget.
type Navigator interface {
	// Current is the address the server should send the user back to.
	Current() string
	Navigate(url string) error
}

// Topic returns the channel address for a store's cart.
func Topic(storeID string) string {
	return "launch_cart:" + storeID
}

// Config is the sync declaration of a cart. The join params carry the
// persisted cart id, read on every join, so a restart or reconnect resumes
// the same cart.
func Config(storeID string, sessions *session.Store) livestate.Config {
	return livestate.Config{
		Topic: Topic(storeID),
		Params: func() phx.Params {
			p := phx.Params{}
			if id, ok := sessions.Get(session.CartKey); ok {
				p["cart_id"] = id
			}
			return p
		},
		Sends:      []string{IntentCheckout, IntentRemoveItem, IntentIncrease, IntentDecrease},
		Receives:   []string{EventCheckoutRedirect, EventCartCreated, EventCheckoutComplete},
		Properties: []string{"cart"},
	}
}

// Widget holds the cart mirror and the checkout latch.
type Widget struct {
	client   *livestate.Client[Snapshot]
	sessions *session.Store
	nav      Navigator
	log      *slog.Logger

	mu           sync.Mutex
	cart         Cart
	checkingOut  bool
	completed    bool
	confirmation bool
	redirect     string

	changes livestate.Listeners[View]
	unsubs  []func()
}

// New builds a cart widget for storeID on transport t.
func New(t livestate.Transport, storeID string, sessions *session.Store, nav Navigator, logger *slog.Logger) (*Widget, error) {
	if storeID == "" {
		return nil, errors.New("cart: empty store id")
	}
	if sessions == nil {
		return nil, errors.New("cart: nil session store")
	}
	if nav == nil {
		return nil, errors.New("cart: nil navigator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("widget", "cart", "store", storeID)

	client, err := livestate.New[Snapshot](t, Config(storeID, sessions), logger)
	if err != nil {
		return nil, err
	}
	w := &Widget{
		client:   client,
		sessions: sessions,
		nav:      nav,
		log:      logger,
	}
	w.unsubs = []func(){
		client.OnSnapshot(w.applySnapshot),
		client.OnEvent(EventCheckoutRedirect, w.handleRedirect),
		client.OnEvent(EventCartCreated, w.handleCreated),
		client.OnEvent(EventCheckoutComplete, w.handleComplete),
	}
	return w, nil
}

// Connect joins the cart topic. Safe to call repeatedly.
func (w *Widget) Connect(ctx context.Context) error {
	return w.client.Connect(ctx)
}

// Close unsubscribes and leaves the topic.
func (w *Widget) Close() error {
	for _, u := range w.unsubs {
		u()
	}
	return w.client.Close()
}

// Topic returns the bound channel address.
func (w *Widget) Topic() string { return w.client.Topic() }

// Status is the subscription status of the cart topic.
func (w *Widget) Status() phx.Status { return w.client.Status() }

// OnStatus registers a handler for subscription status changes.
func (w *Widget) OnStatus(fn func(livestate.StatusChange)) (unsubscribe func()) {
	return w.client.OnStatus(fn)
}

// OnChange registers a handler called with the new view after every change.
func (w *Widget) OnChange(fn func(View)) (unsubscribe func()) {
	return w.changes.Add(fn)
}

// View returns the current view.
func (w *Widget) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

func (w *Widget) viewLocked() View {
	phase := Idle
	switch {
	case w.completed:
		phase = Completed
	case w.checkingOut:
		phase = CheckingOut
	case len(w.cart.Items) > 0:
		phase = Populated
	}
	return View{
		Phase:        phase,
		Cart:         w.cart,
		Confirmation: w.confirmation,
		RedirectURL:  w.redirect,
	}
}

func (w *Widget) emit() {
	w.changes.Emit(w.View())
}

// RemoveItem asks the server to drop a line.
func (w *Widget) RemoveItem(itemID string) bool {
	return w.itemIntent(IntentRemoveItem, itemID)
}

// IncreaseQuantity asks the server to add one unit to a line.
func (w *Widget) IncreaseQuantity(itemID string) bool {
	return w.itemIntent(IntentIncrease, itemID)
}

// DecreaseQuantity asks the server to take one unit off a line.
func (w *Widget) DecreaseQuantity(itemID string) bool {
	return w.itemIntent(IntentDecrease, itemID)
}

// itemIntent never touches the local cart: the view changes only when the
// server pushes the resulting state.
func (w *Widget) itemIntent(intent, itemID string) bool {
	w.mu.Lock()
	completed := w.completed
	w.mu.Unlock()
	if completed {
		w.log.Debug("cart completed, ignoring intent", "intent", intent)
		return false
	}
	return w.client.Send(intent, map[string]string{"item_id": itemID})
}

// Checkout sends the checkout intent once. Further calls are no-ops until
// the server answers with a terminal push. An intent dropped because the
// topic is not joined releases the latch so the user can retry.
func (w *Widget) Checkout() bool {
	w.mu.Lock()
	if w.checkingOut || w.completed {
		w.mu.Unlock()
		return false
	}
	w.checkingOut = true
	w.mu.Unlock()

	if !w.client.Send(IntentCheckout, map[string]string{"return_url": w.nav.Current()}) {
		w.mu.Lock()
		w.checkingOut = false
		w.mu.Unlock()
		return false
	}
	w.emit()
	return true
}

// DismissConfirmation closes the purchase confirmation.
func (w *Widget) DismissConfirmation() {
	w.mu.Lock()
	changed := w.confirmation
	w.confirmation = false
	w.mu.Unlock()
	if changed {
		w.emit()
	}
}

func (w *Widget) applySnapshot(s Snapshot) {
	w.mu.Lock()
	if s.Cart != nil {
		w.cart = *s.Cart
	} else {
		w.cart = Cart{}
	}
	w.mu.Unlock()
	w.emit()
}

func (w *Widget) handleRedirect(payload json.RawMessage) {
	var p struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.CheckoutURL == "" {
		w.log.Warn("checkout redirect without url", "payload", string(payload))
		return
	}

	w.mu.Lock()
	w.redirect = p.CheckoutURL
	w.mu.Unlock()

	w.log.Info("redirecting to checkout", "url", p.CheckoutURL)
	if err := w.nav.Navigate(p.CheckoutURL); err != nil {
		w.log.Error("navigation failed", "url", p.CheckoutURL, "error", err)
		w.mu.Lock()
		w.checkingOut = false
		w.mu.Unlock()
	}
	w.emit()
}

func (w *Widget) handleCreated(payload json.RawMessage) {
	var p struct {
		CartID string `json:"cart_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.CartID == "" {
		w.log.Warn("cart created without id", "payload", string(payload))
		return
	}
	if err := w.sessions.Set(session.CartKey, p.CartID); err != nil {
		w.log.Error("persisting cart id", "error", err)
		return
	}
	w.log.Info("cart created", "cart_id", p.CartID)
}

func (w *Widget) handleComplete(json.RawMessage) {
	w.mu.Lock()
	w.completed = true
	w.checkingOut = false
	w.confirmation = true
	w.mu.Unlock()

	// The session is spent and must not be resumed.
	if err := w.sessions.Clear(session.CartKey); err != nil {
		w.log.Error("clearing cart id", "error", err)
	}
	w.log.Info("checkout complete")
	w.emit()
}
