package cart_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchcart/widgets/internal/cart"
	"github.com/launchcart/widgets/internal/livestate/livestatetest"
	"github.com/launchcart/widgets/internal/phx"
	"github.com/launchcart/widgets/internal/session"
)

const (
	storeID = "store-1"
	topic   = "launch_cart:store-1"
)

type fakeNav struct {
	mu      sync.Mutex
	current string
	visited []string
	err     error
}

func (n *fakeNav) Current() string { return n.current }

func (n *fakeNav) Navigate(url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visited = append(n.visited, url)
	return n.err
}

func (n *fakeNav) Visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visited...)
}

type fixture struct {
	transport *livestatetest.Transport
	sessions  *session.Store
	nav       *fakeNav
	widget    *cart.Widget
}

func newFixture(t *testing.T, sessions *session.Store) *fixture {
	t.Helper()
	if sessions == nil {
		sessions = session.NewStore(session.NewMemoryStorage(), "https://shop.example", nil)
	}
	f := &fixture{
		transport: livestatetest.New(),
		sessions:  sessions,
		nav:       &fakeNav{current: "https://shop.example/products"},
	}
	w, err := cart.New(f.transport, storeID, sessions, f.nav, nil)
	require.NoError(t, err)
	f.widget = w
	require.NoError(t, w.Connect(context.Background()))
	return f
}

func cartState(total int, items ...cart.Item) map[string]any {
	return map[string]any{"cart": cart.Cart{Items: items, Total: total}}
}

func item(id string, qty, price int) cart.Item {
	return cart.Item{
		ID:       id,
		Product:  cart.Product{ID: "p-" + id, Name: "Product " + id},
		Quantity: qty,
		Price:    price,
	}
}

func TestNew_Validation(t *testing.T) {
	sessions := session.NewStore(session.NewMemoryStorage(), "", nil)
	nav := &fakeNav{}
	tr := livestatetest.New()

	tests := []struct {
		name     string
		storeID  string
		sessions *session.Store
		nav      cart.Navigator
	}{
		{"empty store", "", sessions, nav},
		{"nil sessions", storeID, nil, nav},
		{"nil navigator", storeID, sessions, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cart.New(tr, tt.storeID, tt.sessions, tt.nav, nil)
			assert.Error(t, err)
		})
	}
}

func TestWidget_TopicAndInitialView(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, topic, f.widget.Topic())

	v := f.widget.View()
	assert.Equal(t, cart.Idle, v.Phase)
	assert.Zero(t, v.ItemCount())
	assert.False(t, v.Confirmation)
}

func TestWidget_TotalFollowsLatestSnapshot(t *testing.T) {
	f := newFixture(t, nil)

	f.transport.State(topic, cartState(2000, item("a", 2, 1000)), 1)
	require.True(t, f.widget.IncreaseQuantity("a"))

	// The intent alone never changes the view.
	v := f.widget.View()
	assert.Equal(t, 2000, v.Cart.Total)
	assert.Equal(t, 2, v.ItemCount())

	f.transport.State(topic, cartState(3000, item("a", 3, 1000)), 2)
	require.True(t, f.widget.DecreaseQuantity("a"))
	require.True(t, f.widget.RemoveItem("a"))
	f.transport.State(topic, cartState(0), 3)

	v = f.widget.View()
	assert.Equal(t, 0, v.Cart.Total)
	assert.Equal(t, cart.Idle, v.Phase)

	pushes := f.transport.Pushes(topic)
	require.Len(t, pushes, 3)
	assert.Equal(t, "lvs_evt:increase_quantity", pushes[0].Event)
	assert.Equal(t, "lvs_evt:decrease_quantity", pushes[1].Event)
	assert.Equal(t, "lvs_evt:remove_cart_item", pushes[2].Event)
	assert.JSONEq(t, `{"item_id":"a"}`, string(pushes[0].Payload))
}

func TestWidget_ServerTotalIsNotRecomputed(t *testing.T) {
	f := newFixture(t, nil)
	// A discounted total that does not equal the sum of the lines.
	f.transport.State(topic, cartState(1500, item("a", 2, 1000)), 1)
	assert.Equal(t, 1500, f.widget.View().Cart.Total)
}

func TestWidget_LaterSnapshotDropsLines(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.State(topic, cartState(4500, item("a", 2, 1000), item("b", 1, 2500)), 1)
	f.transport.State(topic, cartState(2500, item("b", 1, 2500)), 2)

	v := f.widget.View()
	require.Len(t, v.Cart.Items, 1)
	assert.Equal(t, "b", v.Cart.Items[0].ID)
	assert.Equal(t, 2500, v.Cart.Total)
	assert.Equal(t, 1, v.ItemCount())
}

func TestWidget_ItemCountSumsQuantities(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.State(topic, cartState(4500, item("a", 2, 1000), item("b", 1, 2500)), 1)

	v := f.widget.View()
	assert.Equal(t, cart.Populated, v.Phase)
	assert.Equal(t, 3, v.ItemCount())
}

func TestWidget_CheckoutLatch(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.State(topic, cartState(1000, item("a", 1, 1000)), 1)

	assert.True(t, f.widget.Checkout())
	assert.False(t, f.widget.Checkout())
	assert.Equal(t, cart.CheckingOut, f.widget.View().Phase)

	pushes := f.transport.Pushes(topic, "lvs_evt:checkout")
	require.Len(t, pushes, 1)
	assert.JSONEq(t, `{"return_url":"https://shop.example/products"}`, string(pushes[0].Payload))
}

func TestWidget_ConcurrentCheckoutSendsOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.State(topic, cartState(1000, item("a", 1, 1000)), 1)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.widget.Checkout()
		}()
	}
	wg.Wait()
	assert.Len(t, f.transport.Pushes(topic, "lvs_evt:checkout"), 1)
}

func TestWidget_CheckoutWhileNotJoinedReleasesLatch(t *testing.T) {
	tr := livestatetest.New()
	tr.Manual = true
	sessions := session.NewStore(session.NewMemoryStorage(), "", nil)
	w, err := cart.New(tr, storeID, sessions, &fakeNav{}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Connect(context.Background()))

	assert.False(t, w.Checkout())
	assert.NotEqual(t, cart.CheckingOut, w.View().Phase)

	tr.Ack(topic)
	assert.True(t, w.Checkout())
	assert.Len(t, tr.Pushes(topic, "lvs_evt:checkout"), 1)
}

func TestWidget_RedirectNavigates(t *testing.T) {
	f := newFixture(t, nil)
	require.True(t, f.widget.Checkout())

	f.transport.Deliver(topic, cart.EventCheckoutRedirect, map[string]string{"checkout_url": "https://pay.example/s/1"})

	assert.Equal(t, []string{"https://pay.example/s/1"}, f.nav.Visited())
	assert.Equal(t, "https://pay.example/s/1", f.widget.View().RedirectURL)
}

func TestWidget_RedirectWithoutURLIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Deliver(topic, cart.EventCheckoutRedirect, map[string]string{})
	assert.Empty(t, f.nav.Visited())
}

func TestWidget_FailedNavigationReleasesLatch(t *testing.T) {
	f := newFixture(t, nil)
	f.nav.err = errors.New("no browser")
	require.True(t, f.widget.Checkout())

	f.transport.Deliver(topic, cart.EventCheckoutRedirect, map[string]string{"checkout_url": "https://pay.example/s/1"})

	assert.True(t, f.widget.Checkout(), "user can retry")
}

func TestWidget_CartCreatedPersistsAndResumes(t *testing.T) {
	sessions := session.NewStore(session.NewMemoryStorage(), "https://shop.example", nil)

	first := newFixture(t, sessions)
	assert.NotContains(t, first.transport.Joins()[0].Params, "cart_id", "no cart id before one is created")

	first.transport.Deliver(topic, cart.EventCartCreated, map[string]string{"cart_id": "abc123"})
	id, ok := sessions.Get(session.CartKey)
	require.True(t, ok)
	assert.Equal(t, "abc123", id)
	require.NoError(t, first.widget.Close())

	second := newFixture(t, sessions)
	joins := second.transport.Joins()
	require.Len(t, joins, 1)
	assert.Equal(t, phx.Params{"cart_id": "abc123"}, joins[0].Params)
}

func TestWidget_RejoinUsesCartCreatedMidSession(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Deliver(topic, cart.EventCartCreated, map[string]string{"cart_id": "abc123"})

	f.transport.Reconnect(topic)

	joins := f.transport.Joins()
	require.Len(t, joins, 2)
	assert.Equal(t, "abc123", joins[1].Params["cart_id"])
}

func TestWidget_CheckoutCompleteClearsSession(t *testing.T) {
	sessions := session.NewStore(session.NewMemoryStorage(), "", nil)
	require.NoError(t, sessions.Set(session.CartKey, "abc123"))

	f := newFixture(t, sessions)
	assert.Equal(t, "abc123", f.transport.Joins()[0].Params["cart_id"])
	f.transport.State(topic, cartState(1000, item("a", 1, 1000)), 1)
	require.True(t, f.widget.Checkout())

	f.transport.Deliver(topic, cart.EventCheckoutComplete, map[string]any{})

	_, ok := sessions.Get(session.CartKey)
	assert.False(t, ok)

	v := f.widget.View()
	assert.Equal(t, cart.Completed, v.Phase)
	assert.True(t, v.Confirmation)

	require.NoError(t, f.widget.Close())
	next := newFixture(t, sessions)
	assert.NotContains(t, next.transport.Joins()[0].Params, "cart_id")
}

func TestWidget_CompletedBlocksIntents(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.State(topic, cartState(1000, item("a", 1, 1000)), 1)
	f.transport.Deliver(topic, cart.EventCheckoutComplete, map[string]any{})

	assert.False(t, f.widget.Checkout())
	assert.False(t, f.widget.IncreaseQuantity("a"))
	assert.Empty(t, f.transport.Pushes(topic))
}

func TestWidget_DismissConfirmation(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Deliver(topic, cart.EventCheckoutComplete, map[string]any{})

	var views []cart.View
	f.widget.OnChange(func(v cart.View) { views = append(views, v) })

	f.widget.DismissConfirmation()
	f.widget.DismissConfirmation()

	require.Len(t, views, 1, "a second dismiss is a no-op")
	assert.False(t, views[0].Confirmation)
	assert.Equal(t, cart.Completed, views[0].Phase)
}

func TestWidget_OnChangeAfterEverySnapshot(t *testing.T) {
	f := newFixture(t, nil)

	var totals []int
	unsubscribe := f.widget.OnChange(func(v cart.View) { totals = append(totals, v.Cart.Total) })

	f.transport.State(topic, cartState(1000, item("a", 1, 1000)), 1)
	f.transport.State(topic, cartState(2000, item("a", 2, 1000)), 2)
	unsubscribe()
	f.transport.State(topic, cartState(3000, item("a", 3, 1000)), 3)

	assert.Equal(t, []int{1000, 2000}, totals)
}

func TestWidget_SnapshotWithoutCartEmpties(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.State(topic, cartState(1000, item("a", 1, 1000)), 1)
	f.transport.State(topic, map[string]any{}, 2)

	v := f.widget.View()
	assert.Empty(t, v.Cart.Items)
	assert.Zero(t, v.Cart.Total)
}

func TestWidget_IgnoresUndeclaredProperties(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Deliver(topic, "state:change", map[string]any{
		"state":   map[string]any{"cart": cart.Cart{Total: 500}, "secret": "x"},
		"version": 1,
	})
	assert.Equal(t, 500, f.widget.View().Cart.Total)
}

func TestCart_DecodesServerShape(t *testing.T) {
	raw := `{"items":[{"id":"i1","product":{"id":"p1","name":"Mug","description":"Blue","images":["https://img/1.png"]},"quantity":2,"price":1250}],"total":2500}`
	var c cart.Cart
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	assert.Equal(t, 2, c.ItemCount())
	assert.Equal(t, "Mug", c.Items[0].Product.Name)
	assert.Equal(t, []string{"https://img/1.png"}, c.Items[0].Product.Images)
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase cart.Phase
		want  string
	}{
		{cart.Idle, "idle"},
		{cart.Populated, "populated"},
		{cart.CheckingOut, "checking out"},
		{cart.Completed, "completed"},
		{cart.Phase(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}
