package mockserver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/launchcart/widgets/internal/cart"
)

var (
	ErrCartNotFound  = errors.New("cart not found")
	ErrCartCompleted = errors.New("cart already completed")
	ErrItemNotFound  = errors.New("item not found")
)

type cartRecord struct {
	id        string
	store     string
	items     []cart.Item
	version   int
	checkout  bool
	completed bool
	returnURL string
}

func (r *cartRecord) snapshot() cart.Cart {
	items := make([]cart.Item, len(r.items))
	copy(items, r.items)
	total := 0
	for _, it := range items {
		total += it.Quantity * it.Price
	}
	return cart.Cart{Items: items, Total: total}
}

// CartState is a cart as pushed to clients.
type CartState struct {
	ID      string
	Cart    cart.Cart
	Version int
}

// CartStore keeps carts in memory.
type CartStore struct {
	mu    sync.RWMutex
	carts map[string]*cartRecord
}

func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]*cartRecord)}
}

// Resume returns the cart for id when it exists, belongs to store and is
// still open; otherwise it creates a seeded cart. created reports which.
func (s *CartStore) Resume(store, id string) (st CartState, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.carts[id]; ok && r.store == store && !r.completed {
		return CartState{ID: r.id, Cart: r.snapshot(), Version: r.version}, false
	}

	r := &cartRecord{id: uuid.NewString(), store: store}
	for _, pid := range seedProducts {
		if p, ok := findProduct(pid); ok {
			r.items = append(r.items, cart.Item{ID: uuid.NewString(), Product: p.Product, Quantity: 1, Price: p.Price})
		}
	}
	s.carts[r.id] = r
	return CartState{ID: r.id, Cart: r.snapshot(), Version: r.version}, true
}

// Get returns the current state of a cart.
func (s *CartStore) Get(id string) (CartState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.carts[id]
	if !ok {
		return CartState{}, false
	}
	return CartState{ID: r.id, Cart: r.snapshot(), Version: r.version}, true
}

// Add puts one unit of a catalog product in the cart.
func (s *CartStore) Add(id, productID string) (CartState, error) {
	p, ok := findProduct(productID)
	if !ok {
		return CartState{}, fmt.Errorf("product %q: %w", productID, ErrItemNotFound)
	}
	return s.update(id, func(r *cartRecord) error {
		for i := range r.items {
			if r.items[i].Product.ID == productID {
				r.items[i].Quantity++
				return nil
			}
		}
		r.items = append(r.items, cart.Item{ID: uuid.NewString(), Product: p.Product, Quantity: 1, Price: p.Price})
		return nil
	})
}

// Remove drops a line.
func (s *CartStore) Remove(id, itemID string) (CartState, error) {
	return s.update(id, func(r *cartRecord) error {
		i := r.indexOf(itemID)
		if i < 0 {
			return ErrItemNotFound
		}
		r.items = append(r.items[:i], r.items[i+1:]...)
		return nil
	})
}

// Adjust changes a line's quantity by delta. A line reaching zero is
// removed.
func (s *CartStore) Adjust(id, itemID string, delta int) (CartState, error) {
	return s.update(id, func(r *cartRecord) error {
		i := r.indexOf(itemID)
		if i < 0 {
			return ErrItemNotFound
		}
		r.items[i].Quantity += delta
		if r.items[i].Quantity <= 0 {
			r.items = append(r.items[:i], r.items[i+1:]...)
		}
		return nil
	})
}

// Checkout records the return address and marks the cart as checking out.
func (s *CartStore) Checkout(id, returnURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.carts[id]
	if !ok {
		return ErrCartNotFound
	}
	if r.completed {
		return ErrCartCompleted
	}
	r.checkout = true
	r.returnURL = returnURL
	return nil
}

// Complete closes a cart and returns the address checkout came from.
func (s *CartStore) Complete(id string) (returnURL string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.carts[id]
	if !ok {
		return "", ErrCartNotFound
	}
	if r.completed {
		return "", ErrCartCompleted
	}
	r.completed = true
	return r.returnURL, nil
}

func (s *CartStore) update(id string, fn func(*cartRecord) error) (CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.carts[id]
	if !ok {
		return CartState{}, ErrCartNotFound
	}
	if r.completed {
		return CartState{}, ErrCartCompleted
	}
	if err := fn(r); err != nil {
		return CartState{}, err
	}
	r.version++
	return CartState{ID: r.id, Cart: r.snapshot(), Version: r.version}, nil
}

func (r *cartRecord) indexOf(itemID string) int {
	for i, it := range r.items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// Len returns the number of carts, open or completed.
func (s *CartStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.carts)
}
