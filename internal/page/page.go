// Package page wires widgets to one shared socket, session store and
// navigator, and holds the state they provide to other consumers.
package page

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/launchcart/widgets/internal/cart"
	"github.com/launchcart/widgets/internal/config"
	"github.com/launchcart/widgets/internal/form"
	"github.com/launchcart/widgets/internal/livestate"
	"github.com/launchcart/widgets/internal/phx"
	"github.com/launchcart/widgets/internal/session"
)

var ErrClosed = errors.New("page: closed")

// Deps overrides what New would otherwise build from the config.
type Deps struct {
	Transport livestate.Transport
	Storage   session.Storage
	Navigator Navigator
	Logger    *slog.Logger
}

// Page owns everything the widgets on one host page share. It is created at
// startup and torn down by Close.
type Page struct {
	cfg       *config.Config
	log       *slog.Logger
	socket    *phx.Socket
	transport livestate.Transport
	sessions  *session.Store
	nav       Navigator

	mu       sync.Mutex
	closed   bool
	carts    map[string]*cart.Widget
	forms    map[string]*form.Widget
	provided map[string]any
}

// New builds a page from cfg. Anything set in deps is used as is.
func New(cfg *config.Config, deps Deps) (*Page, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Page{
		cfg:       cfg,
		log:       logger,
		transport: deps.Transport,
		nav:       deps.Navigator,
		carts:     make(map[string]*cart.Widget),
		forms:     make(map[string]*form.Widget),
		provided:  make(map[string]any),
	}

	if p.transport == nil {
		s, err := phx.NewSocket(cfg.Socket.URL, phx.Options{
			ReconnectBaseDelay:   cfg.Socket.ReconnectBaseDelay,
			ReconnectMaxDelay:    cfg.Socket.ReconnectMaxDelay,
			MaxReconnectAttempts: cfg.Socket.MaxReconnectAttempts,
			HeartbeatInterval:    cfg.Socket.HeartbeatInterval,
			Logger:               logger,
		})
		if err != nil {
			return nil, err
		}
		p.socket = s
		p.transport = s
	}

	storage := deps.Storage
	if storage == nil {
		var err error
		storage, err = OpenStorage(cfg.Session)
		if err != nil {
			if p.socket != nil {
				p.socket.Close()
			}
			return nil, err
		}
	}
	p.sessions = session.NewStore(storage, cfg.Origin(), logger)

	if p.nav == nil {
		p.nav = NewBrowser(cfg.Widgets.PageURL)
	}
	return p, nil
}

// OpenStorage opens the configured session backend.
func OpenStorage(cfg config.SessionConfig) (session.Storage, error) {
	dir := cfg.StateDir
	if dir == "" {
		dir = session.DefaultDir()
	}
	switch cfg.Storage {
	case config.StorageFile, "":
		return session.NewFileStorage(dir), nil
	case config.StorageSQLite:
		return session.OpenSQLite(filepath.Join(dir, "sessions.db"))
	case config.StorageMemory:
		return session.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown session storage %q", cfg.Storage)
	}
}

// Sessions is the page's session store.
func (p *Page) Sessions() *session.Store { return p.sessions }

// Navigator is the page's navigator.
func (p *Page) Navigator() Navigator { return p.nav }

// Socket is the shared socket, or nil when a transport was injected.
func (p *Page) Socket() *phx.Socket { return p.socket }

// Cart returns the cart widget for storeID, creating it on first use and
// connecting it on every call. The widget is provided under cart.StateName.
func (p *Page) Cart(ctx context.Context, storeID string) (*cart.Widget, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if w, ok := p.carts[storeID]; ok {
		p.mu.Unlock()
		// A no-op while subscribed; retries a join that failed earlier.
		if err := w.Connect(ctx); err != nil {
			return w, err
		}
		return w, nil
	}
	w, err := cart.New(p.transport, storeID, p.sessions, p.nav, p.log)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.carts[storeID] = w
	p.provided[cart.StateName] = w
	p.mu.Unlock()

	if err := w.Connect(ctx); err != nil {
		return w, err
	}
	return w, nil
}

// Form returns the form widget for formID, creating it on first use and
// connecting it on every call. The widget is provided under form.StateName.
func (p *Page) Form(ctx context.Context, formID string) (*form.Widget, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if w, ok := p.forms[formID]; ok {
		p.mu.Unlock()
		// A no-op while subscribed; retries a join that failed earlier.
		if err := w.Connect(ctx); err != nil {
			return w, err
		}
		return w, nil
	}
	w, err := form.New(p.transport, formID, p.log)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.forms[formID] = w
	p.provided[form.StateName] = w
	p.mu.Unlock()

	if err := w.Connect(ctx); err != nil {
		return w, err
	}
	return w, nil
}

// Provide makes v available to other consumers under name.
func (p *Page) Provide(name string, v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.provided[name] = v
}

// Lookup returns what was provided under name.
func (p *Page) Lookup(name string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.provided[name]
	return v, ok
}

// Close leaves every topic, then closes the socket and the session store.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	carts, forms := p.carts, p.forms
	p.carts, p.forms = nil, nil
	p.provided = make(map[string]any)
	p.mu.Unlock()

	var errs []error
	for _, w := range carts {
		errs = append(errs, w.Close())
	}
	for _, w := range forms {
		errs = append(errs, w.Close())
	}
	if p.socket != nil {
		errs = append(errs, p.socket.Close())
	}
	errs = append(errs, p.sessions.Close())
	return errors.Join(errs...)
}
