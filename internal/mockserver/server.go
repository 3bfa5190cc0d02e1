// Package mockserver is a development backend that speaks the Phoenix
// channel and LiveState protocols the widgets expect.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/launchcart/widgets/internal/phx"
)

// Options tunes the mock server.
type Options struct {
	// Patches sends cart updates as state:patch instead of state:change.
	Patches bool
	Logger  *slog.Logger
}

type Server struct {
	carts   *CartStore
	forms   *FormStore
	hub     *Hub
	patches bool
	log     *slog.Logger

	upgrader websocket.Upgrader
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mockserver")
	return &Server{
		carts:   NewCartStore(),
		forms:   NewFormStore(),
		hub:     NewHub(logger),
		patches: opts.Patches,
		log:     logger,
		upgrader: websocket.Upgrader{
			// Widgets run from any origin in development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Carts exposes the cart store.
func (s *Server) Carts() *CartStore { return s.carts }

// Forms exposes the form store.
func (s *Server) Forms() *FormStore { return s.forms }

// Hub exposes the connection hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": s.hub.ClientCount()})
	})
	r.Get("/socket/websocket", s.handleWS)
	r.Get("/api/catalog", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Catalog())
	})
	r.Route("/checkout/{cartID}", func(r chi.Router) {
		r.Get("/", s.handleCheckoutPage)
		r.Post("/complete", s.handleCheckoutComplete)
	})
	r.Post("/forms/{formID}/reset", s.handleFormReset)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade error", "error", err)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	c := s.hub.add(conn, scheme+"://"+r.Host)
	s.log.Info("client connected", "remote", r.RemoteAddr)

	go func() {
		defer func() {
			s.hub.remove(c)
			s.log.Info("client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg phx.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				s.log.Debug("dropping malformed frame", "error", err)
				continue
			}
			s.handleFrame(c, msg)
		}
	}()
}

var checkoutPage = template.Must(template.New("checkout").Funcs(template.FuncMap{"cents": formatCents}).Parse(`<!doctype html>
<html><head><title>Checkout</title></head>
<body>
<h1>Checkout</h1>
<table>
{{range .Cart.Items}}<tr><td>{{.Product.Name}}</td><td>{{.Quantity}}</td><td>{{cents .Price}}</td></tr>
{{end}}</table>
<p>Total: {{cents .Cart.Total}}</p>
<form method="post" action="/checkout/{{.ID}}/complete"><button type="submit">Pay</button></form>
</body></html>
`))

func formatCents(c int) string {
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}

func (s *Server) handleCheckoutPage(w http.ResponseWriter, r *http.Request) {
	st, ok := s.carts.Get(chi.URLParam(r, "cartID"))
	if !ok {
		http.Error(w, "cart not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := checkoutPage.Execute(w, st); err != nil {
		s.log.Error("render checkout", "error", err)
	}
}

// handleCheckoutComplete plays the payment provider calling back: the cart
// is closed and every widget following it is told.
func (s *Server) handleCheckoutComplete(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartID")
	returnURL, err := s.carts.Complete(cartID)
	switch {
	case errors.Is(err, ErrCartNotFound):
		http.Error(w, "cart not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrCartCompleted):
		http.Error(w, "cart already completed", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.log.Info("checkout complete", "cart_id", cartID)
	s.hub.broadcastCart(cartID, func(*subscription) (string, any) {
		return "checkout_complete", map[string]string{"cart_id": cartID}
	})

	if returnURL != "" && strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, returnURL, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "complete", "cart_id": cartID})
}

// handleFormReset reopens a completed form for everyone following it.
func (s *Server) handleFormReset(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "formID")
	st := s.forms.Reset(formID)
	s.log.Info("form reset", "form", formID)
	s.broadcastFormState(formID, st)
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves the mock backend on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("mock server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
