// Package livestate mirrors one server-owned state topic into a local,
// read-only snapshot and forwards named intents back to the server.
//
// The server is the only writer. Every push replaces the snapshot wholesale:
// subscribers only ever see complete states, applied in arrival order.
package livestate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/launchcart/widgets/internal/phx"
)

// Wire events used by LiveState channels.
const (
	EventStateChange = "state:change"
	EventStatePatch  = "state:patch"
	EventRefresh     = "lvs_refresh"
	// EventError is delivered for server-side validation failures and for
	// refused joins.
	EventError = "livestate-error"

	intentPrefix = "lvs_evt:"
)

// Transport is the narrow channel contract the client depends on.
// *phx.Socket satisfies it.
type Transport interface {
	Join(ctx context.Context, topic string, params phx.ParamsFunc, h phx.Handler) error
	Push(topic, event string, payload any) error
	Leave(topic string) error
}

// Config declares what a client may send and what it listens for.
type Config struct {
	Topic string
	// Params is evaluated on every join, including rejoins after a
	// reconnect, so values persisted mid-session are picked up.
	Params phx.ParamsFunc
	// Sends lists the outbound intent names. Anything else is dropped.
	Sends []string
	// Receives lists the one-shot notification names delivered to OnEvent.
	Receives []string
	// Properties lists the top-level state keys decoded into the snapshot.
	// Empty means all keys.
	Properties []string
}

// StatusChange is reported to OnStatus subscribers.
type StatusChange struct {
	Status phx.Status
	Err    error
}

// Client binds one topic to a snapshot of type T.
type Client[T any] struct {
	cfg       Config
	transport Transport
	log       *slog.Logger
	sends     map[string]bool
	receives  map[string]bool
	props     map[string]bool

	mu       sync.Mutex
	started  bool
	status   phx.Status
	raw      []byte
	version  int
	snapshot T
	has      bool

	snapshots Listeners[T]
	statuses  Listeners[StatusChange]

	eventsMu sync.Mutex
	events   map[string]*Listeners[json.RawMessage]
}

// New creates a client for cfg.Topic. Nothing is sent until Connect.
func New[T any](t Transport, cfg Config, logger *slog.Logger) (*Client[T], error) {
	if t == nil {
		return nil, errors.New("livestate: nil transport")
	}
	if cfg.Topic == "" {
		return nil, errors.New("livestate: empty topic")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client[T]{
		cfg:       cfg,
		transport: t,
		log:       logger.With("topic", cfg.Topic),
		sends:     set(cfg.Sends),
		receives:  set(cfg.Receives),
		props:     set(cfg.Properties),
		events:    make(map[string]*Listeners[json.RawMessage]),
	}, nil
}

func set(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Topic returns the bound topic address.
func (c *Client[T]) Topic() string { return c.cfg.Topic }

// Connect subscribes to the topic. While a subscription is live (joined,
// joining or reconnecting) further calls are no-ops.
func (c *Client[T]) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.status = phx.StatusJoining
	c.mu.Unlock()
	c.statuses.Emit(StatusChange{Status: phx.StatusJoining})

	if err := c.transport.Join(ctx, c.cfg.Topic, c.cfg.Params, c); err != nil {
		c.mu.Lock()
		c.started = false
		c.status = phx.StatusIdle
		c.mu.Unlock()
		c.statuses.Emit(StatusChange{Status: phx.StatusIdle, Err: err})
		return fmt.Errorf("livestate: join %s: %w", c.cfg.Topic, err)
	}
	return nil
}

// Close leaves the topic. The last snapshot stays readable.
func (c *Client[T]) Close() error {
	c.mu.Lock()
	wasStarted := c.started
	c.started = false
	c.status = phx.StatusClosed
	c.mu.Unlock()
	if !wasStarted {
		return nil
	}
	return c.transport.Leave(c.cfg.Topic)
}

// Send forwards an intent. It reports whether the intent went out: intents
// that are undeclared, or sent while the topic is not joined, are dropped.
func (c *Client[T]) Send(event string, payload any) bool {
	if !c.sends[event] {
		c.log.Warn("dropping undeclared intent", "event", event)
		return false
	}
	if !c.Connected() {
		c.log.Debug("dropping intent while not joined", "event", event)
		return false
	}
	if err := c.transport.Push(c.cfg.Topic, intentPrefix+event, payload); err != nil {
		c.log.Debug("dropping intent", "event", event, "error", err)
		return false
	}
	return true
}

// Connected reports whether the topic is currently joined.
func (c *Client[T]) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == phx.StatusJoined
}

// Status returns the last reported subscription status.
func (c *Client[T]) Status() phx.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns the most recently applied state.
func (c *Client[T]) Snapshot() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot, c.has
}

// Version returns the server version of the current snapshot.
func (c *Client[T]) Version() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// OnSnapshot registers a handler for every full replacement state.
func (c *Client[T]) OnSnapshot(fn func(T)) (unsubscribe func()) {
	return c.snapshots.Add(fn)
}

// OnStatus registers a handler for subscription status changes.
func (c *Client[T]) OnStatus(fn func(StatusChange)) (unsubscribe func()) {
	return c.statuses.Add(fn)
}

// OnEvent registers a handler for a declared one-shot notification.
func (c *Client[T]) OnEvent(name string, fn func(json.RawMessage)) (unsubscribe func()) {
	if !c.receives[name] {
		c.log.Warn("subscribing to undeclared event", "event", name)
	}
	return c.listenersFor(name).Add(fn)
}

func (c *Client[T]) listenersFor(name string) *Listeners[json.RawMessage] {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	l, ok := c.events[name]
	if !ok {
		l = &Listeners[json.RawMessage]{}
		c.events[name] = l
	}
	return l
}

// HandleMessage implements phx.Handler.
func (c *Client[T]) HandleMessage(event string, payload json.RawMessage) {
	switch event {
	case EventStateChange:
		var p struct {
			State   json.RawMessage `json:"state"`
			Version int             `json:"version"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			c.log.Warn("malformed state change", "error", err)
			return
		}
		c.apply(p.State, p.Version)

	case EventStatePatch:
		c.applyPatch(payload)

	default:
		if !c.receives[event] {
			c.log.Debug("ignoring undeclared event", "event", event)
			return
		}
		c.listenersFor(event).Emit(payload)
	}
}

// HandleStatus implements phx.Handler.
func (c *Client[T]) HandleStatus(status phx.Status, err error) {
	c.mu.Lock()
	c.status = status
	if status == phx.StatusUnavailable || status == phx.StatusClosed {
		c.started = false
	}
	c.mu.Unlock()

	switch status {
	case phx.StatusJoined:
		c.log.Debug("joined")
	case phx.StatusDisconnected:
		c.log.Info("disconnected, waiting for rejoin", "error", err)
	case phx.StatusUnavailable:
		c.log.Error("topic unavailable", "error", err)
		if errors.Is(err, phx.ErrJoinRefused) && c.receives[EventError] {
			c.listenersFor(EventError).Emit(joinErrorPayload(err))
		}
	}
	c.statuses.Emit(StatusChange{Status: status, Err: err})
}

func joinErrorPayload(err error) json.RawMessage {
	body := map[string]any{"type": "join_refused", "message": err.Error()}
	var re *phx.ReplyError
	if errors.As(err, &re) && len(re.Response) > 0 {
		body["response"] = re.Response
	}
	data, _ := json.Marshal(body)
	return data
}

// applyPatch folds a versioned JSON patch into the last full state. A gap
// in versions, or a patch that does not apply, asks the server for a full
// state instead.
func (c *Client[T]) applyPatch(payload json.RawMessage) {
	var p struct {
		Patch   json.RawMessage `json:"patch"`
		Version int             `json:"version"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		c.log.Warn("malformed state patch", "error", err)
		return
	}

	c.mu.Lock()
	raw, version, has := c.raw, c.version, c.has
	c.mu.Unlock()

	if !has || p.Version != version+1 {
		c.log.Debug("state patch out of sequence", "have", version, "got", p.Version)
		c.refresh()
		return
	}
	patch, err := jsonpatch.DecodePatch(p.Patch)
	if err != nil {
		c.log.Warn("undecodable state patch", "error", err)
		c.refresh()
		return
	}
	doc, err := patch.Apply(raw)
	if err != nil {
		c.log.Warn("state patch failed", "error", err)
		c.refresh()
		return
	}
	c.apply(doc, p.Version)
}

func (c *Client[T]) refresh() {
	if err := c.transport.Push(c.cfg.Topic, EventRefresh, struct{}{}); err != nil {
		c.log.Debug("refresh not sent", "error", err)
	}
}

// apply decodes state into a fresh T so nothing from the previous snapshot
// survives, stores it and notifies subscribers.
func (c *Client[T]) apply(state json.RawMessage, version int) {
	if len(state) == 0 {
		state = json.RawMessage("{}")
	}
	filtered, err := c.filter(state)
	if err != nil {
		c.log.Warn("malformed state", "error", err)
		return
	}
	var next T
	if err := json.Unmarshal(filtered, &next); err != nil {
		c.log.Warn("state does not match snapshot type", "error", err)
		return
	}

	c.mu.Lock()
	c.raw = bytes.Clone(state)
	c.version = version
	c.snapshot = next
	c.has = true
	c.mu.Unlock()

	c.snapshots.Emit(next)
}

func (c *Client[T]) filter(state json.RawMessage) (json.RawMessage, error) {
	if len(c.props) == 0 {
		return state, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(state, &all); err != nil {
		return nil, err
	}
	kept := make(map[string]json.RawMessage, len(c.props))
	for k := range c.props {
		if v, ok := all[k]; ok {
			kept[k] = v
		}
	}
	return json.Marshal(kept)
}
