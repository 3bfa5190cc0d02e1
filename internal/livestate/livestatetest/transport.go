// Package livestatetest provides an in-memory livestate.Transport for tests.
package livestatetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/launchcart/widgets/internal/phx"
)

// Join records one join attempt with its params evaluated at join time.
type Join struct {
	Topic  string
	Params phx.Params
}

// Push records one outbound frame.
type Push struct {
	Topic   string
	Event   string
	Payload json.RawMessage
}

type topic struct {
	params  phx.ParamsFunc
	handler phx.Handler
	joined  bool
}

// Transport joins instantly unless Manual is set, and records everything.
type Transport struct {
	// Manual leaves joins pending until Ack is called.
	Manual bool

	mu     sync.Mutex
	topics map[string]*topic
	joins  []Join
	pushes []Push
}

// New returns a Transport that acknowledges joins immediately.
func New() *Transport {
	return &Transport{topics: make(map[string]*topic)}
}

func (t *Transport) Join(ctx context.Context, name string, params phx.ParamsFunc, h phx.Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.topics == nil {
		t.topics = make(map[string]*topic)
	}
	if _, ok := t.topics[name]; ok {
		t.mu.Unlock()
		return nil
	}
	tp := &topic{params: params, handler: h}
	t.topics[name] = tp
	t.joins = append(t.joins, Join{Topic: name, Params: eval(params)})
	manual := t.Manual
	if !manual {
		tp.joined = true
	}
	t.mu.Unlock()

	if !manual {
		h.HandleStatus(phx.StatusJoined, nil)
	}
	return nil
}

func (t *Transport) Push(name, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	tp, ok := t.topics[name]
	if !ok || !tp.joined {
		return phx.ErrNotConnected
	}
	t.pushes = append(t.pushes, Push{Topic: name, Event: event, Payload: data})
	return nil
}

func (t *Transport) Leave(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.topics, name)
	return nil
}

func eval(fn phx.ParamsFunc) phx.Params {
	if fn == nil {
		return phx.Params{}
	}
	if p := fn(); p != nil {
		return p
	}
	return phx.Params{}
}

func (t *Transport) handler(name string) phx.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tp, ok := t.topics[name]; ok {
		return tp.handler
	}
	return nil
}

// Ack completes a pending join.
func (t *Transport) Ack(name string) {
	t.SetStatus(name, phx.StatusJoined, nil)
}

// SetStatus reports a status change to the topic's handler.
func (t *Transport) SetStatus(name string, status phx.Status, err error) {
	t.mu.Lock()
	tp, ok := t.topics[name]
	if ok {
		tp.joined = status == phx.StatusJoined
		if status == phx.StatusUnavailable || status == phx.StatusClosed {
			delete(t.topics, name)
		}
	}
	t.mu.Unlock()
	if ok {
		tp.handler.HandleStatus(status, err)
	}
}

// Reconnect simulates a dropped connection followed by a rejoin with
// freshly evaluated params.
func (t *Transport) Reconnect(name string) {
	t.SetStatus(name, phx.StatusDisconnected, nil)
	t.mu.Lock()
	tp, ok := t.topics[name]
	if ok {
		t.joins = append(t.joins, Join{Topic: name, Params: eval(tp.params)})
	}
	t.mu.Unlock()
	if ok {
		t.Ack(name)
	}
}

// Deliver hands a server push to the topic's handler.
func (t *Transport) Deliver(name, event string, payload any) {
	h := t.handler(name)
	if h == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	h.HandleMessage(event, data)
}

// State delivers a full state:change push.
func (t *Transport) State(name string, state any, version int) {
	t.Deliver(name, "state:change", map[string]any{"state": state, "version": version})
}

// Joins returns every join recorded so far.
func (t *Transport) Joins() []Join {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Join(nil), t.joins...)
}

// Pushes returns the frames pushed on a topic, optionally filtered by event.
func (t *Transport) Pushes(name string, event ...string) []Push {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Push
	for _, p := range t.pushes {
		if p.Topic != name {
			continue
		}
		if len(event) > 0 && p.Event != event[0] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Joined reports whether a topic is registered and joined.
func (t *Transport) Joined(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tp, ok := t.topics[name]
	return ok && tp.joined
}
