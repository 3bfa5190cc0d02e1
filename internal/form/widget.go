// Package form is the lead-capture form widget. It submits field values as a
// single intent and shows whatever completion the server decides.
package form

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"

	"github.com/launchcart/widgets/internal/livestate"
	"github.com/launchcart/widgets/internal/phx"
)

const (
	// IntentSubmit carries the submitted record.
	IntentSubmit = "launch-form-submit"

	// BotCheckField is the honeypot/captcha field. A non-empty value marks
	// the submission as spam.
	BotCheckField = "g-recaptcha-response"

	// DefaultResult is shown when a completed form has no result message.
	DefaultResult = "Thanks for your submission!"

	// StateName is the name the form's shared state is provided under.
	StateName = "launchFormState"
)

// Topic returns the channel address for a form.
func Topic(formID string) string {
	return "launch_form:" + formID
}

// Config is the sync declaration of a form.
func Config(formID string) livestate.Config {
	return livestate.Config{
		Topic:      Topic(formID),
		Sends:      []string{IntentSubmit},
		Receives:   []string{livestate.EventError},
		Properties: []string{"complete", "result"},
	}
}

// Snapshot is the synced state of a form topic.
type Snapshot struct {
	Complete bool   `json:"complete"`
	Result   string `json:"result"`
}

// Phase is the widget's lifecycle state.
type Phase int

const (
	Active Phase = iota
	Complete
)

func (p Phase) String() string {
	switch p {
	case Active:
		return "active"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// View is everything a rendering surface needs.
type View struct {
	Phase Phase
	// Result is the server's completion message, possibly HTML.
	Result string
	// Pending is set while a submission awaits an answer.
	Pending bool
}

// Message returns the text to show once complete.
func (v View) Message() string {
	if v.Result == "" {
		return DefaultResult
	}
	return v.Result
}

// Error is a server-side validation failure.
type Error struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Raw     json.RawMessage `json:"-"`
}

func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Type != "" {
		return e.Type
	}
	return "form error"
}

// Widget wraps one form topic.
type Widget struct {
	client *livestate.Client[Snapshot]
	log    *slog.Logger

	mu       sync.Mutex
	complete bool
	result   string
	pending  bool

	changes livestate.Listeners[View]
	errs    livestate.Listeners[Error]
	unsubs  []func()
}

// New builds a form widget for formID on transport t.
func New(t livestate.Transport, formID string, logger *slog.Logger) (*Widget, error) {
	if formID == "" {
		return nil, errors.New("form: empty form id")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("widget", "form", "form", formID)

	client, err := livestate.New[Snapshot](t, Config(formID), logger)
	if err != nil {
		return nil, err
	}
	w := &Widget{client: client, log: logger}
	w.unsubs = []func(){
		client.OnSnapshot(w.applySnapshot),
		client.OnEvent(livestate.EventError, w.handleError),
	}
	return w, nil
}

// Connect joins the form topic. Safe to call repeatedly.
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

// Status is the subscription status of the form topic.
func (w *Widget) Status() phx.Status { return w.client.Status() }

// OnStatus registers a handler for subscription status changes.
func (w *Widget) OnStatus(fn func(livestate.StatusChange)) (unsubscribe func()) {
	return w.client.OnStatus(fn)
}

// OnChange registers a handler called with the new view after every change.
func (w *Widget) OnChange(fn func(View)) (unsubscribe func()) {
	return w.changes.Add(fn)
}

// OnError registers a handler for server validation errors. Errors never
// change the form's phase.
func (w *Widget) OnError(fn func(Error)) (unsubscribe func()) {
	return w.errs.Add(fn)
}

// View returns the current view. It reflects the latest snapshot only.
func (w *Widget) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

func (w *Widget) viewLocked() View {
	v := View{Phase: Active, Result: w.result, Pending: w.pending}
	if w.complete {
		v.Phase = Complete
	}
	return v
}

func (w *Widget) emit() {
	w.changes.Emit(w.View())
}

// Record flattens submitted values. The last value wins for repeated keys.
func Record(values url.Values) map[string]string {
	rec := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) == 0 {
			rec[k] = ""
			continue
		}
		rec[k] = vs[len(vs)-1]
	}
	return rec
}

// Submit sends the form values. It reports whether an intent went out: a
// filled bot-check field, a completed form, a submission already in flight
// or a topic that is not joined all suppress it.
func (w *Widget) Submit(values url.Values) bool {
	rec := Record(values)
	if rec[BotCheckField] != "" {
		w.log.Info("suppressing submission with bot-check value")
		return false
	}
	delete(rec, BotCheckField)

	w.mu.Lock()
	if w.complete || w.pending {
		w.mu.Unlock()
		return false
	}
	w.pending = true
	w.mu.Unlock()

	if !w.client.Send(IntentSubmit, rec) {
		w.mu.Lock()
		w.pending = false
		w.mu.Unlock()
		return false
	}
	w.emit()
	return true
}

func (w *Widget) applySnapshot(s Snapshot) {
	w.mu.Lock()
	w.complete = s.Complete
	w.result = s.Result
	w.pending = false
	w.mu.Unlock()
	w.emit()
}

func (w *Widget) handleError(payload json.RawMessage) {
	var e Error
	if err := json.Unmarshal(payload, &e); err != nil {
		w.log.Warn("malformed form error", "error", err)
	}
	e.Raw = payload
	w.log.Info("form error", "type", e.Type, "message", e.Message)

	w.mu.Lock()
	wasPending := w.pending
	w.pending = false
	w.mu.Unlock()

	w.errs.Emit(e)
	if wasPending {
		w.emit()
	}
}
