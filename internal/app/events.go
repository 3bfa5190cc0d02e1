package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/launchcart/widgets/internal/cart"
	"github.com/launchcart/widgets/internal/form"
	"github.com/launchcart/widgets/internal/livestate"
	"github.com/launchcart/widgets/internal/views/debug"
)

const eventBuffer = 256

// --- Bubble Tea messages ---

// CartChangedMsg carries the cart widget's latest view.
type CartChangedMsg struct{ View cart.View }

// FormChangedMsg carries the form widget's latest view.
type FormChangedMsg struct{ View form.View }

// FormErrorMsg carries a server error for the form.
type FormErrorMsg struct{ Err form.Error }

// StatusMsg reports a topic's subscription status.
type StatusMsg struct {
	Topic  string
	Change livestate.StatusChange
}

// LogMsg mirrors one log record into the debug overlay.
type LogMsg struct{ Entry debug.Entry }

// Events carries widget callbacks, which arrive on socket goroutines, into
// the Bubble Tea loop.
type Events struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan tea.Msg
}

// NewEvents creates an event bridge. It stops accepting messages once Stop
// is called.
func NewEvents() *Events {
	ctx, cancel := context.WithCancel(context.Background())
	return &Events{ctx: ctx, cancel: cancel, ch: make(chan tea.Msg, eventBuffer)}
}

// Send queues msg, blocking while the buffer is full.
func (e *Events) Send(msg tea.Msg) {
	select {
	case e.ch <- msg:
	case <-e.ctx.Done():
	}
}

// Log is a debug.LogHandler sink. Log records never block the caller; they
// are dropped when the buffer is full.
func (e *Events) Log(entry debug.Entry) {
	select {
	case e.ch <- LogMsg{Entry: entry}:
	default:
	}
}

// Stop releases any blocked senders.
func (e *Events) Stop() { e.cancel() }

// Wait returns a command that delivers the next queued message. It must be
// re-issued after each delivery.
func (e *Events) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-e.ch:
			return msg
		case <-e.ctx.Done():
			return nil
		}
	}
}
