package debug

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// LogHandler tees slog records into the debug overlay. Records are passed
// on to next unchanged.
type LogHandler struct {
	next  slog.Handler
	sink  func(Entry)
	attrs []slog.Attr
	group string
}

// NewLogHandler wraps next. sink must not block.
func NewLogHandler(next slog.Handler, sink func(Entry)) *LogHandler {
	return &LogHandler{next: next, sink: sink}
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := append([]slog.Attr(nil), h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	h.sink(toEntry(r, attrs))

	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{
		next:  h.next.WithAttrs(attrs),
		sink:  h.sink,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
		group: h.group,
	}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{
		next:  h.next.WithGroup(name),
		sink:  h.sink,
		attrs: h.attrs,
		group: name,
	}
}

// toEntry lifts the attributes the overlay has columns for and flattens the
// rest into key=value text.
func toEntry(r slog.Record, attrs []slog.Attr) Entry {
	e := Entry{Time: r.Time, Level: r.Level, Message: r.Message}
	var rest []string
	for _, a := range attrs {
		switch a.Key {
		case "widget":
			e.Source = a.Value.String()
		case "component":
			if e.Source == "" {
				e.Source = a.Value.String()
			}
		case "topic":
			e.Topic = a.Value.String()
		case "event":
			e.Event = a.Value.String()
		default:
			rest = append(rest, fmt.Sprintf("%s=%v", a.Key, a.Value))
		}
	}
	e.Attrs = strings.Join(rest, " ")
	return e
}
