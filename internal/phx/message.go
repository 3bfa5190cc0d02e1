// Package phx is a Phoenix channels client over a single WebSocket.
// Frames use the V2 JSON serializer: [join_ref, ref, topic, event, payload].
package phx

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Reserved channel events.
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventClose     = "phx_close"
	EventHeartbeat = "heartbeat"

	// TopicPhoenix carries socket-level heartbeats.
	TopicPhoenix = "phoenix"
)

// Reply statuses.
const (
	ReplyStatusOK    = "ok"
	ReplyStatusError = "error"
)

// Message is one channel frame.
type Message struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload json.RawMessage
}

// MarshalJSON encodes the frame as a five element array. Empty refs are
// written as null.
func (m Message) MarshalJSON() ([]byte, error) {
	payload := m.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]any{nullable(m.JoinRef), nullable(m.Ref), m.Topic, m.Event, payload})
}

// UnmarshalJSON decodes a five element array frame.
func (m *Message) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 5 {
		return fmt.Errorf("phx: frame has %d elements, want 5", len(parts))
	}
	var joinRef, ref *string
	if err := json.Unmarshal(parts[0], &joinRef); err != nil {
		return fmt.Errorf("phx: join_ref: %w", err)
	}
	if err := json.Unmarshal(parts[1], &ref); err != nil {
		return fmt.Errorf("phx: ref: %w", err)
	}
	var out Message
	if err := json.Unmarshal(parts[2], &out.Topic); err != nil {
		return fmt.Errorf("phx: topic: %w", err)
	}
	if err := json.Unmarshal(parts[3], &out.Event); err != nil {
		return fmt.Errorf("phx: event: %w", err)
	}
	if joinRef != nil {
		out.JoinRef = *joinRef
	}
	if ref != nil {
		out.Ref = *ref
	}
	out.Payload = bytes.Clone(parts[4])
	*m = out
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Reply is the payload of a phx_reply frame.
type Reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// ReplyError reports a join the server refused.
type ReplyError struct {
	Topic    string
	Response json.RawMessage
}

func (e *ReplyError) Error() string {
	if len(e.Response) == 0 {
		return fmt.Sprintf("phx: join %s refused", e.Topic)
	}
	return fmt.Sprintf("phx: join %s refused: %s", e.Topic, string(e.Response))
}

func (e *ReplyError) Unwrap() error { return ErrJoinRefused }

// Params are sent as the phx_join payload.
type Params map[string]any

// ParamsFunc is evaluated on every join and rejoin.
type ParamsFunc func() Params

// Status is the lifecycle state of one joined topic.
type Status int

const (
	StatusIdle Status = iota
	StatusJoining
	StatusJoined
	StatusDisconnected
	StatusUnavailable
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusJoining:
		return "joining"
	case StatusJoined:
		return "joined"
	case StatusDisconnected:
		return "disconnected"
	case StatusUnavailable:
		return "unavailable"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Handler receives everything a socket delivers for one topic. Calls are
// made from the socket's read goroutine, one at a time, in arrival order.
type Handler interface {
	HandleMessage(event string, payload json.RawMessage)
	HandleStatus(status Status, err error)
}
