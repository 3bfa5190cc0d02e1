package mockserver

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/launchcart/widgets/internal/phx"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// subscription is one topic a connection has joined.
type subscription struct {
	joinRef string
	cartID  string
}

type client struct {
	conn *websocket.Conn
	// base is the http address the client reached us on, used to build
	// checkout links.
	base string

	mu     sync.Mutex
	send   chan []byte
	closed bool
	topics map[string]*subscription
}

func newClient(conn *websocket.Conn, base string) *client {
	c := &client{
		conn:   conn,
		base:   base,
		send:   make(chan []byte, sendBuffer),
		topics: make(map[string]*subscription),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// enqueue queues a frame. It reports false when the client is closed or its
// buffer is full.
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *client) subscribe(topic string, sub *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = sub
}

func (c *client) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

func (c *client) subscription(topic string) (*subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.topics[topic]
	return sub, ok
}

// cartTopics returns the topics on which the client follows cartID.
func (c *client) cartTopics(cartID string) map[string]*subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*subscription)
	for t, sub := range c.topics {
		if sub.cartID == cartID {
			out[t] = sub
		}
	}
	return out
}

// Hub tracks connected clients and fans cart updates out to every client
// following a cart.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	log     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[*client]bool), log: logger}
}

func (h *Hub) add(conn *websocket.Conn, base string) *client {
	c := newClient(conn, base)
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// send queues one frame for c, disconnecting clients that cannot keep up.
func (h *Hub) send(c *client, msg phx.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal frame", "topic", msg.Topic, "event", msg.Event, "error", err)
		return
	}
	if !c.enqueue(data) {
		h.log.Warn("client too slow, disconnecting", "topic", msg.Topic)
		h.remove(c)
	}
}

func (h *Hub) push(c *client, topic, joinRef, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("marshal payload", "event", event, "error", err)
		return
	}
	h.send(c, phx.Message{JoinRef: joinRef, Topic: topic, Event: event, Payload: data})
}

func (h *Hub) reply(c *client, req phx.Message, status string, response any) {
	data, err := json.Marshal(replyPayload{Status: status, Response: response})
	if err != nil {
		h.log.Error("marshal reply", "topic", req.Topic, "error", err)
		return
	}
	h.send(c, phx.Message{JoinRef: req.JoinRef, Ref: req.Ref, Topic: req.Topic, Event: phx.EventReply, Payload: data})
}

type replyPayload struct {
	Status   string `json:"status"`
	Response any    `json:"response"`
}

// broadcastCart sends build's frame to every client following cartID.
func (h *Hub) broadcastCart(cartID string, build func(sub *subscription) (event string, payload any)) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		for topic, sub := range c.cartTopics(cartID) {
			event, payload := build(sub)
			h.push(c, topic, sub.joinRef, event, payload)
		}
	}
}

// broadcastTopic sends an event to every client joined to topic.
func (h *Hub) broadcastTopic(topic, event string, payload any) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if sub, ok := c.subscription(topic); ok {
			h.push(c, topic, sub.joinRef, event, payload)
		}
	}
}

func topicKind(topic string) (kind, id string) {
	kind, id, _ = strings.Cut(topic, ":")
	return kind, id
}
