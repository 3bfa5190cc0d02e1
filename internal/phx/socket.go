package phx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	heartbeatInterval  = 30 * time.Second
)

var (
	ErrNotConnected = errors.New("phx: not connected")
	ErrJoinRefused  = errors.New("phx: join refused")
	ErrClosed       = errors.New("phx: socket closed")
)

// Options tunes reconnection and liveness. Zero values take the defaults.
type Options struct {
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	// MaxReconnectAttempts bounds consecutive failed dials before every
	// topic is reported unavailable. Zero retries forever.
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	WriteTimeout         time.Duration
	Dialer               *websocket.Dialer
	Logger               *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ReconnectBaseDelay <= 0 {
		o.ReconnectBaseDelay = reconnectBaseDelay
	}
	if o.ReconnectMaxDelay <= 0 {
		o.ReconnectMaxDelay = reconnectMaxDelay
	}
	if o.ReconnectMaxDelay < o.ReconnectBaseDelay {
		o.ReconnectMaxDelay = o.ReconnectBaseDelay
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = heartbeatInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = writeTimeout
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type channel struct {
	topic    string
	params   ParamsFunc
	handler  Handler
	joinRef  string
	joinConn *websocket.Conn
	status   Status
}

// Socket multiplexes channel topics over one WebSocket connection and
// reconnects on its own. Topics joined on the socket are rejoined after
// every reconnect with freshly evaluated params.
type Socket struct {
	endpoint string
	opts     Options
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	writeMu  sync.Mutex // serialises all conn writes
	conn     *websocket.Conn
	ref      uint64
	channels map[string]*channel
	running  bool
	closed   bool
}

// NewSocket creates a socket for a Phoenix endpoint such as
// ws://localhost:4000/socket. No connection is made until the first Join.
func NewSocket(rawURL string, opts Options) (*Socket, error) {
	endpoint, err := Endpoint(rawURL)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Socket{
		endpoint: endpoint,
		opts:     opts,
		log:      opts.Logger.With("component", "phx"),
		ctx:      ctx,
		cancel:   cancel,
		channels: make(map[string]*channel),
	}, nil
}

// Endpoint derives the transport URL: http(s) becomes ws(s), the path gains
// a /websocket suffix and the serializer version is pinned to 2.0.0.
func Endpoint(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("phx: parse url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("phx: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("phx: url %q has no host", raw)
	}
	if !strings.HasSuffix(u.Path, "/websocket") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/websocket"
	}
	q := u.Query()
	q.Set("vsn", "2.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// URL returns the transport endpoint.
func (s *Socket) URL() string { return s.endpoint }

// Connected reports whether a WebSocket connection is currently open.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Join registers a topic and joins it as soon as a connection exists.
// Joining a topic that is already registered is a no-op. Join never waits
// for the server: the outcome is reported through h.HandleStatus.
func (s *Socket) Join(ctx context.Context, topic string, params ParamsFunc, h Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("phx: join %s: nil handler", topic)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.channels[topic]; ok {
		s.mu.Unlock()
		return nil
	}
	s.channels[topic] = &channel{
		topic:   topic,
		params:  params,
		handler: h,
		status:  StatusJoining,
	}
	conn := s.conn
	start := !s.running
	s.running = true
	s.mu.Unlock()

	if start {
		go s.run()
	}
	if conn != nil {
		s.sendJoin(conn, topic)
	}
	return nil
}

// Push sends an event on a joined topic. It fails with ErrNotConnected when
// the topic is not currently joined; nothing is queued.
func (s *Socket) Push(topic, event string, payload any) error {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("phx: marshal %s payload: %w", event, err)
	}

	s.mu.Lock()
	ch, ok := s.channels[topic]
	conn := s.conn
	if !ok || conn == nil || ch.status != StatusJoined || ch.joinConn != conn {
		s.mu.Unlock()
		return ErrNotConnected
	}
	ref := s.nextRefLocked()
	joinRef := ch.joinRef
	s.mu.Unlock()

	return s.write(conn, Message{JoinRef: joinRef, Ref: ref, Topic: topic, Event: event, Payload: data})
}

// Leave unregisters a topic, telling the server when the topic is joined.
func (s *Socket) Leave(topic string) error {
	s.mu.Lock()
	ch, ok := s.channels[topic]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.channels, topic)
	conn := s.conn
	joined := ch.status == StatusJoined && ch.joinConn == conn
	ref := s.nextRefLocked()
	s.mu.Unlock()

	if conn == nil || !joined {
		return nil
	}
	return s.write(conn, Message{JoinRef: ch.joinRef, Ref: ref, Topic: topic, Event: EventLeave})
}

// Close stops reconnecting, closes the connection and reports StatusClosed
// to every registered topic.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	handlers := s.handlersLocked()
	s.channels = make(map[string]*channel)
	s.mu.Unlock()

	s.cancel()
	for _, h := range handlers {
		h.HandleStatus(StatusClosed, nil)
	}
	if conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return conn.Close()
}

// run owns the connection: dial with exponential backoff, rejoin topics,
// read until the connection drops, repeat.
func (s *Socket) run() {
	delay := s.opts.ReconnectBaseDelay
	attempts := 0
	for {
		if s.ctx.Err() != nil {
			return
		}

		conn, _, err := s.opts.Dialer.DialContext(s.ctx, s.endpoint, nil)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			attempts++
			if s.opts.MaxReconnectAttempts > 0 && attempts >= s.opts.MaxReconnectAttempts {
				s.giveUp(fmt.Errorf("phx: dial %s: %w", s.endpoint, err))
				return
			}
			s.log.Warn("dial failed", "error", err, "attempt", attempts, "retry_in", delay)
			if !s.sleep(delay) {
				return
			}
			delay = min(delay*2, s.opts.ReconnectMaxDelay)
			continue
		}
		attempts = 0
		delay = s.opts.ReconnectBaseDelay

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		topics := make([]string, 0, len(s.channels))
		for t := range s.channels {
			topics = append(topics, t)
		}
		s.mu.Unlock()
		sort.Strings(topics)
		s.log.Info("connected", "url", s.endpoint, "topics", len(topics))

		hbCtx, hbCancel := context.WithCancel(s.ctx)
		go s.heartbeatLoop(hbCtx, conn)
		for _, t := range topics {
			s.sendJoin(conn, t)
		}

		err = s.readLoop(conn)
		hbCancel()
		conn.Close()
		s.disconnected(conn, err)

		if s.ctx.Err() != nil {
			return
		}
		s.log.Warn("connection lost", "error", err, "retry_in", delay)
		if !s.sleep(delay) {
			return
		}
	}
}

func (s *Socket) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Socket) sendJoin(conn *websocket.Conn, topic string) {
	s.mu.Lock()
	ch, ok := s.channels[topic]
	if !ok || s.conn != conn {
		s.mu.Unlock()
		return
	}
	if ch.joinConn == conn && (ch.status == StatusJoining || ch.status == StatusJoined) {
		// Already in flight on this connection.
		s.mu.Unlock()
		return
	}
	ref := s.nextRefLocked()
	ch.joinRef = ref
	ch.joinConn = conn
	ch.status = StatusJoining
	params := ch.params
	s.mu.Unlock()

	p := Params{}
	if params != nil {
		if got := params(); got != nil {
			p = got
		}
	}
	payload, err := json.Marshal(p)
	if err != nil {
		s.log.Error("marshal join params", "topic", topic, "error", err)
		return
	}
	if err := s.write(conn, Message{JoinRef: ref, Ref: ref, Topic: topic, Event: EventJoin, Payload: payload}); err != nil {
		s.log.Warn("join write failed", "topic", topic, "error", err)
	}
}

func (s *Socket) readLoop(conn *websocket.Conn) error {
	deadline := 2*s.opts.HeartbeatInterval + s.opts.WriteTimeout
	conn.SetReadDeadline(time.Now().Add(deadline))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(deadline))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("dropping malformed frame", "error", err)
			continue
		}
		s.dispatch(conn, msg)
	}
}

func (s *Socket) dispatch(conn *websocket.Conn, msg Message) {
	if msg.Topic == TopicPhoenix {
		return
	}

	s.mu.Lock()
	ch, ok := s.channels[msg.Topic]
	if !ok {
		s.mu.Unlock()
		return
	}
	if msg.JoinRef != "" && msg.JoinRef != ch.joinRef {
		s.mu.Unlock()
		s.log.Debug("dropping stale frame", "topic", msg.Topic, "event", msg.Event, "join_ref", msg.JoinRef)
		return
	}
	h := ch.handler

	switch msg.Event {
	case EventReply:
		if msg.Ref != ch.joinRef {
			s.mu.Unlock()
			s.logReply(msg)
			return
		}
		var r Reply
		if err := json.Unmarshal(msg.Payload, &r); err != nil {
			s.mu.Unlock()
			s.log.Warn("malformed join reply", "topic", msg.Topic, "error", err)
			return
		}
		if r.Status == ReplyStatusOK {
			ch.status = StatusJoined
			s.mu.Unlock()
			s.log.Debug("joined", "topic", msg.Topic)
			h.HandleStatus(StatusJoined, nil)
			return
		}
		delete(s.channels, msg.Topic)
		s.mu.Unlock()
		h.HandleStatus(StatusUnavailable, &ReplyError{Topic: msg.Topic, Response: r.Response})
		return

	case EventError:
		ch.status = StatusDisconnected
		s.mu.Unlock()
		h.HandleStatus(StatusDisconnected, fmt.Errorf("phx: channel error on %s", msg.Topic))
		topic := msg.Topic
		time.AfterFunc(s.opts.ReconnectBaseDelay, func() { s.sendJoin(conn, topic) })
		return

	case EventClose:
		delete(s.channels, msg.Topic)
		s.mu.Unlock()
		h.HandleStatus(StatusClosed, nil)
		return
	}
	s.mu.Unlock()

	h.HandleMessage(msg.Event, msg.Payload)
}

func (s *Socket) logReply(msg Message) {
	var r Reply
	if err := json.Unmarshal(msg.Payload, &r); err != nil || r.Status == ReplyStatusOK {
		return
	}
	s.log.Warn("push rejected", "topic", msg.Topic, "ref", msg.Ref, "response", string(r.Response))
}

func (s *Socket) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.conn != conn {
				s.mu.Unlock()
				return
			}
			ref := s.nextRefLocked()
			s.mu.Unlock()
			if err := s.write(conn, Message{Ref: ref, Topic: TopicPhoenix, Event: EventHeartbeat}); err != nil {
				return
			}
		}
	}
}

func (s *Socket) disconnected(conn *websocket.Conn, cause error) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	if s.closed {
		s.mu.Unlock()
		return
	}
	for _, ch := range s.channels {
		ch.status = StatusDisconnected
	}
	handlers := s.handlersLocked()
	s.mu.Unlock()

	for _, h := range handlers {
		h.HandleStatus(StatusDisconnected, cause)
	}
}

func (s *Socket) giveUp(cause error) {
	s.mu.Lock()
	s.running = false
	handlers := s.handlersLocked()
	s.channels = make(map[string]*channel)
	s.mu.Unlock()

	s.log.Error("giving up reconnecting", "error", cause)
	for _, h := range handlers {
		h.HandleStatus(StatusUnavailable, cause)
	}
}

func (s *Socket) handlersLocked() []Handler {
	topics := make([]string, 0, len(s.channels))
	for t := range s.channels {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	out := make([]Handler, 0, len(topics))
	for _, t := range topics {
		out = append(out, s.channels[t].handler)
	}
	return out
}

func (s *Socket) nextRefLocked() string {
	s.ref++
	return strconv.FormatUint(s.ref, 10)
}

func (s *Socket) write(conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}
