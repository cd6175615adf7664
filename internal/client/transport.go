package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/agent-racer/hexboard/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	DefaultReconnectDelay = 2 * time.Second
	DefaultHistoryLimit   = 100
	DefaultPingInterval   = 30 * time.Second

	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
)

// State is the transport connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Conn is the part of *websocket.Conn the transport relies on.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens one physical connection.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// Timer is a pending deferred callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Timer

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// Dial implements Dialer.
func (w WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d := w.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	conn, _, err := d.DialContext(ctx, endpoint, w.Header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// TransportOptions configures a Transport. Zero values pick defaults.
type TransportOptions struct {
	ReconnectDelay time.Duration
	HistoryLimit   int
	PingInterval   time.Duration // negative disables keepalive pings
	Dialer         Dialer
	AfterFunc      AfterFunc
	Logger         zerolog.Logger
}

// Transport owns one logical duplex connection to the backend. It
// reconnects after a fixed delay while auto-reconnect is on, and fans
// inbound messages and connection changes out to subscribers.
type Transport struct {
	opts TransportOptions
	log  zerolog.Logger

	messages *registry[Message]
	conns    *registry[bool]

	mu            sync.Mutex
	writeMu       sync.Mutex // serialises all conn writes (ping, send)
	endpoint      string
	autoReconnect bool
	state         State
	conn          Conn
	gen           uint64 // bumped per attempt and on Disconnect; stale goroutines compare
	timer         Timer
	cancel        context.CancelFunc
}

// NewTransport creates a disconnected transport.
func NewTransport(opts TransportOptions) *Transport {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{}
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	t := &Transport{
		opts: opts,
		log:  opts.Logger.With().Str("component", "transport").Logger(),
	}
	t.messages = newRegistry[Message]("messages", &t.log)
	t.conns = newRegistry[bool]("connection", &t.log)
	return t
}

// OnMessage subscribes to decoded inbound messages.
func (t *Transport) OnMessage(fn func(Message)) (unsubscribe func()) {
	return t.messages.subscribe(fn)
}

// OnConnection subscribes to connection changes (true = connected).
func (t *Transport) OnConnection(fn func(connected bool)) (unsubscribe func()) {
	return t.conns.subscribe(fn)
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect enables auto-reconnect and starts a connection attempt unless one
// is already open or in flight. It never blocks.
func (t *Transport) Connect(endpoint string) {
	t.mu.Lock()
	t.endpoint = endpoint
	t.autoReconnect = true
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	gen, ctx := t.beginAttemptLocked()
	t.mu.Unlock()

	go t.run(ctx, gen, endpoint)
}

// Disconnect turns auto-reconnect off, cancels a pending reconnect and
// closes the connection. The transport stays down until Connect.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.autoReconnect = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	wasConnected := t.state == StateConnected
	t.state = StateDisconnected
	conn := t.conn
	t.conn = nil
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()

	if conn != nil {
		t.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		conn.Close()
	}
	if wasConnected {
		t.log.Info().Msg("disconnected")
		t.conns.publish(false)
	}
}

// Send encodes and writes one message if the connection is open. Messages
// sent while disconnected are dropped; the return value reports whether the
// frame was written.
func (t *Transport) Send(msgType MessageType, payload any) bool {
	t.mu.Lock()
	conn := t.conn
	connected := t.state == StateConnected
	t.mu.Unlock()
	if !connected || conn == nil {
		return false
	}

	data, err := Encode(msgType, payload)
	if err != nil {
		t.log.Error().Err(err).Str("type", string(msgType)).Msg("encode outbound message")
		return false
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.log.Warn().Err(err).Str("type", string(msgType)).Msg("write failed")
		return false
	}
	return true
}

func (t *Transport) beginAttemptLocked() (uint64, context.Context) {
	t.gen++
	t.state = StateConnecting
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	metrics.RecordConnectAttempt()
	return t.gen, ctx
}

// run performs one attempt and, on success, reads until the connection drops.
func (t *Transport) run(ctx context.Context, gen uint64, endpoint string) {
	conn, err := t.opts.Dialer.Dial(ctx, endpoint)
	if err != nil {
		t.log.Warn().Err(err).Str("endpoint", endpoint).Dur("retry_in", t.opts.ReconnectDelay).Msg("dial failed")
		t.down(gen)
		return
	}

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.state = StateConnected
	t.mu.Unlock()

	t.log.Info().Str("endpoint", endpoint).Msg("connected")
	t.conns.publish(true)
	t.Send(MsgGetHistory, HistoryRequest{Limit: t.opts.HistoryLimit})

	if t.opts.PingInterval > 0 {
		go t.pingLoop(ctx, conn)
	}
	t.readLoop(gen, conn)
}

func (t *Transport) readLoop(gen uint64, conn Conn) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Info().Msg("server closed connection")
			} else {
				t.log.Debug().Err(err).Msg("read ended")
			}
			t.down(gen)
			return
		}
		t.handleFrame(data)
	}
}

func (t *Transport) handleFrame(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		var unknown *ErrUnknownType
		if errors.As(err, &unknown) {
			t.log.Debug().Str("type", string(unknown.Type)).Msg("ignoring message")
			metrics.RecordDiscard("unknown_type", 1)
			return
		}
		t.log.Warn().Err(err).Int("bytes", len(data)).Msg("discarding malformed message")
		metrics.RecordDiscard("malformed", 1)
		return
	}
	if s, ok := msg.(SessionsMessage); ok && s.Skipped > 0 {
		t.log.Warn().Int("skipped", s.Skipped).Msg("skipped malformed session entries")
		metrics.RecordDiscard("session_entry", s.Skipped)
	}
	metrics.RecordInbound(string(msg.Type()))
	t.messages.publish(msg)
}

// down marks attempt gen as finished and schedules the single reconnect.
func (t *Transport) down(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state == StateDisconnected {
		t.mu.Unlock()
		return
	}
	t.state = StateDisconnected
	conn := t.conn
	t.conn = nil
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.autoReconnect && t.timer == nil {
		t.timer = t.opts.AfterFunc(t.opts.ReconnectDelay, t.reconnect)
	}
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	metrics.RecordDisconnect()
	t.conns.publish(false)
}

func (t *Transport) reconnect() {
	t.mu.Lock()
	t.timer = nil
	if !t.autoReconnect || t.state != StateDisconnected {
		t.mu.Unlock()
		return
	}
	gen, ctx := t.beginAttemptLocked()
	endpoint := t.endpoint
	t.mu.Unlock()

	t.log.Debug().Str("endpoint", endpoint).Msg("reconnecting")
	go t.run(ctx, gen, endpoint)
}

// pingLoop sends periodic pings on conn until ctx is cancelled or a write fails.
func (t *Transport) pingLoop(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
