package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// --- fakes ---

type fakeConn struct {
	mu        sync.Mutex
	written   [][]byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("use of closed connection")
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.mu.Lock()
	c.written = append(c.written, data)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error    { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

type fakeDialer struct {
	dials chan *fakeConn
	fail  bool
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dials: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(context.Context, string) (Conn, error) {
	c := newFakeConn()
	d.dials <- c
	if d.fail {
		return nil, errors.New("connection refused")
	}
	return c, nil
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.dials:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

func (d *fakeDialer) expectNone(t *testing.T) {
	t.Helper()
	select {
	case <-d.dials:
		t.Fatal("unexpected dial attempt")
	case <-time.After(100 * time.Millisecond):
	}
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeScheduler struct {
	mu        sync.Mutex
	timers    []*fakeTimer
	scheduled chan time.Duration
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(chan time.Duration, 16)}
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{f: f}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	s.scheduled <- d
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// fire runs every timer that has not been stopped or fired.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	timers := append([]*fakeTimer(nil), s.timers...)
	s.mu.Unlock()
	for _, t := range timers {
		t.mu.Lock()
		run := !t.stopped && !t.fired
		t.fired = true
		t.mu.Unlock()
		if run {
			t.f()
		}
	}
}

func expectConn(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("connection state = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connection state %v", want)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newFakeTransport(d *fakeDialer, s *fakeScheduler) *Transport {
	return NewTransport(TransportOptions{
		Dialer:         d,
		AfterFunc:      s.AfterFunc,
		PingInterval:   -1,
		ReconnectDelay: 3 * time.Second,
		HistoryLimit:   25,
	})
}

// --- tests ---

func TestConnectSendsHistoryRequest(t *testing.T) {
	d, s := newFakeDialer(), newFakeScheduler()
	tr := newFakeTransport(d, s)
	states := make(chan bool, 8)
	tr.OnConnection(func(c bool) { states <- c })

	tr.Connect("ws://test/ws")
	conn := d.next(t)
	expectConn(t, states, true)

	waitFor(t, "history request", func() bool { return len(conn.frames()) > 0 })
	var env Envelope
	if err := json.Unmarshal(conn.frames()[0], &env); err != nil {
		t.Fatalf("unmarshal first frame: %v", err)
	}
	if env.Type != MsgGetHistory {
		t.Errorf("first frame type = %q, want %q", env.Type, MsgGetHistory)
	}
	var req HistoryRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if req.Limit != 25 {
		t.Errorf("limit = %d, want 25", req.Limit)
	}
	if got := tr.State(); got != StateConnected {
		t.Errorf("State() = %v, want connected", got)
	}
	tr.Disconnect()
}

func TestConnectWhileOpenIsNoop(t *testing.T) {
	d, s := newFakeDialer(), newFakeScheduler()
	tr := newFakeTransport(d, s)
	states := make(chan bool, 8)
	tr.OnConnection(func(c bool) { states <- c })

	tr.Connect("ws://test/ws")
	d.next(t)
	expectConn(t, states, true)

	tr.Connect("ws://test/ws")
	d.expectNone(t)
	tr.Disconnect()
}

func TestDropSchedulesExactlyOneReconnect(t *testing.T) {
	d, s := newFakeDialer(), newFakeScheduler()
	tr := newFakeTransport(d, s)
	states := make(chan bool, 8)
	tr.OnConnection(func(c bool) { states <- c })

	tr.Connect("ws://test/ws")
	conn := d.next(t)
	expectConn(t, states, true)

	conn.Close()
	expectConn(t, states, false)

	select {
	case delay := <-s.scheduled:
		if delay != 3*time.Second {
			t.Errorf("reconnect delay = %v, want 3s", delay)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect scheduled")
	}
	if got := s.count(); got != 1 {
		t.Fatalf("scheduled timers = %d, want 1", got)
	}
	d.expectNone(t)

	s.fire()
	d.next(t)
	expectConn(t, states, true)
	d.expectNone(t)
	tr.Disconnect()
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	d, s := newFakeDialer(), newFakeScheduler()
	tr := newFakeTransport(d, s)
	states := make(chan bool, 8)
	tr.OnConnection(func(c bool) { states <- c })

	tr.Connect("ws://test/ws")
	conn := d.next(t)
	expectConn(t, states, true)

	conn.Close()
	expectConn(t, states, false)
	waitFor(t, "reconnect timer", func() bool { return s.count() == 1 })

	tr.Disconnect()
	s.fire()
	d.expectNone(t)
	if got := tr.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
}

func TestFailedDialSchedulesReconnect(t *testing.T) {
	d, s := newFakeDialer(), newFakeScheduler()
	d.fail = true
	tr := newFakeTransport(d, s)
	states := make(chan bool, 8)
	tr.OnConnection(func(c bool) { states <- c })

	tr.Connect("ws://test/ws")
	d.next(t)
	expectConn(t, states, false)
	waitFor(t, "reconnect timer", func() bool { return s.count() == 1 })

	s.fire()
	d.next(t)
	expectConn(t, states, false)
	waitFor(t, "second reconnect timer", func() bool { return s.count() == 2 })
	tr.Disconnect()
}

func TestSendWhileDisconnectedDrops(t *testing.T) {
	tr := NewTransport(TransportOptions{Dialer: newFakeDialer()})
	if tr.Send(MsgGetHistory, HistoryRequest{Limit: 1}) {
		t.Error("Send() = true while disconnected, want false")
	}
}

func TestUnsubscribe(t *testing.T) {
	d, s := newFakeDialer(), newFakeScheduler()
	tr := newFakeTransport(d, s)
	var mu sync.Mutex
	calls := 0
	unsub := tr.OnConnection(func(bool) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	unsub()
	unsub()

	states := make(chan bool, 8)
	tr.OnConnection(func(c bool) { states <- c })
	tr.Connect("ws://test/ws")
	d.next(t)
	expectConn(t, states, true)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("unsubscribed handler called %d times", calls)
	}
	tr.Disconnect()
}

// newTestBackend serves /ws, records the first client frame and writes frames.
func newTestBackend(t *testing.T, frames []string) (*httptest.Server, <-chan []byte) {
	t.Helper()
	first := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		first <- data

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv, first
}

func TestTransportAgainstWebSocketServer(t *testing.T) {
	srv, first := newTestBackend(t, []string{
		`not json at all`,
		`{"type":"sessions","payload":[{"id":"a","name":"alpha","status":"working","cwd":"/p"},42,{"id":"b","status":"idle","cwd":"/q","zonePosition":{"q":1,"r":-1}}]}`,
		`{"type":"mystery","payload":{}}`,
		`{"type":"event","payload":{"id":"e1","type":"pre_tool_use","sessionId":"ext","cwd":"/p","tool":"Read","toolInput":{"file_path":"/p/main.go"},"timestamp":1700000000000}}`,
		`{"type":"tokens","payload":{"cumulative":1234}}`,
	})
	defer srv.Close()

	tr := NewTransport(TransportOptions{PingInterval: -1})
	got := make(chan Message, 8)
	tr.OnMessage(func(Message) { panic("broken subscriber") })
	tr.OnMessage(func(m Message) { got <- m })

	tr.Connect("ws" + strings.TrimPrefix(srv.URL, "http"))
	defer tr.Disconnect()

	select {
	case data := <-first:
		if !strings.Contains(string(data), `"get_history"`) {
			t.Errorf("first client frame = %s, want get_history", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received history request")
	}

	next := func() Message {
		t.Helper()
		select {
		case m := <-got:
			return m
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
			return nil
		}
	}

	sessions, ok := next().(SessionsMessage)
	if !ok {
		t.Fatal("first delivered message is not SessionsMessage")
	}
	if len(sessions.Sessions) != 2 || sessions.Skipped != 1 {
		t.Fatalf("sessions = %d (skipped %d), want 2 (skipped 1)", len(sessions.Sessions), sessions.Skipped)
	}
	if c := sessions.Sessions[1].Cell; c == nil || c.Q != 1 || c.R != -1 {
		t.Errorf("Sessions[1].Cell = %v, want (1,-1)", c)
	}

	ev, ok := next().(EventMessage)
	if !ok {
		t.Fatal("second delivered message is not EventMessage")
	}
	if !ev.Event.IsToolStart() || ev.Event.ToolInput.Summary(ev.Event.Tool) != "/p/main.go" {
		t.Errorf("event = %+v, want Read tool start on /p/main.go", ev.Event)
	}

	tokens, ok := next().(TokensMessage)
	if !ok {
		t.Fatal("third delivered message is not TokensMessage")
	}
	if tokens.Cumulative != 1234 {
		t.Errorf("Cumulative = %v, want 1234", tokens.Cumulative)
	}
}
