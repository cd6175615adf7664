package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/agent-racer/hexboard/internal/client"
	"github.com/agent-racer/hexboard/internal/hex"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeTransport struct {
	state     client.State
	connected []string
	sent      []client.MessageType
	payloads  []any
	onMsg     func(client.Message)
	onConn    func(bool)
	detached  int
}

func (f *fakeTransport) Connect(endpoint string) { f.connected = append(f.connected, endpoint) }
func (f *fakeTransport) Disconnect()             { f.state = client.StateDisconnected }
func (f *fakeTransport) State() client.State     { return f.state }

func (f *fakeTransport) Send(t client.MessageType, payload any) bool {
	if f.state != client.StateConnected {
		return false
	}
	f.sent = append(f.sent, t)
	f.payloads = append(f.payloads, payload)
	return true
}

func (f *fakeTransport) OnMessage(fn func(client.Message)) func() {
	f.onMsg = fn
	return func() { f.detached++ }
}

func (f *fakeTransport) OnConnection(fn func(bool)) func() {
	f.onConn = fn
	return func() { f.detached++ }
}

type fakeAPI struct {
	mu        sync.Mutex
	placed    map[string]hex.Axial
	created   []string
	deleted   []string
	restarted []string
	cancelled []string
	suggest   []string
	err       error
}

func newFakeAPI() *fakeAPI { return &fakeAPI{placed: make(map[string]hex.Axial)} }

func (f *fakeAPI) CreateSession(_ context.Context, req client.CreateSessionRequest) (*client.SessionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req.Cwd)
	return &client.SessionResult{}, f.err
}

func (f *fakeAPI) UpdateSession(_ context.Context, id string, req client.UpdateSessionRequest) (*client.SessionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.ZonePosition != nil {
		f.placed[id] = *req.ZonePosition
	}
	return &client.SessionResult{}, f.err
}

func (f *fakeAPI) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeAPI) RestartSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = append(f.restarted, id)
	return f.err
}

func (f *fakeAPI) CancelSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return f.err
}

func (f *fakeAPI) Autocomplete(context.Context, string) ([]string, error) { return f.suggest, f.err }

func (f *fakeAPI) GetConfig(context.Context) (*client.ServerConfig, error) {
	return &client.ServerConfig{Username: "dev", Hostname: "box"}, nil
}

func (f *fakeAPI) GetHealth(context.Context) (*client.Health, error) {
	return &client.Health{OK: true, Version: "1.2.3"}, nil
}

// run executes cmd and any batched children, returning the produced messages.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return nm, cmd
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func cell(q, r int) *hex.Axial { return &hex.Axial{Q: q, R: r} }

func newTestModel() (Model, *fakeTransport, *fakeAPI) {
	tr := &fakeTransport{}
	api := newFakeAPI()
	m := New(Options{Transport: tr, API: api, Endpoint: "ws://test/ws"})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model), tr, api
}

func snapshot(sessions ...client.SessionSnapshot) InboundMsg {
	return InboundMsg{Message: client.SessionsMessage{Sessions: sessions}}
}

func TestInitConnects(t *testing.T) {
	m, tr, _ := newTestModel()
	run(m.Init())
	if len(tr.connected) != 1 || tr.connected[0] != "ws://test/ws" {
		t.Errorf("connected = %v, want [ws://test/ws]", tr.connected)
	}
}

func TestSnapshotWritesBackAllocatedCells(t *testing.T) {
	m, _, api := newTestModel()

	m, cmd := update(t, m, snapshot(
		client.SessionSnapshot{ID: "a", Name: "alpha", Status: client.StatusIdle, Cwd: "/a"},
		client.SessionSnapshot{ID: "b", Name: "beta", Status: client.StatusWorking, Cwd: "/b", Cell: cell(0, 0)},
	))
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg)
	}

	if got := m.Scene().Len(); got != 2 {
		t.Fatalf("zones = %d, want 2", got)
	}
	if len(api.placed) != 1 {
		t.Fatalf("placed = %v, want only the session without a cell", api.placed)
	}
	za, _ := m.Scene().Zone("a")
	if got, ok := api.placed["a"]; !ok || got != za.Cell() {
		t.Errorf("placed[a] = %v, want %v", got, za.Cell())
	}
	if za.Cell() == hex.Origin {
		t.Error("a was placed on b's cell")
	}

	// A repeated snapshot with the persisted cell allocates nothing.
	ca := za.Cell()
	_, cmd = update(t, m, snapshot(
		client.SessionSnapshot{ID: "a", Name: "alpha", Status: client.StatusIdle, Cwd: "/a", Cell: &ca},
		client.SessionSnapshot{ID: "b", Name: "beta", Status: client.StatusWorking, Cwd: "/b", Cell: cell(0, 0)},
	))
	if msgs := run(cmd); len(msgs) != 0 {
		t.Errorf("second snapshot produced %d commands, want 0", len(msgs))
	}
}

func TestWriteBackFailureKeepsZone(t *testing.T) {
	m, _, api := newTestModel()
	api.err = errors.New("boom")

	m, cmd := update(t, m, snapshot(client.SessionSnapshot{ID: "a", Cwd: "/a"}))
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg)
	}
	if _, ok := m.Scene().Zone("a"); !ok {
		t.Fatal("zone removed after failed write-back")
	}
	if !m.statusBar.IsError {
		t.Error("failed write-back not flashed")
	}
}

func TestEventReachesSceneAndFeed(t *testing.T) {
	m, _, _ := newTestModel()
	m, _ = update(t, m, snapshot(client.SessionSnapshot{ID: "a", Name: "alpha", Cwd: "/repo", Cell: cell(0, 0)}))

	ev := client.SessionEvent{ID: "e1", Kind: client.EventPreToolUse, SessionID: "ext", Cwd: "/repo", Tool: "Read"}
	m, cmd := update(t, m, InboundMsg{Message: client.EventMessage{Event: ev}})

	if cmd == nil {
		t.Error("tool start did not start the frame loop")
	}
	z, _ := m.Scene().Zone("a")
	if tool, active := z.Tool(); tool != "Read" || !active {
		t.Errorf("Tool() = %q, %v, want Read, true", tool, active)
	}
	if len(m.feed.Entries) != 1 {
		t.Fatalf("feed entries = %d, want 1", len(m.feed.Entries))
	}
	if got := m.feed.Entries[0].Session; got != "alpha" {
		t.Errorf("feed session = %q, want alpha", got)
	}

	// Replayed history must not duplicate the live line.
	m, _ = update(t, m, InboundMsg{Message: client.HistoryMessage{Events: []client.SessionEvent{ev}}})
	if len(m.feed.Entries) != 1 {
		t.Errorf("feed entries after history = %d, want 1", len(m.feed.Entries))
	}
}

func TestTokensMessage(t *testing.T) {
	m, _, _ := newTestModel()
	m, _ = update(t, m, InboundMsg{Message: client.TokensMessage{Cumulative: 4200}})
	if m.statusBar.Tokens != 4200 {
		t.Errorf("Tokens = %d, want 4200", m.statusBar.Tokens)
	}
}

func TestNavigationAndDetail(t *testing.T) {
	m, _, _ := newTestModel()
	m, _ = update(t, m, snapshot(
		client.SessionSnapshot{ID: "a", Cwd: "/a", Cell: cell(0, 0)},
		client.SessionSnapshot{ID: "b", Cwd: "/b", Cell: cell(1, 0)},
	))

	m, _ = update(t, m, keyPress("j"))
	if got := m.Scene().Selected(); got != "a" {
		t.Fatalf("Selected() = %q, want a", got)
	}
	m, _ = update(t, m, keyPress("j"))
	if got := m.Scene().Selected(); got != "b" {
		t.Fatalf("Selected() = %q, want b", got)
	}
	if m.board.Focus != (hex.Axial{Q: 1, R: 0}) {
		t.Errorf("Focus = %v, want (1,0)", m.board.Focus)
	}

	m, _ = update(t, m, keyPress("enter"))
	if m.overlay != OverlayDetail || m.detail == nil || m.detail.Session.ID != "b" {
		t.Fatal("enter did not open the detail panel for b")
	}

	// The detail panel closes when its zone goes away.
	m, _ = update(t, m, snapshot(client.SessionSnapshot{ID: "a", Cwd: "/a", Cell: cell(0, 0)}))
	if m.detail != nil {
		t.Error("detail still open after its session was removed")
	}
	if got := m.Scene().Selected(); got != "" {
		t.Errorf("Selected() = %q, want empty after disposal", got)
	}

	m, _ = update(t, m, keyPress("j"))
	m, _ = update(t, m, keyPress("esc"))
	if got := m.Scene().Selected(); got != "" {
		t.Errorf("Selected() after esc = %q, want empty", got)
	}
}

func TestSessionActions(t *testing.T) {
	tests := []struct {
		name  string
		keys  []string
		check func(*fakeAPI) []string
		want  int
	}{
		{"restart", []string{"r"}, func(a *fakeAPI) []string { return a.restarted }, 1},
		{"cancel", []string{"c"}, func(a *fakeAPI) []string { return a.cancelled }, 1},
		{"delete needs confirmation", []string{"x"}, func(a *fakeAPI) []string { return a.deleted }, 0},
		{"delete confirmed", []string{"x", "x"}, func(a *fakeAPI) []string { return a.deleted }, 1},
		{"delete interrupted", []string{"x", "j", "x"}, func(a *fakeAPI) []string { return a.deleted }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, api := newTestModel()
			m, _ = update(t, m, snapshot(client.SessionSnapshot{ID: "a", Cwd: "/a", Cell: cell(0, 0)}))
			m, _ = update(t, m, keyPress("j"))

			var cmd tea.Cmd
			for _, k := range tt.keys {
				m, cmd = update(t, m, keyPress(k))
				run(cmd)
			}
			if got := len(tt.check(api)); got != tt.want {
				t.Errorf("calls = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestActionWithoutSelectionIsNoop(t *testing.T) {
	m, _, _ := newTestModel()
	m, _ = update(t, m, snapshot(client.SessionSnapshot{ID: "a", Cwd: "/a", Cell: cell(0, 0)}))
	if _, cmd := update(t, m, keyPress("r")); cmd != nil {
		t.Error("restart without selection returned a command")
	}
}

func TestNewSessionPrompt(t *testing.T) {
	m, _, api := newTestModel()
	api.suggest = []string{"/home/dev/project-one", "/home/dev/project-two"}

	m, _ = update(t, m, keyPress("n"))
	if !m.prompting {
		t.Fatal("n did not open the prompt")
	}
	m.prompt.SetValue("/home/dev/p")

	m, cmd := update(t, m, keyPress("tab"))
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg)
	}
	if got := m.prompt.Value(); got != "/home/dev/project-" {
		t.Errorf("completed = %q, want /home/dev/project-", got)
	}

	m.prompt.SetValue("/home/dev/project-one")
	m, cmd = update(t, m, keyPress("enter"))
	run(cmd)
	if m.prompting {
		t.Error("prompt still open after enter")
	}
	if len(api.created) != 1 || api.created[0] != "/home/dev/project-one" {
		t.Errorf("created = %v, want [/home/dev/project-one]", api.created)
	}
}

func TestComplete(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		suggestions []string
		want        string
	}{
		{"none", "/a", nil, "/a"},
		{"single", "/ho", []string{"/home/"}, "/home/"},
		{"common prefix", "/s", []string{"/srv/a", "/srv/b"}, "/srv/"},
		{"no progress", "/srv/", []string{"/srv/a", "/srv/b"}, "/srv/"},
		{"unrelated", "/x", []string{"/y"}, "/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := complete(tt.input, tt.suggestions); got != tt.want {
				t.Errorf("complete(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResyncRequestsHistory(t *testing.T) {
	m, tr, _ := newTestModel()
	m, _ = update(t, m, keyPress("s"))
	if len(tr.sent) != 0 {
		t.Fatal("sent while disconnected")
	}
	if !m.statusBar.IsError {
		t.Error("resync while disconnected not flashed")
	}

	tr.state = client.StateConnected
	_, _ = update(t, m, keyPress("s"))
	if len(tr.sent) != 1 || tr.sent[0] != client.MsgGetHistory {
		t.Fatalf("sent = %v, want [get_history]", tr.sent)
	}
	if req, ok := tr.payloads[0].(client.HistoryRequest); !ok || req.Limit != client.DefaultHistoryLimit {
		t.Errorf("payload = %#v, want limit %d", tr.payloads[0], client.DefaultHistoryLimit)
	}
}

func TestDisconnectBanner(t *testing.T) {
	m, tr, _ := newTestModel()

	if view := m.View(); !strings.Contains(view, "DISCONNECTED") {
		t.Error("expected disconnect banner before first connection")
	}

	tr.state = client.StateConnected
	m, cmd := update(t, m, ConnectionMsg{Connected: true})
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg)
	}
	view := m.View()
	if strings.Contains(view, "DISCONNECTED") {
		t.Error("banner still shown while connected")
	}
	if !strings.Contains(view, "dev@box") {
		t.Error("host from backend config not shown")
	}

	tr.state = client.StateConnecting
	m, _ = update(t, m, ConnectionMsg{Connected: false})
	if view := m.View(); !strings.Contains(view, "DISCONNECTED") {
		t.Error("banner missing after disconnect")
	}
}

func TestViewBeforeResize(t *testing.T) {
	m := New(Options{})
	if got := m.View(); got != "Initializing..." {
		t.Errorf("View() = %q, want Initializing...", got)
	}
}

type recordingSender struct{ msgs []tea.Msg }

func (s *recordingSender) Send(msg tea.Msg) { s.msgs = append(s.msgs, msg) }

func TestAttachForwardsCallbacks(t *testing.T) {
	tr := &fakeTransport{}
	s := &recordingSender{}
	detach := Attach(s, tr)

	tr.onConn(true)
	tr.onMsg(client.TokensMessage{Cumulative: 1})

	if len(s.msgs) != 2 {
		t.Fatalf("forwarded %d messages, want 2", len(s.msgs))
	}
	if c, ok := s.msgs[0].(ConnectionMsg); !ok || !c.Connected {
		t.Errorf("msgs[0] = %#v, want ConnectionMsg{true}", s.msgs[0])
	}
	if _, ok := s.msgs[1].(InboundMsg); !ok {
		t.Errorf("msgs[1] = %T, want InboundMsg", s.msgs[1])
	}

	detach()
	if tr.detached != 2 {
		t.Errorf("detached = %d, want 2", tr.detached)
	}
}
