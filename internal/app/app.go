package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agent-racer/hexboard/internal/client"
	"github.com/agent-racer/hexboard/internal/hex"
	"github.com/agent-racer/hexboard/internal/scene"
	"github.com/agent-racer/hexboard/internal/theme"
	"github.com/agent-racer/hexboard/internal/views/detail"
	"github.com/agent-racer/hexboard/internal/views/feed"
	"github.com/agent-racer/hexboard/internal/views/grid"
	"github.com/agent-racer/hexboard/internal/views/status"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

const apiTimeout = 5 * time.Second

// API is the backend request surface used for session actions.
type API interface {
	CreateSession(ctx context.Context, req client.CreateSessionRequest) (*client.SessionResult, error)
	UpdateSession(ctx context.Context, id string, req client.UpdateSessionRequest) (*client.SessionResult, error)
	DeleteSession(ctx context.Context, id string) error
	RestartSession(ctx context.Context, id string) error
	CancelSession(ctx context.Context, id string) error
	Autocomplete(ctx context.Context, partial string) ([]string, error)
	GetConfig(ctx context.Context) (*client.ServerConfig, error)
	GetHealth(ctx context.Context) (*client.Health, error)
}

// Overlay identifies which panel occupies the side column.
type Overlay int

const (
	OverlayFeed Overlay = iota
	OverlayDetail
	OverlayNone
)

// Options configures the root model.
type Options struct {
	Transport      Transport
	API            API
	Endpoint       string
	Layout         hex.Layout
	MaxRadius      int
	FeedSize       int
	HistoryLimit   int
	ReconnectDelay time.Duration
	Logger         zerolog.Logger
}

type placement struct {
	id   string
	cell hex.Axial
}

// placements collects cells allocated during a snapshot pass; Update turns
// them into write-back commands once the pass is over.
type placements struct{ pending []placement }

func (p *placements) add(id string, cell hex.Axial) {
	p.pending = append(p.pending, placement{id, cell})
}

func (p *placements) drain() []placement {
	out := p.pending
	p.pending = nil
	return out
}

type (
	frameMsg        struct{}
	actionResultMsg struct {
		action string
		id     string
		err    error
	}
	autocompleteMsg struct {
		input       string
		suggestions []string
		err         error
	}
	healthMsg struct {
		health *client.Health
		config *client.ServerConfig
	}
)

// Model is the root Bubble Tea model.
type Model struct {
	transport Transport
	api       API
	endpoint  string
	opts      Options
	log       zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	keys   KeyMap
	width  int
	height int

	scene     *scene.Reconciler
	board     *grid.Board
	placed    *placements
	animating bool

	overlay   Overlay
	detail    *detail.Model
	feed      *feed.Model
	statusBar status.Model

	prompt        textinput.Model
	prompting     bool
	confirmDelete string

	connected bool
}

// New creates the root model.
func New(opts Options) Model {
	if opts.Layout.Pitch <= 0 {
		opts.Layout = hex.NewLayout(3.5, 0.2)
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = client.DefaultHistoryLimit
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = client.DefaultReconnectDelay
	}
	log := opts.Logger.With().Str("component", "app").Logger()

	board := grid.New(opts.Layout)
	placed := &placements{}
	rec := scene.New(scene.Options{
		Layout:    opts.Layout,
		MaxRadius: opts.MaxRadius,
		Views:     board,
		Effects:   board,
		OnPlaced:  placed.add,
		Logger:    opts.Logger,
	})

	f := feed.New(opts.FeedSize)
	in := textinput.New()
	in.Placeholder = "~/path/to/project"
	in.Prompt = "new session in: "
	in.CharLimit = 512

	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		transport: opts.Transport,
		api:       opts.API,
		endpoint:  opts.Endpoint,
		opts:      opts,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		scene:     rec,
		board:     board,
		placed:    placed,
		feed:      &f,
		statusBar: status.New(),
		prompt:    in,
	}
}

// Scene exposes the reconciler.
func (m Model) Scene() *scene.Reconciler { return m.scene }

// Init starts the connection and fetches backend metadata.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchInfo()}
	if m.transport != nil {
		t, endpoint := m.transport, m.endpoint
		cmds = append(cmds, func() tea.Msg {
			t.Connect(endpoint)
			return nil
		})
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.prompt.Width = msg.Width - len(m.prompt.Prompt) - 2
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ConnectionMsg:
		m.connected = msg.Connected
		m.statusBar.Connection = client.StateDisconnected
		if m.transport != nil {
			m.statusBar.Connection = m.transport.State()
		}
		if msg.Connected {
			m.statusBar.Connection = client.StateConnected
			m.feed.Note("conn", "connected")
			return m, m.fetchInfo()
		}
		m.feed.Note("conn", "disconnected")
		return m, nil

	case InboundMsg:
		return m.handleInbound(msg.Message)

	case frameMsg:
		m.animating = m.board.Tick()
		if m.animating {
			return m, frame()
		}
		return m, nil

	case actionResultMsg:
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Str("action", msg.action).Str("session", msg.id).Msg("action failed")
			m.statusBar.Flash(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
			m.feed.Note("err", fmt.Sprintf("%s %s: %v", msg.action, msg.id, msg.err))
			if m.detail != nil && m.detail.Session != nil && m.detail.Session.ID == msg.id {
				m.detail.ActionError = msg.err.Error()
			}
			return m, nil
		}
		if msg.action != "place" {
			m.statusBar.Flash(msg.action+" sent", false)
		}
		return m, nil

	case autocompleteMsg:
		if !m.prompting || m.prompt.Value() != msg.input {
			return m, nil
		}
		if msg.err != nil {
			m.statusBar.Flash("autocomplete: "+msg.err.Error(), true)
			return m, nil
		}
		if completed := complete(msg.input, msg.suggestions); completed != msg.input {
			m.prompt.SetValue(completed)
			m.prompt.CursorEnd()
		}
		if len(msg.suggestions) > 1 {
			m.statusBar.Flash(strings.Join(msg.suggestions, "  "), false)
		}
		return m, nil

	case healthMsg:
		if msg.config != nil && msg.config.Hostname != "" {
			m.statusBar.Host = msg.config.Username + "@" + msg.config.Hostname
		}
		if msg.health != nil {
			m.statusBar.Version = msg.health.Version
		}
		return m, nil
	}

	if m.prompting {
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleInbound(msg client.Message) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case client.SessionsMessage:
		diff := m.scene.ApplySnapshot(msg.Sessions)
		m.statusBar.SetSessions(m.scene.Sessions())
		if skipped := diff.Skipped + msg.Skipped; skipped > 0 {
			m.feed.Note("err", fmt.Sprintf("skipped %d malformed session entries", skipped))
		}
		if m.detail != nil && m.detail.Session != nil {
			if z, ok := m.scene.Zone(m.detail.Session.ID); ok {
				s := z.Session()
				m.detail.Session = &s
			} else {
				m.closeDetail()
			}
		}
		if m.confirmDelete != "" {
			if _, ok := m.scene.Zone(m.confirmDelete); !ok {
				m.confirmDelete = ""
			}
		}
		m.focusSelection()
		return m, tea.Batch(m.writeBack(), m.animate())

	case client.EventMessage:
		m.scene.HandleEvent(msg.Event)
		m.feed.AddEvent(msg.Event, m.scene.Sessions())
		return m, m.animate()

	case client.HistoryMessage:
		m.feed.AddHistory(msg.Events, m.scene.Sessions())
		return m, nil

	case client.TokensMessage:
		m.statusBar.Tokens = int64(msg.Cumulative)
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.prompting {
		return m.handlePromptKey(msg)
	}

	if !key.Matches(msg, m.keys.Delete) {
		m.confirmDelete = ""
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		if m.transport != nil {
			m.transport.Disconnect()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Escape):
		switch {
		case m.overlay == OverlayDetail:
			m.closeDetail()
		default:
			m.scene.Select("")
			m.focusSelection()
		}
		return m, nil

	case key.Matches(msg, m.keys.Next):
		m.scene.SelectNext()
		m.refreshDetail()
		m.focusSelection()
		return m, nil

	case key.Matches(msg, m.keys.Prev):
		m.scene.SelectPrev()
		m.refreshDetail()
		m.focusSelection()
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		z, ok := m.scene.Zone(m.scene.Selected())
		if !ok {
			return m, nil
		}
		s := z.Session()
		d := detail.New(&s, z.Cell())
		m.detail = &d
		m.overlay = OverlayDetail
		return m, nil

	case key.Matches(msg, m.keys.Feed):
		if m.overlay == OverlayFeed {
			m.overlay = OverlayNone
		} else {
			m.overlay = OverlayFeed
		}
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp):
		m.feed.ScrollUp(5)
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.feed.ScrollDown(5)
		return m, nil

	case key.Matches(msg, m.keys.Resync):
		if m.transport != nil && !m.transport.Send(client.MsgGetHistory, client.HistoryRequest{Limit: m.opts.HistoryLimit}) {
			m.statusBar.Flash("not connected", true)
		}
		return m, nil

	case key.Matches(msg, m.keys.Restart):
		return m, m.sessionAction("restart")

	case key.Matches(msg, m.keys.Cancel):
		return m, m.sessionAction("cancel")

	case key.Matches(msg, m.keys.Delete):
		id := m.scene.Selected()
		if id == "" {
			return m, nil
		}
		if m.confirmDelete != id {
			m.confirmDelete = id
			m.statusBar.Flash("press x again to delete", false)
			return m, nil
		}
		m.confirmDelete = ""
		return m, m.sessionAction("delete")

	case key.Matches(msg, m.keys.NewSession):
		m.prompting = true
		m.prompt.SetValue("")
		m.statusBar.Clear()
		return m, m.prompt.Focus()
	}

	return m, nil
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Escape):
		m.prompting = false
		m.prompt.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Complete):
		return m, m.autocomplete(m.prompt.Value())

	case key.Matches(msg, m.keys.Enter):
		cwd := strings.TrimSpace(m.prompt.Value())
		m.prompting = false
		m.prompt.Blur()
		if cwd == "" {
			return m, nil
		}
		return m, m.createSession(cwd)
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m *Model) closeDetail() {
	m.detail = nil
	m.overlay = OverlayFeed
}

// refreshDetail points an open detail panel at the new selection.
func (m *Model) refreshDetail() {
	if m.overlay != OverlayDetail {
		return
	}
	z, ok := m.scene.Zone(m.scene.Selected())
	if !ok {
		m.closeDetail()
		return
	}
	s := z.Session()
	d := detail.New(&s, z.Cell())
	m.detail = &d
}

func (m *Model) focusSelection() {
	if z, ok := m.scene.Zone(m.scene.Selected()); ok {
		m.board.Focus = z.Cell()
		return
	}
	m.board.Focus = hex.Origin
}

// animate starts the frame loop if a burst or active tool needs it.
func (m *Model) animate() tea.Cmd {
	if m.animating || !m.board.Animating() {
		return nil
	}
	m.animating = true
	return frame()
}

func frame() tea.Cmd {
	return tea.Tick(grid.FrameInterval, func(time.Time) tea.Msg { return frameMsg{} })
}

// writeBack persists cells allocated in the last pass. Failures are only
// reported; the zone keeps its cell either way.
func (m Model) writeBack() tea.Cmd {
	pending := m.placed.drain()
	if len(pending) == 0 || m.api == nil {
		return nil
	}
	cmds := make([]tea.Cmd, 0, len(pending))
	for _, p := range pending {
		cmds = append(cmds, m.call("place", p.id, func(ctx context.Context) error {
			cell := p.cell
			_, err := m.api.UpdateSession(ctx, p.id, client.UpdateSessionRequest{ZonePosition: &cell})
			return err
		}))
	}
	return tea.Batch(cmds...)
}

func (m Model) sessionAction(action string) tea.Cmd {
	id := m.scene.Selected()
	if id == "" || m.api == nil {
		return nil
	}
	var fn func(context.Context, string) error
	switch action {
	case "restart":
		fn = m.api.RestartSession
	case "cancel":
		fn = m.api.CancelSession
	case "delete":
		fn = m.api.DeleteSession
	default:
		return nil
	}
	return m.call(action, id, func(ctx context.Context) error { return fn(ctx, id) })
}

func (m Model) createSession(cwd string) tea.Cmd {
	if m.api == nil {
		return nil
	}
	return m.call("create", cwd, func(ctx context.Context) error {
		_, err := m.api.CreateSession(ctx, client.CreateSessionRequest{Cwd: cwd})
		return err
	})
}

func (m Model) call(action, id string, fn func(context.Context) error) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, apiTimeout)
		defer cancel()
		return actionResultMsg{action: action, id: id, err: fn(ctx)}
	}
}

func (m Model) autocomplete(input string) tea.Cmd {
	if m.api == nil || input == "" {
		return nil
	}
	api, parent := m.api, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, apiTimeout)
		defer cancel()
		s, err := api.Autocomplete(ctx, input)
		return autocompleteMsg{input: input, suggestions: s, err: err}
	}
}

func (m Model) fetchInfo() tea.Cmd {
	if m.api == nil {
		return nil
	}
	api, parent, log := m.api, m.ctx, m.log
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, apiTimeout)
		defer cancel()
		var out healthMsg
		h, err := api.GetHealth(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("health check failed")
		}
		out.health = h
		c, err := api.GetConfig(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("config fetch failed")
		}
		out.config = c
		return out
	}
}

// complete extends input to the longest prefix shared by all suggestions.
func complete(input string, suggestions []string) string {
	if len(suggestions) == 0 {
		return input
	}
	prefix := suggestions[0]
	for _, s := range suggestions[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if len(prefix) > len(input) && strings.HasPrefix(prefix, input) {
		return prefix
	}
	return input
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	top := m.statusBar.View()
	footer := m.footer()
	mainHeight := m.height - lipgloss.Height(top) - lipgloss.Height(footer)
	if !m.connected {
		mainHeight--
	}
	if mainHeight < 3 {
		mainHeight = 3
	}

	sideWidth := 0
	var side string
	switch m.overlay {
	case OverlayDetail:
		if m.detail != nil {
			side = m.detail.View()
			sideWidth = lipgloss.Width(side)
		}
	case OverlayFeed:
		sideWidth = m.width * 2 / 5
		if sideWidth < 30 {
			sideWidth = 30
		}
		side = m.feed.View(sideWidth, mainHeight)
		sideWidth = lipgloss.Width(side)
	}

	m.board.Width = m.width - sideWidth
	m.board.Height = mainHeight
	body := m.board.View()
	if side != "" {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, side)
	}

	sections := []string{top}
	if !m.connected {
		delay := m.opts.ReconnectDelay
		banner := lipgloss.NewStyle().Foreground(theme.ColorDanger).Bold(true).
			Render(fmt.Sprintf("DISCONNECTED · Reconnecting every %s", delay))
		sections = append(sections, banner)
	}
	sections = append(sections, body, footer)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) footer() string {
	if m.prompting {
		return m.prompt.View()
	}
	var parts []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+":"+h.Desc)
	}
	return theme.StyleDimmed.Render("  " + strings.Join(parts, "  "))
}
