package mock

import (
	"context"
	"math"
	"math/rand"
	"path"
	"sync"
	"time"

	"github.com/agent-racer/hexboard/internal/client"
	"github.com/agent-racer/hexboard/internal/hex"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTickInterval is how often the generator advances the sessions.
const DefaultTickInterval = 500 * time.Millisecond

// Publisher fans generated changes out to connected clients.
type Publisher interface {
	PublishSessions()
	PublishEvent(ev client.SessionEvent)
	PublishTokens(total float64)
}

// Activity patterns. Each decides per tick whether a tool is running and
// what status the session reports.
const (
	patternSteady     = "steady"
	patternBurst      = "burst"
	patternStall      = "stall"
	patternMethodical = "methodical"
	patternNapping    = "napping"
)

var commonTools = []string{"Read", "Write", "Edit", "Bash", "Grep", "Glob", "Task", "WebFetch"}

type profile struct {
	pattern       string
	tokensPerTick int
	tools         []string
}

type agent struct {
	profile
	toolIdx     int
	toolStarted time.Time
}

// phase reports whether a tool should be running on this tick and the
// status the session shows.
func (a *agent) phase(tick int) (toolActive bool, status client.Status) {
	switch a.pattern {
	case patternBurst:
		return tick%8 < 3, client.StatusWorking
	case patternStall:
		// Work for 40 ticks, then wait on the user for 30.
		if tick%70 >= 40 {
			return false, client.StatusWaiting
		}
		return tick%4 == 0, client.StatusWorking
	case patternMethodical:
		return tick%5 != 0, client.StatusWorking
	case patternNapping:
		if tick%40 >= 20 {
			return false, client.StatusIdle
		}
		return tick%3 == 1, client.StatusWorking
	default:
		return tick%3 == 0, client.StatusWorking
	}
}

// tokens returns the token growth for one working tick.
func (a *agent) tokens(tick int, rng *rand.Rand) int {
	switch a.pattern {
	case patternBurst:
		if tick%8 < 3 {
			return int(float64(a.tokensPerTick)*2.5) + rng.Intn(500)
		}
		return a.tokensPerTick + rng.Intn(500)
	case patternMethodical:
		pace := 0.7 + 0.3*math.Sin(float64(tick)/10.0)
		return int(float64(a.tokensPerTick) * pace)
	default:
		return a.tokensPerTick + rng.Intn(400)
	}
}

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	Interval time.Duration
	Seed     int64
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Generator advances the stored sessions on a ticker, emitting tool and
// lifecycle events as their simulated activity changes.
type Generator struct {
	store    *Store
	pub      Publisher
	interval time.Duration
	rng      *rand.Rand
	now      func() time.Time
	log      zerolog.Logger

	mu     sync.Mutex
	agents map[string]*agent
	tick   int
}

// NewGenerator creates a generator over store.
func NewGenerator(store *Store, pub Publisher, opts GeneratorOptions) *Generator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultTickInterval
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Generator{
		store:    store,
		pub:      pub,
		interval: opts.Interval,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		now:      opts.Now,
		log:      opts.Logger.With().Str("component", "generator").Logger(),
		agents:   make(map[string]*agent),
	}
}

// Seed fills the store with the demo sessions.
func (g *Generator) Seed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	at := func(q, r int) *hex.Axial { return &hex.Axial{Q: q, R: r} }
	seeds := []struct {
		snap client.SessionSnapshot
		prof profile
	}{
		{
			snap: client.SessionSnapshot{
				ID: "mock-refactor", Name: "refactor", Cwd: "/home/user/myproject",
				ExternalID: uuid.NewString(), TmuxSession: "dev:0", Cell: at(0, 0),
				Git: &client.GitStatus{Branch: "main", IsRepo: true},
			},
			prof: profile{pattern: patternSteady, tokensPerTick: 1200,
				tools: []string{"Read", "Grep", "Edit", "Write", "Bash", "Edit", "Read", "Write"}},
		},
		{
			snap: client.SessionSnapshot{
				ID: "mock-tests", Name: "tests", Cwd: "/home/user/webapp",
				TmuxSession: "dev:1",
				Git:         &client.GitStatus{Branch: "feature/login", Ahead: 2, IsRepo: true},
			},
			prof: profile{pattern: patternBurst, tokensPerTick: 3500,
				tools: []string{"Read", "Write", "Bash", "Bash", "Write", "Bash"}},
		},
		{
			snap: client.SessionSnapshot{
				ID: "mock-debug", Name: "debug", Cwd: "/home/user/api-server",
				ExternalID: uuid.NewString(), TmuxSession: "dev:2",
			},
			prof: profile{pattern: patternStall, tokensPerTick: 800,
				tools: []string{"Read", "Grep", "Grep", "Read", "Bash"}},
		},
		{
			snap: client.SessionSnapshot{
				ID: "mock-review", Name: "review", Cwd: "/home/user/library",
				Git: &client.GitStatus{Branch: "main", Behind: 3, IsRepo: true},
			},
			prof: profile{pattern: patternMethodical, tokensPerTick: 600,
				tools: []string{"Read", "Read", "Grep", "Read", "Task", "WebFetch"}},
		},
		{
			// Shares a directory with "tests": events by directory reach both.
			snap: client.SessionSnapshot{
				ID: "mock-docs", Name: "docs", Cwd: "/home/user/webapp",
			},
			prof: profile{pattern: patternNapping, tokensPerTick: 900,
				tools: []string{"Read", "Edit", "WebFetch"}},
		},
		{
			snap: client.SessionSnapshot{
				ID: "mock-archive", Name: "archive", Cwd: "/home/user/old", Status: client.StatusOffline,
			},
		},
	}

	for _, s := range seeds {
		snap := s.snap
		if snap.Status == "" {
			snap.Status = client.StatusIdle
		}
		snap.CreatedAt = now.UnixMilli()
		snap.LastActive = now.UnixMilli()
		g.store.Put(snap)
		if s.prof.pattern != "" {
			g.agents[snap.ID] = &agent{profile: s.prof}
		}
	}
}

// Start runs the generator until ctx is done.
func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Step()
		}
	}
}

// Step advances every session by one tick.
func (g *Generator) Step() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tick++
	now := g.now()

	var (
		events  []client.SessionEvent
		changed bool
		tokens  int
	)
	for _, snap := range g.store.List() {
		if snap.Status == client.StatusOffline {
			continue
		}
		a := g.agentFor(snap.ID)
		wantTool, status := a.phase(g.tick)

		_, err := g.store.Update(snap.ID, func(s *client.SessionSnapshot) {
			before := clone(*s)

			if s.CurrentTool != "" && !wantTool {
				events = append(events, g.endTool(a, s, now))
			}
			if s.Status != status {
				if ev, ok := transition(s.Status, status, *s, now); ok {
					events = append(events, ev)
				}
				s.Status = status
			}
			if wantTool && s.CurrentTool == "" {
				events = append(events, g.startTool(a, s, now))
			}
			if status == client.StatusWorking {
				tokens += a.tokens(g.tick, g.rng)
				s.LastActive = now.UnixMilli()
			}

			if before.Status != s.Status || before.CurrentTool != s.CurrentTool || !before.Git.Equal(s.Git) {
				changed = true
			}
		})
		if err != nil {
			// Deleted between List and Update.
			delete(g.agents, snap.ID)
		}
	}

	if changed {
		g.pub.PublishSessions()
	}
	for _, ev := range events {
		g.pub.PublishEvent(ev)
	}
	if tokens > 0 {
		g.pub.PublishTokens(g.store.AddTokens(float64(tokens)))
	}
}

// Forget drops the simulated activity of a removed session.
func (g *Generator) Forget(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.agents, id)
}

func (g *Generator) agentFor(id string) *agent {
	a, ok := g.agents[id]
	if !ok {
		a = &agent{profile: profile{pattern: patternSteady, tokensPerTick: 1000, tools: commonTools}}
		g.agents[id] = a
	}
	return a
}

func (g *Generator) startTool(a *agent, s *client.SessionSnapshot, now time.Time) client.SessionEvent {
	tool := a.tools[a.toolIdx%len(a.tools)]
	a.toolIdx++
	a.toolStarted = now
	s.CurrentTool = tool

	ev := newEvent(client.EventPreToolUse, *s, now)
	ev.Tool = tool
	ev.ToolInput = g.inputFor(tool, s.Cwd)
	return ev
}

func (g *Generator) endTool(a *agent, s *client.SessionSnapshot, now time.Time) client.SessionEvent {
	ev := newEvent(client.EventPostToolUse, *s, now)
	ev.Tool = s.CurrentTool
	ok := g.rng.Intn(10) != 0
	ev.Success = &ok
	if !a.toolStarted.IsZero() {
		ev.Duration = now.Sub(a.toolStarted).Milliseconds()
	}

	if ok && s.Git != nil && s.Git.IsRepo {
		switch s.CurrentTool {
		case "Edit", "Write":
			s.Git.Unstaged++
			s.Git.LinesAdded += 1 + g.rng.Intn(40)
			s.Git.LinesRemoved += g.rng.Intn(15)
			s.Git.LastChecked = now.UnixMilli()
		}
	}
	s.CurrentTool = ""
	return ev
}

// transition returns the lifecycle event for a status change, if any.
func transition(from, to client.Status, s client.SessionSnapshot, now time.Time) (client.SessionEvent, bool) {
	switch to {
	case client.StatusIdle:
		return newEvent(client.EventStop, s, now), true
	case client.StatusWaiting:
		return newEvent(client.EventNotification, s, now), true
	case client.StatusWorking:
		if from == client.StatusIdle || from == client.StatusWaiting {
			ev := newEvent(client.EventUserPromptSubmit, s, now)
			ev.Prompt = "continue"
			return ev, true
		}
	}
	return client.SessionEvent{}, false
}

var (
	mockFiles    = []string{"main.go", "internal/server/server.go", "README.md", "go.mod", "cmd/app/main.go"}
	mockCommands = []string{"go test ./...", "make build", "git status", "go vet ./..."}
	mockPatterns = []string{"TODO", "func New", "**/*.go", "ErrNotFound"}
)

func (g *Generator) inputFor(tool, cwd string) *client.ToolInput {
	pick := func(vals []string) string { return vals[g.rng.Intn(len(vals))] }
	switch client.FamilyOf(tool) {
	case client.FamilyFile:
		return &client.ToolInput{FilePath: path.Join(cwd, pick(mockFiles))}
	case client.FamilyShell:
		return &client.ToolInput{Command: pick(mockCommands)}
	case client.FamilySearch:
		return &client.ToolInput{Pattern: pick(mockPatterns), Path: cwd}
	case client.FamilyWeb:
		return &client.ToolInput{URL: "https://pkg.go.dev/std"}
	case client.FamilyTask:
		return &client.ToolInput{Description: "explore the codebase"}
	}
	return nil
}
