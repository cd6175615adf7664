// Package mock is a development backend that serves synthetic agent
// sessions over the same WebSocket and REST surface the dashboard uses.
package mock

import (
	"errors"
	"sync"
	"time"

	"github.com/agent-racer/hexboard/internal/client"
	"github.com/google/uuid"
)

// DefaultHistorySize bounds the event history kept for get_history.
const DefaultHistorySize = 500

// ErrNotFound is returned for operations on an unknown session id.
var ErrNotFound = errors.New("session not found")

// Store holds the mock sessions, the recent event history and the
// cumulative token count. It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*client.SessionSnapshot
	order      []string
	history    []client.SessionEvent
	maxHistory int
	events     int
	tokens     float64
}

// NewStore creates an empty store keeping at most maxHistory events.
func NewStore(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultHistorySize
	}
	return &Store{
		sessions:   make(map[string]*client.SessionSnapshot),
		maxHistory: maxHistory,
	}
}

// Put inserts or replaces a session.
func (s *Store) Put(snap client.SessionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[snap.ID]; !ok {
		s.order = append(s.order, snap.ID)
	}
	c := clone(snap)
	s.sessions[snap.ID] = &c
}

// Get returns a copy of one session.
func (s *Store) Get(id string) (client.SessionSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.sessions[id]
	if !ok {
		return client.SessionSnapshot{}, false
	}
	return clone(*p), true
}

// List returns copies of all sessions in creation order.
func (s *Store) List() []client.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]client.SessionSnapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clone(*s.sessions[id]))
	}
	return out
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Update runs fn on the stored session under the write lock and returns
// the result. fn must not call back into the store.
func (s *Store) Update(id string, fn func(*client.SessionSnapshot)) (client.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.sessions[id]
	if !ok {
		return client.SessionSnapshot{}, ErrNotFound
	}
	fn(p)
	return clone(*p), nil
}

// Delete removes a session and returns its last state.
func (s *Store) Delete(id string) (client.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.sessions[id]
	if !ok {
		return client.SessionSnapshot{}, ErrNotFound
	}
	delete(s.sessions, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return *p, nil
}

// Record appends ev to the history, evicting the oldest entries past the cap.
func (s *Store) Record(ev client.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events++
	s.history = append(s.history, ev)
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// History returns up to limit of the most recent events, oldest first.
func (s *Store) History(limit int) []client.SessionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]client.SessionEvent(nil), h...)
}

// EventCount returns the number of events recorded since start.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events
}

// AddTokens adds n to the cumulative count and returns the new total.
func (s *Store) AddTokens(n float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens += n
	return s.tokens
}

// Tokens returns the cumulative token count.
func (s *Store) Tokens() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

func clone(s client.SessionSnapshot) client.SessionSnapshot {
	if s.Cell != nil {
		c := *s.Cell
		s.Cell = &c
	}
	if s.Git != nil {
		g := *s.Git
		s.Git = &g
	}
	return s
}

// newEvent builds an event for s. Sessions with an external identity report
// it as the event's session id, as real agent hooks do.
func newEvent(kind client.EventKind, s client.SessionSnapshot, now time.Time) client.SessionEvent {
	sid := s.ExternalID
	if sid == "" {
		sid = s.ID
	}
	return client.SessionEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		SessionID: sid,
		Cwd:       s.Cwd,
		Timestamp: now.UnixMilli(),
	}
}
