package mock

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agent-racer/hexboard/internal/client"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxSuggestions = 20

// ServerOptions configures the HTTP surface.
type ServerOptions struct {
	Version  string
	Username string
	Hostname string
	Logger   zerolog.Logger
}

// Server exposes the session REST API and the /ws endpoint.
type Server struct {
	store *Store
	hub   *Hub
	gen   *Generator
	opts  ServerOptions
	log   zerolog.Logger
}

// NewServer creates a server. gen may be nil when no simulation runs.
func NewServer(store *Store, hub *Hub, gen *Generator, opts ServerOptions) *Server {
	if opts.Username == "" {
		if u, err := user.Current(); err == nil {
			opts.Username = u.Username
		}
	}
	if opts.Hostname == "" {
		opts.Hostname, _ = os.Hostname()
	}
	return &Server{
		store: store,
		hub:   hub,
		gen:   gen,
		opts:  opts,
		log:   opts.Logger.With().Str("component", "server").Logger(),
	}
}

// Routes returns the HTTP handler for every endpoint.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.HandleFunc("POST /sessions", s.handleCreate)
	mux.HandleFunc("PATCH /sessions/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDelete)
	mux.HandleFunc("POST /sessions/{id}/restart", s.handleRestart)
	mux.HandleFunc("POST /sessions/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/autocomplete", s.handleAutocomplete)
	mux.HandleFunc("GET /config", s.handleConfig)
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req client.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	req.Cwd = strings.TrimSpace(req.Cwd)
	if req.Cwd == "" {
		writeError(w, http.StatusBadRequest, "cwd is required")
		return
	}

	now := time.Now()
	snap := client.SessionSnapshot{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Status:     client.StatusIdle,
		Cwd:        req.Cwd,
		ExternalID: uuid.NewString(),
		CreatedAt:  now.UnixMilli(),
		LastActive: now.UnixMilli(),
	}
	if snap.Name == "" {
		snap.Name = filepath.Base(req.Cwd)
	}
	s.store.Put(snap)
	s.log.Info().Str("session", snap.ID).Str("cwd", snap.Cwd).Msg("session created")

	s.hub.PublishSessions()
	s.hub.PublishEvent(newEvent(client.EventSessionStart, snap, now))
	writeJSON(w, http.StatusOK, client.SessionResult{OK: true, Session: &snap})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req client.UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	snap, err := s.store.Update(r.PathValue("id"), func(p *client.SessionSnapshot) {
		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.ZonePosition != nil {
			c := *req.ZonePosition
			p.Cell = &c
		}
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.hub.PublishSessions()
	writeJSON(w, http.StatusOK, client.SessionResult{OK: true, Session: &snap})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Delete(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if s.gen != nil {
		s.gen.Forget(snap.ID)
	}
	s.log.Info().Str("session", snap.ID).Msg("session deleted")

	s.hub.PublishSessions()
	s.hub.PublishEvent(newEvent(client.EventSessionEnd, snap, time.Now()))
	writeJSON(w, http.StatusOK, client.SessionResult{OK: true})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	snap, err := s.store.Update(r.PathValue("id"), func(p *client.SessionSnapshot) {
		p.Status = client.StatusIdle
		p.CurrentTool = ""
		p.LastActive = now.UnixMilli()
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.hub.PublishSessions()
	s.hub.PublishEvent(newEvent(client.EventSessionStart, snap, now))
	writeJSON(w, http.StatusOK, client.SessionResult{OK: true, Session: &snap})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	var interrupted string
	snap, err := s.store.Update(r.PathValue("id"), func(p *client.SessionSnapshot) {
		interrupted = p.CurrentTool
		p.CurrentTool = ""
		p.Status = client.StatusWaiting
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.hub.PublishSessions()
	if interrupted != "" {
		ev := newEvent(client.EventPostToolUse, snap, now)
		ev.Tool = interrupted
		failed := false
		ev.Success = &failed
		s.hub.PublishEvent(ev)
	}
	s.hub.PublishEvent(newEvent(client.EventStop, snap, now))
	writeJSON(w, http.StatusOK, client.SessionResult{OK: true, Session: &snap})
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	suggestions, err := completeDir(r.URL.Query().Get("path"))
	if err != nil {
		writeJSON(w, http.StatusOK, client.AutocompleteResult{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, client.AutocompleteResult{OK: true, Suggestions: suggestions})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, client.ServerConfig{Username: s.opts.Username, Hostname: s.opts.Hostname})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, client.Health{
		OK:      true,
		Version: s.opts.Version,
		Clients: s.hub.ClientCount(),
		Events:  s.store.EventCount(),
	})
}

// completeDir lists directories whose path starts with partial. A leading
// "~" expands to the home directory and is kept in the suggestions.
func completeDir(partial string) ([]string, error) {
	if partial == "" {
		return nil, errors.New("path is required")
	}
	expanded, home := partial, ""
	if strings.HasPrefix(partial, "~") {
		h, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		home = h
		expanded = h + partial[1:]
	}

	dir, prefix := filepath.Split(expanded)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if strings.HasPrefix(e.Name(), ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}
		p := filepath.Join(dir, e.Name()) + string(filepath.Separator)
		if home != "" {
			p = "~" + strings.TrimPrefix(p, home)
		}
		out = append(out, p)
	}
	sort.Strings(out)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
