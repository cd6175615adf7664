package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/agent-racer/hexboard/internal/hex"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ErrNotConnected is returned when no backend URL is configured.
var ErrNotConnected = errors.New("backend not configured")

// APIClient makes REST calls to the hexboard backend. Results of mutating
// calls are informational only: the resulting session state arrives later
// through the sessions push.
type APIClient struct {
	baseURL string
	client  *http.Client
	lookups singleflight.Group
}

// NewAPIClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:4003").
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	Name  string          `json:"name,omitempty"`
	Cwd   string          `json:"cwd"`
	Flags map[string]bool `json:"flags,omitempty"`
}

// UpdateSessionRequest is the body of PATCH /sessions/{id}. Nil fields are left unchanged.
type UpdateSessionRequest struct {
	Name         *string    `json:"name,omitempty"`
	ZonePosition *hex.Axial `json:"zonePosition,omitempty"`
}

// SessionResult is the envelope of session mutation responses.
type SessionResult struct {
	OK      bool             `json:"ok"`
	Error   string           `json:"error,omitempty"`
	Session *SessionSnapshot `json:"session,omitempty"`
}

// AutocompleteResult is returned by GET /api/autocomplete.
type AutocompleteResult struct {
	OK          bool     `json:"ok"`
	Error       string   `json:"error,omitempty"`
	Suggestions []string `json:"suggestions"`
}

// ServerConfig is returned by GET /config.
type ServerConfig struct {
	Username string `json:"username"`
	Hostname string `json:"hostname"`
}

// Health is returned by GET /health.
type Health struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	Clients int    `json:"clients"`
	Events  int    `json:"events"`
}

// CreateSession sends POST /sessions.
func (c *APIClient) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionResult, error) {
	var out SessionResult
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSession sends PATCH /sessions/{id}.
func (c *APIClient) UpdateSession(ctx context.Context, id string, req UpdateSessionRequest) (*SessionResult, error) {
	var out SessionResult
	if err := c.do(ctx, http.MethodPatch, "/sessions/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession sends DELETE /sessions/{id}.
func (c *APIClient) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil)
}

// RestartSession sends POST /sessions/{id}/restart.
func (c *APIClient) RestartSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/restart", nil, nil)
}

// CancelSession sends POST /sessions/{id}/cancel (interrupts the running prompt).
func (c *APIClient) CancelSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// Autocomplete returns directory suggestions for a partial path.
// Concurrent lookups for the same prefix share one request.
func (c *APIClient) Autocomplete(ctx context.Context, partial string) ([]string, error) {
	v, err, _ := c.lookups.Do(partial, func() (interface{}, error) {
		var out AutocompleteResult
		path := "/api/autocomplete?path=" + url.QueryEscape(partial)
		if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		return out.Suggestions, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// GetConfig fetches /config.
func (c *APIClient) GetConfig(ctx context.Context) (*ServerConfig, error) {
	var out ServerConfig
	if err := c.do(ctx, http.MethodGet, "/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetHealth fetches /health.
func (c *APIClient) GetHealth(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if c == nil || c.baseURL == "" {
		return ErrNotConnected
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, errorText(respBody))
	}

	// Backend reports logical failures as {"ok":false,"error":"..."} with 200.
	var status struct {
		OK    *bool  `json:"ok"`
		Error string `json:"error"`
	}
	if json.Unmarshal(respBody, &status) == nil && status.OK != nil && !*status.OK {
		return fmt.Errorf("%s %s: %s", method, path, errorText(respBody))
	}

	if out != nil && len(respBody) > 0 {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

// errorText prefers the backend's "error" field over the raw body.
func errorText(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(bytes.TrimSpace(body))
}
