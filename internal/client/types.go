// Package client provides the WebSocket transport and the HTTP API client
// for the hexboard backend. Types mirror the backend wire protocol.
package client

import (
	"encoding/json"

	"github.com/agent-racer/hexboard/internal/hex"
)

// Status is a session's coarse state as reported by the backend.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
	StatusWaiting Status = "waiting"
	StatusOffline Status = "offline"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusWorking, StatusWaiting, StatusOffline:
		return true
	}
	return false
}

// GitStatus is the repository summary attached to a session.
type GitStatus struct {
	Branch       string `json:"branch"`
	Ahead        int    `json:"ahead"`
	Behind       int    `json:"behind"`
	Staged       int    `json:"staged"`
	Unstaged     int    `json:"unstaged"`
	Untracked    int    `json:"untracked"`
	LinesAdded   int    `json:"linesAdded"`
	LinesRemoved int    `json:"linesRemoved"`
	IsRepo       bool   `json:"isRepo"`
	LastChecked  int64  `json:"lastChecked,omitempty"`
}

// Equal compares the fields that affect the git badge. LastChecked is
// ignored since it changes on every poll.
func (g *GitStatus) Equal(o *GitStatus) bool {
	if g == nil || o == nil {
		return g == o
	}
	a, b := *g, *o
	a.LastChecked, b.LastChecked = 0, 0
	return a == b
}

// Dirty reports whether the working tree has any changes.
func (g *GitStatus) Dirty() bool {
	return g != nil && (g.Staged+g.Unstaged+g.Untracked) > 0
}

// SessionSnapshot is one entry of a "sessions" push.
type SessionSnapshot struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	Cwd         string     `json:"cwd"`
	ExternalID  string     `json:"claudeSessionId,omitempty"`
	Cell        *hex.Axial `json:"zonePosition,omitempty"`
	CurrentTool string     `json:"currentTool,omitempty"`
	Git         *GitStatus `json:"gitStatus,omitempty"`
	TmuxSession string     `json:"tmuxSession,omitempty"`
	CreatedAt   int64      `json:"createdAt,omitempty"`
	LastActive  int64      `json:"lastActivity,omitempty"`
}

// DisplayName returns the name to label the session with.
func (s SessionSnapshot) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if len(s.ID) > 8 {
		return s.ID[:8]
	}
	return s.ID
}

// EventKind discriminates session events.
type EventKind string

const (
	EventPreToolUse       EventKind = "pre_tool_use"
	EventPostToolUse      EventKind = "post_tool_use"
	EventStop             EventKind = "stop"
	EventSubagentStop     EventKind = "subagent_stop"
	EventSessionStart     EventKind = "session_start"
	EventSessionEnd       EventKind = "session_end"
	EventUserPromptSubmit EventKind = "user_prompt_submit"
	EventNotification     EventKind = "notification"
)

// SessionEvent is a single hook event emitted by an agent process.
type SessionEvent struct {
	ID           string          `json:"id"`
	Kind         EventKind       `json:"type"`
	SessionID    string          `json:"sessionId"`
	Cwd          string          `json:"cwd,omitempty"`
	Tool         string          `json:"tool,omitempty"`
	ToolInput    *ToolInput      `json:"toolInput,omitempty"`
	ToolResponse json.RawMessage `json:"toolResponse,omitempty"`
	Success      *bool           `json:"success,omitempty"`
	Prompt       string          `json:"prompt,omitempty"`
	Timestamp    int64           `json:"timestamp"`
	Duration     int64           `json:"duration,omitempty"`
}

// IsToolStart reports whether the event opens a tool invocation.
func (e SessionEvent) IsToolStart() bool { return e.Kind == EventPreToolUse }

// IsToolEnd reports whether the event closes a tool invocation.
func (e SessionEvent) IsToolEnd() bool { return e.Kind == EventPostToolUse }

// ToolInput carries the tool arguments consumers look at. Raw keeps the
// complete original object.
type ToolInput struct {
	FilePath    string `json:"file_path,omitempty"`
	Path        string `json:"path,omitempty"`
	Command     string `json:"command,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
	URL         string `json:"url,omitempty"`
	Query       string `json:"query,omitempty"`
	Description string `json:"description,omitempty"`
	Prompt      string `json:"prompt,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps the raw object.
func (t *ToolInput) UnmarshalJSON(data []byte) error {
	type plain ToolInput
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = ToolInput(p)
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the raw object back when present.
func (t ToolInput) MarshalJSON() ([]byte, error) {
	if len(t.Raw) > 0 {
		return t.Raw, nil
	}
	type plain ToolInput
	return json.Marshal(plain(t))
}

// ToolFamily groups tools by the argument that best describes a call.
type ToolFamily int

const (
	FamilyOther ToolFamily = iota
	FamilyFile
	FamilyShell
	FamilySearch
	FamilyWeb
	FamilyTask
)

func (f ToolFamily) String() string {
	switch f {
	case FamilyFile:
		return "file"
	case FamilyShell:
		return "shell"
	case FamilySearch:
		return "search"
	case FamilyWeb:
		return "web"
	case FamilyTask:
		return "task"
	default:
		return "other"
	}
}

// FamilyOf classifies a tool name.
func FamilyOf(tool string) ToolFamily {
	switch tool {
	case "Read", "Write", "Edit", "MultiEdit", "NotebookEdit", "NotebookRead":
		return FamilyFile
	case "Bash", "BashOutput", "KillShell":
		return FamilyShell
	case "Grep", "Glob", "LS":
		return FamilySearch
	case "WebFetch", "WebSearch":
		return FamilyWeb
	case "Task", "TodoWrite":
		return FamilyTask
	default:
		return FamilyOther
	}
}

// Summary returns a one-line description of the call for the given tool.
func (t *ToolInput) Summary(tool string) string {
	if t == nil {
		return ""
	}
	switch FamilyOf(tool) {
	case FamilyFile:
		return firstNonEmpty(t.FilePath, t.Path)
	case FamilyShell:
		return firstNonEmpty(t.Description, t.Command)
	case FamilySearch:
		return firstNonEmpty(t.Pattern, t.Path)
	case FamilyWeb:
		return firstNonEmpty(t.URL, t.Query)
	case FamilyTask:
		return firstNonEmpty(t.Description, t.Prompt)
	case FamilyOther:
		return firstNonEmpty(t.Description, t.FilePath, t.Command, t.Path)
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
