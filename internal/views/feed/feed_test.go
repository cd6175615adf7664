package feed

import (
	"fmt"
	"strings"
	"testing"

	"github.com/agent-racer/hexboard/internal/client"
)

var sessions = []client.SessionSnapshot{
	{ID: "A", Name: "alpha", Cwd: "/p"},
	{ID: "B", Name: "beta", ExternalID: "ext1", Cwd: "/p"},
}

func TestAddEventAttribution(t *testing.T) {
	tests := []struct {
		name string
		ev   client.SessionEvent
		want string
	}{
		{"external identity", client.SessionEvent{ID: "1", SessionID: "ext1", Cwd: "/p"}, "beta"},
		{"directory fallback", client.SessionEvent{ID: "2", SessionID: "ext9", Cwd: "/p"}, "alpha"},
		{"own id", client.SessionEvent{ID: "3", SessionID: "A"}, "alpha"},
		{"unattributed", client.SessionEvent{ID: "4", SessionID: "zzz", Cwd: "/q"}, Unattributed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(10)
			m.AddEvent(tt.ev, sessions)
			if len(m.Entries) != 1 {
				t.Fatalf("entries = %d, want 1", len(m.Entries))
			}
			if got := m.Entries[0].Session; got != tt.want {
				t.Errorf("Session = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddEventDescribe(t *testing.T) {
	fail := false
	tests := []struct {
		name     string
		ev       client.SessionEvent
		wantKind string
		wantMsg  string
	}{
		{"tool start", client.SessionEvent{Kind: client.EventPreToolUse, Tool: "Edit",
			ToolInput: &client.ToolInput{FilePath: "/p/main.go"}}, "tool", "Edit /p/main.go"},
		{"tool end", client.SessionEvent{Kind: client.EventPostToolUse, Tool: "Bash", Duration: 1500}, "done", "Bash (1.5s)"},
		{"tool failure", client.SessionEvent{Kind: client.EventPostToolUse, Tool: "Bash", Success: &fail}, "fail", "Bash"},
		{"prompt", client.SessionEvent{Kind: client.EventUserPromptSubmit, Prompt: "fix\n  the tests"}, "user", "fix the tests"},
		{"session end", client.SessionEvent{Kind: client.EventSessionEnd}, "sess", "session end"},
		{"unknown kind", client.SessionEvent{Kind: "compaction"}, "note", "compaction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(10)
			m.AddEvent(tt.ev, nil)
			e := m.Entries[0]
			if e.Kind != tt.wantKind || e.Message != tt.wantMsg {
				t.Errorf("entry = (%q, %q), want (%q, %q)", e.Kind, e.Message, tt.wantKind, tt.wantMsg)
			}
		})
	}
}

func TestMaxEntries(t *testing.T) {
	m := New(50)
	for i := 0; i < 80; i++ {
		m.AddEvent(client.SessionEvent{ID: fmt.Sprintf("e%d", i)}, nil)
	}
	if len(m.Entries) != 50 {
		t.Errorf("entries = %d, want 50", len(m.Entries))
	}
	if m.Entries[0].EventID != "e30" {
		t.Errorf("oldest entry = %q, want e30", m.Entries[0].EventID)
	}
	// Evicted ids may come back.
	if !m.AddEvent(client.SessionEvent{ID: "e0"}, nil) {
		t.Error("evicted event id rejected as duplicate")
	}
}

func TestDefaultMax(t *testing.T) {
	if m := New(0); m.Max() != DefaultMaxEntries {
		t.Errorf("Max() = %d, want %d", m.Max(), DefaultMaxEntries)
	}
}

func TestHistoryDeduplicates(t *testing.T) {
	m := New(10)
	history := []client.SessionEvent{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	if n := m.AddHistory(history, sessions); n != 3 {
		t.Errorf("first AddHistory = %d, want 3", n)
	}
	if n := m.AddHistory(history, sessions); n != 0 {
		t.Errorf("replayed AddHistory = %d, want 0", n)
	}
	// Events without ids are never treated as duplicates.
	m.AddEvent(client.SessionEvent{}, nil)
	m.AddEvent(client.SessionEvent{}, nil)
	if len(m.Entries) != 5 {
		t.Errorf("entries = %d, want 5", len(m.Entries))
	}
}

func TestScrollUpDown(t *testing.T) {
	m := New(0)
	for i := 0; i < 20; i++ {
		m.Note("note", "msg")
	}
	if m.Offset != 0 {
		t.Fatal("expected offset 0 after adds")
	}

	m.ScrollUp(5)
	if m.Offset != 5 {
		t.Errorf("expected offset 5, got %d", m.Offset)
	}

	m.ScrollDown(3)
	if m.Offset != 2 {
		t.Errorf("expected offset 2, got %d", m.Offset)
	}

	m.ScrollDown(10) // shouldn't go below 0
	if m.Offset != 0 {
		t.Errorf("expected offset 0, got %d", m.Offset)
	}

	m.ScrollUp(100)
	if m.Offset != 19 { // max is len-1
		t.Errorf("expected offset 19, got %d", m.Offset)
	}

	m.Note("note", "new")
	if m.Offset != 0 {
		t.Error("adding entry should reset scroll to 0")
	}
}

func TestViewEmpty(t *testing.T) {
	m := New(0)
	if v := m.View(80, 20); !strings.Contains(v, "No activity") {
		t.Error("empty view should show 'No activity' message")
	}
}

func TestViewWithEntries(t *testing.T) {
	m := New(0)
	m.Note("note", "connected")
	m.AddEvent(client.SessionEvent{Kind: client.EventPreToolUse, SessionID: "ext1", Tool: "Grep"}, sessions)
	v := m.View(80, 20)
	for _, want := range []string{"connected", "beta", "Grep"} {
		if !strings.Contains(v, want) {
			t.Errorf("view should contain %q", want)
		}
	}
}
