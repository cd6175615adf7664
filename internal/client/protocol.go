package client

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgSessions   MessageType = "sessions"
	MsgEvent      MessageType = "event"
	MsgHistory    MessageType = "history"
	MsgTokens     MessageType = "tokens"
	MsgGetHistory MessageType = "get_history"
)

// Envelope is the frame shared by every message in both directions.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is a decoded inbound frame. It is one of SessionsMessage,
// EventMessage, HistoryMessage or TokensMessage.
type Message interface {
	Type() MessageType
}

// SessionsMessage carries a full snapshot list. Skipped counts entries that
// could not be decoded and were left out.
type SessionsMessage struct {
	Sessions []SessionSnapshot
	Skipped  int
}

// EventMessage carries one live event.
type EventMessage struct {
	Event SessionEvent
}

// HistoryMessage answers a get_history request.
type HistoryMessage struct {
	Events []SessionEvent
}

// TokensMessage reports the cumulative token count across sessions.
type TokensMessage struct {
	Cumulative float64 `json:"cumulative"`
}

func (SessionsMessage) Type() MessageType { return MsgSessions }
func (EventMessage) Type() MessageType    { return MsgEvent }
func (HistoryMessage) Type() MessageType  { return MsgHistory }
func (TokensMessage) Type() MessageType   { return MsgTokens }

// HistoryRequest is the payload of the get_history control message.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// ErrUnknownType is returned by Decode for message types this client does
// not consume.
type ErrUnknownType struct {
	Type MessageType
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// Decode parses one inbound frame. List payloads are decoded entry by entry
// so a single malformed entry does not discard its siblings.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case MsgSessions:
		var raws []json.RawMessage
		if err := json.Unmarshal(env.Payload, &raws); err != nil {
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
		msg := SessionsMessage{Sessions: make([]SessionSnapshot, 0, len(raws))}
		for _, raw := range raws {
			var s SessionSnapshot
			if err := json.Unmarshal(raw, &s); err != nil {
				msg.Skipped++
				continue
			}
			msg.Sessions = append(msg.Sessions, s)
		}
		return msg, nil

	case MsgEvent:
		var ev SessionEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		return EventMessage{Event: ev}, nil

	case MsgHistory:
		var raws []json.RawMessage
		if err := json.Unmarshal(env.Payload, &raws); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		msg := HistoryMessage{Events: make([]SessionEvent, 0, len(raws))}
		for _, raw := range raws {
			var ev SessionEvent
			if json.Unmarshal(raw, &ev) == nil {
				msg.Events = append(msg.Events, ev)
			}
		}
		return msg, nil

	case MsgTokens:
		var t TokensMessage
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			return nil, fmt.Errorf("decode tokens: %w", err)
		}
		return t, nil
	}

	return nil, &ErrUnknownType{Type: env.Type}
}

// Encode builds an outbound frame.
func Encode(t MessageType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}
