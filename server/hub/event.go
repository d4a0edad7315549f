package hub

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// InboundKind identifies a client frame.
type InboundKind string

const (
	InboundMessage InboundKind = "message"
	InboundTyping  InboundKind = "typing"
	InboundPing    InboundKind = "ping"
)

// OutboundKind identifies a server frame.
type OutboundKind string

const (
	OutboundSessionCreated OutboundKind = "session_created"
	OutboundTyping         OutboundKind = "typing"
	OutboundMessage        OutboundKind = "message"
	OutboundUserTyping     OutboundKind = "user_typing"
	OutboundPong           OutboundKind = "pong"
	OutboundError          OutboundKind = "error"
)

// InboundEvent is a parsed client frame. Content is only set for message events.
type InboundEvent struct {
	Kind    InboundKind
	Content string
}

// inboundFrame is the wire shape of a client frame.
type inboundFrame struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// ParseInbound decodes one client frame. Frames with an unknown type, a
// missing type, or a non-string message content are rejected.
func ParseInbound(raw []byte) (*InboundEvent, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, errors.Wrap(err, "malformed frame")
	}

	switch InboundKind(frame.Type) {
	case InboundMessage:
		var content string
		if len(frame.Content) == 0 {
			return nil, errors.New("message frame requires content")
		}
		if err := json.Unmarshal(frame.Content, &content); err != nil {
			return nil, errors.New("message content must be a string")
		}
		return &InboundEvent{Kind: InboundMessage, Content: content}, nil
	case InboundTyping:
		return &InboundEvent{Kind: InboundTyping}, nil
	case InboundPing:
		return &InboundEvent{Kind: InboundPing}, nil
	case "":
		return nil, errors.New("frame type is required")
	default:
		return nil, errors.Errorf("unknown frame type %q", strings.TrimSpace(frame.Type))
	}
}

// OutboundEvent is a server frame. Only the fields that belong to Kind are
// encoded; use the constructors below rather than building one by hand.
type OutboundEvent struct {
	Kind OutboundKind

	message    string
	role       string
	sessionUID string
	tokensUsed int
	userID     int32
	timestamp  time.Time
}

// SessionCreated announces the session a connection is bound to.
func SessionCreated(sessionUID, message string) OutboundEvent {
	return OutboundEvent{Kind: OutboundSessionCreated, sessionUID: sessionUID, message: message}
}

// Typing tells the client the assistant is working on a reply.
func Typing(message string) OutboundEvent {
	return OutboundEvent{Kind: OutboundTyping, message: message}
}

// Message delivers one transcript turn.
func Message(role, content, sessionUID string, tokensUsed int, ts time.Time) OutboundEvent {
	return OutboundEvent{
		Kind:       OutboundMessage,
		role:       role,
		message:    content,
		sessionUID: sessionUID,
		tokensUsed: tokensUsed,
		timestamp:  ts,
	}
}

// UserTyping relays another user's typing indicator.
func UserTyping(userID int32) OutboundEvent {
	return OutboundEvent{Kind: OutboundUserTyping, userID: userID}
}

// Pong answers a ping.
func Pong(ts time.Time) OutboundEvent {
	return OutboundEvent{Kind: OutboundPong, timestamp: ts}
}

// Error reports a rejected frame or a failed turn.
func Error(message string) OutboundEvent {
	return OutboundEvent{Kind: OutboundError, message: message}
}

// MarshalJSON encodes the kind-specific payload.
func (e OutboundEvent) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case OutboundSessionCreated:
		return json.Marshal(struct {
			Type      OutboundKind `json:"type"`
			SessionID string       `json:"session_id"`
			Message   string       `json:"message"`
		}{e.Kind, e.sessionUID, e.message})
	case OutboundTyping, OutboundError:
		return json.Marshal(struct {
			Type    OutboundKind `json:"type"`
			Message string       `json:"message"`
		}{e.Kind, e.message})
	case OutboundMessage:
		return json.Marshal(struct {
			Type       OutboundKind `json:"type"`
			Role       string       `json:"role"`
			Content    string       `json:"content"`
			SessionID  string       `json:"session_id"`
			TokensUsed int          `json:"tokens_used"`
			Timestamp  string       `json:"timestamp"`
		}{e.Kind, e.role, e.message, e.sessionUID, e.tokensUsed, formatTimestamp(e.timestamp)})
	case OutboundUserTyping:
		return json.Marshal(struct {
			Type   OutboundKind `json:"type"`
			UserID int32        `json:"user_id"`
		}{e.Kind, e.userID})
	case OutboundPong:
		return json.Marshal(struct {
			Type      OutboundKind `json:"type"`
			Timestamp string       `json:"timestamp"`
		}{e.Kind, formatTimestamp(e.timestamp)})
	default:
		return nil, errors.Errorf("unknown outbound event kind %q", e.Kind)
	}
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.UTC().Format(time.RFC3339)
}
