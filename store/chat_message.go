package store

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type ChatMessageRole string

const (
	ChatMessageRoleUser      ChatMessageRole = "user"
	ChatMessageRoleAssistant ChatMessageRole = "assistant"
	ChatMessageRoleSystem    ChatMessageRole = "system"
	ChatMessageRoleTool      ChatMessageRole = "tool"
)

// ToolCall is stored in the OpenAI function-call shape.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatMessage is one turn of a session transcript. ID is the creation sequence.
type ChatMessage struct {
	ID         int32
	UID        string
	SessionID  int32
	Role       ChatMessageRole
	Content    string
	TokensUsed *int32
	// ToolCalls is only set on assistant turns.
	ToolCalls []ToolCall
	// ToolCallID is only set on tool turns.
	ToolCallID string
	CreatedTs  int64
}

// FindChatMessage lists a session's turns in creation order. With Limit set,
// only the most recent Limit turns (before BeforeID, if given) are returned.
type FindChatMessage struct {
	SessionID *int32
	BeforeID  *int32
	Limit     *int
}

// Validate checks the tool-call invariants of a single turn.
func (m *ChatMessage) Validate() error {
	switch m.Role {
	case ChatMessageRoleUser, ChatMessageRoleAssistant, ChatMessageRoleSystem, ChatMessageRoleTool:
	default:
		return errors.Errorf("invalid chat message role %q", m.Role)
	}
	if len(m.ToolCalls) > 0 && m.Role != ChatMessageRoleAssistant {
		return errors.Errorf("tool calls are only allowed on assistant turns, got %q", m.Role)
	}
	if m.Role == ChatMessageRoleTool && m.ToolCallID == "" {
		return errors.New("tool turn requires a tool call id")
	}
	return nil
}

// MarshalToolCalls encodes tool calls for storage, never returning null.
func MarshalToolCalls(calls []ToolCall) (string, error) {
	if len(calls) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(calls)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal tool calls")
	}
	return string(b), nil
}

// UnmarshalToolCalls decodes a stored tool-call column.
func UnmarshalToolCalls(raw []byte) ([]ToolCall, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var calls []ToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tool calls")
	}
	if len(calls) == 0 {
		return nil, nil
	}
	return calls, nil
}
