package chat

import (
	"github.com/hrygo/chatrelay/plugin/ai"
	"github.com/hrygo/chatrelay/store"
)

// historyMessages converts stored turns into model messages. A history window
// can cut a tool exchange in half, so assistant turns whose calls are not all
// answered inside the window are dropped together with any tool turn whose
// call is not announced inside it.
func historyMessages(turns []*store.ChatMessage) []ai.Message {
	answered := make(map[string]bool)
	for _, t := range turns {
		if t.Role == store.ChatMessageRoleTool {
			answered[t.ToolCallID] = true
		}
	}

	announced := make(map[string]bool)
	out := make([]ai.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case store.ChatMessageRoleAssistant:
			if len(t.ToolCalls) == 0 {
				out = append(out, ai.AssistantMessage(t.Content))
				continue
			}
			complete := true
			for _, call := range t.ToolCalls {
				if !answered[call.ID] {
					complete = false
					break
				}
			}
			if !complete {
				continue
			}
			calls := make([]ai.ToolCall, 0, len(t.ToolCalls))
			for _, call := range t.ToolCalls {
				announced[call.ID] = true
				calls = append(calls, ai.ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: call.Function.Arguments})
			}
			out = append(out, ai.AssistantMessage(t.Content, calls...))
		case store.ChatMessageRoleTool:
			if announced[t.ToolCallID] {
				out = append(out, ai.ToolMessage(t.ToolCallID, t.Content))
			}
		case store.ChatMessageRoleSystem:
			out = append(out, ai.SystemPrompt(t.Content))
		default:
			out = append(out, ai.UserMessage(t.Content))
		}
	}
	return out
}

func toStoreToolCalls(calls []ai.ToolCall) []store.ToolCall {
	out := make([]store.ToolCall, 0, len(calls))
	for _, call := range calls {
		out = append(out, store.ToolCall{
			ID:   call.ID,
			Type: "function",
			Function: store.ToolCallFunction{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return out
}
