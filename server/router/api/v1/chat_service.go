package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/chatrelay/plugin/ai"
	"github.com/hrygo/chatrelay/server/auth"
	"github.com/hrygo/chatrelay/server/chat"
	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
	"github.com/hrygo/chatrelay/store"
)

const (
	channelREST      = "rest"
	channelWebSocket = "websocket"
)

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	Context   map[string]any `json:"context"`
}

// ChatResponse is the assistant's reply to one turn.
type ChatResponse struct {
	Message                   string           `json:"message"`
	SessionID                 string           `json:"session_id"`
	TokensUsed                int              `json:"tokens_used"`
	ToolCalls                 []store.ToolCall `json:"tool_calls"`
	Context                   map[string]any   `json:"context"`
	UserMessageCreatedAt      string           `json:"user_message_created_at"`
	AssistantMessageCreatedAt string           `json:"assistant_message_created_at"`
}

// Chat runs one conversation turn.
// POST /api/v1/chat
func (s *APIV1Service) Chat(c echo.Context) error {
	ctx := c.Request().Context()

	var body ChatRequest
	if err := c.Bind(&body); err != nil {
		return respondError(c, chaterrors.Validation("invalid request body"))
	}

	req := &chat.Request{
		UserID:     auth.GetUserID(ctx),
		Message:    body.Message,
		SessionUID: body.SessionID,
		Context:    body.Context,
		Channel:    channelREST,
	}
	origin := c.RealIP()

	// A client that goes away mid-turn must not leave a half-written transcript.
	result, err := s.Orchestrator.Admit(context.WithoutCancel(ctx), req, func() error {
		return s.Intake.Screen(req, origin)
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, newChatResponse(result))
}

func newChatResponse(result *chat.Result) ChatResponse {
	ctx := result.Context
	if ctx == nil {
		ctx = map[string]any{}
	}
	return ChatResponse{
		Message:                   result.Message,
		SessionID:                 result.SessionUID,
		TokensUsed:                result.TokensUsed,
		ToolCalls:                 convertToolCalls(result.ToolCalls),
		Context:                   ctx,
		UserMessageCreatedAt:      formatTs(result.UserCreatedTs),
		AssistantMessageCreatedAt: formatTs(result.AssistantCreatedTs),
	}
}

func convertToolCalls(calls []ai.ToolCall) []store.ToolCall {
	converted := make([]store.ToolCall, 0, len(calls))
	for _, call := range calls {
		converted = append(converted, store.ToolCall{
			ID:   call.ID,
			Type: "function",
			Function: store.ToolCallFunction{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return converted
}

// formatTs renders a unix timestamp as RFC 3339 in UTC. Zero renders empty.
func formatTs(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
