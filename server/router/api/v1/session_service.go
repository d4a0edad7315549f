package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/chatrelay/server/auth"
	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
	"github.com/hrygo/chatrelay/server/security"
	"github.com/hrygo/chatrelay/store"
)

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 500
	maxSessionTitleLength  = 200
)

type SessionResponse struct {
	ID        int32  `json:"id"`
	SessionID string `json:"session_id"`
	UserID    int32  `json:"user_id"`
	Title     string `json:"title"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type MessageResponse struct {
	ID         int32            `json:"id"`
	SessionID  string           `json:"session_id"`
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	TokensUsed *int32           `json:"tokens_used"`
	ToolCalls  []store.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	CreatedAt  string           `json:"created_at"`
}

type CreateSessionRequest struct {
	Title string `json:"title"`
}

// ListSessions returns the caller's active sessions.
// GET /api/v1/chat/sessions
func (s *APIV1Service) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()
	sessions, err := s.Orchestrator.ListSessions(ctx, auth.GetUserID(ctx))
	if err != nil {
		return respondError(c, err)
	}

	response := make([]SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		response = append(response, newSessionResponse(session))
	}
	return c.JSON(http.StatusOK, response)
}

// CreateSession starts an empty session.
// POST /api/v1/chat/sessions
func (s *APIV1Service) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var body CreateSessionRequest
	if err := c.Bind(&body); err != nil {
		return respondError(c, chaterrors.Validation("invalid request body"))
	}
	title := s.Sanitizer.Sanitize(body.Title)
	if len([]rune(title)) > maxSessionTitleLength {
		return respondError(c, chaterrors.Validation("title is too long"))
	}

	session, err := s.Orchestrator.CreateSession(ctx, auth.GetUserID(ctx), title)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, newSessionResponse(session))
}

// GetSession returns one of the caller's sessions.
// GET /api/v1/chat/sessions/:id
func (s *APIV1Service) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionUID, err := sessionIDParam(c)
	if err != nil {
		return respondError(c, err)
	}

	session, err := s.Orchestrator.GetSession(ctx, auth.GetUserID(ctx), sessionUID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, newSessionResponse(session))
}

// ListSessionMessages returns the most recent turns of a session, oldest first.
// GET /api/v1/chat/sessions/:id/messages?limit=50
func (s *APIV1Service) ListSessionMessages(c echo.Context) error {
	ctx := c.Request().Context()
	sessionUID, err := sessionIDParam(c)
	if err != nil {
		return respondError(c, err)
	}

	limit := defaultMessagePageSize
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxMessagePageSize {
			return respondError(c, chaterrors.Validation("limit must be between 1 and 500"))
		}
	}

	messages, err := s.Orchestrator.ListMessages(ctx, auth.GetUserID(ctx), sessionUID, limit)
	if err != nil {
		return respondError(c, err)
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		response = append(response, MessageResponse{
			ID:         message.ID,
			SessionID:  sessionUID,
			Role:       string(message.Role),
			Content:    message.Content,
			TokensUsed: message.TokensUsed,
			ToolCalls:  message.ToolCalls,
			ToolCallID: message.ToolCallID,
			CreatedAt:  formatTs(message.CreatedTs),
		})
	}
	return c.JSON(http.StatusOK, response)
}

// DeleteSession deactivates one of the caller's sessions.
// DELETE /api/v1/chat/sessions/:id
func (s *APIV1Service) DeleteSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionUID, err := sessionIDParam(c)
	if err != nil {
		return respondError(c, err)
	}

	if err := s.Orchestrator.DeleteSession(ctx, auth.GetUserID(ctx), sessionUID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

func sessionIDParam(c echo.Context) (string, error) {
	id := strings.ToLower(strings.TrimSpace(c.Param("id")))
	if !security.ValidateSessionID(id) {
		return "", chaterrors.Validation("invalid session id")
	}
	return id, nil
}

func newSessionResponse(session *store.ChatSession) SessionResponse {
	return SessionResponse{
		ID:        session.ID,
		SessionID: session.UID,
		UserID:    session.CreatorID,
		Title:     session.Title,
		IsActive:  session.Active,
		CreatedAt: formatTs(session.CreatedTs),
		UpdatedAt: formatTs(session.UpdatedTs),
	}
}
