package v1

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"

	"github.com/hrygo/chatrelay/server/chat"
	"github.com/hrygo/chatrelay/server/hub"
	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
	"github.com/hrygo/chatrelay/server/security"
)

const (
	// closeAuthFailed is the close code sent when the handshake token is rejected.
	closeAuthFailed = 4001

	welcomeMessage = "Connected to AI Chatbot. You can start chatting!"
	typingMessage  = "AI is thinking..."

	// maxFrameBytes bounds a single inbound frame.
	maxFrameBytes = 64 << 10
)

// ChatWebSocket upgrades the request and serves one chat connection.
// GET /api/v1/ws/chat?token=...&session_id=...
func (s *APIV1Service) ChatWebSocket(c echo.Context) error {
	origin := c.RealIP()
	server := websocket.Server{
		Handler: func(ws *websocket.Conn) {
			ws.MaxPayloadBytes = maxFrameBytes
			s.serveConnection(ws, origin)
		},
	}
	server.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *APIV1Service) serveConnection(ws *websocket.Conn, origin string) {
	defer ws.Close()

	query := ws.Request().URL.Query()
	// Turns outlive the socket: a disconnect must not abort a half-written transcript.
	ctx := context.WithoutCancel(ws.Request().Context())

	principal, err := s.Authenticator.Authenticate(ctx, query.Get("token"))
	if err != nil {
		slog.Info("websocket authentication failed", "origin", origin, "error", err)
		_ = ws.WriteClose(closeAuthFailed)
		return
	}
	userID := principal.UserID

	sessionUID, err := s.openSession(ctx, userID, query.Get("session_id"))
	if err != nil {
		slog.Info("websocket session rejected",
			"user_id", userID,
			"session_id", query.Get("session_id"),
			"error", err)
		_ = websocket.JSON.Send(ws, hub.Error("Invalid session"))
		return
	}

	conn := s.Hub.Connect(userID)
	s.Hub.BindConn(conn, sessionUID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.FinishWriting()
		s.writeLoop(ws, conn)
	}()

	s.Hub.SendTo(conn, hub.SessionCreated(sessionUID, welcomeMessage))
	slog.Info("websocket connected", "user_id", userID, "session_id", sessionUID, "origin", origin)

	s.readLoop(ctx, ws, conn, origin)

	s.Hub.Release(conn)
	<-writerDone
	slog.Info("websocket disconnected", "user_id", userID)
}

// openSession validates the requested session, or creates one when none is given.
func (s *APIV1Service) openSession(ctx context.Context, userID int32, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		session, err := s.Orchestrator.CreateSession(ctx, userID, "")
		if err != nil {
			return "", err
		}
		return session.UID, nil
	}
	if !security.ValidateSessionID(requested) {
		return "", chaterrors.Validation("invalid session id")
	}
	session, err := s.Orchestrator.GetSession(ctx, userID, requested)
	if err != nil {
		return "", err
	}
	return session.UID, nil
}

// writeLoop drains the connection's queue onto the socket until the
// connection is released or a write fails.
func (s *APIV1Service) writeLoop(ws *websocket.Conn, conn *hub.Conn) {
	for {
		select {
		case ev := <-conn.Outbound():
			if err := websocket.JSON.Send(ws, ev); err != nil {
				slog.Debug("websocket write failed", "user_id", conn.UserID, "error", err)
				s.Hub.Release(conn)
				_ = ws.Close()
				return
			}
		case <-conn.Done():
			s.flush(ws, conn)
			// Unblocks the reader when the connection was superseded.
			_ = ws.Close()
			return
		}
	}
}

// flush writes whatever is still queued, e.g. the error that ended the connection.
func (s *APIV1Service) flush(ws *websocket.Conn, conn *hub.Conn) {
	for {
		select {
		case ev := <-conn.Outbound():
			if err := websocket.JSON.Send(ws, ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *APIV1Service) readLoop(ctx context.Context, ws *websocket.Conn, conn *hub.Conn, origin string) {
	limiterKey := uuid.NewString()
	defer s.frameLimiter.Forget(limiterKey)

	for {
		var raw []byte
		if err := websocket.Message.Receive(ws, &raw); err != nil {
			return
		}
		select {
		case <-conn.Done():
			return
		default:
		}

		if !s.frameLimiter.Allow(limiterKey) {
			s.Hub.SendTo(conn, hub.Error("Too many messages, slow down"))
			continue
		}

		ev, err := hub.ParseInbound(raw)
		if err != nil {
			slog.Debug("invalid websocket frame", "user_id", conn.UserID, "error", err)
			s.Hub.SendTo(conn, hub.Error("Invalid message format"))
			continue
		}

		switch ev.Kind {
		case hub.InboundMessage:
			if !s.handleMessage(ctx, conn, ev.Content, origin) {
				return
			}
		case hub.InboundTyping:
			s.Hub.SendTo(conn, hub.UserTyping(conn.UserID))
		case hub.InboundPing:
			s.Hub.SendTo(conn, hub.Pong(time.Now()))
		}
	}
}

// handleMessage runs one turn on the connection's session. It reports false
// when the connection must be closed. Once conn is superseded the turn still
// completes and is persisted, but nothing reaches the successor.
func (s *APIV1Service) handleMessage(ctx context.Context, conn *hub.Conn, content, origin string) bool {
	sessionUID, _ := s.Hub.SessionOfConn(conn)

	req := &chat.Request{
		UserID:     conn.UserID,
		Message:    content,
		SessionUID: sessionUID,
		Channel:    channelWebSocket,
	}
	var rejected error
	result, err := s.Orchestrator.Admit(ctx, req, func() error {
		if rejected = s.Intake.Screen(req, origin); rejected != nil {
			return rejected
		}
		s.Hub.SendTo(conn, hub.Typing(typingMessage))
		return nil
	})
	if rejected != nil {
		s.Hub.SendTo(conn, hub.Error(rejectionMessage(rejected)))
		return !isBlocked(rejected)
	}
	if err != nil {
		s.Hub.SendTo(conn, hub.Error("Failed to process message"))
		return true
	}
	if result.SessionCreated && s.Hub.BindConn(conn, result.SessionUID) {
		s.Hub.SendTo(conn, hub.SessionCreated(result.SessionUID, welcomeMessage))
	}

	ts := time.Now()
	if result.AssistantCreatedTs > 0 {
		ts = time.Unix(result.AssistantCreatedTs, 0)
	}
	s.Hub.SendTo(conn, hub.Message("assistant", result.Message, result.SessionUID, result.TokensUsed, ts))
	return true
}

func rejectionMessage(err error) string {
	chatErr, ok := chaterrors.As(err)
	if !ok {
		return "Failed to process message"
	}
	switch chatErr.Code {
	case chaterrors.ErrCodeValidationFailed:
		return "Invalid message content"
	default:
		return chatErr.Message
	}
}

func isBlocked(err error) bool {
	chatErr, ok := chaterrors.As(err)
	if !ok || chatErr.Code != chaterrors.ErrCodeSuspiciousActivity {
		return false
	}
	blocked, _ := chatErr.Context["blocked"].(bool)
	return blocked
}
