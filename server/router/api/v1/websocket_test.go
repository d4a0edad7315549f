package v1

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/hrygo/chatrelay/server/security"
)

type wsFrame struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	SessionID  string `json:"session_id"`
	TokensUsed int    `json:"tokens_used"`
	UserID     int32  `json:"user_id"`
	Timestamp  string `json:"timestamp"`
}

func dialChat(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/chat?" + query
	ws, err := websocket.Dial(url, "", srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame wsFrame
	require.NoError(t, websocket.JSON.Receive(ws, &frame))
	return frame
}

func sendFrame(t *testing.T, ws *websocket.Conn, frame map[string]any) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, websocket.Message.Send(ws, string(raw)))
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.echo)
	defer srv.Close()

	ws := dialChat(t, srv, "token=garbage")
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame wsFrame
	assert.Error(t, websocket.JSON.Receive(ws, &frame), "the server closes without sending a frame")
	assert.Zero(t, api.service.Hub.Count())
}

func TestWebSocketInvalidSession(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.echo)
	defer srv.Close()

	ws := dialChat(t, srv, "token="+accessToken(t, 1)+"&session_id=6f1c1a2e-3b4d-4e5f-8a9b-0c1d2e3f4a5b")
	frame := readFrame(t, ws)
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "Invalid session", frame.Message)
}

func TestWebSocketConversation(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.echo)
	defer srv.Close()

	ws := dialChat(t, srv, "token="+accessToken(t, 1))

	welcome := readFrame(t, ws)
	assert.Equal(t, "session_created", welcome.Type)
	assert.Equal(t, welcomeMessage, welcome.Message)
	require.True(t, security.ValidateSessionID(welcome.SessionID))

	sendFrame(t, ws, map[string]any{"type": "ping"})
	pong := readFrame(t, ws)
	assert.Equal(t, "pong", pong.Type)
	assert.NotEmpty(t, pong.Timestamp)

	sendFrame(t, ws, map[string]any{"type": "typing"})
	typing := readFrame(t, ws)
	assert.Equal(t, "user_typing", typing.Type)
	assert.Equal(t, int32(1), typing.UserID)

	sendFrame(t, ws, map[string]any{"type": "message", "content": "hello over websocket"})
	assert.Equal(t, typingMessage, readFrame(t, ws).Message)
	reply := readFrame(t, ws)
	assert.Equal(t, "message", reply.Type)
	assert.Equal(t, "assistant", reply.Role)
	assert.Equal(t, "echo: hello over websocket", reply.Content)
	assert.Equal(t, welcome.SessionID, reply.SessionID)
	assert.Equal(t, 3, reply.TokensUsed)

	// The turn landed in the session the connection is bound to.
	rec := api.do(t, "GET", "/api/v1/chat/sessions/"+welcome.SessionID+"/messages", 1, nil)
	require.Equal(t, 200, rec.Code)
	assert.Len(t, decode[[]MessageResponse](t, rec), 2)
}

func TestWebSocketRejectsBadFrames(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.echo)
	defer srv.Close()

	ws := dialChat(t, srv, "token="+accessToken(t, 1))
	readFrame(t, ws)

	require.NoError(t, websocket.Message.Send(ws, "{not json"))
	assert.Equal(t, "Invalid message format", readFrame(t, ws).Message)

	sendFrame(t, ws, map[string]any{"type": "shout"})
	assert.Equal(t, "Invalid message format", readFrame(t, ws).Message)

	sendFrame(t, ws, map[string]any{"type": "message", "content": "<script>alert(1)</script>"})
	frame := readFrame(t, ws)
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "Invalid message content", frame.Message)

	// The connection survives rejected frames.
	sendFrame(t, ws, map[string]any{"type": "ping"})
	assert.Equal(t, "pong", readFrame(t, ws).Type)
}

func TestWebSocketResumesExistingSession(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.echo)
	defer srv.Close()

	rec := api.do(t, "POST", "/api/v1/chat/sessions", 1, CreateSessionRequest{Title: "resume me"})
	require.Equal(t, 201, rec.Code)
	sessionID := decode[SessionResponse](t, rec).SessionID

	ws := dialChat(t, srv, "token="+accessToken(t, 1)+"&session_id="+sessionID)
	welcome := readFrame(t, ws)
	assert.Equal(t, "session_created", welcome.Type)
	assert.Equal(t, sessionID, welcome.SessionID)

	// Another user may not attach to it.
	other := dialChat(t, srv, "token="+accessToken(t, 2)+"&session_id="+sessionID)
	assert.Equal(t, "Invalid session", readFrame(t, other).Message)
}

func TestWebSocketSupersededTurnIsPersistedNotDelivered(t *testing.T) {
	api := newTestAPI(t)
	api.model.hold = make(chan struct{})
	srv := httptest.NewServer(api.echo)
	defer srv.Close()

	first := dialChat(t, srv, "token="+accessToken(t, 1))
	welcome := readFrame(t, first)
	require.Equal(t, "session_created", welcome.Type)
	sendFrame(t, first, map[string]any{"type": "message", "content": "a slow question"})
	require.Equal(t, "typing", readFrame(t, first).Type)

	// The same user reconnects while the first turn waits on the model.
	second := dialChat(t, srv, "token="+accessToken(t, 1))
	rewelcome := readFrame(t, second)
	require.Equal(t, "session_created", rewelcome.Type)
	require.NotEqual(t, welcome.SessionID, rewelcome.SessionID)

	close(api.model.hold)
	require.Eventually(t, func() bool {
		messages, err := api.service.Orchestrator.ListMessages(context.Background(), 1, welcome.SessionID, 0)
		return err == nil && len(messages) == 2
	}, 5*time.Second, 10*time.Millisecond)

	// Nothing from the first turn shows up on the new socket.
	sendFrame(t, second, map[string]any{"type": "ping"})
	assert.Equal(t, "pong", readFrame(t, second).Type)

	sendFrame(t, second, map[string]any{"type": "message", "content": "hello again"})
	assert.Equal(t, "typing", readFrame(t, second).Type)
	reply := readFrame(t, second)
	assert.Equal(t, "message", reply.Type)
	assert.Equal(t, "echo: hello again", reply.Content)
	assert.Equal(t, rewelcome.SessionID, reply.SessionID)

	messages, err := api.service.Orchestrator.ListMessages(context.Background(), 1, rewelcome.SessionID, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}
