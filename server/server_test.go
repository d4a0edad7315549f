package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatrelay/internal/profile"
	"github.com/hrygo/chatrelay/plugin/ai"
	"github.com/hrygo/chatrelay/server/auth"
	teststore "github.com/hrygo/chatrelay/store/test"
)

type echoModel struct{}

func (echoModel) Complete(_ context.Context, messages []ai.Message, _ []ai.ToolDefinition) (*ai.Completion, error) {
	return &ai.Completion{Content: "echo: " + messages[len(messages)-1].Content}, nil
}

func testProfile() *profile.Profile {
	return &profile.Profile{
		Mode:             "dev",
		Addr:             "127.0.0.1",
		Port:             0,
		MaxMessageLength: 5000,
		RateLimitPerHour: 100,
		RateWindow:       time.Hour,
	}
}

func TestNewServerRoutes(t *testing.T) {
	ctx := context.Background()
	s, err := NewServer(ctx, testProfile(), teststore.NewTestingStore(ctx, t), WithModelClient(echoModel{}))
	require.NoError(t, err)
	assert.Equal(t, DevSecret, s.Secret)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	token, err := auth.GenerateAccessToken(7, "tester", auth.RoleUser, time.Now().Add(time.Hour), []byte(DevSecret))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message":"ping"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"message":"echo: ping"`)
}

func TestNewServerWithoutModelDegrades(t *testing.T) {
	ctx := context.Background()
	prof := testProfile()
	prof.LLMProvider = "openai"
	s, err := NewServer(ctx, prof, teststore.NewTestingStore(ctx, t))
	require.NoError(t, err)

	token, err := auth.GenerateAccessToken(7, "tester", auth.RoleUser, time.Now().Add(time.Hour), []byte(DevSecret))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "technical difficulties")
}

func TestNewServerRequiresSecretInProd(t *testing.T) {
	ctx := context.Background()
	prof := testProfile()
	prof.Mode = "prod"
	_, err := NewServer(ctx, prof, teststore.NewTestingStore(ctx, t), WithModelClient(echoModel{}))
	assert.Error(t, err)
}

func TestServerStartStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewServer(ctx, testProfile(), teststore.NewTestingStore(context.Background(), t), WithModelClient(echoModel{}))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewServerRejectsUnknownTimezone(t *testing.T) {
	ctx := context.Background()
	prof := testProfile()
	prof.Timezone = "Mars/Olympus"
	_, err := NewServer(ctx, prof, teststore.NewTestingStore(ctx, t), WithModelClient(echoModel{}))
	assert.Error(t, err)
}

func TestBlockedOriginCannotSpoofForwardedFor(t *testing.T) {
	ctx := context.Background()
	s, err := NewServer(ctx, testProfile(), teststore.NewTestingStore(ctx, t), WithModelClient(echoModel{}))
	require.NoError(t, err)
	require.True(t, s.gate.ScoreSuspicion("javascript: javascript: javascript:", 7, "192.0.2.1"))

	for _, header := range []string{"", "203.0.113.9"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/sessions", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		if header != "" {
			req.Header.Set(echo.HeaderXForwardedFor, header)
			req.Header.Set(echo.HeaderXRealIP, header)
		}
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, "x-forwarded-for=%q", header)
	}
}

func TestTrustedProxyForwardsClientAddress(t *testing.T) {
	ctx := context.Background()
	prof := testProfile()
	prof.TrustedProxies = "192.0.2.0/24"
	s, err := NewServer(ctx, prof, teststore.NewTestingStore(ctx, t), WithModelClient(echoModel{}))
	require.NoError(t, err)
	require.True(t, s.gate.ScoreSuspicion("javascript: javascript: javascript:", 7, "203.0.113.9"))

	// The proxy itself is not blocked; the client behind it is.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/sessions", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.9")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNewServerRejectsBadTrustedProxies(t *testing.T) {
	ctx := context.Background()
	prof := testProfile()
	prof.TrustedProxies = "not-an-address"
	_, err := NewServer(ctx, prof, teststore.NewTestingStore(ctx, t), WithModelClient(echoModel{}))
	assert.Error(t, err)
}
