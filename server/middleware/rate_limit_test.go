package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("conn:1"), "frame %d within burst", i)
	}
	assert.False(t, rl.Allow("conn:1"))

	// Keys are independent.
	assert.True(t, rl.Allow("conn:2"))
	assert.Equal(t, 2, rl.Len())

	rl.Forget("conn:1")
	assert.Equal(t, 1, rl.Len())
	assert.True(t, rl.Allow("conn:1"))
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(1000, 1)
	assert.True(t, rl.Allow("k"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, rl.Wait(ctx, "k"))
}

type staticBlocks map[string]bool

func (s staticBlocks) IsBlocked(origin string) bool { return s[origin] }

func serve(h echo.HandlerFunc, mw echo.MiddlewareFunc, remoteAddr string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	_ = mw(h)(e.NewContext(req, rec))
	return rec
}

func TestRejectBlocked(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	mw := RejectBlocked(staticBlocks{"10.0.0.9": true})

	assert.Equal(t, http.StatusForbidden, serve(ok, mw, "10.0.0.9:5555").Code)
	assert.Equal(t, http.StatusNoContent, serve(ok, mw, "10.0.0.1:5555").Code)
}

func TestRequestRateLimit(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	mw := RequestRateLimit(NewRateLimiter(1, 2))

	assert.Equal(t, http.StatusNoContent, serve(ok, mw, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusNoContent, serve(ok, mw, "10.0.0.1:2").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(ok, mw, "10.0.0.1:3").Code)
	assert.Equal(t, http.StatusNoContent, serve(ok, mw, "10.0.0.2:1").Code)
}
