package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/chatrelay/internal/profile"
	"github.com/hrygo/chatrelay/server/auth"
	"github.com/hrygo/chatrelay/server/chat"
	"github.com/hrygo/chatrelay/server/hub"
	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
	"github.com/hrygo/chatrelay/server/internal/observability"
	ratelimit "github.com/hrygo/chatrelay/server/middleware"
	"github.com/hrygo/chatrelay/server/security"
)

type APIV1Service struct {
	Profile       *profile.Profile
	Orchestrator  *chat.Orchestrator
	Intake        *chat.Intake
	Gate          *security.RateGate
	Sanitizer     *security.Sanitizer
	Hub           *hub.Registry
	Authenticator auth.Authenticator
	Metrics       *observability.Metrics

	// requestLimiter smooths HTTP floods per client address.
	requestLimiter *ratelimit.RateLimiter
	// frameLimiter smooths WebSocket frame floods per connection.
	frameLimiter *ratelimit.RateLimiter
}

// Services bundles the collaborators the API is built from.
type Services struct {
	Orchestrator  *chat.Orchestrator
	Gate          *security.RateGate
	Sanitizer     *security.Sanitizer
	Hub           *hub.Registry
	Authenticator auth.Authenticator
	Metrics       *observability.Metrics
}

func NewAPIV1Service(profile *profile.Profile, services Services) *APIV1Service {
	metrics := services.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics(0)
	}
	return &APIV1Service{
		Profile:        profile,
		Orchestrator:   services.Orchestrator,
		Intake:         chat.NewIntake(services.Sanitizer, services.Gate, metrics),
		Gate:           services.Gate,
		Sanitizer:      services.Sanitizer,
		Hub:            services.Hub,
		Authenticator:  services.Authenticator,
		Metrics:        metrics,
		requestLimiter: ratelimit.NewRateLimiter(ratelimit.DefaultRequestRate, ratelimit.DefaultRequestBurst),
		frameLimiter:   ratelimit.NewRateLimiter(ratelimit.DefaultFrameRate, ratelimit.DefaultFrameBurst),
	}
}

// RegisterRoutes mounts the REST and WebSocket surfaces on the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	api := echoServer.Group("/api/v1",
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOriginFunc: func(_ string) (bool, error) {
				return true, nil
			},
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"*"},
			AllowCredentials: true,
		}),
		ratelimit.RejectBlocked(s.Gate),
		ratelimit.RequestRateLimit(s.requestLimiter),
	)

	// The WebSocket handshake carries its token as a query parameter.
	api.GET("/ws/chat", s.ChatWebSocket)

	authed := api.Group("", s.authMiddleware)
	authed.POST("/chat", s.Chat)
	authed.GET("/chat/sessions", s.ListSessions)
	authed.POST("/chat/sessions", s.CreateSession)
	authed.GET("/chat/sessions/:id", s.GetSession)
	authed.GET("/chat/sessions/:id/messages", s.ListSessionMessages)
	authed.DELETE("/chat/sessions/:id", s.DeleteSession)

	admin := authed.Group("/admin", requireAdmin)
	admin.GET("/security/stats", s.GetSecurityStats)
	admin.DELETE("/security/blocks/:origin", s.UnblockOrigin)
	admin.GET("/metrics/overview", s.GetMetricsOverview)
}

// authMiddleware resolves the bearer token into a principal on the request context.
func (s *APIV1Service) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		token := auth.ExtractBearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		principal, err := s.Authenticator.Authenticate(ctx, token)
		if err != nil {
			return respondError(c, err)
		}
		c.SetRequest(c.Request().WithContext(auth.SetPrincipalInContext(ctx, principal)))
		return next(c)
	}
}

// requireAdmin lets only principals with the admin role through.
func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !auth.GetPrincipal(c.Request().Context()).IsAdmin() {
			return respondError(c, chaterrors.Forbidden("admin role required"))
		}
		return next(c)
	}
}
