package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/chatrelay/internal/profile"
	"github.com/hrygo/chatrelay/plugin/ai"
	"github.com/hrygo/chatrelay/plugin/ai/tools"
	"github.com/hrygo/chatrelay/server/auth"
	"github.com/hrygo/chatrelay/server/chat"
	"github.com/hrygo/chatrelay/server/hub"
	"github.com/hrygo/chatrelay/server/internal/observability"
	ratelimit "github.com/hrygo/chatrelay/server/middleware"
	apiv1 "github.com/hrygo/chatrelay/server/router/api/v1"
	"github.com/hrygo/chatrelay/server/security"
	"github.com/hrygo/chatrelay/server/timezone"
	"github.com/hrygo/chatrelay/store"
)

const (
	// DevSecret signs access tokens in dev and demo mode when no secret is configured.
	DevSecret = "chatrelay-dev-secret"

	shutdownTimeout = 10 * time.Second
	shutdownNotice  = "Server is shutting down"
)

type Server struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store

	echoServer   *echo.Echo
	hub          *hub.Registry
	gate         *security.RateGate
	orchestrator *chat.Orchestrator
	cleanup      *chat.CleanupJob
	metrics      *observability.Metrics
}

// Option customizes server construction, mostly for tests.
type Option func(*options)

type options struct {
	model ai.ModelClient
	tools chat.ToolRunner
}

// WithModelClient replaces the model client built from the profile.
func WithModelClient(model ai.ModelClient) Option {
	return func(o *options) { o.model = model }
}

// WithToolRunner replaces the built-in tool executor.
func WithToolRunner(runner chat.ToolRunner) Option {
	return func(o *options) { o.tools = runner }
}

// NewServer wires every service from the profile and registers the routes.
func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store, opts ...Option) (*Server, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	secret := profile.Secret
	if secret == "" {
		if !profile.IsDev() {
			return nil, errors.New("jwt secret is required")
		}
		slog.Warn("no jwt secret configured, using the development secret")
		secret = DevSecret
	}

	metrics := observability.NewMetrics(0)

	model := o.model
	if model == nil {
		var err error
		model, err = newModelClient(profile)
		if err != nil {
			return nil, err
		}
	}
	toolRunner := o.tools
	if toolRunner == nil {
		loc, err := timezone.ParseTimezone(profile.Timezone)
		if err != nil {
			return nil, err
		}
		toolRunner = tools.NewDefaultExecutor(tools.Config{
			WeatherAPIKey: profile.WeatherAPIKey,
			Now:           timezone.NowIn(loc),
		}, tools.WithMetrics(metrics))
	}

	orchestrator := chat.NewOrchestrator(store, model, toolRunner, metrics, chat.Config{
		HistoryLimit:            profile.HistoryLimit,
		ModelTimeout:            profile.ModelTimeout,
		MaxConcurrentModelCalls: int64(profile.MaxConcurrentModelCalls),
	})
	gate := security.NewRateGate(security.RateGateConfig{
		Window:      profile.RateWindow,
		UserLimit:   profile.RateLimitPerHour,
		BurstWindow: security.DefaultBurstWindow,
		BurstLimit:  security.DefaultBurstLimit,
	})
	registry := hub.NewRegistry(hub.DefaultOutboundBuffer)

	s := &Server{
		Secret:       secret,
		Profile:      profile,
		Store:        store,
		hub:          registry,
		gate:         gate,
		orchestrator: orchestrator,
		metrics:      metrics,
		cleanup: chat.NewCleanupJob(orchestrator, chat.CleanupConfig{
			IdleTimeout: profile.SessionIdleTimeout,
			Interval:    profile.CleanupInterval,
		}),
	}

	ipExtractor, err := ratelimit.NewIPExtractor(profile.TrustedProxies)
	if err != nil {
		return nil, err
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	// Origins drive blocking and rate limits; forwarding headers count only from trusted proxies.
	echoServer.IPExtractor = ipExtractor
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"remote_ip", v.RemoteIP)
			return nil
		},
	}))
	s.echoServer = echoServer

	// Healthz endpoint.
	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": registry.Count(),
		})
	})

	apiV1Service := apiv1.NewAPIV1Service(profile, apiv1.Services{
		Orchestrator:  orchestrator,
		Gate:          gate,
		Sanitizer:     security.NewSanitizer(profile.MaxMessageLength),
		Hub:           registry,
		Authenticator: auth.NewAuthenticator(secret),
		Metrics:       metrics,
	})
	apiV1Service.RegisterRoutes(echoServer)

	slog.Info("server initialized",
		"mode", profile.Mode,
		"driver", profile.Driver,
		"llm_provider", profile.LLMProvider,
		"model_configured", profile.IsModelConfigured())
	return s, nil
}

// Handler exposes the HTTP handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start serves HTTP and runs the session cleanup job until ctx is cancelled
// or either of them fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}

	s.echoServer.Listener = listener

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("chatrelay listening", "address", listener.Addr().String())
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server stopped")
		}
		return nil
	})
	g.Go(func() error {
		return s.cleanup.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.Shutdown(shutdownCtx)
		return nil
	})
	return g.Wait()
}

// Shutdown notifies live clients, closes their connections and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) {
	slog.Info("server shutting down", "connections", s.hub.Count())

	s.hub.Broadcast(hub.Error(shutdownNotice))
	if pending := s.hub.CloseAll(ctx); pending > 0 {
		slog.Warn("closed connections with unflushed events", "connections", pending)
	}

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown http server", "error", err)
	}

	snapshot := s.metrics.Snapshot()
	slog.Info("server stopped",
		"turns", snapshot.TurnTotal,
		"degraded", snapshot.TurnDegraded,
		"failed", snapshot.TurnFailed)
}

func newModelClient(profile *profile.Profile) (ai.ModelClient, error) {
	if !profile.IsModelConfigured() {
		slog.Warn("model provider is not configured, every turn will be answered with an apology",
			"llm_provider", profile.LLMProvider)
		return unconfiguredModel{provider: profile.LLMProvider}, nil
	}
	model, err := ai.NewModelClient(ai.NewLLMConfigFromProfile(profile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create model client")
	}
	return model, nil
}

// unconfiguredModel fails every completion so turns degrade instead of the
// server refusing to start.
type unconfiguredModel struct {
	provider string
}

func (m unconfiguredModel) Complete(context.Context, []ai.Message, []ai.ToolDefinition) (*ai.Completion, error) {
	return nil, errors.Errorf("model provider %q is not configured", m.provider)
}
