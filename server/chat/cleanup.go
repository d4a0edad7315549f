package chat

import (
	"context"
	"log/slog"
	"time"

	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
	"github.com/hrygo/chatrelay/store"
)

const (
	// DefaultIdleTimeout is how long a session may sit unused before it is deactivated.
	DefaultIdleTimeout = 24 * time.Hour
	// DefaultCleanupInterval is the default interval between cleanup runs.
	DefaultCleanupInterval = time.Hour
)

// CleanupExpiredSessions deactivates active sessions last updated before cutoff.
func (o *Orchestrator) CleanupExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	deactivated, err := o.store.DeactivateChatSessions(ctx, &store.DeactivateChatSessions{
		UpdatedBefore: cutoff.Unix(),
	})
	if err != nil {
		return 0, chaterrors.PersistenceFailed("failed to deactivate expired sessions", err)
	}
	return deactivated, nil
}

// CleanupConfig holds configuration for the cleanup job.
type CleanupConfig struct {
	IdleTimeout time.Duration // default: 24h
	Interval    time.Duration // default: 1h
}

// CleanupJob periodically deactivates idle sessions.
type CleanupJob struct {
	orchestrator *Orchestrator
	config       CleanupConfig
}

// NewCleanupJob creates a new cleanup job.
func NewCleanupJob(o *Orchestrator, config CleanupConfig) *CleanupJob {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.Interval <= 0 {
		config.Interval = DefaultCleanupInterval
	}
	return &CleanupJob{orchestrator: o, config: config}
}

// RunOnce executes a single cleanup run immediately.
func (j *CleanupJob) RunOnce(ctx context.Context) (int64, error) {
	return j.orchestrator.CleanupExpiredSessions(ctx, j.orchestrator.now().Add(-j.config.IdleTimeout))
}

// Run sweeps once on start and then every interval until ctx ends.
func (j *CleanupJob) Run(ctx context.Context) error {
	slog.Info("session cleanup job started",
		"idle_timeout", j.config.IdleTimeout,
		"interval", j.config.Interval)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		if deactivated, err := j.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("session cleanup failed", "error", err)
		} else if deactivated > 0 {
			slog.Info("session cleanup completed", "deactivated", deactivated)
		}

		select {
		case <-ctx.Done():
			slog.Info("session cleanup job stopped")
			return nil
		case <-ticker.C:
		}
	}
}
