package security

import (
	"fmt"
	"sort"
	"sync"
	"time"

	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
)

const (
	DefaultRateWindow  = time.Hour
	DefaultUserLimit   = 100
	DefaultBurstWindow = 60 * time.Second
	DefaultBurstLimit  = 10
)

// RateGateConfig holds the sliding-window ceilings.
// The origin ceiling is always twice the user ceiling.
type RateGateConfig struct {
	Window      time.Duration
	UserLimit   int
	BurstWindow time.Duration
	BurstLimit  int
}

// DefaultRateGateConfig returns the default ceilings: 100 per user and 200 per origin per hour.
func DefaultRateGateConfig() RateGateConfig {
	return RateGateConfig{
		Window:      DefaultRateWindow,
		UserLimit:   DefaultUserLimit,
		BurstWindow: DefaultBurstWindow,
		BurstLimit:  DefaultBurstLimit,
	}
}

// suspicionRecord accumulates abuse signals for one origin. There is no decay.
type suspicionRecord struct {
	score    int
	blocked  bool
	lastSeen time.Time
}

// RateGate admits or rejects requests per user and per origin, scores
// suspicious content and maintains the origin block list. All state lives in
// process memory behind one mutex.
type RateGate struct {
	config RateGateConfig
	now    func() time.Time

	mu        sync.Mutex
	windows   map[string][]time.Time
	suspicion map[string]*suspicionRecord
}

// GateOption configures a RateGate.
type GateOption func(*RateGate)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) GateOption {
	return func(g *RateGate) {
		g.now = now
	}
}

// NewRateGate creates a gate with the given ceilings.
func NewRateGate(config RateGateConfig, opts ...GateOption) *RateGate {
	if config.Window <= 0 {
		config.Window = DefaultRateWindow
	}
	if config.UserLimit <= 0 {
		config.UserLimit = DefaultUserLimit
	}
	if config.BurstWindow <= 0 {
		config.BurstWindow = DefaultBurstWindow
	}
	if config.BurstLimit <= 0 {
		config.BurstLimit = DefaultBurstLimit
	}

	g := &RateGate{
		config:    config,
		now:       time.Now,
		windows:   make(map[string][]time.Time),
		suspicion: make(map[string]*suspicionRecord),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func userKey(userID int32) string {
	return fmt.Sprintf("user:%d", userID)
}

func originKey(origin string) string {
	return "origin:" + origin
}

// Admit reports whether the user, and the origin when given, are under their
// ceilings. It evicts stale timestamps but never records.
func (g *RateGate) Admit(userID int32, origin string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.admitLocked(userID, origin, g.now())
}

// Record appends the current instant to the user's and origin's windows.
func (g *RateGate) Record(userID int32, origin string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recordLocked(userID, origin, g.now())
}

// IsBlocked reports whether the origin is on the block list.
func (g *RateGate) IsBlocked(origin string) bool {
	if origin == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.suspicion[origin]
	return ok && rec.blocked
}

// Unblock removes the origin from the block list and clears its score.
func (g *RateGate) Unblock(origin string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.suspicion[origin]
	if !ok {
		return false
	}
	delete(g.suspicion, origin)
	return rec.blocked
}

// Check runs the whole admission sequence atomically: block list, ceilings,
// suspicion scoring and finally recording. A rejected attempt is not recorded.
func (g *RateGate) Check(userID int32, origin, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if origin != "" {
		if rec, ok := g.suspicion[origin]; ok && rec.blocked {
			return chaterrors.SuspiciousActivity("origin is blocked", true)
		}
	}
	if !g.admitLocked(userID, origin, now) {
		return chaterrors.RateLimitExceeded("rate limit exceeded, please try again later")
	}
	if g.scoreLocked(text, userID, origin, now) {
		return chaterrors.SuspiciousActivity("suspicious activity detected", origin != "")
	}
	g.recordLocked(userID, origin, now)
	return nil
}

func (g *RateGate) admitLocked(userID int32, origin string, now time.Time) bool {
	if len(g.evictLocked(userKey(userID), now)) >= g.config.UserLimit {
		return false
	}
	if origin != "" && len(g.evictLocked(originKey(origin), now)) >= 2*g.config.UserLimit {
		return false
	}
	return true
}

func (g *RateGate) recordLocked(userID int32, origin string, now time.Time) {
	key := userKey(userID)
	g.windows[key] = append(g.windows[key], now)
	if origin != "" {
		key = originKey(origin)
		g.windows[key] = append(g.windows[key], now)
	}
}

// evictLocked drops timestamps older than the window and returns what remains.
func (g *RateGate) evictLocked(key string, now time.Time) []time.Time {
	stamps := g.windows[key]
	cutoff := now.Add(-g.config.Window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == len(stamps) {
		delete(g.windows, key)
		return nil
	}
	if i > 0 {
		stamps = append(stamps[:0:0], stamps[i:]...)
		g.windows[key] = stamps
	}
	return stamps
}

// GateStats is the administrative view of the gate.
type GateStats struct {
	BlockedOrigins     []string `json:"blocked_origins"`
	SuspiciousOrigins  int      `json:"suspicious_origins"`
	ActiveRequests     int      `json:"active_requests"`
	RateLimitWindow    int64    `json:"rate_limit_window_seconds"`
	MaxRequestsPerUser int      `json:"max_requests_per_user"`
}

// Stats returns blocked origins, suspicious origin count and in-window request count.
func (g *RateGate) Stats() GateStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	stats := GateStats{
		BlockedOrigins:     []string{},
		RateLimitWindow:    int64(g.config.Window.Seconds()),
		MaxRequestsPerUser: g.config.UserLimit,
	}
	for origin, rec := range g.suspicion {
		if rec.blocked {
			stats.BlockedOrigins = append(stats.BlockedOrigins, origin)
		}
		stats.SuspiciousOrigins++
	}
	for key := range g.windows {
		stats.ActiveRequests += len(g.evictLocked(key, now))
	}
	sort.Strings(stats.BlockedOrigins)
	return stats
}
