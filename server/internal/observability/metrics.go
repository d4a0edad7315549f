package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects and aggregates metrics for conversation turns.
type Metrics struct {
	mu sync.Mutex

	// Counters
	turnTotal    atomic.Int64
	turnDegraded atomic.Int64
	turnFailed   atomic.Int64
	modelCalls   atomic.Int64

	rejections  map[string]*atomic.Int64
	toolMetrics map[string]*ToolMetrics

	// Duration histogram data (simplified for internal use)
	durations    []time.Duration
	maxDurations int
}

// ToolMetrics represents metrics for a specific tool.
type ToolMetrics struct {
	executionCount atomic.Int64
	totalDuration  atomic.Int64 // milliseconds
	errorCount     atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics(maxDurations int) *Metrics {
	if maxDurations <= 0 {
		maxDurations = 1000
	}
	return &Metrics{
		rejections:   make(map[string]*atomic.Int64),
		toolMetrics:  make(map[string]*ToolMetrics),
		durations:    make([]time.Duration, 0, maxDurations),
		maxDurations: maxDurations,
	}
}

// RecordTurn records a completed turn and its duration.
func (m *Metrics) RecordTurn(duration time.Duration) {
	m.turnTotal.Add(1)

	m.mu.Lock()
	if len(m.durations) >= m.maxDurations {
		m.durations = m.durations[1:]
	}
	m.durations = append(m.durations, duration)
	m.mu.Unlock()
}

// RecordDegraded records a turn answered with the fixed apology.
func (m *Metrics) RecordDegraded() {
	m.turnDegraded.Add(1)
}

// RecordFailure records a turn aborted by a persistence error.
func (m *Metrics) RecordFailure() {
	m.turnFailed.Add(1)
}

// RecordModelCall records one provider invocation.
func (m *Metrics) RecordModelCall() {
	m.modelCalls.Add(1)
}

// RecordRejection records a request turned away at the boundary, keyed by error code.
func (m *Metrics) RecordRejection(code string) {
	m.mu.Lock()
	counter, ok := m.rejections[code]
	if !ok {
		counter = &atomic.Int64{}
		m.rejections[code] = counter
	}
	m.mu.Unlock()
	counter.Add(1)
}

// RecordTool records a tool execution.
func (m *Metrics) RecordTool(name string, duration time.Duration, success bool) {
	tm := m.getToolMetrics(name)
	tm.executionCount.Add(1)
	tm.totalDuration.Add(duration.Milliseconds())
	if !success {
		tm.errorCount.Add(1)
	}
}

func (m *Metrics) getToolMetrics(name string) *ToolMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.toolMetrics[name]; !ok {
		m.toolMetrics[name] = &ToolMetrics{}
	}
	return m.toolMetrics[name]
}

// Reset resets all metrics (useful for testing).
func (m *Metrics) Reset() {
	m.turnTotal.Store(0)
	m.turnDegraded.Store(0)
	m.turnFailed.Store(0)
	m.modelCalls.Store(0)

	m.mu.Lock()
	m.rejections = make(map[string]*atomic.Int64)
	m.toolMetrics = make(map[string]*ToolMetrics)
	m.durations = make([]time.Duration, 0, m.maxDurations)
	m.mu.Unlock()
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	rejections := make(map[string]int64, len(m.rejections))
	for code, counter := range m.rejections {
		rejections[code] = counter.Load()
	}

	tools := make(map[string]*ToolMetricsSnapshot, len(m.toolMetrics))
	for name, tm := range m.toolMetrics {
		count := tm.executionCount.Load()
		snapshot := &ToolMetricsSnapshot{
			ExecutionCount: count,
			ErrorCount:     tm.errorCount.Load(),
		}
		if count > 0 {
			snapshot.AverageDuration = tm.totalDuration.Load() / count
		}
		tools[name] = snapshot
	}

	var averageTurn int64
	if len(m.durations) > 0 {
		var total time.Duration
		for _, d := range m.durations {
			total += d
		}
		averageTurn = (total / time.Duration(len(m.durations))).Milliseconds()
	}

	return &MetricsSnapshot{
		TurnTotal:      m.turnTotal.Load(),
		TurnDegraded:   m.turnDegraded.Load(),
		TurnFailed:     m.turnFailed.Load(),
		ModelCalls:     m.modelCalls.Load(),
		Rejections:     rejections,
		Tools:          tools,
		AverageTurnMs:  averageTurn,
		DurationSample: len(m.durations),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	TurnTotal      int64                           `json:"turn_total"`
	TurnDegraded   int64                           `json:"turn_degraded"`
	TurnFailed     int64                           `json:"turn_failed"`
	ModelCalls     int64                           `json:"model_calls"`
	Rejections     map[string]int64                `json:"rejections"`
	Tools          map[string]*ToolMetricsSnapshot `json:"tools"`
	AverageTurnMs  int64                           `json:"average_turn_ms"`
	DurationSample int                             `json:"duration_sample"`
}

// ToolMetricsSnapshot represents metrics for a specific tool.
type ToolMetricsSnapshot struct {
	ExecutionCount  int64 `json:"execution_count"`
	ErrorCount      int64 `json:"error_count"`
	AverageDuration int64 `json:"average_duration_ms"`
}

// SuccessRate returns the share of turns answered by the model, as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.TurnTotal == 0 {
		return 100.0
	}
	return float64(s.TurnTotal-s.TurnDegraded-s.TurnFailed) / float64(s.TurnTotal) * 100.0
}
