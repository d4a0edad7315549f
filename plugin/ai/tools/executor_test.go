package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatrelay/plugin/ai"
)

// Test errors for retry logic
var (
	errNetwork   = errors.New("network error")
	errPermanent = errors.New("permanent error")
)

// mockTool implements Tool interface for testing.
type mockTool struct {
	name      string
	runFunc   func(ctx context.Context, args map[string]any) (string, error)
	callCount int32
}

func (m *mockTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        m.name,
		Description: "test tool",
		Parameters:  objectSchema(map[string]string{"input": "anything"}),
	}
}

func (m *mockTool) Run(ctx context.Context, args map[string]any) (string, error) {
	atomic.AddInt32(&m.callCount, 1)
	return m.runFunc(ctx, args)
}

func (m *mockTool) CallCount() int {
	return int(atomic.LoadInt32(&m.callCount))
}

type metricSample struct {
	name    string
	success bool
}

type recordingMetrics struct {
	mu      sync.Mutex
	samples []metricSample
}

func (r *recordingMetrics) RecordTool(name string, _ time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, metricSample{name: name, success: success})
}

func newTestExecutor(t *testing.T, tool Tool, opts ...ExecutorOption) *Executor {
	t.Helper()
	e := NewExecutor(append([]ExecutorOption{WithRetryDelay(time.Millisecond)}, opts...)...)
	require.NoError(t, e.Register(tool))
	return e
}

func TestExecutor_Execute_Success(t *testing.T) {
	metrics := &recordingMetrics{}
	tool := &mockTool{
		name: "echo",
		runFunc: func(_ context.Context, args map[string]any) (string, error) {
			return "got " + stringArg(args, "input"), nil
		},
	}
	e := newTestExecutor(t, tool, WithMetrics(metrics))

	out := e.Execute(context.Background(), "echo", `{"input":"hello"}`)

	assert.Equal(t, "got hello", out)
	assert.Equal(t, 1, tool.CallCount())
	assert.Equal(t, []metricSample{{name: "echo", success: true}}, metrics.samples)
}

func TestExecutor_Execute_UnknownTool(t *testing.T) {
	e := NewExecutor()
	assert.Equal(t, "Unknown tool: teleport", e.Execute(context.Background(), "teleport", "{}"))
}

func TestExecutor_Execute_RetryOnTransientError(t *testing.T) {
	tool := &mockTool{name: "flaky"}
	tool.runFunc = func(context.Context, map[string]any) (string, error) {
		if tool.CallCount() < 3 {
			return "", errNetwork
		}
		return "success after retry", nil
	}
	e := newTestExecutor(t, tool, WithMaxRetries(2))

	assert.Equal(t, "success after retry", e.Execute(context.Background(), "flaky", "{}"))
	assert.Equal(t, 3, tool.CallCount())
}

func TestExecutor_Execute_NoRetryOnPermanentError(t *testing.T) {
	metrics := &recordingMetrics{}
	tool := &mockTool{
		name: "broken",
		runFunc: func(context.Context, map[string]any) (string, error) {
			return "", errPermanent
		},
	}
	e := newTestExecutor(t, tool, WithMaxRetries(3), WithMetrics(metrics))

	out := e.Execute(context.Background(), "broken", "{}")

	assert.Equal(t, "Error executing broken: permanent error", out)
	assert.Equal(t, 1, tool.CallCount())
	assert.Equal(t, []metricSample{{name: "broken", success: false}}, metrics.samples)
}

func TestExecutor_Execute_RecoversPanic(t *testing.T) {
	tool := &mockTool{
		name: "panicky",
		runFunc: func(context.Context, map[string]any) (string, error) {
			panic("boom")
		},
	}
	e := newTestExecutor(t, tool)

	out := e.Execute(context.Background(), "panicky", "{}")
	assert.Contains(t, out, "tool panicked: boom")
}

func TestExecutor_Execute_Timeout(t *testing.T) {
	tool := &mockTool{
		name: "slow",
		runFunc: func(ctx context.Context, _ map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	e := newTestExecutor(t, tool, WithTimeout(20*time.Millisecond), WithMaxRetries(0))

	out := e.Execute(context.Background(), "slow", "{}")
	assert.Contains(t, out, "deadline exceeded")
}

func TestExecutor_Execute_RejectsInvalidArguments(t *testing.T) {
	e := NewDefaultExecutor(Config{})

	tests := []struct {
		name string
		args string
	}{
		{"malformed json", `{"expression":`},
		{"missing required", `{}`},
		{"wrong type", `{"expression": 5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Execute(context.Background(), "calculate", tt.args)
			assert.True(t, strings.HasPrefix(out, "Error calculating"), out)
		})
	}
}

func TestExecutor_Register_Duplicate(t *testing.T) {
	e := NewExecutor()
	require.NoError(t, e.Register(Calculator{}))
	assert.Error(t, e.Register(Calculator{}))
}

func TestDefaultExecutor_Catalogue(t *testing.T) {
	e := NewDefaultExecutor(Config{})

	catalogue := e.Catalogue()
	require.Len(t, catalogue, 4)

	names := make([]string, 0, len(catalogue))
	for _, def := range catalogue {
		names = append(names, def.Name)
		assert.NotEmpty(t, def.Description)
		assert.Equal(t, "object", def.Parameters["type"])
	}
	assert.Equal(t, []string{"web_search", "calculate", "get_current_time", "weather_search"}, names)
	assert.Equal(t, []string{"calculate", "get_current_time", "weather_search", "web_search"}, e.Names())

	assert.Equal(t, []string{"expression"}, catalogue[1].Parameters["required"])
	assert.Equal(t, []string{}, catalogue[2].Parameters["required"])
}

func TestDefaultExecutor_CurrentTime(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	e := NewDefaultExecutor(Config{Now: func() time.Time { return fixed }})

	assert.Equal(t, "Current date and time: 2026-03-14 09:26:53", e.Execute(context.Background(), "get_current_time", ""))
}
