package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/chatrelay/plugin/ai"
	"github.com/hrygo/chatrelay/plugin/ai/timeout"
)

// MetricsRecorder receives one sample per tool execution.
type MetricsRecorder interface {
	RecordTool(name string, duration time.Duration, success bool)
}

type registeredTool struct {
	tool   Tool
	schema *argumentSchema
}

// Executor is the fixed tool registry. Failures are always returned as text so
// a broken tool never aborts the conversation turn.
type Executor struct {
	tools      map[string]*registeredTool
	order      []string
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	metrics    MetricsRecorder
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxRetries sets the maximum number of retry attempts for transient errors.
func WithMaxRetries(n int) ExecutorOption {
	return func(e *Executor) {
		e.maxRetries = n
	}
}

// WithRetryDelay sets the delay between retry attempts.
func WithRetryDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.retryDelay = d
	}
}

// WithTimeout sets the timeout for each execution attempt.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithMetrics sets the recorder for execution samples.
func WithMetrics(m MetricsRecorder) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates an empty Executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		tools:      make(map[string]*registeredTool),
		maxRetries: timeout.MaxToolRetries,
		retryDelay: 200 * time.Millisecond,
		timeout:    timeout.ToolExecutionTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a tool to the registry. Names must be unique.
func (e *Executor) Register(tool Tool) error {
	def := tool.Definition()
	if def.Name == "" {
		return errors.New("tool name is required")
	}
	if _, exists := e.tools[def.Name]; exists {
		return errors.Errorf("tool %q already registered", def.Name)
	}
	schema, err := compileSchema(def.Parameters)
	if err != nil {
		return errors.Wrapf(err, "tool %q", def.Name)
	}
	e.tools[def.Name] = &registeredTool{tool: tool, schema: schema}
	e.order = append(e.order, def.Name)
	return nil
}

// Names returns the registered tool names in sorted order.
func (e *Executor) Names() []string {
	names := append([]string(nil), e.order...)
	sort.Strings(names)
	return names
}

// Catalogue returns the tool definitions offered to the model, in registration order.
func (e *Executor) Catalogue() []ai.ToolDefinition {
	defs := make([]ai.ToolDefinition, 0, len(e.order))
	for _, name := range e.order {
		defs = append(defs, e.tools[name].tool.Definition())
	}
	return defs
}

// Execute runs the named tool with raw JSON arguments and returns its result text.
func (e *Executor) Execute(ctx context.Context, name, rawArgs string) string {
	entry, ok := e.tools[name]
	if !ok {
		slog.Warn("unknown tool requested", slog.String("tool", name))
		return fmt.Sprintf("Unknown tool: %s", name)
	}

	start := time.Now()
	args, err := entry.schema.decode(rawArgs)
	if err != nil {
		e.recordMetrics(name, time.Since(start), false)
		slog.Warn("tool arguments rejected",
			slog.String("tool", name),
			slog.String("error", err.Error()))
		return formatFailure(entry.tool, name, args, err)
	}

	output, err := e.runWithRetry(ctx, name, entry.tool, args)
	if err != nil {
		e.recordMetrics(name, time.Since(start), false)
		return formatFailure(entry.tool, name, args, err)
	}

	e.recordMetrics(name, time.Since(start), true)
	slog.Debug("tool execution succeeded",
		slog.String("tool", name),
		slog.Duration("duration", time.Since(start)))
	return output
}

func (e *Executor) runWithRetry(ctx context.Context, name string, tool Tool, args map[string]any) (string, error) {
	var lastErr error

attemptsLoop:
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break attemptsLoop
		}

		output, err := e.runOnce(ctx, tool, args)
		if err == nil {
			return output, nil
		}

		lastErr = err
		slog.Warn("tool execution failed",
			slog.String("tool", name),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))

		if !isRetryable(err) {
			break attemptsLoop
		}

		if attempt < e.maxRetries {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break attemptsLoop
			case <-time.After(e.retryDelay):
			}
		}
	}
	return "", lastErr
}

// runOnce executes a single attempt under the per-attempt timeout, converting
// panics into errors.
func (e *Executor) runOnce(ctx context.Context, tool Tool, args map[string]any) (output string, err error) {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Run(execCtx, args)
}

func (e *Executor) recordMetrics(name string, duration time.Duration, success bool) {
	if e.metrics != nil {
		e.metrics.RecordTool(name, duration, success)
	}
}

func formatFailure(tool Tool, name string, args map[string]any, err error) string {
	if f, ok := tool.(errorFormatter); ok {
		return f.FormatError(args, err)
	}
	return fmt.Sprintf("Error executing %s: %v", name, err)
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"network",
		"timeout",
		"connection",
		"unavailable",
		"temporary",
		"eof",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
