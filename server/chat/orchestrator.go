// Package chat drives conversation turns: it resolves the session, persists
// the transcript and runs the two-round tool protocol against the model.
package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/chatrelay/plugin/ai"
	"github.com/hrygo/chatrelay/plugin/ai/timeout"
	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
	"github.com/hrygo/chatrelay/server/internal/observability"
	"github.com/hrygo/chatrelay/store"
)

// SessionStore is the persistence the orchestrator needs. *store.Store implements it.
type SessionStore interface {
	CreateChatSession(ctx context.Context, create *store.ChatSession) (*store.ChatSession, error)
	GetChatSession(ctx context.Context, find *store.FindChatSession) (*store.ChatSession, error)
	ListChatSessions(ctx context.Context, find *store.FindChatSession) ([]*store.ChatSession, error)
	UpdateChatSession(ctx context.Context, update *store.UpdateChatSession) (*store.ChatSession, error)
	DeactivateChatSessions(ctx context.Context, deactivate *store.DeactivateChatSessions) (int64, error)
	CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error)
	ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error)
	GetConversationContext(ctx context.Context, sessionUID string) (*store.ConversationContext, error)
	MergeConversationContext(ctx context.Context, merge *store.MergeConversationContext) (*store.ConversationContext, error)
}

// ToolRunner offers the tool catalogue and runs tool calls. *tools.Executor implements it.
type ToolRunner interface {
	Catalogue() []ai.ToolDefinition
	Execute(ctx context.Context, name, rawArgs string) string
}

// Config bounds a turn.
type Config struct {
	HistoryLimit            int
	ModelTimeout            time.Duration
	MaxConcurrentModelCalls int64
}

const (
	DefaultHistoryLimit            = 20
	DefaultMaxConcurrentModelCalls = 32
)

func (c *Config) applyDefaults() {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = timeout.ModelCallTimeout
	}
	if c.MaxConcurrentModelCalls <= 0 {
		c.MaxConcurrentModelCalls = DefaultMaxConcurrentModelCalls
	}
}

// Request is one inbound user message. Message and Context must already be
// validated and sanitized.
type Request struct {
	UserID     int32
	Message    string
	SessionUID string
	Context    map[string]any
	// Channel names the transport for logs (rest, websocket).
	Channel string
}

// Result is the outcome of a turn.
type Result struct {
	Message            string
	SessionUID         string
	SessionCreated     bool
	TokensUsed         int
	ToolCalls          []ai.ToolCall
	Context            map[string]any
	UserCreatedTs      int64
	AssistantCreatedTs int64
	// Degraded is set when the model failed and Message is the apology.
	Degraded bool
}

// Orchestrator runs conversation turns.
type Orchestrator struct {
	store   SessionStore
	model   ai.ModelClient
	tools   ToolRunner
	metrics *observability.Metrics
	config  Config
	now     func() time.Time

	sessions  *sequencer
	modelCall *semaphore.Weighted
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an orchestrator. A nil metrics collector gets a private one.
func NewOrchestrator(s SessionStore, model ai.ModelClient, tools ToolRunner, metrics *observability.Metrics, config Config, opts ...Option) *Orchestrator {
	config.applyDefaults()
	if metrics == nil {
		metrics = observability.NewMetrics(0)
	}
	o := &Orchestrator{
		store:     s,
		model:     model,
		tools:     tools,
		metrics:   metrics,
		config:    config,
		now:       time.Now,
		sessions:  newSequencer(),
		modelCall: semaphore.NewWeighted(config.MaxConcurrentModelCalls),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process runs one turn. Model failures are absorbed into an apology with
// Degraded set; only persistence failures are returned as errors.
func (o *Orchestrator) Process(ctx context.Context, req *Request) (*Result, error) {
	return o.Admit(ctx, req, nil)
}

// Admit holds the request's session while screen runs and the turn is
// processed, so turns on one session are persisted in admission order.
// A screen error is returned unchanged and the turn is not run.
func (o *Orchestrator) Admit(ctx context.Context, req *Request, screen func() error) (*Result, error) {
	if req.SessionUID != "" {
		release, err := o.sessions.Acquire(ctx, req.SessionUID)
		if err != nil {
			return nil, errors.Wrap(err, "waiting for session")
		}
		defer release()
	}
	if screen != nil {
		if err := screen(); err != nil {
			return nil, err
		}
	}
	return o.run(ctx, req)
}

func (o *Orchestrator) run(ctx context.Context, req *Request) (*Result, error) {
	logger := observability.NewRequestContext(slog.Default(), req.Channel, req.UserID)
	logger.Info("chat turn started",
		slog.Int(observability.LogFieldMessageLen, len(req.Message)),
		slog.String(observability.LogFieldSessionID, req.SessionUID),
	)

	result, err := o.process(ctx, req, logger)
	if err != nil {
		o.metrics.RecordFailure()
		logger.Error("chat turn failed", err,
			slog.String(observability.LogFieldErrorCode, string(chaterrors.GetCodeFromError(err, chaterrors.ErrCodePersistenceFailed))),
		)
		return nil, err
	}

	if result.Degraded {
		o.metrics.RecordDegraded()
	}
	o.metrics.RecordTurn(logger.Duration())
	logger.Info("chat turn completed",
		slog.String(observability.LogFieldSessionID, result.SessionUID),
		slog.Int("tokens_used", result.TokensUsed),
		slog.Int("tool_calls", len(result.ToolCalls)),
		slog.Bool("degraded", result.Degraded),
		slog.Int64(observability.LogFieldDuration, logger.DurationMs()),
	)
	return result, nil
}

// process expects the caller to hold req.SessionUID when it is set.
func (o *Orchestrator) process(ctx context.Context, req *Request, logger *observability.RequestContext) (*Result, error) {
	session, created, err := o.resolveSession(ctx, req.UserID, req.SessionUID, logger)
	if err != nil {
		return nil, err
	}
	if created {
		release, err := o.sessions.Acquire(ctx, session.UID)
		if err != nil {
			return nil, errors.Wrap(err, "waiting for session")
		}
		defer release()
	}

	if len(req.Context) > 0 {
		if _, err := o.store.MergeConversationContext(ctx, &store.MergeConversationContext{
			SessionUID: session.UID,
			Data:       req.Context,
			UpdatedTs:  o.now().Unix(),
		}); err != nil {
			return nil, chaterrors.PersistenceFailed("failed to merge conversation context", err)
		}
	}

	userTurn, err := o.appendTurn(ctx, &store.ChatMessage{
		SessionID: session.ID,
		Role:      store.ChatMessageRoleUser,
		Content:   req.Message,
	})
	if err != nil {
		return nil, err
	}

	limit := o.config.HistoryLimit
	history, err := o.store.ListChatMessages(ctx, &store.FindChatMessage{
		SessionID: &session.ID,
		BeforeID:  &userTurn.ID,
		Limit:     &limit,
	})
	if err != nil {
		return nil, chaterrors.PersistenceFailed("failed to load history", err)
	}
	conversationContext, err := o.store.GetConversationContext(ctx, session.UID)
	if err != nil {
		return nil, chaterrors.PersistenceFailed("failed to load conversation context", err)
	}

	messages := make([]ai.Message, 0, len(history)+3)
	messages = append(messages, ai.SystemPrompt(SystemPreamble))
	messages = append(messages, historyMessages(history)...)
	if note, ok := contextNote(conversationContext.Data); ok {
		messages = append(messages, note)
	}
	messages = append(messages, ai.UserMessage(req.Message))

	result := &Result{
		SessionUID:     session.UID,
		SessionCreated: created,
		Context:        conversationContext.Data,
		UserCreatedTs:  userTurn.CreatedTs,
	}

	first, err := o.complete(ctx, messages, o.tools.Catalogue(), 1, logger)
	if err != nil {
		return o.degrade(ctx, session, result, err, logger)
	}
	usage := first.Usage
	reply := first.Content

	if len(first.ToolCalls) > 0 {
		result.ToolCalls = first.ToolCalls
		if _, err := o.appendTurn(ctx, &store.ChatMessage{
			SessionID: session.ID,
			Role:      store.ChatMessageRoleAssistant,
			Content:   first.Content,
			ToolCalls: toStoreToolCalls(first.ToolCalls),
		}); err != nil {
			return nil, err
		}
		messages = append(messages, ai.AssistantMessage(first.Content, first.ToolCalls...))

		for _, call := range first.ToolCalls {
			output := o.tools.Execute(ctx, call.Name, call.Arguments)
			logger.Debug("tool executed",
				slog.String(observability.LogFieldTool, call.Name),
				slog.Int("output_length", len(output)),
			)
			if _, err := o.appendTurn(ctx, &store.ChatMessage{
				SessionID:  session.ID,
				Role:       store.ChatMessageRoleTool,
				Content:    output,
				ToolCallID: call.ID,
			}); err != nil {
				return nil, err
			}
			messages = append(messages, ai.ToolMessage(call.ID, output))
		}

		second, err := o.complete(ctx, messages, nil, 2, logger)
		if err != nil {
			return o.degrade(ctx, session, result, err, logger)
		}
		if len(second.ToolCalls) > 0 {
			logger.Warn("ignoring tool calls requested after the tool round",
				slog.Int("tool_calls", len(second.ToolCalls)),
			)
		}
		usage = usage.Add(second.Usage)
		reply = second.Content
	}

	tokens := int32(usage.TotalTokens)
	assistantTurn, err := o.appendTurn(ctx, &store.ChatMessage{
		SessionID:  session.ID,
		Role:       store.ChatMessageRoleAssistant,
		Content:    reply,
		TokensUsed: &tokens,
	})
	if err != nil {
		return nil, err
	}
	if err := o.touch(ctx, session); err != nil {
		return nil, err
	}

	result.Message = reply
	result.TokensUsed = usage.TotalTokens
	result.AssistantCreatedTs = assistantTurn.CreatedTs
	return result, nil
}

// resolveSession returns the requested session when it is active and owned by
// userID; otherwise it creates a new one.
func (o *Orchestrator) resolveSession(ctx context.Context, userID int32, sessionUID string, logger *observability.RequestContext) (*store.ChatSession, bool, error) {
	if sessionUID != "" {
		session, err := o.store.GetChatSession(ctx, &store.FindChatSession{UID: &sessionUID})
		if err != nil {
			return nil, false, chaterrors.PersistenceFailed("failed to load session", err)
		}
		if session != nil && session.Active && session.CreatorID == userID {
			return session, false, nil
		}
		logger.Info("requested session unusable, starting a new one",
			slog.String(observability.LogFieldSessionID, sessionUID),
		)
	}

	session, err := o.CreateSession(ctx, userID, "")
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

func (o *Orchestrator) appendTurn(ctx context.Context, turn *store.ChatMessage) (*store.ChatMessage, error) {
	turn.UID = shortuuid.New()
	turn.CreatedTs = o.now().Unix()
	created, err := o.store.CreateChatMessage(ctx, turn)
	if err != nil {
		return nil, chaterrors.PersistenceFailed("failed to save "+string(turn.Role)+" turn", err)
	}
	return created, nil
}

func (o *Orchestrator) touch(ctx context.Context, session *store.ChatSession) error {
	updatedTs := o.now().Unix()
	if _, err := o.store.UpdateChatSession(ctx, &store.UpdateChatSession{
		ID:        session.ID,
		UpdatedTs: &updatedTs,
	}); err != nil {
		return chaterrors.PersistenceFailed("failed to touch session", err)
	}
	return nil
}

// complete makes one bounded model call.
func (o *Orchestrator) complete(ctx context.Context, messages []ai.Message, tools []ai.ToolDefinition, round int, logger *observability.RequestContext) (*ai.Completion, error) {
	if err := o.modelCall.Acquire(ctx, 1); err != nil {
		return nil, chaterrors.ModelUnavailable(err).WithContext("round", round)
	}
	defer o.modelCall.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, o.config.ModelTimeout)
	defer cancel()

	o.metrics.RecordModelCall()
	start := time.Now()
	completion, err := o.model.Complete(callCtx, messages, tools)
	if err != nil {
		return nil, chaterrors.ModelUnavailable(err).WithContext("round", round)
	}
	if completion == nil {
		return nil, chaterrors.ModelUnavailable(errors.New("empty completion")).WithContext("round", round)
	}

	logger.Debug("model call completed",
		slog.Int(observability.LogFieldRound, round),
		slog.Int("tool_calls", len(completion.ToolCalls)),
		slog.Int("total_tokens", completion.Usage.TotalTokens),
		slog.Int64(observability.LogFieldDuration, time.Since(start).Milliseconds()),
	)
	return completion, nil
}

// degrade answers with the apology. The user turn and any tool turns stay
// recorded; the apology itself is not persisted.
func (o *Orchestrator) degrade(ctx context.Context, session *store.ChatSession, result *Result, cause error, logger *observability.RequestContext) (*Result, error) {
	logger.Warn("model unavailable, answering with apology",
		slog.String(observability.LogFieldErrorCode, string(chaterrors.ErrCodeModelUnavailable)),
		slog.String("error", cause.Error()),
	)
	if err := o.touch(ctx, session); err != nil {
		return nil, err
	}

	result.Message = ApologyMessage
	result.Degraded = true
	result.AssistantCreatedTs = o.now().Unix()
	return result, nil
}

// newSessionUID returns a fresh external session id.
func newSessionUID() string {
	return uuid.NewString()
}
