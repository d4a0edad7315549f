package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/chatrelay/internal/profile"
	"github.com/hrygo/chatrelay/store/cache"
)

const contextCacheTTL = 10 * time.Minute

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// contextCache fronts conversation context reads.
	contextCache cache.Cache
}

// New creates a new instance of Store. A nil contextCache uses an in-memory LRU.
func New(driver Driver, profile *profile.Profile, contextCache cache.Cache) *Store {
	if contextCache == nil {
		contextCache = cache.NewMemory(cache.MemoryConfig{
			Capacity:   1000,
			DefaultTTL: contextCacheTTL,
		})
	}
	return &Store{
		driver:       driver,
		profile:      profile,
		contextCache: contextCache,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	if err := s.contextCache.Close(); err != nil {
		slog.Warn("failed to close context cache", "error", err)
	}
	return s.driver.Close()
}

func (s *Store) CreateChatSession(ctx context.Context, create *ChatSession) (*ChatSession, error) {
	return s.driver.CreateChatSession(ctx, create)
}

func (s *Store) ListChatSessions(ctx context.Context, find *FindChatSession) ([]*ChatSession, error) {
	return s.driver.ListChatSessions(ctx, find)
}

// GetChatSession returns the first matching session, or nil if none.
func (s *Store) GetChatSession(ctx context.Context, find *FindChatSession) (*ChatSession, error) {
	list, err := s.ListChatSessions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateChatSession(ctx context.Context, update *UpdateChatSession) (*ChatSession, error) {
	return s.driver.UpdateChatSession(ctx, update)
}

func (s *Store) DeactivateChatSessions(ctx context.Context, deactivate *DeactivateChatSessions) (int64, error) {
	return s.driver.DeactivateChatSessions(ctx, deactivate)
}

func (s *Store) CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	return s.driver.CreateChatMessage(ctx, create)
}

func (s *Store) ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error) {
	return s.driver.ListChatMessages(ctx, find)
}

func contextCacheKey(sessionUID string) string {
	return "context:" + sessionUID
}

// GetConversationContext returns the session's context blob. A session without
// stored context yields an empty blob.
func (s *Store) GetConversationContext(ctx context.Context, sessionUID string) (*ConversationContext, error) {
	key := contextCacheKey(sessionUID)
	if raw, ok := s.contextCache.Get(ctx, key); ok {
		cached := &ConversationContext{}
		if err := json.Unmarshal(raw, cached); err == nil {
			return cached, nil
		}
		_ = s.contextCache.Invalidate(ctx, key)
	}

	conversationContext, err := s.driver.GetConversationContext(ctx, sessionUID)
	if err != nil {
		return nil, err
	}
	if conversationContext == nil {
		return &ConversationContext{SessionUID: sessionUID, Data: map[string]any{}}, nil
	}
	s.cacheContext(ctx, conversationContext)
	return conversationContext, nil
}

// MergeConversationContext merges keys into the session's context blob.
func (s *Store) MergeConversationContext(ctx context.Context, merge *MergeConversationContext) (*ConversationContext, error) {
	if merge.SessionUID == "" {
		return nil, errors.New("session uid is required")
	}
	if merge.UpdatedTs == 0 {
		merge.UpdatedTs = time.Now().Unix()
	}
	conversationContext, err := s.driver.MergeConversationContext(ctx, merge)
	if err != nil {
		_ = s.contextCache.Invalidate(ctx, contextCacheKey(merge.SessionUID))
		return nil, err
	}
	s.cacheContext(ctx, conversationContext)
	return conversationContext, nil
}

func (s *Store) cacheContext(ctx context.Context, conversationContext *ConversationContext) {
	raw, err := json.Marshal(conversationContext)
	if err != nil {
		return
	}
	if err := s.contextCache.Set(ctx, contextCacheKey(conversationContext.SessionUID), raw, 0); err != nil {
		slog.Warn("failed to cache conversation context", "session_uid", conversationContext.SessionUID, "error", err)
	}
}
