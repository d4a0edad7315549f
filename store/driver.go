package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Dialect is the goose dialect name of the database.
	Dialect() string

	// ChatSession model related methods.
	CreateChatSession(ctx context.Context, create *ChatSession) (*ChatSession, error)
	ListChatSessions(ctx context.Context, find *FindChatSession) ([]*ChatSession, error)
	UpdateChatSession(ctx context.Context, update *UpdateChatSession) (*ChatSession, error)
	DeactivateChatSessions(ctx context.Context, deactivate *DeactivateChatSessions) (int64, error)

	// ChatMessage model related methods.
	CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error)
	ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error)

	// ConversationContext model related methods.
	// GetConversationContext returns nil when the session has no context yet.
	GetConversationContext(ctx context.Context, sessionUID string) (*ConversationContext, error)
	MergeConversationContext(ctx context.Context, merge *MergeConversationContext) (*ConversationContext, error)
}
