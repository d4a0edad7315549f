package chat

import (
	"context"

	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
	"github.com/hrygo/chatrelay/store"
)

// CreateSession creates an active session for userID. An empty title is
// derived from the creation time.
func (o *Orchestrator) CreateSession(ctx context.Context, userID int32, title string) (*store.ChatSession, error) {
	now := o.now()
	if title == "" {
		title = DefaultSessionTitle(now)
	}
	session, err := o.store.CreateChatSession(ctx, &store.ChatSession{
		UID:       newSessionUID(),
		CreatorID: userID,
		Title:     title,
		Active:    true,
		CreatedTs: now.Unix(),
		UpdatedTs: now.Unix(),
	})
	if err != nil {
		return nil, chaterrors.PersistenceFailed("failed to create session", err)
	}
	return session, nil
}

// ListSessions returns the user's active sessions, most recently used first.
func (o *Orchestrator) ListSessions(ctx context.Context, userID int32) ([]*store.ChatSession, error) {
	active := true
	sessions, err := o.store.ListChatSessions(ctx, &store.FindChatSession{
		CreatorID: &userID,
		Active:    &active,
	})
	if err != nil {
		return nil, chaterrors.PersistenceFailed("failed to list sessions", err)
	}
	return sessions, nil
}

// GetSession returns an active session owned by userID.
func (o *Orchestrator) GetSession(ctx context.Context, userID int32, sessionUID string) (*store.ChatSession, error) {
	session, err := o.store.GetChatSession(ctx, &store.FindChatSession{UID: &sessionUID})
	if err != nil {
		return nil, chaterrors.PersistenceFailed("failed to load session", err)
	}
	if session == nil || !session.Active {
		return nil, chaterrors.SessionNotFound(sessionUID)
	}
	if session.CreatorID != userID {
		return nil, chaterrors.Forbidden("session belongs to another user")
	}
	return session, nil
}

// ListMessages returns a session's transcript in creation order. A positive
// limit keeps only the most recent turns.
func (o *Orchestrator) ListMessages(ctx context.Context, userID int32, sessionUID string, limit int) ([]*store.ChatMessage, error) {
	session, err := o.GetSession(ctx, userID, sessionUID)
	if err != nil {
		return nil, err
	}
	find := &store.FindChatMessage{SessionID: &session.ID}
	if limit > 0 {
		find.Limit = &limit
	}
	messages, err := o.store.ListChatMessages(ctx, find)
	if err != nil {
		return nil, chaterrors.PersistenceFailed("failed to list messages", err)
	}
	return messages, nil
}

// DeleteSession deactivates a session. The transcript is kept.
func (o *Orchestrator) DeleteSession(ctx context.Context, userID int32, sessionUID string) error {
	release, err := o.sessions.Acquire(ctx, sessionUID)
	if err != nil {
		return err
	}
	defer release()

	session, err := o.GetSession(ctx, userID, sessionUID)
	if err != nil {
		return err
	}
	active := false
	updatedTs := o.now().Unix()
	if _, err := o.store.UpdateChatSession(ctx, &store.UpdateChatSession{
		ID:        session.ID,
		Active:    &active,
		UpdatedTs: &updatedTs,
	}); err != nil {
		return chaterrors.PersistenceFailed("failed to deactivate session", err)
	}
	return nil
}
