package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/chatrelay/store"
)

const chatSessionColumns = `id, uid, creator_id, title, active, created_ts, updated_ts`

const chatMessageColumns = `id, uid, session_id, role, content, tokens_used, tool_calls, tool_call_id, created_ts`

func (d *DB) CreateChatSession(ctx context.Context, create *store.ChatSession) (*store.ChatSession, error) {
	fields := []string{"uid", "creator_id", "title", "active", "created_ts", "updated_ts"}
	args := []any{create.UID, create.CreatorID, create.Title, create.Active, create.CreatedTs, create.UpdatedTs}

	stmt := `INSERT INTO chat_session (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create chat_session: %w", err)
	}
	return create, nil
}

func (d *DB) ListChatSessions(ctx context.Context, find *store.FindChatSession) ([]*store.ChatSession, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.CreatorID != nil {
		where, args = append(where, "creator_id = "+placeholder(len(args)+1)), append(args, *find.CreatorID)
	}
	if find.Active != nil {
		where, args = append(where, "active = "+placeholder(len(args)+1)), append(args, *find.Active)
	}

	query := `SELECT ` + chatSessionColumns + ` FROM chat_session WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_ts DESC, id DESC`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat_sessions: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatSession, 0)
	for rows.Next() {
		s := &store.ChatSession{}
		if err := rows.Scan(&s.ID, &s.UID, &s.CreatorID, &s.Title, &s.Active, &s.CreatedTs, &s.UpdatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan chat_session: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat_sessions: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateChatSession(ctx context.Context, update *store.UpdateChatSession) (*store.ChatSession, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.Active != nil {
		set, args = append(set, "active = "+placeholder(len(args)+1)), append(args, *update.Active)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	// RETURNING all fields to avoid N+1 query
	stmt := `UPDATE chat_session SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING ` + chatSessionColumns
	s := &store.ChatSession{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&s.ID, &s.UID, &s.CreatorID, &s.Title, &s.Active, &s.CreatedTs, &s.UpdatedTs); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("chat_session not found")
		}
		return nil, fmt.Errorf("failed to update chat_session: %w", err)
	}
	return s, nil
}

func (d *DB) DeactivateChatSessions(ctx context.Context, deactivate *store.DeactivateChatSessions) (int64, error) {
	stmt := `UPDATE chat_session SET active = FALSE WHERE active AND updated_ts < ` + placeholder(1)
	result, err := d.db.ExecContext(ctx, stmt, deactivate.UpdatedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate chat_sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deactivated chat_sessions: %w", err)
	}
	return affected, nil
}

func (d *DB) CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	toolCalls, err := store.MarshalToolCalls(create.ToolCalls)
	if err != nil {
		return nil, err
	}

	fields := []string{"uid", "session_id", "role", "content", "tokens_used", "tool_calls", "tool_call_id", "created_ts"}
	args := []any{create.UID, create.SessionID, string(create.Role), create.Content, nullInt32(create.TokensUsed), toolCalls, create.ToolCallID, create.CreatedTs}

	stmt := `INSERT INTO chat_message (` + strings.Join(fields, ", ") + `)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create chat_message: %w", err)
	}
	return create, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.SessionID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *find.SessionID)
	}
	if find.BeforeID != nil {
		where, args = append(where, "id < "+placeholder(len(args)+1)), append(args, *find.BeforeID)
	}

	query := `SELECT ` + chatMessageColumns + ` FROM chat_message WHERE ` + strings.Join(where, " AND ")
	if find.Limit != nil {
		query = `SELECT * FROM (` + query + fmt.Sprintf(` ORDER BY id DESC LIMIT %d`, *find.Limit) + `) AS recent`
	}
	query += ` ORDER BY id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat_messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatMessage, 0)
	for rows.Next() {
		m := &store.ChatMessage{}
		var role string
		var tokens sql.NullInt32
		var toolCalls []byte
		if err := rows.Scan(&m.ID, &m.UID, &m.SessionID, &role, &m.Content, &tokens, &toolCalls, &m.ToolCallID, &m.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan chat_message: %w", err)
		}
		m.Role = store.ChatMessageRole(role)
		if tokens.Valid {
			v := tokens.Int32
			m.TokensUsed = &v
		}
		if m.ToolCalls, err = store.UnmarshalToolCalls(toolCalls); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat_messages: %w", err)
	}
	return list, nil
}

func (d *DB) GetConversationContext(ctx context.Context, sessionUID string) (*store.ConversationContext, error) {
	var raw []byte
	c := &store.ConversationContext{SessionUID: sessionUID}
	err := d.db.QueryRowContext(ctx, `SELECT data, updated_ts FROM conversation_context WHERE session_uid = $1`, sessionUID).Scan(&raw, &c.UpdatedTs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation_context: %w", err)
	}
	if c.Data, err = store.UnmarshalContextData(raw); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *DB) MergeConversationContext(ctx context.Context, merge *store.MergeConversationContext) (*store.ConversationContext, error) {
	patch, err := store.MarshalContextData(merge.Data)
	if err != nil {
		return nil, err
	}

	// jsonb || replaces top-level keys and keeps the rest.
	stmt := `INSERT INTO conversation_context (session_uid, data, updated_ts)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (session_uid) DO UPDATE
		SET data = conversation_context.data || EXCLUDED.data, updated_ts = EXCLUDED.updated_ts
		RETURNING data, updated_ts`
	var raw []byte
	c := &store.ConversationContext{SessionUID: merge.SessionUID}
	if err := d.db.QueryRowContext(ctx, stmt, merge.SessionUID, patch, merge.UpdatedTs).Scan(&raw, &c.UpdatedTs); err != nil {
		return nil, fmt.Errorf("failed to merge conversation_context: %w", err)
	}
	if c.Data, err = store.UnmarshalContextData(raw); err != nil {
		return nil, err
	}
	return c, nil
}

func nullInt32(v *int32) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: *v, Valid: true}
}
