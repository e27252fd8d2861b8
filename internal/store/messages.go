package store

import (
	"context"
	"database/sql"
	"fmt"
)

const messageColumns = `id, sender_id, sender_name, sender_username, text, to_json(mentions), room,
	COALESCE(recipient_id, ''), kind, COALESCE(reply_to, ''), is_edited, edited_at, media,
	is_system, pinned, is_deleted, created_at, updated_at`

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	var editedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.SenderID, &m.SenderName, &m.SenderUsername, &m.Text, asJSON(&m.Mentions), &m.Room,
		&m.RecipientID, &m.Kind, &m.ReplyTo, &m.IsEdited, &editedAt, &m.Media,
		&m.IsSystem, &m.Pinned, &m.IsDeleted, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	if editedAt.Valid {
		t := editedAt.Time
		m.EditedAt = &t
	}
	m.Mentions = nonNilStrings(m.Mentions)
	return m, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, m Message) (Message, error) {
	created, err := scanMessage(s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, sender_id, sender_name, sender_username, text, mentions, room,
			recipient_id, kind, reply_to, media, is_system)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+messageColumns,
		m.ID, m.SenderID, m.SenderName, m.SenderUsername, m.Text, nonNilStrings(m.Mentions), m.Room,
		nullIfEmpty(m.RecipientID), m.Kind, nullIfEmpty(m.ReplyTo), m.Media, m.IsSystem))
	if err != nil {
		return Message{}, classify("insert message", err)
	}
	return created, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id))
	if err != nil {
		return Message{}, classify("get message", err)
	}
	if err := s.attachReactions(ctx, []*Message{&m}); err != nil {
		return Message{}, err
	}
	return m, nil
}

// ListMessagesByRoom returns the full history of room, oldest first.
func (s *PostgresStore) ListMessagesByRoom(ctx context.Context, room string) ([]Message, error) {
	return s.listMessages(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE room=$1 AND recipient_id IS NULL
		ORDER BY created_at ASC, id ASC`, room)
}

// ListMediaMessages returns every message with media attached, oldest first.
func (s *PostgresStore) ListMediaMessages(ctx context.Context) ([]Message, error) {
	return s.listMessages(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE media <> '' AND NOT is_deleted
		ORDER BY created_at ASC, id ASC`)
}

func (s *PostgresStore) listMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	ptrs := make([]*Message, len(messages))
	for i := range messages {
		ptrs[i] = &messages[i]
	}
	if err := s.attachReactions(ctx, ptrs); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *PostgresStore) attachReactions(ctx context.Context, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}
	byID := make(map[string]*Message, len(messages))
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, emoji, user_id
		FROM message_reactions
		WHERE message_id = ANY($1)
		ORDER BY created_at ASC, emoji ASC, user_id ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, emoji, userID string
		if err := rows.Scan(&messageID, &emoji, &userID); err != nil {
			return fmt.Errorf("scan reaction: %w", err)
		}
		if m, ok := byID[messageID]; ok {
			m.Reactions.Add(emoji, userID)
		}
	}
	return rows.Err()
}

// AddReaction records userID's emoji reaction on a message. It reports true
// only when the reaction did not exist before.
func (s *PostgresStore) AddReaction(ctx context.Context, messageID, emoji, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO message_reactions (message_id, emoji, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, emoji, user_id) DO NOTHING
	`, messageID, emoji, userID)
	if err != nil {
		return false, fmt.Errorf("insert reaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert reaction rows: %w", err)
	}
	return affected == 1, nil
}
