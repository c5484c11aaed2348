package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vibely/server/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `id, conversation_id, sender_id, text, kind, status, media_url, created_at`

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, text, kind, status, media_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Text, msg.Kind, msg.Status, msg.MediaURL, msg.CreatedAt,
	)
	return err
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, conversationID)
}

func (r *MessageRepo) ListByConversationBefore(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	var query string
	var args []any

	if before != nil {
		// Row comparison so messages sharing the cursor's timestamp are not
		// skipped; matches the (created_at, id) order.
		query = fmt.Sprintf(`
			SELECT `+messageColumns+`
			FROM messages
			WHERE conversation_id = $1
				AND (created_at, id) < (SELECT created_at, id FROM messages WHERE id = $2)
			ORDER BY created_at DESC, id DESC
			LIMIT %d`, limit)
		args = []any{conversationID, *before}
	} else {
		query = fmt.Sprintf(`
			SELECT `+messageColumns+`
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT %d`, limit)
		args = []any{conversationID}
	}

	messages, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order (query returns DESC)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepo) list(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Text, &msg.Kind, &msg.Status, &msg.MediaURL, &msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AdvanceStatus is a guarded update: the WHERE clause refuses regressions,
// so duplicate or racing writers converge instead of fighting.
func (r *MessageRepo) AdvanceStatus(ctx context.Context, conversationID, messageID uuid.UUID, status domain.MessageStatus) error {
	query := `
		UPDATE messages
		SET status = $1
		WHERE id = $2 AND conversation_id = $3
			AND CASE status WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END
				< CASE $1::text WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END`
	_, err := r.pool.Exec(ctx, query, status, messageID, conversationID)
	return err
}

func (r *MessageRepo) DeleteBySender(ctx context.Context, senderID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE sender_id = $1`, senderID)
	return err
}

func (r *MessageRepo) DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	return err
}
