package database

import (
	"context"
	"errors"

	"joke-bot/internal/models"

	"github.com/jackc/pgx/v5"
)

type ChatRepository struct {
	db *DB
}

func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Upsert creates the chat row on first interaction and refreshes the
// mutable fields on every following one. Delivery bookkeeping
// (last_message_id, last_sent_at) is never touched here.
func (r *ChatRepository) Upsert(ctx context.Context, chat *models.Chat) error {
	query := `
		INSERT INTO chats (id, type, username, user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			username = EXCLUDED.username,
			user_id = EXCLUDED.user_id
		RETURNING last_message_id, last_sent_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		chat.ID, chat.Type, chat.Username, chat.UserID,
	).Scan(&chat.LastMessageID, &chat.LastSentAt)
}

func (r *ChatRepository) Get(ctx context.Context, id int64) (*models.Chat, error) {
	query := `
		SELECT id, type, username, COALESCE(user_id, 0), last_message_id, last_sent_at
		FROM chats
		WHERE id = $1
	`
	var chat models.Chat
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&chat.ID, &chat.Type, &chat.Username,
		&chat.UserID, &chat.LastMessageID, &chat.LastSentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return &chat, nil
}

// DeliveryCandidates returns every chat with delivery enabled together
// with its interval and last-delivery timestamp. Eligibility itself is
// decided by the caller.
func (r *ChatRepository) DeliveryCandidates(ctx context.Context) ([]models.DeliveryCandidate, error) {
	query := `
		SELECT c.id, s.interval_seconds, c.last_sent_at
		FROM chats c
		JOIN settings s ON s.chat_id = c.id
		WHERE s.sending_jokes
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []models.DeliveryCandidate
	for rows.Next() {
		var c models.DeliveryCandidate
		if err := rows.Scan(&c.ChatID, &c.Interval, &c.LastSentAt); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// RecordDelivery stores the outbound message id and the delivery
// timestamp after a successful send.
func (r *ChatRepository) RecordDelivery(ctx context.Context, chatID int64, messageID int, sentAt int64) error {
	query := `UPDATE chats SET last_message_id = $2, last_sent_at = $3 WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, chatID, messageID, sentAt)
	return err
}

// ClearLastMessage drops a stale message id after a failed delete so it
// is not retried on the next delivery.
func (r *ChatRepository) ClearLastMessage(ctx context.Context, chatID int64) error {
	query := `UPDATE chats SET last_message_id = 0 WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, chatID)
	return err
}
