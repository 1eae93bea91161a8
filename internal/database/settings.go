package database

import (
	"context"
	"errors"
	"fmt"

	"joke-bot/internal/models"

	"github.com/jackc/pgx/v5"
)

type SettingRepository struct {
	db *DB
}

func NewSettingRepository(db *DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get loads the chat's setting row and its preferred tags.
func (r *SettingRepository) Get(ctx context.Context, chatID int64) (*models.Setting, error) {
	query := `
		SELECT chat_id, preferred_language, interval_seconds, sending_jokes, delete_last_joke
		FROM settings
		WHERE chat_id = $1
	`
	var s models.Setting
	err := r.db.Pool.QueryRow(ctx, query, chatID).Scan(
		&s.ChatID, &s.Language, &s.Interval, &s.SendingJokes, &s.DeleteLastJoke,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingNotFound
		}
		return nil, err
	}

	tags, err := r.PreferredTags(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.Tags = tags
	return &s, nil
}

// GetOrDefault loads the chat's setting, creating it with default
// values on first access.
func (r *SettingRepository) GetOrDefault(ctx context.Context, chatID int64) (*models.Setting, error) {
	setting, err := r.Get(ctx, chatID)
	if err == nil {
		return setting, nil
	}
	if !errors.Is(err, ErrSettingNotFound) {
		return nil, err
	}

	def := models.DefaultSetting(chatID)
	if err := r.Upsert(ctx, &def); err != nil {
		return nil, fmt.Errorf("failed to create default setting: %w", err)
	}
	return &def, nil
}

func (r *SettingRepository) Upsert(ctx context.Context, s *models.Setting) error {
	if s.Interval <= 0 {
		return ErrInvalidInterval
	}
	query := `
		INSERT INTO settings (chat_id, preferred_language, interval_seconds, sending_jokes, delete_last_joke)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chat_id) DO UPDATE SET
			preferred_language = EXCLUDED.preferred_language,
			interval_seconds = EXCLUDED.interval_seconds,
			sending_jokes = EXCLUDED.sending_jokes,
			delete_last_joke = EXCLUDED.delete_last_joke
	`
	_, err := r.db.Pool.Exec(ctx, query,
		s.ChatID, s.Language, s.Interval, s.SendingJokes, s.DeleteLastJoke,
	)
	return err
}

func (r *SettingRepository) SetSendingJokes(ctx context.Context, chatID int64, enabled bool) error {
	query := `UPDATE settings SET sending_jokes = $2 WHERE chat_id = $1`
	_, err := r.db.Pool.Exec(ctx, query, chatID, enabled)
	return err
}

func (r *SettingRepository) SetDeleteLastJoke(ctx context.Context, chatID int64, enabled bool) error {
	query := `UPDATE settings SET delete_last_joke = $2 WHERE chat_id = $1`
	_, err := r.db.Pool.Exec(ctx, query, chatID, enabled)
	return err
}

func (r *SettingRepository) SetLanguage(ctx context.Context, chatID int64, code string) error {
	query := `UPDATE settings SET preferred_language = $2 WHERE chat_id = $1`
	_, err := r.db.Pool.Exec(ctx, query, chatID, code)
	return err
}

func (r *SettingRepository) SetInterval(ctx context.Context, chatID int64, seconds int64) error {
	if seconds <= 0 {
		return ErrInvalidInterval
	}
	query := `UPDATE settings SET interval_seconds = $2 WHERE chat_id = $1`
	_, err := r.db.Pool.Exec(ctx, query, chatID, seconds)
	return err
}

func (r *SettingRepository) PreferredTags(ctx context.Context, chatID int64) ([]models.Tag, error) {
	query := `
		SELECT t.id, t.name
		FROM preferred_tags pt
		JOIN tags t ON pt.tag_id = t.id
		WHERE pt.chat_id = $1
		ORDER BY t.name
	`
	rows, err := r.db.Pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (r *SettingRepository) AddPreferredTag(ctx context.Context, chatID, tagID int64) error {
	query := `
		INSERT INTO preferred_tags (chat_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT (chat_id, tag_id) DO NOTHING
	`
	_, err := r.db.Pool.Exec(ctx, query, chatID, tagID)
	return err
}

func (r *SettingRepository) RemovePreferredTag(ctx context.Context, chatID, tagID int64) error {
	query := `DELETE FROM preferred_tags WHERE chat_id = $1 AND tag_id = $2`
	_, err := r.db.Pool.Exec(ctx, query, chatID, tagID)
	return err
}

// Reset restores the default setting values and clears the preferred
// tag subscriptions.
func (r *SettingRepository) Reset(ctx context.Context, chatID int64) error {
	def := models.DefaultSetting(chatID)
	if err := r.Upsert(ctx, &def); err != nil {
		return err
	}
	query := `DELETE FROM preferred_tags WHERE chat_id = $1`
	_, err := r.db.Pool.Exec(ctx, query, chatID)
	return err
}
