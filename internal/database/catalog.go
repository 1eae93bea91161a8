package database

import (
	"context"
	"errors"

	"joke-bot/internal/models"

	"github.com/jackc/pgx/v5"
)

type TagRepository struct {
	db *DB
}

func NewTagRepository(db *DB) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) All(ctx context.Context) ([]models.Tag, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, name FROM tags ORDER BY name`)
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

func (r *TagRepository) Get(ctx context.Context, id int64) (*models.Tag, error) {
	var t models.Tag
	err := r.db.Pool.QueryRow(ctx, `SELECT id, name FROM tags WHERE id = $1`, id).Scan(&t.ID, &t.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTagNotFound
		}
		return nil, err
	}
	return &t, nil
}

// GetOrCreateByName resolves a tag name to its row, creating it when it
// does not exist yet. Used by the submission consumer, where tags
// arrive as names rather than ids.
func (r *TagRepository) GetOrCreateByName(ctx context.Context, name string, createdBy int64) (*models.Tag, error) {
	query := `
		INSERT INTO tags (name, created_by)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name
	`
	var creator any
	if createdBy != 0 {
		creator = createdBy
	}

	var t models.Tag
	if err := r.db.Pool.QueryRow(ctx, query, name, creator).Scan(&t.ID, &t.Name); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TagRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTagNotFound
	}
	return nil
}

type LanguageRepository struct {
	db *DB
}

func NewLanguageRepository(db *DB) *LanguageRepository {
	return &LanguageRepository{db: db}
}

func (r *LanguageRepository) All(ctx context.Context) ([]models.Language, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT code, name FROM languages ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var languages []models.Language
	for rows.Next() {
		var l models.Language
		if err := rows.Scan(&l.Code, &l.Name); err != nil {
			return nil, err
		}
		languages = append(languages, l)
	}
	return languages, rows.Err()
}

func (r *LanguageRepository) Get(ctx context.Context, code string) (*models.Language, error) {
	var l models.Language
	err := r.db.Pool.QueryRow(ctx, `SELECT code, name FROM languages WHERE code = $1`, code).Scan(&l.Code, &l.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLanguageNotFound
		}
		return nil, err
	}
	return &l, nil
}

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
	`
	_, err := r.db.Pool.Exec(ctx, query, user.ID, user.Username)
	return err
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
