package database

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"joke-bot/internal/models"

	"github.com/jackc/pgx/v5"
)

type JokeRepository struct {
	db *DB
}

func NewJokeRepository(db *DB) *JokeRepository {
	return &JokeRepository{db: db}
}

func (r *JokeRepository) Create(ctx context.Context, joke *models.Joke) error {
	if joke.Status == "" {
		joke.Status = models.StatusDraft
	}
	query := `
		INSERT INTO jokes (author_id, content, language_code, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		authorOrNull(joke.AuthorID), joke.Content, joke.LanguageCode, joke.Status,
	).Scan(&joke.ID, &joke.CreatedAt, &joke.UpdatedAt)
}

// authorOrNull maps the zero author id to NULL, so jokes imported
// without an author satisfy the users foreign key.
func authorOrNull(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func (r *JokeRepository) Update(ctx context.Context, joke *models.Joke) error {
	query := `
		UPDATE jokes
		SET content = $2, language_code = $3, status = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		joke.ID, joke.Content, joke.LanguageCode, joke.Status,
	).Scan(&joke.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJokeNotFound
	}
	return err
}

func (r *JokeRepository) SetStatus(ctx context.Context, id int64, status models.JokeStatus) error {
	query := `UPDATE jokes SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJokeNotFound
	}
	return nil
}

// Delete removes the joke; its tag and reaction join rows go with it
// via the schema's ON DELETE CASCADE.
func (r *JokeRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM jokes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJokeNotFound
	}
	return nil
}

func (r *JokeRepository) Get(ctx context.Context, id int64) (*models.Joke, error) {
	query := `
		SELECT id, COALESCE(author_id, 0), content, language_code, status, created_at, updated_at
		FROM jokes
		WHERE id = $1
	`
	var joke models.Joke
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&joke.ID, &joke.AuthorID, &joke.Content, &joke.LanguageCode,
		&joke.Status, &joke.CreatedAt, &joke.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJokeNotFound
		}
		return nil, err
	}
	return &joke, nil
}

func (r *JokeRepository) LoadTags(ctx context.Context, joke *models.Joke) error {
	query := `
		SELECT t.id, t.name
		FROM joke_tags jt
		JOIN tags t ON jt.tag_id = t.id
		WHERE jt.joke_id = $1
		ORDER BY t.name
	`
	rows, err := r.db.Pool.Query(ctx, query, joke.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	joke.Tags = joke.Tags[:0]
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return err
		}
		joke.Tags = append(joke.Tags, t)
	}
	return rows.Err()
}

// LoadReactions fills the per-reaction counts across the whole catalog,
// zero counts included, so the keyboard always shows every reaction.
func (r *JokeRepository) LoadReactions(ctx context.Context, joke *models.Joke) error {
	query := `
		SELECT r.id, r.name, r.emoji, COUNT(jr.reaction_id)
		FROM reactions r
		LEFT JOIN joke_reactions jr ON r.id = jr.reaction_id AND jr.joke_id = $1
		GROUP BY r.id, r.name, r.emoji
		ORDER BY r.id
	`
	rows, err := r.db.Pool.Query(ctx, query, joke.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	joke.Reactions = joke.Reactions[:0]
	for rows.Next() {
		var rc models.ReactionCount
		if err := rows.Scan(&rc.ID, &rc.Name, &rc.Emoji, &rc.Count); err != nil {
			return err
		}
		joke.Reactions = append(joke.Reactions, rc)
	}
	return rows.Err()
}

func (r *JokeRepository) LoadAuthor(ctx context.Context, joke *models.Joke) error {
	if joke.AuthorID == 0 {
		joke.Author = nil
		return nil
	}
	query := `SELECT id, username FROM users WHERE id = $1`
	var u models.User
	err := r.db.Pool.QueryRow(ctx, query, joke.AuthorID).Scan(&u.ID, &u.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			joke.Author = nil
			return nil
		}
		return err
	}
	joke.Author = &u
	return nil
}

func (r *JokeRepository) LoadLanguage(ctx context.Context, joke *models.Joke) error {
	query := `SELECT code, name FROM languages WHERE code = $1`
	var l models.Language
	err := r.db.Pool.QueryRow(ctx, query, joke.LanguageCode).Scan(&l.Code, &l.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLanguageNotFound
		}
		return err
	}
	joke.Language = &l
	return nil
}

// Hydrate loads tags, reaction counts, author and language for a joke
// that already has its base row populated.
func (r *JokeRepository) Hydrate(ctx context.Context, joke *models.Joke) error {
	if err := r.LoadTags(ctx, joke); err != nil {
		return fmt.Errorf("failed to load tags for joke %d: %w", joke.ID, err)
	}
	if err := r.LoadReactions(ctx, joke); err != nil {
		return fmt.Errorf("failed to load reactions for joke %d: %w", joke.ID, err)
	}
	if err := r.LoadAuthor(ctx, joke); err != nil {
		return fmt.Errorf("failed to load author for joke %d: %w", joke.ID, err)
	}
	if err := r.LoadLanguage(ctx, joke); err != nil {
		return fmt.Errorf("failed to load language for joke %d: %w", joke.ID, err)
	}
	return nil
}

// SetTags replaces the joke's tag associations with the given set.
func (r *JokeRepository) SetTags(ctx context.Context, jokeID int64, tagIDs []int64) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM joke_tags WHERE joke_id = $1`, jokeID); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		query := `INSERT INTO joke_tags (joke_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		if _, err := r.db.Pool.Exec(ctx, query, jokeID, tagID); err != nil {
			return err
		}
	}
	return nil
}

type jokeCandidate struct {
	ID     int64
	TagIDs []int64
}

// Random returns one joke chosen uniformly at random among all jokes in
// the given language and status that carry at least one of the given
// tags. An empty tag set matches any joke. Returns ErrNoJokesFound when
// nothing matches.
func (r *JokeRepository) Random(ctx context.Context, lang string, tagIDs []int64, status models.JokeStatus) (*models.Joke, error) {
	query := `
		SELECT j.id, COALESCE(array_agg(jt.tag_id) FILTER (WHERE jt.tag_id IS NOT NULL), '{}')
		FROM jokes j
		LEFT JOIN joke_tags jt ON jt.joke_id = j.id
		WHERE j.language_code = $1 AND j.status = $2
		GROUP BY j.id
	`
	rows, err := r.db.Pool.Query(ctx, query, lang, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []jokeCandidate
	for rows.Next() {
		var c jokeCandidate
		if err := rows.Scan(&c.ID, &c.TagIDs); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	id, ok := pickID(candidateIDs(candidates, tagIDs))
	if !ok {
		return nil, ErrNoJokesFound
	}

	joke, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.Hydrate(ctx, joke); err != nil {
		return nil, err
	}
	return joke, nil
}

func (r *JokeRepository) ByAuthor(ctx context.Context, authorID int64) ([]models.Joke, error) {
	query := `
		SELECT id, author_id, content, language_code, status, created_at, updated_at
		FROM jokes
		WHERE author_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Pool.Query(ctx, query, authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jokes []models.Joke
	for rows.Next() {
		var j models.Joke
		err := rows.Scan(
			&j.ID, &j.AuthorID, &j.Content, &j.LanguageCode,
			&j.Status, &j.CreatedAt, &j.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		jokes = append(jokes, j)
	}
	return jokes, rows.Err()
}

func (r *JokeRepository) Count(ctx context.Context, status models.JokeStatus) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM jokes WHERE status = $1`, status).Scan(&count)
	return count, err
}

// candidateIDs keeps the candidates that carry at least one of the
// wanted tags. An empty wanted set disables tag filtering.
func candidateIDs(candidates []jokeCandidate, wanted []int64) []int64 {
	wantedSet := make(map[int64]bool, len(wanted))
	for _, id := range wanted {
		wantedSet[id] = true
	}

	var ids []int64
	for _, c := range candidates {
		if len(wantedSet) == 0 {
			ids = append(ids, c.ID)
			continue
		}
		for _, tagID := range c.TagIDs {
			if wantedSet[tagID] {
				ids = append(ids, c.ID)
				break
			}
		}
	}
	return ids
}

// pickID draws one id uniformly at random.
func pickID(ids []int64) (int64, bool) {
	if len(ids) == 0 {
		return 0, false
	}
	return ids[rand.IntN(len(ids))], true
}
