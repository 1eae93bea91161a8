package database

import (
	"context"
	"errors"

	"joke-bot/internal/models"

	"github.com/jackc/pgx/v5"
)

type ReactionRepository struct {
	db *DB
}

func NewReactionRepository(db *DB) *ReactionRepository {
	return &ReactionRepository{db: db}
}

func (r *ReactionRepository) Catalog(ctx context.Context) ([]models.Reaction, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, name, emoji FROM reactions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reactions []models.Reaction
	for rows.Next() {
		var re models.Reaction
		if err := rows.Scan(&re.ID, &re.Name, &re.Emoji); err != nil {
			return nil, err
		}
		reactions = append(reactions, re)
	}
	return reactions, rows.Err()
}

// CountsFor returns the per-reaction counts for one joke across the
// whole catalog, zero-count reactions included, so a keyboard always
// shows every option.
func (r *ReactionRepository) CountsFor(ctx context.Context, jokeID int64) ([]models.ReactionCount, error) {
	query := `
		SELECT r.id, r.name, r.emoji, COUNT(jr.user_id)
		FROM reactions r
		LEFT JOIN joke_reactions jr ON jr.reaction_id = r.id AND jr.joke_id = $1
		GROUP BY r.id, r.name, r.emoji
		ORDER BY r.id
	`
	rows, err := r.db.Pool.Query(ctx, query, jokeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []models.ReactionCount
	for rows.Next() {
		var rc models.ReactionCount
		if err := rows.Scan(&rc.ID, &rc.Name, &rc.Emoji, &rc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, rc)
	}
	return counts, rows.Err()
}

type reactionAction int

const (
	reactionInsert reactionAction = iota
	reactionReplace
	reactionClear
)

// resolveReaction decides what a new reaction does to an existing one:
// no stored reaction inserts, the same reaction again clears it, a
// different one replaces it.
func resolveReaction(existing *int64, selected int64) reactionAction {
	if existing == nil {
		return reactionInsert
	}
	if *existing == selected {
		return reactionClear
	}
	return reactionReplace
}

// React applies toggle/replace semantics for the (user, joke) pair.
func (r *ReactionRepository) React(ctx context.Context, userID, jokeID, reactionID int64) error {
	queryCheck := `SELECT reaction_id FROM joke_reactions WHERE user_id = $1 AND joke_id = $2`

	var existing *int64
	var stored int64
	err := r.db.Pool.QueryRow(ctx, queryCheck, userID, jokeID).Scan(&stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		existing = nil
	case err != nil:
		return err
	default:
		existing = &stored
	}

	switch resolveReaction(existing, reactionID) {
	case reactionClear:
		query := `DELETE FROM joke_reactions WHERE user_id = $1 AND joke_id = $2`
		_, err = r.db.Pool.Exec(ctx, query, userID, jokeID)
	case reactionReplace:
		query := `UPDATE joke_reactions SET reaction_id = $3 WHERE user_id = $1 AND joke_id = $2`
		_, err = r.db.Pool.Exec(ctx, query, userID, jokeID, reactionID)
	default:
		query := `INSERT INTO joke_reactions (user_id, joke_id, reaction_id) VALUES ($1, $2, $3)`
		_, err = r.db.Pool.Exec(ctx, query, userID, jokeID, reactionID)
	}
	return err
}
