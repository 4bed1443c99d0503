package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akinalp/pano/database"
	"github.com/akinalp/pano/models"
)

type sqliteLedgerRepo struct {
	db database.TxQuerier
}

// NewSQLiteLedgerRepo, constructor.
func NewSQLiteLedgerRepo(db database.TxQuerier) LedgerRepository {
	return &sqliteLedgerRepo{db: db}
}

func (r *sqliteLedgerRepo) GetVote(ctx context.Context, targetID, actorID string) (models.VoteValue, error) {
	var v models.VoteValue
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM votes WHERE target_id = ? AND actor_id = ?`, targetID, actorID,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return models.VoteNone, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get vote: %w", err)
	}
	return v, nil
}

// SetVote, 0 için satırı siler; ±1 için upsert yapar.
func (r *sqliteLedgerRepo) SetVote(ctx context.Context, targetID, actorID string, value models.VoteValue) error {
	if value == models.VoteNone {
		if _, err := r.db.ExecContext(ctx,
			`DELETE FROM votes WHERE target_id = ? AND actor_id = ?`, targetID, actorID); err != nil {
			return fmt.Errorf("failed to delete vote: %w", err)
		}
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO votes (target_id, actor_id, value) VALUES (?, ?, ?)
		ON CONFLICT (target_id, actor_id) DO UPDATE SET
			value = excluded.value,
			updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now')`,
		targetID, actorID, int(value),
	)
	if err != nil {
		return fmt.Errorf("failed to set vote: %w", err)
	}
	return nil
}

func (r *sqliteLedgerRepo) GetReaction(ctx context.Context, targetID, actorID string) (*models.ReactionType, error) {
	var t models.ReactionType
	err := r.db.QueryRowContext(ctx,
		`SELECT reaction_type FROM reactions WHERE target_id = ? AND actor_id = ?`, targetID, actorID,
	).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reaction: %w", err)
	}
	return &t, nil
}

// SetReaction, nil için satırı siler; aksi halde mevcut reaksiyonun yerine yazar.
// Yeni tip eskisine eklenmez, onun yerini alır.
func (r *sqliteLedgerRepo) SetReaction(ctx context.Context, targetID, actorID string, reaction *models.ReactionType) error {
	if reaction == nil {
		if _, err := r.db.ExecContext(ctx,
			`DELETE FROM reactions WHERE target_id = ? AND actor_id = ?`, targetID, actorID); err != nil {
			return fmt.Errorf("failed to delete reaction: %w", err)
		}
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reactions (target_id, actor_id, reaction_type) VALUES (?, ?, ?)
		ON CONFLICT (target_id, actor_id) DO UPDATE SET
			reaction_type = excluded.reaction_type,
			created_at = strftime('%Y-%m-%d %H:%M:%f', 'now')`,
		targetID, actorID, string(*reaction),
	)
	if err != nil {
		return fmt.Errorf("failed to set reaction: %w", err)
	}
	return nil
}

func (r *sqliteLedgerRepo) SumVotes(ctx context.Context, targetID string) (int, error) {
	var sum int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(value), 0) FROM votes WHERE target_id = ?`, targetID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum votes: %w", err)
	}
	return sum, nil
}

func (r *sqliteLedgerRepo) CountReactions(ctx context.Context, targetID string) (map[models.ReactionType]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT reaction_type, COUNT(*) FROM reactions
		WHERE target_id = ? GROUP BY reaction_type`, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to count reactions: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ReactionType]int)
	for rows.Next() {
		var t models.ReactionType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("failed to scan reaction count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

func (r *sqliteLedgerRepo) ViewerStates(ctx context.Context, actorID string, targetIDs []string) (map[string]models.ViewerState, error) {
	out := make(map[string]models.ViewerState)
	if len(targetIDs) == 0 {
		return out, nil
	}

	query, args := inClause(`SELECT target_id, value FROM votes WHERE actor_id = ? AND target_id IN (%s)`, targetIDs, actorID)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get viewer votes: %w", err)
	}
	for rows.Next() {
		var id string
		var v models.VoteValue
		if err := rows.Scan(&id, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan viewer vote: %w", err)
		}
		s := out[id]
		s.Vote = v
		out[id] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	query, args = inClause(`SELECT target_id, reaction_type FROM reactions WHERE actor_id = ? AND target_id IN (%s)`, targetIDs, actorID)
	rows, err = r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get viewer reactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var t models.ReactionType
		if err := rows.Scan(&id, &t); err != nil {
			return nil, fmt.Errorf("failed to scan viewer reaction: %w", err)
		}
		s := out[id]
		s.Reaction = &t
		out[id] = s
	}
	return out, rows.Err()
}
