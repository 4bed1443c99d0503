package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/akinalp/pano/database"
	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
)

type sqliteTargetRepo struct {
	db database.TxQuerier
}

// NewSQLiteTargetRepo, constructor.
func NewSQLiteTargetRepo(db database.TxQuerier) TargetRepository {
	return &sqliteTargetRepo{db: db}
}

const targetColumns = `id, kind, community_id, post_id, parent_id, author_id, title, body, vote_count, locked, version, created_at`

func scanTarget(row interface{ Scan(...any) error }) (*models.Target, error) {
	t := &models.Target{}
	err := row.Scan(&t.ID, &t.Kind, &t.CommunityID, &t.PostID, &t.ParentID, &t.AuthorID,
		&t.Title, &t.Body, &t.VoteCount, &t.Locked, &t.Version, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *sqliteTargetRepo) Create(ctx context.Context, t *models.Target) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO targets (id, kind, community_id, post_id, parent_id, author_id, title, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Kind, t.CommunityID, t.PostID, t.ParentID, t.AuthorID, t.Title, t.Body,
	)
	if err != nil {
		return fmt.Errorf("failed to create target: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT vote_count, locked, version, created_at FROM targets WHERE id = ?`, t.ID,
	).Scan(&t.VoteCount, &t.Locked, &t.Version, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to read created target: %w", err)
	}

	t.ReactionCounts = map[models.ReactionType]int{}
	return nil
}

func (r *sqliteTargetRepo) GetByID(ctx context.Context, id string) (*models.Target, error) {
	t, err := scanTarget(r.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target: %w", err)
	}

	t.ReactionCounts, err = r.GetReactionCounts(ctx, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *sqliteTargetRepo) ListPosts(ctx context.Context, communityID string, limit int) ([]models.Target, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return r.list(ctx, `
		SELECT `+targetColumns+` FROM targets
		WHERE kind = 'post' AND community_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, communityID, limit)
}

// ListComments, post'un tüm comment'lerini server sırasıyla (created_at, rowid) döner.
// Ağaç yapısı çağıran tarafta kurulur.
func (r *sqliteTargetRepo) ListComments(ctx context.Context, postID string) ([]models.Target, error) {
	return r.list(ctx, `
		SELECT `+targetColumns+` FROM targets
		WHERE kind = 'comment' AND post_id = ?
		ORDER BY created_at, rowid`, postID)
}

func (r *sqliteTargetRepo) list(ctx context.Context, query string, args ...any) ([]models.Target, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []models.Target
	var ids []string
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		t.ReactionCounts = map[models.ReactionType]int{}
		targets = append(targets, *t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate targets: %w", err)
	}

	counts, err := r.reactionCountsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range targets {
		if c, ok := counts[targets[i].ID]; ok {
			targets[i].ReactionCounts = c
		}
	}

	return targets, nil
}

// Delete, target satırını ve reaksiyon sayaçlarını siler.
// Ledger satırları (votes, reactions) öksüz kalır; okuma tarafı bunları yok sayar.
func (r *sqliteTargetRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkg.ErrNotFound
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM target_reaction_counts WHERE target_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete reaction counts: %w", err)
	}
	return nil
}

func (r *sqliteTargetRepo) SetLocked(ctx context.Context, id string, locked bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE targets SET locked = ?, version = version + 1 WHERE id = ?`, locked, id)
	if err != nil {
		return fmt.Errorf("failed to set locked: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

func (r *sqliteTargetRepo) AdjustVoteCount(ctx context.Context, id string, delta int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		UPDATE targets SET vote_count = vote_count + ?, version = version + 1 WHERE id = ?
		RETURNING vote_count`, delta, id,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, pkg.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to adjust vote count: %w", err)
	}
	return count, nil
}

// AdjustReactionCount, pozitif delta'da sayaç satırı yoksa oluşturur, varsa üzerine ekler.
// Negatif delta'da sadece UPDATE çalışır: INSERT yolunda CHECK (count >= 0),
// UNIQUE çakışmasından önce değerlendirildiği için upsert kullanılamaz.
//
// Cache ledger'dan sapmışsa azaltma sayacı sıfırın altına itebilir; bu durumda
// sayaç 0'a kırpılır ve sapma loglanır. Onarım reconcile'ın işidir, actor'ün
// kendi reaksiyonunu kaldırması engellenmez.
func (r *sqliteTargetRepo) AdjustReactionCount(ctx context.Context, id string, reaction models.ReactionType, delta int) error {
	if delta > 0 {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO target_reaction_counts (target_id, reaction_type, count)
			VALUES (?, ?, ?)
			ON CONFLICT (target_id, reaction_type) DO UPDATE SET count = count + excluded.count`,
			id, reaction, delta,
		); err != nil {
			return fmt.Errorf("failed to adjust reaction count: %w", err)
		}
		return r.bumpVersion(ctx, id)
	}

	if delta < 0 {
		var current int
		err := r.db.QueryRowContext(ctx, `
			SELECT count FROM target_reaction_counts WHERE target_id = ? AND reaction_type = ?`,
			id, reaction,
		).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read reaction count: %w", err)
		}
		if current+delta < 0 {
			log.Printf("[interaction] reaction count drift target=%s type=%s cached=%d delta=%d, clamping to 0",
				id, reaction, current, delta)
		}
	}

	if _, err := r.db.ExecContext(ctx, `
		UPDATE target_reaction_counts SET count = MAX(count + ?, 0)
		WHERE target_id = ? AND reaction_type = ?`,
		delta, id, reaction,
	); err != nil {
		return fmt.Errorf("failed to adjust reaction count: %w", err)
	}
	return r.bumpVersion(ctx, id)
}

// bumpVersion, reaksiyon sayaçları ayrı tabloda durduğu için target versiyonunu
// aynı transaction içinde ayrıca artırır.
func (r *sqliteTargetRepo) bumpVersion(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE targets SET version = version + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to bump target version: %w", err)
	}
	return nil
}

func (r *sqliteTargetRepo) GetReactionCounts(ctx context.Context, id string) (map[models.ReactionType]int, error) {
	all, err := r.reactionCountsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if c, ok := all[id]; ok {
		return c, nil
	}
	return map[models.ReactionType]int{}, nil
}

func (r *sqliteTargetRepo) reactionCountsFor(ctx context.Context, ids []string) (map[string]map[models.ReactionType]int, error) {
	out := make(map[string]map[models.ReactionType]int, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args := inClause(`
		SELECT target_id, reaction_type, count FROM target_reaction_counts
		WHERE count > 0 AND target_id IN (%s)`, ids)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get reaction counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var targetID string
		var reaction models.ReactionType
		var count int
		if err := rows.Scan(&targetID, &reaction, &count); err != nil {
			return nil, fmt.Errorf("failed to scan reaction count: %w", err)
		}
		if out[targetID] == nil {
			out[targetID] = make(map[models.ReactionType]int)
		}
		out[targetID][reaction] = count
	}
	return out, rows.Err()
}

func (r *sqliteTargetRepo) SetAggregates(ctx context.Context, id string, voteCount int, counts map[models.ReactionType]int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE targets SET vote_count = ?, version = version + 1 WHERE id = ?`, voteCount, id)
	if err != nil {
		return fmt.Errorf("failed to set vote count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkg.ErrNotFound
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM target_reaction_counts WHERE target_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear reaction counts: %w", err)
	}
	for reaction, count := range counts {
		if count == 0 {
			continue
		}
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO target_reaction_counts (target_id, reaction_type, count) VALUES (?, ?, ?)`,
			id, reaction, count,
		); err != nil {
			return fmt.Errorf("failed to set reaction count: %w", err)
		}
	}
	return nil
}

func (r *sqliteTargetRepo) ListIDs(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, r.db, `SELECT id FROM targets ORDER BY rowid`)
}
