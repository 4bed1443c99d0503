package repository

import (
	"context"
	"fmt"

	"github.com/akinalp/pano/database"
)

type sqliteDeviceTokenRepo struct {
	db database.TxQuerier
}

// NewSQLiteDeviceTokenRepo, constructor.
func NewSQLiteDeviceTokenRepo(db database.TxQuerier) DeviceTokenRepository {
	return &sqliteDeviceTokenRepo{db: db}
}

func (r *sqliteDeviceTokenRepo) Upsert(ctx context.Context, token, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_tokens (token, user_id) VALUES (?, ?)
		ON CONFLICT (token) DO UPDATE SET user_id = excluded.user_id`, token, userID)
	if err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}
	return nil
}

func (r *sqliteDeviceTokenRepo) ListByUser(ctx context.Context, userID string) ([]string, error) {
	return queryStrings(ctx, r.db,
		`SELECT token FROM device_tokens WHERE user_id = ? ORDER BY created_at`, userID)
}

func (r *sqliteDeviceTokenRepo) Delete(ctx context.Context, userID, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM device_tokens WHERE token = ? AND user_id = ?`, token, userID)
	if err != nil {
		return fmt.Errorf("failed to delete device token: %w", err)
	}
	return nil
}

func (r *sqliteDeviceTokenRepo) DeleteTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	query, args := inClause(`DELETE FROM device_tokens WHERE token IN (%s)`, tokens)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune device tokens: %w", err)
	}
	return res.RowsAffected()
}
