package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/akinalp/pano/database"
	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
)

type sqliteNotificationRepo struct {
	db database.TxQuerier
}

// NewSQLiteNotificationRepo, constructor.
func NewSQLiteNotificationRepo(db database.TxQuerier) NotificationRepository {
	return &sqliteNotificationRepo{db: db}
}

const notificationColumns = `id, recipient_id, type, actor_id, actor_name, target_id, target_type,
	post_id, post_title, preview, is_read, created_at`

func scanNotification(row interface{ Scan(...any) error }) (*models.Notification, error) {
	n := &models.Notification{}
	err := row.Scan(&n.ID, &n.RecipientID, &n.Type, &n.ActorID, &n.ActorName, &n.TargetID, &n.TargetType,
		&n.PostID, &n.PostTitle, &n.Preview, &n.IsRead, &n.CreatedAt)
	return n, err
}

// Create, bildirimi yazar. created_at server tarafından atanır.
func (r *sqliteNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, type, actor_id, actor_name, target_id, target_type, post_id, post_title, preview)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.Type, n.ActorID, n.ActorName, n.TargetID, n.TargetType, n.PostID, n.PostTitle, n.Preview,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT is_read, created_at FROM notifications WHERE id = ?`, n.ID,
	).Scan(&n.IsRead, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to read created notification: %w", err)
	}
	return nil
}

func (r *sqliteNotificationRepo) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	n, err := scanNotification(r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

func (r *sqliteNotificationRepo) ListByRecipient(ctx context.Context, recipientID string, limit int, beforeID string) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = ?`
	args := []any{recipientID}
	if beforeID != "" {
		query += ` AND rowid < (SELECT rowid FROM notifications WHERE id = ?)`
		args = append(args, beforeID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	list := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, *n)
	}
	return list, rows.Err()
}

func (r *sqliteNotificationRepo) MarkRead(ctx context.Context, recipientID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1
		WHERE id = ? AND recipient_id = ? AND is_read = 0`, id, recipientID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return true, nil
	}

	// Satır hiç yok mu, yoksa zaten okunmuş mu?
	var exists int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE id = ? AND recipient_id = ?`, id, recipientID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check notification: %w", err)
	}
	if exists == 0 {
		return false, pkg.ErrNotFound
	}
	return false, nil
}

func (r *sqliteNotificationRepo) MarkAllRead(ctx context.Context, recipientID string) ([]string, error) {
	return queryStrings(ctx, r.db, `
		UPDATE notifications SET is_read = 1
		WHERE recipient_id = ? AND is_read = 0
		RETURNING id`, recipientID)
}

func (r *sqliteNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`, recipientID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}
