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

type sqliteMessageRepo struct {
	db database.TxQuerier
}

// NewSQLiteMessageRepo, constructor, interface döner.
func NewSQLiteMessageRepo(db database.TxQuerier) MessageRepository {
	return &sqliteMessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, content, is_edited, is_deleted, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.IsEdited, &m.IsDeleted, &m.CreatedAt)
	return m, err
}

// ─── CRUD ───

func (r *sqliteMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content)
		VALUES (?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT created_at FROM messages WHERE id = ?`, msg.ID,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to read created message: %w", err)
	}

	msg.ReadBy = []string{}
	msg.Reactions = map[string][]string{}
	return nil
}

func (r *sqliteMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	list := []models.Message{*m}
	if err := r.attachDetails(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (r *sqliteMessageRepo) ListByConversation(ctx context.Context, convID string, limit int, beforeID string) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	// İç sorgu en yeni `limit` mesajı seçer, dış sorgu kronolojik sıraya çevirir.
	inner := `SELECT rowid AS rid, ` + messageColumns + ` FROM messages WHERE conversation_id = ?`
	args := []any{convID}
	if beforeID != "" {
		inner += ` AND rowid < (SELECT rowid FROM messages WHERE id = ?)`
		args = append(args, beforeID)
	}
	inner += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM (`+inner+`) ORDER BY created_at ASC, rid ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	list := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		list = append(list, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachDetails(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *sqliteMessageRepo) Latest(ctx context.Context, convID string) (*models.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, convID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest message: %w", err)
	}
	return m, nil
}

func (r *sqliteMessageRepo) UpdateContent(ctx context.Context, id, content string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, is_edited = 1 WHERE id = ? AND is_deleted = 0`, content, id)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: message not found", pkg.ErrNotFound)
	}
	return nil
}

func (r *sqliteMessageRepo) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content = '', is_deleted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: message not found", pkg.ErrNotFound)
	}
	return nil
}

// ─── Reactions & Read Receipts ───

func (r *sqliteMessageRepo) ToggleReaction(ctx context.Context, messageID, emoji, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM message_reactions WHERE message_id = ? AND emoji = ? AND user_id = ?`,
		messageID, emoji, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove message reaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO message_reactions (message_id, emoji, user_id) VALUES (?, ?, ?)`,
		messageID, emoji, userID); err != nil {
		return false, fmt.Errorf("failed to add message reaction: %w", err)
	}
	return true, nil
}

// MarkReadBy, tek bir INSERT ... SELECT ile tüm eksik okuma kayıtlarını yazar.
// Mesaj başına ayrı yazma yapılmaz.
func (r *sqliteMessageRepo) MarkReadBy(ctx context.Context, convID, readerID string) ([]string, error) {
	ids, err := queryStrings(ctx, r.db, `
		INSERT INTO message_reads (message_id, user_id)
		SELECT m.id, ? FROM messages m
		WHERE m.conversation_id = ?
		  AND m.sender_id <> ?
		  AND NOT EXISTS (
		      SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.user_id = ?
		  )
		RETURNING message_id`,
		readerID, convID, readerID, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return ids, nil
}

// attachDetails, mesajların okuyan setini ve reaksiyonlarını toplu olarak doldurur.
func (r *sqliteMessageRepo) attachDetails(ctx context.Context, list []models.Message) error {
	if len(list) == 0 {
		return nil
	}

	index := make(map[string]int, len(list))
	ids := make([]string, len(list))
	for i := range list {
		index[list[i].ID] = i
		ids[i] = list[i].ID
		list[i].ReadBy = []string{}
		list[i].Reactions = map[string][]string{}
	}

	query, args := inClause(
		`SELECT message_id, user_id FROM message_reads WHERE message_id IN (%s) ORDER BY user_id`, ids)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load message reads: %w", err)
	}
	for rows.Next() {
		var msgID, userID string
		if err := rows.Scan(&msgID, &userID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan message read: %w", err)
		}
		m := &list[index[msgID]]
		m.ReadBy = append(m.ReadBy, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	query, args = inClause(
		`SELECT message_id, emoji, user_id FROM message_reactions WHERE message_id IN (%s) ORDER BY emoji, user_id`, ids)
	rows, err = r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load message reactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var msgID, emoji, userID string
		if err := rows.Scan(&msgID, &emoji, &userID); err != nil {
			return fmt.Errorf("failed to scan message reaction: %w", err)
		}
		m := &list[index[msgID]]
		m.Reactions[emoji] = append(m.Reactions[emoji], userID)
	}
	return rows.Err()
}
