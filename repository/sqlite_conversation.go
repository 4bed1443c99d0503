package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akinalp/pano/database"
	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
)

type sqliteConversationRepo struct {
	db database.TxQuerier
}

// NewSQLiteConversationRepo, constructor, interface döner.
func NewSQLiteConversationRepo(db database.TxQuerier) ConversationRepository {
	return &sqliteConversationRepo{db: db}
}

// ─── Conversation ───

func (r *sqliteConversationRepo) Create(ctx context.Context, conv *models.Conversation) (bool, error) {
	if len(conv.Participants) != 2 {
		return false, fmt.Errorf("%w: conversation needs exactly two participants", pkg.ErrBadRequest)
	}
	lo, hi := models.SortPair(conv.Participants[0].UserID, conv.Participants[1].UserID)
	if lo == hi {
		return false, fmt.Errorf("%w: cannot start a conversation with yourself", pkg.ErrBadRequest)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, user1_id, user2_id) VALUES (?, ?, ?)`,
		conv.ID, lo, hi)
	if err != nil {
		return false, fmt.Errorf("failed to create conversation: %w", err)
	}
	n, _ := res.RowsAffected()

	for _, p := range conv.Participants {
		if _, err := r.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversation_participants (conversation_id, user_id, display_name)
			VALUES (?, ?, ?)`, conv.ID, p.UserID, p.DisplayName); err != nil {
			return false, fmt.Errorf("failed to add participant: %w", err)
		}
	}
	return n > 0, nil
}

// GetByID, konuşmayı ve katılımcılarını TEK sorguda okur. Tek statement tek
// snapshot görür; önizleme ile unread sayacı asla farklı commit'lerden gelmez.
func (r *sqliteConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.last_message, c.last_message_at, c.version, c.created_at,
		       p.user_id, p.display_name, p.unread_count, p.is_typing
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE c.id = ?
		ORDER BY p.user_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	defer rows.Close()

	var conv *models.Conversation
	for rows.Next() {
		var c models.Conversation
		var p models.Participant
		if err := rows.Scan(&c.ID, &c.LastMessage, &c.LastMessageAt, &c.Version, &c.CreatedAt,
			&p.UserID, &p.DisplayName, &p.UnreadCount, &p.IsTyping); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if conv == nil {
			conv = &c
		}
		conv.Participants = append(conv.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: conversation not found", pkg.ErrNotFound)
	}
	return conv, nil
}

func (r *sqliteConversationRepo) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.last_message, c.last_message_at, c.version, c.created_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	list := []models.Conversation{}
	var ids []string
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.LastMessage, &c.LastMessageAt, &c.Version, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		list = append(list, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return list, nil
	}

	byConv, err := r.participantsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Participants = byConv[list[i].ID]
	}
	return list, nil
}

// participantsFor, birden fazla konuşmanın katılımcılarını tek sorguda yükler (N+1 yerine).
func (r *sqliteConversationRepo) participantsFor(ctx context.Context, convIDs []string) (map[string][]models.Participant, error) {
	query, args := inClause(`
		SELECT conversation_id, user_id, display_name, unread_count, is_typing
		FROM conversation_participants
		WHERE conversation_id IN (%s)
		ORDER BY conversation_id, user_id`, convIDs)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Participant, len(convIDs))
	for rows.Next() {
		var convID string
		var p models.Participant
		if err := rows.Scan(&convID, &p.UserID, &p.DisplayName, &p.UnreadCount, &p.IsTyping); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out[convID] = append(out[convID], p)
	}
	return out, rows.Err()
}

// ─── Denormalized State ───

func (r *sqliteConversationRepo) ApplySend(ctx context.Context, convID, senderID, messageID, preview string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message = ?, last_message_at = (SELECT created_at FROM messages WHERE id = ?),
		    version = version + 1
		WHERE id = ?`,
		preview, messageID, convID)
	if err != nil {
		return fmt.Errorf("failed to update conversation preview: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: conversation not found", pkg.ErrNotFound)
	}

	// Tek UPDATE: alıcının sayacı artar, gönderenin typing bayrağı düşer.
	_, err = r.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET unread_count = unread_count + CASE WHEN user_id = ? THEN 0 ELSE 1 END,
		    is_typing    = CASE WHEN user_id = ? THEN 0 ELSE is_typing END
		WHERE conversation_id = ?`, senderID, senderID, convID)
	if err != nil {
		return fmt.Errorf("failed to update participants: %w", err)
	}
	return nil
}

func (r *sqliteConversationRepo) SetPreview(ctx context.Context, convID, preview string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET last_message = ?, version = version + 1 WHERE id = ?`, preview, convID)
	if err != nil {
		return fmt.Errorf("failed to set conversation preview: %w", err)
	}
	return nil
}

func (r *sqliteConversationRepo) ResetUnread(ctx context.Context, convID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants SET unread_count = 0
		WHERE conversation_id = ? AND user_id = ? AND unread_count <> 0`, convID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to reset unread count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	return true, r.bumpVersion(ctx, convID)
}

// SetTyping, epoch'u saklanandan büyükse bayrağı yazar; küçük veya eşitse
// yazım bayattır ve atlanır. Epoch değer değişmese de kaydedilir, böylece
// kendisinden önce üretilmiş ama sonra gelen bir yazım geri alınamaz.
func (r *sqliteConversationRepo) SetTyping(ctx context.Context, convID, userID string, typing bool, epoch int64) (bool, error) {
	var current bool
	var stored int64
	err := r.db.QueryRowContext(ctx, `
		SELECT is_typing, typing_epoch FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?`, convID, userID,
	).Scan(&current, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: participant not found", pkg.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read typing state: %w", err)
	}
	if epoch <= stored {
		return false, nil
	}

	if _, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants SET is_typing = ?, typing_epoch = ?
		WHERE conversation_id = ? AND user_id = ?`, typing, epoch, convID, userID); err != nil {
		return false, fmt.Errorf("failed to set typing: %w", err)
	}
	if current == typing {
		return false, nil
	}
	return true, r.bumpVersion(ctx, convID)
}

func (r *sqliteConversationRepo) bumpVersion(ctx context.Context, convID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET version = version + 1 WHERE id = ?`, convID); err != nil {
		return fmt.Errorf("failed to bump conversation version: %w", err)
	}
	return nil
}
