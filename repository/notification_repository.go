package repository

import (
	"context"

	"github.com/akinalp/pano/models"
)

// NotificationRepository, bildirim kayıtları.
// Kayıtlar oluşturulduktan sonra sadece is_read değişir; toplu "hepsini okundu yap"
// silme yapmaz.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	// ListByRecipient, en yeniden eskiye. beforeID boş değilse o kaydın öncesinden başlar.
	ListByRecipient(ctx context.Context, recipientID string, limit int, beforeID string) ([]models.Notification, error)
	// MarkRead, tek bir bildirimi okundu yapar. Zaten okunmuşsa changed=false.
	MarkRead(ctx context.Context, recipientID, id string) (changed bool, err error)
	// MarkAllRead, okunmamış tüm bildirimleri okundu yapar ve değişen ID'leri döner.
	MarkAllRead(ctx context.Context, recipientID string) ([]string, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}
