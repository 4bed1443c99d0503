package repository

import (
	"context"

	"github.com/akinalp/pano/models"
)

// ConversationRepository, 1:1 konuşma kayıtları ve katılımcı başına denormalize alanlar.
//
// Unread sayacı, önizleme ve typing bayrağı aynı satır grubunda tutulur;
// ApplySend bunları tek transaction içinde birlikte günceller. Bunlardan
// herhangi biri değiştiğinde conversations.version artar.
type ConversationRepository interface {
	// Create, konuşmayı ve iki katılımcıyı INSERT OR IGNORE ile yazar.
	// Aynı ID zaten varsa created=false döner, hata değildir.
	Create(ctx context.Context, conv *models.Conversation) (created bool, err error)
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	// ListByUser, son mesaj zamanına göre (yoksa oluşturulma) yeniden eskiye.
	ListByUser(ctx context.Context, userID string) ([]models.Conversation, error)
	// ApplySend, gönderim sonrası konuşma durumunu günceller:
	// önizleme + zaman, alıcının unread'i +1, gönderenin typing'i false.
	// Zaman damgası mesaj satırının server-atanmış created_at'inden alınır.
	ApplySend(ctx context.Context, convID, senderID, messageID, preview string) error
	// SetPreview, son mesaj düzenlendiğinde/silindiğinde önizlemeyi yeniler.
	SetPreview(ctx context.Context, convID, preview string) error
	// ResetUnread, viewer'ın unread sayacını 0'a çeker. Zaten 0 ise changed=false.
	ResetUnread(ctx context.Context, convID, userID string) (changed bool, err error)
	// SetTyping, typing bayrağını epoch sırasına göre yazar. Saklanan epoch'tan
	// büyük olmayan yazım atlanır. Değer değişmediyse changed=false.
	SetTyping(ctx context.Context, convID, userID string, typing bool, epoch int64) (changed bool, err error)
}
