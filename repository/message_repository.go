package repository

import (
	"context"

	"github.com/akinalp/pano/models"
)

// MessageRepository, konuşma mesajları + okuyan seti + emoji reaksiyonları.
//
// Mesajlar fiziksel olarak silinmez; SoftDelete içeriği boşaltır,
// message_reads ve message_reactions satırlarına dokunmaz.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// ListByConversation, server zamanına göre eskiden yeniye sıralı döner.
	// beforeID boş değilse o mesajdan daha eski olanlar arasından son `limit` tanesi.
	ListByConversation(ctx context.Context, convID string, limit int, beforeID string) ([]models.Message, error)
	// Latest, konuşmanın en son mesajı. Mesaj yoksa ErrNotFound.
	Latest(ctx context.Context, convID string) (*models.Message, error)
	UpdateContent(ctx context.Context, id, content string) error
	SoftDelete(ctx context.Context, id string) error
	// ToggleReaction, (mesaj, emoji, kullanıcı) satırı varsa siler, yoksa ekler.
	ToggleReaction(ctx context.Context, messageID, emoji, userID string) (added bool, err error)
	// MarkReadBy, karşı tarafın gönderdiği ve readerID'yi henüz içermeyen tüm mesajlara
	// readerID'yi ekler. Yeni okunan mesaj ID'lerini döner; tekrar çağrı boş döner.
	MarkReadBy(ctx context.Context, convID, readerID string) ([]string, error)
}
