package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/pkg/cache"
	"github.com/akinalp/pano/pkg/push"
	"github.com/akinalp/pano/realtime"
	"github.com/akinalp/pano/repository"
)

// NotifyRequest, tek bir bildirimin ham girdisi. Actor adı ve post başlığı
// servis tarafından best-effort doldurulur.
type NotifyRequest struct {
	RecipientID string
	ActorID     string
	Type        models.NotificationType
	TargetID    string
	TargetType  string
	PostID      string
	Preview     string
}

// Notifier, primary işlemden sonra bildirim üreten taraf.
//
// Notify fire-and-forget'tir: iş kuyruğa atılır, caller asla beklemez ve
// asla hata almaz. Oy/reaksiyon gibi transaction sonucuna ihtiyaç duyan
// bildirimler bu yolu kullanır.
//
// Comment ve mesaj bildirimleri ise içerikle AYNI batch'te yazılır: Build
// transaction öncesi kaydı hazırlar, caller kendi transaction'ında insert eder,
// commit sonrası Delivered ile realtime + push tetiklenir.
type Notifier interface {
	Notify(req NotifyRequest)
	Build(ctx context.Context, req NotifyRequest) *models.Notification
	Delivered(notifications ...*models.Notification)
}

// NotificationService, bildirim feed'i + fan-out.
type NotificationService interface {
	Notifier
	// Deliver, Notify'ın worker içinde çalışan senkron hali.
	Deliver(ctx context.Context, req NotifyRequest) error
	List(ctx context.Context, recipientID string, limit int, beforeID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	RegisterDevice(ctx context.Context, userID, token string) error
	UnregisterDevice(ctx context.Context, userID, token string) error
	// ForgetPost, post silindiğinde/başlığı değiştiğinde başlık cache'ini temizler.
	ForgetPost(postID string)
}

type notificationService struct {
	store       *Store
	queue       TaskQueue
	publisher   Publisher
	sender      push.Sender
	titles      *cache.TTLCache[string, string]
	names       *cache.TTLCache[string, string]
	placeholder string
}

// NewNotificationService, constructor.
// titles/names cache'leri App tarafından oluşturulur ve kapatılır.
func NewNotificationService(
	store *Store,
	queue TaskQueue,
	publisher Publisher,
	sender push.Sender,
	titles *cache.TTLCache[string, string],
	names *cache.TTLCache[string, string],
	placeholderTitle string,
) NotificationService {
	return &notificationService{
		store:       store,
		queue:       queue,
		publisher:   publisher,
		sender:      sender,
		titles:      titles,
		names:       names,
		placeholder: placeholderTitle,
	}
}

// ─── Fan-out ───

func (s *notificationService) Notify(req NotifyRequest) {
	if req.RecipientID == "" || req.RecipientID == req.ActorID {
		return
	}

	name := "notify:" + string(req.Type)
	if !s.queue.Submit(name, func(ctx context.Context) error {
		return s.Deliver(ctx, req)
	}) {
		log.Printf("[notify] queue closed, dropping %s for recipient=%s", name, req.RecipientID)
	}
}

// Deliver, tek bir kayıt yazar. Tekrarlanan aynı bildirimler birleştirilmez:
// bir oyu kapatıp açmak iki bildirim üretir.
func (s *notificationService) Deliver(ctx context.Context, req NotifyRequest) error {
	if req.RecipientID == "" || req.RecipientID == req.ActorID {
		return nil
	}

	n := s.Build(ctx, req)
	if err := s.store.Repos().Notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to write %s notification: %w", req.Type, err)
	}

	s.Delivered(n)
	return nil
}

// Build, denormalize bağlamı (actor adı, post başlığı) best-effort doldurur.
// Lookup hatası bildirimi iptal etmez; yerine placeholder konur.
func (s *notificationService) Build(ctx context.Context, req NotifyRequest) *models.Notification {
	n := &models.Notification{
		RecipientID: req.RecipientID,
		Type:        req.Type,
		ActorID:     req.ActorID,
		ActorName:   s.actorName(ctx, req.ActorID),
		TargetID:    req.TargetID,
		TargetType:  req.TargetType,
		PostID:      req.PostID,
		Preview:     req.Preview,
	}
	if req.PostID != "" {
		n.PostTitle = s.postTitle(ctx, req.PostID)
	}
	return n
}

// Delivered, commit edilmiş bildirimleri realtime'a yayınlar ve push'u kuyruğa atar.
func (s *notificationService) Delivered(notifications ...*models.Notification) {
	for _, n := range notifications {
		if n == nil {
			continue
		}
		s.publisher.Publish(query(CollectionNotifications, n.RecipientID), added(n.ID, n))

		s.queue.Submit("push:"+string(n.Type), func(ctx context.Context) error {
			return s.push(ctx, n)
		})
	}
}

func (s *notificationService) push(ctx context.Context, n *models.Notification) error {
	tokens, err := s.store.Repos().DeviceTokens.ListByUser(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to list device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	results, err := s.sender.SendToTokens(ctx, tokens, payloadFor(n))
	if err != nil {
		return fmt.Errorf("push delivery failed: %w", err)
	}

	// Başarısız token'ları budamak caller'ın sorumluluğu.
	if failed := push.FailedTokens(results); len(failed) > 0 {
		pruned, err := s.store.Repos().DeviceTokens.DeleteTokens(ctx, failed)
		if err != nil {
			return fmt.Errorf("failed to prune device tokens: %w", err)
		}
		log.Printf("[push] pruned %d failed tokens for user=%s", pruned, n.RecipientID)
	}
	return nil
}

func payloadFor(n *models.Notification) push.Payload {
	var body string
	switch n.Type {
	case models.NotificationVote:
		body = fmt.Sprintf("%s upvoted your %s on %q", n.ActorName, n.TargetType, n.PostTitle)
	case models.NotificationReaction:
		body = fmt.Sprintf("%s reacted %s to your %s on %q", n.ActorName, n.Preview, n.TargetType, n.PostTitle)
	case models.NotificationComment:
		body = fmt.Sprintf("%s commented on %q: %s", n.ActorName, n.PostTitle, n.Preview)
	case models.NotificationMessage:
		body = fmt.Sprintf("%s: %s", n.ActorName, n.Preview)
	default:
		body = n.ActorName
	}

	return push.Payload{
		Title: "New " + string(n.Type),
		Body:  body,
		Data: map[string]string{
			"notification_id": n.ID,
			"type":            string(n.Type),
			"target_id":       n.TargetID,
		},
	}
}

// ─── Best-effort lookups ───

const lookupTimeout = 2 * time.Second

func (s *notificationService) postTitle(ctx context.Context, postID string) string {
	title, err := s.titles.GetOrLoad(postID, func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
		defer cancel()

		t, err := s.store.Repos().Targets.GetByID(ctx, postID)
		if err != nil {
			return "", err
		}
		return t.Title, nil
	})
	if err != nil || title == "" {
		if err != nil && !errors.Is(err, pkg.ErrNotFound) {
			log.Printf("[notify] post title lookup failed post=%s: %v", postID, err)
		}
		return s.placeholder
	}
	return title
}

func (s *notificationService) actorName(ctx context.Context, userID string) string {
	name, err := s.names.GetOrLoad(userID, func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
		defer cancel()

		u, err := s.store.Repos().Users.GetByID(ctx, userID)
		if err != nil {
			return "", err
		}
		return u.Name(), nil
	})
	if err != nil {
		log.Printf("[notify] actor lookup failed user=%s: %v", userID, err)
		return "Someone"
	}
	return name
}

func (s *notificationService) ForgetPost(postID string) {
	s.titles.Delete(postID)
}

// ─── Feed ───

func (s *notificationService) List(ctx context.Context, recipientID string, limit int, beforeID string) ([]models.Notification, error) {
	return s.store.Repos().Notifications.ListByRecipient(ctx, recipientID, limit, beforeID)
}

func (s *notificationService) MarkRead(ctx context.Context, recipientID, id string) error {
	changed, err := s.store.Repos().Notifications.MarkRead(ctx, recipientID, id)
	if err != nil {
		return err
	}
	if changed {
		n, err := s.store.Repos().Notifications.GetByID(ctx, id)
		if err == nil {
			s.publisher.Publish(query(CollectionNotifications, recipientID), modified(id, n))
		}
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	var ids []string
	err := s.store.Tx(ctx, "notifications:read-all", func(r *repository.Set) error {
		var err error
		ids, err = r.Notifications.MarkAllRead(ctx, recipientID)
		return err
	})
	if err != nil {
		return 0, err
	}

	if len(ids) > 0 {
		changes := make([]realtime.Change, 0, len(ids))
		for _, id := range ids {
			changes = append(changes, modified(id, map[string]any{"id": id, "is_read": true}))
		}
		s.publisher.Publish(query(CollectionNotifications, recipientID), changes...)
	}
	return len(ids), nil
}

func (s *notificationService) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return s.store.Repos().Notifications.CountUnread(ctx, recipientID)
}

// ─── Devices ───

func (s *notificationService) RegisterDevice(ctx context.Context, userID, token string) error {
	scheme, value := push.SplitToken(token)
	if scheme == "" || value == "" {
		return fmt.Errorf("%w: device token must look like scheme:value", pkg.ErrBadRequest)
	}
	return s.store.Repos().DeviceTokens.Upsert(ctx, token, userID)
}

func (s *notificationService) UnregisterDevice(ctx context.Context, userID, token string) error {
	return s.store.Repos().DeviceTokens.Delete(ctx, userID, token)
}
