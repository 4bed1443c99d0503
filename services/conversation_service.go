package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/pkg/ratelimit"
	"github.com/akinalp/pano/realtime"
	"github.com/akinalp/pano/repository"
)

// ConversationService, 1:1 konuşmalar, mesajlar, okundu bilgisi ve typing.
//
// Konuşma ID'si her giriş noktasında (profil, arama) sıralı katılımcı
// çiftinden türetilir; aynı çift için iki farklı konuşma oluşamaz.
type ConversationService interface {
	GetOrCreate(ctx context.Context, actorID, otherID string) (*models.Conversation, error)
	StartFromSearch(ctx context.Context, actorID, username string) (*models.Conversation, error)
	List(ctx context.Context, userID string) ([]models.Conversation, error)
	Get(ctx context.Context, userID, convID string) (*models.Conversation, error)
	// Messages, mesajları döner ve yan etki olarak okundu işaretler.
	// Okundu işaretleme hatası loglanır, çağırana dönmez.
	Messages(ctx context.Context, userID, convID string, limit int, beforeID string) ([]models.Message, error)
	Send(ctx context.Context, convID, senderID, content string) (*models.Message, error)
	Edit(ctx context.Context, messageID, actorID, content string) (*models.Message, error)
	Delete(ctx context.Context, messageID, actorID string) (*models.Message, error)
	ToggleMessageReaction(ctx context.Context, messageID, actorID, emoji string) (*models.Message, error)
	// MarkRead, karşı tarafın okunmamış mesajlarını okundu yapar ve unread'i 0'lar.
	// Tek batch; idempotent. Yeni okunan mesaj sayısını döner.
	MarkRead(ctx context.Context, convID, viewerID string) (int, error)
	// SetTyping, typing sinyalini presence state machine'ine iletir.
	SetTyping(ctx context.Context, convID, userID string, typing bool) error
}

type conversationService struct {
	store     *Store
	publisher Publisher
	notifier  Notifier
	queue     TaskQueue
	presence  *Presence
	limiter   *ratelimit.KeyedLimiter
	typing    *ratelimit.KeyedLimiter
}

// NewConversationService, constructor. Presence bu servis tarafından kurulur;
// typing yazımlarını iş kuyruğu üzerinden yapar.
func NewConversationService(
	store *Store,
	publisher Publisher,
	notifier Notifier,
	queue TaskQueue,
	timers TimerFactory,
	cfg PresenceSettings,
) (ConversationService, *Presence) {
	s := &conversationService{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		queue:     queue,
		limiter:   cfg.SendLimiter,
		typing:    cfg.TypingLimiter,
	}
	s.presence = NewPresence(cfg.QuietPeriod, timers, s.writeTyping)
	return s, s.presence
}

// PresenceSettings, conversation servisinin zamanlama ve limit ayarları.
// Limiter'lar nil ise limit uygulanmaz.
type PresenceSettings struct {
	QuietPeriod   time.Duration
	SendLimiter   *ratelimit.KeyedLimiter
	TypingLimiter *ratelimit.KeyedLimiter
}

// ─── Conversations ───

func (s *conversationService) GetOrCreate(ctx context.Context, actorID, otherID string) (*models.Conversation, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" || otherID == actorID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", pkg.ErrBadRequest)
	}

	reads := s.store.Repos()
	actor, err := reads.Users.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	other, err := reads.Users.GetByID(ctx, otherID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, fmt.Errorf("%w: user not found", pkg.ErrNotFound)
		}
		return nil, err
	}
	return s.getOrCreate(ctx, actor, other)
}

// StartFromSearch, kullanıcı adından çözer ve aynı deterministik yolu kullanır.
func (s *conversationService) StartFromSearch(ctx context.Context, actorID, username string) (*models.Conversation, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", pkg.ErrBadRequest)
	}

	other, err := s.store.Repos().Users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, fmt.Errorf("%w: user not found", pkg.ErrNotFound)
		}
		return nil, err
	}
	return s.GetOrCreate(ctx, actorID, other.ID)
}

// getOrCreate, INSERT OR IGNORE sayesinde yarışan iki başlatma aynı kaydı paylaşır.
func (s *conversationService) getOrCreate(ctx context.Context, a, b *models.User) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID: models.ConversationID(a.ID, b.ID),
		Participants: []models.Participant{
			{UserID: a.ID, DisplayName: a.Name()},
			{UserID: b.ID, DisplayName: b.Name()},
		},
	}

	var created bool
	var stored *models.Conversation
	err := s.store.Tx(ctx, "conversation:create", func(r *repository.Set) error {
		var err error
		created, err = r.Conversations.Create(ctx, conv)
		if err != nil {
			return err
		}
		stored, err = r.Conversations.GetByID(ctx, conv.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.publishConversation(stored)
	}
	return stored, nil
}

func (s *conversationService) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	return s.store.Repos().Conversations.ListByUser(ctx, userID)
}

func (s *conversationService) Get(ctx context.Context, userID, convID string) (*models.Conversation, error) {
	conv, err := s.store.Repos().Conversations.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, pkg.Denied("read", "conversations/"+convID, "not a participant")
	}
	return conv, nil
}

// ─── Messages ───

func (s *conversationService) Messages(ctx context.Context, userID, convID string, limit int, beforeID string) ([]models.Message, error) {
	if _, err := s.Get(ctx, userID, convID); err != nil {
		return nil, err
	}

	msgs, err := s.store.Repos().Messages.ListByConversation(ctx, convID, limit, beforeID)
	if err != nil {
		return nil, err
	}

	// Görüntüleme okundu sayılır; yan etki hatası sessizdir.
	if _, err := s.MarkRead(ctx, convID, userID); err != nil {
		log.Printf("[conversation] read receipt failed conv=%s user=%s: %v", convID, userID, err)
	}
	return msgs, nil
}

// Send, tek transaction: mesaj + önizleme/zaman + alıcı unread += 1 +
// gönderen typing=false + mesaj bildirimi. Eşzamanlı bir okuyucu önizleme
// ile sayacı asla birbirinden ayrı görmez.
func (s *conversationService) Send(ctx context.Context, convID, senderID, content string) (*models.Message, error) {
	req := models.SendMessageRequest{Content: content}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}
	if s.limiter != nil && !s.limiter.Allow(senderID) {
		return nil, fmt.Errorf("%w: %s", pkg.ErrRateLimited,
			ratelimit.FormatRetryMessage(s.limiter.RetryAfterSeconds(senderID)))
	}

	conv, err := s.Get(ctx, senderID, convID)
	if err != nil {
		if errors.Is(err, pkg.ErrPermissionDenied) {
			return nil, pkg.Denied("send", "conversations/"+convID+"/messages", "not a participant")
		}
		return nil, err
	}
	recipient, _ := conv.Other(senderID)
	preview := models.PreviewOf(req.Content)

	draft := s.notifier.Build(ctx, NotifyRequest{
		RecipientID: recipient.UserID,
		ActorID:     senderID,
		Type:        models.NotificationMessage,
		TargetType:  "conversation",
		Preview:     preview,
	})

	var msg *models.Message
	var updated *models.Conversation
	err = s.store.Tx(ctx, "send", func(r *repository.Set) error {
		m := &models.Message{ConversationID: convID, SenderID: senderID, Content: req.Content}
		if err := r.Messages.Create(ctx, m); err != nil {
			return err
		}
		if err := r.Conversations.ApplySend(ctx, convID, senderID, m.ID, preview); err != nil {
			return err
		}

		draft.ID = ""
		draft.TargetID = convID
		if err := r.Notifications.Create(ctx, draft); err != nil {
			return err
		}

		c, err := r.Conversations.GetByID(ctx, convID)
		if err != nil {
			return err
		}
		msg, updated = m, c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.presence.Sent(convID, senderID)
	s.publisher.Publish(query(CollectionMessages, convID), added(msg.ID, msg))
	s.publishConversation(updated)
	s.notifier.Delivered(draft)
	return msg, nil
}

func (s *conversationService) Edit(ctx context.Context, messageID, actorID, content string) (*models.Message, error) {
	req := models.SendMessageRequest{Content: content}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	return s.mutateMessage(ctx, "edit", messageID, actorID, true, func(r *repository.Set, m *models.Message) error {
		if m.IsDeleted {
			return fmt.Errorf("%w: message was deleted", pkg.ErrBadRequest)
		}
		return r.Messages.UpdateContent(ctx, m.ID, req.Content)
	})
}

// Delete, soft delete: içerik boşaltılır, okuyanlar ve reaksiyonlar kalır.
func (s *conversationService) Delete(ctx context.Context, messageID, actorID string) (*models.Message, error) {
	return s.mutateMessage(ctx, "delete", messageID, actorID, true, func(r *repository.Set, m *models.Message) error {
		return r.Messages.SoftDelete(ctx, m.ID)
	})
}

func (s *conversationService) ToggleMessageReaction(ctx context.Context, messageID, actorID, emoji string) (*models.Message, error) {
	req := models.MessageReactionRequest{Emoji: emoji}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	return s.mutateMessage(ctx, "react", messageID, actorID, false, func(r *repository.Set, m *models.Message) error {
		if m.IsDeleted {
			return fmt.Errorf("%w: message was deleted", pkg.ErrBadRequest)
		}
		_, err := r.Messages.ToggleReaction(ctx, m.ID, req.Emoji, actorID)
		return err
	})
}

// mutateMessage, mesaj üzerinde yetki kontrollü tek transaction.
// senderOnly: sadece gönderen (edit/delete); aksi halde herhangi bir katılımcı.
// Değişen mesaj en son mesajsa konuşma önizlemesi de aynı transaction'da yenilenir.
func (s *conversationService) mutateMessage(
	ctx context.Context,
	op, messageID, actorID string,
	senderOnly bool,
	fn func(r *repository.Set, m *models.Message) error,
) (*models.Message, error) {
	var msg *models.Message
	var conv *models.Conversation
	var previewChanged bool

	err := s.store.Tx(ctx, "message:"+op, func(r *repository.Set) error {
		m, err := r.Messages.GetByID(ctx, messageID)
		if err != nil {
			return err
		}
		path := "conversations/" + m.ConversationID + "/messages/" + m.ID

		c, err := r.Conversations.GetByID(ctx, m.ConversationID)
		if err != nil {
			return err
		}
		if !c.HasParticipant(actorID) {
			return pkg.Denied(op, path, "not a participant")
		}
		if senderOnly && m.SenderID != actorID {
			return pkg.Denied(op, path, "only the sender can "+op+" this message")
		}

		if err := fn(r, m); err != nil {
			return err
		}

		previewChanged = false
		if op == "edit" || op == "delete" {
			latest, err := r.Messages.Latest(ctx, c.ID)
			if err != nil {
				return err
			}
			if latest.ID == m.ID {
				if err := r.Conversations.SetPreview(ctx, c.ID, models.PreviewOf(latest.Content)); err != nil {
					return err
				}
				previewChanged = true
			}
		}

		if msg, err = r.Messages.GetByID(ctx, messageID); err != nil {
			return err
		}
		conv, err = r.Conversations.GetByID(ctx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(query(CollectionMessages, msg.ConversationID), modified(msg.ID, msg))
	if previewChanged {
		s.publishConversation(conv)
	}
	return msg, nil
}

// ─── Read Receipts ───

func (s *conversationService) MarkRead(ctx context.Context, convID, viewerID string) (int, error) {
	if _, err := s.Get(ctx, viewerID, convID); err != nil {
		return 0, err
	}

	var readIDs []string
	var resetUnread bool
	var conv *models.Conversation
	err := s.store.Tx(ctx, "read", func(r *repository.Set) error {
		var err error
		if readIDs, err = r.Messages.MarkReadBy(ctx, convID, viewerID); err != nil {
			return err
		}
		if resetUnread, err = r.Conversations.ResetUnread(ctx, convID, viewerID); err != nil {
			return err
		}
		if len(readIDs) > 0 || resetUnread {
			conv, err = r.Conversations.GetByID(ctx, convID)
		}
		return err
	})
	if err != nil {
		return 0, err
	}

	if len(readIDs) > 0 {
		reads := s.store.Repos()
		changes := make([]realtime.Change, 0, len(readIDs))
		for _, id := range readIDs {
			m, err := reads.Messages.GetByID(ctx, id)
			if err != nil {
				log.Printf("[conversation] failed to reload read message=%s: %v", id, err)
				continue
			}
			changes = append(changes, modified(m.ID, m))
		}
		s.publisher.Publish(query(CollectionMessages, convID), changes...)
	}
	if conv != nil {
		s.publishConversation(conv)
	}
	return len(readIDs), nil
}

// ─── Typing ───

func (s *conversationService) SetTyping(ctx context.Context, convID, userID string, typing bool) error {
	if _, err := s.Get(ctx, userID, convID); err != nil {
		return err
	}

	if !typing {
		s.presence.Stop(convID, userID)
		return nil
	}
	if s.typing != nil && !s.typing.Allow(userID) {
		return nil // fazla sık keystroke sinyali; state zaten Typing
	}
	s.presence.Keystroke(convID, userID)
	return nil
}

// writeTyping, presence geçişlerini kuyruk üzerinden kalıcı hale getirir.
// Kuyruk worker'ları yazımları herhangi bir sırada çalıştırabilir; sırayı
// epoch korur, saklı epoch'tan eski bir yazım hiçbir şey değiştirmez.
// Hata sadece loglanır.
func (s *conversationService) writeTyping(convID, userID string, typing bool, epoch int64) {
	s.queue.Submit("typing:set", func(ctx context.Context) error {
		var conv *models.Conversation
		err := s.store.Tx(ctx, "typing", func(r *repository.Set) error {
			changed, err := r.Conversations.SetTyping(ctx, convID, userID, typing, epoch)
			if err != nil || !changed {
				conv = nil
				return err
			}
			conv, err = r.Conversations.GetByID(ctx, convID)
			return err
		})
		if err != nil {
			return fmt.Errorf("typing write conv=%s user=%s: %w", convID, userID, err)
		}
		if conv != nil {
			s.publishConversation(conv)
		}
		return nil
	})
}

// publishConversation, konuşmayı hem tekil dokümana hem iki katılımcının listesine yayınlar.
func (s *conversationService) publishConversation(conv *models.Conversation) {
	if conv == nil {
		return
	}
	s.publisher.Publish(query(CollectionConversation, conv.ID), modified(conv.ID, conv))
	for _, p := range conv.Participants {
		s.publisher.Publish(query(CollectionConversations, p.UserID), modified(conv.ID, conv))
	}
}
