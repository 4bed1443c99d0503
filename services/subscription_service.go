package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/realtime"
)

// SubscriptionService, realtime bridge'e erişim kontrollü giriş noktası.
//
// Koleksiyon başına kural:
//   - target, comments       → herkese açık (giriş yapmış her kullanıcı)
//   - notifications, conversations → sadece key == viewer
//   - conversation, messages → sadece konuşmanın katılımcısı
type SubscriptionService interface {
	Subscribe(ctx context.Context, viewerID string, q realtime.Query, onChange func(realtime.Update)) (func(), error)
}

type subscriptionService struct {
	store  *Store
	bridge *realtime.Bridge
}

// NewSubscriptionService, bridge'e tüm koleksiyonların snapshot loader'larını kaydeder.
func NewSubscriptionService(store *Store, bridge *realtime.Bridge) SubscriptionService {
	s := &subscriptionService{store: store, bridge: bridge}

	bridge.Register(CollectionTarget, s.loadTarget)
	bridge.Register(CollectionComments, s.loadComments)
	bridge.Register(CollectionNotifications, s.loadNotifications)
	bridge.Register(CollectionConversations, s.loadConversations)
	bridge.Register(CollectionConversation, s.loadConversation)
	bridge.Register(CollectionMessages, s.loadMessages)

	return s
}

func (s *subscriptionService) Subscribe(ctx context.Context, viewerID string, q realtime.Query, onChange func(realtime.Update)) (func(), error) {
	if err := s.authorize(ctx, viewerID, q); err != nil {
		return nil, err
	}
	return s.bridge.Subscribe(ctx, q, onChange)
}

func (s *subscriptionService) authorize(ctx context.Context, viewerID string, q realtime.Query) error {
	if q.Key == "" {
		return fmt.Errorf("%w: subscription key is required", pkg.ErrBadRequest)
	}

	switch q.Collection {
	case CollectionTarget, CollectionComments:
		return nil

	case CollectionNotifications, CollectionConversations:
		if q.Key != viewerID {
			return pkg.Denied("subscribe", q.String(), "not the owner")
		}
		return nil

	case CollectionConversation, CollectionMessages:
		conv, err := s.store.Repos().Conversations.GetByID(ctx, q.Key)
		if err != nil {
			if errors.Is(err, pkg.ErrNotFound) {
				return pkg.Denied("subscribe", q.String(), "not a participant")
			}
			return err
		}
		if !conv.HasParticipant(viewerID) {
			return pkg.Denied("subscribe", q.String(), "not a participant")
		}
		return nil

	default:
		return fmt.Errorf("%w: %w", pkg.ErrBadRequest, realtime.ErrUnknownCollection)
	}
}

// ─── Snapshot Loaders ───

const snapshotLimit = 50

func (s *subscriptionService) loadTarget(ctx context.Context, id string) ([]realtime.Change, error) {
	t, err := s.store.Repos().Targets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []realtime.Change{added(t.ID, t)}, nil
}

func (s *subscriptionService) loadComments(ctx context.Context, postID string) ([]realtime.Change, error) {
	comments, err := s.store.Repos().Targets.ListComments(ctx, postID)
	if err != nil {
		return nil, err
	}
	changes := make([]realtime.Change, 0, len(comments))
	for i := range comments {
		changes = append(changes, added(comments[i].ID, &comments[i]))
	}
	return changes, nil
}

func (s *subscriptionService) loadNotifications(ctx context.Context, recipientID string) ([]realtime.Change, error) {
	list, err := s.store.Repos().Notifications.ListByRecipient(ctx, recipientID, snapshotLimit, "")
	if err != nil {
		return nil, err
	}
	return addedEach(list, func(n *models.Notification) string { return n.ID }), nil
}

func (s *subscriptionService) loadConversations(ctx context.Context, userID string) ([]realtime.Change, error) {
	list, err := s.store.Repos().Conversations.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return addedEach(list, func(c *models.Conversation) string { return c.ID }), nil
}

func (s *subscriptionService) loadConversation(ctx context.Context, id string) ([]realtime.Change, error) {
	conv, err := s.store.Repos().Conversations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []realtime.Change{added(conv.ID, conv)}, nil
}

func (s *subscriptionService) loadMessages(ctx context.Context, convID string) ([]realtime.Change, error) {
	msgs, err := s.store.Repos().Messages.ListByConversation(ctx, convID, snapshotLimit, "")
	if err != nil {
		return nil, err
	}
	return addedEach(msgs, func(m *models.Message) string { return m.ID }), nil
}

func addedEach[T any](items []T, id func(*T) string) []realtime.Change {
	changes := make([]realtime.Change, 0, len(items))
	for i := range items {
		changes = append(changes, added(id(&items[i]), &items[i]))
	}
	return changes
}
