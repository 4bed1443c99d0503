package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/repository"
)

// InteractionService, oy ve reaksiyonların transactional updater'ı.
//
// Her çağrı tek bir transaction'dır:
//  1. actor var mı, target kilitli mi kontrolü
//  2. (target, actor) ledger kaydını oku
//  3. delta = istenen - mevcut
//  4. aggregate'e += delta (delta 0 olsa bile UPDATE çalışır)
//  5. ledger kaydını istenen duruma getir (0/nil → sil)
//
// Aynı istenen durumla tekrar çağrı delta 0 üretir ama transaction yine çalışır;
// istemcideki bayat bir cache gereken düzeltmeyi sessizce atlayamaz.
type InteractionService interface {
	ApplyVote(ctx context.Context, targetID, actorID string, desired models.VoteValue) (*models.VoteResult, error)
	// ToggleVote, istenen durumu transaction içinde ledger'dan hesaplar:
	// aynı yöne tekrar basmak oyu kaldırır.
	ToggleVote(ctx context.Context, targetID, actorID string, direction models.VoteValue) (*models.VoteResult, error)
	ApplyReaction(ctx context.Context, targetID, actorID string, desired *models.ReactionType) (*models.ReactionResult, error)
	ToggleReaction(ctx context.Context, targetID, actorID string, pressed models.ReactionType) (*models.ReactionResult, error)
}

type interactionService struct {
	store     *Store
	publisher Publisher
	notifier  Notifier
}

// NewInteractionService, constructor.
func NewInteractionService(store *Store, publisher Publisher, notifier Notifier) InteractionService {
	return &interactionService{store: store, publisher: publisher, notifier: notifier}
}

// ─── Votes ───

func (s *interactionService) ApplyVote(ctx context.Context, targetID, actorID string, desired models.VoteValue) (*models.VoteResult, error) {
	if err := desired.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}
	return s.vote(ctx, targetID, actorID, func(models.VoteValue) models.VoteValue { return desired })
}

func (s *interactionService) ToggleVote(ctx context.Context, targetID, actorID string, direction models.VoteValue) (*models.VoteResult, error) {
	if direction != models.VoteUp && direction != models.VoteDown {
		return nil, fmt.Errorf("%w: toggle direction must be 1 or -1", pkg.ErrBadRequest)
	}
	return s.vote(ctx, targetID, actorID, func(current models.VoteValue) models.VoteValue {
		return current.Toggle(direction)
	})
}

func (s *interactionService) vote(
	ctx context.Context,
	targetID, actorID string,
	decide func(current models.VoteValue) models.VoteValue,
) (*models.VoteResult, error) {
	var (
		result *models.VoteResult
		target *models.Target
	)

	err := s.store.Tx(ctx, "vote", func(r *repository.Set) error {
		if _, err := s.authorize(ctx, r, "vote", "votes", targetID, actorID); err != nil {
			return err
		}

		current, err := r.Ledger.GetVote(ctx, targetID, actorID)
		if err != nil {
			return err
		}
		desired := decide(current)
		delta := int(desired) - int(current)

		if _, err := r.Targets.AdjustVoteCount(ctx, targetID, delta); err != nil {
			return err
		}
		if err := r.Ledger.SetVote(ctx, targetID, actorID, desired); err != nil {
			return err
		}

		// Yayınlanan doküman bu transaction'ın gördüğü hal: sayaç ve versiyon birlikte.
		target, err = r.Targets.GetByID(ctx, targetID)
		if err != nil {
			return err
		}
		result = &models.VoteResult{
			TargetID:  targetID,
			Delta:     delta,
			Previous:  current,
			Value:     desired,
			VoteCount: target.VoteCount,
			Version:   target.Version,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishTarget(target)

	if result.Added() && target.AuthorID != actorID {
		s.notifier.Notify(NotifyRequest{
			RecipientID: target.AuthorID,
			ActorID:     actorID,
			Type:        models.NotificationVote,
			TargetID:    target.ID,
			TargetType:  string(target.Kind),
			PostID:      target.RootPostID(),
		})
	}
	return result, nil
}

// ─── Reactions ───

func (s *interactionService) ApplyReaction(ctx context.Context, targetID, actorID string, desired *models.ReactionType) (*models.ReactionResult, error) {
	if desired != nil && !desired.Valid() {
		return nil, fmt.Errorf("%w: unknown reaction type %q", pkg.ErrBadRequest, *desired)
	}
	return s.react(ctx, targetID, actorID, func(*models.ReactionType) *models.ReactionType { return desired })
}

func (s *interactionService) ToggleReaction(ctx context.Context, targetID, actorID string, pressed models.ReactionType) (*models.ReactionResult, error) {
	if !pressed.Valid() {
		return nil, fmt.Errorf("%w: unknown reaction type %q", pkg.ErrBadRequest, pressed)
	}
	return s.react(ctx, targetID, actorID, func(current *models.ReactionType) *models.ReactionType {
		return models.ToggleReaction(current, pressed)
	})
}

func (s *interactionService) react(
	ctx context.Context,
	targetID, actorID string,
	decide func(current *models.ReactionType) *models.ReactionType,
) (*models.ReactionResult, error) {
	var (
		result *models.ReactionResult
		target *models.Target
	)

	err := s.store.Tx(ctx, "react", func(r *repository.Set) error {
		if _, err := s.authorize(ctx, r, "react", "reactions", targetID, actorID); err != nil {
			return err
		}

		current, err := r.Ledger.GetReaction(ctx, targetID, actorID)
		if err != nil {
			return err
		}
		desired := decide(current)
		delta := reactionDelta(current, desired)

		// Tip başına bağımsız delta: eski tip -1, yeni tip +1, ikisi aynı transaction'da.
		for reaction, d := range delta {
			if err := r.Targets.AdjustReactionCount(ctx, targetID, reaction, d); err != nil {
				return err
			}
		}
		if len(delta) == 0 && desired != nil {
			if err := r.Targets.AdjustReactionCount(ctx, targetID, *desired, 0); err != nil {
				return err
			}
		}
		if err := r.Ledger.SetReaction(ctx, targetID, actorID, desired); err != nil {
			return err
		}

		target, err = r.Targets.GetByID(ctx, targetID)
		if err != nil {
			return err
		}
		result = &models.ReactionResult{
			TargetID:       targetID,
			Delta:          delta,
			Previous:       current,
			Reaction:       desired,
			ReactionCounts: target.ReactionCounts,
			Version:        target.Version,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishTarget(target)

	if result.Added() && target.AuthorID != actorID {
		s.notifier.Notify(NotifyRequest{
			RecipientID: target.AuthorID,
			ActorID:     actorID,
			Type:        models.NotificationReaction,
			TargetID:    target.ID,
			TargetType:  string(target.Kind),
			PostID:      target.RootPostID(),
			Preview:     string(*result.Reaction),
		})
	}
	return result, nil
}

// reactionDelta, mevcut ve istenen reaksiyon arasındaki tip başına değişim.
// Değişiklik yoksa boş map döner.
func reactionDelta(current, desired *models.ReactionType) map[models.ReactionType]int {
	delta := make(map[models.ReactionType]int, 2)
	if current != nil && (desired == nil || *desired != *current) {
		delta[*current]--
	}
	if desired != nil && (current == nil || *current != *desired) {
		delta[*desired]++
	}
	return delta
}

// ─── Shared ───

// authorize, actor'ün var olduğunu ve target'ın yazmaya açık olduğunu doğrular.
// Ret durumunda hangi operasyon ve hangi ledger path'i olduğu error'da taşınır.
func (s *interactionService) authorize(ctx context.Context, r *repository.Set, op, ledger, targetID, actorID string) (*models.Target, error) {
	path := fmt.Sprintf("targets/%s/%s/%s", targetID, ledger, actorID)

	if _, err := r.Users.GetByID(ctx, actorID); err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, pkg.Denied(op, path, "unknown actor")
		}
		return nil, err
	}

	t, err := r.Targets.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, fmt.Errorf("%w: target not found", pkg.ErrNotFound)
		}
		return nil, err
	}
	if t.Locked {
		return nil, pkg.Denied(op, path, "target is locked")
	}
	return t, nil
}

func (s *interactionService) publishTarget(t *models.Target) {
	if t == nil {
		return
	}
	s.publisher.Publish(query(CollectionTarget, t.ID), modified(t.ID, t))
	if t.Kind == models.TargetComment && t.PostID != nil {
		s.publisher.Publish(query(CollectionComments, *t.PostID), modified(t.ID, t))
	}
}
