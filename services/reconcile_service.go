package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/repository"
)

// Drift, bir target'ın cache'lenmiş aggregate'i ile ledger'dan yeniden
// hesaplanan değer arasındaki fark.
type Drift struct {
	TargetID        string                      `json:"target_id"`
	CachedVotes     int                         `json:"cached_votes"`
	LedgerVotes     int                         `json:"ledger_votes"`
	CachedReactions map[models.ReactionType]int `json:"cached_reactions"`
	LedgerReactions map[models.ReactionType]int `json:"ledger_reactions"`
}

// Changed, cache ile ledger'ın farklı olup olmadığını söyler.
func (d *Drift) Changed() bool {
	if d.CachedVotes != d.LedgerVotes {
		return true
	}
	return !sameCounts(d.CachedReactions, d.LedgerReactions)
}

// ReconcileService, cache'lenmiş aggregate'leri ledger'dan yeniden hesaplar.
//
// Normal akışta interaction service aggregate'i her zaman ledger ile birlikte
// değiştirir; bu servis elle yapılmış DB müdahaleleri veya eski sürümlerden
// kalma tutarsızlıkları onarmak içindir.
type ReconcileService interface {
	// ReconcileTarget, tek bir target'ı onarır. Fark yoksa Drift yine döner, Changed() false olur.
	ReconcileTarget(ctx context.Context, targetID string) (*Drift, error)
	// ReconcileAll, tüm target'ları tarar ve sadece farkı olanları döner.
	ReconcileAll(ctx context.Context) ([]Drift, error)
	// Run, ctx iptal edilene kadar interval aralıkla ReconcileAll çalıştırır.
	Run(ctx context.Context, interval time.Duration)
}

type reconcileService struct {
	store     *Store
	publisher Publisher
}

// NewReconcileService, constructor. publisher nil olabilir (CLI kullanımı).
func NewReconcileService(store *Store, publisher Publisher) ReconcileService {
	return &reconcileService{store: store, publisher: publisher}
}

func (s *reconcileService) ReconcileTarget(ctx context.Context, targetID string) (*Drift, error) {
	var drift *Drift
	var target *models.Target

	err := s.store.Tx(ctx, "reconcile", func(r *repository.Set) error {
		t, err := r.Targets.GetByID(ctx, targetID)
		if err != nil {
			return err
		}

		votes, err := r.Ledger.SumVotes(ctx, targetID)
		if err != nil {
			return err
		}
		reactions, err := r.Ledger.CountReactions(ctx, targetID)
		if err != nil {
			return err
		}

		drift = &Drift{
			TargetID:        targetID,
			CachedVotes:     t.VoteCount,
			LedgerVotes:     votes,
			CachedReactions: t.ReactionCounts,
			LedgerReactions: reactions,
		}
		if !drift.Changed() {
			target = nil
			return nil
		}

		if err := r.Targets.SetAggregates(ctx, targetID, votes, reactions); err != nil {
			return err
		}
		target, err = r.Targets.GetByID(ctx, targetID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile target %s: %w", targetID, err)
	}

	if target != nil {
		log.Printf("[reconcile] repaired target=%s votes %d→%d", targetID, drift.CachedVotes, drift.LedgerVotes)
		if s.publisher != nil {
			s.publisher.Publish(query(CollectionTarget, target.ID), modified(target.ID, target))
			if target.Kind == models.TargetComment && target.PostID != nil {
				s.publisher.Publish(query(CollectionComments, *target.PostID), modified(target.ID, target))
			}
		}
	}
	return drift, nil
}

func (s *reconcileService) ReconcileAll(ctx context.Context) ([]Drift, error) {
	ids, err := s.store.Repos().Targets.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	var drifts []Drift
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return drifts, err
		}
		d, err := s.ReconcileTarget(ctx, id)
		if err != nil {
			log.Printf("[reconcile] %v", err)
			continue
		}
		if d.Changed() {
			drifts = append(drifts, *d)
		}
	}
	return drifts, nil
}

func (s *reconcileService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drifts, err := s.ReconcileAll(ctx)
			if err != nil && ctx.Err() == nil {
				log.Printf("[reconcile] periodic run failed: %v", err)
				continue
			}
			if len(drifts) > 0 {
				log.Printf("[reconcile] periodic run repaired %d targets", len(drifts))
			}
		}
	}
}

// sameCounts, sıfır değerleri yok sayarak iki sayaç haritasını karşılaştırır.
func sameCounts(a, b map[models.ReactionType]int) bool {
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	for k, v := range b {
		if a[k] != v {
			return false
		}
	}
	return true
}
