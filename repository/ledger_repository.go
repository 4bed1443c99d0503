package repository

import (
	"context"

	"github.com/akinalp/pano/models"
)

// LedgerRepository, (target, actor) başına etkileşim kayıtları.
//
// Ledger aggregate'in doğruluk kaynağıdır. Her (target, actor) için en fazla bir
// oy ve en fazla bir reaksiyon satırı bulunur (PRIMARY KEY). Oy değeri 0
// saklanmaz: SetVote(0) satırı siler.
type LedgerRepository interface {
	GetVote(ctx context.Context, targetID, actorID string) (models.VoteValue, error)
	SetVote(ctx context.Context, targetID, actorID string, value models.VoteValue) error
	GetReaction(ctx context.Context, targetID, actorID string) (*models.ReactionType, error)
	SetReaction(ctx context.Context, targetID, actorID string, reaction *models.ReactionType) error

	// SumVotes ve CountReactions reconcile içindir: aggregate'i sıfırdan hesaplar.
	SumVotes(ctx context.Context, targetID string) (int, error)
	CountReactions(ctx context.Context, targetID string) (map[models.ReactionType]int, error)

	// ViewerStates, bir kullanıcının verilen target'lar üzerindeki durumunu toplu döner.
	// Kaydı olmayan target'lar map'te yer almaz (sıfır değer = etkileşim yok).
	ViewerStates(ctx context.Context, actorID string, targetIDs []string) (map[string]models.ViewerState, error)
}
