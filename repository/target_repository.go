package repository

import (
	"context"

	"github.com/akinalp/pano/models"
)

// TargetRepository, post/comment içeriği ve cache'lenmiş aggregate'ler.
//
// Aggregate yazımları her zaman atomik artırım (+= delta) ile yapılır;
// "oku → topla → yaz" yapılmaz. Böylece farklı actor'lerin eşzamanlı
// transaction'ları birbirinin sayacını ezmez. Her aggregate veya kilit
// yazımı aynı transaction'da targets.version'ı da artırır.
type TargetRepository interface {
	Create(ctx context.Context, target *models.Target) error
	GetByID(ctx context.Context, id string) (*models.Target, error)
	ListPosts(ctx context.Context, communityID string, limit int) ([]models.Target, error)
	ListComments(ctx context.Context, postID string) ([]models.Target, error)
	Delete(ctx context.Context, id string) error
	SetLocked(ctx context.Context, id string, locked bool) error

	// AdjustVoteCount, vote_count'a delta ekler ve yeni değeri döner.
	// delta 0 olsa bile UPDATE çalışır (target hâlâ var mı kontrolü dahil).
	AdjustVoteCount(ctx context.Context, id string, delta int) (int, error)
	// AdjustReactionCount, tek bir reaksiyon tipinin sayacına delta ekler.
	// Sapmış bir cache'te sayaç 0'ın altına inmez, 0'a kırpılır.
	AdjustReactionCount(ctx context.Context, id string, reaction models.ReactionType, delta int) error
	GetReactionCounts(ctx context.Context, id string) (map[models.ReactionType]int, error)

	// SetAggregates, reconcile için: cache'i ledger'dan hesaplanan değerlerle ezer.
	SetAggregates(ctx context.Context, id string, voteCount int, counts map[models.ReactionType]int) error
	ListIDs(ctx context.Context) ([]string, error)
}
