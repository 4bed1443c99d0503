// Package services, business logic katmanını barındırır.
//
// Handler (HTTP/WS) ile Repository (DB) arasında oturur. Tüm iş kuralları
// burada yaşar: yetki kontrolleri, ledger → aggregate delta hesabı,
// bildirim fan-out, typing state machine.
//
// Service ASLA http.Request/Response bilmez; sadece domain modelleri alır/verir.
// Service ASLA doğrudan SQL çalıştırmaz; Repository interface'lerini kullanır.
//
// Transaction gerektiren işlemler Store.Tx ile çalışır: fn, transaction'a bağlı
// bir repository.Set alır ve çakışmada tekrar çalıştırılabilir. Realtime
// yayın, kuyruk ve cache yazımı gibi yan etkiler SADECE Tx döndükten sonra yapılır.
package services

import (
	"context"
	"database/sql"

	"github.com/akinalp/pano/database"
	"github.com/akinalp/pano/realtime"
	"github.com/akinalp/pano/repository"
)

// Store, DB bağlantısı + retry politikası + DB'ye bağlı okuma repository'leri.
type Store struct {
	db    *sql.DB
	retry database.RetryPolicy
	repos *repository.Set
}

// NewStore, constructor.
func NewStore(db *sql.DB, retry database.RetryPolicy) *Store {
	return &Store{db: db, retry: retry, repos: repository.NewSet(db)}
}

// Repos, transaction dışı okumalar için DB'ye bağlı repository seti.
func (s *Store) Repos() *repository.Set { return s.repos }

// Tx, fn'i atomik bir transaction içinde çalıştırır; çakışmada tekrar dener.
func (s *Store) Tx(ctx context.Context, op string, fn func(r *repository.Set) error) error {
	return database.RunTx(ctx, s.db, op, s.retry, func(tx *sql.Tx) error {
		return fn(repository.NewSet(tx))
	})
}

// Publisher, commit sonrası değişiklikleri abonelere iletir.
// *realtime.Bridge bu interface'i karşılar.
type Publisher interface {
	Publish(q realtime.Query, changes ...realtime.Change)
}

// TaskQueue, fire-and-forget işlerin gönderildiği arka plan kuyruğu.
// *workqueue.Queue bu interface'i karşılar.
type TaskQueue interface {
	Submit(name string, run func(ctx context.Context) error) bool
}

// ─── Collections ───

// Realtime koleksiyon adları. Abonelik path'i "<collection>/<key>" biçimindedir.
const (
	CollectionTarget        = "target"        // key: target ID
	CollectionComments      = "comments"      // key: post ID
	CollectionNotifications = "notifications" // key: recipient ID
	CollectionConversations = "conversations" // key: user ID (konuşma listesi)
	CollectionConversation  = "conversation"  // key: conversation ID
	CollectionMessages      = "messages"      // key: conversation ID
)

func query(collection, key string) realtime.Query {
	return realtime.Query{Collection: collection, Key: key}
}

func modified(id string, data any) realtime.Change {
	return realtime.Change{Type: realtime.Modified, ID: id, Data: data}
}

func added(id string, data any) realtime.Change {
	return realtime.Change{Type: realtime.Added, ID: id, Data: data}
}
