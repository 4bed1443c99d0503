// Package database: Transaction yönetimi.
//
// WithTx: tek deneme, all-or-nothing. fn nil dönerse COMMIT, error dönerse
// ROLLBACK, panic atarsa ROLLBACK + re-panic.
//
// RunTx: WithTx + çakışma (conflict) durumunda şeffaf retry. SQLite'ta iki yazıcı
// aynı anda kilit istediğinde biri SQLITE_BUSY alır; busy_timeout süresi de
// dolmuşsa RunTx transaction'ı baştan çalıştırır. Denemeler tükenirse
// pkg.TransientError döner.
//
// ÖNEMLİ: RunTx'e verilen fn birden fazla kez çalışabilir. fn içinde transaction
// dışına yan etki (broadcast, kuyruk, cache yazımı) YAPILMAZ; bunlar RunTx
// başarıyla döndükten sonra yapılır.
//
//	err := database.RunTx(ctx, db, "vote", database.DefaultRetry, func(tx *sql.Tx) error {
//	    current, err := ledger.GetVote(ctx, tx, targetID, actorID)
//	    ...
//	    return nil
//	})
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/akinalp/pano/pkg"
)

// TxQuerier, hem *sql.DB hem *sql.Tx tarafından karşılanan interface.
// Repository'ler bunu alır: normal okumada *sql.DB, transaction içinde *sql.Tx geçilir.
type TxQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrConflict, fn'in "bu denemeyi baştan çalıştır" demek için dönebileceği sentinel.
// SQLITE_BUSY/SQLITE_LOCKED ile aynı muameleyi görür.
var ErrConflict = errors.New("transaction conflict")

// RetryPolicy, RunTx'in çakışmada kaç kez ve hangi aralıkla tekrar deneyeceği.
// Bekleme doğrusal artar: Backoff, 2*Backoff, 3*Backoff ...
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetry, servislerin varsayılan retry politikası.
var DefaultRetry = RetryPolicy{Attempts: 5, Backoff: 25 * time.Millisecond}

// WithTx, fn'i tek bir SQL transaction içinde çalıştırır.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}

		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
			return
		}

		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(tx)
	return
}

// RunTx, WithTx'i çakışmalarda policy'ye göre tekrar dener.
// op, TransientError ve log satırlarında görünen operasyon adıdır.
// Çakışma dışındaki hatalar (permission, not found, validation) hemen döner.
func RunTx(ctx context.Context, db *sql.DB, op string, policy RetryPolicy, fn func(tx *sql.Tx) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := WithTx(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !IsConflict(err) {
			return err
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return &pkg.TransientError{Op: op, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(time.Duration(attempt) * policy.Backoff):
		}
	}

	return &pkg.TransientError{Op: op, Attempts: attempts, Err: lastErr}
}

// IsConflict, hatanın tekrar denenebilir bir kilit çakışması olup olmadığını söyler.
// SQLite extended result code'ları alt 8 bitte birincil kodu taşır
// (ör. SQLITE_BUSY_SNAPSHOT & 0xff == SQLITE_BUSY).
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
