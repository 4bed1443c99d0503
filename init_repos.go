// Package main: Store (repository katmanı) başlatma.
//
// Tüm repository'ler repository.Set içinde toplanır. Set iki şekilde kullanılır:
//   - store.Repos(): DB'ye bağlı, tekil okumalar için
//   - store.Tx(...): tek bir transaction'a bağlı, atomik batch'ler için
package main

import (
	"github.com/akinalp/pano/config"
	"github.com/akinalp/pano/database"
	"github.com/akinalp/pano/services"
)

// initStore, DB bağlantısı ve retry politikasıyla Store'u oluşturur.
func initStore(db *database.DB, cfg config.DatabaseConfig) *services.Store {
	return services.NewStore(db.Conn, database.RetryPolicy{
		Attempts: cfg.RetryAttempts,
		Backoff:  cfg.RetryBackoff,
	})
}
