// Package repository, veritabanı erişim katmanını tanımlar.
//
// Her concern için bir interface dosyası (xxx_repository.go) ve bir SQLite
// implementasyonu (sqlite_xxx.go) vardır. Service katmanı SQL yazmaz.
//
// Constructor'lar database.TxQuerier alır: normal okumalarda *sql.DB,
// transaction içinde *sql.Tx geçilir. Böylece aynı repository hem tek başına
// hem de atomik bir batch'in parçası olarak kullanılabilir:
//
//	err := database.RunTx(ctx, db, "comment", policy, func(tx *sql.Tx) error {
//	    targets := repository.NewSQLiteTargetRepo(tx)
//	    notifications := repository.NewSQLiteNotificationRepo(tx)
//	    ...
//	})
package repository

import (
	"context"

	"github.com/akinalp/pano/models"
)

// UserRepository, kullanıcı veritabanı işlemleri.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}
