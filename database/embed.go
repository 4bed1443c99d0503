package database

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations, binary'ye gömülü migration dosyalarını migrations/ kökünden döner.
// New'e doğrudan verilebilir.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		// embed pattern derleme zamanında doğrulanır; buraya düşülemez
		panic(err)
	}
	return sub
}
