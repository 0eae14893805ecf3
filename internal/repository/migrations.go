package repository

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

// applyMigrations накатывает миграции из каталога dir встроенной файловой системы.
// Provider не трогает глобальное состояние goose и ничего не пишет в лог.
func applyMigrations(ctx context.Context, dialect goose.Dialect, db *sql.DB, fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
