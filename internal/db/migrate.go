package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var gooseUpContext = func(ctx context.Context, database *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, database, dir, opts...)
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, database, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
