package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"foldershare/internal/migrations"
)

// RunMigrations applies the embedded goose migrations with the given
// table prefix rendered into the DDL, so the created tables match the
// names the repositories query. It opens a short-lived database/sql
// connection because goose does not speak the pgx pool API.
func RunMigrations(ctx context.Context, databaseURL, tablePrefix string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.WithPrefix(tablePrefix))
	// Each prefix tracks its own schema version; environments sharing a
	// database must not share migration state either.
	goose.SetTableName(tablePrefix + "goose_db_version")
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
