package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"foldershare/internal/domain/repositories"
)

// RepositoryConfig holds configuration shared by repository implementations.
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names so dev, test, and
// prod environments can share a database.
type TableNames struct {
	Items  string
	Files  string
	Grants string
	Tasks  string
}

// NewTableNames creates table names with the given prefix.
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Items:  fmt.Sprintf("%sfoldershare_items", prefix),
		Files:  fmt.Sprintf("%sfoldershare_files", prefix),
		Grants: fmt.Sprintf("%sfoldershare_grants", prefix),
		Tasks:  fmt.Sprintf("%sfoldershare_tasks", prefix),
	}
}

// CreateConnectionPool creates a pgx connection pool and verifies it with
// a ping.
//
// Dynamic table prefixes interpolated with fmt.Sprintf are safe with
// prepared statements: the SQL string is built before it reaches the
// database, so each prefix gets its own statement.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction from the context if one is active,
// otherwise the pool. Repositories call this on every query so they run
// transparently inside ExecTx blocks.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
