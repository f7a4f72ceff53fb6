package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
)

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	querier
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repo struct {
	db     DB
	schema string
	logger *zap.Logger
}

func New(db DB, schema string, logger *zap.Logger) *Repo {
	return &Repo{db: db, schema: schema, logger: logger}
}

func (r *Repo) qt(tbl string) string { return fmt.Sprintf(`"%s"."%s"`, r.schema, tbl) }

// EnsureSchema creates the repository schema so migrations running with
// search_path pointed at it land in the right place.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, r.schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", r.schema, err)
	}
	return nil
}

// Connect opens a pool with SQL tracing routed to zap and checks it with a ping.
func Connect(ctx context.Context, dsn string, logger *zap.Logger, level tracelog.LogLevel) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   newZapTracer(logger),
		LogLevel: level,
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// inTx runs fn in a transaction; the transaction is rolled back unless fn
// returns nil and the commit succeeds.
func (r *Repo) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
