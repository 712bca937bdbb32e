package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/log/zapadapter"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// DBTX is implemented by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// SetupPool inits pool, queries are logged through logger.
func SetupPool(ctx context.Context, cfg Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, errors.Wrap(err, "invalid postgres config")
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if logger != nil {
		level, err := pgx.LogLevelFromString(cfg.LogLevel)
		if err != nil {
			return nil, errors.Wrap(err, "invalid POSTGRES_LOG_LEVEL")
		}
		poolConfig.ConnConfig.Logger = zapadapter.NewLogger(logger.Named("pgx"))
		poolConfig.ConnConfig.LogLevel = level
	}
	return pgxpool.ConnectConfig(ctx, poolConfig)
}

// MustPool inits pool.
// Panics in case of error.
func MustPool(pool *pgxpool.Pool, err error) *pgxpool.Pool {
	if err != nil {
		panic(err)
	}
	return pool
}
