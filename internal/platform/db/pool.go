package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PoolConfig sizes the connection pool and bounds the startup wait.
type PoolConfig struct {
	URL          string
	MaxConns     int32
	MinConns     int32
	ConnectTries int
	RetryDelay   time.Duration
}

// NewPool opens a pool and pings it, retrying while the database is still
// starting (the compose setup starts postgres and the server together).
func NewPool(ctx context.Context, pc PoolConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = pc.MaxConns
	cfg.MinConns = pc.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	tries := pc.ConnectTries
	if tries < 1 {
		tries = 1
	}
	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			return pool, nil
		}
		if attempt >= tries {
			break
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("database not ready, retrying")
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(pc.RetryDelay):
		}
	}

	pool.Close()
	return nil, fmt.Errorf("ping database: %w", err)
}
