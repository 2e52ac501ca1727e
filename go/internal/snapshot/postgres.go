package snapshot

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/partygames/go/internal/dbconfig"
	"github.com/rs/zerolog/log"
)

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS game_snapshots (
	session_id TEXT PRIMARY KEY,
	variant    TEXT NOT NULL,
	state      JSONB NOT NULL,
	saved_at   TIMESTAMPTZ NOT NULL
)`

const upsertSnapshot = `
INSERT INTO game_snapshots (session_id, variant, state, saved_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id) DO UPDATE
SET variant = EXCLUDED.variant,
    state = EXCLUDED.state,
    saved_at = EXCLUDED.saved_at`

// PostgresSink upserts the latest snapshot of each session into
// game_snapshots.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects, verifies the connection and creates the table if
// needed.
func NewPostgresSink(ctx context.Context, cfg dbconfig.Config) (*PostgresSink, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(connectCtx, createSnapshotsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create game_snapshots: %w", err)
	}

	log.Info().Str("database", cfg.Redacted()).Msg("connected snapshot store to postgres")
	return &PostgresSink{pool: pool}, nil
}

func (p *PostgresSink) Name() string { return "postgres" }

func (p *PostgresSink) Save(ctx context.Context, s Snapshot) error {
	if _, err := p.pool.Exec(ctx, upsertSnapshot, s.SessionID, string(s.Variant), []byte(s.Payload), s.TakenAt); err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", s.SessionID, err)
	}
	return nil
}

func (p *PostgresSink) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresSink) Close() {
	p.pool.Close()
}
