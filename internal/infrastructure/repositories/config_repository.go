package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/codeweberdotcom/limitguard/internal/core/ports"
	"github.com/codeweberdotcom/limitguard/internal/infrastructure/db"
)

type configRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

// NewConfigRepository persists per-module policies. Durations are stored as
// millisecond integers.
func NewConfigRepository(database *db.Database, logger *logrus.Logger) ports.ConfigRepository {
	return &configRepository{db: database, logger: logger}
}

func (r *configRepository) Get(ctx context.Context, module string) (*ratelimit.Config, error) {
	var cfg ratelimit.Config
	var windowMs, blockMs int64
	err := r.db.DB.QueryRowContext(ctx, `
		SELECT module, max_requests, window_ms, block_ms, mode, updated_at
		FROM rate_limit_configs WHERE module = $1`, module,
	).Scan(&cfg.Module, &cfg.MaxRequests, &windowMs, &blockMs, &cfg.Mode, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db get config: %w", err)
	}
	cfg.Window = time.Duration(windowMs) * time.Millisecond
	cfg.BlockDuration = time.Duration(blockMs) * time.Millisecond
	return &cfg, nil
}

func (r *configRepository) Upsert(ctx context.Context, cfg *ratelimit.Config) error {
	_, err := r.db.DB.ExecContext(ctx, `
		INSERT INTO rate_limit_configs (module, max_requests, window_ms, block_ms, mode, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (module) DO UPDATE SET
			max_requests = EXCLUDED.max_requests,
			window_ms = EXCLUDED.window_ms,
			block_ms = EXCLUDED.block_ms,
			mode = EXCLUDED.mode,
			updated_at = EXCLUDED.updated_at`,
		cfg.Module, cfg.MaxRequests, cfg.Window.Milliseconds(), cfg.BlockDuration.Milliseconds(), cfg.Mode, cfg.UpdatedAt,
	)
	if err != nil {
		if r.logger != nil {
			r.logger.WithField("module", cfg.Module).WithError(err).Error("db: failed to upsert rate limit config")
		}
		return fmt.Errorf("db upsert config: %w", err)
	}
	return nil
}
