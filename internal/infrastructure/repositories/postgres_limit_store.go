package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/codeweberdotcom/limitguard/internal/core/ports"
	"github.com/codeweberdotcom/limitguard/internal/infrastructure/db"
)

// PostgresLimitStore is the secondary, durable store. It doubles as the
// system of record for manual blocks, which must survive primary restarts.
type PostgresLimitStore struct {
	db     *db.Database
	logger *logrus.Logger
}

func NewPostgresLimitStore(database *db.Database, logger *logrus.Logger) *PostgresLimitStore {
	return &PostgresLimitStore{db: database, logger: logger}
}

// Increment upserts the counter row; the CASE expressions reset an expired
// window and bump a live one in a single atomic statement.
func (s *PostgresLimitStore) Increment(ctx context.Context, module, key string, window time.Duration) (ratelimit.Counter, error) {
	now := time.Now()
	staleBefore := now.Add(-window)
	query := `
		INSERT INTO rate_limit_counters (module, key, count, window_start, updated_at)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (module, key) DO UPDATE SET
			count = CASE WHEN rate_limit_counters.window_start <= $4 THEN 1 ELSE rate_limit_counters.count + 1 END,
			window_start = CASE WHEN rate_limit_counters.window_start <= $4 THEN $3 ELSE rate_limit_counters.window_start END,
			updated_at = $3
		RETURNING count, window_start`

	var c ratelimit.Counter
	if err := s.db.DB.QueryRowContext(ctx, query, module, key, now, staleBefore).Scan(&c.Count, &c.WindowStart); err != nil {
		return ratelimit.Counter{}, fmt.Errorf("db increment counter: %w", err)
	}
	return c, nil
}

func (s *PostgresLimitStore) Peek(ctx context.Context, module, key string, window time.Duration) (ratelimit.Counter, error) {
	now := time.Now()
	var c ratelimit.Counter
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT count, window_start FROM rate_limit_counters WHERE module = $1 AND key = $2`,
		module, key,
	).Scan(&c.Count, &c.WindowStart)
	if err == sql.ErrNoRows {
		return ratelimit.Counter{Count: 0, WindowStart: now}, nil
	}
	if err != nil {
		return ratelimit.Counter{}, fmt.Errorf("db peek counter: %w", err)
	}
	if now.Sub(c.WindowStart) >= window {
		return ratelimit.Counter{Count: 0, WindowStart: now}, nil
	}
	return c, nil
}

const blockColumns = `id, module, target_type, target_value, reason, notes, blocked_by, created_at, expires_at, revoked_at`

func scanBlock(row interface{ Scan(...any) error }) (*ratelimit.ManualBlock, error) {
	var b ratelimit.ManualBlock
	var notes sql.NullString
	if err := row.Scan(&b.ID, &b.Module, &b.TargetType, &b.TargetValue, &b.Reason, &notes, &b.BlockedBy, &b.CreatedAt, &b.ExpiresAt, &b.RevokedAt); err != nil {
		return nil, err
	}
	b.Notes = notes.String
	return &b, nil
}

// GetBlock returns the active block for the exact target, or nil.
func (s *PostgresLimitStore) GetBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string) (*ratelimit.ManualBlock, error) {
	query := `
		SELECT ` + blockColumns + `
		FROM rate_limit_blocks
		WHERE module = $1 AND target_type = $2 AND target_value = $3
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $4)
		ORDER BY created_at DESC
		LIMIT 1`
	b, err := scanBlock(s.db.DB.QueryRowContext(ctx, query, module, targetType, targetValue, time.Now()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db get block: %w", err)
	}
	return b, nil
}

// SetBlock inserts a block, or replaces reason/notes/expiry in place when the
// ID already exists (the overwrite path reuses the existing ID).
func (s *PostgresLimitStore) SetBlock(ctx context.Context, block *ratelimit.ManualBlock) error {
	query := `
		INSERT INTO rate_limit_blocks (` + blockColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			reason = EXCLUDED.reason,
			notes = EXCLUDED.notes,
			blocked_by = EXCLUDED.blocked_by,
			expires_at = EXCLUDED.expires_at,
			revoked_at = EXCLUDED.revoked_at`
	_, err := s.db.DB.ExecContext(ctx, query,
		block.ID, block.Module, block.TargetType, block.TargetValue,
		block.Reason, block.Notes, block.BlockedBy,
		block.CreatedAt, block.ExpiresAt, block.RevokedAt,
	)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"module": block.Module, "target_type": block.TargetType}).WithError(err).Error("db: failed to upsert block")
		}
		return fmt.Errorf("db set block: %w", err)
	}
	return nil
}

// ClearBlock revokes the active block for the target. The row is retained for
// audit; only its revoked_at flips.
func (s *PostgresLimitStore) ClearBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string) error {
	now := time.Now()
	_, err := s.db.DB.ExecContext(ctx, `
		UPDATE rate_limit_blocks
		SET revoked_at = $4
		WHERE module = $1 AND target_type = $2 AND target_value = $3
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $4)`,
		module, targetType, targetValue, now,
	)
	if err != nil {
		return fmt.Errorf("db clear block: %w", err)
	}
	return nil
}

func (s *PostgresLimitStore) ClearCache(ctx context.Context, module, key string) error {
	_, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM rate_limit_counters WHERE module = $1 AND key = $2`, module, key)
	if err != nil {
		return fmt.Errorf("db clear counter: %w", err)
	}
	return nil
}

// MarkBlockReported is an insert-if-absent; the ttl only matters to the
// primary store, marker rows are swept by CleanupExpired.
func (s *PostgresLimitStore) MarkBlockReported(ctx context.Context, blockID uuid.UUID, ttl time.Duration) (bool, error) {
	res, err := s.db.DB.ExecContext(ctx, `
		INSERT INTO rate_limit_block_reports (block_id, reported_at)
		VALUES ($1, $2)
		ON CONFLICT (block_id) DO NOTHING`,
		blockID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("db mark block: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db mark block: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresLimitStore) HealthCheck(ctx context.Context) ports.HealthStatus {
	start := time.Now()
	err := s.db.DB.PingContext(ctx)
	elapsed := time.Since(start)
	return ports.HealthStatus{
		Healthy:   err == nil,
		Latency:   elapsed,
		LatencyMs: float64(elapsed.Microseconds()) / 1000,
		Err:       err,
		CheckedAt: time.Now(),
	}
}

// ListBlocks serves the administrative surface.
func (s *PostgresLimitStore) ListBlocks(ctx context.Context, module string, activeOnly bool) ([]*ratelimit.ManualBlock, error) {
	query := `SELECT ` + blockColumns + ` FROM rate_limit_blocks`
	var args []interface{}
	var conds []string
	if module != "" {
		args = append(args, module)
		conds = append(conds, fmt.Sprintf("module = $%d", len(args)))
	}
	if activeOnly {
		args = append(args, time.Now())
		conds = append(conds, fmt.Sprintf("revoked_at IS NULL AND (expires_at IS NULL OR expires_at > $%d)", len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*ratelimit.ManualBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("db scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db list blocks: %w", err)
	}
	return blocks, nil
}

// CleanupExpired sweeps stale fallback counters, report markers for finished
// blocks, and blocks revoked or expired past the retention horizon.
func (s *PostgresLimitStore) CleanupExpired(ctx context.Context, retention time.Duration) error {
	now := time.Now()
	horizon := now.Add(-retention)

	if _, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM rate_limit_counters WHERE updated_at < $1`, horizon); err != nil {
		return fmt.Errorf("db cleanup counters: %w", err)
	}
	if _, err := s.db.DB.ExecContext(ctx, `
		DELETE FROM rate_limit_block_reports
		WHERE block_id IN (
			SELECT id FROM rate_limit_blocks
			WHERE (revoked_at IS NOT NULL AND revoked_at < $1)
			   OR (expires_at IS NOT NULL AND expires_at < $1)
		)`, horizon); err != nil {
		return fmt.Errorf("db cleanup block reports: %w", err)
	}
	if _, err := s.db.DB.ExecContext(ctx, `
		DELETE FROM rate_limit_blocks
		WHERE (revoked_at IS NOT NULL AND revoked_at < $1)
		   OR (expires_at IS NOT NULL AND expires_at < $1)`, horizon); err != nil {
		return fmt.Errorf("db cleanup blocks: %w", err)
	}
	if s.logger != nil {
		s.logger.WithField("horizon", horizon).Debug("db: rate limit cleanup completed")
	}
	return nil
}
