package ports

import (
	"context"
	"time"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/google/uuid"
)

// HealthStatus is the outcome of probing one backing store.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	LatencyMs float64       `json:"latency_ms"`
	Err       error         `json:"-"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"-"`
}

// LimitStore provides atomic counter and block storage for the engine.
// Implementations must be safe for concurrent use; Increment must be atomic
// against concurrent callers on the same key with no application-level locking.
type LimitStore interface {
	// Increment bumps the counter for (module, key), creating the window on
	// first use and resetting it once window has elapsed since windowStart.
	Increment(ctx context.Context, module, key string, window time.Duration) (ratelimit.Counter, error)
	// Peek reads the current window without mutating it (dry-run support).
	Peek(ctx context.Context, module, key string, window time.Duration) (ratelimit.Counter, error)
	// GetBlock returns the active block for the exact target, or nil.
	GetBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string) (*ratelimit.ManualBlock, error)
	// SetBlock stores (or replaces, keyed by ID) a block.
	SetBlock(ctx context.Context, block *ratelimit.ManualBlock) error
	// ClearBlock removes the active block for the target.
	ClearBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string) error
	// ClearCache drops counter and cached block state for the exact key.
	ClearCache(ctx context.Context, module, key string) error
	// MarkBlockReported records that a block event has been emitted for the
	// block. It returns true exactly once per block; ttl<=0 means no expiry.
	MarkBlockReported(ctx context.Context, blockID uuid.UUID, ttl time.Duration) (bool, error)
	// HealthCheck probes the store.
	HealthCheck(ctx context.Context) HealthStatus
}

// StoreManager is the failover decorator over a primary and secondary
// LimitStore. Run starts the background health loop and blocks until ctx ends.
type StoreManager interface {
	LimitStore
	Run(ctx context.Context)
	Degraded() bool
}

// BlockRepository exposes the administrative read/audit side of block storage,
// implemented by the durable system of record.
type BlockRepository interface {
	ListBlocks(ctx context.Context, module string, activeOnly bool) ([]*ratelimit.ManualBlock, error)
}
