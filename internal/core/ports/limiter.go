package ports

import (
	"context"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
)

// LimiterService evaluates requests against manual blocks and sliding-window
// counters. CheckLimit always returns a decision, never an error: store and
// config failures resolve through the configured fail-open/fail-closed policy.
type LimiterService interface {
	CheckLimit(ctx context.Context, key, module string, reqCtx ratelimit.RequestContext) ratelimit.Decision
}

// BlockService manages manual blocks. CreateBlock surfaces ErrBlockExists
// distinctly from validation failures so a caller can offer an overwrite.
type BlockService interface {
	CreateBlock(ctx context.Context, req *ratelimit.CreateBlockRequest) (*ratelimit.ManualBlock, error)
	RevokeBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string, revokedBy string) error
	ListBlocks(ctx context.Context, module string, activeOnly bool) ([]*ratelimit.ManualBlock, error)
}
