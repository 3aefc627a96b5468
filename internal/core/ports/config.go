package ports

import (
	"context"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
)

// ConfigRepository persists per-module rate limit policies.
type ConfigRepository interface {
	Get(ctx context.Context, module string) (*ratelimit.Config, error)
	Upsert(ctx context.Context, cfg *ratelimit.Config) error
}

// ConfigService serves per-module policies from a short-lived in-process cache.
// GetConfig never fails a rate-limit decision: when the backing source is
// unreachable it returns the last-known-good value or the default policy.
type ConfigService interface {
	GetConfig(ctx context.Context, module string) ratelimit.Config
	UpdateConfig(ctx context.Context, module string, req *ratelimit.UpdateConfigRequest) (*ratelimit.Config, error)
	// Invalidate drops cached entries; with no arguments the whole cache is dropped.
	Invalidate(modules ...string)
}
