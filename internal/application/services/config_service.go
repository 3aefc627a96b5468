package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/codeweberdotcom/limitguard/internal/core/ports"
)

type configEntry struct {
	cfg       ratelimit.Config
	fetchedAt time.Time
}

// ConfigService serves per-module policies from a TTL cache with explicit
// invalidation, so policy changes propagate without per-request storage
// round-trips. A stale entry is served as last-known-good whenever the
// backing source cannot be refreshed.
type ConfigService struct {
	repo       ports.ConfigRepository
	defaultCfg ratelimit.Config
	ttl        time.Duration
	logger     *logrus.Logger

	mu    sync.RWMutex
	cache map[string]configEntry
	sf    singleflight.Group
}

func NewConfigService(repo ports.ConfigRepository, defaultCfg ratelimit.Config, cacheTTL time.Duration, logger *logrus.Logger) *ConfigService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &ConfigService{
		repo:       repo,
		defaultCfg: defaultCfg,
		ttl:        cacheTTL,
		logger:     logger,
		cache:      make(map[string]configEntry),
	}
}

// GetConfig returns the module's policy, the last-known-good cached value when
// the source is unreachable, or the default policy for unconfigured modules.
// It never fails: a rate-limit decision must not depend on a config refresh.
func (s *ConfigService) GetConfig(ctx context.Context, module string) ratelimit.Config {
	now := time.Now()

	s.mu.RLock()
	entry, ok := s.cache[module]
	s.mu.RUnlock()
	if ok && now.Sub(entry.fetchedAt) < s.ttl {
		return entry.cfg
	}

	v, err, _ := s.sf.Do(module, func() (any, error) {
		cfg, err := s.repo.Get(ctx, module)
		if err != nil {
			return nil, err
		}
		resolved := s.defaultFor(module)
		if cfg != nil {
			resolved = *cfg
		}
		s.mu.Lock()
		s.cache[module] = configEntry{cfg: resolved, fetchedAt: time.Now()}
		s.mu.Unlock()
		return resolved, nil
	})
	if err != nil {
		if s.logger != nil {
			s.logger.WithField("module", module).WithError(err).Warn("config service degraded: serving cached/default policy")
		}
		if ok {
			return entry.cfg
		}
		return s.defaultFor(module)
	}
	return v.(ratelimit.Config)
}

// UpdateConfig merges a partial update over the current policy, validates and
// persists it, then invalidates the cache entry.
func (s *ConfigService) UpdateConfig(ctx context.Context, module string, req *ratelimit.UpdateConfigRequest) (*ratelimit.Config, error) {
	current, err := s.repo.Get(ctx, module)
	if err != nil {
		return nil, err
	}
	base := s.defaultFor(module)
	if current != nil {
		base = *current
	}

	merged := req.Apply(base)
	merged.Module = module
	merged.UpdatedAt = time.Now()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, &merged); err != nil {
		return nil, err
	}
	s.Invalidate(module)
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"module":       module,
			"max_requests": merged.MaxRequests,
			"window":       merged.Window,
			"mode":         merged.Mode,
		}).Info("rate limit config updated")
	}
	return &merged, nil
}

// Invalidate drops cached entries; with no arguments the whole cache goes.
func (s *ConfigService) Invalidate(modules ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(modules) == 0 {
		s.cache = make(map[string]configEntry)
		return
	}
	for _, m := range modules {
		delete(s.cache, m)
	}
}

func (s *ConfigService) defaultFor(module string) ratelimit.Config {
	cfg := s.defaultCfg
	cfg.Module = module
	return cfg
}
