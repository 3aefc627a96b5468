package repositories

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/codeweberdotcom/limitguard/internal/core/ports"
)

var storeDegraded = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "ratelimit_store_degraded",
	Help: "1 while counter traffic is routed to the secondary store",
})

func init() {
	prometheus.MustRegister(storeDegraded)
}

// negative block cache TTL; keeps steady-state traffic off the durable store
// without letting a new block go unseen for long.
const noBlockCacheTTL = 30 * time.Second

// StoreManagerConfig groups the failover tuning knobs.
type StoreManagerConfig struct {
	HealthInterval time.Duration // primary probe cadence
	CallTimeout    time.Duration // bound on every delegated store call
}

// StoreManager fronts the primary (Redis) and secondary (Postgres) stores.
// A background loop probes the primary; while it is down, counter traffic is
// routed to the secondary. Counters written during a degraded period are not
// reconciled back, so counts across a failover boundary are eventually, not
// strictly, consistent. Blocks always write through to the secondary, which is
// the system of record.
type StoreManager struct {
	primary   ports.LimitStore
	secondary ports.LimitStore
	cache     ports.Cache
	logger    *logrus.Logger
	cfg       StoreManagerConfig

	degraded atomic.Bool
}

func NewStoreManager(primary, secondary ports.LimitStore, cache ports.Cache, cfg StoreManagerConfig, logger *logrus.Logger) *StoreManager {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 10 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 250 * time.Millisecond
	}
	return &StoreManager{primary: primary, secondary: secondary, cache: cache, cfg: cfg, logger: logger}
}

// Run drives the health-check loop until ctx is cancelled. It runs on its own
// timer and never blocks an evaluation call.
func (m *StoreManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *StoreManager) probe(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	status := m.primary.HealthCheck(cctx)
	cancel()

	wasDegraded := m.degraded.Load()
	if status.Healthy && wasDegraded {
		m.degraded.Store(false)
		storeDegraded.Set(0)
		if m.logger != nil {
			m.logger.WithField("latency_ms", status.LatencyMs).Info("store manager: primary recovered, failing back")
		}
	} else if !status.Healthy && !wasDegraded {
		m.degraded.Store(true)
		storeDegraded.Set(1)
		if m.logger != nil {
			m.logger.WithError(status.Err).Warn("store manager: primary unhealthy, routing to secondary")
		}
	}
}

func (m *StoreManager) Degraded() bool { return m.degraded.Load() }

func (m *StoreManager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.CallTimeout)
}

// markDegraded flips routing after a failed primary call, the same as a failed
// health check; the next probe decides when to fail back.
func (m *StoreManager) markDegraded(err error) {
	if m.degraded.CompareAndSwap(false, true) {
		storeDegraded.Set(1)
		if m.logger != nil {
			m.logger.WithError(err).Warn("store manager: primary call failed, routing to secondary")
		}
	}
}

func (m *StoreManager) counterStore() ports.LimitStore {
	if m.degraded.Load() {
		return m.secondary
	}
	return m.primary
}

func (m *StoreManager) Increment(ctx context.Context, module, key string, window time.Duration) (ratelimit.Counter, error) {
	cctx, cancel := m.bound(ctx)
	defer cancel()
	store := m.counterStore()
	c, err := store.Increment(cctx, module, key, window)
	if err == nil || store == m.secondary {
		return c, err
	}
	m.markDegraded(err)
	fctx, fcancel := m.bound(ctx)
	defer fcancel()
	return m.secondary.Increment(fctx, module, key, window)
}

func (m *StoreManager) Peek(ctx context.Context, module, key string, window time.Duration) (ratelimit.Counter, error) {
	cctx, cancel := m.bound(ctx)
	defer cancel()
	store := m.counterStore()
	c, err := store.Peek(cctx, module, key, window)
	if err == nil || store == m.secondary {
		return c, err
	}
	m.markDegraded(err)
	fctx, fcancel := m.bound(ctx)
	defer fcancel()
	return m.secondary.Peek(fctx, module, key, window)
}

func noBlockKey(module string, targetType ratelimit.TargetType, targetValue string) string {
	return "noblk:" + module + ":" + string(targetType) + ":" + targetValue
}

// GetBlock consults the primary cache first, then the system of record.
// Misses are negatively cached briefly so unblocked hot keys do not hammer
// the durable store.
func (m *StoreManager) GetBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string) (*ratelimit.ManualBlock, error) {
	if !m.degraded.Load() {
		cctx, cancel := m.bound(ctx)
		b, err := m.primary.GetBlock(cctx, module, targetType, targetValue)
		cancel()
		if err != nil {
			m.markDegraded(err)
		} else if b != nil {
			return b, nil
		}
		if m.cache != nil {
			if _, ok, _ := m.cache.Get(ctx, noBlockKey(module, targetType, targetValue)); ok {
				return nil, nil
			}
		}
	}

	sctx, scancel := m.bound(ctx)
	defer scancel()
	b, err := m.secondary.GetBlock(sctx, module, targetType, targetValue)
	if err != nil {
		return nil, err
	}
	if b != nil {
		if !m.degraded.Load() {
			pctx, pcancel := m.bound(ctx)
			if cerr := m.primary.SetBlock(pctx, b); cerr != nil && m.logger != nil {
				m.logger.WithError(cerr).Debug("store manager: failed to warm block cache")
			}
			pcancel()
		}
		return b, nil
	}
	if m.cache != nil {
		_ = m.cache.Set(ctx, noBlockKey(module, targetType, targetValue), []byte("1"), noBlockCacheTTL)
	}
	return nil, nil
}

// SetBlock writes through to the secondary first; the cache layers are best
// effort on top of a durable write.
func (m *StoreManager) SetBlock(ctx context.Context, block *ratelimit.ManualBlock) error {
	sctx, scancel := m.bound(ctx)
	defer scancel()
	if err := m.secondary.SetBlock(sctx, block); err != nil {
		return err
	}
	if m.cache != nil {
		_ = m.cache.Delete(ctx, noBlockKey(block.Module, block.TargetType, block.TargetValue))
	}
	if !m.degraded.Load() {
		pctx, pcancel := m.bound(ctx)
		defer pcancel()
		if err := m.primary.SetBlock(pctx, block); err != nil {
			m.markDegraded(err)
		}
	}
	return nil
}

func (m *StoreManager) ClearBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string) error {
	sctx, scancel := m.bound(ctx)
	defer scancel()
	if err := m.secondary.ClearBlock(sctx, module, targetType, targetValue); err != nil {
		return err
	}
	if m.cache != nil {
		_ = m.cache.Delete(ctx, noBlockKey(module, targetType, targetValue))
	}
	if !m.degraded.Load() {
		pctx, pcancel := m.bound(ctx)
		defer pcancel()
		if err := m.primary.ClearBlock(pctx, module, targetType, targetValue); err != nil {
			m.markDegraded(err)
		}
	}
	return nil
}

// ClearCache resets the exact key in both stores; incident remediation tooling
// expects a full wipe regardless of routing state.
func (m *StoreManager) ClearCache(ctx context.Context, module, key string) error {
	var firstErr error
	pctx, pcancel := m.bound(ctx)
	if err := m.primary.ClearCache(pctx, module, key); err != nil {
		firstErr = err
	}
	pcancel()
	sctx, scancel := m.bound(ctx)
	defer scancel()
	if err := m.secondary.ClearCache(sctx, module, key); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (m *StoreManager) MarkBlockReported(ctx context.Context, blockID uuid.UUID, ttl time.Duration) (bool, error) {
	cctx, cancel := m.bound(ctx)
	defer cancel()
	store := m.counterStore()
	ok, err := store.MarkBlockReported(cctx, blockID, ttl)
	if err == nil || store == m.secondary {
		return ok, err
	}
	m.markDegraded(err)
	fctx, fcancel := m.bound(ctx)
	defer fcancel()
	return m.secondary.MarkBlockReported(fctx, blockID, ttl)
}

// HealthCheck reports the store currently serving counter traffic.
func (m *StoreManager) HealthCheck(ctx context.Context) ports.HealthStatus {
	cctx, cancel := m.bound(ctx)
	defer cancel()
	return m.counterStore().HealthCheck(cctx)
}
