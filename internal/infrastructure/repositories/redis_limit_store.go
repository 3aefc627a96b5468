package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/codeweberdotcom/limitguard/internal/core/ports"
)

// RedisLimitStore is the primary, low-latency counter store. Counter atomicity
// rides on Redis INCR; blocks held here are a cache over the durable store.
type RedisLimitStore struct {
	r      redis.Cmdable
	logger *logrus.Logger
}

func NewRedisLimitStore(r redis.Cmdable, logger *logrus.Logger) *RedisLimitStore {
	return &RedisLimitStore{r: r, logger: logger}
}

func counterKey(module, key string) string { return fmt.Sprintf("rl:cnt:%s:%s", module, key) }
func windowKey(module, key string) string  { return fmt.Sprintf("rl:win:%s:%s", module, key) }
func reportKey(id uuid.UUID) string        { return "rl:rep:" + id.String() }

func blockKey(module string, targetType ratelimit.TargetType, targetValue string) string {
	return fmt.Sprintf("rl:blk:%s:%s:%s", module, targetType, targetValue)
}

// incrScript bumps the counter and, on the first hit of a window, arms the
// expiry and window-start key in the same atomic step, so the increment can
// never land without its TTL. A counter found without a TTL (a half-applied
// first hit from an older writer, or a lost expiry) is restarted rather than
// counted, since its window can no longer be dated.
// KEYS[1]=counter, KEYS[2]=window, ARGV[1]=window ms, ARGV[2]=now ms.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count > 1 and redis.call('PTTL', KEYS[1]) < 0 then
  count = 1
  redis.call('SET', KEYS[1], 1)
  redis.call('DEL', KEYS[2])
end
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[1])
end
local ws = redis.call('GET', KEYS[2])
if not ws then
  ws = ARGV[2]
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 0 then ttl = tonumber(ARGV[1]) end
  redis.call('SET', KEYS[2], ws, 'PX', ttl)
end
return {count, ws}`)

// Increment atomically bumps the counter for (module, key). The window key
// carries the first-use timestamp and both keys expire together, so an expired
// window simply restarts at count 1.
func (s *RedisLimitStore) Increment(ctx context.Context, module, key string, window time.Duration) (ratelimit.Counter, error) {
	now := time.Now()
	res, err := incrScript.Run(ctx, s.r,
		[]string{counterKey(module, key), windowKey(module, key)},
		window.Milliseconds(), now.UnixMilli(),
	).Result()
	if err != nil {
		return ratelimit.Counter{}, fmt.Errorf("redis incr: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return ratelimit.Counter{}, fmt.Errorf("redis incr: unexpected reply %v", res)
	}
	count, _ := vals[0].(int64)
	ws := now
	if raw, ok := vals[1].(string); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			ws = time.UnixMilli(ms)
		}
	}
	return ratelimit.Counter{Count: int(count), WindowStart: ws}, nil
}

// Peek reads counter and window without mutation. A missing counter reads as a
// fresh window with count zero.
func (s *RedisLimitStore) Peek(ctx context.Context, module, key string, window time.Duration) (ratelimit.Counter, error) {
	now := time.Now()
	val, err := s.r.Get(ctx, counterKey(module, key)).Int()
	if err == redis.Nil {
		return ratelimit.Counter{Count: 0, WindowStart: now}, nil
	}
	if err != nil {
		return ratelimit.Counter{}, fmt.Errorf("redis get counter: %w", err)
	}
	ws, err := s.windowStart(ctx, module, key, now, window)
	if err != nil {
		return ratelimit.Counter{}, err
	}
	return ratelimit.Counter{Count: val, WindowStart: ws}, nil
}

// windowStart resolves the first-use timestamp of the current window. SetNX
// covers the narrow race where a concurrent first increment has bumped the
// counter but not yet written the window key.
func (s *RedisLimitStore) windowStart(ctx context.Context, module, key string, now time.Time, window time.Duration) (time.Time, error) {
	winKey := windowKey(module, key)
	if err := s.r.SetNX(ctx, winKey, now.UnixMilli(), window).Err(); err != nil {
		return time.Time{}, fmt.Errorf("redis window setnx: %w", err)
	}
	raw, err := s.r.Get(ctx, winKey).Result()
	if err != nil {
		if err == redis.Nil {
			return now, nil
		}
		return time.Time{}, fmt.Errorf("redis get window: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return now, nil
	}
	return time.UnixMilli(ms), nil
}

// GetBlock returns the cached block for the target, or nil on a cache miss.
// The store manager falls through to the durable store on nil.
func (s *RedisLimitStore) GetBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string) (*ratelimit.ManualBlock, error) {
	raw, err := s.r.Get(ctx, blockKey(module, targetType, targetValue)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get block: %w", err)
	}
	var b ratelimit.ManualBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).WithField("module", module).Warn("redis: dropping undecodable cached block")
		}
		_ = s.r.Del(ctx, blockKey(module, targetType, targetValue)).Err()
		return nil, nil
	}
	if !b.ActiveAt(time.Now()) {
		return nil, nil
	}
	return &b, nil
}

// SetBlock caches a block until its expiry; permanent blocks get no TTL.
func (s *RedisLimitStore) SetBlock(ctx context.Context, block *ratelimit.ManualBlock) error {
	raw, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	var ttl time.Duration
	if block.ExpiresAt != nil {
		ttl = time.Until(*block.ExpiresAt)
		if ttl <= 0 {
			return s.ClearBlock(ctx, block.Module, block.TargetType, block.TargetValue)
		}
	}
	if err := s.r.Set(ctx, blockKey(block.Module, block.TargetType, block.TargetValue), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set block: %w", err)
	}
	return nil
}

func (s *RedisLimitStore) ClearBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string) error {
	if err := s.r.Del(ctx, blockKey(module, targetType, targetValue)).Err(); err != nil {
		return fmt.Errorf("redis del block: %w", err)
	}
	return nil
}

// ClearCache removes the counter window plus any cached block state keyed by
// the same identifier (user and ip classifications share the raw key).
func (s *RedisLimitStore) ClearCache(ctx context.Context, module, key string) error {
	keys := []string{
		counterKey(module, key),
		windowKey(module, key),
		blockKey(module, ratelimit.TargetUser, key),
		blockKey(module, ratelimit.TargetIP, key),
	}
	if err := s.r.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear cache: %w", err)
	}
	return nil
}

// MarkBlockReported is a SETNX marker so each block produces one event.
func (s *RedisLimitStore) MarkBlockReported(ctx context.Context, blockID uuid.UUID, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := s.r.SetNX(ctx, reportKey(blockID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis mark block: %w", err)
	}
	return ok, nil
}

func (s *RedisLimitStore) HealthCheck(ctx context.Context) ports.HealthStatus {
	start := time.Now()
	err := s.r.Ping(ctx).Err()
	elapsed := time.Since(start)
	return ports.HealthStatus{
		Healthy:   err == nil,
		Latency:   elapsed,
		LatencyMs: float64(elapsed.Microseconds()) / 1000,
		Err:       err,
		CheckedAt: time.Now(),
	}
}
