package services

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/codeweberdotcom/limitguard/internal/core/ports"
)

var decisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ratelimit_decisions_total",
		Help: "The total number of rate limit decisions by module and outcome",
	},
	[]string{"module", "outcome"},
)

func init() {
	prometheus.MustRegister(decisionsTotal)
}

const autoBlockReason = "automatic block: rate limit exceeded"

// LimiterServiceConfig groups the engine policy knobs.
type LimiterServiceConfig struct {
	// FailOpen allows requests when no store can produce a count. The default
	// is fail-open so an outage of the protection layer does not become an
	// outage of the protected service.
	FailOpen bool
	// Environment tags recorded events when the caller supplies none.
	Environment ratelimit.Environment
}

// LimiterService is the evaluation engine. It holds no mutable state of its
// own; all cross-request state lives behind the LimitStore.
type LimiterService struct {
	store    ports.LimitStore
	configs  ports.ConfigService
	events   ports.EventService
	failOpen bool
	env      ratelimit.Environment
	logger   *logrus.Logger
}

func NewLimiterService(store ports.LimitStore, configs ports.ConfigService, events ports.EventService, cfg LimiterServiceConfig, logger *logrus.Logger) *LimiterService {
	env := cfg.Environment
	if env == "" {
		env = ratelimit.EnvProduction
	}
	return &LimiterService{
		store:    store,
		configs:  configs,
		events:   events,
		failOpen: cfg.FailOpen,
		env:      env,
		logger:   logger,
	}
}

type target struct {
	targetType ratelimit.TargetType
	value      string
}

// CheckLimit evaluates one request. The steps short-circuit in order: manual
// block lookup, window increment, threshold compare, violation handling.
// It always returns a decision; infrastructure failures resolve through the
// fail-open policy.
func (s *LimiterService) CheckLimit(ctx context.Context, key, module string, reqCtx ratelimit.RequestContext) ratelimit.Decision {
	cfg := s.configs.GetConfig(ctx, module)
	keyType := resolveKeyType(key, reqCtx.KeyType)

	for _, t := range s.blockTargets(key, keyType, reqCtx) {
		block, err := s.store.GetBlock(ctx, module, t.targetType, t.value)
		if err != nil {
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{"module": module, "target_type": t.targetType}).WithError(err).Warn("block lookup failed; continuing evaluation")
			}
			continue
		}
		if block == nil || !block.ActiveAt(time.Now()) {
			continue
		}
		if reqCtx.Increment {
			s.recordBlockEventOnce(ctx, block, cfg.Mode, key, keyType, reqCtx)
		}
		decisionsTotal.WithLabelValues(module, "denied").Inc()
		return ratelimit.Decision{
			Allowed:      false,
			Remaining:    0,
			ResetTime:    blockResetTime(block, cfg.Window),
			BlockedUntil: block.ExpiresAt,
		}
	}

	var counter ratelimit.Counter
	var err error
	if reqCtx.Increment {
		counter, err = s.store.Increment(ctx, module, key, cfg.Window)
	} else {
		counter, err = s.store.Peek(ctx, module, key, cfg.Window)
	}
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"module": module, "key": key, "fail_open": s.failOpen}).WithError(err).Error("limit store unavailable; applying fail policy")
		}
		outcome := "denied"
		if s.failOpen {
			outcome = "allowed"
		}
		decisionsTotal.WithLabelValues(module, outcome).Inc()
		return ratelimit.Decision{
			Allowed:   s.failOpen,
			Remaining: 0,
			ResetTime: time.Now().Add(cfg.Window),
		}
	}

	resetTime := counter.WindowStart.Add(cfg.Window)
	if counter.Count <= cfg.MaxRequests {
		decisionsTotal.WithLabelValues(module, "allowed").Inc()
		return ratelimit.Decision{
			Allowed:   true,
			Remaining: cfg.MaxRequests - counter.Count,
			ResetTime: resetTime,
		}
	}

	// Violation. Monitor mode records and lets the request through; enforce
	// mode creates an ephemeral block for the evaluated key.
	if cfg.Mode == ratelimit.ModeMonitor {
		if reqCtx.Increment {
			s.recordEvent(ctx, cfg, ratelimit.EventWarning, key, keyType, reqCtx, nil)
		}
		decisionsTotal.WithLabelValues(module, "warned").Inc()
		return ratelimit.Decision{Allowed: true, Remaining: 0, ResetTime: resetTime}
	}

	if !reqCtx.Increment {
		decisionsTotal.WithLabelValues(module, "denied").Inc()
		return ratelimit.Decision{Allowed: false, Remaining: 0, ResetTime: resetTime}
	}

	now := time.Now()
	expiresAt := now.Add(cfg.BlockDuration)
	block := &ratelimit.ManualBlock{
		ID:          uuid.New(),
		Module:      module,
		TargetType:  keyType,
		TargetValue: key,
		Reason:      autoBlockReason,
		BlockedBy:   nil,
		CreatedAt:   now,
		ExpiresAt:   &expiresAt,
	}
	if err := s.store.SetBlock(ctx, block); err != nil && s.logger != nil {
		s.logger.WithFields(logrus.Fields{"module": module, "key": key}).WithError(err).Error("failed to persist automatic block; denying this request only")
	}
	s.recordBlockEventOnce(ctx, block, cfg.Mode, key, keyType, reqCtx)

	decisionsTotal.WithLabelValues(module, "denied").Inc()
	return ratelimit.Decision{
		Allowed:      false,
		Remaining:    0,
		ResetTime:    resetTime,
		BlockedUntil: &expiresAt,
	}
}

// blockTargets expands the evaluated key into every classification derivable
// from the request context: the exact key, the user id, the IP, the email and
// the email's domain.
func (s *LimiterService) blockTargets(key string, keyType ratelimit.TargetType, reqCtx ratelimit.RequestContext) []target {
	seen := make(map[target]bool)
	var targets []target
	add := func(tt ratelimit.TargetType, v string) {
		if v == "" {
			return
		}
		t := target{targetType: tt, value: v}
		if !seen[t] {
			seen[t] = true
			targets = append(targets, t)
		}
	}
	add(keyType, key)
	add(ratelimit.TargetUser, reqCtx.UserID)
	add(ratelimit.TargetIP, reqCtx.IPAddress)
	if reqCtx.Email != "" {
		if email, err := ratelimit.NormalizeTarget(ratelimit.TargetEmail, reqCtx.Email); err == nil {
			add(ratelimit.TargetEmail, email)
			add(ratelimit.TargetDomain, ratelimit.EmailDomain(email))
		}
	}
	return targets
}

// recordBlockEventOnce emits a block event at most once per block, using the
// store marker so repeated denied requests stay silent.
func (s *LimiterService) recordBlockEventOnce(ctx context.Context, block *ratelimit.ManualBlock, mode ratelimit.Mode, key string, keyType ratelimit.TargetType, reqCtx ratelimit.RequestContext) {
	var ttl time.Duration
	if block.ExpiresAt != nil {
		ttl = time.Until(*block.ExpiresAt)
	}
	first, err := s.store.MarkBlockReported(ctx, block.ID, ttl)
	if err != nil {
		if s.logger != nil {
			s.logger.WithField("block_id", block.ID).WithError(err).Warn("failed to mark block as reported")
		}
		return
	}
	if !first {
		return
	}
	s.recordEvent(ctx, ratelimit.Config{Module: block.Module, Mode: mode}, ratelimit.EventBlock, key, keyType, reqCtx, map[string]any{
		"block_id":     block.ID.String(),
		"target_type":  string(block.TargetType),
		"target_value": block.TargetValue,
		"reason":       block.Reason,
	})
}

// recordEvent persists an audit event. Persistence failures are logged and
// swallowed; they never affect the decision already taken.
func (s *LimiterService) recordEvent(ctx context.Context, cfg ratelimit.Config, eventType ratelimit.EventType, key string, keyType ratelimit.TargetType, reqCtx ratelimit.RequestContext, metadata map[string]any) {
	env := reqCtx.Environment
	if env == "" {
		env = s.env
	}
	targetID := key
	if keyType == ratelimit.TargetUser && reqCtx.UserID != "" {
		targetID = reqCtx.UserID
	}
	input := &ratelimit.EventInput{
		Module:      cfg.Module,
		Key:         key,
		EventType:   eventType,
		Mode:        cfg.Mode,
		TargetType:  keyType,
		TargetID:    targetID,
		IPAddress:   reqCtx.IPAddress,
		Email:       reqCtx.Email,
		Environment: env,
		Metadata:    metadata,
	}
	if err := s.events.Record(ctx, input); err != nil && s.logger != nil {
		s.logger.WithFields(logrus.Fields{"module": cfg.Module, "event_type": eventType}).WithError(err).Error("failed to record rate limit event")
	}
}

// resolveKeyType defaults the key classification when the caller omits it:
// anything that parses as an IP literal is an ip key, everything else a user.
func resolveKeyType(key string, keyType ratelimit.TargetType) ratelimit.TargetType {
	if keyType == ratelimit.TargetUser || keyType == ratelimit.TargetIP {
		return keyType
	}
	if net.ParseIP(key) != nil {
		return ratelimit.TargetIP
	}
	return ratelimit.TargetUser
}

func blockResetTime(block *ratelimit.ManualBlock, window time.Duration) time.Time {
	if block.ExpiresAt != nil {
		return *block.ExpiresAt
	}
	return time.Now().Add(window)
}
