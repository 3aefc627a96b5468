package mocks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/codeweberdotcom/limitguard/internal/core/ports"
)

// LimiterServiceMock is a lightweight mock for LimiterService
type LimiterServiceMock struct {
	CheckLimitFn func(ctx context.Context, key, module string, reqCtx ratelimit.RequestContext) ratelimit.Decision
}

func (m *LimiterServiceMock) CheckLimit(ctx context.Context, key, module string, reqCtx ratelimit.RequestContext) ratelimit.Decision {
	if m.CheckLimitFn != nil {
		return m.CheckLimitFn(ctx, key, module, reqCtx)
	}
	return ratelimit.Decision{Allowed: true, Remaining: 1, ResetTime: time.Now().Add(time.Minute)}
}

// BlockServiceMock is a lightweight mock for BlockService
type BlockServiceMock struct {
	CreateBlockFn func(ctx context.Context, req *ratelimit.CreateBlockRequest) (*ratelimit.ManualBlock, error)
	RevokeBlockFn func(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string, revokedBy string) error
	ListBlocksFn  func(ctx context.Context, module string, activeOnly bool) ([]*ratelimit.ManualBlock, error)
}

func (m *BlockServiceMock) CreateBlock(ctx context.Context, req *ratelimit.CreateBlockRequest) (*ratelimit.ManualBlock, error) {
	if m.CreateBlockFn != nil {
		return m.CreateBlockFn(ctx, req)
	}
	return nil, fmt.Errorf("not implemented")
}
func (m *BlockServiceMock) RevokeBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string, revokedBy string) error {
	if m.RevokeBlockFn != nil {
		return m.RevokeBlockFn(ctx, module, targetType, targetValue, revokedBy)
	}
	return nil
}
func (m *BlockServiceMock) ListBlocks(ctx context.Context, module string, activeOnly bool) ([]*ratelimit.ManualBlock, error) {
	if m.ListBlocksFn != nil {
		return m.ListBlocksFn(ctx, module, activeOnly)
	}
	return nil, nil
}

// EventServiceMock is a lightweight mock for EventService
type EventServiceMock struct {
	RecordFn func(ctx context.Context, input *ratelimit.EventInput) error
	ListFn   func(ctx context.Context, filter *ratelimit.EventFilter) ([]*ratelimit.Event, string, error)
}

func (m *EventServiceMock) Record(ctx context.Context, input *ratelimit.EventInput) error {
	if m.RecordFn != nil {
		return m.RecordFn(ctx, input)
	}
	return nil
}
func (m *EventServiceMock) List(ctx context.Context, filter *ratelimit.EventFilter) ([]*ratelimit.Event, string, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	return nil, "", nil
}

// ConfigServiceMock is a lightweight mock for ConfigService
type ConfigServiceMock struct {
	GetConfigFn    func(ctx context.Context, module string) ratelimit.Config
	UpdateConfigFn func(ctx context.Context, module string, req *ratelimit.UpdateConfigRequest) (*ratelimit.Config, error)
	InvalidateFn   func(modules ...string)
}

func (m *ConfigServiceMock) GetConfig(ctx context.Context, module string) ratelimit.Config {
	if m.GetConfigFn != nil {
		return m.GetConfigFn(ctx, module)
	}
	return ratelimit.Config{Module: module, MaxRequests: 100, Window: time.Minute, BlockDuration: 15 * time.Minute, Mode: ratelimit.ModeEnforce}
}
func (m *ConfigServiceMock) UpdateConfig(ctx context.Context, module string, req *ratelimit.UpdateConfigRequest) (*ratelimit.Config, error) {
	if m.UpdateConfigFn != nil {
		return m.UpdateConfigFn(ctx, module, req)
	}
	return nil, fmt.Errorf("not implemented")
}
func (m *ConfigServiceMock) Invalidate(modules ...string) {
	if m.InvalidateFn != nil {
		m.InvalidateFn(modules...)
	}
}

// StoreManagerMock is a lightweight mock for the failover store front
type StoreManagerMock struct {
	IncrementFn         func(ctx context.Context, module, key string, window time.Duration) (ratelimit.Counter, error)
	PeekFn              func(ctx context.Context, module, key string, window time.Duration) (ratelimit.Counter, error)
	GetBlockFn          func(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string) (*ratelimit.ManualBlock, error)
	SetBlockFn          func(ctx context.Context, block *ratelimit.ManualBlock) error
	ClearBlockFn        func(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string) error
	ClearCacheFn        func(ctx context.Context, module, key string) error
	MarkBlockReportedFn func(ctx context.Context, blockID uuid.UUID, ttl time.Duration) (bool, error)
	HealthCheckFn       func(ctx context.Context) ports.HealthStatus
	DegradedFn          func() bool
}

func (m *StoreManagerMock) Increment(ctx context.Context, module, key string, window time.Duration) (ratelimit.Counter, error) {
	if m.IncrementFn != nil {
		return m.IncrementFn(ctx, module, key, window)
	}
	return ratelimit.Counter{Count: 1, WindowStart: time.Now()}, nil
}
func (m *StoreManagerMock) Peek(ctx context.Context, module, key string, window time.Duration) (ratelimit.Counter, error) {
	if m.PeekFn != nil {
		return m.PeekFn(ctx, module, key, window)
	}
	return ratelimit.Counter{}, nil
}
func (m *StoreManagerMock) GetBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string) (*ratelimit.ManualBlock, error) {
	if m.GetBlockFn != nil {
		return m.GetBlockFn(ctx, module, targetType, targetValue)
	}
	return nil, nil
}
func (m *StoreManagerMock) SetBlock(ctx context.Context, block *ratelimit.ManualBlock) error {
	if m.SetBlockFn != nil {
		return m.SetBlockFn(ctx, block)
	}
	return nil
}
func (m *StoreManagerMock) ClearBlock(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string) error {
	if m.ClearBlockFn != nil {
		return m.ClearBlockFn(ctx, module, targetType, targetValue)
	}
	return nil
}
func (m *StoreManagerMock) ClearCache(ctx context.Context, module, key string) error {
	if m.ClearCacheFn != nil {
		return m.ClearCacheFn(ctx, module, key)
	}
	return nil
}
func (m *StoreManagerMock) MarkBlockReported(ctx context.Context, blockID uuid.UUID, ttl time.Duration) (bool, error) {
	if m.MarkBlockReportedFn != nil {
		return m.MarkBlockReportedFn(ctx, blockID, ttl)
	}
	return true, nil
}
func (m *StoreManagerMock) HealthCheck(ctx context.Context) ports.HealthStatus {
	if m.HealthCheckFn != nil {
		return m.HealthCheckFn(ctx)
	}
	return ports.HealthStatus{Healthy: true, CheckedAt: time.Now()}
}
func (m *StoreManagerMock) Run(ctx context.Context) { <-ctx.Done() }
func (m *StoreManagerMock) Degraded() bool {
	if m.DegradedFn != nil {
		return m.DegradedFn()
	}
	return false
}
