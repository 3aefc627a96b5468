package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	impl "github.com/codeweberdotcom/limitguard/internal/application/services"
	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
)

type cfgRepoMock struct {
	getFn    func(ctx context.Context, module string) (*ratelimit.Config, error)
	upsertFn func(ctx context.Context, cfg *ratelimit.Config) error
	getCalls int
}

func (m *cfgRepoMock) Get(ctx context.Context, module string) (*ratelimit.Config, error) {
	m.getCalls++
	if m.getFn != nil {
		return m.getFn(ctx, module)
	}
	return nil, nil
}

func (m *cfgRepoMock) Upsert(ctx context.Context, cfg *ratelimit.Config) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, cfg)
	}
	return nil
}

var testDefaultCfg = ratelimit.Config{MaxRequests: 120, Window: time.Minute, BlockDuration: 15 * time.Minute, Mode: ratelimit.ModeEnforce}

func TestGetConfig_DefaultForUnknownModule(t *testing.T) {
	repo := &cfgRepoMock{}
	svc := impl.NewConfigService(repo, testDefaultCfg, time.Minute, nil)

	cfg := svc.GetConfig(context.Background(), "unseen")
	if cfg.Module != "unseen" {
		t.Fatalf("module = %q, want unseen", cfg.Module)
	}
	if cfg.MaxRequests != 120 || cfg.Mode != ratelimit.ModeEnforce {
		t.Fatalf("expected default policy, got %+v", cfg)
	}
}

func TestGetConfig_CachesWithinTTL(t *testing.T) {
	repo := &cfgRepoMock{getFn: func(ctx context.Context, module string) (*ratelimit.Config, error) {
		return &ratelimit.Config{Module: module, MaxRequests: 10, Window: time.Second, Mode: ratelimit.ModeMonitor}, nil
	}}
	svc := impl.NewConfigService(repo, testDefaultCfg, time.Minute, nil)

	ctx := context.Background()
	svc.GetConfig(ctx, "login")
	svc.GetConfig(ctx, "login")
	svc.GetConfig(ctx, "login")
	if repo.getCalls != 1 {
		t.Fatalf("expected a single source fetch within the TTL, got %d", repo.getCalls)
	}
}

func TestGetConfig_ServesLastKnownGoodWhenSourceFails(t *testing.T) {
	healthy := true
	repo := &cfgRepoMock{getFn: func(ctx context.Context, module string) (*ratelimit.Config, error) {
		if !healthy {
			return nil, errors.New("db down")
		}
		return &ratelimit.Config{Module: module, MaxRequests: 7, Window: time.Second, Mode: ratelimit.ModeEnforce}, nil
	}}
	svc := impl.NewConfigService(repo, testDefaultCfg, 5*time.Millisecond, nil)

	ctx := context.Background()
	first := svc.GetConfig(ctx, "login")
	if first.MaxRequests != 7 {
		t.Fatalf("expected stored policy, got %+v", first)
	}

	healthy = false
	time.Sleep(10 * time.Millisecond)

	second := svc.GetConfig(ctx, "login")
	if second.MaxRequests != 7 {
		t.Fatalf("expected last-known-good policy during outage, got %+v", second)
	}
}

func TestUpdateConfig_MergesAndInvalidates(t *testing.T) {
	var stored *ratelimit.Config
	repo := &cfgRepoMock{
		getFn: func(ctx context.Context, module string) (*ratelimit.Config, error) {
			return stored, nil
		},
		upsertFn: func(ctx context.Context, cfg *ratelimit.Config) error {
			c := *cfg
			stored = &c
			return nil
		},
	}
	svc := impl.NewConfigService(repo, testDefaultCfg, time.Minute, nil)

	ctx := context.Background()
	max := 5
	mode := ratelimit.ModeMonitor
	updated, err := svc.UpdateConfig(ctx, "login", &ratelimit.UpdateConfigRequest{MaxRequests: &max, Mode: &mode})
	if err != nil {
		t.Fatal(err)
	}
	if updated.MaxRequests != 5 || updated.Mode != ratelimit.ModeMonitor {
		t.Fatalf("partial update not applied: %+v", updated)
	}
	// Untouched fields keep the default.
	if updated.Window != testDefaultCfg.Window {
		t.Fatalf("window should be inherited, got %v", updated.Window)
	}

	// The next read must see the new policy, not a stale cache entry.
	got := svc.GetConfig(ctx, "login")
	if got.MaxRequests != 5 {
		t.Fatalf("cache not invalidated after update: %+v", got)
	}
}

func TestUpdateConfig_RejectsInvalidPolicy(t *testing.T) {
	repo := &cfgRepoMock{}
	svc := impl.NewConfigService(repo, testDefaultCfg, time.Minute, nil)

	bad := -1
	_, err := svc.UpdateConfig(context.Background(), "login", &ratelimit.UpdateConfigRequest{MaxRequests: &bad})
	if !errors.Is(err, ratelimit.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
