package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	impl "github.com/codeweberdotcom/limitguard/internal/application/services"
	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
)

type blockRepoMock struct {
	listFn func(ctx context.Context, module string, activeOnly bool) ([]*ratelimit.ManualBlock, error)
}

func (m *blockRepoMock) ListBlocks(ctx context.Context, module string, activeOnly bool) ([]*ratelimit.ManualBlock, error) {
	if m.listFn != nil {
		return m.listFn(ctx, module, activeOnly)
	}
	return nil, nil
}

func TestCreateBlock_Validation(t *testing.T) {
	svc := impl.NewBlockService(newFakeStore(), &blockRepoMock{}, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  ratelimit.CreateBlockRequest
	}{
		{"missing module", ratelimit.CreateBlockRequest{TargetType: ratelimit.TargetUser, TargetValue: "u1", Reason: "r"}},
		{"missing reason", ratelimit.CreateBlockRequest{Module: "m", TargetType: ratelimit.TargetUser, TargetValue: "u1"}},
		{"negative duration", ratelimit.CreateBlockRequest{Module: "m", TargetType: ratelimit.TargetUser, TargetValue: "u1", Reason: "r", DurationMs: -1}},
		{"bad ip", ratelimit.CreateBlockRequest{Module: "m", TargetType: ratelimit.TargetIP, TargetValue: "999.1.2.3", Reason: "r"}},
		{"bad email", ratelimit.CreateBlockRequest{Module: "m", TargetType: ratelimit.TargetEmail, TargetValue: "not-an-email", Reason: "r"}},
		{"bad domain", ratelimit.CreateBlockRequest{Module: "m", TargetType: ratelimit.TargetDomain, TargetValue: "http://x.com", Reason: "r"}},
		{"unknown type", ratelimit.CreateBlockRequest{Module: "m", TargetType: "phone", TargetValue: "x", Reason: "r"}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateBlock(ctx, &tc.req); !errors.Is(err, ratelimit.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestCreateBlock_DomainNormalization(t *testing.T) {
	store := newFakeStore()
	svc := impl.NewBlockService(store, &blockRepoMock{}, nil)
	ctx := context.Background()

	for i, value := range []string{"*@Example.COM", "@example.com", "example.com"} {
		store.blocks = map[string]*ratelimit.ManualBlock{} // start clean each form
		b, err := svc.CreateBlock(ctx, &ratelimit.CreateBlockRequest{
			Module: "signup", TargetType: ratelimit.TargetDomain, TargetValue: value, Reason: "spam",
		})
		if err != nil {
			t.Fatalf("form %d (%q): %v", i, value, err)
		}
		if b.TargetValue != "example.com" {
			t.Fatalf("form %q normalized to %q, want example.com", value, b.TargetValue)
		}
	}
}

func TestCreateBlock_ConflictAndOverwrite(t *testing.T) {
	store := newFakeStore()
	svc := impl.NewBlockService(store, &blockRepoMock{}, nil)
	ctx := context.Background()

	first, err := svc.CreateBlock(ctx, &ratelimit.CreateBlockRequest{
		Module: "login", TargetType: ratelimit.TargetUser, TargetValue: "u1", Reason: "initial",
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.CreateBlock(ctx, &ratelimit.CreateBlockRequest{
		Module: "login", TargetType: ratelimit.TargetUser, TargetValue: "u1", Reason: "again",
	})
	if !errors.Is(err, ratelimit.ErrBlockExists) {
		t.Fatalf("expected ErrBlockExists, got %v", err)
	}

	replaced, err := svc.CreateBlock(ctx, &ratelimit.CreateBlockRequest{
		Module: "login", TargetType: ratelimit.TargetUser, TargetValue: "u1",
		Reason: "escalated", DurationMs: 60_000, Overwrite: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if replaced.ID != first.ID {
		t.Fatalf("overwrite must reuse the existing block id")
	}
	if !replaced.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("overwrite must keep the original created_at")
	}
	if replaced.Reason != "escalated" || replaced.ExpiresAt == nil {
		t.Fatalf("overwrite did not replace fields: %+v", replaced)
	}
}

func TestCreateBlock_DurationSetsExpiry(t *testing.T) {
	svc := impl.NewBlockService(newFakeStore(), &blockRepoMock{}, nil)

	b, err := svc.CreateBlock(context.Background(), &ratelimit.CreateBlockRequest{
		Module: "login", TargetType: ratelimit.TargetIP, TargetValue: "203.0.113.1",
		Reason: "abuse", DurationMs: 30_000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if b.ExpiresAt == nil {
		t.Fatalf("expected expiry for bounded block")
	}
	until := time.Until(*b.ExpiresAt)
	if until <= 0 || until > 31*time.Second {
		t.Fatalf("expiry out of range: %v", until)
	}
}

func TestRevokeBlock_NormalizesTarget(t *testing.T) {
	store := newFakeStore()
	svc := impl.NewBlockService(store, &blockRepoMock{}, nil)
	ctx := context.Background()

	if _, err := svc.CreateBlock(ctx, &ratelimit.CreateBlockRequest{
		Module: "signup", TargetType: ratelimit.TargetEmail, TargetValue: "bob@example.com", Reason: "spam",
	}); err != nil {
		t.Fatal(err)
	}

	if err := svc.RevokeBlock(ctx, "signup", ratelimit.TargetEmail, "BOB@Example.com", "admin"); err != nil {
		t.Fatal(err)
	}

	b, err := store.GetBlock(ctx, "signup", ratelimit.TargetEmail, "bob@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if b != nil {
		t.Fatalf("expected block to be revoked, still active: %+v", b)
	}
}

func TestListBlocks_Delegates(t *testing.T) {
	want := []*ratelimit.ManualBlock{{Module: "login"}}
	repo := &blockRepoMock{listFn: func(ctx context.Context, module string, activeOnly bool) ([]*ratelimit.ManualBlock, error) {
		if module != "login" || !activeOnly {
			t.Fatalf("unexpected args: %q %v", module, activeOnly)
		}
		return want, nil
	}}
	svc := impl.NewBlockService(newFakeStore(), repo, nil)

	got, err := svc.ListBlocks(context.Background(), "login", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected delegated result, got %d blocks", len(got))
	}
}
