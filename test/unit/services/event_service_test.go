package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	impl "github.com/codeweberdotcom/limitguard/internal/application/services"
	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
)

type eventRepoMock struct {
	insertFn func(ctx context.Context, event *ratelimit.Event) error
	listFn   func(ctx context.Context, filter *ratelimit.EventFilter) ([]*ratelimit.Event, string, error)
}

func (m *eventRepoMock) Insert(ctx context.Context, event *ratelimit.Event) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, event)
	}
	return nil
}

func (m *eventRepoMock) List(ctx context.Context, filter *ratelimit.EventFilter) ([]*ratelimit.Event, string, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, "", nil
}

func TestRecord_FillsIdentityAndTimestamp(t *testing.T) {
	var inserted *ratelimit.Event
	repo := &eventRepoMock{insertFn: func(ctx context.Context, event *ratelimit.Event) error {
		inserted = event
		return nil
	}}
	svc := impl.NewEventService(repo, nil)

	err := svc.Record(context.Background(), &ratelimit.EventInput{
		Module: "login", Key: "alice", EventType: ratelimit.EventWarning,
		Mode: ratelimit.ModeMonitor, Environment: ratelimit.EnvProduction,
	})
	if err != nil {
		t.Fatal(err)
	}
	if inserted.ID == uuid.Nil {
		t.Fatalf("expected generated event id")
	}
	if inserted.CreatedAt.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestRecord_WrapsPersistFailure(t *testing.T) {
	repo := &eventRepoMock{insertFn: func(ctx context.Context, event *ratelimit.Event) error {
		return errors.New("db down")
	}}
	svc := impl.NewEventService(repo, nil)

	err := svc.Record(context.Background(), &ratelimit.EventInput{Module: "login", EventType: ratelimit.EventBlock})
	if !errors.Is(err, ratelimit.ErrEventPersistFailed) {
		t.Fatalf("expected ErrEventPersistFailed, got %v", err)
	}
}

func TestList_ClampsPageSize(t *testing.T) {
	var seen []int
	repo := &eventRepoMock{listFn: func(ctx context.Context, filter *ratelimit.EventFilter) ([]*ratelimit.Event, string, error) {
		seen = append(seen, filter.Limit)
		return nil, "", nil
	}}
	svc := impl.NewEventService(repo, nil)

	ctx := context.Background()
	if _, _, err := svc.List(ctx, &ratelimit.EventFilter{}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.List(ctx, &ratelimit.EventFilter{Limit: 10_000}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != 50 || seen[1] != 200 {
		t.Fatalf("limits not clamped to [50, 200]: %v", seen)
	}
}

func TestList_RejectsMalformedCursor(t *testing.T) {
	svc := impl.NewEventService(&eventRepoMock{}, nil)

	_, _, err := svc.List(context.Background(), &ratelimit.EventFilter{Cursor: "not-a-cursor"})
	if !errors.Is(err, ratelimit.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCursor_Roundtrip(t *testing.T) {
	orig := ratelimit.Cursor{CreatedAt: time.Now().UTC().Truncate(time.Microsecond), ID: uuid.New()}

	decoded, err := ratelimit.DecodeCursor(orig.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if !decoded.CreatedAt.Equal(orig.CreatedAt) || decoded.ID != orig.ID {
		t.Fatalf("roundtrip mismatch: %+v != %+v", decoded, orig)
	}
}
