package ports

import (
	"context"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
)

// EventRepository persists the append-only audit trail.
type EventRepository interface {
	Insert(ctx context.Context, event *ratelimit.Event) error
	// List returns a page ordered by (created_at, id) descending plus the
	// cursor for the next page ("" when the stream is exhausted).
	List(ctx context.Context, filter *ratelimit.EventFilter) ([]*ratelimit.Event, string, error)
}

// EventService is the recorder in front of the audit trail. Record failures
// must never abort the evaluation flow that triggered them; callers on the
// decision path log and continue.
type EventService interface {
	Record(ctx context.Context, input *ratelimit.EventInput) error
	List(ctx context.Context, filter *ratelimit.EventFilter) ([]*ratelimit.Event, string, error)
}
