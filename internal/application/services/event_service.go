package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/codeweberdotcom/limitguard/internal/core/ports"
)

const (
	defaultEventPageSize = 50
	maxEventPageSize     = 200
)

// EventService is the recorder in front of the append-only audit trail.
type EventService struct {
	repo   ports.EventRepository
	logger *logrus.Logger
}

func NewEventService(repo ports.EventRepository, logger *logrus.Logger) *EventService {
	return &EventService{repo: repo, logger: logger}
}

// Record persists one audit event. The error is returned for observability,
// wrapped as ErrEventPersistFailed; decision-path callers log and continue.
func (s *EventService) Record(ctx context.Context, input *ratelimit.EventInput) error {
	event := &ratelimit.Event{
		ID:          uuid.New(),
		Module:      input.Module,
		Key:         input.Key,
		EventType:   input.EventType,
		Mode:        input.Mode,
		TargetType:  input.TargetType,
		TargetID:    input.TargetID,
		IPAddress:   input.IPAddress,
		Email:       input.Email,
		Environment: input.Environment,
		Metadata:    input.Metadata,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.Insert(ctx, event); err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"module": input.Module, "event_type": input.EventType}).WithError(err).Error("event recorder: insert failed")
		}
		return fmt.Errorf("%w: %v", ratelimit.ErrEventPersistFailed, err)
	}
	return nil
}

// List returns one page of events plus the cursor for the next page. The page
// size is clamped server-side. Classification fields (target type/id, ip,
// email) are returned as stored; redaction for non-privileged callers is the
// reading surface's responsibility.
func (s *EventService) List(ctx context.Context, filter *ratelimit.EventFilter) ([]*ratelimit.Event, string, error) {
	if filter == nil {
		filter = &ratelimit.EventFilter{}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultEventPageSize
	}
	if filter.Limit > maxEventPageSize {
		filter.Limit = maxEventPageSize
	}
	if filter.Cursor != "" {
		if _, err := ratelimit.DecodeCursor(filter.Cursor); err != nil {
			return nil, "", err
		}
	}
	return s.repo.List(ctx, filter)
}
