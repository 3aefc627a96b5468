package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/codeweberdotcom/limitguard/internal/core/ports"
	"github.com/codeweberdotcom/limitguard/internal/infrastructure/db"
)

type eventRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

// NewEventRepository creates the append-only event store.
func NewEventRepository(database *db.Database, logger *logrus.Logger) ports.EventRepository {
	return &eventRepository{db: database, logger: logger}
}

// Insert appends one audit record.
func (r *eventRepository) Insert(ctx context.Context, event *ratelimit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var metadataJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO rate_limit_events (
			id, module, key, event_type, mode, target_type, target_id,
			ip_address, email, environment, metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)`

	_, err = r.db.DB.ExecContext(ctx, query,
		event.ID,
		event.Module,
		event.Key,
		event.EventType,
		event.Mode,
		event.TargetType,
		event.TargetID,
		event.IPAddress,
		event.Email,
		event.Environment,
		metadataJSON,
		event.CreatedAt,
	)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"module": event.Module, "event_type": event.EventType}).WithError(err).Error("db: failed to insert rate limit event")
		}
		return err
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"module": event.Module, "event_type": event.EventType, "key": event.Key}).Debug("db: rate limit event inserted")
	}
	return nil
}

// List pages through events newest-first. The cursor pins the last-seen
// (created_at, id) tuple and the query uses a strict tuple comparison, so
// concurrent inserts cannot duplicate or skip already-iterated items.
func (r *eventRepository) List(ctx context.Context, filter *ratelimit.EventFilter) ([]*ratelimit.Event, string, error) {
	query, args, err := r.buildListQuery(filter)
	if err != nil {
		return nil, "", err
	}

	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"query": query}).WithError(err).Error("db: failed to execute event list query")
		}
		return nil, "", err
	}
	defer rows.Close()

	var events []*ratelimit.Event
	for rows.Next() {
		e := &ratelimit.Event{}
		var metadataJSON sql.NullString
		err := rows.Scan(
			&e.ID,
			&e.Module,
			&e.Key,
			&e.EventType,
			&e.Mode,
			&e.TargetType,
			&e.TargetID,
			&e.IPAddress,
			&e.Email,
			&e.Environment,
			&metadataJSON,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, "", err
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			var md map[string]any
			if err := json.Unmarshal([]byte(metadataJSON.String), &md); err == nil {
				e.Metadata = md
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if filter != nil && filter.Limit > 0 && len(events) == filter.Limit {
		last := events[len(events)-1]
		nextCursor = ratelimit.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return events, nextCursor, nil
}

func (r *eventRepository) buildListQuery(filter *ratelimit.EventFilter) (string, []interface{}, error) {
	query := `
		SELECT id, module, key, event_type, mode, target_type, target_id,
		       ip_address, email, environment, metadata, created_at
		FROM rate_limit_events`

	var conditions []string
	var args []interface{}
	argIndex := 1

	add := func(cond string, vals ...interface{}) {
		for range vals {
			cond = strings.Replace(cond, "?", "$"+strconv.Itoa(argIndex), 1)
			argIndex++
		}
		conditions = append(conditions, cond)
		args = append(args, vals...)
	}

	if filter != nil {
		if filter.Module != "" {
			add("module = ?", filter.Module)
		}
		if filter.EventType != "" {
			add("event_type = ?", string(filter.EventType))
		}
		if filter.Mode != "" {
			add("mode = ?", string(filter.Mode))
		}
		if filter.Key != "" {
			add("key = ?", filter.Key)
		}
		if filter.Search != "" {
			pattern := "%" + filter.Search + "%"
			add("(key ILIKE ? OR email ILIKE ? OR ip_address ILIKE ?)", pattern, pattern, pattern)
		}
		if filter.From != nil {
			add("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			add("created_at <= ?", *filter.To)
		}
		if filter.Environment != "" {
			add("environment = ?", string(filter.Environment))
		} else if filter.ExcludeTest {
			add("environment <> ?", string(ratelimit.EnvTest))
		}
		if filter.Cursor != "" {
			cursor, err := ratelimit.DecodeCursor(filter.Cursor)
			if err != nil {
				return "", nil, err
			}
			add("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter != nil && filter.Limit > 0 {
		query += " LIMIT $" + strconv.Itoa(argIndex)
		args = append(args, filter.Limit)
	}
	return query, args, nil
}
