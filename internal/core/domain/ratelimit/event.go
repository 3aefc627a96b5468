package ratelimit

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType distinguishes monitor-mode warnings from actual denials.
type EventType string

const (
	EventWarning EventType = "warning"
	EventBlock   EventType = "block"
)

// Environment tags events so test traffic can be filtered out of reports.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvTest       Environment = "test"
)

// Event is one immutable audit record. Events are append-only and are read
// back through cursor pagination; they are never updated.
type Event struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	Module      string         `json:"module" db:"module"`
	Key         string         `json:"key" db:"key"`
	EventType   EventType      `json:"event_type" db:"event_type"`
	Mode        Mode           `json:"mode" db:"mode"`
	TargetType  TargetType     `json:"target_type" db:"target_type"`
	TargetID    string         `json:"target_id" db:"target_id"`
	IPAddress   string         `json:"ip_address,omitempty" db:"ip_address"`
	Email       string         `json:"email,omitempty" db:"email"`
	Environment Environment    `json:"environment" db:"environment"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// EventInput is what callers hand to the recorder; id and timestamp are filled in.
type EventInput struct {
	Module      string
	Key         string
	EventType   EventType
	Mode        Mode
	TargetType  TargetType
	TargetID    string
	IPAddress   string
	Email       string
	Environment Environment
	Metadata    map[string]any
}

// EventFilter narrows a paginated event query. Limit is clamped server-side.
type EventFilter struct {
	Module      string       `query:"module"`
	EventType   EventType    `query:"event_type"`
	Mode        Mode         `query:"mode"`
	Key         string       `query:"key"`
	Search      string       `query:"search"`
	From        *time.Time   `query:"from"`
	To          *time.Time   `query:"to"`
	ExcludeTest bool         `query:"exclude_test"`
	Environment Environment  `query:"environment"`
	Limit       int          `query:"limit"`
	Cursor      string       `query:"cursor"`
}

// Cursor pins pagination to the last-seen (created_at, id) tuple so that
// concurrent inserts cannot duplicate or skip already-iterated items.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        uuid.UUID `json:"id"`
}

// Encode returns the opaque wire form of the cursor.
func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses an opaque cursor produced by Encode.
func DecodeCursor(s string) (Cursor, error) {
	var c Cursor
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	if c.CreatedAt.IsZero() || c.ID == uuid.Nil {
		return c, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	return c, nil
}
