package ratelimit

import (
	"fmt"
	"net"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TargetType names the identifier class a manual block applies to.
type TargetType string

const (
	TargetUser   TargetType = "user"
	TargetIP     TargetType = "ip"
	TargetEmail  TargetType = "email"
	TargetDomain TargetType = "domain"
)

// BlockState is the read-time state of a block; no transition job exists,
// expiry is computed from the timestamps.
type BlockState string

const (
	BlockActive  BlockState = "active"
	BlockExpired BlockState = "expired"
	BlockRevoked BlockState = "revoked"
)

// ManualBlock denies a target regardless of counter state. BlockedBy is nil for
// blocks the engine created automatically on a violation.
type ManualBlock struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Module      string     `json:"module" db:"module"`
	TargetType  TargetType `json:"target_type" db:"target_type"`
	TargetValue string     `json:"target_value" db:"target_value"`
	Reason      string     `json:"reason" db:"reason"`
	Notes       string     `json:"notes,omitempty" db:"notes"`
	BlockedBy   *string    `json:"blocked_by,omitempty" db:"blocked_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// StateAt computes the block state as of now.
func (b *ManualBlock) StateAt(now time.Time) BlockState {
	if b.RevokedAt != nil {
		return BlockRevoked
	}
	if b.ExpiresAt != nil && !now.Before(*b.ExpiresAt) {
		return BlockExpired
	}
	return BlockActive
}

// ActiveAt reports whether the block still denies requests as of now.
func (b *ManualBlock) ActiveAt(now time.Time) bool {
	return b.StateAt(now) == BlockActive
}

// CreateBlockRequest is the input to manual block creation.
type CreateBlockRequest struct {
	Module      string     `json:"module"`
	TargetType  TargetType `json:"target_type"`
	TargetValue string     `json:"target_value"`
	Reason      string     `json:"reason"`
	Notes       string     `json:"notes,omitempty"`
	BlockedBy   *string    `json:"blocked_by,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`
	Overwrite   bool       `json:"overwrite,omitempty"`
}

// Bare domain labels: no scheme, no @, at least one dot.
var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// NormalizeTarget validates value for the given target type and returns its
// canonical stored form. Emails are lowercased; domains are stripped of any
// "*@" or "@" prefix before validation, so "*@Example.COM", "@example.com" and
// "example.com" all normalize to "example.com".
func NormalizeTarget(targetType TargetType, value string) (string, error) {
	v := strings.TrimSpace(value)
	switch targetType {
	case TargetUser:
		if v == "" {
			return "", fmt.Errorf("%w: user id is required", ErrValidation)
		}
		return v, nil
	case TargetIP:
		if net.ParseIP(v) == nil {
			return "", fmt.Errorf("%w: %q is not a valid IPv4 or IPv6 address", ErrValidation, v)
		}
		return v, nil
	case TargetEmail:
		v = strings.ToLower(v)
		if _, err := mail.ParseAddress(v); err != nil {
			return "", fmt.Errorf("%w: %q is not a valid email address", ErrValidation, v)
		}
		return v, nil
	case TargetDomain:
		v = strings.ToLower(v)
		v = strings.TrimPrefix(v, "*@")
		v = strings.TrimPrefix(v, "@")
		if !domainPattern.MatchString(v) {
			return "", fmt.Errorf("%w: %q is not a valid domain", ErrValidation, v)
		}
		return v, nil
	default:
		return "", fmt.Errorf("%w: unknown target type %q", ErrValidation, targetType)
	}
}

// EmailDomain extracts the bare domain of an email address, or "" when the
// address has no usable domain part.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
