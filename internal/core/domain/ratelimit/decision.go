package ratelimit

import "time"

// RequestContext carries the identity data the caller resolved for the request.
// The engine performs no authentication; it only classifies what it is given.
type RequestContext struct {
	UserID      string      `json:"user_id,omitempty"`
	Email       string      `json:"email,omitempty"`
	IPAddress   string      `json:"ip_address,omitempty"`
	KeyType     TargetType  `json:"key_type"`
	Environment Environment `json:"environment,omitempty"`
	// Increment=false evaluates without mutating the counter (dry-run preview).
	Increment bool `json:"increment"`
}

// Decision is the result of a limit evaluation. CheckLimit always returns a
// decision; infrastructure failures resolve through the fail-open policy
// rather than an error.
type Decision struct {
	Allowed      bool       `json:"allowed"`
	Remaining    int        `json:"remaining"`
	ResetTime    time.Time  `json:"reset_time"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}
