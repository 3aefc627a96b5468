package ratelimit

import (
	"fmt"
	"time"
)

// Mode controls what happens when a key exceeds its limit.
type Mode string

const (
	// ModeMonitor records violations but never denies a request.
	ModeMonitor Mode = "monitor"
	// ModeEnforce denies violating requests and creates a temporary block.
	ModeEnforce Mode = "enforce"
)

// Config is the per-module rate limit policy.
type Config struct {
	Module        string        `json:"module" db:"module"`
	MaxRequests   int           `json:"max_requests" db:"max_requests"`
	Window        time.Duration `json:"window_ms" db:"window_ms"`
	BlockDuration time.Duration `json:"block_ms" db:"block_ms"`
	Mode          Mode          `json:"mode" db:"mode"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

func (c *Config) Validate() error {
	if c.Module == "" {
		return fmt.Errorf("%w: module is required", ErrValidation)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("%w: max_requests must be positive", ErrValidation)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window_ms must be positive", ErrValidation)
	}
	if c.BlockDuration < 0 {
		return fmt.Errorf("%w: block_ms must not be negative", ErrValidation)
	}
	if c.Mode != ModeMonitor && c.Mode != ModeEnforce {
		return fmt.Errorf("%w: mode must be %q or %q", ErrValidation, ModeMonitor, ModeEnforce)
	}
	return nil
}

// UpdateConfigRequest carries a partial policy update; nil fields are left untouched.
type UpdateConfigRequest struct {
	MaxRequests   *int           `json:"max_requests,omitempty"`
	Window        *time.Duration `json:"window_ms,omitempty"`
	BlockDuration *time.Duration `json:"block_ms,omitempty"`
	Mode          *Mode          `json:"mode,omitempty"`
}

// Apply merges the partial update into a copy of cfg.
func (r *UpdateConfigRequest) Apply(cfg Config) Config {
	if r.MaxRequests != nil {
		cfg.MaxRequests = *r.MaxRequests
	}
	if r.Window != nil {
		cfg.Window = *r.Window
	}
	if r.BlockDuration != nil {
		cfg.BlockDuration = *r.BlockDuration
	}
	if r.Mode != nil {
		cfg.Mode = *r.Mode
	}
	return cfg
}

// Counter is the sliding-window state for one (module, key) pair.
// It is owned by the stores; callers only ever see it through Increment/Peek.
type Counter struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}
