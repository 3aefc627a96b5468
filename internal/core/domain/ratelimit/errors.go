package ratelimit

import "errors"

var (
	// ErrValidation marks a malformed target value, duration or policy field.
	ErrValidation = errors.New("validation error")
	// ErrBlockExists is returned when an active block already covers the target
	// and the caller did not request an overwrite.
	ErrBlockExists = errors.New("an active block already exists for this target")
	// ErrStoreUnavailable marks a counter/block store that could not be reached.
	ErrStoreUnavailable = errors.New("limit store unavailable")
	// ErrConfigUnavailable marks a configuration source that could not be refreshed.
	ErrConfigUnavailable = errors.New("rate limit configuration unavailable")
	// ErrEventPersistFailed marks an audit event that could not be written.
	// It is logged and swallowed on the decision path.
	ErrEventPersistFailed = errors.New("failed to persist rate limit event")
)
