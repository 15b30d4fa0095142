// Package settings implements the write surface of the configuration
// engine: defining keys, ensuring channels, creating profiles and
// assigning values, with lock enforcement at write time. Every successful
// write triggers a re-prime of the affected scope.
package settings

import "errors"

// Common settings errors - sentinel errors callers check with errors.Is().
var (
	// ErrLockedByAncestor indicates a write was rejected because a less
	// specific profile already locked the key. Surfaced to the caller as
	// "this setting is locked upstream"; not retried automatically.
	// API layer should map this to HTTP 409 Conflict.
	ErrLockedByAncestor = errors.New("key is locked by an ancestor profile")
)
