// Package resolution implements the layered configuration resolver: the
// walk over profile priority, profile inheritance and channel inheritance
// that turns a (key, workspace, channel) triple into an effective value.
package resolution

import "errors"

// Common resolution errors - sentinel errors callers check with errors.Is().
var (
	// ErrUnknownKey indicates the requested key code has no registry entry.
	// There is no default to fall back to, so this propagates to the caller.
	// API layer should map this to HTTP 404 Not Found.
	ErrUnknownKey = errors.New("unknown configuration key")
)
