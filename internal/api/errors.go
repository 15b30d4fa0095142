package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/service/resolution"
	"github.com/phrazzld/strata/internal/service/settings"
	"github.com/phrazzld/strata/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, resolution.ErrUnknownKey),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, settings.ErrLockedByAncestor),
		errors.Is(err, store.ErrProfileExists),
		errors.Is(err, store.ErrKeyTypeMismatch):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValueCastFailed),
		errors.Is(err, domain.ErrInvalidKeyType),
		errors.Is(err, domain.ErrInvalidDefault),
		errors.Is(err, domain.ErrInvalidValueJSON):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, resolution.ErrUnknownKey):
		return "Unknown configuration key"

	case errors.Is(err, store.ErrKeyNotFound):
		return "Configuration key not found"

	case errors.Is(err, store.ErrChannelNotFound):
		return "Channel not found"

	case errors.Is(err, store.ErrProfileNotFound):
		return "Profile not found"

	case errors.Is(err, store.ErrValueNotFound):
		return "Value not found"

	case errors.Is(err, store.ErrSnapshotNotFound):
		return "Snapshot not found"

	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, settings.ErrLockedByAncestor):
		return "This setting is locked upstream"

	case errors.Is(err, store.ErrProfileExists):
		return "A profile already exists at this scope and priority"

	case errors.Is(err, store.ErrKeyTypeMismatch):
		return "Key is already defined with a different type"

	case errors.Is(err, domain.ErrValueCastFailed):
		return "Value does not match the key's type"

	case errors.Is(err, domain.ErrInvalidKeyType):
		return "Invalid value type"

	case errors.Is(err, domain.ErrInvalidDefault),
		errors.Is(err, domain.ErrInvalidValueJSON):
		return "Value must be valid JSON"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Check if this is likely a validation error message
	if strings.Contains(errMsg, "Field validation") {
		// Extract the field name and validation tag
		// Example format: "Key: 'SetValueRequest.Key' Error:Field validation for 'Key' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
