package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("some error"),
			expected: false,
		},
		{
			name:     "wrapped generic error",
			err:      fmt.Errorf("failed to do something: %w", errors.New("some error")),
			expected: false,
		},
		{
			name:     "ErrNotFound",
			err:      ErrNotFound,
			expected: true,
		},
		{
			name:     "wrapped ErrNotFound",
			err:      fmt.Errorf("failed to do something: %w", ErrNotFound),
			expected: true,
		},
		{
			name:     "ErrKeyNotFound",
			err:      ErrKeyNotFound,
			expected: true,
		},
		{
			name:     "wrapped ErrKeyNotFound",
			err:      fmt.Errorf("failed to find key: %w", ErrKeyNotFound),
			expected: true,
		},
		{
			name:     "ErrChannelNotFound",
			err:      ErrChannelNotFound,
			expected: true,
		},
		{
			name:     "ErrProfileNotFound",
			err:      ErrProfileNotFound,
			expected: true,
		},
		{
			name:     "ErrValueNotFound",
			err:      ErrValueNotFound,
			expected: true,
		},
		{
			name:     "ErrSnapshotNotFound",
			err:      ErrSnapshotNotFound,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFoundError(tt.err); got != tt.expected {
				t.Errorf("IsNotFoundError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsDuplicateError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("some error"),
			expected: false,
		},
		{
			name:     "ErrDuplicate",
			err:      ErrDuplicate,
			expected: true,
		},
		{
			name:     "wrapped ErrDuplicate",
			err:      fmt.Errorf("failed to create: %w", ErrDuplicate),
			expected: true,
		},
		{
			name:     "ErrProfileExists",
			err:      ErrProfileExists,
			expected: true,
		},
		{
			name:     "wrapped ErrProfileExists",
			err:      fmt.Errorf("failed to create profile: %w", ErrProfileExists),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDuplicateError(tt.err); got != tt.expected {
				t.Errorf("IsDuplicateError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStoreError(t *testing.T) {
	originalErr := errors.New("database connection failed")
	storeErr := NewStoreError("profile", "create", "database error", originalErr)

	expectedErrorString := "create operation on profile failed: database error: database connection failed"
	if got := storeErr.Error(); got != expectedErrorString {
		t.Errorf("Error() = %q, want %q", got, expectedErrorString)
	}

	if got := storeErr.Unwrap(); got != originalErr {
		t.Errorf("Unwrap() = %v, want %v", got, originalErr)
	}

	if !errors.Is(storeErr, originalErr) {
		t.Error("errors.Is should match the wrapped error")
	}

	var target *StoreError
	if !errors.As(storeErr, &target) {
		t.Error("errors.As should match *StoreError")
	}
}

func TestStoreError_WithoutWrappedError(t *testing.T) {
	storeErr := &StoreError{
		Entity:    "key",
		Operation: "delete",
		Message:   "validation failed",
	}

	expected := "delete operation on key failed: validation failed"
	if got := storeErr.Error(); got != expected {
		t.Errorf("Error() = %q, want %q", got, expected)
	}
}
