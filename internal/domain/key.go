package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// ValueType identifies how a key's stored value is typed and cast.
type ValueType string

// Supported value types for configuration keys.
const (
	TypeString ValueType = "string"
	TypeInt    ValueType = "int"
	TypeBool   ValueType = "bool"
	TypeFloat  ValueType = "float"
	TypeJSON   ValueType = "json"
	TypeArray  ValueType = "array"
)

// Common validation errors for Key
var (
	ErrEmptyKeyID      = errors.New("key ID cannot be empty")
	ErrEmptyKeyCode    = errors.New("key code cannot be empty")
	ErrInvalidKeyType  = errors.New("invalid key value type")
	ErrInvalidDefault  = errors.New("key default value must be valid JSON")
	ErrValueCastFailed = errors.New("value cannot be cast to the key's type")
)

// Valid reports whether t is one of the supported value types.
func (t ValueType) Valid() bool {
	switch t {
	case TypeString, TypeInt, TypeBool, TypeFloat, TypeJSON, TypeArray:
		return true
	}
	return false
}

// Key is a named, typed configuration slot. Keys are defined once by
// schema/seed code and referenced by every stored value; the code is
// globally unique. Sensitive keys are excluded from plaintext exports
// unless explicitly requested.
type Key struct {
	ID           uuid.UUID       `json:"id"`
	Code         string          `json:"code"`
	Type         ValueType       `json:"type"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	DefaultValue json.RawMessage `json:"default_value"`
	IsSensitive  bool            `json:"is_sensitive"`
	ParentKeyID  *uuid.UUID      `json:"parent_key_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewKey creates a new Key with the given code, type and default value.
// It generates a new UUID for the key ID and sets the timestamps.
// Returns an error if validation fails.
func NewKey(code string, valueType ValueType, category string, defaultValue json.RawMessage) (*Key, error) {
	key := &Key{
		ID:           uuid.New(),
		Code:         code,
		Type:         valueType,
		Category:     category,
		DefaultValue: defaultValue,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if err := key.Validate(); err != nil {
		return nil, err
	}

	return key, nil
}

// Validate checks if the Key has valid data.
// Returns an error if any field fails validation.
func (k *Key) Validate() error {
	if k.ID == uuid.Nil {
		return ErrEmptyKeyID
	}

	if k.Code == "" {
		return ErrEmptyKeyCode
	}

	if !k.Type.Valid() {
		return ErrInvalidKeyType
	}

	if len(k.DefaultValue) > 0 {
		var js json.RawMessage
		if err := json.Unmarshal(k.DefaultValue, &js); err != nil {
			return ErrInvalidDefault
		}
	}

	return nil
}

// CastValue decodes a JSON-encoded raw value and casts it according to the
// given value type. Values are stored JSON-encoded regardless of type, so
// this is the single place a raw byte slice becomes a typed Go value.
func CastValue(t ValueType, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValueCastFailed, err)
	}

	switch t {
	case TypeString:
		v, err := cast.ToStringE(decoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValueCastFailed, err)
		}
		return v, nil
	case TypeInt:
		v, err := cast.ToInt64E(decoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValueCastFailed, err)
		}
		return v, nil
	case TypeBool:
		v, err := cast.ToBoolE(decoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValueCastFailed, err)
		}
		return v, nil
	case TypeFloat:
		v, err := cast.ToFloat64E(decoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValueCastFailed, err)
		}
		return v, nil
	case TypeArray:
		v, err := cast.ToSliceE(decoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValueCastFailed, err)
		}
		return v, nil
	case TypeJSON:
		// Arbitrary JSON passes through as decoded.
		return decoded, nil
	default:
		return nil, ErrInvalidKeyType
	}
}
