package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON persists V in a JSONB column and serialises transparently in API payloads.
type JSON[T any] struct {
	V T
}

// NewJSON wraps v.
func NewJSON[T any](v T) JSON[T] { return JSON[T]{V: v} }

// Value marshals the wrapped value for persistence.
func (j JSON[T]) Value() (driver.Value, error) {
	data, err := json.Marshal(j.V)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", j.V, err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column. NULL and empty payloads reset to the zero value.
func (j *JSON[T]) Scan(value interface{}) error {
	var zero T
	if value == nil {
		j.V = zero
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %T", value, j.V)
	}
	if len(data) == 0 {
		j.V = zero
		return nil
	}
	if err := json.Unmarshal(data, &j.V); err != nil {
		return fmt.Errorf("unmarshal %T: %w", j.V, err)
	}
	return nil
}

func (j JSON[T]) MarshalJSON() ([]byte, error) { return json.Marshal(j.V) }

func (j *JSON[T]) UnmarshalJSON(data []byte) error { return json.Unmarshal(data, &j.V) }
