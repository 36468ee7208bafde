package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Optional marks a patch field as present or absent. The zero value is absent.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Get returns the value and whether it was set.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Set
}

// ApplyTo copies the value into dst when set.
func (o Optional[T]) ApplyTo(dst *T) {
	if o.Set {
		*dst = o.Value
	}
}

// UnmarshalJSON is only invoked for keys present in the payload, so reaching it
// means the field was supplied. An explicit null decodes into the zero value.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Value = zero
		return nil
	}
	if t, ok := any(&o.Value).(*time.Time); ok {
		return unmarshalTime(data, t)
	}
	return json.Unmarshal(data, &o.Value)
}

// unmarshalTime accepts a bare calendar date as midnight UTC alongside RFC 3339.
func unmarshalTime(data []byte, t *time.Time) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		*t = d
		return nil
	}
	return t.UnmarshalJSON(data)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalYAML lets fixture files use the same patch types as the API.
func (o *Optional[T]) UnmarshalYAML(unmarshal func(interface{}) error) error {
	o.Set = true
	return unmarshal(&o.Value)
}
