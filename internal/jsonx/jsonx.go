// Package jsonx holds JSON helpers for request bodies: fields whose presence
// matters and the loose timestamp formats the admin UI sends.
package jsonx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Optional records whether a field was present in the body. A present null
// leaves Value nil with Set true.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some builds a present, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null builds a present null Optional.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// Present reports a set, non-null value.
func (o Optional[T]) Present() bool {
	return o.Set && o.Value != nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Time accepts RFC 3339 as well as the MySQL-style and HTML date/datetime-local
// layouts. Zone-less values are read in the process location (TZ). An empty
// string decodes to the zero time, which the form inputs send for "no date".
type Time struct {
	time.Time
}

// ParseTime parses s with the accepted layouts.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if layout == time.RFC3339Nano {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if strings.TrimSpace(s) == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time)
}

// Ptr returns nil for a nil or zero receiver, else the wrapped time.
func (t *Time) Ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// OptionalTime unwraps a present, non-empty date.
func OptionalTime(o Optional[Time]) (time.Time, bool) {
	if !o.Present() || o.Value.IsZero() {
		return time.Time{}, false
	}
	return o.Value.Time, true
}
