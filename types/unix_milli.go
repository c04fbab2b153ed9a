package types

import (
	"encoding"
	"encoding/json"
	"strconv"
	"time"
)

// UnixMilli is a time.Time that (de-)serializes to/from a Unix timestamp in milliseconds rather than
// RFC 3339. A zero UnixMilli marshals to JSON null and to an empty string in text contexts.
type UnixMilli time.Time

// millis returns t as the number of milliseconds elapsed since the Unix epoch.
func (t UnixMilli) millis() int64 {
	return time.Time(t).UnixMilli()
}

// MarshalJSON implements the json.Marshaler interface.
// Supports JSON null for a zero UnixMilli.
func (t UnixMilli) MarshalJSON() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte("null"), nil
	}

	return MarshalJSON(t.millis())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
// Supports JSON null.
func (t *UnixMilli) UnmarshalJSON(data []byte) error {
	if string(data) == "null" || len(data) == 0 {
		return nil
	}

	var ms int64
	if err := UnmarshalJSON(data, &ms); err != nil {
		return err
	}

	*t = UnixMilli(time.UnixMilli(ms))

	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
// A zero UnixMilli marshals to an empty string.
func (t UnixMilli) MarshalText() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte{}, nil
	}

	return []byte(strconv.FormatInt(t.millis(), 10)), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
// An empty string unmarshals to a zero UnixMilli.
func (t *UnixMilli) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*t = UnixMilli{}
		return nil
	}

	ms, err := strconv.ParseInt(string(text), 10, 64)
	if err != nil {
		return err
	}

	*t = UnixMilli(time.UnixMilli(ms))

	return nil
}

// Assert interface compliance.
var (
	_ json.Marshaler           = UnixMilli{}
	_ json.Unmarshaler         = (*UnixMilli)(nil)
	_ encoding.TextMarshaler   = UnixMilli{}
	_ encoding.TextUnmarshaler = (*UnixMilli)(nil)
)
