package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

// Binary adds hex string (de-)serialization to []byte for use in SQL and JSON contexts.
type Binary []byte

// Valid returns whether b carries any bytes. A nil or empty Binary is considered invalid, matching
// SQL NULL semantics for the other nullable types of this package.
func (b Binary) Valid() bool {
	return len(b) > 0
}

// String returns the lower-case hex encoding of b.
func (b Binary) String() string {
	return hex.EncodeToString(b)
}

// MarshalJSON implements the json.Marshaler interface.
// Supports JSON null for a nil or empty Binary.
func (b Binary) MarshalJSON() ([]byte, error) {
	if !b.Valid() {
		return []byte("null"), nil
	}

	return MarshalJSON(b.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
// Supports JSON null.
func (b *Binary) UnmarshalJSON(data []byte) error {
	if string(data) == "null" || len(data) == 0 {
		return nil
	}

	var s string
	if err := UnmarshalJSON(data, &s); err != nil {
		return err
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return err
	}

	*b = decoded

	return nil
}

// Scan implements the sql.Scanner interface.
// Supports SQL NULL.
func (b *Binary) Scan(src interface{}) error {
	if src == nil {
		*b = nil
		return nil
	}

	v, ok := src.([]byte)
	if !ok {
		return errors.Errorf("bad []byte type assertion from %#v", src)
	}

	*b = append(Binary(nil), v...)

	return nil
}

// Value implements the driver.Valuer interface.
// Supports SQL NULL.
func (b Binary) Value() (driver.Value, error) {
	if !b.Valid() {
		return nil, nil
	}

	return []byte(b), nil
}

// Assert interface compliance.
var (
	_ json.Marshaler   = Binary{}
	_ json.Unmarshaler = (*Binary)(nil)
	_ sql.Scanner      = (*Binary)(nil)
	_ driver.Valuer    = Binary{}
)
