package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding"
	"fmt"

	"github.com/google/uuid"
)

// UUID is like uuid.UUID, but marshals itself binarily (not like xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx) in SQL context.
type UUID struct {
	uuid.UUID
}

// Value implements driver.Valuer.
func (u UUID) Value() (driver.Value, error) {
	return u.UUID[:], nil
}

// Scan implements sql.Scanner, round-tripping primary/foreign key UUID columns read back from the
// database by the schema reconciler's entity contracts (database.Selectable).
func (u *UUID) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		parsed, err := uuid.FromBytes(v)
		if err != nil {
			// lib/pq renders uuid columns as their text form, not raw bytes; fall back to Parse.
			parsed, err = uuid.Parse(string(v))
			if err != nil {
				return fmt.Errorf("uuid.Scan: %w", err)
			}
		}
		u.UUID = parsed
		return nil
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return fmt.Errorf("uuid.Scan: %w", err)
		}
		u.UUID = parsed
		return nil
	case nil:
		u.UUID = uuid.UUID{}
		return nil
	default:
		return fmt.Errorf("uuid.Scan: cannot scan type %T into UUID", src)
	}
}

// Assert interface compliance.
var (
	_ encoding.TextUnmarshaler = (*UUID)(nil)
	_ driver.Valuer            = UUID{}
	_ driver.Valuer            = (*UUID)(nil)
	_ sql.Scanner              = (*UUID)(nil)
)
