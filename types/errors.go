package types

import "github.com/pkg/errors"

// CantParseInt64 wraps err, indicating that text cannot be parsed into an int64.
func CantParseInt64(err error, text string) error {
	return errors.Wrapf(err, "can't parse %q as int64", text)
}

// CantParseUint64 wraps err, indicating that text cannot be parsed into a uint64.
func CantParseUint64(err error, text string) error {
	return errors.Wrapf(err, "can't parse %q as uint64", text)
}
