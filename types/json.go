package types

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// MarshalJSON marshals v, wrapping any error with additional context.
//
// This is used by the nullable types of this package so that a marshaling failure can be told apart from the
// nullability handling surrounding the call.
func MarshalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "can't marshal JSON")
	}

	return b, nil
}

// UnmarshalJSON unmarshals data into v, wrapping any error with additional context.
func UnmarshalJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "can't unmarshal JSON")
	}

	return nil
}
