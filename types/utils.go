package types

import "reflect"

// Name returns the bare (unqualified, unexported-package-prefix-free) type name of v,
// dereferencing pointers until it reaches the pointed-to type. Returns "<nil>" for a nil interface.
func Name(v any) string {
	if v == nil {
		return "<nil>"
	}

	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t.Name()
}

// Zero returns the zero value of T.
func Zero[T any]() T {
	var zero T
	return zero
}
