// Package sqlbuf implements the append-only, deduplicating parameter buffer that
// every statement builder in database binds its "$1..$N" placeholders against.
package sqlbuf

import "fmt"

// Buffer is an ordered, deduplicating sequence of parameter values.
//
// Push is O(n) by design: typical statements bind well under 30 parameters, so a
// linear equality scan is cheaper and simpler than a map for the sizes this library
// actually sees.
type Buffer struct {
	values []string
	empty  bool
}

// New returns an empty, mutable Buffer.
func New() *Buffer {
	return &Buffer{}
}

var empty = &Buffer{empty: true}

// Empty returns the shared sentinel Buffer used by execution paths that must never
// bind a parameter (e.g. raw DDL statements). Calling Push on it panics.
func Empty() *Buffer {
	return empty
}

// Push appends s if it is not already present, and returns its 1-based index
// either way.
func (b *Buffer) Push(s string) int {
	if b.empty {
		panic("sqlbuf: Push called on the empty sentinel buffer")
	}

	for i, v := range b.values {
		if v == s {
			return i + 1
		}
	}

	b.values = append(b.values, s)
	return len(b.values)
}

// Len returns the number of distinct values currently held.
func (b *Buffer) Len() int {
	return len(b.values)
}

// Placeholder returns the "$k" text for the 1-based index k, without requiring a
// value to already be bound at that index (used when pre-computing placeholders for
// e.g. RETURNING clauses).
func Placeholder(k int) string {
	return fmt.Sprintf("$%d", k)
}

// Materialize returns the bound values in insertion order, suitable for passing to
// database/sql as positional arguments.
func (b *Buffer) Materialize() []any {
	out := make([]any, len(b.values))
	for i, v := range b.values {
		out[i] = v
	}
	return out
}

// Values returns the bound string values in insertion order.
func (b *Buffer) Values() []string {
	return append([]string(nil), b.values...)
}
