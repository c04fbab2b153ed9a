package com

import (
	"context"
	"time"
)

// bulkIdleFlush is how long Bulk waits for another item to arrive before flushing whatever has
// been buffered so far as a chunk of its own.
const bulkIdleFlush = 200 * time.Millisecond

// BulkChunkSplitPolicy decides, for the item just appended to the current chunk, whether the
// chunk is complete and should be flushed immediately, regardless of the configured count.
type BulkChunkSplitPolicy[T any] func(newItem T) bool

// BulkChunkSplitPolicyFactory creates a new BulkChunkSplitPolicy for a single Bulk call. A
// factory rather than a bare policy lets the policy carry state private to that call.
type BulkChunkSplitPolicyFactory[T any] func() BulkChunkSplitPolicy[T]

// NeverSplit is a BulkChunkSplitPolicyFactory whose policy never requests an early split, i.e.
// count and the idle timeout alone decide chunk boundaries.
func NeverSplit[T any]() BulkChunkSplitPolicy[T] {
	return func(T) bool { return false }
}

// Bulk groups items read from ch into chunks of up to count items (unlimited if count <= 0) and
// sends each chunk on the returned channel, which is closed once ch is closed or ctx is done.
//
// A chunk is flushed as soon as one of the following happens:
//
//   - it reaches count items,
//   - the policy created by splitPolicyFactory requests a split for the item just appended,
//   - no further item arrives within a short idle window, or
//   - ctx is done, in which case a final send of any buffered items is attempted; that send
//     races ctx.Done, so the buffered items may be dropped instead.
func Bulk[T any](ctx context.Context, ch <-chan T, count int, splitPolicyFactory BulkChunkSplitPolicyFactory[T]) <-chan []T {
	out := make(chan []T, 1)

	go func() {
		defer close(out)

		var splitPolicy BulkChunkSplitPolicy[T]
		if splitPolicyFactory != nil {
			splitPolicy = splitPolicyFactory()
		}

		var buf []T

		// flush sends the buffered items, if any, and reports whether it is safe to continue, i.e.
		// ctx was not done while trying to send.
		flush := func() bool {
			if len(buf) == 0 {
				return true
			}

			chunk := buf
			buf = nil

			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		timer := time.NewTimer(bulkIdleFlush)
		defer timer.Stop()

		resetTimer := func() {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(bulkIdleFlush)
		}

		for {
			select {
			case v, ok := <-ch:
				if !ok {
					flush()
					return
				}

				buf = append(buf, v)

				full := count > 0 && len(buf) >= count
				split := splitPolicy != nil && splitPolicy(v)

				if full || split {
					if !flush() {
						return
					}
				}

				resetTimer()

			case <-timer.C:
				if !flush() {
					return
				}

				timer.Reset(bulkIdleFlush)

			case <-ctx.Done():
				flush()
				return
			}
		}
	}()

	return out
}
