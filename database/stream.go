package database

import (
	"context"
	stderrors "errors"

	"github.com/myjettools/myjetpg/com"
	"github.com/myjettools/myjetpg/database/sqlbuf"
)

// streamBufferSize bounds how many rows Stream can hold in memory ahead of the
// receiver; once full, the producing goroutine blocks (backpressure) rather than
// growing unbounded.
const streamBufferSize = 2048

// StreamResult is one item delivered by Stream: either a scanned row (Err nil) or
// the single terminal error that ends the stream (Value zero).
type StreamResult[T any] struct {
	Value T
	Err   error
}

// Stream runs a SELECT and delivers rows one at a time on the returned channel as
// they are scanned, instead of materialising the whole result set up front. T must
// be a pointer type (e.g. *MyRow); newRow must return a fresh instance each call.
//
// The channel is always closed, with at most one StreamResult carrying a non-nil Err
// as its final item. A caller abandoning the channel before it drains (e.g. breaking
// out of a range loop and letting rc.Ctx be canceled) stops the background goroutine
// and releases the underlying connection.
func Stream[T any](d *Database, rc *RequestContext, entity Selectable, model WhereModel, newRow func() T) (<-chan StreamResult[T], error) {
	buf := sqlbuf.New()
	sqlText := NewSelectStatement(entity, model).Build(buf)

	lease, err := d.source.lease(rc.Ctx, rc.Deadline())
	if err != nil {
		d.logFailure(rc, err, sqlText)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(rc.Ctx, rc.Timeout)

	rows, err := lease.db.QueryxContext(ctx, sqlText, buf.Materialize()...)
	if err != nil {
		cancel()
		lease.release()

		err = classifyStreamErr(rc, lease, err)
		d.logFailure(rc, err, sqlText)
		return nil, err
	}

	out := make(chan StreamResult[T], streamBufferSize)

	go func() {
		defer close(out)
		defer cancel()
		defer lease.release()
		defer rows.Close()

		for rows.Next() {
			row := newRow()
			if err := rows.StructScan(row); err != nil {
				err = classifyStreamErr(rc, lease, err)
				d.logFailure(rc, err, sqlText)
				sendStreamErr(ctx, out, err)
				return
			}

			select {
			case out <- StreamResult[T]{Value: row}:
			case <-ctx.Done():
				return
			}
		}

		if err := rows.Err(); err != nil {
			err = classifyStreamErr(rc, lease, err)
			d.logFailure(rc, err, sqlText)
			sendStreamErr(ctx, out, err)
			return
		}

		d.logSuccess(rc, sqlText)
	}()

	return out, nil
}

// StreamBatches is Stream with its rows regrouped into chunks of up to count (via
// com.Bulk), for consumers that feed each chunk into a bulk write (BulkInsert,
// BulkUpsert) rather than handling rows one at a time. An undersized final chunk is
// flushed when the row stream ends or goes idle. The terminal error, if any, is
// delivered after every complete chunk, as the channel's last item.
func StreamBatches[T any](d *Database, rc *RequestContext, entity Selectable, model WhereModel, newRow func() T, count int) (<-chan StreamResult[[]T], error) {
	rows, err := Stream(d, rc, entity, model, newRow)
	if err != nil {
		return nil, err
	}

	values := make(chan T, streamBufferSize)
	errCh := make(chan error, 1)

	go func() {
		defer close(values)
		for r := range rows {
			if r.Err != nil {
				errCh <- r.Err
				return
			}

			select {
			case values <- r.Value:
			case <-rc.Ctx.Done():
				return
			}
		}
	}()

	chunks := com.Bulk(rc.Ctx, values, count, com.NeverSplit[T])
	out := make(chan StreamResult[[]T], 1)

	go func() {
		defer close(out)

		for chunk := range chunks {
			select {
			case out <- StreamResult[[]T]{Value: chunk}:
			case <-rc.Ctx.Done():
				return
			}
		}

		select {
		case err := <-errCh:
			sendStreamErr(rc.Ctx, out, err)
		default:
		}
	}()

	return out, nil
}

// classifyStreamErr normalizes err and, if it classifies as Timeout or Other, marks
// the lease's connection disconnected so the next call reconnects.
func classifyStreamErr(rc *RequestContext, lease *connLease, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		err = &TimeoutError{After: rc.Timeout}
	} else {
		err = wrapDriverErr(err)
	}

	if shouldDisconnect(Classify(err)) {
		lease.conn.MarkDisconnected()
	}

	return err
}

func sendStreamErr[T any](ctx context.Context, out chan<- StreamResult[T], err error) {
	select {
	case out <- StreamResult[T]{Err: err}:
	case <-ctx.Done():
	}
}
