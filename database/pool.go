package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/semaphore"
)

// connLease is a borrowed handle for the duration of one execution-pipeline call.
// release returns any pool slot the lease holds; it is a no-op for a bare Conn.
type connLease struct {
	db      *sqlx.DB
	conn    *Conn
	release func()
}

// connSource abstracts over a single Conn or a Pool, giving the execution pipeline a
// uniform "borrow a handle for the duration of one call" operation plus disposal.
type connSource interface {
	lease(ctx context.Context, deadline time.Time) (*connLease, error)
	Close() error
}

// Pool is a fixed-size set of independently reconnecting Conns, handed out on a
// first-free basis. Unlike a database/sql connection pool, a Pool does no health
// checking of its own: a borrowed Conn that is mid-Sleeping simply blocks the
// borrower until it reconnects or the caller's deadline passes.
type Pool struct {
	conns []*Conn
	free  chan int
	sem   *semaphore.Weighted
}

// NewPool creates n Conns via newConn and pools them. n must be greater than zero.
func NewPool(n int, newConn func() *Conn) *Pool {
	if n <= 0 {
		panic("database: NewPool requires n > 0")
	}

	p := &Pool{
		conns: make([]*Conn, n),
		free:  make(chan int, n),
		sem:   semaphore.NewWeighted(int64(n)),
	}

	for i := 0; i < n; i++ {
		p.conns[i] = newConn()
		p.free <- i
	}

	return p
}

// Rental is a Conn borrowed from a Pool. Release must be called exactly once.
type Rental struct {
	pool *Pool
	idx  int

	Conn *Conn
}

// Release returns the rental's Conn to the pool.
func (r *Rental) Release() {
	r.pool.free <- r.idx
	r.pool.sem.Release(1)
}

// Get waits for a free Conn, or for ctx to be done.
func (p *Pool) Get(ctx context.Context) (*Rental, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	idx := <-p.free

	return &Rental{pool: p, idx: idx, Conn: p.conns[idx]}, nil
}

func (p *Pool) lease(ctx context.Context, deadline time.Time) (*connLease, error) {
	rental, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}

	db, err := rental.Conn.Acquire(ctx, deadline)
	if err != nil {
		rental.Release()
		return nil, err
	}

	return &connLease{db: db, conn: rental.Conn, release: rental.Release}, nil
}

// Close engages none and closes every Conn in the pool, disposing whatever handles
// they currently hold.
func (p *Pool) Close() error {
	for _, c := range p.conns {
		_ = c.Close()
	}
	return nil
}

var _ connSource = (*Pool)(nil)
