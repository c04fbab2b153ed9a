package database

import (
	"context"
	"database/sql/driver"

	"github.com/lib/pq"
)

// Connector is a typed seam around the driver.Connector lib/pq builds for a DSN,
// giving Conn's reconnection loop a single place to construct database/sql handles
// through rather than going via database/sql's global driver registry on every
// (re)connect attempt.
type Connector struct {
	inner driver.Connector
}

// NewConnector builds a Connector for dsn, a canonical space-separated DSN as
// rendered by connstring.ConnectionString.Render.
func NewConnector(dsn string) (*Connector, error) {
	inner, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, err
	}

	return &Connector{inner: inner}, nil
}

func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	return c.inner.Connect(ctx)
}

func (c *Connector) Driver() driver.Driver {
	return c.inner.Driver()
}
