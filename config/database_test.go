package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validDatabase() Database {
	return Database{
		Host:           "localhost",
		Port:           5432,
		Database:       "payments",
		User:           "usr",
		Password:       "pwd",
		MaxConnections: 4,
		Timeout:        30 * time.Second,
	}
}

func TestDatabase_Validate(t *testing.T) {
	d := validDatabase()
	require.NoError(t, d.Validate())

	d = validDatabase()
	d.Host = ""
	require.Error(t, d.Validate())

	d = validDatabase()
	d.MaxConnections = 0
	require.Error(t, d.Validate())

	d = validDatabase()
	d.Timeout = 0
	require.Error(t, d.Validate())

	d = validDatabase()
	d.SSH.Enable = true
	require.Error(t, d.Validate(), "enabled SSH without host/user must not validate")

	d.SSH.Host = "jump.example.com"
	d.SSH.User = "tunnel"
	require.NoError(t, d.Validate())
}

func TestDatabase_ConnectionStringFromDiscreteFields(t *testing.T) {
	d := validDatabase()

	cs, err := d.connectionString()
	require.NoError(t, err)
	require.Equal(t, "localhost", cs.Host)
	require.Equal(t, 5432, cs.Port)
	require.Equal(t, "payments", cs.DBName)
	require.False(t, cs.SSL)
}

func TestDatabase_ConnectionStringOverridesDiscreteFields(t *testing.T) {
	d := validDatabase()
	d.ConnectionString = "host=other port=5566 user=u dbname=x sslmode=require"

	cs, err := d.connectionString()
	require.NoError(t, err)
	require.Equal(t, "other", cs.Host)
	require.Equal(t, 5566, cs.Port)
	require.True(t, cs.SSL)
}

func TestDatabase_TLSBlockUpgradesSSLMode(t *testing.T) {
	d := validDatabase()
	d.TLS.Enable = true

	// Enabled TLS without a CA stays encrypted-but-unverified.
	cs, err := d.connectionString()
	require.NoError(t, err)
	require.True(t, cs.SSL)
	require.False(t, cs.SSLVerify)
	require.Contains(t, cs.Render("app"), "sslmode=require")

	// A CA with insecure=false upgrades to verify-full with the cert files.
	d.TLS.Ca = "/etc/ssl/ca.pem"
	d.TLS.Cert = "/etc/ssl/client.pem"
	d.TLS.Key = "/etc/ssl/client.key"

	cs, err = d.connectionString()
	require.NoError(t, err)
	require.True(t, cs.SSLVerify)

	rendered := cs.Render("app")
	require.Contains(t, rendered, "sslmode=verify-full")
	require.Contains(t, rendered, "sslrootcert=/etc/ssl/ca.pem")
	require.Contains(t, rendered, "sslcert=/etc/ssl/client.pem")
	require.Contains(t, rendered, "sslkey=/etc/ssl/client.key")

	// insecure=true keeps accept-all even with a CA configured.
	d.TLS.Insecure = true
	cs, err = d.connectionString()
	require.NoError(t, err)
	require.False(t, cs.SSLVerify)
}

func TestDatabase_OpenBuildsIdleConn(t *testing.T) {
	d := validDatabase()

	conn, err := d.Open(nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestDatabase_OpenPool(t *testing.T) {
	d := validDatabase()
	d.MaxConnections = 2

	pool, err := d.OpenPool(nil)
	require.NoError(t, err)
	require.NoError(t, pool.Close())
}
