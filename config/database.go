package config

import (
	"context"
	"time"

	"github.com/creasty/defaults"
	"github.com/myjettools/myjetpg/connstring"
	"github.com/myjettools/myjetpg/database"
	"github.com/myjettools/myjetpg/logging"
	"github.com/myjettools/myjetpg/sshtunnel"
	"github.com/myjettools/myjetpg/utils"
	"github.com/pkg/errors"
)

// SSH configures tunnelling a Database connection through an SSH jump host.
type SSH struct {
	Enable bool `yaml:"enable" env:"ENABLE"`

	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT" default:"22"`
	User string `yaml:"user" env:"USER"`

	// Password authenticates with a password if PrivateKey is empty.
	Password string `yaml:"password" env:"PASSWORD,unset"`

	// PrivateKey is a PEM-encoded private key, taking precedence over Password.
	PrivateKey string `yaml:"private_key" env:"PRIVATE_KEY,unset"`
}

// Validate implements Validator.
func (s *SSH) Validate() error {
	if !s.Enable {
		return nil
	}
	if s.Host == "" {
		return errors.New("ssh.host must be set when ssh.enable is true")
	}
	if s.User == "" {
		return errors.New("ssh.user must be set when ssh.enable is true")
	}
	return nil
}

// Database defines the configuration for a single Postgres endpoint, covering
// everything a database.Conn (or a database.Pool of them) needs: how to reach it
// (directly, through an SSH tunnel, or via a ready-made connection string), how many
// connections to keep open, and the default per-call timeout client code built on it
// should use.
type Database struct {
	// ConnectionString, if set, is parsed via connstring.Parse and takes precedence
	// over Host/Port/User/Password/Database.
	ConnectionString string `yaml:"connection_string" env:"CONNECTION_STRING,unset"`

	Host     string `yaml:"host" env:"HOST" default:"localhost"`
	Port     int    `yaml:"port" env:"PORT" default:"5432"`
	Database string `yaml:"database" env:"DATABASE"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD,unset"`

	// SSL enables "sslmode=require" on the rendered DSN.
	SSL bool `yaml:"ssl" env:"SSL"`

	// MaxConnections is the number of independently reconnecting Conns a Pool built
	// from this config holds. A Database opened as a single Conn ignores this field.
	MaxConnections int `yaml:"max_connections" env:"MAX_CONNECTIONS" default:"16"`

	// Timeout is the default per-call RequestContext.Timeout client code built on
	// this config should use unless it overrides it per call.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" default:"30s"`

	SSH SSH `yaml:"ssh" envPrefix:"SSH_"`
	TLS TLS `yaml:",inline"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (d *Database) UnmarshalYAML(unmarshal func(interface{}) error) error {
	if err := defaults.Set(d); err != nil {
		return err
	}
	// Prevent recursion.
	type self Database
	return unmarshal((*self)(d))
}

// Validate implements Validator.
func (d *Database) Validate() error {
	if d.ConnectionString == "" && d.Host == "" {
		return errors.New("database: either connection_string or host must be set")
	}
	if d.MaxConnections <= 0 {
		return errors.New("database: max_connections must be greater than zero")
	}
	if d.Timeout <= 0 {
		return errors.New("database: timeout must be greater than zero")
	}
	return errors.WithStack(d.SSH.Validate())
}

// connectionString resolves the effective connstring.ConnectionString, preferring an
// explicit ConnectionString over the discrete fields. An enabled TLS block implies
// SSL; verification stays off (sslmode=require) unless tls.insecure is false and a
// CA is given, in which case the DSN is upgraded to verify-full with the configured
// certificate files.
func (d *Database) connectionString() (*connstring.ConnectionString, error) {
	if d.ConnectionString != "" {
		return connstring.Parse(d.ConnectionString)
	}

	cs := &connstring.ConnectionString{
		User:     d.User,
		Password: d.Password,
		Host:     d.Host,
		Port:     d.Port,
		DBName:   d.Database,
		SSL:      d.SSL || d.TLS.Enable,
	}

	if d.TLS.Enable {
		cs.SSLVerify = !d.TLS.Insecure && d.TLS.Ca != ""
		cs.SSLRootCert = d.TLS.Ca
		cs.SSLCert = d.TLS.Cert
		cs.SSLKey = d.TLS.Key
	}

	return cs, nil
}

// settingsProvider adapts *Database into a database.SettingsProvider, re-resolving
// the connection string on every (re)connect attempt so a hot-reloaded config takes
// effect without recreating the Conn.
type settingsProvider struct {
	cfg *Database
}

func (p settingsProvider) ConnectionString(context.Context) (*connstring.ConnectionString, error) {
	return p.cfg.connectionString()
}

// connConfig builds the database.ConnConfig this config implies: the app name,
// logger, and SSH tunnel settings if enabled.
func (d *Database) connConfig(logger *logging.Logger) database.ConnConfig {
	cfg := database.ConnConfig{
		AppName: utils.AppName(),
		Logger:  logger,
	}

	if d.SSH.Enable {
		cfg.SSH = &sshtunnel.Config{
			Host:            d.SSH.Host,
			Port:            d.SSH.Port,
			User:            d.SSH.User,
			Password:        d.SSH.Password,
			PrivateKeyPEM:   d.SSH.PrivateKey,
			HostKeyInsecure: true,
		}
	}

	return cfg
}

// Open builds a single database.Conn from this config. The Conn is Idle until its
// first use (or an explicit Engage call).
func (d *Database) Open(logger *logging.Logger) (*database.Conn, error) {
	if _, err := d.connectionString(); err != nil {
		return nil, errors.Wrap(err, "can't resolve connection string")
	}

	return database.NewConn(settingsProvider{cfg: d}, d.connConfig(logger)), nil
}

// OpenPool builds a database.Pool of MaxConnections independently reconnecting
// Conns from this config.
func (d *Database) OpenPool(logger *logging.Logger) (*database.Pool, error) {
	if _, err := d.connectionString(); err != nil {
		return nil, errors.Wrap(err, "can't resolve connection string")
	}

	cfg := d.connConfig(logger)

	return database.NewPool(d.MaxConnections, func() *database.Conn {
		return database.NewConn(settingsProvider{cfg: d}, cfg)
	}), nil
}
