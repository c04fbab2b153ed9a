// Package connstring parses and renders the three PostgreSQL connection string
// dialects this library accepts: URL form, space-separated key=value and
// semicolon-separated key=value with case- and whitespace-insensitive keys.
package connstring

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultPort is used when a connection string does not specify a port.
const DefaultPort = 5432

// ConnectionString is a parsed PostgreSQL connection string.
//
// Parse copies every recognized value into a plain field; the original input is
// not kept. SetHost/SetPort replace Host/Port in place and record that an override
// happened, so the previously parsed host or port is no longer available afterwards.
// Round-tripping (Parse -> Render -> Parse) preserves the parsed field values.
type ConnectionString struct {
	User     string
	Password string
	Host     string
	Port     int
	DBName   string
	SSL      bool

	// SSLVerify upgrades the rendered sslmode from "require" (encrypted but
	// accept-all, the default) to "verify-full". Only meaningful when SSL is set.
	SSLVerify bool

	// SSLRootCert, SSLCert and SSLKey are rendered as the driver's sslrootcert,
	// sslcert and sslkey parameters when non-empty.
	SSLRootCert string
	SSLCert     string
	SSLKey      string

	// SSH holds the raw value of an "ssh" directive, if one was present. Its
	// interpretation (host, port, user for the tunnel) is left to the sshtunnel
	// package; ConnectionString only carries it through.
	SSH string

	hostOverridden bool
	portOverridden bool
}

// Parse auto-detects the dialect of s and parses it.
//
// A leading "postgresql://" selects URL form. Otherwise, the counts of spaces and
// semicolons in s are compared: strictly more spaces selects space-separated form,
// otherwise semicolon-separated form is assumed. Malformed URL input is a
// programmer error and Parse panics, matching the source library's "fails loudly"
// contract for this dialect.
func Parse(s string) (*ConnectionString, error) {
	switch {
	case strings.HasPrefix(s, "postgresql://") || strings.HasPrefix(s, "postgres://"):
		return parseURL(s)
	case strings.Count(s, " ") > strings.Count(s, ";"):
		return parseKeyValue(s, " ")
	default:
		return parseKeyValue(s, ";")
	}
}

func parseURL(s string) (*ConnectionString, error) {
	u, err := url.Parse(s)
	if err != nil {
		// Malformed URL connection strings are a programmer error.
		panic(fmt.Sprintf("connstring: malformed URL connection string: %v", err))
	}

	cs := &ConnectionString{Port: DefaultPort}

	if u.User != nil {
		cs.User = u.User.Username()
		cs.Password, _ = u.User.Password()
	}

	host := u.Hostname()
	cs.Host = host

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid port %q", p)
		}
		cs.Port = port
	}

	cs.DBName = strings.TrimPrefix(u.Path, "/")

	q := u.Query()
	if sslmode := q.Get("sslmode"); sslmode != "" {
		cs.SSL = sslmode == "require" || sslmode == "verify-ca" || sslmode == "verify-full"
		cs.SSLVerify = sslmode == "verify-ca" || sslmode == "verify-full"
	}
	if ssh := q.Get("ssh"); ssh != "" {
		cs.SSH = ssh
	}

	return cs, nil
}

// keyAliases maps every recognised alias to its canonical key name. Lookup is
// always performed after normalizeKey, so casing and whitespace never matter.
var keyAliases = map[string]string{
	"server":      "host",
	"host":        "host",
	"port":        "port",
	"userid":      "user",
	"user":        "user",
	"username":    "user",
	"password":    "password",
	"pwd":         "password",
	"database":    "dbname",
	"dbname":      "dbname",
	"sslmode":     "sslmode",
	"ssl":         "sslmode",
	"sslrootcert": "sslrootcert",
	"sslcert":     "sslcert",
	"sslkey":      "sslkey",
	"ssh":         "ssh",
	"application": "application_name",
}

// normalizeKey lower-cases s and strips spaces and tabs, so that "User Id",
// "user id" and "userid" all normalize to "userid".
func normalizeKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseKeyValue(s, sep string) (*ConnectionString, error) {
	cs := &ConnectionString{Port: DefaultPort}

	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, errors.Errorf("connstring: malformed key=value pair %q", part)
		}

		key := keyAliases[normalizeKey(kv[0])]
		value := strings.TrimSpace(kv[1])

		switch key {
		case "host":
			cs.Host = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid port %q", value)
			}
			cs.Port = port
		case "user":
			cs.User = value
		case "password":
			cs.Password = value
		case "dbname":
			cs.DBName = value
		case "sslmode":
			cs.SSL = value == "require" || value == "verify-ca" || value == "verify-full" || value == "true"
			cs.SSLVerify = value == "verify-ca" || value == "verify-full"
		case "sslrootcert":
			cs.SSLRootCert = value
		case "sslcert":
			cs.SSLCert = value
		case "sslkey":
			cs.SSLKey = value
		case "ssh":
			cs.SSH = value
		default:
			// Unknown keys are ignored rather than rejected: the three dialects in
			// practice carry driver-specific extras (connect_timeout, etc.) that this
			// model does not need to round-trip.
		}
	}

	return cs, nil
}

// SetHost replaces the host used by Render* and marks it as overridden; the
// previously parsed host is overwritten, not kept.
func (cs *ConnectionString) SetHost(host string) {
	cs.Host = host
	cs.hostOverridden = true
}

// SetPort overrides the port the same way SetHost overrides the host.
func (cs *ConnectionString) SetPort(port int) {
	cs.Port = port
	cs.portOverridden = true
}

// HostOverridden reports whether SetHost has been called.
func (cs *ConnectionString) HostOverridden() bool { return cs.hostOverridden }

// PortOverridden reports whether SetPort has been called.
func (cs *ConnectionString) PortOverridden() bool { return cs.portOverridden }

// Render emits the canonical space-separated form, appending
// "application_name=<appName>" unconditionally and an sslmode ("require", or
// "verify-full" when SSLVerify is set) only when cs.SSL is set.
func (cs *ConnectionString) Render(appName string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "host=%s port=%d", cs.Host, cs.Port)
	if cs.User != "" {
		fmt.Fprintf(&b, " user=%s", cs.User)
	}
	if cs.Password != "" {
		fmt.Fprintf(&b, " password=%s", cs.Password)
	}
	if cs.DBName != "" {
		fmt.Fprintf(&b, " dbname=%s", cs.DBName)
	}
	fmt.Fprintf(&b, " application_name=%s", appName)
	cs.renderSSL(&b)
	if cs.SSH != "" {
		fmt.Fprintf(&b, " ssh=%s", cs.SSH)
	}

	return b.String()
}

func (cs *ConnectionString) renderSSL(b *strings.Builder) {
	if cs.SSL {
		if cs.SSLVerify {
			b.WriteString(" sslmode=verify-full")
		} else {
			b.WriteString(" sslmode=require")
		}
	}
	if cs.SSLRootCert != "" {
		fmt.Fprintf(b, " sslrootcert=%s", cs.SSLRootCert)
	}
	if cs.SSLCert != "" {
		fmt.Fprintf(b, " sslcert=%s", cs.SSLCert)
	}
	if cs.SSLKey != "" {
		fmt.Fprintf(b, " sslkey=%s", cs.SSLKey)
	}
}

// RenderWithHostAsUnixSocket is like Render, but emits host as a Unix socket
// directory path (PostgreSQL's libpq convention for host starting with "/") instead
// of a TCP host, and omits the port.
func (cs *ConnectionString) RenderWithHostAsUnixSocket(appName, socketDir string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "host=%s", socketDir)
	if cs.User != "" {
		fmt.Fprintf(&b, " user=%s", cs.User)
	}
	if cs.Password != "" {
		fmt.Fprintf(&b, " password=%s", cs.Password)
	}
	if cs.DBName != "" {
		fmt.Fprintf(&b, " dbname=%s", cs.DBName)
	}
	fmt.Fprintf(&b, " application_name=%s", appName)
	cs.renderSSL(&b)

	return b.String()
}

// RenderWithNewHostPort is like Render, but with host/port replaced, without
// mutating cs. Used by the connection loop to preview the tunnelled form without
// committing to SetHost/SetPort until the tunnel is confirmed up.
func (cs *ConnectionString) RenderWithNewHostPort(appName, host string, port int) string {
	clone := *cs
	clone.Host = host
	clone.Port = port
	return clone.Render(appName)
}

// RenderWithNewDBName is like Render, but targets a different database, e.g. the
// "postgres" maintenance database used by the schema reconciler's database-existence
// check.
func (cs *ConnectionString) RenderWithNewDBName(appName, dbName string) string {
	clone := *cs
	clone.DBName = dbName
	return clone.Render(appName)
}
