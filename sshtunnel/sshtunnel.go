// Package sshtunnel maintains local TCP port forwards to database endpoints reached
// through an SSH jump host, one per distinct (ssh endpoint, database endpoint) pair.
package sshtunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// Config describes the SSH endpoint a tunnel is dialed through.
type Config struct {
	Host string
	Port int
	User string

	// Password authenticates with a password if PrivateKeyPEM is empty.
	Password string

	// PrivateKeyPEM, if set, authenticates with this PEM-encoded private key instead
	// of Password.
	PrivateKeyPEM string

	// HostKeyInsecure accepts any host key presented by the SSH server. This package
	// currently supports no other mode.
	HostKeyInsecure bool
}

const (
	portRangeStart = 33000
	portRangeEnd   = 34000

	dialTimeout = 10 * time.Second
)

// Registry is a process-wide collection of live tunnels, keyed by the ssh-endpoint and
// database-endpoint pair they forward. A tunnel is created at most once per key and
// reused by every subsequent Ensure call for the lifetime of the process.
type Registry struct {
	mu       sync.Mutex
	tunnels  map[string]*tunnel
	nextPort int
}

// NewRegistry returns an empty Registry allocating local ports starting at 33000.
func NewRegistry() *Registry {
	return &Registry{
		tunnels:  make(map[string]*tunnel),
		nextPort: portRangeStart,
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide Registry used by database.Conn unless a test
// substitutes its own.
func Default() *Registry {
	return defaultRegistry
}

type tunnel struct {
	localPort int
	client    *ssh.Client
	listener  net.Listener
}

func tunnelKey(cfg Config, dbHost string, dbPort int) string {
	return fmt.Sprintf("%s@%s:%d->%s:%d", cfg.User, cfg.Host, cfg.Port, dbHost, dbPort)
}

// Ensure returns the local port of the tunnel forwarding to dbHost:dbPort through the
// SSH server described by cfg, establishing one on first use and reusing it (without
// re-dialing SSH) on every later call for the same key.
func (r *Registry) Ensure(ctx context.Context, cfg Config, dbHost string, dbPort int) (int, error) {
	key := tunnelKey(cfg, dbHost, dbPort)

	if t, ok := r.lookup(key); ok {
		return t.localPort, nil
	}

	client, err := dial(ctx, cfg)
	if err != nil {
		return 0, errors.Wrap(err, "sshtunnel: can't reach ssh server")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Someone else may have raced us to the same key while we were dialing.
	if t, ok := r.tunnels[key]; ok {
		_ = client.Close()
		return t.localPort, nil
	}

	localPort, listener, err := r.listenLocked()
	if err != nil {
		_ = client.Close()
		return 0, err
	}

	t := &tunnel{localPort: localPort, client: client, listener: listener}
	r.tunnels[key] = t

	go t.serve(dbHost, dbPort)

	return localPort, nil
}

func (r *Registry) lookup(key string) (*tunnel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tunnels[key]
	return t, ok
}

// listenLocked allocates the next free local port in [portRangeStart, portRangeEnd),
// wrapping around once the range is exhausted. The caller must hold r.mu.
func (r *Registry) listenLocked() (int, net.Listener, error) {
	for i := 0; i < portRangeEnd-portRangeStart; i++ {
		port := r.nextPort

		r.nextPort++
		if r.nextPort >= portRangeEnd {
			r.nextPort = portRangeStart
		}

		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return port, ln, nil
		}
	}

	return 0, nil, errors.New("sshtunnel: no free local port available")
}

func dial(ctx context.Context, cfg Config) (*ssh.Client, error) {
	auth, err := authMethod(cfg)
	if err != nil {
		return nil, err
	}

	if !cfg.HostKeyInsecure {
		return nil, errors.New("sshtunnel: host key verification is not supported, set HostKeyInsecure")
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106 -- jump hosts are typically on a trusted network and not pinned
		Timeout:         dialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		return nil, errors.Wrap(err, "ssh handshake failed")
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func authMethod(cfg Config) (ssh.AuthMethod, error) {
	if cfg.PrivateKeyPEM != "" {
		signer, err := ssh.ParsePrivateKey([]byte(cfg.PrivateKeyPEM))
		if err != nil {
			return nil, errors.Wrap(err, "can't parse ssh private key")
		}
		return ssh.PublicKeys(signer), nil
	}

	return ssh.Password(cfg.Password), nil
}

// serve accepts local connections and forwards each to dbHost:dbPort over the SSH
// connection until the listener is closed.
func (t *tunnel) serve(dbHost string, dbPort int) {
	dest := fmt.Sprintf("%s:%d", dbHost, dbPort)

	for {
		local, err := t.listener.Accept()
		if err != nil {
			return
		}

		go forward(t.client, local, dest)
	}
}

func forward(client *ssh.Client, local net.Conn, dest string) {
	defer local.Close()

	remote, err := client.Dial("tcp", dest)
	if err != nil {
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)

	go func() {
		_, _ = io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(local, remote)
		done <- struct{}{}
	}()

	<-done
}
