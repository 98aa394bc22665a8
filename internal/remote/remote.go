// Package remote runs commands on client servers over SSH.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sethvargo/go-retry"
	"golang.org/x/crypto/ssh"

	"github.com/edvin/clientops/internal/sshkey"
)

const (
	DefaultAttempts = 30
	DefaultDelay    = 10 * time.Second

	dialTimeout = 10 * time.Second
)

// Runner executes a shell command on a host and returns its stdout.
type Runner interface {
	Run(ctx context.Context, cmd string) (string, error)
}

// Session is an open connection to a client server.
type Session interface {
	Runner
	Close() error
}

// DialFunc connects to the server of client at host.
type DialFunc func(ctx context.Context, client, host string) (Session, error)

// SSHDialer returns a DialFunc authenticating with the client's key from
// keysDir.
func SSHDialer(keysDir, user string) DialFunc {
	return func(ctx context.Context, client, host string) (Session, error) {
		signer, err := sshkey.Signer(sshkey.Paths(keysDir, client).PrivatePath)
		if err != nil {
			return nil, err
		}
		cl, err := Dial(ctx, host, user, signer)
		if err != nil {
			return nil, err
		}
		return cl, nil
	}
}

// Client is an open SSH connection to one server.
type Client struct {
	addr string
	conn *ssh.Client
}

// Dial opens an SSH connection to host (port 22 is assumed when omitted).
// Client servers are freshly provisioned, so host keys are not pinned.
func Dial(ctx context.Context, host, user string, signer ssh.Signer) (*Client, error) {
	addr := hostPort(host)

	d := net.Dialer{Timeout: dialTimeout}
	tcpConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	})
	if err != nil {
		tcpConn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}

	return &Client{addr: addr, conn: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// Run executes cmd in a new session. Cancelling ctx closes the session.
func (c *Client) Run(ctx context.Context, cmd string) (string, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh session %s: %w", c.addr, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		session.Close()
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return stdout.String(), fmt.Errorf("remote %q on %s: %w: %s", cmd, c.addr, err, bytes.TrimSpace(stderr.Bytes()))
		}
		return stdout.String(), nil
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Check reports whether a host is ready.
type Check func(ctx context.Context, host string) error

// TCPCheck succeeds when the SSH port accepts a TCP connection.
func TCPCheck(ctx context.Context, host string) error {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", hostPort(host))
	if err != nil {
		return err
	}
	return conn.Close()
}

// HandshakeCheck succeeds once dial completes an authenticated SSH session
// for client and a no-op command runs in it. A listening sshd that still
// rejects the key or drops the session is not ready.
func HandshakeCheck(dial DialFunc, client string) Check {
	return func(ctx context.Context, host string) error {
		sess, err := dial(ctx, client, host)
		if err != nil {
			return err
		}
		defer sess.Close()
		_, err = sess.Run(ctx, "true")
		return err
	}
}

// WaitReachable polls check until it succeeds, making at most attempts
// tries spaced delay apart.
func WaitReachable(ctx context.Context, host string, attempts uint64, delay time.Duration, check Check) error {
	if attempts == 0 {
		attempts = DefaultAttempts
	}
	if check == nil {
		check = TCPCheck
	}

	b := retry.WithMaxRetries(attempts-1, retry.NewConstant(delay))

	var last error
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := check(ctx, host); err != nil {
			last = err
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s not reachable after %d attempts: %w", host, attempts, last)
	}
	return nil
}

// AppDirs are the compose project directories on a client server.
var AppDirs = []string{"/opt/authentik", "/opt/zitadel", "/opt/nextcloud", "/opt/traefik"}

// Cleanup tears down containers and volumes on a server ahead of destroy.
// Every step runs even if earlier ones fail; failures are returned as a
// multierror of warnings and are never fatal to the caller.
func Cleanup(ctx context.Context, r Runner) error {
	var result *multierror.Error

	for _, dir := range AppDirs {
		cmd := fmt.Sprintf("if [ -d %s ]; then cd %s && docker compose down -v; fi", dir, dir)
		if _, err := r.Run(ctx, cmd); err != nil {
			result = multierror.Append(result, fmt.Errorf("compose down %s: %w", dir, err))
		}
	}

	if _, err := r.Run(ctx, "docker system prune -af --volumes"); err != nil {
		result = multierror.Append(result, fmt.Errorf("docker prune: %w", err))
	}

	return result.ErrorOrNil()
}

func hostPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, "22")
}
