package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestWaitReachable_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	check := func(context.Context, string) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	err := WaitReachable(context.Background(), "10.0.0.1", 5, time.Millisecond, check)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitReachable_Bounded(t *testing.T) {
	calls := 0
	check := func(context.Context, string) error {
		calls++
		return errors.New("connection refused")
	}

	err := WaitReachable(context.Background(), "10.0.0.1", 4, time.Millisecond, check)
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Contains(t, err.Error(), "not reachable after 4 attempts")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWaitReachable_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitReachable(ctx, "10.0.0.1", 3, time.Hour, func(context.Context, string) error {
		return errors.New("refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

// silentListener accepts TCP connections and closes them without speaking
// SSH, like a port that is open before sshd is ready.
func silentListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln.Addr().String()
}

func TestHandshakeCheck_OpenPortIsNotEnough(t *testing.T) {
	addr := silentListener(t)
	require.NoError(t, TCPCheck(context.Background(), addr))

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	dial := func(ctx context.Context, client, host string) (Session, error) {
		return Dial(ctx, host, "root", signer)
	}
	err = HandshakeCheck(dial, "acme")(context.Background(), addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ssh handshake")
}

func TestHandshakeCheck_RunsNoOp(t *testing.T) {
	r := &fakeRunner{}
	var got []string
	dial := func(_ context.Context, client, host string) (Session, error) {
		got = append(got, client, host)
		return fakeSession{r}, nil
	}

	require.NoError(t, HandshakeCheck(dial, "acme")(context.Background(), "10.0.0.1"))
	assert.Equal(t, []string{"acme", "10.0.0.1"}, got)
	assert.Equal(t, []string{"true"}, r.cmds)

	r.fail = func(string) bool { return true }
	assert.Error(t, HandshakeCheck(dial, "acme")(context.Background(), "10.0.0.1"))
}

type fakeSession struct{ *fakeRunner }

func (fakeSession) Close() error { return nil }

type fakeRunner struct {
	cmds []string
	fail func(cmd string) bool
}

func (f *fakeRunner) Run(_ context.Context, cmd string) (string, error) {
	f.cmds = append(f.cmds, cmd)
	if f.fail != nil && f.fail(cmd) {
		return "", errors.New("exit status 1")
	}
	return "", nil
}

func TestCleanup_AllStepsRun(t *testing.T) {
	r := &fakeRunner{}
	require.NoError(t, Cleanup(context.Background(), r))
	assert.Len(t, r.cmds, len(AppDirs)+1)
	assert.Equal(t, "docker system prune -af --volumes", r.cmds[len(r.cmds)-1])
}

func TestCleanup_FailuresAreWarnings(t *testing.T) {
	r := &fakeRunner{fail: func(cmd string) bool {
		return strings.Contains(cmd, "/opt/nextcloud") || strings.Contains(cmd, "prune")
	}}

	err := Cleanup(context.Background(), r)
	require.Error(t, err)
	assert.Len(t, r.cmds, len(AppDirs)+1)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
}

func TestHostPort(t *testing.T) {
	assert.Equal(t, "10.0.0.1:22", hostPort("10.0.0.1"))
	assert.Equal(t, "10.0.0.1:2222", hostPort("10.0.0.1:2222"))
	assert.Equal(t, "[2a01:4f8::1]:22", hostPort("2a01:4f8::1"))
}
