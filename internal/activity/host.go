package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/edvin/clientops/internal/cloud"
	"github.com/edvin/clientops/internal/remote"
)

// Host contains activities that act on a client's server over SSH.
type Host struct {
	dial     remote.DialFunc
	attempts uint64
	delay    time.Duration
	logger   zerolog.Logger
}

func NewHost(dial remote.DialFunc, logger zerolog.Logger) *Host {
	return &Host{
		dial:     dial,
		attempts: remote.DefaultAttempts,
		delay:    remote.DefaultDelay,
		logger:   logger,
	}
}

// WaitForSSH blocks until the server completes an SSH handshake with the
// client's key and runs a command, or the bounded poll gives up.
func (a *Host) WaitForSSH(ctx context.Context, params HostParams) error {
	if params.IP == "" {
		return fmt.Errorf("no server IP for %s", params.Client)
	}
	return remote.WaitReachable(ctx, params.IP, a.attempts, a.delay, remote.HandshakeCheck(a.dial, params.Client))
}

// CleanupHost stops every app stack and prunes containers and volumes.
// It never fails: an unreachable server or a failed step is a warning.
func (a *Host) CleanupHost(ctx context.Context, params HostParams) (*CleanupResult, error) {
	res := &CleanupResult{}
	if params.IP == "" {
		res.Warnings = append(res.Warnings, "no server IP recorded, skipped live cleanup")
		return res, nil
	}

	sess, err := a.dial(ctx, params.Client, params.IP)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("unreachable: %v", err))
		return res, nil
	}
	defer sess.Close()

	if err := remote.Cleanup(ctx, sess); err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				res.Warnings = append(res.Warnings, e.Error())
			}
		} else {
			res.Warnings = append(res.Warnings, err.Error())
		}
	}
	a.logger.Info().
		Str("client", params.Client).
		Int("warnings", len(res.Warnings)).
		Msg("live cleanup finished")
	return res, nil
}

// GrowFilesystem extends the filesystem on a resized data volume.
func (a *Host) GrowFilesystem(ctx context.Context, params GrowFilesystemParams) error {
	sess, err := a.dial(ctx, params.Client, params.IP)
	if err != nil {
		return err
	}
	defer sess.Close()

	out, err := sess.Run(ctx, "resize2fs "+cloud.DevicePath(params.VolumeID))
	if err != nil {
		return fmt.Errorf("resize2fs on %s: %w", params.Client, err)
	}
	a.logger.Info().Str("client", params.Client).Str("output", strings.TrimSpace(out)).Msg("filesystem grown")
	return nil
}
