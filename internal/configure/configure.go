// Package configure runs the ansible playbooks that turn a bare server into
// a working client stack.
package configure

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/toolexec"
)

type Driver struct {
	dir        string
	bin        string
	ageKeyFile string
	hcloudTok  string
	streamer   toolexec.Streamer
	logger     zerolog.Logger
}

// NewDriver prepares a driver for the ansible directory dir. A nil streamer
// runs ansible-playbook on a local pty.
func NewDriver(dir, bin, ageKeyFile, hcloudToken string, streamer toolexec.Streamer, logger zerolog.Logger) *Driver {
	if streamer == nil {
		streamer = toolexec.PTYStreamer{}
	}
	return &Driver{
		dir:        dir,
		bin:        bin,
		ageKeyFile: ageKeyFile,
		hcloudTok:  hcloudToken,
		streamer:   streamer,
		logger:     logger.With().Str("component", "configure").Logger(),
	}
}

// Command builds the ansible-playbook invocation for one client and phase.
func (d *Driver) Command(client string, phase model.Phase) toolexec.Command {
	return toolexec.Command{
		Name: d.bin,
		Args: []string{
			"-i", "inventory",
			phase.Playbook(),
			"--limit", client,
		},
		Dir: d.dir,
		Env: []string{
			"SOPS_AGE_KEY_FILE=" + d.ageKeyFile,
			"HCLOUD_TOKEN=" + d.hcloudTok,
			"ANSIBLE_FORCE_COLOR=1",
		},
	}
}

// Run executes the playbook for phase against client only. Output is logged
// line by line. A failed run is returned as a *model.ToolError and nothing
// is rolled back.
func (d *Driver) Run(ctx context.Context, client string, phase model.Phase) error {
	log := d.logger.With().Str("client", client).Str("phase", string(phase)).Logger()
	log.Info().Str("playbook", phase.Playbook()).Msg("running playbook")

	err := d.streamer.Stream(ctx, d.Command(client, phase), func(line string) {
		if line != "" {
			log.Info().Msg(line)
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("playbook failed")
		return err
	}
	log.Info().Msg("playbook complete")
	return nil
}
