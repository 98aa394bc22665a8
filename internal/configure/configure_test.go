package configure

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/toolexec"
)

type fakeStreamer struct {
	cmds  []toolexec.Command
	lines []string
	err   error
}

func (f *fakeStreamer) Stream(_ context.Context, cmd toolexec.Command, onLine func(string)) error {
	f.cmds = append(f.cmds, cmd)
	for _, l := range f.lines {
		onLine(l)
	}
	return f.err
}

func TestCommand_LimitsToClient(t *testing.T) {
	d := NewDriver("/srv/ansible", "ansible-playbook", "/keys/age.txt", "tok", &fakeStreamer{}, zerolog.Nop())

	base := d.Command("acme", model.PhaseBase)
	assert.Equal(t, "ansible-playbook", base.Name)
	assert.Equal(t, "/srv/ansible", base.Dir)
	assert.Equal(t, []string{"-i", "inventory", "playbooks/setup.yml", "--limit", "acme"}, base.Args)
	assert.Contains(t, base.Env, "SOPS_AGE_KEY_FILE=/keys/age.txt")
	assert.Contains(t, base.Env, "HCLOUD_TOKEN=tok")

	apps := d.Command("acme", model.PhaseApps)
	assert.Equal(t, "playbooks/deploy.yml", apps.Args[2])
}

func TestRun_StreamsAndSucceeds(t *testing.T) {
	fake := &fakeStreamer{lines: []string{"PLAY [all]", "", "ok: [acme]"}}
	d := NewDriver("/srv/ansible", "ansible-playbook", "", "", fake, zerolog.Nop())

	require.NoError(t, d.Run(context.Background(), "acme", model.PhaseBase))
	require.Len(t, fake.cmds, 1)
}

func TestRun_FailureSurfacesExitCode(t *testing.T) {
	fake := &fakeStreamer{err: &model.ToolError{Tool: "ansible-playbook", ExitCode: 2}}
	d := NewDriver("/srv/ansible", "ansible-playbook", "", "", fake, zerolog.Nop())

	err := d.Run(context.Background(), "acme", model.PhaseApps)
	var te *model.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.ExitCode)
}
