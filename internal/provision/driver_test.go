package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/terraform-exec/tfexec"
	tfjson "github.com/hashicorp/terraform-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/clientops/internal/model"
)

type fakeTerraform struct {
	changes    bool
	applyErr   error
	state      *tfjson.State
	applyOpts  int
	destroyOpt int
	calls      []string
}

func (f *fakeTerraform) Init(context.Context, ...tfexec.InitOption) error {
	f.calls = append(f.calls, "init")
	return nil
}

func (f *fakeTerraform) Plan(_ context.Context, opts ...tfexec.PlanOption) (bool, error) {
	f.calls = append(f.calls, "plan")
	return f.changes, nil
}

func (f *fakeTerraform) Apply(_ context.Context, opts ...tfexec.ApplyOption) error {
	f.calls = append(f.calls, "apply")
	f.applyOpts = len(opts)
	return f.applyErr
}

func (f *fakeTerraform) Destroy(_ context.Context, opts ...tfexec.DestroyOption) error {
	f.calls = append(f.calls, "destroy")
	f.destroyOpt = len(opts)
	return nil
}

func (f *fakeTerraform) Show(context.Context, ...tfexec.ShowOption) (*tfjson.State, error) {
	f.calls = append(f.calls, "show")
	return f.state, nil
}

func TestTargets(t *testing.T) {
	targets := Targets("acme")
	assert.Contains(t, targets, `hcloud_server.client["acme"]`)
	assert.Contains(t, targets, `hcloud_volume.nextcloud_data["acme"]`)
	assert.Contains(t, targets, `hcloud_volume_attachment.nextcloud_data["acme"]`)
	assert.Contains(t, targets, `hcloud_ssh_key.client["acme"]`)
	assert.Contains(t, targets, `hcloud_zone_rrset.client_apex["acme"]`)
	assert.Contains(t, targets, `hcloud_zone_rrset.client_wildcard["acme"]`)
	for _, tgt := range targets {
		assert.NotContains(t, tgt, "blue")
	}
}

func TestDriver_ApplyAndDestroyAreTargeted(t *testing.T) {
	fake := &fakeTerraform{changes: true}
	d := NewDriverWith(fake, zerolog.Nop())
	ctx := context.Background()

	changes, err := d.Plan(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, changes)

	require.NoError(t, d.Apply(ctx, "acme"))
	assert.Equal(t, 1+len(Targets("acme")), fake.applyOpts)

	require.NoError(t, d.Destroy(ctx, "acme"))
	assert.Equal(t, 1+len(Targets("acme")), fake.destroyOpt)
}

func TestDriver_ApplyFailureIsToolError(t *testing.T) {
	fake := &fakeTerraform{applyErr: errors.New("Error: server type not found")}
	d := NewDriverWith(fake, zerolog.Nop())

	err := d.Apply(context.Background(), "acme")
	var te *model.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "tofu", te.Tool)
	assert.Equal(t, "apply", te.Args[0])
	assert.Equal(t, -1, te.ExitCode)
	assert.Contains(t, te.Error(), "server type not found")
}

func TestDriver_Instances(t *testing.T) {
	fake := &fakeTerraform{state: &tfjson.State{
		Values: &tfjson.StateValues{RootModule: &tfjson.StateModule{
			Resources: []*tfjson.StateResource{
				{
					Address: `hcloud_server.client["acme"]`,
					Mode:    tfjson.ManagedResourceMode,
					Type:    "hcloud_server",
					AttributeValues: map[string]interface{}{
						"id":           "4711",
						"name":         "acme",
						"ipv4_address": "203.0.113.10",
						"server_type":  "cx22",
						"location":     "fsn1",
						"labels":       map[string]interface{}{"client": "acme"},
					},
				},
				{
					Address:         `hcloud_server.client["blue"]`,
					Mode:            tfjson.ManagedResourceMode,
					Type:            "hcloud_server",
					AttributeValues: map[string]interface{}{"labels": map[string]interface{}{"client": "blue"}},
				},
				{
					Address:         `hcloud_volume.nextcloud_data["acme"]`,
					Mode:            tfjson.ManagedResourceMode,
					Type:            "hcloud_volume",
					AttributeValues: map[string]interface{}{"labels": map[string]interface{}{"client": "acme"}},
				},
			},
		}},
	}}
	d := NewDriverWith(fake, zerolog.Nop())

	got, err := d.Instances(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(4711), got[0].ID)
	assert.Equal(t, "203.0.113.10", got[0].IP)
	assert.Equal(t, "cx22", got[0].ServerType)

	none, err := d.Instances(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDriver_InstancesEmptyState(t *testing.T) {
	d := NewDriverWith(&fakeTerraform{state: &tfjson.State{}}, zerolog.Nop())
	got, err := d.Instances(context.Background(), "acme")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTofuEnv(t *testing.T) {
	t.Setenv("TF_LOG", "DEBUG")
	t.Setenv("TF_VAR_base_domain", "vrije.cloud")

	env := tofuEnv("tok")
	assert.NotContains(t, env, "TF_LOG")
	assert.Equal(t, "vrije.cloud", env["TF_VAR_base_domain"])
	assert.Equal(t, "tok", env["TF_VAR_hcloud_token"])
	assert.Equal(t, "tok", env["HCLOUD_TOKEN"])
}

func TestDriver_RejectsMalformedClient(t *testing.T) {
	fake := &fakeTerraform{changes: true}
	d := NewDriverWith(fake, zerolog.Nop())
	ctx := context.Background()

	for _, name := range []string{"../x", "a/b", "a,b", `a"]`} {
		var pe *model.PreconditionError
		_, err := d.Plan(ctx, name)
		require.ErrorAs(t, err, &pe, name)
		assert.Equal(t, model.InvalidClientName, pe.Kind)
		assert.ErrorAs(t, d.Apply(ctx, name), &pe)
		assert.ErrorAs(t, d.Destroy(ctx, name), &pe)
		_, err = d.Instances(ctx, name)
		assert.ErrorAs(t, err, &pe)
	}
	assert.Empty(t, fake.calls)
}
