// Package provision drives tofu for per-client infrastructure and edits the
// declarations file it reads.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hashicorp/terraform-exec/tfexec"
	tfjson "github.com/hashicorp/terraform-json"
	"github.com/rs/zerolog"

	"github.com/edvin/clientops/internal/model"
)

// Terraform is the subset of *tfexec.Terraform the driver uses.
type Terraform interface {
	Init(ctx context.Context, opts ...tfexec.InitOption) error
	Plan(ctx context.Context, opts ...tfexec.PlanOption) (bool, error)
	Apply(ctx context.Context, opts ...tfexec.ApplyOption) error
	Destroy(ctx context.Context, opts ...tfexec.DestroyOption) error
	Show(ctx context.Context, opts ...tfexec.ShowOption) (*tfjson.State, error)
}

// Instance is a server found in tofu state.
type Instance struct {
	Address    string `json:"address"`
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	IP         string `json:"ip"`
	ServerType string `json:"server_type"`
	Location   string `json:"location"`
}

// Driver runs target-scoped tofu operations for one client at a time.
type Driver struct {
	tf     Terraform
	logger zerolog.Logger
}

// NewDriver locates bin and prepares it to run in dir. hcloudToken is
// passed to the provider as TF_VAR_hcloud_token.
func NewDriver(dir, bin, hcloudToken string, logger zerolog.Logger) (*Driver, error) {
	execPath, err := exec.LookPath(bin)
	if err != nil {
		return nil, &model.PreconditionError{
			Kind:   model.MissingEnv,
			Detail: fmt.Sprintf("%s not found in PATH", bin),
			Remedy: "install OpenTofu or set TOFU_BIN",
		}
	}

	tf, err := tfexec.NewTerraform(dir, execPath)
	if err != nil {
		return nil, fmt.Errorf("tofu: %w", err)
	}
	if err := tf.SetEnv(tofuEnv(hcloudToken)); err != nil {
		return nil, fmt.Errorf("tofu env: %w", err)
	}

	return NewDriverWith(tf, logger), nil
}

// NewDriverWith wraps an existing Terraform handle.
func NewDriverWith(tf Terraform, logger zerolog.Logger) *Driver {
	return &Driver{tf: tf, logger: logger.With().Str("component", "provision").Logger()}
}

// Targets returns every resource address owned by client, in apply order.
func Targets(client string) []string {
	key := strconv.Quote(client)
	return []string{
		"hcloud_ssh_key.client[" + key + "]",
		"hcloud_server.client[" + key + "]",
		"hcloud_volume.nextcloud_data[" + key + "]",
		"hcloud_volume_attachment.nextcloud_data[" + key + "]",
		"hcloud_zone_rrset.client_apex[" + key + "]",
		"hcloud_zone_rrset.client_wildcard[" + key + "]",
	}
}

func (d *Driver) Init(ctx context.Context) error {
	if err := d.tf.Init(ctx, tfexec.Upgrade(false)); err != nil {
		return toolError("init", nil, err)
	}
	return nil
}

// Plan reports whether applying the client's targets would change anything.
func (d *Driver) Plan(ctx context.Context, client string) (bool, error) {
	if err := model.ValidateClientName(client); err != nil {
		return false, err
	}
	opts := []tfexec.PlanOption{tfexec.Lock(true)}
	for _, t := range Targets(client) {
		opts = append(opts, tfexec.Target(t))
	}

	changes, err := d.tf.Plan(ctx, opts...)
	if err != nil {
		return false, toolError("plan", Targets(client), err)
	}
	d.logger.Info().Str("client", client).Bool("changes", changes).Msg("plan complete")
	return changes, nil
}

// Apply creates or updates the client's resources. Any failure aborts and is
// returned as a *model.ToolError.
func (d *Driver) Apply(ctx context.Context, client string) error {
	if err := model.ValidateClientName(client); err != nil {
		return err
	}
	opts := []tfexec.ApplyOption{tfexec.Lock(true)}
	for _, t := range Targets(client) {
		opts = append(opts, tfexec.Target(t))
	}

	d.logger.Info().Str("client", client).Msg("applying")
	if err := d.tf.Apply(ctx, opts...); err != nil {
		return toolError("apply", Targets(client), err)
	}
	return nil
}

// Destroy removes every resource owned by client and nothing else.
func (d *Driver) Destroy(ctx context.Context, client string) error {
	if err := model.ValidateClientName(client); err != nil {
		return err
	}
	opts := []tfexec.DestroyOption{tfexec.Lock(true)}
	for _, t := range Targets(client) {
		opts = append(opts, tfexec.Target(t))
	}

	d.logger.Info().Str("client", client).Msg("destroying")
	if err := d.tf.Destroy(ctx, opts...); err != nil {
		return toolError("destroy", Targets(client), err)
	}
	return nil
}

// Instances returns the servers in state labelled with client.
func (d *Driver) Instances(ctx context.Context, client string) ([]Instance, error) {
	if err := model.ValidateClientName(client); err != nil {
		return nil, err
	}
	state, err := d.tf.Show(ctx)
	if err != nil {
		return nil, toolError("show", nil, err)
	}
	return instancesFromState(state, client), nil
}

func instancesFromState(state *tfjson.State, client string) []Instance {
	if state == nil || state.Values == nil || state.Values.RootModule == nil {
		return nil
	}

	var out []Instance
	var walk func(m *tfjson.StateModule)
	walk = func(m *tfjson.StateModule) {
		for _, r := range m.Resources {
			if r.Type != "hcloud_server" || r.Mode != tfjson.ManagedResourceMode {
				continue
			}
			labels, _ := r.AttributeValues["labels"].(map[string]interface{})
			if labels["client"] != client {
				continue
			}
			out = append(out, Instance{
				Address:    r.Address,
				ID:         attrInt(r.AttributeValues, "id"),
				Name:       attrString(r.AttributeValues, "name"),
				IP:         attrString(r.AttributeValues, "ipv4_address"),
				ServerType: attrString(r.AttributeValues, "server_type"),
				Location:   attrString(r.AttributeValues, "location"),
			})
		}
		for _, child := range m.ChildModules {
			walk(child)
		}
	}
	walk(state.Values.RootModule)
	return out
}

func attrString(attrs map[string]interface{}, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func attrInt(attrs map[string]interface{}, key string) int64 {
	switch v := attrs[key].(type) {
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case float64:
		return int64(v)
	}
	return 0
}

func toolError(op string, targets []string, err error) error {
	args := []string{op}
	for _, t := range targets {
		args = append(args, "-target="+t)
	}
	te := &model.ToolError{Tool: "tofu", Args: args, ExitCode: -1, Output: err.Error(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		te.ExitCode = exitErr.ExitCode()
	}
	return te
}

// tofuEnv forwards the process environment minus the TF_ variables tfexec
// manages itself.
func tofuEnv(hcloudToken string) map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(k, "TF_") && !strings.HasPrefix(k, "TF_VAR_") {
			continue
		}
		env[k] = v
	}
	if hcloudToken != "" {
		env["HCLOUD_TOKEN"] = hcloudToken
		env["TF_VAR_hcloud_token"] = hcloudToken
	}
	return env
}
