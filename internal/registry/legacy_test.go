package registry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/clientops/internal/model"
)

const legacyDoc = `clients:
  acme:
    status: deployed
    role: canary
    deployed_date: "2025-01-10"
    server:
      type: cx22
      location: fsn1
      ip: 203.0.113.10
      id: 4711
    apps: [authentik, nextcloud]
    versions:
      nextcloud: "29.0.1"
    maintenance:
      last_full_update: "2025-06-01"
    urls:
      nextcloud: https://nextcloud.acme.vrije.cloud
  blue:
    status: active
    role: production
`

func TestImport_RejectsFreeTextStatus(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	imported, err := Import(ctx, r, strings.NewReader(legacyDoc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blue")
	assert.Contains(t, err.Error(), "active")
	assert.Equal(t, []string{"acme"}, imported)

	c, err := r.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDeployed, c.Status)
	assert.Equal(t, model.RoleCanary, c.Role)
	assert.Equal(t, int64(4711), c.Server.ID)
	assert.Equal(t, "29.0.1", c.Versions["nextcloud"])
	require.NotNil(t, c.DeployedDate)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), *c.DeployedDate)
	require.NotNil(t, c.Maintenance.LastFullUpdate)

	_, err = r.Get(ctx, "blue")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExport_RoundTripAndDeterministic(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	valid := strings.Replace(legacyDoc, "status: active", "status: pending", 1)
	_, err := Import(ctx, r, strings.NewReader(valid))
	require.NoError(t, err)

	var first, second bytes.Buffer
	require.NoError(t, Export(ctx, r, &first))
	require.NoError(t, Export(ctx, r, &second))
	assert.Equal(t, first.String(), second.String())
	assert.Less(t, strings.Index(first.String(), "acme:"), strings.Index(first.String(), "blue:"))
	assert.Contains(t, first.String(), `deployed_date: "2025-01-10"`)

	other := newTestRegistry(t)
	imported, err := Import(ctx, other, bytes.NewReader(first.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "blue"}, imported)

	c, err := other.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"authentik", "nextcloud"}, c.Apps)
}

func TestImport_InvalidYAML(t *testing.T) {
	r := newTestRegistry(t)
	_, err := Import(context.Background(), r, strings.NewReader("clients: [oops"))
	assert.ErrorContains(t, err, "decode registry")
}
