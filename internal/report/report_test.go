package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/clientops/internal/model"
)

func client(name string, status model.Status, versions map[string]string) *model.Client {
	c := model.NewClient(name)
	c.Status = status
	c.Server = model.Server{Type: "cx22", Location: "fsn1", IP: "203.0.113.1"}
	for k, v := range versions {
		c.Versions[k] = v
	}
	return c
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"table", "json", "csv", "summary"} {
		f, err := ParseFormat(s)
		require.NoError(t, err)
		assert.Equal(t, Format(s), f)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestWrite_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, []*model.Client{client("acme", model.StatusDeployed, nil)}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, listColumns, records[0])
	assert.Equal(t, "acme", records[1][0])
	assert.Equal(t, "deployed", records[1][1])
	assert.Equal(t, "zitadel,nextcloud", records[1][7])
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, FormatJSON, []*model.Client{client("acme", model.StatusDeployed, nil)}))
	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "acme", out[0]["name"])
}

func TestWrite_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatTable, []*model.Client{client("acme", model.StatusDeployed, nil)}))
	assert.Contains(t, buf.String(), "NAME")
	assert.Contains(t, buf.String(), "acme")
}

func TestSummarize(t *testing.T) {
	clients := []*model.Client{
		client("a", model.StatusDeployed, nil),
		client("b", model.StatusDeployed, nil),
		client("c", model.StatusDestroyed, nil),
	}
	clients[0].Role = model.RoleCanary

	c := Summarize(clients)
	assert.Equal(t, 3, c.Total)
	assert.Equal(t, 2, c.ByStatus[model.StatusDeployed])
	assert.Equal(t, 1, c.ByStatus[model.StatusDestroyed])
	assert.Equal(t, 1, c.ByRole[model.RoleCanary])
	assert.Equal(t, 2, c.ByRole[model.RoleProduction])

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatSummary, clients))
	assert.Contains(t, buf.String(), "total")
	assert.Contains(t, buf.String(), "offboarding")
}

func TestOutdated(t *testing.T) {
	clients := []*model.Client{
		client("acme", model.StatusDeployed, map[string]string{"nextcloud": "29.0.1-apache", "traefik": "v3.1"}),
		client("blue", model.StatusDeployed, map[string]string{"nextcloud": "30.0.2-apache", "traefik": "v3.1"}),
		client("cyan", model.StatusDeployed, map[string]string{"nextcloud": "latest", "authentik": "2024.8.3"}),
		client("dune", model.StatusDeployed, map[string]string{"authentik": "2024.10.1"}),
	}

	all := Outdated(clients, "")
	assert.Equal(t, []OutdatedEntry{
		{App: "authentik", Client: "cyan", Version: "2024.8.3", Latest: "2024.10.1"},
		{App: "nextcloud", Client: "acme", Version: "29.0.1-apache", Latest: "30.0.2-apache"},
	}, all)

	nc := Outdated(clients, "traefik")
	assert.Empty(t, nc)
}

func TestStale(t *testing.T) {
	now := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	recent := now.AddDate(0, 0, -10)
	old := now.AddDate(0, 0, -120)
	older := now.AddDate(0, 0, -200)

	a := client("acme", model.StatusDeployed, nil)
	a.Maintenance.LastFullUpdate = &recent
	b := client("blue", model.StatusDeployed, nil)
	b.Maintenance.LastFullUpdate = &old
	c := client("cyan", model.StatusDeployed, nil)
	d := client("dune", model.StatusDeployed, nil)
	d.Maintenance.LastFullUpdate = &older

	got := Stale([]*model.Client{a, b, c, d}, 90, now)
	require.Len(t, got, 3)
	assert.Equal(t, "cyan", got[0].Client)
	assert.Equal(t, -1, got[0].AgeDays)
	assert.Equal(t, "dune", got[1].Client)
	assert.Equal(t, 200, got[1].AgeDays)
	assert.Equal(t, "blue", got[2].Client)

	var buf bytes.Buffer
	require.NoError(t, WriteStale(&buf, got))
	assert.True(t, strings.Contains(buf.String(), "never updated"))
}
