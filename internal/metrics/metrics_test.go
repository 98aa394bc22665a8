package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveFlow(t *testing.T) {
	before := testutil.ToFloat64(FlowTotal.WithLabelValues("deploy", ResultFailed))
	ObserveFlow("deploy", errors.New("boom"))
	ObserveFlow("deploy", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(FlowTotal.WithLabelValues("deploy", ResultFailed)))
	assert.GreaterOrEqual(t, testutil.ToFloat64(FlowTotal.WithLabelValues("deploy", ResultOK)), float64(1))
}

func TestObserveToolFailure(t *testing.T) {
	before := testutil.ToFloat64(ToolFailures.WithLabelValues("tofu"))
	ObserveToolFailure("tofu")
	assert.Equal(t, before+1, testutil.ToFloat64(ToolFailures.WithLabelValues("tofu")))
}

func TestServer_ExposesCollectors(t *testing.T) {
	ObserveStep("ProvisionApply", 3*time.Second)

	srv := NewServer(":0")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "clientops_step_duration_seconds_bucket"))

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRegisterPgxPoolMetrics(t *testing.T) {
	pool, err := pgxpool.New(context.Background(), "postgres://ops@127.0.0.1:1/registry?pool_max_conns=3")
	require.NoError(t, err)
	defer pool.Close()

	RegisterPgxPoolMetrics(pool)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "clientops_registry_pool_max_conns 3")
	assert.Contains(t, body, "clientops_registry_pool_acquired_conns 0")
}
