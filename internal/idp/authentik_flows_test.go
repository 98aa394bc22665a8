package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flowFake struct {
	flows    []map[string]string
	brands   []map[string]any
	stages   []map[string]string
	bindings []map[string]any

	patchedBrands  map[string]map[string]any
	createdStage   map[string]any
	createdBinding map[string]any
	bindingTarget  string
}

func (f *flowFake) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/flows/instances/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"results": f.flows})
	})
	mux.HandleFunc("GET /api/v3/core/brands/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"results": f.brands})
	})
	mux.HandleFunc("PATCH /api/v3/core/brands/{uuid}/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if f.patchedBrands == nil {
			f.patchedBrands = map[string]map[string]any{}
		}
		f.patchedBrands[r.PathValue("uuid")] = body
		writeJSON(w, 200, map[string]any{})
	})
	mux.HandleFunc("GET /api/v3/stages/invitation/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, invitationStage, r.URL.Query().Get("name"))
		writeJSON(w, 200, map[string]any{"results": f.stages})
	})
	mux.HandleFunc("POST /api/v3/stages/invitation/", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.createdStage))
		writeJSON(w, 201, map[string]string{"pk": "st-new", "name": invitationStage})
	})
	mux.HandleFunc("GET /api/v3/flows/bindings/", func(w http.ResponseWriter, r *http.Request) {
		f.bindingTarget = r.URL.Query().Get("target")
		writeJSON(w, 200, map[string]any{"results": f.bindings})
	})
	mux.HandleFunc("POST /api/v3/flows/bindings/", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.createdBinding))
		writeJSON(w, 201, map[string]any{"pk": "b-new"})
	})
	return mux
}

func TestFindFlow_EmptySlugMatchesDesignationOnly(t *testing.T) {
	flows := []flow{
		{PK: "1", Slug: "", Designation: "authentication"},
		{PK: "2", Slug: "default-enrollment-flow", Designation: "enrollment"},
	}
	f, err := findFlow(flows, "", "enrollment")
	require.NoError(t, err)
	assert.Equal(t, "2", f.PK)
}

func TestAuthentik_EnsureRecoveryFlow(t *testing.T) {
	fake := &flowFake{
		flows: []map[string]string{
			{"pk": "f-auth", "slug": "default-authentication-flow", "designation": "authentication"},
			{"pk": "f-rec", "slug": "recovery-flow", "designation": "recovery"},
		},
		brands: []map[string]any{
			{"brand_uuid": "b-default", "default": true, "flow_recovery": nil},
			{"brand_uuid": "b-other", "default": false},
		},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	slug, err := NewAuthentik(srv.URL, "tok", nil).EnsureRecoveryFlow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "recovery-flow", slug)
	assert.Equal(t, map[string]map[string]any{
		"b-default": {"flow_recovery": "f-rec"},
	}, fake.patchedBrands)
}

func TestAuthentik_EnsureRecoveryFlow_AlreadySet(t *testing.T) {
	fake := &flowFake{
		flows:  []map[string]string{{"pk": "f-rec", "slug": "custom-recovery", "designation": "recovery"}},
		brands: []map[string]any{{"brand_uuid": "b-default", "default": true, "flow_recovery": "f-rec"}},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	slug, err := NewAuthentik(srv.URL, "tok", nil).EnsureRecoveryFlow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "custom-recovery", slug)
	assert.Empty(t, fake.patchedBrands)
}

func TestAuthentik_EnsureRecoveryFlow_NoneDefined(t *testing.T) {
	fake := &flowFake{
		flows:  []map[string]string{{"pk": "f-auth", "slug": "default-authentication-flow", "designation": "authentication"}},
		brands: []map[string]any{{"brand_uuid": "b-default", "default": true}},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	_, err := NewAuthentik(srv.URL, "tok", nil).EnsureRecoveryFlow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recovery flow")
	assert.Empty(t, fake.patchedBrands)
}

func TestAuthentik_EnsureInvitationFlow_CreatesAndBinds(t *testing.T) {
	fake := &flowFake{
		flows: []map[string]string{
			{"pk": "f-enr", "slug": "default-enrollment-flow", "designation": "enrollment"},
		},
		bindings: []map[string]any{{"pk": "b-1", "stage": "st-prompt", "order": 10}},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	slug, err := NewAuthentik(srv.URL, "tok", nil).EnsureInvitationFlow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default-enrollment-flow", slug)

	assert.Equal(t, invitationStage, fake.createdStage["name"])
	assert.Equal(t, true, fake.createdStage["continue_flow_without_invitation"])
	assert.Equal(t, "f-enr", fake.bindingTarget)
	assert.Equal(t, map[string]any{
		"target":               "f-enr",
		"stage":                "st-new",
		"order":                float64(0),
		"evaluate_on_plan":     true,
		"re_evaluate_policies": false,
	}, fake.createdBinding)
}

func TestAuthentik_EnsureInvitationFlow_AlreadyBound(t *testing.T) {
	fake := &flowFake{
		flows:    []map[string]string{{"pk": "f-enr", "slug": "signup", "designation": "enrollment"}},
		stages:   []map[string]string{{"pk": "st-1", "name": invitationStage}},
		bindings: []map[string]any{{"pk": "b-1", "stage": "st-1", "order": 0}},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	slug, err := NewAuthentik(srv.URL, "tok", nil).EnsureInvitationFlow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "signup", slug)
	assert.Nil(t, fake.createdStage)
	assert.Nil(t, fake.createdBinding)
}
