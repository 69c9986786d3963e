package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rayan-Walnut/wp-cloud/internal/config"
	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

type fakeProbe struct {
	name string
	err  error
}

func (p fakeProbe) Name() string                  { return p.name }
func (p fakeProbe) Check(_ context.Context) error { return p.err }

func newHealthTestServer(t *testing.T, cfg *config.Config, probes ...HealthProbe) *Server {
	t.Helper()
	srv, err := NewServer(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	srv.HealthProbes = probes
	return srv
}

func doHealthRequest(srv *Server) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, req)
	return rec
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	cfg := &config.Config{}
	cfg.Stripe.SecretKey = types.SecretString("sk_test_123")
	cfg.Cloudflare.APIToken = types.SecretString("cf_token")
	cfg.Cloudflare.AccountID = "cf_account"

	srv := newHealthTestServer(t, cfg, fakeProbe{name: "deployer"})
	rec := doHealthRequest(srv)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "WordPress Deployment API is running", body["message"])
	assert.Equal(t, true, body["stripe_configured"])
	assert.Equal(t, true, body["cloudflare_configured"])
	assert.Equal(t, true, body["deployer_available"])
	assert.NotContains(t, body, "error")
}

func TestHandleHealth_DeployerDownIs500(t *testing.T) {
	srv := newHealthTestServer(t, &config.Config{},
		fakeProbe{name: "deployer", err: errors.New("connection refused")},
	)
	rec := doHealthRequest(srv)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "API running but deployer unavailable", body["message"])
	assert.Equal(t, "connection refused", body["error"])
	assert.Equal(t, false, body["deployer_available"])
}

func TestHandleHealth_ReportsUnconfiguredIntegrations(t *testing.T) {
	srv := newHealthTestServer(t, &config.Config{}, fakeProbe{name: "deployer"})
	rec := doHealthRequest(srv)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["stripe_configured"])
	assert.Equal(t, false, body["cloudflare_configured"])
}

func TestHandleHealth_NonDeployerProbeFailureStays200(t *testing.T) {
	srv := newHealthTestServer(t, &config.Config{},
		fakeProbe{name: "deployer"},
		fakeProbe{name: "metrics", err: errors.New("throttled")},
	)
	rec := doHealthRequest(srv)

	assert.Equal(t, http.StatusOK, rec.Code)
}
