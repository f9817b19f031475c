package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthLive(testConfig())(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get(envHeader))
}

func TestHealthReady(t *testing.T) {
	cases := []struct {
		name      string
		db        Pinger
		redis     Pinger
		status    int
		redisWant string
	}{
		{"db only", stubPinger{}, nil, http.StatusOK, "disabled"},
		{"db and redis", stubPinger{}, stubPinger{}, http.StatusOK, "ok"},
		{"db down", stubPinger{err: errors.New("down")}, nil, http.StatusServiceUnavailable, ""},
		{"redis down", stubPinger{}, stubPinger{err: errors.New("down")}, http.StatusServiceUnavailable, ""},
		{"db missing", nil, nil, http.StatusServiceUnavailable, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HealthReady(testConfig(), nil, tc.db, tc.redis)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body struct {
				Data struct {
					Checks map[string]string `json:"checks"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.redisWant, body.Data.Checks["redis"])
		})
	}
}

func TestTenantPingEchoesTenant(t *testing.T) {
	tenant := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req = req.WithContext(middleware.WithTenantID(req.Context(), tenant))
	rec := httptest.NewRecorder()
	TenantPing()(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), tenant.String())
}
