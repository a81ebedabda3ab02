package telemetry_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/krskas/slack-task-tracker/pkg/telemetry"
)

func TestMetricsHandler_HealthEndpoints(t *testing.T) {
	var down error
	h := telemetry.MetricsHandler(func(context.Context) error { return down })

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	down = errors.New("postgres unreachable")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres unreachable")
}

func TestReadyHandler_NilIsReady(t *testing.T) {
	rec := httptest.NewRecorder()
	telemetry.ReadyHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
