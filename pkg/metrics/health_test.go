package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(t *testing.T) {
	t.Helper()
	healthChecker = newHealthChecker()
}

func TestRegisterComponent(t *testing.T) {
	resetHealth(t)

	RegisterComponent("storage", true, "open")

	require.Len(t, healthChecker.components, 1)
	comp := healthChecker.components["storage"]
	assert.True(t, comp.Healthy)
	assert.Equal(t, "open", comp.Message)

	UnregisterComponent("storage")
	assert.Empty(t, healthChecker.components)
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		wantStatus string
	}{
		{"no components", nil, "healthy"},
		{"all healthy", map[string]bool{"storage": true, "dispatch": true}, "healthy"},
		{"one unhealthy", map[string]bool{"storage": false, "dispatch": true}, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			SetVersion("0.1.0")
			for name, healthy := range tt.components {
				RegisterComponent(name, healthy, "closed")
			}

			health := GetHealth()
			assert.Equal(t, tt.wantStatus, health.Status)
			assert.Len(t, health.Components, len(tt.components))
			assert.Equal(t, "0.1.0", health.Version)
		})
	}
}

func TestGetHealth_UnhealthyMessage(t *testing.T) {
	resetHealth(t)
	RegisterComponent("storage", false, "database closed")

	assert.Equal(t, "unhealthy: database closed", GetHealth().Components["storage"])
}

func TestGetReadiness(t *testing.T) {
	resetHealth(t)

	readiness := GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)
	assert.Equal(t, "waiting for dispatch", readiness.Message)
	assert.Equal(t, "not registered", readiness.Components["storage"])

	RegisterComponent(ComponentDispatch, true, "")
	RegisterComponent(ComponentStorage, false, "quota exceeded")
	readiness = GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)
	assert.Equal(t, "waiting for storage", readiness.Message)

	UpdateComponent(ComponentStorage, true, "")
	readiness = GetReadiness()
	assert.Equal(t, "ready", readiness.Status)
	assert.Empty(t, readiness.Message)
}

func TestHandlers(t *testing.T) {
	resetHealth(t)
	RegisterComponent(ComponentStorage, true, "")

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"health", HealthHandler(), http.StatusOK},
		{"ready without dispatch", ReadyHandler(), http.StatusServiceUnavailable},
		{"liveness", LivenessHandler(), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["status"])
		})
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetHealth(t)
	RegisterComponent(ComponentDispatch, false, "stopped")

	rec := httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
