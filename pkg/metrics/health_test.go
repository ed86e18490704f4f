package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func resetHealth(version string, critical ...string) {
	healthChecker = &HealthChecker{
		components: make(map[string]ComponentHealth),
		critical:   critical,
		startTime:  time.Now(),
		version:    version,
	}
}

func TestRegisterComponent(t *testing.T) {
	resetHealth("")

	RegisterComponent(ComponentCredentialStore, true, "loaded")

	if len(healthChecker.components) != 1 {
		t.Errorf("expected 1 component, got %d", len(healthChecker.components))
	}

	comp := healthChecker.components[ComponentCredentialStore]
	if !comp.Healthy {
		t.Error("component should be healthy")
	}
	if comp.Message != "loaded" {
		t.Errorf("expected message 'loaded', got '%s'", comp.Message)
	}
}

func TestGetHealth_AllHealthy(t *testing.T) {
	resetHealth("1.0.0")

	RegisterComponent(ComponentAPI, true, "")
	RegisterComponent(ComponentPeerStore, true, "")

	health := GetHealth()

	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}
	if len(health.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(health.Components))
	}
	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", health.Version)
	}
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	resetHealth("")

	RegisterComponent(ComponentAPI, true, "")
	RegisterComponent(ComponentClusterRegistry, false, "clusters.conf unreadable")

	health := GetHealth()

	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}
	if got := health.Components[ComponentClusterRegistry]; got != "unhealthy: clusters.conf unreadable" {
		t.Errorf("unexpected cluster_registry status: %s", got)
	}
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name     string
		register map[string]bool
		want     string
	}{
		{
			name:     "all critical ready",
			register: map[string]bool{ComponentAPI: true, ComponentPeerStore: true},
			want:     "ready",
		},
		{
			name:     "critical missing",
			register: map[string]bool{ComponentAPI: true},
			want:     "not_ready",
		},
		{
			name:     "critical unhealthy",
			register: map[string]bool{ComponentAPI: true, ComponentPeerStore: false},
			want:     "not_ready",
		},
		{
			name:     "non critical unhealthy",
			register: map[string]bool{ComponentAPI: true, ComponentPeerStore: true, ComponentClusterRegistry: false},
			want:     "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth("", ComponentAPI, ComponentPeerStore)
			for name, healthy := range tt.register {
				RegisterComponent(name, healthy, "")
			}

			readiness := GetReadiness()
			if readiness.Status != tt.want {
				t.Errorf("expected status '%s', got '%s'", tt.want, readiness.Status)
			}
			if tt.want == "not_ready" && readiness.Message == "" {
				t.Error("expected message explaining why not ready")
			}
		})
	}
}

func TestSetCriticalComponents(t *testing.T) {
	resetHealth("", ComponentAPI)
	RegisterComponent(ComponentAPI, true, "")

	if got := GetReadiness().Status; got != "ready" {
		t.Fatalf("expected ready, got %s", got)
	}

	SetCriticalComponents(ComponentAPI, ComponentCredentialStore)
	if got := GetReadiness().Status; got != "not_ready" {
		t.Errorf("expected not_ready after adding credential_store, got %s", got)
	}
}

func TestHealthHandler(t *testing.T) {
	resetHealth("test")
	RegisterComponent(ComponentAPI, true, "")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", health.Status)
	}
	if health.Version != "test" {
		t.Errorf("expected version 'test', got %s", health.Version)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetHealth("")
	RegisterComponent(ComponentPeerStore, false, "peers.db locked")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetHealth("", ComponentAPI, ComponentPeerStore)
	RegisterComponent(ComponentAPI, true, "")

	w := httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest("GET", "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if readiness.Components[ComponentPeerStore] != "not registered" {
		t.Errorf("unexpected peer_store readiness: %s", readiness.Components[ComponentPeerStore])
	}
}

func TestLivenessHandler(t *testing.T) {
	resetHealth("")

	w := httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest("GET", "/live", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["status"] != "alive" {
		t.Errorf("expected status 'alive', got '%s'", response["status"])
	}
	if response["uptime"] == "" {
		t.Error("uptime should not be empty")
	}
}

func TestUpdateComponent(t *testing.T) {
	resetHealth("")

	RegisterComponent(ComponentAPI, true, "ok")
	UpdateComponent(ComponentAPI, false, "listener closed")
	UpdateComponent("unknown", false, "ignored")

	comp := healthChecker.components[ComponentAPI]
	if comp.Healthy {
		t.Error("component should be unhealthy after update")
	}
	if comp.Message != "listener closed" {
		t.Errorf("expected message 'listener closed', got '%s'", comp.Message)
	}
	if _, ok := healthChecker.components["unknown"]; ok {
		t.Error("update should not register unknown components")
	}
}
