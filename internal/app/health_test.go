package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/metrics"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, nil, http.MethodGet, "/api/health", "")
	expectStatus(t, rr, http.StatusOK)
	if decodeJSON(t, rr)["ok"] != true {
		t.Fatal("expected ok=true")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("middleware should assign a request id")
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("all dependencies up", func(t *testing.T) {
		env := newTestEnv(t)
		rr := env.do(t, nil, http.MethodGet, "/api/ready", "")
		expectStatus(t, rr, http.StatusOK)
		if decodeJSON(t, rr)["status"] != "ready" {
			t.Fatal("expected ready")
		}
	})

	t.Run("database down", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.pingFn = func(context.Context) error { return errors.New("connection refused") }
		rr := env.do(t, nil, http.MethodGet, "/api/ready", "")
		expectStatus(t, rr, http.StatusServiceUnavailable)
		checks := decodeJSON(t, rr)["checks"].(map[string]any)
		if checks["database"].(map[string]any)["status"] != "error" {
			t.Fatalf("checks = %v", checks)
		}
	})

	t.Run("redis down", func(t *testing.T) {
		env := newTestEnv(t)
		env.redis.Close()
		rr := env.do(t, nil, http.MethodGet, "/api/ready", "")
		expectStatus(t, rr, http.StatusServiceUnavailable)
		checks := decodeJSON(t, rr)["checks"].(map[string]any)
		if checks["sessions"].(map[string]any)["status"] != "error" {
			t.Fatalf("checks = %v", checks)
		}
	})
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	env := newTestEnv(t)
	env.svc.metrics = metrics.New(prometheus.NewRegistry())
	admin := env.signIn(t, "dean@school.edu", "admin")
	item := env.seedItem(t, admin, "pending", false, "")

	env.do(t, &admin, http.MethodPut, "/api/feedback/"+item.ID+"/status", `{"status":"published"}`)
	rr := env.do(t, nil, http.MethodGet, "/metrics", "")
	expectStatus(t, rr, http.StatusOK)

	body := rr.Body.String()
	want := `portal_http_requests_total{method="PUT",route="/api/feedback/:id/status",status="200"} 1`
	if !strings.Contains(body, want) {
		t.Fatalf("metrics output missing %q:\n%s", want, body)
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	current := env.signIn(t, "student@school.edu", "user")
	rr := env.do(t, &current, http.MethodGet, "/api/documents", "")
	expectStatus(t, rr, http.StatusNotFound)
}
