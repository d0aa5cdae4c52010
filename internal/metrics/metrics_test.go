package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(prometheus.NewRegistry())
}

func TestObserveRequest(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveRequest("GET", "/api/feedback", 200, 15*time.Millisecond)
	m.ObserveRequest("GET", "/api/feedback", 200, 5*time.Millisecond)
	m.ObserveRequest("POST", "/api/feedback", 422, time.Millisecond)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/feedback", "200")); got != 2 {
		t.Fatalf("GET 200 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/api/feedback", "422")); got != 1 {
		t.Fatalf("POST 422 = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.RequestDuration); got != 2 {
		t.Fatalf("duration series = %d, want 2", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m := newTestMetrics(t)
	m.ReactionToggled("like", "added")
	m.CommentCreated()
	m.CommentCreated()
	m.Notification("skipped")
	m.CommentCountsLoaded("fallback")
	m.Searched("postgres")
	m.Exported("pdf")
	m.SetActiveViews(3)

	checks := map[string]float64{
		"reaction":     testutil.ToFloat64(m.ReactionToggles.WithLabelValues("like", "added")),
		"comments":     testutil.ToFloat64(m.CommentsTotal),
		"notification": testutil.ToFloat64(m.Notifications.WithLabelValues("skipped")),
		"counts":       testutil.ToFloat64(m.CommentCountLoads.WithLabelValues("fallback")),
		"search":       testutil.ToFloat64(m.Searches.WithLabelValues("postgres")),
		"export":       testutil.ToFloat64(m.Exports.WithLabelValues("pdf")),
		"views":        testutil.ToFloat64(m.ActiveViews),
	}
	want := map[string]float64{"reaction": 1, "comments": 2, "notification": 1, "counts": 1, "search": 1, "export": 1, "views": 3}
	for name, got := range checks {
		if got != want[name] {
			t.Fatalf("%s = %v, want %v", name, got, want[name])
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
	m.ReactionToggled("like", "added")
	m.CommentCreated()
	m.Notification("sent")
	m.CommentCountsLoaded("none")
	m.Searched("meilisearch")
	m.Exported("html")
	m.SetActiveViews(1)
}

func TestHandlerServesRegistry(t *testing.T) {
	m := newTestMetrics(t)
	m.CommentCreated()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "portal_comments_created_total 1") {
		t.Fatalf("metrics output missing comment counter:\n%s", body)
	}
}
