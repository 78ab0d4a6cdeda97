package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T, registry *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	if err := m.Track("permissions:refresh").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := errors.New("boom")
	if err := m.Track("permissions:refresh").End(want); !errors.Is(err, want) {
		t.Fatalf("expected error to pass through, got %v", err)
	}

	body := scrape(t, registry)
	for _, line := range []string{
		`odyssey_jobs_total{job="permissions:refresh",status="success"} 1`,
		`odyssey_jobs_total{job="permissions:refresh",status="failure"} 1`,
		`odyssey_jobs_failures_total{job="permissions:refresh"} 1`,
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in: %s", line, body)
		}
	}
}

func TestAddRefreshedIgnoresEmptyRuns(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.AddRefreshed("permissions:catalog_warmup", 0)
	m.AddRefreshed("permissions:catalog_warmup", 3)

	body := scrape(t, registry)
	if !strings.Contains(body, `odyssey_permission_companies_refreshed_total{job="permissions:catalog_warmup"} 3`) {
		t.Fatalf("expected refreshed counter, got: %s", body)
	}

	var nilMetrics *Metrics
	nilMetrics.AddRefreshed("x", 1)
	if err := nilMetrics.Track("x").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTrackerStampsLastSuccess(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	clock := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return clock }

	_ = m.Track("permissions:catalog_warmup").End(errors.New("redis down"))
	if body := scrape(t, registry); strings.Contains(body, `odyssey_job_last_success_timestamp_seconds{job="permissions:catalog_warmup"}`) {
		t.Fatalf("failed run must not stamp last success: %s", body)
	}

	_ = m.Track("permissions:catalog_warmup").End(nil)
	body := scrape(t, registry)
	if !strings.Contains(body, `odyssey_job_last_success_timestamp_seconds{job="permissions:catalog_warmup"} 1.7e+09`) {
		t.Fatalf("expected last success stamp, got: %s", body)
	}
}
