package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(WithRegistry(reg))

	r.UpstreamRequest("Ticket", "ok", 20*time.Millisecond)
	r.UpstreamRequest("Ticket", "ok", 30*time.Millisecond)
	r.UpstreamRequest("Ticket", "error", 10*time.Millisecond)
	r.PageFetched()
	r.PageRetried()
	r.CacheLookup("metrics", "hit")
	r.TierResolved("default")
	r.TechnicianFailed("omitted")
	r.RankingRun("partial", time.Second)

	if got := testutil.ToFloat64(r.upstreamRequests.WithLabelValues("Ticket", "ok")); got != 2 {
		t.Errorf("upstream ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.fetchPages); got != 1 {
		t.Errorf("fetch pages = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.technicianFailures.WithLabelValues("omitted")); got != 1 {
		t.Errorf("technician failures = %v, want 1", got)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.UpstreamRequest("Ticket", "ok", time.Millisecond)
	r.PageFetched()
	r.CacheLookup("metrics", "miss")
	r.RankingRun("complete", time.Second)
	if r.Registry() != nil {
		t.Error("nil recorder should have no registry")
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.RankingRun("complete", 2*time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `techrank_engine_ranking_runs_total{outcome="complete"} 1`) {
		t.Errorf("exposition missing ranking run counter:\n%s", rec.Body.String())
	}
}
