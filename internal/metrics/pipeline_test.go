package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilPipelineIsNoop(t *testing.T) {
	var p *Pipeline
	p.Finding("nse", OutcomeOK)
	p.Coalesced()
	p.ObserveStage("discovery", 1)
	if p.Registry() != nil {
		t.Fatalf("nil pipeline has no registry")
	}
}

func TestCountersAreExposed(t *testing.T) {
	p := New()
	p.Finding("nse", OutcomeOK)
	p.Finding("nse", OutcomeOK)
	p.Coalesced()
	p.FallbackApplied("listing_date")

	if got := testutil.ToFloat64(p.findings.WithLabelValues("nse", OutcomeOK)); got != 2 {
		t.Fatalf("findings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.coalesced); got != 1 {
		t.Fatalf("coalesced = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "ipo_fallback_fields_applied_total") {
		t.Fatalf("metrics output missing fallback counter")
	}
}
