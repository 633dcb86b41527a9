package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketplace/internal/credential"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRecordAuthDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthDecision(OutcomeExpired)
	c.RecordAuthDecision(OutcomeExpired)
	c.RecordAuthDecision(OutcomeAdmitted)

	if got := counterValue(t, reg, "marketplace_auth_decisions_total", map[string]string{"outcome": OutcomeExpired}); got != 2 {
		t.Errorf("expired decisions = %v, want 2", got)
	}
	if got := counterValue(t, reg, "marketplace_auth_decisions_total", map[string]string{"outcome": OutcomeAdmitted}); got != 1 {
		t.Errorf("admitted decisions = %v, want 1", got)
	}
}

func TestRecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest(http.MethodGet, "/jobs/:email", 403, 5*time.Millisecond)
	c.RecordRequest(http.MethodGet, "", 404, time.Millisecond)

	labels := map[string]string{"method": "GET", "route": "/jobs/:email", "status_code": "403"}
	if got := counterValue(t, reg, "marketplace_http_requests_total", labels); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
	labels = map[string]string{"route": "unmatched", "status_code": "404"}
	if got := counterValue(t, reg, "marketplace_http_requests_total", labels); got != 1 {
		t.Errorf("unmatched requests = %v, want 1", got)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthDecision(OutcomeForbidden)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("failed to scrape: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `marketplace_auth_decisions_total{outcome="forbidden"} 1`) {
		t.Errorf("scrape output missing forbidden counter:\n%s", body)
	}
}

func TestVerificationOutcomesMatchReasons(t *testing.T) {
	for reason, outcome := range map[credential.Reason]string{
		credential.ReasonMalformed:    OutcomeMalformed,
		credential.ReasonBadSignature: OutcomeBadSignature,
		credential.ReasonExpired:      OutcomeExpired,
	} {
		if string(reason) != outcome {
			t.Errorf("outcome %q does not match reason %q", outcome, reason)
		}
	}
}
