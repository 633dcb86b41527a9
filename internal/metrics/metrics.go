// Package metrics exposes Prometheus counters for authorization decisions
// and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"marketplace/internal/credential"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Authorization outcomes recorded by the gate and the ownership policy.
// Verification failures are labelled with their credential.Reason.
const (
	OutcomeAdmitted     = "admitted"
	OutcomeNoCredential = "no_credential"
	OutcomeMalformed    = string(credential.ReasonMalformed)
	OutcomeBadSignature = string(credential.ReasonBadSignature)
	OutcomeExpired      = string(credential.ReasonExpired)
	OutcomeForbidden    = "forbidden"
)

// AuthRecorder records authorization decisions.
type AuthRecorder interface {
	RecordAuthDecision(outcome string)
}

// RequestRecorder records completed HTTP requests.
type RequestRecorder interface {
	RecordRequest(method, route string, status int, latency time.Duration)
}

// Collector is the Prometheus-backed implementation of both recorders.
type Collector struct {
	authDecisions  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_auth_decisions_total",
			Help: "Authorization decisions by outcome",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketplace_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(c.authDecisions, c.httpRequests, c.requestLatency)

	return c
}

// RecordAuthDecision increments the counter for outcome.
func (c *Collector) RecordAuthDecision(outcome string) {
	c.authDecisions.WithLabelValues(outcome).Inc()
}

// RecordRequest records one completed request.
func (c *Collector) RecordRequest(method, route string, status int, latency time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestLatency.WithLabelValues(method, route).Observe(latency.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every record. Used when metrics are not wired.
type Nop struct{}

func (Nop) RecordAuthDecision(string) {}

func (Nop) RecordRequest(string, string, int, time.Duration) {}
