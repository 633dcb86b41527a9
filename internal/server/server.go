// Package server assembles the marketplace HTTP API.
package server

import (
	"fmt"
	"net/http"
	"time"

	"marketplace/internal/access"
	"marketplace/internal/auth"
	"marketplace/internal/bids"
	"marketplace/internal/cache"
	"marketplace/internal/config"
	"marketplace/internal/credential"
	"marketplace/internal/database"
	"marketplace/internal/gateway"
	"marketplace/internal/jobs"
	"marketplace/internal/metrics"
	"marketplace/internal/session"

	"github.com/prometheus/client_golang/prometheus"
)

// Deps holds everything the server is built from. Store, Codec, Cookies
// and Table are required.
type Deps struct {
	Store   database.Service
	Cache   cache.Store
	Codec   *credential.Codec
	Cookies *session.CookieStore
	Table   *access.Table

	// Metrics and Gatherer are optional; without them nothing is recorded
	// and /metrics is not served.
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer

	// Limiter guards login when set.
	Limiter *gateway.RateLimiter

	CORSOrigins    []string
	// TrustedProxies may set the client IP through forwarding headers.
	// Empty trusts none.
	TrustedProxies []string
}

// Server holds the wired handlers for the HTTP API
type Server struct {
	deps    Deps
	policy  *access.Policy
	auth    *auth.Handler
	jobs    *jobs.Handler
	bids    *bids.Handler
	authRec metrics.AuthRecorder
	httpRec metrics.RequestRecorder
}

// New wires the handlers over deps.
func New(deps Deps) *Server {
	var authRec metrics.AuthRecorder = metrics.Nop{}
	var httpRec metrics.RequestRecorder = metrics.Nop{}
	if deps.Metrics != nil {
		authRec = deps.Metrics
		httpRec = deps.Metrics
	}

	policy := access.NewPolicy(deps.Table, authRec)
	jobService := jobs.NewService(jobs.NewRepository(deps.Store), deps.Cache)

	return &Server{
		deps:    deps,
		policy:  policy,
		auth:    auth.NewHandler(deps.Codec, deps.Cookies),
		jobs:    jobs.NewHandler(jobService, policy),
		bids:    bids.NewHandler(bids.NewRepository(deps.Store), jobService, policy),
		authRec: authRec,
		httpRec: httpRec,
	}
}

// NewHTTPServer configures the http.Server serving handler.
func NewHTTPServer(port int, cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
