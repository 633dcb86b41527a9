package server

import (
	"fmt"
	"net/http"

	"marketplace/internal/access"
	"marketplace/internal/gateway"
	"marketplace/internal/metrics"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes builds the router. Every API route comes from the policy
// table: its rule decides whether the gate and the path owner check run
// in front of the handler.
func (s *Server) RegisterRoutes() http.Handler {
	r := gin.New()
	// gin trusts every proxy until told otherwise
	if err := r.SetTrustedProxies(s.deps.TrustedProxies); err != nil {
		panic(fmt.Sprintf("server: invalid trusted proxies: %v", err))
	}
	r.Use(
		gin.Recovery(),
		gateway.RequestIDMiddleware(),
		gateway.LoggingMiddleware(),
		gateway.MetricsMiddleware(s.httpRec),
		gateway.CORS(s.deps.CORSOrigins),
	)

	r.GET("/", s.bannerHandler)
	r.GET("/health", s.healthHandler)
	if s.deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(s.deps.Gatherer)))
	}

	handlers := s.operationHandlers()
	gate := gateway.RequireCredential(s.deps.Codec, s.deps.Cookies, s.authRec)

	for _, rule := range s.policy.Table().Rules() {
		handler, ok := handlers[rule.Operation]
		if !ok {
			panic(fmt.Sprintf("server: no handler for operation %q", rule.Operation))
		}

		var chain []gin.HandlerFunc
		if rule.Operation == access.OpLogin && s.deps.Limiter != nil {
			chain = append(chain, s.deps.Limiter.Middleware())
		}
		if rule.Auth {
			chain = append(chain, gate)
		}
		if rule.Check == access.CheckPathEmail {
			chain = append(chain, s.policy.RequirePathOwner(rule))
		}
		chain = append(chain, handler)

		r.Handle(rule.Method, rule.Path, chain...)
	}

	return r
}

func (s *Server) operationHandlers() map[access.Operation]gin.HandlerFunc {
	return map[access.Operation]gin.HandlerFunc{
		access.OpLogin:           s.auth.Login,
		access.OpLogout:          s.auth.Logout,
		access.OpListJobs:        s.jobs.List,
		access.OpFetchJob:        s.jobs.Get,
		access.OpCreateJob:       s.jobs.Create,
		access.OpCreateBid:       s.bids.Create,
		access.OpListJobsByOwner: s.jobs.ListByOwner,
		access.OpUpdateJob:       s.jobs.Update,
		access.OpDeleteJob:       s.jobs.Delete,
		access.OpListMyBids:      s.bids.ListMine,
		access.OpListBidRequests: s.bids.ListRequests,
		access.OpPatchBidStatus:  s.bids.PatchStatus,
	}
}

func (s *Server) bannerHandler(c *gin.Context) {
	c.String(http.StatusOK, "Hello from the marketplace server....")
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK

	database := s.deps.Store.Health(ctx)
	if database["status"] != "up" {
		status = http.StatusServiceUnavailable
	}

	response := gin.H{
		"database": database,
		"policy":   string(s.policy.Table().Mode()),
	}
	if s.deps.Cache != nil {
		// the cache is optional, so a down cache does not fail the check
		response["cache"] = s.deps.Cache.Health(ctx)
	}

	c.JSON(status, response)
}
