package jobs

import (
	"errors"
	"log/slog"
	"net/http"

	"marketplace/internal/access"
	"marketplace/internal/database"
	"marketplace/internal/gateway"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for jobs.
type Handler struct {
	service *Service
	policy  *access.Policy
}

// NewHandler creates a jobs handler enforcing policy.
func NewHandler(service *Service, policy *access.Policy) *Handler {
	return &Handler{service: service, policy: policy}
}

// List handles GET /jobs
func (h *Handler) List(c *gin.Context) {
	jobs, err := h.service.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// Get handles GET /job/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	job, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Create handles POST /job
func (h *Handler) Create(c *gin.Context) {
	body, ok := bindDocument(c)
	if !ok {
		return
	}

	claim, _ := gateway.ClaimFromContext(c)
	if err := h.policy.CheckBody(h.policy.Rule(access.OpCreateJob), claim, body); err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.service.Create(c.Request.Context(), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListByOwner handles GET /jobs/:email. The path email has already been
// compared with the claim; the filter is built from the claim.
func (h *Handler) ListByOwner(c *gin.Context) {
	claim, _ := gateway.ClaimFromContext(c)
	filter := h.policy.ListFilter(h.policy.Rule(access.OpListJobsByOwner), claim, c.Param(access.EmailParam))

	jobs, err := h.service.FindByOwner(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// Update handles PUT /job/:id. The body is $set onto the job, which is
// created when absent.
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	body, ok := bindDocument(c)
	if !ok {
		return
	}

	rule := h.policy.Rule(access.OpUpdateJob)
	claim, _ := gateway.ClaimFromContext(c)
	if rule.Check == access.CheckStoredOwner {
		// read the owner first so a mismatch answers 403 without a write
		stored, err := h.service.Stored(c.Request.Context(), id)
		if err != nil && !errors.Is(err, ErrJobNotFound) {
			h.fail(c, err)
			return
		}
		if err := h.policy.CheckStored(rule, claim, stored, body); err != nil {
			h.fail(c, err)
			return
		}
	}

	// the guard keeps the write conditional on the owner just checked
	res, err := h.service.Update(c.Request.Context(), id, h.policy.OwnerGuard(rule, claim), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /job/:id
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rule := h.policy.Rule(access.OpDeleteJob)
	claim, _ := gateway.ClaimFromContext(c)
	if rule.Check == access.CheckStoredOwner {
		stored, err := h.service.Stored(c.Request.Context(), id)
		if err != nil {
			h.fail(c, err)
			return
		}
		if err := h.policy.CheckStored(rule, claim, stored, nil); err != nil {
			h.fail(c, err)
			return
		}
	}

	res, err := h.service.Delete(c.Request.Context(), id, h.policy.OwnerGuard(rule, claim))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrJobNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "job not found"})
	case errors.Is(err, access.ErrForbidden), errors.Is(err, database.ErrDuplicateID):
		// a guarded upsert collides when the owner changed after the check
		gateway.AbortForbidden(c)
	default:
		_ = c.Error(err)
		slog.Error("Job request failed",
			"error", err,
			"path", c.Request.URL.Path,
			"request_id", gateway.RequestID(c),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
	}
}

func parseID(c *gin.Context) (string, bool) {
	id, err := database.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid id"})
		return "", false
	}
	return id, true
}

// bindDocument decodes a JSON object body.
func bindDocument(c *gin.Context) (database.Document, bool) {
	var body database.Document
	if err := c.ShouldBindJSON(&body); err != nil || body == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "request body must be a JSON object"})
		return nil, false
	}
	return body, true
}
