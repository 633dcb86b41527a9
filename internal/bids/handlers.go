package bids

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"marketplace/internal/access"
	"marketplace/internal/database"
	"marketplace/internal/gateway"
	"marketplace/internal/jobs"

	"github.com/gin-gonic/gin"
)

// JobReader loads the stored job a bid is placed on.
type JobReader interface {
	Stored(ctx context.Context, id string) (jobs.Job, error)
}

// Handler handles HTTP requests for bids.
type Handler struct {
	repo   *Repository
	jobs   JobReader
	policy *access.Policy
}

// NewHandler creates a bids handler enforcing policy. jobs resolves the
// buyer of new bids when the policy checks the body.
func NewHandler(repo *Repository, jobs JobReader, policy *access.Policy) *Handler {
	return &Handler{repo: repo, jobs: jobs, policy: policy}
}

// Create handles POST /bid
func (h *Handler) Create(c *gin.Context) {
	body, ok := bindDocument(c)
	if !ok {
		return
	}

	rule := h.policy.Rule(access.OpCreateBid)
	claim, _ := gateway.ClaimFromContext(c)
	if err := h.policy.CheckBody(rule, claim, body); err != nil {
		h.fail(c, err)
		return
	}

	if rule.Check == access.CheckBodyOwner {
		// the buyer comes from the stored job, never from the body
		raw, _ := database.LookupString(body, access.BidJobField)
		jobID, err := database.ParseID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid job id"})
			return
		}
		job, err := h.jobs.Stored(c.Request.Context(), jobID)
		if err != nil {
			h.fail(c, err)
			return
		}
		body, err = h.policy.BindBidBuyer(rule, claim, body, job)
		if err != nil {
			h.fail(c, err)
			return
		}
	}

	res, err := h.repo.Insert(c.Request.Context(), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListMine handles GET /my-bids/:email
func (h *Handler) ListMine(c *gin.Context) {
	h.list(c, access.OpListMyBids)
}

// ListRequests handles GET /bid-requests/:email
func (h *Handler) ListRequests(c *gin.Context) {
	h.list(c, access.OpListBidRequests)
}

func (h *Handler) list(c *gin.Context, op access.Operation) {
	claim, _ := gateway.ClaimFromContext(c)
	filter := h.policy.ListFilter(h.policy.Rule(op), claim, c.Param(access.EmailParam))

	bids, err := h.repo.Find(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bids)
}

// PatchStatus handles PATCH /bid/:id. The body is $set onto the bid.
func (h *Handler) PatchStatus(c *gin.Context) {
	id, err := database.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid id"})
		return
	}
	body, ok := bindDocument(c)
	if !ok {
		return
	}

	rule := h.policy.Rule(access.OpPatchBidStatus)
	claim, _ := gateway.ClaimFromContext(c)
	if rule.Check == access.CheckStoredOwner {
		stored, err := h.repo.GetByID(c.Request.Context(), id)
		if err != nil {
			h.fail(c, err)
			return
		}
		if err := h.policy.CheckStored(rule, claim, stored, body); err != nil {
			h.fail(c, err)
			return
		}
	}

	res, err := h.repo.Set(c.Request.Context(), id, h.policy.OwnerGuard(rule, claim), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrBidNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "bid not found"})
	case errors.Is(err, jobs.ErrJobNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "job not found"})
	case errors.Is(err, access.ErrForbidden):
		gateway.AbortForbidden(c)
	default:
		_ = c.Error(err)
		slog.Error("Bid request failed",
			"error", err,
			"path", c.Request.URL.Path,
			"request_id", gateway.RequestID(c),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
	}
}

func bindDocument(c *gin.Context) (database.Document, bool) {
	var body database.Document
	if err := c.ShouldBindJSON(&body); err != nil || body == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "request body must be a JSON object"})
		return nil, false
	}
	return body, true
}
