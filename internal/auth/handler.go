// Package auth issues the session credential at login and clears it at logout.
package auth

import (
	"log/slog"
	"net/http"

	"marketplace/internal/credential"
	"marketplace/internal/gateway"

	"github.com/gin-gonic/gin"
)

// Issuer signs a credential for a claim.
type Issuer interface {
	Issue(claim credential.Claim) (string, error)
}

// CookieWriter stores and clears the credential on the client.
type CookieWriter interface {
	Persist(c *gin.Context, credential string)
	Clear(c *gin.Context)
}

// Handler handles authentication-related HTTP requests
type Handler struct {
	issuer  Issuer
	cookies CookieWriter
}

// NewHandler creates a new authentication handler
func NewHandler(issuer Issuer, cookies CookieWriter) *Handler {
	return &Handler{issuer: issuer, cookies: cookies}
}

// Login handles POST /jwt
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "a valid email is required"})
		return
	}

	token, err := h.issuer.Issue(credential.Claim{Email: req.Email})
	if err != nil {
		slog.Error("Failed to issue credential",
			"error", err,
			"request_id", gateway.RequestID(c),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
		return
	}

	h.cookies.Persist(c, token)
	slog.Info("Credential issued", "email", req.Email, "request_id", gateway.RequestID(c))

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// Logout handles GET /logout. It only stops the browser from sending the
// credential; the credential stays valid until it expires.
func (h *Handler) Logout(c *gin.Context) {
	h.cookies.Clear(c)
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}
