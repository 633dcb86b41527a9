package gateway

import (
	"marketplace/internal/credential"

	"github.com/gin-gonic/gin"
)

// Context keys set by the middleware in this package.
const (
	requestIDKey = "request_id"
	claimKey     = "claim"
	emailKey     = "email"
)

// SetClaim attaches a verified claim to the request.
func SetClaim(c *gin.Context, claim credential.Claim) {
	c.Set(claimKey, claim)
	c.Set(emailKey, claim.Email)
}

// ClaimFromContext returns the claim attached by RequireCredential.
func ClaimFromContext(c *gin.Context) (credential.Claim, bool) {
	v, ok := c.Get(claimKey)
	if !ok {
		return credential.Claim{}, false
	}
	claim, ok := v.(credential.Claim)
	return claim, ok
}

// RequestID returns the id assigned by RequestIDMiddleware.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
