package gateway

import (
	"log/slog"
	"net/http"

	"marketplace/internal/credential"
	"marketplace/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Response bodies for rejected requests.
const (
	MessageUnauthorized = "unauthorized access"
	MessageForbidden    = "forbidden access"
)

// Verifier checks a raw credential and returns its claim.
type Verifier interface {
	Verify(raw string) (credential.Claim, error)
}

// CredentialReader extracts the raw credential from a request.
type CredentialReader interface {
	Read(c *gin.Context) (string, bool)
}

// AbortUnauthorized ends the request with 401.
func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": MessageUnauthorized})
}

// AbortForbidden ends the request with 403.
func AbortForbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": MessageForbidden})
}

// RequireCredential admits a request only when it carries a credential that
// verifies. Every rejection answers 401 and halts the chain; the verified
// claim is attached for the handlers that follow.
func RequireCredential(verifier Verifier, reader CredentialReader, recorder metrics.AuthRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := reader.Read(c)
		if !ok {
			recorder.RecordAuthDecision(metrics.OutcomeNoCredential)
			slog.Warn("Request rejected",
				"reason", metrics.OutcomeNoCredential,
				"path", c.Request.URL.Path,
				"request_id", RequestID(c),
			)
			AbortUnauthorized(c)
			return
		}

		claim, err := verifier.Verify(raw)
		if err != nil {
			reason := metrics.OutcomeMalformed
			if r, ok := credential.ReasonOf(err); ok {
				reason = string(r)
			}
			recorder.RecordAuthDecision(reason)
			slog.Warn("Request rejected",
				"reason", reason,
				"path", c.Request.URL.Path,
				"request_id", RequestID(c),
			)
			AbortUnauthorized(c)
			return
		}

		recorder.RecordAuthDecision(metrics.OutcomeAdmitted)
		SetClaim(c, claim)
		c.Next()
	}
}
