// Package session stores the session credential in a client-held cookie.
// The cookie is httpOnly so page scripts cannot read it, and its transport
// attributes follow the deployment environment.
package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieName is the cookie slot carrying the credential.
const CookieName = "token"

// Policy holds the transport attributes written with the cookie.
type Policy struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
	Path     string
}

// PolicyFor returns the default policy for an environment: Secure and
// SameSite=None in production, SameSite=Strict over plain http otherwise.
func PolicyFor(production bool) Policy {
	if production {
		return Policy{Secure: true, SameSite: http.SameSiteNoneMode, Path: "/"}
	}
	return Policy{Secure: false, SameSite: http.SameSiteStrictMode, Path: "/"}
}

// ParseSameSite converts none, lax or strict into an http.SameSite value.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return http.SameSiteNoneMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	default:
		return http.SameSiteDefaultMode, fmt.Errorf("invalid same-site policy %q (valid options: none, lax, strict)", s)
	}
}

// CookieStore puts and clears the credential cookie.
type CookieStore struct {
	policy Policy
	maxAge time.Duration
}

// NewCookieStore creates a store writing cookies that live for maxAge.
func NewCookieStore(policy Policy, maxAge time.Duration) *CookieStore {
	if policy.Path == "" {
		policy.Path = "/"
	}
	return &CookieStore{policy: policy, maxAge: maxAge}
}

// Persist sets the credential cookie on the response.
func (s *CookieStore) Persist(c *gin.Context, credential string) {
	s.write(c, credential, int(s.maxAge/time.Second))
}

// Clear expires the cookie immediately (Max-Age=0). The credential itself
// stays valid; only the browser stops attaching it.
func (s *CookieStore) Clear(c *gin.Context) {
	// gin passes a negative maxAge through as Max-Age=0
	s.write(c, "", -1)
}

// Read returns the credential attached to the request, if any.
func (s *CookieStore) Read(c *gin.Context) (string, bool) {
	value, err := c.Cookie(CookieName)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

func (s *CookieStore) write(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(s.policy.SameSite)
	c.SetCookie(
		CookieName,
		value,
		maxAge,
		s.policy.Path,
		s.policy.Domain,
		s.policy.Secure,
		true, // httpOnly
	)
}
