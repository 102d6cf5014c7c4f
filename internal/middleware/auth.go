// Package middleware provides Gin HTTP middleware for authentication, authorization,
// tenant resolution, rate limiting, security headers and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → Security → CORS → OptionalAuth → RateLimit → Audit → Tenant → RequireScope → Handler
//
// Security headers run early so they appear on all responses including errors.
// Auth runs before rate limiting so authenticated callers get their own bucket.
// Audit records after the handler returns, so it also sees the tenant and the
// outcome of scope checks. Tenant resolution answers 404 before any scope
// check, so unknown boards look the same to every caller.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/auth"
)

// Context keys set by the auth middleware.
const (
	PrincipalKey  = "principal"
	UserIDKey     = "user_id"
	AuthMethodKey = "auth_method"
	ScopesKey     = "scopes"
)

// bearerToken returns the token from an "Authorization: Bearer" header.
func bearerToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", "Missing authorization header"
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "Authorization header must start with 'Bearer '"
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", "Authorization token is empty"
	}
	return token, ""
}

func setPrincipal(c *gin.Context, p *auth.Principal) {
	c.Set(PrincipalKey, p)
	c.Set(UserIDKey, p.Subject)
	c.Set(AuthMethodKey, p.Method)
	c.Set(ScopesKey, p.Scopes)
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c)
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": problem})
			return
		}
		p, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		setPrincipal(c, p)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches a principal when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier != nil {
			if token, problem := bearerToken(c); problem == "" {
				if p, err := verifier.Verify(c.Request.Context(), token); err == nil {
					setPrincipal(c, p)
				}
			}
		}
		c.Next()
	}
}

// PrincipalFrom returns the authenticated caller, or nil for anonymous requests.
func PrincipalFrom(c *gin.Context) *auth.Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}

// RequireScope aborts unless the caller holds scope. Anonymous callers get 401.
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if !p.Has(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(scope),
			})
			return
		}
		c.Next()
	}
}

// RequireAnyScope aborts unless the caller holds at least one of scopes.
func RequireAnyScope(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if !auth.HasAnyScope(p.Scopes, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Missing required scope"})
			return
		}
		c.Next()
	}
}
