package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/db/models"
	"github.com/lanehq/lanehq/internal/tenancy"
)

// Context keys set by the tenant middleware.
const (
	OrganizationKey   = "organization"
	OrganizationIDKey = "organization_id"
	BoardKey          = "board"
)

// TenantResolver is the subset of tenancy.Resolver the middleware needs.
type TenantResolver interface {
	Organization(ctx context.Context, slug string) (tenancy.Resolution, error)
	Board(ctx context.Context, org *models.Organization, slug string) (tenancy.Resolution, error)
}

// TenantMiddleware resolves the :org and, when the route has one, :board path
// parameters. Missing entities answer 404 with the not-found state; lookup
// failures answer 500.
func TenantMiddleware(resolver TenantResolver, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		res, err := resolver.Organization(ctx, c.Param("org"))
		if err == nil && res.Found() {
			if boardSlug := c.Param("board"); boardSlug != "" {
				res, err = resolver.Board(ctx, res.Organization, boardSlug)
			}
		}
		if err != nil {
			logger.Error("tenant resolution failed", "path", c.FullPath(), "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve organization"})
			return
		}
		if !res.Found() {
			logger.Debug("tenant not found", "org", c.Param("org"), "board", c.Param("board"))
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"state": tenancy.StateNotFound})
			return
		}

		c.Set(OrganizationKey, res.Organization)
		c.Set(OrganizationIDKey, res.Organization.ID)
		if res.Board != nil {
			c.Set(BoardKey, res.Board)
		}
		c.Next()
	}
}

// OrganizationFrom returns the organization resolved by TenantMiddleware.
func OrganizationFrom(c *gin.Context) *models.Organization {
	v, _ := c.Get(OrganizationKey)
	org, _ := v.(*models.Organization)
	return org
}

// BoardFrom returns the board resolved by TenantMiddleware.
func BoardFrom(c *gin.Context) *models.Board {
	v, _ := c.Get(BoardKey)
	b, _ := v.(*models.Board)
	return b
}
