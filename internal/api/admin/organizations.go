// Package admin implements tenant management: organizations, their boards,
// release announcement targets and the audit log.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/db/models"
	"github.com/lanehq/lanehq/internal/db/repositories"
	"github.com/lanehq/lanehq/internal/middleware"
	"github.com/lanehq/lanehq/internal/notify"
	"github.com/lanehq/lanehq/internal/tenancy"
)

// Directory is the subset of tenancy.Directory the handlers use.
type Directory interface {
	CreateOrganization(ctx context.Context, slug, displayName string) (*models.Organization, error)
	ListOrganizations(ctx context.Context, limit, offset int) ([]*models.Organization, int, error)
	CreateBoard(ctx context.Context, org *models.Organization, slug, displayName string) (*models.Board, error)
	Boards(ctx context.Context, org *models.Organization) ([]*models.Board, error)
	SetNotificationURL(ctx context.Context, org *models.Organization, url string) error
}

// AuditLogs lists recorded audit entries. Implemented by repositories.AuditRepository.
type AuditLogs interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
}

// Handlers serves tenant management endpoints.
type Handlers struct {
	directory Directory
	audit     AuditLogs
	logger    *slog.Logger
}

// NewHandlers creates admin handlers. audit may be nil, which disables the audit log endpoint.
func NewHandlers(directory Directory, audit AuditLogs, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{directory: directory, audit: audit, logger: logger}
}

func pagination(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

type nameRequest struct {
	Slug        string `json:"slug" binding:"required"`
	DisplayName string `json:"display_name"`
}

// ListOrganizationsHandler lists all organizations with pagination
// GET /api/v1/orgs?page=1&per_page=20
func (h *Handlers) ListOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage := pagination(c)
		orgs, total, err := h.directory.ListOrganizations(c.Request.Context(), perPage, (page-1)*perPage)
		if err != nil {
			h.writeError(c, err, "Failed to list organizations")
			return
		}
		if orgs == nil {
			orgs = []*models.Organization{}
		}
		c.JSON(http.StatusOK, gin.H{
			"organizations": orgs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// CreateOrganizationHandler registers a tenant
// POST /api/v1/orgs
func (h *Handlers) CreateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req nameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		org, err := h.directory.CreateOrganization(c.Request.Context(), req.Slug, req.DisplayName)
		if err != nil {
			h.writeError(c, err, "Failed to create organization")
			return
		}
		c.JSON(http.StatusCreated, org)
	}
}

// GetOrganizationHandler returns the resolved organization
// GET /api/v1/orgs/:org
func (h *Handlers) GetOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, middleware.OrganizationFrom(c))
	}
}

// ListBoardsHandler lists the organization's boards
// GET /api/v1/orgs/:org/boards
func (h *Handlers) ListBoardsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		boards, err := h.directory.Boards(c.Request.Context(), middleware.OrganizationFrom(c))
		if err != nil {
			h.writeError(c, err, "Failed to list boards")
			return
		}
		if boards == nil {
			boards = []*models.Board{}
		}
		c.JSON(http.StatusOK, gin.H{"boards": boards})
	}
}

// CreateBoardHandler adds a board to the organization
// POST /api/v1/orgs/:org/boards
func (h *Handlers) CreateBoardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req nameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		board, err := h.directory.CreateBoard(c.Request.Context(), middleware.OrganizationFrom(c), req.Slug, req.DisplayName)
		if err != nil {
			h.writeError(c, err, "Failed to create board")
			return
		}
		c.JSON(http.StatusCreated, board)
	}
}

// ResolveBoardHandler reports the resolution of an organization and board slug pair
// GET /api/v1/orgs/:org/boards/:board
func (h *Handlers) ResolveBoardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, tenancy.Resolution{
			State:        tenancy.StateFound,
			Organization: middleware.OrganizationFrom(c),
			Board:        middleware.BoardFrom(c),
		})
	}
}

// SetNotificationURLHandler stores or clears the release announcement target
// PUT /api/v1/orgs/:org/notifications
func (h *Handlers) SetNotificationURLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			URL string `json:"url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if err := h.directory.SetNotificationURL(c.Request.Context(), middleware.OrganizationFrom(c), req.URL); err != nil {
			h.writeError(c, err, "Failed to update notification target")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Notification target updated", "enabled": req.URL != ""})
	}
}

// ListAuditLogsHandler lists the organization's audit entries newest first
// GET /api/v1/orgs/:org/audit-logs?user_id=&resource_type=&action=POST&since=2026-01-02T15:04:05Z&page=1&per_page=20
func (h *Handlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.audit == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "Audit logging is not enabled"})
			return
		}
		page, perPage := pagination(c)

		orgID := middleware.OrganizationFrom(c).ID
		filters := repositories.AuditFilters{OrganizationID: &orgID}
		if v := c.Query("user_id"); v != "" {
			filters.UserID = &v
		}
		if v := c.Query("resource_type"); v != "" {
			filters.ResourceType = &v
		}
		if v := c.Query("action"); v != "" {
			filters.ActionPrefix = &v
		}
		if v := c.Query("since"); v != "" {
			since, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC 3339 timestamp"})
				return
			}
			filters.Since = &since
		}

		logs, total, err := h.audit.ListAuditLogs(c.Request.Context(), filters, perPage, (page-1)*perPage)
		if err != nil {
			h.writeError(c, err, "Failed to list audit logs")
			return
		}
		if logs == nil {
			logs = []*models.AuditLog{}
		}
		c.JSON(http.StatusOK, gin.H{
			"audit_logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

func (h *Handlers) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, tenancy.ErrOrganizationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found", "state": tenancy.StateNotFound})
	case errors.Is(err, tenancy.ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, tenancy.ErrInvalidSlug),
		errors.Is(err, tenancy.ErrDisplayNameTooLong),
		errors.Is(err, notify.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tenancy.ErrNotificationsOff):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	default:
		h.logger.Error(fallback, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
