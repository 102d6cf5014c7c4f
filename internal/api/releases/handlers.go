// Package releases implements the organization changelog: the aggregated
// changelog view and its live stream, and release editing. Draft releases are
// only visible to callers holding the releases:write scope.
package releases

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/api/stream"
	"github.com/lanehq/lanehq/internal/auth"
	"github.com/lanehq/lanehq/internal/changelog"
	"github.com/lanehq/lanehq/internal/db/models"
	"github.com/lanehq/lanehq/internal/live"
	"github.com/lanehq/lanehq/internal/middleware"
)

// ChangelogService is the subset of changelog.Service the handlers use.
type ChangelogService interface {
	List(ctx context.Context, orgID string, showDrafts bool) (*changelog.Changelog, error)
	Create(ctx context.Context, orgID, title, notes string) (*models.Release, error)
	Get(ctx context.Context, orgID, id string) (*models.Release, error)
	Update(ctx context.Context, orgID, id, title, notes string) (*models.Release, error)
	Publish(ctx context.Context, orgID, id string) (*models.Release, error)
	Unpublish(ctx context.Context, orgID, id string) (*models.Release, error)
	Delete(ctx context.Context, orgID, id string) error
	AddItem(ctx context.Context, orgID, releaseID, feedbackID string) (*models.ReleaseItem, error)
	RemoveItem(ctx context.Context, orgID, releaseID, itemID string) error
}

// Handlers serves changelog and release endpoints.
type Handlers struct {
	changelog ChangelogService
	hub       stream.Subscriber
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewHandlers creates release handlers.
func NewHandlers(svc ChangelogService, hub stream.Subscriber, heartbeat time.Duration, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{changelog: svc, hub: hub, heartbeat: heartbeat, logger: logger}
}

// canSeeDrafts reports whether the caller may see unpublished releases.
func canSeeDrafts(c *gin.Context) bool {
	return middleware.PrincipalFrom(c).Has(auth.ScopeReleasesWrite)
}

// showDrafts is true when drafts were asked for with ?drafts=true and the
// caller may see them. Other callers silently get the published changelog.
func showDrafts(c *gin.Context) bool {
	return c.Query("drafts") == "true" && canSeeDrafts(c)
}

// ChangelogHandler returns the aggregated changelog
// GET /api/v1/orgs/:org/changelog?drafts=true
func (h *Handlers) ChangelogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := middleware.OrganizationFrom(c)
		cl, err := h.changelog.List(c.Request.Context(), org.ID, showDrafts(c))
		if err != nil {
			h.writeError(c, err, "Failed to load changelog")
			return
		}
		c.JSON(http.StatusOK, cl)
	}
}

// ChangelogStreamHandler streams changelog snapshots as Server-Sent Events
// GET /api/v1/orgs/:org/changelog/stream?drafts=true
func (h *Handlers) ChangelogStreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := middleware.OrganizationFrom(c)
		drafts := showDrafts(c)
		read := func(ctx context.Context) (interface{}, int64, error) {
			cl, err := h.changelog.List(ctx, org.ID, drafts)
			if err != nil {
				return nil, 0, err
			}
			return cl, cl.Revision, nil
		}
		stream.Serve(c, h.hub, stream.Options{Topic: live.ChangelogTopic(org.ID), Heartbeat: h.heartbeat}, read, h.logger)
	}
}

type releaseRequest struct {
	Title string `json:"title"`
	Notes string `json:"notes"`
}

// CreateReleaseHandler creates a draft release
// POST /api/v1/orgs/:org/releases
func (h *Handlers) CreateReleaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req releaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		org := middleware.OrganizationFrom(c)
		rel, err := h.changelog.Create(c.Request.Context(), org.ID, req.Title, req.Notes)
		if err != nil {
			h.writeError(c, err, "Failed to create release")
			return
		}
		c.JSON(http.StatusCreated, rel)
	}
}

// GetReleaseHandler returns one release. Drafts answer 404 to callers that
// cannot see them.
// GET /api/v1/orgs/:org/releases/:release
func (h *Handlers) GetReleaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := middleware.OrganizationFrom(c)
		rel, err := h.changelog.Get(c.Request.Context(), org.ID, c.Param("release"))
		if err != nil {
			h.writeError(c, err, "Failed to get release")
			return
		}
		if rel.IsDraft() && !canSeeDrafts(c) {
			h.writeError(c, changelog.ErrReleaseNotFound, "")
			return
		}
		c.JSON(http.StatusOK, rel)
	}
}

// UpdateReleaseHandler replaces a release's title and notes
// PUT /api/v1/orgs/:org/releases/:release
func (h *Handlers) UpdateReleaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req releaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		org := middleware.OrganizationFrom(c)
		rel, err := h.changelog.Update(c.Request.Context(), org.ID, c.Param("release"), req.Title, req.Notes)
		if err != nil {
			h.writeError(c, err, "Failed to update release")
			return
		}
		c.JSON(http.StatusOK, rel)
	}
}

// DeleteReleaseHandler deletes a release. Its feedback becomes unshipped.
// DELETE /api/v1/orgs/:org/releases/:release
func (h *Handlers) DeleteReleaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := middleware.OrganizationFrom(c)
		if err := h.changelog.Delete(c.Request.Context(), org.ID, c.Param("release")); err != nil {
			h.writeError(c, err, "Failed to delete release")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Release deleted successfully"})
	}
}

// PublishReleaseHandler publishes a draft and announces it
// POST /api/v1/orgs/:org/releases/:release/publish
func (h *Handlers) PublishReleaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := middleware.OrganizationFrom(c)
		rel, err := h.changelog.Publish(c.Request.Context(), org.ID, c.Param("release"))
		if err != nil {
			h.writeError(c, err, "Failed to publish release")
			return
		}
		c.JSON(http.StatusOK, rel)
	}
}

// UnpublishReleaseHandler turns a published release back into a draft
// POST /api/v1/orgs/:org/releases/:release/unpublish
func (h *Handlers) UnpublishReleaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := middleware.OrganizationFrom(c)
		rel, err := h.changelog.Unpublish(c.Request.Context(), org.ID, c.Param("release"))
		if err != nil {
			h.writeError(c, err, "Failed to unpublish release")
			return
		}
		c.JSON(http.StatusOK, rel)
	}
}

// AddItemHandler attaches a feedback item to a release
// POST /api/v1/orgs/:org/releases/:release/items
func (h *Handlers) AddItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			FeedbackID string `json:"feedback_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		org := middleware.OrganizationFrom(c)
		item, err := h.changelog.AddItem(c.Request.Context(), org.ID, c.Param("release"), req.FeedbackID)
		if err != nil {
			h.writeError(c, err, "Failed to add release item")
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

// RemoveItemHandler detaches an item from a release
// DELETE /api/v1/orgs/:org/releases/:release/items/:item
func (h *Handlers) RemoveItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := middleware.OrganizationFrom(c)
		if err := h.changelog.RemoveItem(c.Request.Context(), org.ID, c.Param("release"), c.Param("item")); err != nil {
			h.writeError(c, err, "Failed to remove release item")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Release item removed successfully"})
	}
}

func (h *Handlers) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, changelog.ErrOrganizationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found", "state": "not_found"})
	case errors.Is(err, changelog.ErrReleaseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Release not found"})
	case errors.Is(err, changelog.ErrFeedbackNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Feedback item not found"})
	case errors.Is(err, changelog.ErrReleaseItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Release item not found"})
	case errors.Is(err, changelog.ErrAlreadyShipped),
		errors.Is(err, changelog.ErrAlreadyPublished),
		errors.Is(err, changelog.ErrNotPublished):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, changelog.ErrEmptyTitle), errors.Is(err, changelog.ErrTitleTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(fallback, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
