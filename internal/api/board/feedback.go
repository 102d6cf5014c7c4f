package board

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/db/models"
	"github.com/lanehq/lanehq/internal/db/repositories"
	"github.com/lanehq/lanehq/internal/feedback"
	"github.com/lanehq/lanehq/internal/middleware"
)

// ListFeedbackHandler lists a board's feedback newest first
// GET /api/v1/orgs/:org/boards/:board/feedback?status=planned&include_archived=true&page=1&per_page=20
func (h *Handlers) ListFeedbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		var filter repositories.FeedbackFilter
		if s := c.Query("status"); s != "" {
			status := models.FeedbackStatus(s)
			if !status.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown status %q", s)})
				return
			}
			filter.Status = &status
		}
		filter.IncludeArchived = c.Query("include_archived") == "true"

		board := middleware.BoardFrom(c)
		items, total, err := h.feedback.List(c.Request.Context(), board.ID, filter, perPage, (page-1)*perPage)
		if err != nil {
			h.writeError(c, err, "Failed to list feedback")
			return
		}
		if items == nil {
			items = []*models.FeedbackItem{}
		}

		c.JSON(http.StatusOK, gin.H{
			"feedback": items,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// CreateFeedbackHandler files a new feedback item at the end of the first lane
// POST /api/v1/orgs/:org/boards/:board/feedback
func (h *Handlers) CreateFeedbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in feedback.Input
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if p := middleware.PrincipalFrom(c); p != nil && p.Subject != "" {
			subject := p.Subject
			in.AuthorID = &subject
		}

		board := middleware.BoardFrom(c)
		item, rev, err := h.feedback.Create(c.Request.Context(), board.ID, in)
		if err != nil {
			h.writeError(c, err, "Failed to create feedback")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"feedback": item, "revision": rev})
	}
}

// GetFeedbackHandler returns one item
// GET /api/v1/orgs/:org/boards/:board/feedback/:item
func (h *Handlers) GetFeedbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		board := middleware.BoardFrom(c)
		item, err := h.feedback.Get(c.Request.Context(), board.ID, c.Param("item"))
		if err != nil {
			h.writeError(c, err, "Failed to get feedback")
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

// UpdateFeedbackHandler replaces an item's title and description
// PUT /api/v1/orgs/:org/boards/:board/feedback/:item
func (h *Handlers) UpdateFeedbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in feedback.Input
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		board := middleware.BoardFrom(c)
		item, rev, err := h.feedback.Update(c.Request.Context(), board.ID, c.Param("item"), in)
		if err != nil {
			h.writeError(c, err, "Failed to update feedback")
			return
		}
		c.JSON(http.StatusOK, gin.H{"feedback": item, "revision": rev})
	}
}

// ChangeStatusHandler moves an item to the end of another lane
// PUT /api/v1/orgs/:org/boards/:board/feedback/:item/status
func (h *Handlers) ChangeStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status models.FeedbackStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		board := middleware.BoardFrom(c)
		res, err := h.feedback.ChangeStatus(c.Request.Context(), board.ID, c.Param("item"), req.Status)
		if err != nil {
			h.writeError(c, err, "Failed to change status")
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// ArchiveFeedbackHandler removes an item from the roadmap. Items are never deleted.
// DELETE /api/v1/orgs/:org/boards/:board/feedback/:item
func (h *Handlers) ArchiveFeedbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		board := middleware.BoardFrom(c)
		res, err := h.roadmap.Archive(c.Request.Context(), board.ID, c.Param("item"))
		if err != nil {
			h.writeError(c, err, "Failed to archive feedback")
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// UpvoteHandler adds one vote
// POST /api/v1/orgs/:org/boards/:board/feedback/:item/vote
func (h *Handlers) UpvoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		board := middleware.BoardFrom(c)
		votes, rev, err := h.feedback.Upvote(c.Request.Context(), board.ID, c.Param("item"))
		if err != nil {
			h.writeError(c, err, "Failed to record vote")
			return
		}
		c.JSON(http.StatusOK, gin.H{"vote_count": votes, "revision": rev})
	}
}

// item loads the :item of the resolved board, answering the request itself when
// it cannot.
func (h *Handlers) item(c *gin.Context) (*models.FeedbackItem, bool) {
	board := middleware.BoardFrom(c)
	item, err := h.feedback.Get(c.Request.Context(), board.ID, c.Param("item"))
	if err != nil {
		h.writeError(c, err, "Failed to get feedback")
		return nil, false
	}
	return item, true
}

// UploadAttachmentHandler stores a multipart "file" on an item
// POST /api/v1/orgs/:org/boards/:board/feedback/:item/attachments
func (h *Handlers) UploadAttachmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.feedback.AttachmentsEnabled() {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "Attachments are not configured"})
			return
		}
		item, ok := h.item(c)
		if !ok {
			return
		}

		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A multipart file field named \"file\" is required"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
			return
		}
		defer f.Close()

		org := middleware.OrganizationFrom(c)
		att, err := h.feedback.Upload(c.Request.Context(), org.ID, item, fh.Filename, fh.Header.Get("Content-Type"), f)
		if err != nil {
			h.writeError(c, err, "Failed to store attachment")
			return
		}
		c.JSON(http.StatusCreated, att)
	}
}

// ListAttachmentsHandler lists an item's attachments in upload order
// GET /api/v1/orgs/:org/boards/:board/feedback/:item/attachments
func (h *Handlers) ListAttachmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		item, ok := h.item(c)
		if !ok {
			return
		}
		list, err := h.feedback.Attachments(c.Request.Context(), item.ID)
		if err != nil {
			h.writeError(c, err, "Failed to list attachments")
			return
		}
		if list == nil {
			list = []*models.Attachment{}
		}
		c.JSON(http.StatusOK, gin.H{"attachments": list})
	}
}

// DownloadAttachmentHandler redirects to a pre-signed URL or streams the body
// GET /api/v1/orgs/:org/boards/:board/feedback/:item/attachments/:attachment
func (h *Handlers) DownloadAttachmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		item, ok := h.item(c)
		if !ok {
			return
		}
		att, url, body, err := h.feedback.Download(c.Request.Context(), item.ID, c.Param("attachment"))
		if err != nil {
			h.writeError(c, err, "Failed to read attachment")
			return
		}
		if url != "" {
			c.Redirect(http.StatusFound, url)
			return
		}
		defer body.Close()

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))
		c.Header("X-Checksum-SHA256", att.Checksum)
		c.DataFromReader(http.StatusOK, att.SizeBytes, att.ContentType, body, nil)
	}
}
