// Package board implements the board-scoped endpoints: the roadmap view, drag
// and drop moves, the live roadmap stream and feedback items with their
// attachments. Every route runs behind middleware.TenantMiddleware, so the
// organization and board are already resolved when a handler runs.
package board

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/api/stream"
	"github.com/lanehq/lanehq/internal/db/models"
	"github.com/lanehq/lanehq/internal/db/repositories"
	"github.com/lanehq/lanehq/internal/feedback"
	"github.com/lanehq/lanehq/internal/roadmap"
)

// RoadmapService is the subset of roadmap.Service the handlers use.
type RoadmapService interface {
	Lanes() *roadmap.Lanes
	Board(ctx context.Context, boardID string, filter []string) (*roadmap.View, error)
	Move(ctx context.Context, boardID string, ev roadmap.DropEvent) (*roadmap.MoveResult, error)
	Archive(ctx context.Context, boardID, itemID string) (*roadmap.MoveResult, error)
}

// FeedbackService is the subset of feedback.Service the handlers use.
type FeedbackService interface {
	Create(ctx context.Context, boardID string, in feedback.Input) (*models.FeedbackItem, int64, error)
	Get(ctx context.Context, boardID, id string) (*models.FeedbackItem, error)
	List(ctx context.Context, boardID string, filter repositories.FeedbackFilter, limit, offset int) ([]*models.FeedbackItem, int, error)
	Update(ctx context.Context, boardID, id string, in feedback.Input) (*models.FeedbackItem, int64, error)
	ChangeStatus(ctx context.Context, boardID, id string, status models.FeedbackStatus) (*roadmap.MoveResult, error)
	Upvote(ctx context.Context, boardID, id string) (int, int64, error)
	AttachmentsEnabled() bool
	Upload(ctx context.Context, orgID string, item *models.FeedbackItem, fileName, contentType string, body io.Reader) (*models.Attachment, error)
	Attachments(ctx context.Context, feedbackID string) ([]*models.Attachment, error)
	Download(ctx context.Context, feedbackID, attachmentID string) (*models.Attachment, string, io.ReadCloser, error)
}

// Handlers serves board endpoints.
type Handlers struct {
	roadmap   RoadmapService
	feedback  FeedbackService
	hub       stream.Subscriber
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewHandlers creates board handlers. heartbeat is the comment interval of the
// live roadmap stream.
func NewHandlers(rm RoadmapService, fb FeedbackService, hub stream.Subscriber, heartbeat time.Duration, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{roadmap: rm, feedback: fb, hub: hub, heartbeat: heartbeat, logger: logger}
}

// writeError answers err with the status its kind maps to. Unknown errors are
// logged and answered with a generic 500 carrying fallback.
func (h *Handlers) writeError(c *gin.Context, err error, fallback string) {
	var cfgErr *roadmap.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": cfgErr.Error()})
	case errors.Is(err, roadmap.ErrBoardNotFound), errors.Is(err, feedback.ErrBoardNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found", "state": "not_found"})
	case errors.Is(err, roadmap.ErrItemNotFound), errors.Is(err, feedback.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Feedback item not found"})
	case errors.Is(err, feedback.ErrAttachmentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Attachment not found"})
	case errors.Is(err, roadmap.ErrAlreadyArchived):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, feedback.ErrAttachmentTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, roadmap.ErrInvalidIndex),
		errors.Is(err, feedback.ErrEmptyTitle),
		errors.Is(err, feedback.ErrTitleTooLong),
		errors.Is(err, feedback.ErrDescriptionTooLong),
		errors.Is(err, feedback.ErrEmptyAttachment):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(fallback, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
