package board

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/api/stream"
	"github.com/lanehq/lanehq/internal/live"
	"github.com/lanehq/lanehq/internal/middleware"
	"github.com/lanehq/lanehq/internal/roadmap"
)

// laneFilter parses ?lanes=planned,in_progress. Unknown names are left for the
// roadmap view to warn about and skip.
func laneFilter(c *gin.Context) []string {
	raw := strings.TrimSpace(c.Query("lanes"))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LanesHandler lists the configured lanes in column order
// GET /api/v1/orgs/:org/boards/:board/lanes
func (h *Handlers) LanesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"lanes": h.roadmap.Lanes().All()})
	}
}

// RoadmapHandler returns the board's roadmap snapshot
// GET /api/v1/orgs/:org/boards/:board/roadmap?lanes=planned,done
func (h *Handlers) RoadmapHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		board := middleware.BoardFrom(c)
		view, err := h.roadmap.Board(c.Request.Context(), board.ID, laneFilter(c))
		if err != nil {
			h.writeError(c, err, "Failed to load roadmap")
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// RoadmapStreamHandler streams roadmap snapshots as Server-Sent Events
// GET /api/v1/orgs/:org/boards/:board/roadmap/stream?lanes=planned,done
func (h *Handlers) RoadmapStreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		board := middleware.BoardFrom(c)
		filter := laneFilter(c)
		read := func(ctx context.Context) (interface{}, int64, error) {
			view, err := h.roadmap.Board(ctx, board.ID, filter)
			if err != nil {
				return nil, 0, err
			}
			return view, view.Revision, nil
		}
		stream.Serve(c, h.hub, stream.Options{Topic: live.BoardTopic(board.ID), Heartbeat: h.heartbeat}, read, h.logger)
	}
}

// MoveHandler applies a drag and drop move
// POST /api/v1/orgs/:org/boards/:board/roadmap/moves
func (h *Handlers) MoveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev roadmap.DropEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if ev.ItemID == "" || ev.TargetLane == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item_id and target_lane are required"})
			return
		}

		board := middleware.BoardFrom(c)
		res, err := h.roadmap.Move(c.Request.Context(), board.ID, ev)
		if err != nil {
			h.writeError(c, err, "Failed to move feedback item")
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
