package roadmap

import (
	"log/slog"

	"github.com/lanehq/lanehq/internal/db/models"
)

// Column is a lane with its items in display order.
type Column struct {
	Lane  Lane                   `json:"lane"`
	Items []*models.FeedbackItem `json:"items"`
}

// View is a board's roadmap at one revision.
type View struct {
	BoardID  string   `json:"board_id"`
	Revision int64    `json:"revision"`
	Columns  []Column `json:"columns"`
}

// BuildBoard groups items into columns in lane order. filter limits the columns to
// the named lanes; empty shows all. Items and filter entries naming unknown lanes
// are logged and skipped.
func BuildBoard(items []*models.FeedbackItem, lanes *Lanes, filter []string, logger *slog.Logger) []Column {
	if logger == nil {
		logger = slog.Default()
	}

	visible := make(map[models.FeedbackStatus]bool, lanes.Len())
	if len(filter) == 0 {
		for _, l := range lanes.All() {
			visible[l.Status] = true
		}
	} else {
		for _, f := range filter {
			lane, err := Classify(models.FeedbackStatus(f), lanes)
			if err != nil {
				logger.Warn("roadmap: skipping unknown lane in filter", "error", err)
				continue
			}
			visible[lane.Status] = true
		}
	}

	byLane := make(map[models.FeedbackStatus][]*models.FeedbackItem)
	for _, it := range items {
		if it.Status == models.StatusArchived {
			continue
		}
		lane, err := Classify(it.Status, lanes)
		if err != nil {
			logger.Warn("roadmap: skipping item without lane", "item_id", it.ID, "error", err)
			continue
		}
		if visible[lane.Status] {
			byLane[lane.Status] = append(byLane[lane.Status], it)
		}
	}

	columns := make([]Column, 0, len(visible))
	for _, l := range lanes.All() {
		if !visible[l.Status] {
			continue
		}
		col := Column{Lane: l, Items: byLane[l.Status]}
		if col.Items == nil {
			col.Items = []*models.FeedbackItem{}
		}
		sortLane(col.Items)
		columns = append(columns, col)
	}
	return columns
}
