package roadmap

import (
	"github.com/lanehq/lanehq/internal/db/models"
)

// DropEvent asks for an item to be placed at TargetIndex of TargetLane.
// TargetIndex is the index the item occupies in the lane after the move;
// indexes past the end append.
type DropEvent struct {
	ItemID      string                `json:"item_id"`
	SourceLane  models.FeedbackStatus `json:"source_lane"`
	TargetLane  models.FeedbackStatus `json:"target_lane"`
	TargetIndex int                   `json:"target_index"`
}

// MovePlan is the outcome of planning a drop against the current board state.
type MovePlan struct {
	// Placements are the rows to write, the moved item first. Empty for a no-op.
	Placements []models.Placement
	// NoOp is set when the item already sits at the requested index.
	NoOp bool
	// Renumbered is set when the target lane had to be respaced.
	Renumbered bool
	// StaleSource is set when the drop named a source lane the item is no longer in.
	StaleSource bool
	// From is the item's lane before the move.
	From models.FeedbackStatus
}

// PlanMove computes the placements for ev. items is every item on the board;
// only the target lane and the moved item are considered. It does not modify items.
func PlanMove(items []*models.FeedbackItem, ev DropEvent, lanes *Lanes) (MovePlan, error) {
	if _, err := Classify(ev.TargetLane, lanes); err != nil {
		return MovePlan{}, err
	}
	if ev.TargetIndex < 0 {
		return MovePlan{}, ErrInvalidIndex
	}

	var moved *models.FeedbackItem
	for _, it := range items {
		if it.ID == ev.ItemID {
			moved = it
			break
		}
	}
	if moved == nil {
		return MovePlan{}, ErrItemNotFound
	}

	plan := MovePlan{
		From:        moved.Status,
		StaleSource: ev.SourceLane != "" && ev.SourceLane != moved.Status,
	}

	lane := laneOf(items, ev.TargetLane)
	others := make([]*models.FeedbackItem, 0, len(lane))
	current := -1
	for i, it := range lane {
		if it.ID == moved.ID {
			current = i
			continue
		}
		others = append(others, it)
	}

	idx := ev.TargetIndex
	if idx > len(others) {
		idx = len(others)
	}
	if current >= 0 && current == idx {
		plan.NoOp = true
		return plan, nil
	}

	var prev, next *float64
	if idx > 0 {
		prev = &others[idx-1].Position
	}
	if idx < len(others) {
		next = &others[idx].Position
	}

	if pos, ok := positionBetween(prev, next); ok {
		plan.Placements = []models.Placement{{ItemID: moved.ID, Status: ev.TargetLane, Position: pos}}
		return plan, nil
	}

	// No room between the neighbours: respace the whole target lane.
	plan.Renumbered = true
	order := make([]*models.FeedbackItem, 0, len(others)+1)
	order = append(order, others[:idx]...)
	order = append(order, moved)
	order = append(order, others[idx:]...)
	positions := renumbered(len(order))

	plan.Placements = append(plan.Placements, models.Placement{ItemID: moved.ID, Status: ev.TargetLane, Position: positions[idx]})
	for i, it := range order {
		if it.ID == moved.ID || it.Position == positions[i] {
			continue
		}
		plan.Placements = append(plan.Placements, models.Placement{ItemID: it.ID, Status: ev.TargetLane, Position: positions[i]})
	}
	return plan, nil
}

// PlanCompaction respaces every roadmap lane whose smallest gap is below threshold.
// Returns the placements to write and the number of lanes respaced. Archived items
// are left alone.
func PlanCompaction(items []*models.FeedbackItem, lanes *Lanes, threshold float64) ([]models.Placement, int) {
	var placements []models.Placement
	count := 0
	for _, l := range lanes.All() {
		lane := laneOf(items, l.Status)
		if gap := minGap(lane); gap < 0 || gap >= threshold {
			continue
		}
		count++
		for i, pos := range renumbered(len(lane)) {
			if lane[i].Position != pos {
				placements = append(placements, models.Placement{ItemID: lane[i].ID, Status: l.Status, Position: pos})
			}
		}
	}
	return placements, count
}
