package roadmap

import (
	"cmp"
	"slices"

	"github.com/lanehq/lanehq/internal/db/models"
)

// positionBetween returns a position strictly between the neighbours of an
// insertion point. A nil neighbour means the lane edge. ok is false when no
// representable position exists and the lane must be renumbered.
func positionBetween(prev, next *float64) (pos float64, ok bool) {
	switch {
	case prev == nil && next == nil:
		return models.PositionStep, true
	case prev == nil:
		pos = *next - models.PositionStep
		return pos, pos < *next
	case next == nil:
		pos = *prev + models.PositionStep
		return pos, pos > *prev
	default:
		pos = *prev + (*next-*prev)/2
		return pos, pos > *prev && pos < *next
	}
}

// renumbered returns evenly spaced positions for a lane of n items.
func renumbered(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = models.PositionStep * float64(i+1)
	}
	return out
}

// compareItems orders items by position, breaking ties by ID.
func compareItems(a, b *models.FeedbackItem) int {
	if c := cmp.Compare(a.Position, b.Position); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// sortLane sorts items in display order.
func sortLane(items []*models.FeedbackItem) {
	slices.SortFunc(items, compareItems)
}

// laneOf returns the items with the given status in display order.
func laneOf(items []*models.FeedbackItem, status models.FeedbackStatus) []*models.FeedbackItem {
	var lane []*models.FeedbackItem
	for _, it := range items {
		if it.Status == status {
			lane = append(lane, it)
		}
	}
	sortLane(lane)
	return lane
}

// minGap returns the smallest distance between adjacent positions of a sorted
// lane, or -1 for lanes with fewer than two items.
func minGap(lane []*models.FeedbackItem) float64 {
	gap := -1.0
	for i := 1; i < len(lane); i++ {
		d := lane[i].Position - lane[i-1].Position
		if gap < 0 || d < gap {
			gap = d
		}
	}
	return gap
}
