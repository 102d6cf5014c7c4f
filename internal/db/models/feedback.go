// Package models - feedback.go defines FeedbackItem, its workflow status and the Placement
// value written when an item is moved on the roadmap.
package models

import "time"

// FeedbackStatus is the workflow stage of a feedback item. Every status except
// StatusArchived is rendered as a roadmap lane.
type FeedbackStatus string

const (
	StatusBacklog    FeedbackStatus = "backlog"
	StatusPlanned    FeedbackStatus = "planned"
	StatusInProgress FeedbackStatus = "in_progress"
	StatusDone       FeedbackStatus = "done"
	// StatusArchived removes an item from the roadmap without deleting it.
	StatusArchived FeedbackStatus = "archived"
)

// PositionStep is the gap left between neighbouring items when an item is
// appended to a lane or a lane is renumbered.
const PositionStep = 1024.0

// RoadmapStatuses lists the statuses that may be configured as lanes, in default column order.
func RoadmapStatuses() []FeedbackStatus {
	return []FeedbackStatus{StatusBacklog, StatusPlanned, StatusInProgress, StatusDone}
}

// Valid reports whether s is a declared status.
func (s FeedbackStatus) Valid() bool {
	switch s {
	case StatusBacklog, StatusPlanned, StatusInProgress, StatusDone, StatusArchived:
		return true
	}
	return false
}

// FeedbackItem is a single piece of user feedback. It is never hard-deleted.
type FeedbackItem struct {
	ID          string         `db:"id" json:"id"`
	BoardID     string         `db:"board_id" json:"board_id"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Status      FeedbackStatus `db:"status" json:"status"`
	// Position orders items inside a lane; ties are broken by ID.
	Position  float64   `db:"position" json:"position"`
	VoteCount int       `db:"vote_count" json:"vote_count"`
	AuthorID  *string   `db:"author_id" json:"author_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Placement is the lane and position an item is written to by a move.
type Placement struct {
	ItemID   string         `json:"item_id"`
	Status   FeedbackStatus `json:"status"`
	Position float64        `json:"position"`
}
