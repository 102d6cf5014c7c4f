// Package lanehq is a Go client for the lanehq API.
//
// Client wraps the REST endpoints. Watch follows a snapshot stream. LiveBoard
// keeps a roadmap in sync with its stream and layers optimistic moves on top
// of the authoritative snapshots until the server confirms or rejects them.
package lanehq

import "time"

// Lane is one roadmap column.
type Lane struct {
	Status string `json:"status"`
	Label  string `json:"label"`
	Color  string `json:"color"`
	Done   bool   `json:"done"`
	Index  int    `json:"index"`
}

// Item is a feedback item.
type Item struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"board_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Position    float64   `json:"position"`
	VoteCount   int       `json:"vote_count"`
	AuthorID    *string   `json:"author_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Column is a lane with its items in display order.
type Column struct {
	Lane  Lane    `json:"lane"`
	Items []*Item `json:"items"`
}

// Board is a roadmap snapshot.
type Board struct {
	BoardID  string   `json:"board_id"`
	Revision int64    `json:"revision"`
	Columns  []Column `json:"columns"`
}

// Column returns the column for status, or nil.
func (b *Board) Column(status string) *Column {
	if b == nil {
		return nil
	}
	for i := range b.Columns {
		if b.Columns[i].Lane.Status == status {
			return &b.Columns[i]
		}
	}
	return nil
}

// Locate returns the lane and index of itemID, or ok=false.
func (b *Board) Locate(itemID string) (status string, index int, ok bool) {
	if b == nil {
		return "", 0, false
	}
	for _, col := range b.Columns {
		for i, it := range col.Items {
			if it.ID == itemID {
				return col.Lane.Status, i, true
			}
		}
	}
	return "", 0, false
}

func (b *Board) clone() *Board {
	if b == nil {
		return nil
	}
	out := &Board{BoardID: b.BoardID, Revision: b.Revision, Columns: make([]Column, len(b.Columns))}
	for i, col := range b.Columns {
		out.Columns[i] = Column{Lane: col.Lane, Items: append([]*Item(nil), col.Items...)}
	}
	return out
}

// Drop is a drag-and-drop of one item to an index in a lane.
type Drop struct {
	ItemID      string `json:"item_id"`
	SourceLane  string `json:"source_lane,omitempty"`
	TargetLane  string `json:"target_lane"`
	TargetIndex int    `json:"target_index"`
}

// Placement is a row written by a move.
type Placement struct {
	ItemID   string  `json:"item_id"`
	Status   string  `json:"status"`
	Position float64 `json:"position"`
}

// MoveAck is the server's acknowledgement of a drop.
type MoveAck struct {
	Revision   int64       `json:"revision"`
	Placements []Placement `json:"placements"`
	NoOp       bool        `json:"noop"`
}

// Release is a changelog entry.
type Release struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	Title          string          `json:"title"`
	Notes          string          `json:"notes"`
	NotesHTML      string          `json:"notes_html,omitempty"`
	PublishedAt    *time.Time      `json:"published_at"`
	CreatedAt      time.Time       `json:"created_at"`
	Feedback       []ChangelogItem `json:"feedback,omitempty"`
}

// IsDraft reports whether the release is unpublished.
func (r *Release) IsDraft() bool { return r.PublishedAt == nil }

// ChangelogItem is shipped feedback with the board it was filed on.
type ChangelogItem struct {
	Item
	Board *struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
	} `json:"board,omitempty"`
}

// Changelog is an organization's changelog snapshot.
type Changelog struct {
	OrganizationID string          `json:"organization_id"`
	Revision       int64           `json:"revision"`
	Releases       []Release       `json:"releases"`
	Feedback       []ChangelogItem `json:"feedback"`
}
