// Package models - release.go defines Release (a changelog entry; unpublished releases are
// drafts) and ReleaseItem, the join between a release and the feedback it shipped.
package models

import "time"

// Release is a changelog entry owned by an organization.
type Release struct {
	ID             string `db:"id" json:"id"`
	OrganizationID string `db:"organization_id" json:"organization_id"`
	Title          string `db:"title" json:"title"`
	// Notes is the markdown body of the release.
	Notes       string     `db:"notes" json:"notes"`
	PublishedAt *time.Time `db:"published_at" json:"published_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// IsDraft reports whether the release has not been published.
func (r *Release) IsDraft() bool {
	return r.PublishedAt == nil
}

// ReleaseItem links a release to a feedback item. FeedbackID becomes nil when
// the referenced feedback row no longer exists.
type ReleaseItem struct {
	ID         string    `db:"id" json:"id"`
	ReleaseID  string    `db:"release_id" json:"release_id"`
	FeedbackID *string   `db:"feedback_id" json:"feedback_id"`
	Sequence   int64     `db:"sequence" json:"sequence"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ReleaseItemDetail is a release item with its feedback and that feedback's board resolved.
type ReleaseItemDetail struct {
	ReleaseItem
	Feedback *FeedbackItem `json:"feedback,omitempty"`
	Board    *Board        `json:"board,omitempty"`
}

// ReleaseWithItems is a release with its items in insertion order.
type ReleaseWithItems struct {
	Release
	Items []ReleaseItemDetail `json:"items"`
}
