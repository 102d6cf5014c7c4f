// Package models - board.go defines the Board model, a feedback collection owned by one
// organization and addressed by a slug unique within that organization.
package models

import "time"

// Board is a feedback collection rendered as a roadmap.
type Board struct {
	ID             string `db:"id" json:"id"`
	OrganizationID string `db:"organization_id" json:"organization_id"`
	Slug           string `db:"slug" json:"slug"`
	DisplayName    string `db:"display_name" json:"display_name"`
	// Revision identifies the roadmap snapshot; every persisted move or status change bumps it.
	Revision  int64     `db:"revision" json:"revision"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
