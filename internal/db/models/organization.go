// Package models - organization.go defines the Organization model, the tenant root that owns
// boards and releases.
package models

import (
	"database/sql"
	"time"
)

// Organization represents a tenant. Slug is globally unique and URL-safe.
type Organization struct {
	ID          string `db:"id" json:"id"`
	Slug        string `db:"slug" json:"slug"`
	DisplayName string `db:"display_name" json:"display_name"`
	// NotificationURLEncrypted is the sealed shoutrrr URL release announcements are sent to.
	NotificationURLEncrypted sql.NullString `db:"notification_url_encrypted" json:"-"`
	// ChangelogRevision increases on every change to the organization's releases.
	ChangelogRevision int64     `db:"changelog_revision" json:"changelog_revision"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// HasNotificationTarget reports whether a release announcement target is configured.
func (o *Organization) HasNotificationTarget() bool {
	return o.NotificationURLEncrypted.Valid && o.NotificationURLEncrypted.String != ""
}
