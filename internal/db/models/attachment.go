// Package models - attachment.go defines Attachment, a file uploaded alongside a feedback item
// and kept in the configured storage backend.
package models

import "time"

// Attachment is stored object metadata for a feedback upload.
type Attachment struct {
	ID          string    `db:"id" json:"id"`
	FeedbackID  string    `db:"feedback_id" json:"feedback_id"`
	StoragePath string    `db:"storage_path" json:"-"`
	FileName    string    `db:"file_name" json:"file_name"`
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	Checksum    string    `db:"checksum" json:"checksum"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
