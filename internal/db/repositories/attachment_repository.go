// attachment_repository.go implements AttachmentRepository for feedback upload metadata.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lanehq/lanehq/internal/db/models"
)

const attachmentColumns = `id, feedback_id, storage_path, file_name, content_type, size_bytes, checksum, created_at`

// AttachmentRepository handles database operations for attachments
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create records an uploaded attachment
func (r *AttachmentRepository) Create(ctx context.Context, a *models.Attachment) error {
	query := `
		INSERT INTO attachments (feedback_id, storage_path, file_name, content_type, size_bytes, checksum)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		a.FeedbackID, a.StoragePath, a.FileName, a.ContentType, a.SizeBytes, a.Checksum,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

// GetByID retrieves an attachment of the feedback item. Returns nil, nil when absent.
func (r *AttachmentRepository) GetByID(ctx context.Context, feedbackID, id string) (*models.Attachment, error) {
	var a models.Attachment
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE feedback_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &a, query, feedbackID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &a, nil
}

// ListByFeedback returns the attachments of a feedback item in upload order
func (r *AttachmentRepository) ListByFeedback(ctx context.Context, feedbackID string) ([]*models.Attachment, error) {
	attachments := []*models.Attachment{}
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE feedback_id = $1 ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &attachments, query, feedbackID); err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return attachments, nil
}
