// organization_repository.go implements OrganizationRepository, providing database queries
// for organization lookup by slug, creation and notification settings.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lanehq/lanehq/internal/db/models"
)

const organizationColumns = `id, slug, display_name, notification_url_encrypted, changelog_revision, created_at, updated_at`

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// GetBySlug retrieves an organization by its slug. Returns nil, nil when absent.
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	var org models.Organization
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE slug = $1`
	err := r.db.GetContext(ctx, &org, query, slug)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

// GetByID retrieves an organization by ID. Returns nil, nil when absent.
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	err := r.db.GetContext(ctx, &org, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

// Create inserts a new organization and fills in its generated fields
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (slug, display_name)
		VALUES ($1, $2)
		RETURNING id, changelog_revision, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, org.Slug, org.DisplayName).
		Scan(&org.ID, &org.ChangelogRevision, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// List returns organizations ordered by slug with the total count
func (r *OrganizationRepository) List(ctx context.Context, limit, offset int) ([]*models.Organization, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM organizations`); err != nil {
		return nil, 0, fmt.Errorf("failed to count organizations: %w", err)
	}

	orgs := []*models.Organization{}
	query := `SELECT ` + organizationColumns + ` FROM organizations ORDER BY slug LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &orgs, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, total, nil
}

// SetNotificationURL stores the sealed notification URL; an empty value clears it
func (r *OrganizationRepository) SetNotificationURL(ctx context.Context, orgID, sealed string) error {
	value := sql.NullString{String: sealed, Valid: sealed != ""}
	res, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET notification_url_encrypted = $2, updated_at = NOW() WHERE id = $1`,
		orgID, value,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification url: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update notification url: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
