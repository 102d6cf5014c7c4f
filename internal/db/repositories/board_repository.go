// board_repository.go implements BoardRepository, providing database queries for boards
// scoped to their owning organization.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lanehq/lanehq/internal/db/models"
)

const boardColumns = `id, organization_id, slug, display_name, revision, created_at, updated_at`

// BoardRepository handles database operations for boards
type BoardRepository struct {
	db *sqlx.DB
}

// NewBoardRepository creates a new board repository
func NewBoardRepository(db *sqlx.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

// GetBySlug retrieves a board by organization ID and board slug. Returns nil, nil when absent.
func (r *BoardRepository) GetBySlug(ctx context.Context, orgID, slug string) (*models.Board, error) {
	var board models.Board
	query := `SELECT ` + boardColumns + ` FROM boards WHERE organization_id = $1 AND slug = $2`
	err := r.db.GetContext(ctx, &board, query, orgID, slug)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	return &board, nil
}

// GetByID retrieves a board by ID. Returns nil, nil when absent.
func (r *BoardRepository) GetByID(ctx context.Context, id string) (*models.Board, error) {
	var board models.Board
	query := `SELECT ` + boardColumns + ` FROM boards WHERE id = $1`
	err := r.db.GetContext(ctx, &board, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	return &board, nil
}

// Create inserts a new board
func (r *BoardRepository) Create(ctx context.Context, board *models.Board) error {
	query := `
		INSERT INTO boards (organization_id, slug, display_name)
		VALUES ($1, $2, $3)
		RETURNING id, revision, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, board.OrganizationID, board.Slug, board.DisplayName).
		Scan(&board.ID, &board.Revision, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create board: %w", err)
	}
	return nil
}

// ListByOrganization returns the organization's boards ordered by slug
func (r *BoardRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.Board, error) {
	boards := []*models.Board{}
	query := `SELECT ` + boardColumns + ` FROM boards WHERE organization_id = $1 ORDER BY slug`
	if err := r.db.SelectContext(ctx, &boards, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	return boards, nil
}
