// feedback_repository.go implements FeedbackRepository. Every write that changes what a
// roadmap viewer sees runs in a transaction holding the board row lock and bumps the
// board revision, so snapshots are totally ordered per board.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lanehq/lanehq/internal/db/models"
)

const feedbackColumns = `id, board_id, title, description, status, position, vote_count, author_id, created_at, updated_at`

// FeedbackRepository handles database operations for feedback items
type FeedbackRepository struct {
	db *sqlx.DB
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *sqlx.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// PlanFunc receives every item on a locked board and returns the placements to write.
type PlanFunc func(items []*models.FeedbackItem) ([]models.Placement, error)

// lockBoard takes the board row lock and returns the current revision.
func lockBoard(ctx context.Context, tx *sqlx.Tx, boardID string) (int64, error) {
	var revision int64
	err := tx.GetContext(ctx, &revision, `SELECT revision FROM boards WHERE id = $1 FOR UPDATE`, boardID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to lock board: %w", err)
	}
	return revision, nil
}

func bumpBoardRevision(ctx context.Context, tx *sqlx.Tx, boardID string) (int64, error) {
	var revision int64
	err := tx.GetContext(ctx, &revision,
		`UPDATE boards SET revision = revision + 1, updated_at = NOW() WHERE id = $1 RETURNING revision`,
		boardID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bump board revision: %w", err)
	}
	return revision, nil
}

// Create appends the item to the end of its lane. Returns the new board revision.
func (r *FeedbackRepository) Create(ctx context.Context, item *models.FeedbackItem) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := lockBoard(ctx, tx, item.BoardID); err != nil {
		return 0, err
	}

	var last float64
	err = tx.GetContext(ctx, &last,
		`SELECT COALESCE(MAX(position), 0) FROM feedback_items WHERE board_id = $1 AND status = $2`,
		item.BoardID, string(item.Status),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to read lane tail: %w", err)
	}
	item.Position = last + models.PositionStep

	query := `
		INSERT INTO feedback_items (board_id, title, description, status, position, author_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, vote_count, created_at, updated_at
	`
	err = tx.QueryRowxContext(ctx, query,
		item.BoardID, item.Title, item.Description, string(item.Status), item.Position, item.AuthorID,
	).Scan(&item.ID, &item.VoteCount, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create feedback item: %w", err)
	}

	revision, err := bumpBoardRevision(ctx, tx, item.BoardID)
	if err != nil {
		return 0, err
	}
	return revision, tx.Commit()
}

// GetByID retrieves an item on the given board. Returns nil, nil when absent.
func (r *FeedbackRepository) GetByID(ctx context.Context, boardID, id string) (*models.FeedbackItem, error) {
	var item models.FeedbackItem
	query := `SELECT ` + feedbackColumns + ` FROM feedback_items WHERE board_id = $1 AND id = $2`
	err := r.db.GetContext(ctx, &item, query, boardID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get feedback item: %w", err)
	}
	return &item, nil
}

// GetInOrganization retrieves an item on any board of the organization. Returns nil, nil when absent.
func (r *FeedbackRepository) GetInOrganization(ctx context.Context, orgID, id string) (*models.FeedbackItem, error) {
	var item models.FeedbackItem
	query := `
		SELECT f.id, f.board_id, f.title, f.description, f.status, f.position, f.vote_count, f.author_id, f.created_at, f.updated_at
		FROM feedback_items f
		JOIN boards b ON b.id = f.board_id
		WHERE b.organization_id = $1 AND f.id = $2
	`
	err := r.db.GetContext(ctx, &item, query, orgID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get feedback item: %w", err)
	}
	return &item, nil
}

// FeedbackFilter narrows ListByBoard results
type FeedbackFilter struct {
	Status          *models.FeedbackStatus
	IncludeArchived bool
}

// ListByBoard returns a page of items newest first, with the total matching count
func (r *FeedbackRepository) ListByBoard(ctx context.Context, boardID string, filter FeedbackFilter, limit, offset int) ([]*models.FeedbackItem, int, error) {
	where := ` WHERE board_id = $1`
	args := []interface{}{boardID}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	} else if !filter.IncludeArchived {
		args = append(args, string(models.StatusArchived))
		where += fmt.Sprintf(" AND status <> $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM feedback_items`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count feedback items: %w", err)
	}

	items := []*models.FeedbackItem{}
	query := `SELECT ` + feedbackColumns + ` FROM feedback_items` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list feedback items: %w", err)
	}
	return items, total, nil
}

// Snapshot reads the board revision and its non-archived items as one consistent view.
// Returns ErrNotFound when the board does not exist.
func (r *FeedbackRepository) Snapshot(ctx context.Context, boardID string) (int64, []*models.FeedbackItem, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback() // nolint:errcheck

	var revision int64
	if err := tx.GetContext(ctx, &revision, `SELECT revision FROM boards WHERE id = $1`, boardID); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, ErrNotFound
		}
		return 0, nil, fmt.Errorf("failed to read board revision: %w", err)
	}

	items := []*models.FeedbackItem{}
	query := `SELECT ` + feedbackColumns + ` FROM feedback_items WHERE board_id = $1 AND status <> $2 ORDER BY position, id`
	if err := tx.SelectContext(ctx, &items, query, boardID, string(models.StatusArchived)); err != nil {
		return 0, nil, fmt.Errorf("failed to read roadmap items: %w", err)
	}
	return revision, items, tx.Commit()
}

// Reposition locks the board, hands every item (archived included) to plan and writes the
// returned placements. When plan returns no placements nothing is written and the current
// revision is returned. Errors from plan are returned unchanged.
func (r *FeedbackRepository) Reposition(ctx context.Context, boardID string, plan PlanFunc) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() // nolint:errcheck

	revision, err := lockBoard(ctx, tx, boardID)
	if err != nil {
		return 0, err
	}

	items := []*models.FeedbackItem{}
	query := `SELECT ` + feedbackColumns + ` FROM feedback_items WHERE board_id = $1 ORDER BY position, id`
	if err := tx.SelectContext(ctx, &items, query, boardID); err != nil {
		return 0, fmt.Errorf("failed to read board items: %w", err)
	}

	placements, err := plan(items)
	if err != nil {
		return 0, err
	}
	if len(placements) == 0 {
		return revision, nil
	}

	for _, p := range placements {
		res, err := tx.ExecContext(ctx,
			`UPDATE feedback_items SET status = $2, position = $3, updated_at = NOW() WHERE id = $1 AND board_id = $4`,
			p.ItemID, string(p.Status), p.Position, boardID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to write placement for %s: %w", p.ItemID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return 0, fmt.Errorf("failed to write placement for %s: %w", p.ItemID, err)
		} else if n == 0 {
			return 0, ErrNotFound
		}
	}

	revision, err = bumpBoardRevision(ctx, tx, boardID)
	if err != nil {
		return 0, err
	}
	return revision, tx.Commit()
}

// UpdateContent changes an item's title and description. Returns the new board revision.
func (r *FeedbackRepository) UpdateContent(ctx context.Context, item *models.FeedbackItem) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := lockBoard(ctx, tx, item.BoardID); err != nil {
		return 0, err
	}

	err = tx.GetContext(ctx, &item.UpdatedAt,
		`UPDATE feedback_items SET title = $3, description = $4, updated_at = NOW()
		 WHERE board_id = $1 AND id = $2 RETURNING updated_at`,
		item.BoardID, item.ID, item.Title, item.Description,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to update feedback item: %w", err)
	}

	revision, err := bumpBoardRevision(ctx, tx, item.BoardID)
	if err != nil {
		return 0, err
	}
	return revision, tx.Commit()
}

// Upvote increments the vote count and returns the new count and board revision
func (r *FeedbackRepository) Upvote(ctx context.Context, boardID, id string) (int, int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := lockBoard(ctx, tx, boardID); err != nil {
		return 0, 0, err
	}

	var votes int
	err = tx.GetContext(ctx, &votes,
		`UPDATE feedback_items SET vote_count = vote_count + 1, updated_at = NOW()
		 WHERE board_id = $1 AND id = $2 RETURNING vote_count`,
		boardID, id,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, ErrNotFound
		}
		return 0, 0, fmt.Errorf("failed to upvote feedback item: %w", err)
	}

	revision, err := bumpBoardRevision(ctx, tx, boardID)
	if err != nil {
		return 0, 0, err
	}
	return votes, revision, tx.Commit()
}

// BoardsWithNarrowGaps returns boards having a lane where two adjacent items are closer than minGap
func (r *FeedbackRepository) BoardsWithNarrowGaps(ctx context.Context, minGap float64) ([]string, error) {
	query := `
		SELECT DISTINCT board_id FROM (
			SELECT board_id,
			       position - LAG(position) OVER (PARTITION BY board_id, status ORDER BY position, id) AS gap
			FROM feedback_items
			WHERE status <> $1
		) gaps
		WHERE gap IS NOT NULL AND gap < $2
	`
	boardIDs := []string{}
	if err := r.db.SelectContext(ctx, &boardIDs, query, string(models.StatusArchived), minGap); err != nil {
		return nil, fmt.Errorf("failed to scan lane gaps: %w", err)
	}
	return boardIDs, nil
}
