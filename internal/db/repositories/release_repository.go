// release_repository.go implements ReleaseRepository. Mutations lock the owning organization
// row and bump organizations.changelog_revision, which identifies changelog snapshots.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lanehq/lanehq/internal/db/models"
)

const releaseColumns = `id, organization_id, title, notes, published_at, created_at, updated_at`

// ReleaseRepository handles database operations for releases and release items
type ReleaseRepository struct {
	db *sqlx.DB
}

// NewReleaseRepository creates a new release repository
func NewReleaseRepository(db *sqlx.DB) *ReleaseRepository {
	return &ReleaseRepository{db: db}
}

// withChangelogTx runs fn while holding the organization row lock and bumps the changelog
// revision when fn succeeds. Returns the new revision.
func (r *ReleaseRepository) withChangelogTx(ctx context.Context, orgID string, fn func(tx *sqlx.Tx) error) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() // nolint:errcheck

	var revision int64
	err = tx.GetContext(ctx, &revision, `SELECT changelog_revision FROM organizations WHERE id = $1 FOR UPDATE`, orgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to lock organization: %w", err)
	}

	if err := fn(tx); err != nil {
		return 0, err
	}

	err = tx.GetContext(ctx, &revision,
		`UPDATE organizations SET changelog_revision = changelog_revision + 1, updated_at = NOW() WHERE id = $1 RETURNING changelog_revision`,
		orgID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bump changelog revision: %w", err)
	}
	return revision, tx.Commit()
}

// Create inserts a draft or published release
func (r *ReleaseRepository) Create(ctx context.Context, rel *models.Release) (int64, error) {
	return r.withChangelogTx(ctx, rel.OrganizationID, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO releases (organization_id, title, notes, published_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query, rel.OrganizationID, rel.Title, rel.Notes, rel.PublishedAt).
			Scan(&rel.ID, &rel.CreatedAt, &rel.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create release: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a release of the organization. Returns nil, nil when absent.
func (r *ReleaseRepository) GetByID(ctx context.Context, orgID, id string) (*models.Release, error) {
	var rel models.Release
	query := `SELECT ` + releaseColumns + ` FROM releases WHERE organization_id = $1 AND id = $2`
	err := r.db.GetContext(ctx, &rel, query, orgID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get release: %w", err)
	}
	return &rel, nil
}

// Update changes a release's title and notes
func (r *ReleaseRepository) Update(ctx context.Context, rel *models.Release) (int64, error) {
	return r.withChangelogTx(ctx, rel.OrganizationID, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &rel.UpdatedAt,
			`UPDATE releases SET title = $3, notes = $4, updated_at = NOW()
			 WHERE organization_id = $1 AND id = $2 RETURNING updated_at`,
			rel.OrganizationID, rel.ID, rel.Title, rel.Notes,
		)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return fmt.Errorf("failed to update release: %w", err)
		}
		return nil
	})
}

// SetPublishedAt publishes (non-nil at) or unpublishes (nil) a release
func (r *ReleaseRepository) SetPublishedAt(ctx context.Context, orgID, id string, at *time.Time) (int64, error) {
	return r.withChangelogTx(ctx, orgID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE releases SET published_at = $3, updated_at = NOW() WHERE organization_id = $1 AND id = $2`,
			orgID, id, at,
		)
		if err != nil {
			return fmt.Errorf("failed to set release publish time: %w", err)
		}
		return requireRow(res)
	})
}

// Delete removes a release and its items
func (r *ReleaseRepository) Delete(ctx context.Context, orgID, id string) (int64, error) {
	return r.withChangelogTx(ctx, orgID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM releases WHERE organization_id = $1 AND id = $2`, orgID, id)
		if err != nil {
			return fmt.Errorf("failed to delete release: %w", err)
		}
		return requireRow(res)
	})
}

// AddItem links a feedback item to a release. Returns ErrDuplicate when the item already
// ships in a release.
func (r *ReleaseRepository) AddItem(ctx context.Context, orgID string, item *models.ReleaseItem) (int64, error) {
	return r.withChangelogTx(ctx, orgID, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO release_items (release_id, feedback_id)
			VALUES ($1, $2)
			RETURNING id, sequence, created_at
		`
		err := tx.QueryRowxContext(ctx, query, item.ReleaseID, item.FeedbackID).
			Scan(&item.ID, &item.Sequence, &item.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to add release item: %w", err)
		}
		return nil
	})
}

// RemoveItem unlinks a release item
func (r *ReleaseRepository) RemoveItem(ctx context.Context, orgID, releaseID, itemID string) (int64, error) {
	return r.withChangelogTx(ctx, orgID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM release_items WHERE release_id = $1 AND id = $2`, releaseID, itemID)
		if err != nil {
			return fmt.Errorf("failed to remove release item: %w", err)
		}
		return requireRow(res)
	})
}

// TouchFeedback bumps the changelog revision of the organization that ships any of
// feedbackIDs, in a draft or a published release. Returns the organization and its new
// revision, or an empty organization id when none of the items ships anywhere.
func (r *ReleaseRepository) TouchFeedback(ctx context.Context, feedbackIDs []string) (string, int64, error) {
	if len(feedbackIDs) == 0 {
		return "", 0, nil
	}
	var (
		orgID    string
		revision int64
	)
	err := r.db.QueryRowxContext(ctx, `
		UPDATE organizations SET changelog_revision = changelog_revision + 1, updated_at = NOW()
		WHERE id = (
			SELECT rel.organization_id FROM release_items ri
			JOIN releases rel ON rel.id = ri.release_id
			WHERE ri.feedback_id = ANY($1)
			LIMIT 1
		)
		RETURNING id, changelog_revision`,
		pq.Array(feedbackIDs),
	).Scan(&orgID, &revision)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("failed to bump changelog revision: %w", err)
	}
	return orgID, revision, nil
}

// Revision returns the organization's current changelog revision
func (r *ReleaseRepository) Revision(ctx context.Context, orgID string) (int64, error) {
	var revision int64
	err := r.db.GetContext(ctx, &revision, `SELECT changelog_revision FROM organizations WHERE id = $1`, orgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to read changelog revision: %w", err)
	}
	return revision, nil
}

// Snapshot returns the changelog revision and every release of the organization with its
// items resolved to feedback and board, newest published first with drafts ahead of them.
// Items keep their insertion order. Items whose feedback row is gone carry a nil Feedback.
func (r *ReleaseRepository) Snapshot(ctx context.Context, orgID string, includeDrafts bool) (int64, []*models.ReleaseWithItems, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback() // nolint:errcheck

	var revision int64
	if err := tx.GetContext(ctx, &revision, `SELECT changelog_revision FROM organizations WHERE id = $1`, orgID); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, ErrNotFound
		}
		return 0, nil, fmt.Errorf("failed to read changelog revision: %w", err)
	}

	query := `
		SELECT r.id, r.organization_id, r.title, r.notes, r.published_at, r.created_at, r.updated_at,
		       ri.id, ri.feedback_id, ri.sequence, ri.created_at,
		       f.id, f.board_id, f.title, f.description, f.status, f.vote_count,
		       b.id, b.slug, b.display_name
		FROM releases r
		LEFT JOIN release_items ri ON ri.release_id = r.id
		LEFT JOIN feedback_items f ON f.id = ri.feedback_id
		LEFT JOIN boards b ON b.id = f.board_id
		WHERE r.organization_id = $1 AND ($2 OR r.published_at IS NOT NULL)
		ORDER BY r.published_at DESC NULLS FIRST, r.created_at DESC, r.id, ri.sequence
	`
	rows, err := tx.QueryxContext(ctx, query, orgID, includeDrafts)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list releases: %w", err)
	}
	defer rows.Close()

	releases := []*models.ReleaseWithItems{}
	var current *models.ReleaseWithItems
	for rows.Next() {
		var (
			rel                               models.Release
			itemID, itemFeedbackID            sql.NullString
			itemSequence                      sql.NullInt64
			itemCreatedAt                     sql.NullTime
			fID, fBoardID, fTitle, fDesc, fSt sql.NullString
			fVotes                            sql.NullInt64
			bID, bSlug, bName                 sql.NullString
		)
		if err := rows.Scan(
			&rel.ID, &rel.OrganizationID, &rel.Title, &rel.Notes, &rel.PublishedAt, &rel.CreatedAt, &rel.UpdatedAt,
			&itemID, &itemFeedbackID, &itemSequence, &itemCreatedAt,
			&fID, &fBoardID, &fTitle, &fDesc, &fSt, &fVotes,
			&bID, &bSlug, &bName,
		); err != nil {
			return 0, nil, fmt.Errorf("failed to scan release row: %w", err)
		}

		if current == nil || current.ID != rel.ID {
			current = &models.ReleaseWithItems{Release: rel, Items: []models.ReleaseItemDetail{}}
			releases = append(releases, current)
		}
		if !itemID.Valid {
			continue
		}

		detail := models.ReleaseItemDetail{
			ReleaseItem: models.ReleaseItem{
				ID:        itemID.String,
				ReleaseID: rel.ID,
				Sequence:  itemSequence.Int64,
				CreatedAt: itemCreatedAt.Time,
			},
		}
		if itemFeedbackID.Valid {
			fb := itemFeedbackID.String
			detail.FeedbackID = &fb
		}
		if fID.Valid {
			detail.Feedback = &models.FeedbackItem{
				ID:          fID.String,
				BoardID:     fBoardID.String,
				Title:       fTitle.String,
				Description: fDesc.String,
				Status:      models.FeedbackStatus(fSt.String),
				VoteCount:   int(fVotes.Int64),
			}
		}
		if bID.Valid {
			detail.Board = &models.Board{
				ID:             bID.String,
				OrganizationID: orgID,
				Slug:           bSlug.String,
				DisplayName:    bName.String,
			}
		}
		current.Items = append(current.Items, detail)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("failed to iterate releases: %w", err)
	}
	return revision, releases, tx.Commit()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
