package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lanehq/lanehq/internal/db/models"
	"github.com/lanehq/lanehq/internal/db/repositories"
)

// Directory errors
var (
	ErrInvalidSlug          = errors.New("slug must be 2-63 lowercase letters, digits or hyphens and start with a letter or digit")
	ErrDisplayNameTooLong   = errors.New("display name cannot exceed 255 characters")
	ErrSlugTaken            = errors.New("slug is already in use")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrNotificationsOff     = errors.New("notification url sealing is not configured")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// ValidSlug reports whether s can name an organization or board.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// OrganizationWriter creates and lists organizations. Implemented by repositories.OrganizationRepository.
type OrganizationWriter interface {
	Create(ctx context.Context, org *models.Organization) error
	List(ctx context.Context, limit, offset int) ([]*models.Organization, int, error)
	SetNotificationURL(ctx context.Context, orgID, sealed string) error
}

// BoardWriter creates and lists boards. Implemented by repositories.BoardRepository.
type BoardWriter interface {
	Create(ctx context.Context, board *models.Board) error
	ListByOrganization(ctx context.Context, orgID string) ([]*models.Board, error)
}

// Sealer encrypts notification URLs at rest. Implemented by *crypto.Sealer.
type Sealer interface {
	Seal(plaintext string) (string, error)
}

// Directory manages organizations and their boards.
type Directory struct {
	orgs        OrganizationWriter
	boards      BoardWriter
	sealer      Sealer
	validateURL func(string) error
	logger      *slog.Logger
}

// NewDirectory creates a directory. sealer may be nil when ENCRYPTION_KEY is
// unset, in which case notification URLs cannot be stored. validateURL checks
// a notification URL before it is sealed.
func NewDirectory(orgs OrganizationWriter, boards BoardWriter, sealer Sealer, validateURL func(string) error, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{orgs: orgs, boards: boards, sealer: sealer, validateURL: validateURL, logger: logger}
}

func normalizeNames(slug, displayName string) (string, string, error) {
	slug = strings.TrimSpace(slug)
	if !ValidSlug(slug) {
		return "", "", ErrInvalidSlug
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = slug
	}
	if utf8.RuneCountInString(displayName) > 255 {
		return "", "", ErrDisplayNameTooLong
	}
	return slug, displayName, nil
}

// CreateOrganization registers a tenant.
func (d *Directory) CreateOrganization(ctx context.Context, slug, displayName string) (*models.Organization, error) {
	slug, displayName, err := normalizeNames(slug, displayName)
	if err != nil {
		return nil, err
	}
	org := &models.Organization{Slug: slug, DisplayName: displayName}
	if err := d.orgs.Create(ctx, org); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrSlugTaken
		}
		return nil, err
	}
	d.logger.Info("organization created", "organization_id", org.ID, "slug", org.Slug)
	return org, nil
}

// ListOrganizations returns a page of organizations ordered by slug.
func (d *Directory) ListOrganizations(ctx context.Context, limit, offset int) ([]*models.Organization, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return d.orgs.List(ctx, limit, offset)
}

// CreateBoard adds a board to the organization. Board slugs are unique per organization.
func (d *Directory) CreateBoard(ctx context.Context, org *models.Organization, slug, displayName string) (*models.Board, error) {
	slug, displayName, err := normalizeNames(slug, displayName)
	if err != nil {
		return nil, err
	}
	board := &models.Board{OrganizationID: org.ID, Slug: slug, DisplayName: displayName}
	if err := d.boards.Create(ctx, board); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrSlugTaken
		}
		return nil, err
	}
	d.logger.Info("board created", "organization", org.Slug, "board_id", board.ID, "slug", board.Slug)
	return board, nil
}

// Boards lists the organization's boards.
func (d *Directory) Boards(ctx context.Context, org *models.Organization) ([]*models.Board, error) {
	return d.boards.ListByOrganization(ctx, org.ID)
}

// SetNotificationURL validates, seals and stores the organization's release
// announcement target. An empty url clears it.
func (d *Directory) SetNotificationURL(ctx context.Context, org *models.Organization, url string) error {
	url = strings.TrimSpace(url)
	sealed := ""
	if url != "" {
		if d.sealer == nil {
			return ErrNotificationsOff
		}
		if d.validateURL != nil {
			if err := d.validateURL(url); err != nil {
				return err
			}
		}
		var err error
		if sealed, err = d.sealer.Seal(url); err != nil {
			return fmt.Errorf("failed to seal notification url: %w", err)
		}
	}
	if err := d.orgs.SetNotificationURL(ctx, org.ID, sealed); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrOrganizationNotFound
		}
		return err
	}
	d.logger.Info("organization notification target updated", "organization", org.Slug, "cleared", url == "")
	return nil
}
