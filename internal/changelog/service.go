package changelog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/lanehq/lanehq/internal/db/models"
	"github.com/lanehq/lanehq/internal/db/repositories"
	"github.com/lanehq/lanehq/internal/live"
	"github.com/lanehq/lanehq/internal/safego"
	"github.com/lanehq/lanehq/internal/telemetry"
)

// Changelog errors
var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrReleaseNotFound      = errors.New("release not found")
	ErrFeedbackNotFound     = errors.New("feedback item not found")
	ErrReleaseItemNotFound  = errors.New("release item not found")
	ErrAlreadyShipped       = errors.New("feedback item already ships in a release")
	ErrAlreadyPublished     = errors.New("release is already published")
	ErrNotPublished         = errors.New("release is not published")
	ErrEmptyTitle           = errors.New("release title cannot be empty")
	ErrTitleTooLong         = errors.New("release title cannot exceed 255 characters")
)

const maxTitleLength = 255

// Store is the release persistence. Implemented by repositories.ReleaseRepository.
type Store interface {
	Snapshot(ctx context.Context, orgID string, includeDrafts bool) (int64, []*models.ReleaseWithItems, error)
	Revision(ctx context.Context, orgID string) (int64, error)
	Create(ctx context.Context, rel *models.Release) (int64, error)
	GetByID(ctx context.Context, orgID, id string) (*models.Release, error)
	Update(ctx context.Context, rel *models.Release) (int64, error)
	SetPublishedAt(ctx context.Context, orgID, id string, at *time.Time) (int64, error)
	Delete(ctx context.Context, orgID, id string) (int64, error)
	AddItem(ctx context.Context, orgID string, item *models.ReleaseItem) (int64, error)
	RemoveItem(ctx context.Context, orgID, releaseID, itemID string) (int64, error)
	TouchFeedback(ctx context.Context, feedbackIDs []string) (orgID string, revision int64, err error)
}

// FeedbackLookup resolves feedback within an organization.
type FeedbackLookup interface {
	GetInOrganization(ctx context.Context, orgID, id string) (*models.FeedbackItem, error)
}

// Publisher announces new changelog revisions.
type Publisher interface {
	Publish(ctx context.Context, ev live.Event) error
}

// Announcer is told about newly published releases.
type Announcer interface {
	AnnounceRelease(ctx context.Context, orgID string, rel *models.Release) error
}

// Changelog is an organization's changelog at one revision.
type Changelog struct {
	OrganizationID string          `json:"organization_id"`
	Revision       int64           `json:"revision"`
	Releases       []ReleaseView   `json:"releases"`
	Feedback       []FeedbackEntry `json:"feedback"`
}

// Service reads and edits changelogs.
type Service struct {
	store     Store
	feedback  FeedbackLookup
	pub       Publisher
	announcer Announcer
	renderer  *Renderer
	memo      *cache.Cache
	logger    *slog.Logger
}

// NewService creates a changelog service. Aggregated changelogs are memoized for ttl
// per organization, revision and draft visibility. pub and announcer may be nil.
func NewService(store Store, feedback FeedbackLookup, pub Publisher, announcer Announcer, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		store:     store,
		feedback:  feedback,
		pub:       pub,
		announcer: announcer,
		renderer:  NewRenderer(),
		memo:      cache.New(ttl, ttl*2),
		logger:    logger,
	}
}

func memoKey(orgID string, revision int64, drafts bool) string {
	return fmt.Sprintf("%s:%d:%t", orgID, revision, drafts)
}

// List returns the organization's changelog. Drafts are included only when showDrafts is set.
func (s *Service) List(ctx context.Context, orgID string, showDrafts bool) (*Changelog, error) {
	revision, err := s.store.Revision(ctx, orgID)
	if err != nil {
		return nil, s.readError(err)
	}
	if cached, found := s.memo.Get(memoKey(orgID, revision, showDrafts)); found {
		telemetry.ChangelogCacheHits.Inc()
		return cached.(*Changelog), nil
	}
	telemetry.ChangelogCacheMisses.Inc()

	revision, releases, err := s.store.Snapshot(ctx, orgID, showDrafts)
	if err != nil {
		return nil, s.readError(err)
	}

	views := Aggregate(releases, showDrafts)
	for i := range views {
		rendered, err := s.renderer.HTML(views[i].Notes)
		if err != nil {
			s.logger.Warn("changelog: rendering release notes failed", "release_id", views[i].ID, "error", err)
			continue
		}
		views[i].NotesHTML = rendered
	}

	cl := &Changelog{
		OrganizationID: orgID,
		Revision:       revision,
		Releases:       views,
		Feedback:       Flatten(views),
	}
	s.memo.Set(memoKey(orgID, revision, showDrafts), cl, cache.DefaultExpiration)
	return cl, nil
}

func (s *Service) readError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrOrganizationNotFound
	}
	return fmt.Errorf("failed to read changelog: %w", err)
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}
	if len(title) > maxTitleLength {
		return "", ErrTitleTooLong
	}
	return title, nil
}

// Create adds a draft release.
func (s *Service) Create(ctx context.Context, orgID, title, notes string) (*models.Release, error) {
	title, err := validateTitle(title)
	if err != nil {
		return nil, err
	}
	rel := &models.Release{OrganizationID: orgID, Title: title, Notes: notes}
	revision, err := s.store.Create(ctx, rel)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, s.writeError("create", err)
	}
	s.announce(ctx, orgID, revision)
	return rel, nil
}

// Get returns one release, draft or not.
func (s *Service) Get(ctx context.Context, orgID, id string) (*models.Release, error) {
	rel, err := s.store.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get release: %w", err)
	}
	if rel == nil {
		return nil, ErrReleaseNotFound
	}
	return rel, nil
}

// Update changes a release's title and notes.
func (s *Service) Update(ctx context.Context, orgID, id, title, notes string) (*models.Release, error) {
	title, err := validateTitle(title)
	if err != nil {
		return nil, err
	}
	rel, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	rel.Title = title
	rel.Notes = notes
	revision, err := s.store.Update(ctx, rel)
	if err != nil {
		return nil, s.writeError("update", err)
	}
	s.announce(ctx, orgID, revision)
	return rel, nil
}

// Publish stamps the release with the current time and announces it.
func (s *Service) Publish(ctx context.Context, orgID, id string) (*models.Release, error) {
	rel, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !rel.IsDraft() {
		return nil, ErrAlreadyPublished
	}
	now := time.Now().UTC()
	revision, err := s.store.SetPublishedAt(ctx, orgID, id, &now)
	if err != nil {
		return nil, s.writeError("publish", err)
	}
	rel.PublishedAt = &now
	s.announce(ctx, orgID, revision)

	if s.announcer != nil {
		published := *rel
		safego.Go("release-announcement", func() {
			if err := s.announcer.AnnounceRelease(context.Background(), orgID, &published); err != nil {
				s.logger.Warn("changelog: release announcement failed", "release_id", published.ID, "error", err)
			}
		})
	}
	return rel, nil
}

// Unpublish turns a published release back into a draft.
func (s *Service) Unpublish(ctx context.Context, orgID, id string) (*models.Release, error) {
	rel, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if rel.IsDraft() {
		return nil, ErrNotPublished
	}
	revision, err := s.store.SetPublishedAt(ctx, orgID, id, nil)
	if err != nil {
		return nil, s.writeError("unpublish", err)
	}
	rel.PublishedAt = nil
	s.announce(ctx, orgID, revision)
	return rel, nil
}

// Delete removes a release. Its feedback stays on the roadmap.
func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	revision, err := s.store.Delete(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrReleaseNotFound
		}
		return s.writeError("delete", err)
	}
	s.announce(ctx, orgID, revision)
	return nil
}

// AddItem links feedback of the organization to a release.
func (s *Service) AddItem(ctx context.Context, orgID, releaseID, feedbackID string) (*models.ReleaseItem, error) {
	if _, err := s.Get(ctx, orgID, releaseID); err != nil {
		return nil, err
	}
	fb, err := s.feedback.GetInOrganization(ctx, orgID, feedbackID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback item: %w", err)
	}
	if fb == nil {
		return nil, ErrFeedbackNotFound
	}

	item := &models.ReleaseItem{ReleaseID: releaseID, FeedbackID: &fb.ID}
	revision, err := s.store.AddItem(ctx, orgID, item)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrAlreadyShipped
		}
		return nil, s.writeError("add_item", err)
	}
	s.announce(ctx, orgID, revision)
	return item, nil
}

// RemoveItem unlinks a release item.
func (s *Service) RemoveItem(ctx context.Context, orgID, releaseID, itemID string) error {
	if _, err := s.Get(ctx, orgID, releaseID); err != nil {
		return err
	}
	revision, err := s.store.RemoveItem(ctx, orgID, releaseID, itemID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrReleaseItemNotFound
		}
		return s.writeError("remove_item", err)
	}
	s.announce(ctx, orgID, revision)
	return nil
}

// FeedbackChanged moves the changelog of the organization shipping any of
// feedbackIDs to a new revision, so memoized copies stop matching and stream
// subscribers re-read it. Call it after feedback content, votes or status change.
// Failures are logged; the feedback change itself has already been committed.
func (s *Service) FeedbackChanged(ctx context.Context, feedbackIDs ...string) {
	orgID, revision, err := s.store.TouchFeedback(ctx, feedbackIDs)
	if err != nil {
		// Entries of this instance at least must not outlive the edit.
		s.memo.Flush()
		s.logger.Warn("changelog: failed to bump revision for feedback change", "feedback_ids", feedbackIDs, "error", err)
		return
	}
	if orgID == "" {
		return
	}
	s.announce(ctx, orgID, revision)
}

func (s *Service) announce(ctx context.Context, orgID string, revision int64) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, live.Event{Topic: live.ChangelogTopic(orgID), Revision: revision}); err != nil {
		s.logger.Warn("changelog: failed to announce revision", "organization_id", orgID, "revision", revision, "error", err)
	}
}

func (s *Service) writeError(op string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrReleaseNotFound
	}
	telemetry.MutationFailuresTotal.WithLabelValues("changelog_" + op).Inc()
	telemetry.CaptureError(err, "changelog")
	s.logger.Error("changelog: mutation failed", "op", op, "error", err)
	return fmt.Errorf("changelog %s failed: %w", op, err)
}
