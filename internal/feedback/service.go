// Package feedback implements feedback item CRUD, voting and attachments. Lane
// changes are delegated to the roadmap service so every status change follows
// the same placement rules as a drag-and-drop move.
package feedback

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lanehq/lanehq/internal/db/models"
	"github.com/lanehq/lanehq/internal/db/repositories"
	"github.com/lanehq/lanehq/internal/live"
	"github.com/lanehq/lanehq/internal/roadmap"
	"github.com/lanehq/lanehq/internal/storage"
	"github.com/lanehq/lanehq/internal/telemetry"
)

// Store is the feedback persistence. Implemented by repositories.FeedbackRepository.
type Store interface {
	Create(ctx context.Context, item *models.FeedbackItem) (int64, error)
	GetByID(ctx context.Context, boardID, id string) (*models.FeedbackItem, error)
	ListByBoard(ctx context.Context, boardID string, filter repositories.FeedbackFilter, limit, offset int) ([]*models.FeedbackItem, int, error)
	UpdateContent(ctx context.Context, item *models.FeedbackItem) (int64, error)
	Upvote(ctx context.Context, boardID, id string) (int, int64, error)
}

// AttachmentStore records attachment metadata. Implemented by repositories.AttachmentRepository.
type AttachmentStore interface {
	Create(ctx context.Context, a *models.Attachment) error
	GetByID(ctx context.Context, feedbackID, id string) (*models.Attachment, error)
	ListByFeedback(ctx context.Context, feedbackID string) ([]*models.Attachment, error)
}

// Roadmap changes an item's lane. Implemented by *roadmap.Service.
type Roadmap interface {
	Lanes() *roadmap.Lanes
	ChangeStatus(ctx context.Context, boardID, itemID string, status models.FeedbackStatus) (*roadmap.MoveResult, error)
}

// Publisher announces new board revisions.
type Publisher interface {
	Publish(ctx context.Context, ev live.Event) error
}

// Changelog is told about edits and votes on feedback. Implemented by *changelog.Service.
type Changelog interface {
	FeedbackChanged(ctx context.Context, feedbackIDs ...string)
}

// Input is the editable content of an item.
type Input struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	AuthorID    *string `json:"-"`
}

// Normalize trims the title and checks both fields' length limits.
func (in *Input) Normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(in.Title) > maxTitleLength {
		return ErrTitleTooLong
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// Service manages feedback items on boards.
type Service struct {
	store       Store
	attachments AttachmentStore
	blobs       storage.Storage
	roadmap     Roadmap
	pub         Publisher
	changelog   Changelog
	maxUpload   int64
	urlTTL      time.Duration
	logger      *slog.Logger
}

// Options configures attachment handling.
type Options struct {
	// MaxUploadBytes caps one attachment. Zero means 10 MiB.
	MaxUploadBytes int64
	// DownloadURLTTL is the lifetime of pre-signed download URLs. Zero means 15 minutes.
	DownloadURLTTL time.Duration
	// Changelog, when set, refreshes changelogs that ship an edited item.
	Changelog Changelog
}

// NewService creates a feedback service. blobs may be nil, which disables attachments.
func NewService(store Store, attachments AttachmentStore, blobs storage.Storage, rm Roadmap, pub Publisher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.DownloadURLTTL <= 0 {
		opts.DownloadURLTTL = 15 * time.Minute
	}
	return &Service{
		store:       store,
		attachments: attachments,
		blobs:       blobs,
		roadmap:     rm,
		pub:         pub,
		changelog:   opts.Changelog,
		maxUpload:   opts.MaxUploadBytes,
		urlTTL:      opts.DownloadURLTTL,
		logger:      logger,
	}
}

// Create adds an item at the end of the first lane. Returns the item and the
// board revision that contains it.
func (s *Service) Create(ctx context.Context, boardID string, in Input) (*models.FeedbackItem, int64, error) {
	if err := in.Normalize(); err != nil {
		return nil, 0, err
	}
	item := &models.FeedbackItem{
		BoardID:     boardID,
		Title:       in.Title,
		Description: in.Description,
		Status:      s.roadmap.Lanes().First().Status,
		AuthorID:    in.AuthorID,
	}
	revision, err := s.store.Create(ctx, item)
	if err != nil {
		return nil, 0, s.writeError("create", boardID, err)
	}
	s.announce(ctx, boardID, revision)
	return item, revision, nil
}

// Get returns an item on the board.
func (s *Service) Get(ctx context.Context, boardID, id string) (*models.FeedbackItem, error) {
	item, err := s.store.GetByID(ctx, boardID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback item: %w", err)
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	return item, nil
}

// List returns a page of the board's items, newest first.
func (s *Service) List(ctx context.Context, boardID string, filter repositories.FeedbackFilter, limit, offset int) ([]*models.FeedbackItem, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.store.ListByBoard(ctx, boardID, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list feedback: %w", err)
	}
	return items, total, nil
}

// Update replaces an item's title and description.
func (s *Service) Update(ctx context.Context, boardID, id string, in Input) (*models.FeedbackItem, int64, error) {
	if err := in.Normalize(); err != nil {
		return nil, 0, err
	}
	item, err := s.Get(ctx, boardID, id)
	if err != nil {
		return nil, 0, err
	}
	item.Title = in.Title
	item.Description = in.Description
	revision, err := s.store.UpdateContent(ctx, item)
	if err != nil {
		return nil, 0, s.writeError("update", boardID, err)
	}
	s.announce(ctx, boardID, revision)
	s.feedbackChanged(ctx, item.ID)
	return item, revision, nil
}

// ChangeStatus moves the item to the end of the lane for status, or archives it.
func (s *Service) ChangeStatus(ctx context.Context, boardID, id string, status models.FeedbackStatus) (*roadmap.MoveResult, error) {
	res, err := s.roadmap.ChangeStatus(ctx, boardID, id, status)
	if errors.Is(err, roadmap.ErrItemNotFound) {
		return nil, ErrItemNotFound
	}
	return res, err
}

// Upvote adds one vote. Returns the new vote count and board revision.
func (s *Service) Upvote(ctx context.Context, boardID, id string) (int, int64, error) {
	votes, revision, err := s.store.Upvote(ctx, boardID, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return 0, 0, ErrItemNotFound
		}
		return 0, 0, s.writeError("upvote", boardID, err)
	}
	s.announce(ctx, boardID, revision)
	s.feedbackChanged(ctx, id)
	return votes, revision, nil
}

// AttachmentsEnabled reports whether a storage backend is configured.
func (s *Service) AttachmentsEnabled() bool {
	return s.blobs != nil
}

// Upload stores an attachment body and records it on the item. When
// contentType is empty it is sniffed from the body.
func (s *Service) Upload(ctx context.Context, orgID string, item *models.FeedbackItem, fileName, contentType string, body io.Reader) (*models.Attachment, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("attachments are not configured")
	}

	buffered := bufio.NewReader(io.LimitReader(body, s.maxUpload+1))
	if contentType == "" {
		head, _ := buffered.Peek(512)
		if len(head) == 0 {
			return nil, ErrEmptyAttachment
		}
		contentType = http.DetectContentType(head)
	}

	key := storage.AttachmentKey(orgID, item.BoardID, item.ID, uuid.NewString())
	obj, err := s.blobs.Put(ctx, key, buffered, contentType)
	if err != nil {
		return nil, s.writeError("upload", item.BoardID, err)
	}
	if obj.Size == 0 || obj.Size > s.maxUpload {
		s.discard(key)
		if obj.Size == 0 {
			return nil, ErrEmptyAttachment
		}
		return nil, ErrAttachmentTooLarge
	}

	att := &models.Attachment{
		FeedbackID:  item.ID,
		StoragePath: key,
		FileName:    cleanFileName(fileName),
		ContentType: contentType,
		SizeBytes:   obj.Size,
		Checksum:    obj.Checksum,
	}
	if err := s.attachments.Create(ctx, att); err != nil {
		s.discard(key)
		return nil, s.writeError("upload", item.BoardID, err)
	}
	s.logger.Info("attachment stored", "feedback_id", item.ID, "attachment_id", att.ID, "size_bytes", att.SizeBytes)
	return att, nil
}

// Attachments lists an item's attachments in upload order.
func (s *Service) Attachments(ctx context.Context, feedbackID string) ([]*models.Attachment, error) {
	list, err := s.attachments.ListByFeedback(ctx, feedbackID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return list, nil
}

// Download returns either a pre-signed URL for the attachment, when the
// backend supports one, or its body. Exactly one of url and body is set.
func (s *Service) Download(ctx context.Context, feedbackID, attachmentID string) (att *models.Attachment, url string, body io.ReadCloser, err error) {
	if s.blobs == nil {
		return nil, "", nil, ErrAttachmentNotFound
	}
	att, err = s.attachments.GetByID(ctx, feedbackID, attachmentID)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	if att == nil {
		return nil, "", nil, ErrAttachmentNotFound
	}

	if p, ok := s.blobs.(storage.Presigner); ok {
		url, err = p.PresignGet(ctx, att.StoragePath, s.urlTTL)
	} else {
		body, err = s.blobs.Open(ctx, att.StoragePath)
	}
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("attachment body missing from storage", "attachment_id", att.ID, "key", att.StoragePath)
			return nil, "", nil, ErrAttachmentNotFound
		}
		return nil, "", nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	return att, url, body, nil
}

func (s *Service) discard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete orphaned attachment", "key", key, "error", err)
	}
}

func (s *Service) feedbackChanged(ctx context.Context, id string) {
	if s.changelog != nil {
		s.changelog.FeedbackChanged(ctx, id)
	}
}

func (s *Service) announce(ctx context.Context, boardID string, revision int64) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, live.Event{Topic: live.BoardTopic(boardID), Revision: revision}); err != nil {
		s.logger.Warn("feedback: failed to announce revision", "board_id", boardID, "revision", revision, "error", err)
	}
}

func (s *Service) writeError(op, boardID string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrBoardNotFound
	}
	telemetry.MutationFailuresTotal.WithLabelValues("feedback_" + op).Inc()
	telemetry.CaptureError(err, "feedback")
	s.logger.Error("feedback: mutation failed", "op", op, "board_id", boardID, "error", err)
	return fmt.Errorf("feedback %s failed: %w", op, err)
}

// cleanFileName keeps the base name, drops control characters and caps the length.
func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "attachment"
	}
	if utf8.RuneCountInString(name) > maxFileNameLength {
		name = string([]rune(name)[:maxFileNameLength])
	}
	return name
}
