package roadmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/lanehq/lanehq/internal/db/models"
	"github.com/lanehq/lanehq/internal/db/repositories"
	"github.com/lanehq/lanehq/internal/live"
	"github.com/lanehq/lanehq/internal/telemetry"
)

// Store is the persistence the roadmap needs. Implemented by repositories.FeedbackRepository.
type Store interface {
	Snapshot(ctx context.Context, boardID string) (int64, []*models.FeedbackItem, error)
	Reposition(ctx context.Context, boardID string, plan repositories.PlanFunc) (int64, error)
	BoardsWithNarrowGaps(ctx context.Context, minGap float64) ([]string, error)
}

// Publisher announces new snapshot revisions. Implemented by live.Hub.
type Publisher interface {
	Publish(ctx context.Context, ev live.Event) error
}

// ChangelogUpdater is told which feedback items changed lane, so a changelog
// that ships them can move to a new revision. Implemented by *changelog.Service.
type ChangelogUpdater interface {
	FeedbackChanged(ctx context.Context, feedbackIDs ...string)
}

// Option configures a Service.
type Option func(*Service)

// WithChangelog reports lane changes of feedback items to cl.
func WithChangelog(cl ChangelogUpdater) Option {
	return func(s *Service) { s.changelog = cl }
}

// MoveResult is the acknowledgement of a drop.
type MoveResult struct {
	// Revision is the board revision that contains the move.
	Revision   int64              `json:"revision"`
	Placements []models.Placement `json:"placements"`
	NoOp       bool               `json:"noop"`
}

// Service plans and persists roadmap changes and announces them.
type Service struct {
	store     Store
	pub       Publisher
	lanes     *Lanes
	changelog ChangelogUpdater
	logger    *slog.Logger
}

// NewService creates a roadmap service.
func NewService(store Store, pub Publisher, lanes *Lanes, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, pub: pub, lanes: lanes, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Lanes returns the configured lanes.
func (s *Service) Lanes() *Lanes {
	return s.lanes
}

// Board returns the board's roadmap view, optionally limited to the lanes in filter.
func (s *Service) Board(ctx context.Context, boardID string, filter []string) (*View, error) {
	revision, items, err := s.store.Snapshot(ctx, boardID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrBoardNotFound
		}
		return nil, fmt.Errorf("failed to read roadmap: %w", err)
	}
	return &View{
		BoardID:  boardID,
		Revision: revision,
		Columns:  BuildBoard(items, s.lanes, filter, s.logger),
	}, nil
}

// Move applies a drop event. Moving an archived item onto a lane restores it.
func (s *Service) Move(ctx context.Context, boardID string, ev DropEvent) (*MoveResult, error) {
	if _, err := Classify(ev.TargetLane, s.lanes); err != nil {
		telemetry.RoadmapMovesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if ev.TargetIndex < 0 {
		telemetry.RoadmapMovesTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidIndex
	}

	var plan MovePlan
	revision, err := s.store.Reposition(ctx, boardID, func(items []*models.FeedbackItem) ([]models.Placement, error) {
		p, err := PlanMove(items, ev, s.lanes)
		if err != nil {
			return nil, err
		}
		plan = p
		return p.Placements, nil
	})
	if err != nil {
		return nil, s.moveError("move", boardID, err)
	}

	if plan.StaleSource {
		s.logger.Debug("roadmap: drop named stale source lane",
			"board_id", boardID, "item_id", ev.ItemID, "source_lane", ev.SourceLane, "actual_lane", plan.From)
	}
	if plan.NoOp {
		telemetry.RoadmapMovesTotal.WithLabelValues("noop").Inc()
		return &MoveResult{Revision: revision, Placements: []models.Placement{}, NoOp: true}, nil
	}

	telemetry.RoadmapMovesTotal.WithLabelValues("moved").Inc()
	if plan.Renumbered {
		telemetry.LaneRenumbersTotal.WithLabelValues("move").Inc()
	}
	s.announce(ctx, boardID, revision)
	if plan.From != ev.TargetLane {
		s.feedbackChanged(ctx, ev.ItemID)
	}
	return &MoveResult{Revision: revision, Placements: plan.Placements}, nil
}

// ChangeStatus moves an item to the end of the lane for status. The archived
// status archives the item instead.
func (s *Service) ChangeStatus(ctx context.Context, boardID, itemID string, status models.FeedbackStatus) (*MoveResult, error) {
	if status == models.StatusArchived {
		return s.Archive(ctx, boardID, itemID)
	}
	return s.Move(ctx, boardID, DropEvent{ItemID: itemID, TargetLane: status, TargetIndex: math.MaxInt})
}

// Archive removes an item from the roadmap without deleting it.
func (s *Service) Archive(ctx context.Context, boardID, itemID string) (*MoveResult, error) {
	var placement models.Placement
	revision, err := s.store.Reposition(ctx, boardID, func(items []*models.FeedbackItem) ([]models.Placement, error) {
		for _, it := range items {
			if it.ID != itemID {
				continue
			}
			if it.Status == models.StatusArchived {
				return nil, ErrAlreadyArchived
			}
			placement = models.Placement{ItemID: it.ID, Status: models.StatusArchived, Position: it.Position}
			return []models.Placement{placement}, nil
		}
		return nil, ErrItemNotFound
	})
	if err != nil {
		return nil, s.moveError("archive", boardID, err)
	}
	s.announce(ctx, boardID, revision)
	s.feedbackChanged(ctx, itemID)
	return &MoveResult{Revision: revision, Placements: []models.Placement{placement}}, nil
}

// Compact respaces the board's lanes whose smallest gap is below threshold.
// Returns the number of lanes respaced.
func (s *Service) Compact(ctx context.Context, boardID string, threshold float64) (int, error) {
	count := 0
	revision, err := s.store.Reposition(ctx, boardID, func(items []*models.FeedbackItem) ([]models.Placement, error) {
		placements, n := PlanCompaction(items, s.lanes, threshold)
		count = n
		return placements, nil
	})
	if err != nil {
		return 0, s.moveError("compact", boardID, err)
	}
	if count > 0 {
		telemetry.LaneRenumbersTotal.WithLabelValues("compactor").Add(float64(count))
		s.announce(ctx, boardID, revision)
	}
	return count, nil
}

// CompactNarrowLanes compacts every board with a lane gap below threshold.
// Returns the number of boards changed. Per-board failures are logged and skipped.
func (s *Service) CompactNarrowLanes(ctx context.Context, threshold float64) (int, error) {
	boardIDs, err := s.store.BoardsWithNarrowGaps(ctx, threshold)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, id := range boardIDs {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		n, err := s.Compact(ctx, id, threshold)
		if err != nil {
			s.logger.Error("roadmap: lane compaction failed", "board_id", id, "error", err)
			continue
		}
		if n > 0 {
			changed++
		}
	}
	return changed, nil
}

func (s *Service) feedbackChanged(ctx context.Context, itemID string) {
	if s.changelog != nil {
		s.changelog.FeedbackChanged(ctx, itemID)
	}
}

func (s *Service) announce(ctx context.Context, boardID string, revision int64) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, live.Event{Topic: live.BoardTopic(boardID), Revision: revision}); err != nil {
		s.logger.Warn("roadmap: failed to announce revision", "board_id", boardID, "revision", revision, "error", err)
	}
}

// moveError classifies a Reposition failure, counting persistence failures.
func (s *Service) moveError(op, boardID string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		telemetry.RoadmapMovesTotal.WithLabelValues("rejected").Inc()
		return ErrBoardNotFound
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrInvalidIndex),
		errors.Is(err, ErrAlreadyArchived), IsConfigurationError(err):
		telemetry.RoadmapMovesTotal.WithLabelValues("rejected").Inc()
		return err
	}
	telemetry.RoadmapMovesTotal.WithLabelValues("failed").Inc()
	telemetry.MutationFailuresTotal.WithLabelValues("roadmap_" + op).Inc()
	telemetry.CaptureError(err, "roadmap")
	s.logger.Error("roadmap: mutation failed", "op", op, "board_id", boardID, "error", err)
	return fmt.Errorf("roadmap %s failed: %w", op, err)
}
