// lane_compactor.go implements the LaneCompactor background job. Repeated drops
// between the same two neighbours halve the gap between their positions each
// time; the compactor renumbers lanes whose smallest gap fell below
// roadmap.min_gap before float precision runs out, bumping the board revision
// and announcing the new snapshot. The job is a no-op when
// roadmap.compact_interval is zero.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/lanehq/lanehq/internal/config"
)

// defaultMinGap is used when roadmap.min_gap is unset.
const defaultMinGap = 1e-6

// Compactor renumbers narrow lanes. Implemented by *roadmap.Service.
type Compactor interface {
	CompactNarrowLanes(ctx context.Context, threshold float64) (int, error)
}

// LaneCompactor periodically renumbers roadmap lanes with exhausted gaps.
type LaneCompactor struct {
	compactor Compactor
	interval  time.Duration
	minGap    float64
	logger    *slog.Logger
	stopChan  chan struct{}
}

// NewLaneCompactor creates a LaneCompactor from the roadmap configuration.
func NewLaneCompactor(compactor Compactor, cfg config.RoadmapConfig, logger *slog.Logger) *LaneCompactor {
	if logger == nil {
		logger = slog.Default()
	}
	minGap := cfg.MinGap
	if minGap <= 0 {
		minGap = defaultMinGap
	}
	return &LaneCompactor{
		compactor: compactor,
		interval:  cfg.CompactInterval,
		minGap:    minGap,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start runs a pass immediately and then on every interval until ctx is
// cancelled or Stop is called. It returns at once when the job is disabled.
func (j *LaneCompactor) Start(ctx context.Context) {
	if j.interval <= 0 {
		j.logger.Info("lane compactor: disabled (roadmap.compact_interval=0)")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("lane compactor started", "interval", j.interval, "min_gap", j.minGap)
	j.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			j.runOnce(ctx)
		case <-j.stopChan:
			j.logger.Info("lane compactor stopped")
			return
		case <-ctx.Done():
			j.logger.Info("lane compactor context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit. It must be called at most once.
func (j *LaneCompactor) Stop() {
	close(j.stopChan)
}

func (j *LaneCompactor) runOnce(ctx context.Context) {
	start := time.Now()
	changed, err := j.compactor.CompactNarrowLanes(ctx, j.minGap)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		j.logger.Error("lane compactor: pass failed", "error", err)
		return
	}
	if changed > 0 {
		j.logger.Info("lane compactor: renumbered boards", "boards", changed, "duration", time.Since(start))
	}
}
