package roadmap

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/lanehq/lanehq/internal/db/models"
)

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func columnIDs(c Column) string {
	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ID)
	}
	return fmt.Sprint(ids)
}

// ---------------------------------------------------------------------------
// BuildBoard
// ---------------------------------------------------------------------------

func TestBuildBoard_GroupsAndOrders(t *testing.T) {
	lanes := MustDefaultLanes()
	items := []*models.FeedbackItem{
		item("p2", models.StatusPlanned, 2048),
		item("b1", models.StatusBacklog, 1024),
		item("p1b", models.StatusPlanned, 1024),
		item("p1a", models.StatusPlanned, 1024),
		item("d1", models.StatusDone, 1024),
	}

	cols := BuildBoard(items, lanes, nil, nil)
	if len(cols) != 4 {
		t.Fatalf("columns = %d, want 4", len(cols))
	}
	wantOrder := []models.FeedbackStatus{models.StatusBacklog, models.StatusPlanned, models.StatusInProgress, models.StatusDone}
	for i, c := range cols {
		if c.Lane.Status != wantOrder[i] {
			t.Errorf("column %d = %s, want %s", i, c.Lane.Status, wantOrder[i])
		}
	}
	if got := columnIDs(cols[1]); got != "[p1a p1b p2]" {
		t.Errorf("planned = %s, ties must break by id", got)
	}
	if cols[2].Items == nil || len(cols[2].Items) != 0 {
		t.Errorf("empty lane should render an empty, non-nil list")
	}
}

func TestBuildBoard_FilterKeepsLaneOrder(t *testing.T) {
	lanes := MustDefaultLanes()
	items := []*models.FeedbackItem{
		item("b1", models.StatusBacklog, 1024),
		item("d1", models.StatusDone, 1024),
	}
	logger, buf := captureLogger()

	cols := BuildBoard(items, lanes, []string{"done", "triage", "backlog"}, logger)
	if len(cols) != 2 {
		t.Fatalf("columns = %d, want 2", len(cols))
	}
	if cols[0].Lane.Status != models.StatusBacklog || cols[1].Lane.Status != models.StatusDone {
		t.Errorf("columns not in lane order: %s, %s", cols[0].Lane.Status, cols[1].Lane.Status)
	}
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "triage") {
		t.Errorf("expected a warning naming the unknown lane, got %q", buf.String())
	}
}

func TestBuildBoard_SkipsUnknownStatuses(t *testing.T) {
	lanes := MustDefaultLanes()
	items := []*models.FeedbackItem{
		item("ok", models.StatusBacklog, 1024),
		item("bad", "triage", 1024),
		item("gone", models.StatusArchived, 1024),
	}
	logger, buf := captureLogger()

	cols := BuildBoard(items, lanes, nil, logger)
	total := 0
	for _, c := range cols {
		total += len(c.Items)
	}
	if total != 1 {
		t.Errorf("rendered %d items, want 1", total)
	}
	out := buf.String()
	if !strings.Contains(out, "item_id=bad") {
		t.Errorf("expected a warning for the unknown status, got %q", out)
	}
	if strings.Contains(out, "item_id=gone") {
		t.Error("archived items should be skipped silently")
	}
}
