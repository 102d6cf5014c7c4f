package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/lanehq/lanehq/internal/db/models"
)

var feedbackCols = []string{
	"id", "board_id", "title", "description", "status", "position", "vote_count", "author_id", "created_at", "updated_at",
}

func feedbackRows() *sqlmock.Rows {
	return sqlmock.NewRows(feedbackCols)
}

func addFeedback(rows *sqlmock.Rows, id, status string, pos float64) *sqlmock.Rows {
	return rows.AddRow(id, "b1", "Title "+id, "", status, pos, int64(0), nil, time.Now(), time.Now())
}

func newFeedbackRepo(t *testing.T) (*FeedbackRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewFeedbackRepository(db), mock
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestFeedbackCreate_AppendsToLane(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT revision FROM boards WHERE id .* FOR UPDATE").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(4)))
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(position\\), 0\\) FROM feedback_items").
		WithArgs("b1", "backlog").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(2048.0))
	mock.ExpectQuery("INSERT INTO feedback_items").
		WithArgs("b1", "Dark mode", "", "backlog", 3072.0, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "vote_count", "created_at", "updated_at"}).
			AddRow("f1", int64(0), time.Now(), time.Now()))
	mock.ExpectQuery("UPDATE boards SET revision = revision \\+ 1").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(5)))
	mock.ExpectCommit()

	item := &models.FeedbackItem{BoardID: "b1", Title: "Dark mode", Status: models.StatusBacklog}
	rev, err := repo.Create(context.Background(), item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rev != 5 {
		t.Errorf("revision = %d, want 5", rev)
	}
	if item.ID != "f1" || item.Position != 3072 {
		t.Errorf("unexpected item: %+v", item)
	}
	expectationsMet(t, mock)
}

func TestFeedbackCreate_MissingBoard(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT revision FROM boards").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), &models.FeedbackItem{BoardID: "nope", Status: models.StatusBacklog})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

// ---------------------------------------------------------------------------
// GetByID / ListByBoard
// ---------------------------------------------------------------------------

func TestFeedbackGetByID(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	mock.ExpectQuery("SELECT.*FROM feedback_items WHERE board_id").
		WithArgs("b1", "f1").
		WillReturnRows(addFeedback(feedbackRows(), "f1", "planned", 1024))

	item, err := repo.GetByID(context.Background(), "b1", "f1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item == nil || item.Status != models.StatusPlanned {
		t.Errorf("unexpected item: %+v", item)
	}
}

func TestFeedbackGetByID_NotFound(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	mock.ExpectQuery("SELECT.*FROM feedback_items WHERE board_id").
		WillReturnRows(feedbackRows())

	item, err := repo.GetByID(context.Background(), "b1", "nope")
	if err != nil || item != nil {
		t.Errorf("GetByID() = %v, %v; want nil, nil", item, err)
	}
}

func TestFeedbackGetInOrganization(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	mock.ExpectQuery("FROM feedback_items f JOIN boards b").
		WithArgs("org1", "f1").
		WillReturnRows(addFeedback(feedbackRows(), "f1", "done", 1024))

	item, err := repo.GetInOrganization(context.Background(), "org1", "f1")
	if err != nil || item == nil {
		t.Fatalf("GetInOrganization() = %v, %v", item, err)
	}
}

func TestFeedbackListByBoard_ExcludesArchivedByDefault(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	mock.ExpectQuery("SELECT COUNT.*status <>").
		WithArgs("b1", "archived").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM feedback_items WHERE board_id .* AND status <> .* ORDER BY created_at DESC").
		WithArgs("b1", "archived", 50, 0).
		WillReturnRows(addFeedback(feedbackRows(), "f1", "backlog", 1024))

	items, total, err := repo.ListByBoard(context.Background(), "b1", FeedbackFilter{}, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Errorf("total = %d, len = %d", total, len(items))
	}
	expectationsMet(t, mock)
}

func TestFeedbackListByBoard_StatusFilter(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	status := models.StatusDone
	mock.ExpectQuery("SELECT COUNT.*status =").
		WithArgs("b1", "done").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT.*FROM feedback_items").
		WithArgs("b1", "done", 10, 20).
		WillReturnRows(feedbackRows())

	items, total, err := repo.ListByBoard(context.Background(), "b1", FeedbackFilter{Status: &status}, 10, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("total = %d, len = %d", total, len(items))
	}
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

func TestFeedbackSnapshot(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT revision FROM boards WHERE id").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(9)))
	rows := addFeedback(feedbackRows(), "f1", "backlog", 1024)
	rows = addFeedback(rows, "f2", "planned", 1024)
	mock.ExpectQuery("SELECT.*FROM feedback_items WHERE board_id .* ORDER BY position, id").
		WithArgs("b1", "archived").
		WillReturnRows(rows)
	mock.ExpectCommit()

	rev, items, err := repo.Snapshot(context.Background(), "b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rev != 9 || len(items) != 2 {
		t.Errorf("Snapshot() = %d, %d items", rev, len(items))
	}
	expectationsMet(t, mock)
}

func TestFeedbackSnapshot_MissingBoard(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT revision FROM boards WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}))
	mock.ExpectRollback()

	if _, _, err := repo.Snapshot(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Reposition
// ---------------------------------------------------------------------------

func expectLockedBoard(mock sqlmock.Sqlmock, revision int64, rows *sqlmock.Rows) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT revision FROM boards WHERE id .* FOR UPDATE").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(revision))
	mock.ExpectQuery("SELECT.*FROM feedback_items WHERE board_id").
		WithArgs("b1").
		WillReturnRows(rows)
}

func TestFeedbackReposition_WritesPlacements(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	expectLockedBoard(mock, 3, addFeedback(feedbackRows(), "f1", "backlog", 1024))
	mock.ExpectExec("UPDATE feedback_items SET status").
		WithArgs("f1", "planned", 512.0, "b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE boards SET revision = revision \\+ 1").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(4)))
	mock.ExpectCommit()

	var seen int
	rev, err := repo.Reposition(context.Background(), "b1", func(items []*models.FeedbackItem) ([]models.Placement, error) {
		seen = len(items)
		return []models.Placement{{ItemID: "f1", Status: models.StatusPlanned, Position: 512}}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != 1 {
		t.Errorf("plan saw %d items, want 1", seen)
	}
	if rev != 4 {
		t.Errorf("revision = %d, want 4", rev)
	}
	expectationsMet(t, mock)
}

func TestFeedbackReposition_NoPlacementsKeepsRevision(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	expectLockedBoard(mock, 3, feedbackRows())
	mock.ExpectRollback()

	rev, err := repo.Reposition(context.Background(), "b1", func([]*models.FeedbackItem) ([]models.Placement, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rev != 3 {
		t.Errorf("revision = %d, want 3", rev)
	}
	expectationsMet(t, mock)
}

func TestFeedbackReposition_PlanErrorReturnedUnchanged(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	expectLockedBoard(mock, 3, feedbackRows())
	mock.ExpectRollback()

	planErr := errors.New("no such item")
	_, err := repo.Reposition(context.Background(), "b1", func([]*models.FeedbackItem) ([]models.Placement, error) {
		return nil, planErr
	})
	if err != planErr {
		t.Errorf("err = %v, want plan error", err)
	}
}

func TestFeedbackReposition_UpdateFailureRollsBack(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	expectLockedBoard(mock, 3, addFeedback(feedbackRows(), "f1", "backlog", 1024))
	mock.ExpectExec("UPDATE feedback_items SET status").
		WillReturnError(errors.New("serialization failure"))
	mock.ExpectRollback()

	_, err := repo.Reposition(context.Background(), "b1", func([]*models.FeedbackItem) ([]models.Placement, error) {
		return []models.Placement{{ItemID: "f1", Status: models.StatusDone, Position: 1}}, nil
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	expectationsMet(t, mock)
}

// ---------------------------------------------------------------------------
// UpdateContent / Upvote
// ---------------------------------------------------------------------------

func TestFeedbackUpdateContent(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT revision FROM boards").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(1)))
	mock.ExpectQuery("UPDATE feedback_items SET title").
		WithArgs("b1", "f1", "New title", "Body").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectQuery("UPDATE boards SET revision").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(2)))
	mock.ExpectCommit()

	item := &models.FeedbackItem{ID: "f1", BoardID: "b1", Title: "New title", Description: "Body"}
	rev, err := repo.UpdateContent(context.Background(), item)
	if err != nil || rev != 2 {
		t.Errorf("UpdateContent() = %d, %v", rev, err)
	}
}

func TestFeedbackUpvote_NotFound(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT revision FROM boards").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(1)))
	mock.ExpectQuery("UPDATE feedback_items SET vote_count").
		WillReturnRows(sqlmock.NewRows([]string{"vote_count"}))
	mock.ExpectRollback()

	if _, _, err := repo.Upvote(context.Background(), "b1", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFeedbackUpvote(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT revision FROM boards").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(1)))
	mock.ExpectQuery("UPDATE feedback_items SET vote_count").
		WithArgs("b1", "f1").
		WillReturnRows(sqlmock.NewRows([]string{"vote_count"}).AddRow(int64(8)))
	mock.ExpectQuery("UPDATE boards SET revision").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(2)))
	mock.ExpectCommit()

	votes, rev, err := repo.Upvote(context.Background(), "b1", "f1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if votes != 8 || rev != 2 {
		t.Errorf("Upvote() = %d, %d", votes, rev)
	}
}

// ---------------------------------------------------------------------------
// BoardsWithNarrowGaps
// ---------------------------------------------------------------------------

func TestBoardsWithNarrowGaps(t *testing.T) {
	repo, mock := newFeedbackRepo(t)
	mock.ExpectQuery("LAG\\(position\\) OVER").
		WithArgs("archived", 0.001).
		WillReturnRows(sqlmock.NewRows([]string{"board_id"}).AddRow("b1").AddRow("b7"))

	ids, err := repo.BoardsWithNarrowGaps(context.Background(), 0.001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "b1" {
		t.Errorf("ids = %v", ids)
	}
}
