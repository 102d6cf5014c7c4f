package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/lanehq/lanehq/internal/db/models"
)

var boardCols = []string{"id", "organization_id", "slug", "display_name", "revision", "created_at", "updated_at"}

func sampleBoardRow() *sqlmock.Rows {
	return sqlmock.NewRows(boardCols).
		AddRow("b1", "org1", "roadmap", "Public Roadmap", int64(7), time.Now(), time.Now())
}

func newBoardRepo(t *testing.T) (*BoardRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewBoardRepository(db), mock
}

func TestBoardGetBySlug_Found(t *testing.T) {
	repo, mock := newBoardRepo(t)
	mock.ExpectQuery("SELECT.*FROM boards WHERE organization_id").
		WithArgs("org1", "roadmap").
		WillReturnRows(sampleBoardRow())

	board, err := repo.GetBySlug(context.Background(), "org1", "roadmap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if board == nil || board.ID != "b1" || board.Revision != 7 {
		t.Errorf("unexpected board: %+v", board)
	}
}

func TestBoardGetBySlug_NotFound(t *testing.T) {
	repo, mock := newBoardRepo(t)
	mock.ExpectQuery("SELECT.*FROM boards WHERE organization_id").
		WillReturnRows(sqlmock.NewRows(boardCols))

	board, err := repo.GetBySlug(context.Background(), "org1", "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if board != nil {
		t.Error("expected nil board")
	}
}

func TestBoardGetByID_NotFound(t *testing.T) {
	repo, mock := newBoardRepo(t)
	mock.ExpectQuery("SELECT.*FROM boards WHERE id").
		WillReturnRows(sqlmock.NewRows(boardCols))

	board, err := repo.GetByID(context.Background(), "nope")
	if err != nil || board != nil {
		t.Errorf("GetByID() = %v, %v; want nil, nil", board, err)
	}
}

func TestBoardCreate(t *testing.T) {
	repo, mock := newBoardRepo(t)
	mock.ExpectQuery("INSERT INTO boards").
		WithArgs("org1", "roadmap", "Roadmap").
		WillReturnRows(sqlmock.NewRows([]string{"id", "revision", "created_at", "updated_at"}).
			AddRow("b1", int64(0), time.Now(), time.Now()))

	board := &models.Board{OrganizationID: "org1", Slug: "roadmap", DisplayName: "Roadmap"}
	if err := repo.Create(context.Background(), board); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if board.ID != "b1" {
		t.Errorf("ID = %q, want b1", board.ID)
	}
}

func TestBoardCreate_Duplicate(t *testing.T) {
	repo, mock := newBoardRepo(t)
	mock.ExpectQuery("INSERT INTO boards").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Board{OrganizationID: "org1", Slug: "roadmap"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestBoardListByOrganization(t *testing.T) {
	repo, mock := newBoardRepo(t)
	mock.ExpectQuery("SELECT.*FROM boards WHERE organization_id").
		WithArgs("org1").
		WillReturnRows(sampleBoardRow().
			AddRow("b2", "org1", "ideas", "Ideas", int64(0), time.Now(), time.Now()))

	boards, err := repo.ListByOrganization(context.Background(), "org1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(boards) != 2 {
		t.Errorf("len = %d, want 2", len(boards))
	}
}
