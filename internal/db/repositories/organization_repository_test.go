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

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var orgCols = []string{
	"id", "slug", "display_name", "notification_url_encrypted", "changelog_revision", "created_at", "updated_at",
}

func sampleOrgRow() *sqlmock.Rows {
	return sqlmock.NewRows(orgCols).
		AddRow("org1", "acme", "Acme Inc", nil, int64(3), time.Now(), time.Now())
}

func newOrgRepo(t *testing.T) (*OrganizationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewOrganizationRepository(db), mock
}

// ---------------------------------------------------------------------------
// GetBySlug / GetByID
// ---------------------------------------------------------------------------

func TestOrgGetBySlug_Found(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations WHERE slug").
		WithArgs("acme").
		WillReturnRows(sampleOrgRow())

	org, err := repo.GetBySlug(context.Background(), "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org == nil {
		t.Fatal("expected org, got nil")
	}
	if org.ID != "org1" || org.Slug != "acme" || org.ChangelogRevision != 3 {
		t.Errorf("unexpected org: %+v", org)
	}
	if org.HasNotificationTarget() {
		t.Error("null notification url should not count as a target")
	}
}

func TestOrgGetBySlug_NotFound(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations WHERE slug").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(orgCols))

	org, err := repo.GetBySlug(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org != nil {
		t.Error("expected nil, got non-nil")
	}
}

func TestOrgGetBySlug_DBError(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations WHERE slug").
		WillReturnError(errors.New("connection reset"))

	if _, err := repo.GetBySlug(context.Background(), "acme"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestOrgGetByID_Found(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT.*FROM organizations WHERE id").
		WithArgs("org1").
		WillReturnRows(sampleOrgRow())

	org, err := repo.GetByID(context.Background(), "org1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org == nil {
		t.Fatal("expected org, got nil")
	}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestOrgCreate_Success(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("INSERT INTO organizations").
		WithArgs("acme", "Acme Inc").
		WillReturnRows(sqlmock.NewRows([]string{"id", "changelog_revision", "created_at", "updated_at"}).
			AddRow("org1", int64(0), time.Now(), time.Now()))

	org := &models.Organization{Slug: "acme", DisplayName: "Acme Inc"}
	if err := repo.Create(context.Background(), org); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org.ID != "org1" {
		t.Errorf("ID = %q, want org1", org.ID)
	}
	expectationsMet(t, mock)
}

func TestOrgCreate_Duplicate(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Organization{Slug: "acme", DisplayName: "Acme"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestOrgList(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM organizations ORDER BY slug").
		WithArgs(20, 0).
		WillReturnRows(sampleOrgRow())

	orgs, total, err := repo.List(context.Background(), 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(orgs) != 1 {
		t.Errorf("total = %d, len = %d, want 1, 1", total, len(orgs))
	}
}

// ---------------------------------------------------------------------------
// SetNotificationURL
// ---------------------------------------------------------------------------

func TestOrgSetNotificationURL(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectExec("UPDATE organizations SET notification_url_encrypted").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetNotificationURL(context.Background(), "org1", "sealed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectationsMet(t, mock)
}

func TestOrgSetNotificationURL_Missing(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectExec("UPDATE organizations SET notification_url_encrypted").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetNotificationURL(context.Background(), "nope", ""); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for missing organization, got %v", err)
	}
}
