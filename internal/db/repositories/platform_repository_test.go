package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
)

var platformCols = []string{
	"id", "project_id", "platform", "name", "is_active", "test_mode",
	"credentials_encrypted", "webhook_token", "created_at", "updated_at",
}

func newPlatformRepo(t *testing.T) (*PlatformRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPlatformRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func samplePlatformRow() *sqlmock.Rows {
	return sqlmock.NewRows(platformCols).
		AddRow("plat-1", "proj-1", "discord", "Main bot", true, false, "ciphertext", "tok123", time.Now(), time.Now())
}

func TestPlatformCreate_Success(t *testing.T) {
	repo, mock := newPlatformRepo(t)
	mock.ExpectExec("INSERT INTO project_platforms").WillReturnResult(sqlmock.NewResult(1, 1))

	p := &models.ProjectPlatform{ProjectID: "proj-1", Platform: "discord", Name: "Main", WebhookToken: "t"}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == "" {
		t.Error("expected ID to be assigned")
	}
}

func TestPlatformGetByID_Found(t *testing.T) {
	repo, mock := newPlatformRepo(t)
	mock.ExpectQuery("SELECT.*FROM project_platforms WHERE id").
		WithArgs("plat-1", "proj-1").
		WillReturnRows(samplePlatformRow())

	p, err := repo.GetByID(context.Background(), "proj-1", "plat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.Platform != "discord" || !p.HasCredentials() {
		t.Errorf("platform = %+v", p)
	}
}

func TestPlatformGetByID_NotFound(t *testing.T) {
	repo, mock := newPlatformRepo(t)
	mock.ExpectQuery("SELECT.*FROM project_platforms WHERE id").
		WillReturnRows(sqlmock.NewRows(platformCols))

	p, err := repo.GetByID(context.Background(), "proj-1", "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}

func TestPlatformListByProject_DBError(t *testing.T) {
	repo, mock := newPlatformRepo(t)
	mock.ExpectQuery("SELECT.*FROM project_platforms WHERE project_id").WillReturnError(errDB)

	if _, err := repo.ListByProject(context.Background(), "proj-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestPlatformUpdate_Success(t *testing.T) {
	repo, mock := newPlatformRepo(t)
	mock.ExpectExec("UPDATE project_platforms").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), &models.ProjectPlatform{ID: "plat-1", ProjectID: "proj-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPlatformDelete_Success(t *testing.T) {
	repo, mock := newPlatformRepo(t)
	mock.ExpectExec("DELETE FROM project_platforms").
		WithArgs("plat-1", "proj-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Delete(context.Background(), "proj-1", "plat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("Delete() = false, want true")
	}
}
