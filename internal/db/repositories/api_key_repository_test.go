package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var apiKeyCols = []string{
	"id", "project_id", "created_by", "name", "key_hash", "key_prefix", "key_suffix",
	"scopes", "expires_at", "revoked_at", "last_used_at", "created_at",
}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

var sampleScopes = []byte(`["messages:read","messages:write"]`)

func sampleAPIKeyRow() *sqlmock.Rows {
	return sqlmock.NewRows(apiKeyCols).
		AddRow("key-1", "proj-1", "user-1", "CI Key", "hashedkey", "mc_abc1234", "wxyz",
			sampleScopes, nil, nil, nil, time.Now())
}

func emptyAPIKeyRow() *sqlmock.Rows {
	return sqlmock.NewRows(apiKeyCols)
}

func newAPIKeyRepo(t *testing.T) (*APIKeyRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAPIKeyRepository(db), mock
}

// ---------------------------------------------------------------------------
// CreateAPIKey
// ---------------------------------------------------------------------------

func TestCreateAPIKey_Success(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnResult(sqlmock.NewResult(1, 1))

	key := &models.APIKey{
		ProjectID: "proj-1",
		Name:      "Test Key",
		KeyHash:   "hash",
		KeyPrefix: "mc_test123",
		KeySuffix: "abcd",
		Scopes:    []string{"messages:read"},
	}
	if err := repo.CreateAPIKey(context.Background(), key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.ID == "" {
		t.Error("expected ID to be assigned")
	}
}

func TestCreateAPIKey_DBError(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnError(errDB)

	key := &models.APIKey{Scopes: []string{"messages:read"}}
	if err := repo.CreateAPIKey(context.Background(), key); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// GetAPIKeyByHash / GetAPIKeyByID
// ---------------------------------------------------------------------------

func TestGetAPIKeyByHash_Found(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys WHERE key_hash").
		WithArgs("hashedkey").
		WillReturnRows(sampleAPIKeyRow())

	key, err := repo.GetAPIKeyByHash(context.Background(), "hashedkey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key == nil {
		t.Fatal("expected key, got nil")
	}
	if key.ProjectID != "proj-1" {
		t.Errorf("ProjectID = %s, want proj-1", key.ProjectID)
	}
	if len(key.Scopes) != 2 || key.Scopes[0] != "messages:read" {
		t.Errorf("Scopes = %v", key.Scopes)
	}
}

func TestGetAPIKeyByHash_NotFound(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys WHERE key_hash").
		WillReturnRows(emptyAPIKeyRow())

	key, err := repo.GetAPIKeyByHash(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != nil {
		t.Errorf("expected nil, got %+v", key)
	}
}

func TestGetAPIKeyByHash_DBError(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys WHERE key_hash").
		WillReturnError(errDB)

	if _, err := repo.GetAPIKeyByHash(context.Background(), "x"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestGetAPIKeyByHash_BadScopesJSON(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys WHERE key_hash").
		WillReturnRows(sqlmock.NewRows(apiKeyCols).
			AddRow("key-1", "proj-1", nil, "K", "h", "p", "s", []byte(`not-json`), nil, nil, nil, time.Now()))

	if _, err := repo.GetAPIKeyByHash(context.Background(), "h"); err == nil {
		t.Error("expected decode error, got nil")
	}
}

func TestGetAPIKeyByID_Found(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys WHERE id").
		WithArgs("key-1").
		WillReturnRows(sampleAPIKeyRow())

	key, err := repo.GetAPIKeyByID(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key == nil || key.ID != "key-1" {
		t.Errorf("key = %+v, want key-1", key)
	}
}

// ---------------------------------------------------------------------------
// ListByProject
// ---------------------------------------------------------------------------

func TestListByProject_Success(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys WHERE project_id").
		WithArgs("proj-1").
		WillReturnRows(sampleAPIKeyRow())

	keys, err := repo.ListByProject(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("len(keys) = %d, want 1", len(keys))
	}
}

func TestListByProject_Empty(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys WHERE project_id").
		WillReturnRows(emptyAPIKeyRow())

	keys, err := repo.ListByProject(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if keys == nil || len(keys) != 0 {
		t.Errorf("keys = %v, want empty non-nil slice", keys)
	}
}

// ---------------------------------------------------------------------------
// UpdateLastUsed / RevokeAPIKey
// ---------------------------------------------------------------------------

func TestUpdateLastUsed_Success(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("UPDATE api_keys SET last_used_at").
		WithArgs(sqlmock.AnyArg(), "key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateLastUsed(context.Background(), "key-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRevokeAPIKey_Revoked(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	at := time.Now()
	mock.ExpectExec("UPDATE api_keys SET revoked_at").
		WithArgs(at, "key-1", "proj-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.RevokeAPIKey(context.Background(), "proj-1", "key-1", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("RevokeAPIKey() = false, want true")
	}
}

func TestRevokeAPIKey_NotFound(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("UPDATE api_keys SET revoked_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.RevokeAPIKey(context.Background(), "proj-1", "key-x", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("RevokeAPIKey() = true, want false")
	}
}

// ---------------------------------------------------------------------------
// RollAPIKey
// ---------------------------------------------------------------------------

func TestRollAPIKey_CommitsBothWrites(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	revokeAt := time.Now().Add(24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE api_keys SET revoked_at = \$1 WHERE id = \$2 AND project_id = \$3 AND revoked_at IS NULL`).
		WithArgs(revokeAt, "key-old", "proj-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	newKey := &models.APIKey{ProjectID: "proj-1", Name: "CI Key", KeyHash: "h2", Scopes: []string{"messages:read"}}
	if err := repo.RollAPIKey(context.Background(), "key-old", newKey, revokeAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newKey.ID == "" {
		t.Error("expected new key ID to be assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRollAPIKey_InsertFailsRollsBack(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO api_keys").WillReturnError(errDB)
	mock.ExpectRollback()

	err := repo.RollAPIKey(context.Background(), "key-old", &models.APIKey{ProjectID: "proj-1"}, time.Now())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRollAPIKey_RevokeFailsRollsBack(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO api_keys").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE api_keys SET revoked_at").WillReturnError(errDB)
	mock.ExpectRollback()

	err := repo.RollAPIKey(context.Background(), "key-old", &models.APIKey{ProjectID: "proj-1"}, time.Now())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// A key that is missing or already scheduled for revocation matches no row, so its
// existing deadline is never pushed back.
func TestRollAPIKey_OldKeyMissingOrRevokedRollsBack(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO api_keys").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE api_keys SET revoked_at").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.RollAPIKey(context.Background(), "key-gone", &models.APIKey{ProjectID: "proj-1"}, time.Now())
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRollAPIKey_BeginError(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectBegin().WillReturnError(errDB)

	if err := repo.RollAPIKey(context.Background(), "k", &models.APIKey{}, time.Now()); err == nil {
		t.Error("expected error from Begin")
	}
}
