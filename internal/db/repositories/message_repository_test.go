package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
)

var receivedCols = []string{
	"id", "project_id", "platform_id", "platform", "provider_message_id", "provider_chat_id",
	"provider_user_id", "user_display", "message_text", "message_type", "raw_data", "received_at",
}

var sentCols = []string{
	"id", "project_id", "platform_id", "platform", "job_id", "action", "target_chat_id", "target_user_id",
	"target_type", "message_text", "payload", "status", "error_message", "created_at", "sent_at",
}

func newMessageRepo(t *testing.T) (*MessageRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMessageRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func sampleReceivedRow() *sqlmock.Rows {
	return sqlmock.NewRows(receivedCols).
		AddRow("msg-1", "proj-1", "plat-1", "discord", "discord-msg-1", "chan-1", "user-789",
			"Alice", "hello", "text", []byte(`{"id":"discord-msg-1"}`), time.Now())
}

// ---------------------------------------------------------------------------
// ListReceived
// ---------------------------------------------------------------------------

func TestListReceived_NoFilters(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM received_messages WHERE project_id").
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id.*FROM received_messages WHERE project_id = \\$1 ORDER BY received_at DESC LIMIT \\$2 OFFSET \\$3").
		WithArgs("proj-1", 50, 0).
		WillReturnRows(sampleReceivedRow())

	msgs, total, err := repo.ListReceived(context.Background(), ReceivedFilter{ProjectID: "proj-1", Limit: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(msgs) != 1 {
		t.Fatalf("total=%d len=%d, want 1/1", total, len(msgs))
	}
	if msgs[0].ProviderMessageID != "discord-msg-1" {
		t.Errorf("ProviderMessageID = %q", msgs[0].ProviderMessageID)
	}
}

func TestListReceived_WithFilters(t *testing.T) {
	repo, mock := newMessageRepo(t)
	platformID := "plat-1"
	chatID := "chan-1"
	since := time.Now().Add(-time.Hour)

	mock.ExpectQuery("SELECT COUNT.*platform_id = \\$2 AND provider_chat_id = \\$3 AND received_at >= \\$4").
		WithArgs("proj-1", platformID, chatID, since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("ORDER BY received_at ASC LIMIT \\$5 OFFSET \\$6").
		WithArgs("proj-1", platformID, chatID, since, 10, 20).
		WillReturnRows(sqlmock.NewRows(receivedCols))

	msgs, total, err := repo.ListReceived(context.Background(), ReceivedFilter{
		ProjectID:  "proj-1",
		PlatformID: &platformID,
		ChatID:     &chatID,
		Since:      &since,
		Ascending:  true,
		Limit:      10,
		Offset:     20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(msgs) != 0 {
		t.Errorf("total=%d len=%d, want 0/0", total, len(msgs))
	}
}

func TestListReceived_CountError(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errDB)

	if _, _, err := repo.ListReceived(context.Background(), ReceivedFilter{ProjectID: "p"}); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// GetReceived / Stats / DeleteReceivedOlderThan
// ---------------------------------------------------------------------------

func TestGetReceived_NotFound(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectQuery("SELECT.*FROM received_messages WHERE id").
		WithArgs("missing", "proj-1").
		WillReturnRows(sqlmock.NewRows(receivedCols))

	m, err := repo.GetReceived(context.Background(), "proj-1", "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil, got %+v", m)
	}
}

func TestStats_Success(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS total_messages").
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows([]string{"total_messages", "unique_users", "unique_chats"}).AddRow(10, 3, 2))
	mock.ExpectQuery("SELECT platform, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"platform", "count"}).AddRow("discord", 7).AddRow("telegram", 3))
	mock.ExpectQuery("FROM sent_messages").
		WillReturnRows(sqlmock.NewRows([]string{"total", "failed"}).AddRow(5, 1))

	stats, err := repo.Stats(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalMessages != 10 || stats.UniqueUsers != 3 || stats.UniqueChats != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if len(stats.ByPlatform) != 2 || stats.ByPlatform[0].Count != 7 {
		t.Errorf("ByPlatform = %+v", stats.ByPlatform)
	}
	if stats.SentTotal != 5 || stats.SentFailed != 1 {
		t.Errorf("sent = %d/%d, want 5/1", stats.SentTotal, stats.SentFailed)
	}
}

func TestDeleteReceivedOlderThan_Project(t *testing.T) {
	repo, mock := newMessageRepo(t)
	cutoff := time.Now()
	mock.ExpectExec("DELETE FROM received_messages WHERE project_id").
		WithArgs("proj-1", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteReceivedOlderThan(context.Background(), "proj-1", cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted = %d, want 4", n)
	}
}

func TestDeleteReceivedOlderThan_AllProjects(t *testing.T) {
	repo, mock := newMessageRepo(t)
	cutoff := time.Now()
	mock.ExpectExec("DELETE FROM received_messages WHERE received_at").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 9))

	n, err := repo.DeleteReceivedOlderThan(context.Background(), "", cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 9 {
		t.Errorf("deleted = %d, want 9", n)
	}
}

// ---------------------------------------------------------------------------
// Sent messages
// ---------------------------------------------------------------------------

func TestCreateSent_DefaultsPending(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sent_messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	m := &models.SentMessage{ProjectID: "proj-1", PlatformID: "plat-1", JobID: "job-1", Action: "send", TargetChatID: "c"}
	if err := repo.CreateSent(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Status != models.SentStatusPending {
		t.Errorf("Status = %q, want pending", m.Status)
	}
	if string(m.Payload) != "{}" {
		t.Errorf("Payload = %s, want {}", m.Payload)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateSent_JobRowsShareTransaction(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sent_messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO sent_messages").WillReturnError(errDB)
	mock.ExpectRollback()

	rows := []*models.SentMessage{
		{ProjectID: "proj-1", PlatformID: "plat-1", JobID: "job-1", Action: "send", TargetChatID: "a"},
		{ProjectID: "proj-1", PlatformID: "plat-2", JobID: "job-1", Action: "send", TargetChatID: "b"},
	}
	if err := repo.CreateSent(context.Background(), rows...); !errors.Is(err, errDB) {
		t.Fatalf("error = %v, want errDB", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSetSentStatus_ScopedToRows(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectExec("UPDATE sent_messages SET status = \\$2, error_message = \\$3 WHERE id = ANY\\(\\$1\\)").
		WithArgs(sqlmock.AnyArg(), "queued", nil).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.SetSentStatus(context.Background(), []string{"s1", "s2"}, "queued", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSetSentStatus_NoRowsSkipsQuery(t *testing.T) {
	repo, mock := newMessageRepo(t)
	if err := repo.SetSentStatus(context.Background(), nil, "failed", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected queries: %v", err)
	}
}

func TestListSent_WithStatus(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectQuery("SELECT.*FROM sent_messages WHERE project_id = \\$1 AND status = \\$2").
		WithArgs("proj-1", "failed", 20, 0).
		WillReturnRows(sqlmock.NewRows(sentCols).
			AddRow("s1", "proj-1", "plat-1", "discord", "job-1", "send", "chan", nil, "channel", "hi",
				[]byte(`{}`), "failed", "boom", time.Now(), nil))

	status := "failed"
	list, err := repo.ListSent(context.Background(), "proj-1", &status, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].ErrorMessage == nil || *list[0].ErrorMessage != "boom" {
		t.Errorf("list = %+v", list)
	}
}

func TestGetSentByJobID_Empty(t *testing.T) {
	repo, mock := newMessageRepo(t)
	mock.ExpectQuery("SELECT.*FROM sent_messages WHERE project_id = \\$1 AND job_id = \\$2").
		WithArgs("proj-1", "job-x").
		WillReturnRows(sqlmock.NewRows(sentCols))

	list, err := repo.GetSentByJobID(context.Background(), "proj-1", "job-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("len = %d, want 0", len(list))
	}
}
