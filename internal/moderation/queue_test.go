package moderation

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"GuestReportBot/internal/models/domain"
	"GuestReportBot/internal/repositories"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newPostgresQueue(t *testing.T, limit int) (*PostgresQueue, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &repositories.Repository{DB: sqlx.NewDb(db, "postgres")}
	return NewPostgresQueue(repo, limit), mock
}

func pendingRow(id string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "submitter_id", "submitter_name", "country", "city",
		"guest_name", "phone", "description", "photo_ids", "created_at",
	}).AddRow(id, int64(42), "", "Russia", "Moscow", "Ivan Ivanov",
		"79001234567", "Loud party", "{}", time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
}

func TestPostgresQueueFull(t *testing.T) {
	queue, mock := newPostgresQueue(t, 1)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*)`)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	if err := queue.Enqueue(context.Background(), newReport("a")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresFailedBroadcastLogsNoDecision(t *testing.T) {
	queue, mock := newPostgresQueue(t, 0)
	pub := &stubPublisher{broadcastErr: errors.New("channel unavailable")}
	svc := New(testLogger(), queue, pub, nil)
	ctx := context.Background()

	deleteReport := regexp.QuoteMeta(`DELETE FROM pending_reports`)
	mock.ExpectBegin()
	mock.ExpectQuery(deleteReport).WithArgs("a").WillReturnRows(pendingRow("a"))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(deleteReport).WithArgs("a").WillReturnRows(pendingRow("a"))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO report_decisions`)).
		WithArgs("a", int64(42), "reject", int64(9)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(deleteReport).WithArgs("a").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	if _, err := svc.Resolve(ctx, "a", domain.DecisionApprove, 9); err == nil {
		t.Fatal("expected broadcast error")
	}
	if len(pub.notices) != 0 {
		t.Fatalf("submitter must not be told about a failed publish: %+v", pub.notices)
	}
	if _, err := svc.Resolve(ctx, "a", domain.DecisionReject, 9); err != nil {
		t.Fatalf("reject after failed approve: %v", err)
	}
	if _, err := svc.Resolve(ctx, "a", domain.DecisionApprove, 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
