package history

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &Store{db: db, now: func() time.Time { return time.Unix(0, 42) }}, mock
}

func TestRecord_RollsBackOnInsertError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO annotations")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Record(context.Background(), "run-1", sampleAnnotations())
	if err == nil {
		t.Fatal("Record() error = nil, want insert error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRecord_CommitsAllAnnotations(t *testing.T) {
	store, mock := newMockStore(t)
	annotations := sampleAnnotations()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO annotations")
	for _, a := range annotations {
		prep.ExpectExec().
			WithArgs("run-1", a.Filename, a.RuleID, a.RuleName, a.RulesetName,
				a.Severity.String(), int64(a.Severity), string(a.Category), a.Message,
				int64(a.StartOffset), int64(a.EndOffset), int64(a.Start.Line), int64(a.Start.Col), int64(42)).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	if err := store.Record(context.Background(), "run-1", annotations); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPrune_PassesCutoff(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Unix(100, 0)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM annotations WHERE created_at < ?")).
		WithArgs(cutoff.UnixNano()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.Prune(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Prune() = %v, want %v", n, 3)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestGetStats_QueryError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("locked"))

	if _, err := store.GetStats(context.Background()); err == nil {
		t.Error("GetStats() error = nil, want query error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
