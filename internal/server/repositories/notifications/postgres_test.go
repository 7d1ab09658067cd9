package notifications

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/peertutor/tutorchat/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const createQ = `(?s)^INSERT\s+INTO\s+notifications\s*\(user_id,\s*kind,\s*from_id,\s*preview\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+id,\s*created_at\s*$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "created_at"}).AddRow("n-1", now)
	mock.ExpectQuery(createQ).
		WithArgs("b", models.NotificationKindMessage, "a", "hey there").
		WillReturnRows(rows)

	n := &models.Notification{UserID: "b", Kind: models.NotificationKindMessage, FromID: "a", Preview: "hey there"}
	got, err := repo.Create(context.Background(), n)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "n-1" || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected notification: %+v", got)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(createQ).
		WithArgs("b", models.NotificationKindMessage, "a", "hey").
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Notification{UserID: "b", Kind: models.NotificationKindMessage, FromID: "a", Preview: "hey"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestListUnread(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*user_id,\s*kind,\s*from_id,\s*preview,\s*is_read,\s*created_at\s+FROM\s+notifications\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+is_read\s*=\s*false\s+ORDER\s+BY\s+created_at\s*$`

	rows := sqlmock.NewRows([]string{"id", "user_id", "kind", "from_id", "preview", "is_read", "created_at"}).
		AddRow("n-1", "b", models.NotificationKindMessage, "a", "hey", false, time.Now())
	mock.ExpectQuery(q).
		WithArgs("b").
		WillReturnRows(rows)

	got, err := repo.ListUnread(context.Background(), "b")
	if err != nil {
		t.Fatalf("ListUnread error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "n-1" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestMarkAllRead(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+notifications\s+SET\s+is_read\s*=\s*true\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+is_read\s*=\s*false\s*$`

	mock.ExpectExec(q).
		WithArgs("b").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.MarkAllRead(context.Background(), "b")
	if err != nil {
		t.Fatalf("MarkAllRead error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
}
