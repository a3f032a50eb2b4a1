package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

var ideaRowColumns = []string{"id", "owner_id", "title", "body", "category", "keywords", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestInsertIdeaEncodesKeywords(t *testing.T) {
	s, mock := newMockStore(t)
	createdAt := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ideas")).
		WithArgs("idea-1", "user-1", "Title", "Body", "blog", `["a","b"]`, createdAt).
		WillReturnRows(sqlmock.NewRows(ideaRowColumns).
			AddRow("idea-1", "user-1", "Title", "Body", "blog", []byte(`["a","b"]`), createdAt, createdAt))

	stored, err := s.InsertIdea(context.Background(), IdeaRow{
		ID:        "idea-1",
		OwnerID:   "user-1",
		Title:     "Title",
		Body:      "Body",
		Category:  "blog",
		Keywords:  []string{"a", "b"},
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("insert idea: %v", err)
	}
	if len(stored.Keywords) != 2 || stored.Keywords[1] != "b" {
		t.Fatalf("unexpected keywords: %#v", stored.Keywords)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertIdeaNilKeywordsStoredAsEmptyArray(t *testing.T) {
	s, mock := newMockStore(t)
	createdAt := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ideas")).
		WithArgs("idea-1", "user-1", "T", "B", "video", `[]`, createdAt).
		WillReturnRows(sqlmock.NewRows(ideaRowColumns).
			AddRow("idea-1", "user-1", "T", "B", "video", []byte(`[]`), createdAt, createdAt))

	stored, err := s.InsertIdea(context.Background(), IdeaRow{ID: "idea-1", OwnerID: "user-1", Title: "T", Body: "B", Category: "video", CreatedAt: createdAt})
	if err != nil {
		t.Fatalf("insert idea: %v", err)
	}
	if stored.Keywords == nil || len(stored.Keywords) != 0 {
		t.Fatalf("expected empty non-nil keywords, got %#v", stored.Keywords)
	}
}

func TestGetIdeaNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ideas WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(ideaRowColumns))

	_, err := s.GetIdea(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateIdeaContentNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE ideas")).
		WithArgs("missing", "T", "B", `[]`).
		WillReturnRows(sqlmock.NewRows(ideaRowColumns))

	_, err := s.UpdateIdeaContent(context.Background(), IdeaRow{ID: "missing", Title: "T", Body: "B"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIdeaReportsMissingRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ideas WHERE id=$1")).
		WithArgs("idea-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ideas WHERE id=$1")).
		WithArgs("idea-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.DeleteIdea(context.Background(), "idea-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.DeleteIdea(context.Background(), "idea-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

func TestListIdeasByOwnerBuildsFilteredQuery(t *testing.T) {
	s, mock := newMockStore(t)
	newer := time.Unix(1_700_000_100, 0).UTC()
	older := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE owner_id = $1 AND category = $2 ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4")).
		WithArgs("user-1", "social", 10, 20).
		WillReturnRows(sqlmock.NewRows(ideaRowColumns).
			AddRow("b", "user-1", "Newer", "Body", "social", []byte(`["x"]`), newer, newer).
			AddRow("a", "user-1", "Older", "Body", "social", []byte(`[]`), older, older))

	items, err := s.ListIdeasByOwner(context.Background(), "user-1", IdeaFilter{Category: "social", Limit: 10, Offset: 20})
	if err != nil {
		t.Fatalf("list ideas: %v", err)
	}
	if len(items) != 2 || items[0].ID != "b" || items[1].ID != "a" {
		t.Fatalf("unexpected order: %#v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListIdeasByOwnerWithoutFilter(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`WHERE owner_id = \$1 ORDER BY created_at DESC, id DESC$`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(ideaRowColumns))

	items, err := s.ListIdeasByOwner(context.Background(), "user-1", IdeaFilter{})
	if err != nil {
		t.Fatalf("list ideas: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", items)
	}
}

func TestCountIdeasByCategory(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY category")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"category", "count"}).
			AddRow("blog", 2).
			AddRow("video", 1))

	counts, err := s.CountIdeasByCategory(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("count ideas: %v", err)
	}
	if counts["blog"] != 2 || counts["video"] != 1 || counts["social"] != 0 {
		t.Fatalf("unexpected counts: %#v", counts)
	}
}

func TestIsUnavailable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not found", err: ErrNotFound, want: false},
		{name: "connection exception", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "too many connections", err: &pgconn.PgError{Code: "53300"}, want: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, want: true},
		{name: "syntax error", err: &pgconn.PgError{Code: "42601"}, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUnavailable(tc.err); got != tc.want {
				t.Fatalf("IsUnavailable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestCreateUserConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.CreateUser(context.Background(), User{ID: "u1", Email: "a@b.c", DisplayName: "A", PasswordHash: "h", Role: "user"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
