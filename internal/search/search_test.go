package search

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/api/internal/idea"
	"ideaforge/api/internal/lifecycle"
)

type fakeIndex struct {
	mu       sync.Mutex
	healthy  bool
	searchFn func(q Query) ([]Result, int, error)
	indexed  chan IdeaRecord
	deleted  chan string
	bulk     []IdeaRecord
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{healthy: true, indexed: make(chan IdeaRecord, 4), deleted: make(chan string, 4)}
}

func (f *fakeIndex) Search(q Query) ([]Result, int, error) { return f.searchFn(q) }
func (f *fakeIndex) Healthy() bool                         { return f.healthy }
func (f *fakeIndex) IndexIdea(r IdeaRecord) error          { f.indexed <- r; return nil }
func (f *fakeIndex) DeleteIdea(id string) error            { f.deleted <- id; return nil }
func (f *fakeIndex) IndexIdeas(r []IdeaRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulk = append(f.bulk, r...)
	return nil
}

func TestPgFTSSearchScopesToOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM ideas i WHERE")).
		WithArgs("fashion", "owner-1", "blog").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ts_headline")).
		WithArgs("fashion", "owner-1", "blog").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "snippet", "category"}).
			AddRow("i-1", "Sustainable Fashion", "<b>fashion</b> trends", "blog"))

	results, total, err := NewPgFTS(db).Search(Query{Text: "fashion", OwnerID: "owner-1", Category: idea.CategoryBlog})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, "i-1", results[0].ID)
	assert.Equal(t, idea.CategoryBlog, results[0].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgFTSSearchWithoutOwnerOrText(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewPgFTS(db)
	results, total, err := p.Search(Query{Text: "x"})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, total)

	_, _, err = p.Search(Query{Text: "   ", OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadAllRecordsDecodesKeywords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner_id, title, body, category, keywords, created_at")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "title", "body", "category", "keywords", "created_at"}).
			AddRow("i-1", "owner-1", "T", "B", "video", []byte(`["a","b"]`), created).
			AddRow("i-2", "owner-2", "T2", "B2", "social", nil, created))

	records, err := NewPgFTS(db).LoadAllRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"a", "b"}, records[0].Keywords)
	assert.Equal(t, []string{}, records[1].Keywords)
	assert.Equal(t, created.Unix(), records[0].CreatedAt)
}

func TestServicePrefersHealthyPrimary(t *testing.T) {
	primary := newFakeIndex()
	primary.searchFn = func(q Query) ([]Result, int, error) {
		assert.Equal(t, "owner-1", q.OwnerID)
		return []Result{{ID: "i-1"}}, 1, nil
	}
	svc := NewService(nil, nil, nil)
	svc.primary = primary

	resp := svc.Search(Query{Text: "x", OwnerID: "owner-1"})
	assert.Equal(t, "meilisearch", resp.Backend)
	assert.Equal(t, 1, resp.Total)
}

func TestServiceFallsBackOnPrimaryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("ts_headline")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "snippet", "category"}))

	primary := newFakeIndex()
	primary.searchFn = func(Query) ([]Result, int, error) { return nil, 0, errors.New("boom") }
	svc := NewService(nil, NewPgFTS(db), nil)
	svc.primary = primary

	resp := svc.Search(Query{Text: "x", OwnerID: "owner-1"})
	assert.Equal(t, "pgfts", resp.Backend)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestServiceWithoutBackends(t *testing.T) {
	resp := NewService(nil, nil, nil).Search(Query{Text: "x", OwnerID: "o"})
	assert.Equal(t, "none", resp.Backend)
	assert.NotNil(t, resp.Results)
}

func TestServiceObserveIndexesAndDeletes(t *testing.T) {
	primary := newFakeIndex()
	svc := NewService(nil, nil, nil)
	svc.primary = primary

	saved := idea.Idea{ID: "i-1", Owner: "owner-1", Title: "T", Body: "B", Category: idea.CategoryBlog, Saved: true}
	require.NoError(t, svc.Observe(context.Background(), lifecycle.Event{Kind: lifecycle.EventSaved, Idea: saved}))
	select {
	case rec := <-primary.indexed:
		assert.Equal(t, "i-1", rec.ID)
		assert.Equal(t, "owner-1", rec.OwnerID)
	case <-time.After(time.Second):
		t.Fatal("idea was not indexed")
	}

	require.NoError(t, svc.Observe(context.Background(), lifecycle.Event{Kind: lifecycle.EventDeleted, Idea: saved}))
	select {
	case id := <-primary.deleted:
		assert.Equal(t, "i-1", id)
	case <-time.After(time.Second):
		t.Fatal("idea was not removed")
	}

	require.NoError(t, svc.Observe(context.Background(), lifecycle.Event{Kind: lifecycle.EventGenerated}))
}

func TestNormalizeQuery(t *testing.T) {
	q := normalizeQuery(Query{Limit: 500, Offset: -3})
	assert.Equal(t, defaultLimit, q.Limit)
	assert.Zero(t, q.Offset)
}
