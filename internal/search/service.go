package search

import (
	"context"

	"go.uber.org/zap"

	"ideaforge/api/internal/lifecycle"
)

type indexer interface {
	Searcher
	IndexIdea(record IdeaRecord) error
	DeleteIdea(id string) error
	IndexIdeas(records []IdeaRecord) error
}

type recordLoader interface {
	Searcher
	LoadAllRecords(ctx context.Context) ([]IdeaRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  indexer
	fallback recordLoader
	log      *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, log *zap.Logger) *Service {
	s := &Service{log: log}
	if meili != nil {
		s.primary = meili
	}
	if pgfts != nil {
		s.fallback = pgfts
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.log.Warn("search: meilisearch error, falling back to pgfts", zap.Error(err))
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: "none"}
	}
	results, total, err := s.fallback.Search(q)
	if err != nil {
		s.log.Error("search: pgfts error", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: "pgfts"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "pgfts"}
}

// IndexIdea indexes an idea (fire-and-forget to Meilisearch).
func (s *Service) IndexIdea(record IdeaRecord) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	go func() {
		if err := s.primary.IndexIdea(record); err != nil {
			s.log.Warn("search: index idea", zap.String("idea_id", record.ID), zap.Error(err))
		}
	}()
}

// DeleteIdea removes an idea from the search index (fire-and-forget).
func (s *Service) DeleteIdea(id string) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	go func() {
		if err := s.primary.DeleteIdea(id); err != nil {
			s.log.Warn("search: delete idea", zap.String("idea_id", id), zap.Error(err))
		}
	}()
}

// Observe keeps the index in step with saved ideas.
func (s *Service) Observe(_ context.Context, event lifecycle.Event) error {
	switch event.Kind {
	case lifecycle.EventSaved, lifecycle.EventUpdated:
		s.IndexIdea(RecordOf(event.Idea))
	case lifecycle.EventDeleted:
		s.DeleteIdea(event.Idea.ID)
	}
	return nil
}

// ReindexAllFromPG pushes every saved idea from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.primary == nil || !s.primary.Healthy() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		s.log.Error("search: reindex load failed", zap.Error(err))
		return
	}
	if err := s.primary.IndexIdeas(records); err != nil {
		s.log.Error("search: reindex ideas", zap.Error(err))
		return
	}
	s.log.Info("search: reindexed ideas", zap.Int("count", len(records)))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
