// Package search indexes saved ideas and answers owner-scoped full-text
// queries, preferring Meilisearch and falling back to Postgres FTS.
package search

import "ideaforge/api/internal/idea"

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Snippet  string        `json:"snippet"`
	Category idea.Category `json:"category"`
}

// Query describes a search request. OwnerID is mandatory; results never
// cross owners.
type Query struct {
	Text     string
	OwnerID  string
	Category idea.Category
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// IdeaRecord is the data we index for a saved idea.
type IdeaRecord struct {
	ID        string   `json:"id"`
	OwnerID   string   `json:"ownerId"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Category  string   `json:"category"`
	Keywords  []string `json:"keywords"`
	CreatedAt int64    `json:"createdAt"`
}

func RecordOf(item idea.Idea) IdeaRecord {
	return IdeaRecord{
		ID:        item.ID,
		OwnerID:   item.Owner,
		Title:     item.Title,
		Body:      item.Body,
		Category:  string(item.Category),
		Keywords:  idea.NormalizeKeywords(item.Keywords),
		CreatedAt: item.CreatedAt.Unix(),
	}
}

const defaultLimit = 20

func normalizeQuery(q Query) Query {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = defaultLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
