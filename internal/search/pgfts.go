package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"ideaforge/api/internal/idea"
)

const ideaVector = "to_tsvector('english', i.title || ' ' || i.body)"

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.OwnerID == "" {
		return nil, 0, nil
	}
	q = normalizeQuery(q)

	tsQuery := "plainto_tsquery('english', $1)"
	where := fmt.Sprintf("%s @@ %s AND i.owner_id = $2", ideaVector, tsQuery)
	args := []any{q.Text, q.OwnerID}
	if q.Category != "" {
		args = append(args, string(q.Category))
		where += fmt.Sprintf(" AND i.category = $%d", len(args))
	}

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM ideas i WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT i.id, i.title,
			ts_headline('english', i.body, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			i.category
		FROM ideas i
		WHERE %s
		ORDER BY ts_rank(%s, %s) DESC, i.created_at DESC
		LIMIT %d OFFSET %d`,
		tsQuery, where, ideaVector, tsQuery, q.Limit, q.Offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r        Result
			category string
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &category); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Category = idea.Category(category)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every saved idea for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]IdeaRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, title, body, category, keywords, created_at
		FROM ideas
	`)
	if err != nil {
		return nil, fmt.Errorf("load ideas: %w", err)
	}
	defer rows.Close()

	records := make([]IdeaRecord, 0)
	for rows.Next() {
		var (
			r           IdeaRecord
			keywordsRaw []byte
			createdAt   sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Title, &r.Body, &r.Category, &keywordsRaw, &createdAt); err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		r.Keywords = []string{}
		if len(keywordsRaw) > 0 {
			if err := json.Unmarshal(keywordsRaw, &r.Keywords); err != nil {
				return nil, fmt.Errorf("decode keywords for %s: %w", r.ID, err)
			}
		}
		if createdAt.Valid {
			r.CreatedAt = createdAt.Time.Unix()
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ideas: %w", err)
	}
	return records, nil
}
