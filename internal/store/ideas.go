package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const ideaColumns = `id, owner_id, title, body, category, keywords, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdea(row rowScanner) (IdeaRow, error) {
	var (
		item        IdeaRow
		keywordsRaw []byte
	)
	if err := row.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Body, &item.Category, &keywordsRaw, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return IdeaRow{}, err
	}
	item.Keywords = []string{}
	if len(keywordsRaw) > 0 {
		if err := json.Unmarshal(keywordsRaw, &item.Keywords); err != nil {
			return IdeaRow{}, fmt.Errorf("decode keywords: %w", err)
		}
	}
	return item, nil
}

func encodeKeywords(keywords []string) (string, error) {
	if keywords == nil {
		keywords = []string{}
	}
	encoded, err := json.Marshal(keywords)
	if err != nil {
		return "", fmt.Errorf("encode keywords: %w", err)
	}
	return string(encoded), nil
}

// InsertIdea persists a new row and returns it as stored.
func (s *PostgresStore) InsertIdea(ctx context.Context, item IdeaRow) (IdeaRow, error) {
	keywords, err := encodeKeywords(item.Keywords)
	if err != nil {
		return IdeaRow{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO ideas (id, owner_id, title, body, category, keywords, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $7)
		RETURNING `+ideaColumns,
		item.ID, item.OwnerID, item.Title, item.Body, item.Category, keywords, item.CreatedAt)
	stored, err := scanIdea(row)
	if err != nil {
		if isUniqueViolation(err) {
			return IdeaRow{}, fmt.Errorf("insert idea: %w", ErrConflict)
		}
		return IdeaRow{}, fmt.Errorf("insert idea: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) GetIdea(ctx context.Context, id string) (IdeaRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id = $1`, id)
	item, err := scanIdea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return IdeaRow{}, fmt.Errorf("get idea: %w", ErrNotFound)
	}
	if err != nil {
		return IdeaRow{}, fmt.Errorf("get idea: %w", err)
	}
	return item, nil
}

// UpdateIdeaContent rewrites the mutable fields in one statement. Owner,
// category and created_at are never touched.
func (s *PostgresStore) UpdateIdeaContent(ctx context.Context, item IdeaRow) (IdeaRow, error) {
	keywords, err := encodeKeywords(item.Keywords)
	if err != nil {
		return IdeaRow{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE ideas
		SET title=$2, body=$3, keywords=$4::jsonb, updated_at=NOW()
		WHERE id=$1
		RETURNING `+ideaColumns,
		item.ID, item.Title, item.Body, keywords)
	updated, err := scanIdea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return IdeaRow{}, fmt.Errorf("update idea: %w", ErrNotFound)
	}
	if err != nil {
		return IdeaRow{}, fmt.Errorf("update idea: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteIdea(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ideas WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete idea: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete idea rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete idea: %w", ErrNotFound)
	}
	return nil
}

// ListIdeasByOwner returns newest first; id breaks ties so paging is stable.
func (s *PostgresStore) ListIdeasByOwner(ctx context.Context, ownerID string, filter IdeaFilter) ([]IdeaRow, error) {
	var query strings.Builder
	query.WriteString(`SELECT ` + ideaColumns + ` FROM ideas WHERE owner_id = $1`)
	args := []any{ownerID}
	if filter.Category != "" {
		args = append(args, filter.Category)
		fmt.Fprintf(&query, ` AND category = $%d`, len(args))
	}
	query.WriteString(` ORDER BY created_at DESC, id DESC`)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&query, ` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&query, ` OFFSET $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	defer rows.Close()

	items := make([]IdeaRow, 0)
	for rows.Next() {
		item, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ideas: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountIdeasByCategory(ctx context.Context, ownerID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*)
		FROM ideas
		WHERE owner_id = $1
		GROUP BY category
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count ideas: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			category string
			count    int
		)
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan idea count: %w", err)
		}
		counts[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idea counts: %w", err)
	}
	return counts, nil
}
