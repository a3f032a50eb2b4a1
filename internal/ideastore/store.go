// Package ideastore is the ownership-scoped contract over durable ideas. It
// assigns ids and timestamps, enforces the field rules and the owner-or-admin
// predicate, and translates repository failures into the idea error taxonomy.
package ideastore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ideaforge/api/internal/idea"
	"ideaforge/api/internal/store"
)

type repository interface {
	InsertIdea(ctx context.Context, item store.IdeaRow) (store.IdeaRow, error)
	GetIdea(ctx context.Context, id string) (store.IdeaRow, error)
	UpdateIdeaContent(ctx context.Context, item store.IdeaRow) (store.IdeaRow, error)
	DeleteIdea(ctx context.Context, id string) error
	ListIdeasByOwner(ctx context.Context, ownerID string, filter store.IdeaFilter) ([]store.IdeaRow, error)
	CountIdeasByCategory(ctx context.Context, ownerID string) (map[string]int, error)
}

// Filter narrows ListByOwner. Zero values mean everything.
type Filter struct {
	Category idea.Category
	Limit    int
	Offset   int
}

type Store struct {
	repo  repository
	now   func() time.Time
	newID func() (string, error)
}

func New(repo repository) *Store {
	return &Store{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
	}
}

// Create persists draft for owner. The result is always saved and owned.
func (s *Store) Create(ctx context.Context, draft idea.Draft, owner string) (idea.Idea, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return idea.Idea{}, idea.Unauthenticated("an owner is required to save an idea")
	}
	draft = idea.Draft{
		Title:    strings.TrimSpace(draft.Title),
		Body:     strings.TrimSpace(draft.Body),
		Category: draft.Category,
		Keywords: idea.NormalizeKeywords(draft.Keywords),
	}
	if err := idea.ValidateDraft(draft); err != nil {
		return idea.Idea{}, err
	}

	id, err := s.newID()
	if err != nil {
		return idea.Idea{}, fmt.Errorf("allocate idea id: %w", err)
	}
	row, err := s.repo.InsertIdea(ctx, store.IdeaRow{
		ID:        id,
		OwnerID:   owner,
		Title:     draft.Title,
		Body:      draft.Body,
		Category:  string(draft.Category),
		Keywords:  draft.Keywords,
		CreatedAt: s.now(),
	})
	if err != nil {
		return idea.Idea{}, translate("create idea", err)
	}
	return fromRow(row), nil
}

func (s *Store) Get(ctx context.Context, id string) (idea.Idea, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return idea.Idea{}, idea.NotFound("idea not found")
	}
	if _, err := uuid.Parse(id); err != nil {
		return idea.Idea{}, idea.NotFound("idea not found")
	}
	row, err := s.repo.GetIdea(ctx, id)
	if err != nil {
		return idea.Idea{}, translate("get idea", err)
	}
	return fromRow(row), nil
}

// GetAs returns the idea only to its owner or an admin.
func (s *Store) GetAs(ctx context.Context, id string, requester idea.Principal) (idea.Idea, error) {
	if !requester.Authenticated() {
		return idea.Idea{}, idea.Unauthenticated("sign in to view saved ideas")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return idea.Idea{}, err
	}
	if !idea.CanMutate(requester, current) {
		return idea.Idea{}, idea.Forbidden("not authorized to access this idea")
	}
	return current, nil
}

func (s *Store) ListByOwner(ctx context.Context, owner string, filter Filter) ([]idea.Idea, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, idea.Unauthenticated("sign in to list saved ideas")
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, idea.InvalidRequest("category", "content type must be blog, video, or social")
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, idea.InvalidRequest("limit", "limit and offset must not be negative")
	}
	rows, err := s.repo.ListIdeasByOwner(ctx, owner, store.IdeaFilter{
		Category: string(filter.Category),
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
	if err != nil {
		return nil, translate("list ideas", err)
	}
	items := make([]idea.Idea, 0, len(rows))
	for _, row := range rows {
		items = append(items, fromRow(row))
	}
	return items, nil
}

// CountByCategory always reports every category, zero included.
func (s *Store) CountByCategory(ctx context.Context, owner string) (map[idea.Category]int, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, idea.Unauthenticated("sign in to view idea stats")
	}
	raw, err := s.repo.CountIdeasByCategory(ctx, owner)
	if err != nil {
		return nil, translate("count ideas", err)
	}
	counts := make(map[idea.Category]int, len(idea.Categories))
	for _, category := range idea.Categories {
		counts[category] = raw[string(category)]
	}
	return counts, nil
}

func (s *Store) Update(ctx context.Context, id string, patch idea.Patch, requester idea.Principal) (idea.Idea, error) {
	current, err := s.GetAs(ctx, id, requester)
	if err != nil {
		return idea.Idea{}, err
	}
	next, err := patch.Apply(current)
	if err != nil {
		return idea.Idea{}, err
	}
	row, err := s.repo.UpdateIdeaContent(ctx, toRow(next))
	if err != nil {
		return idea.Idea{}, translate("update idea", err)
	}
	return fromRow(row), nil
}

// Delete is not idempotent: a second call for the same id is NotFound.
func (s *Store) Delete(ctx context.Context, id string, requester idea.Principal) error {
	if _, err := s.GetAs(ctx, id, requester); err != nil {
		return err
	}
	if err := s.repo.DeleteIdea(ctx, id); err != nil {
		return translate("delete idea", err)
	}
	return nil
}

func translate(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return idea.NotFound("idea not found")
	case store.IsUnavailable(err):
		return idea.StoreUnavailable(fmt.Errorf("%s: %w", op, err))
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func fromRow(row store.IdeaRow) idea.Idea {
	keywords := row.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return idea.Idea{
		ID:        row.ID,
		Title:     row.Title,
		Body:      row.Body,
		Category:  idea.Category(row.Category),
		Keywords:  keywords,
		Owner:     row.OwnerID,
		Saved:     true,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

func toRow(item idea.Idea) store.IdeaRow {
	return store.IdeaRow{
		ID:        item.ID,
		OwnerID:   item.Owner,
		Title:     item.Title,
		Body:      item.Body,
		Category:  string(item.Category),
		Keywords:  item.Keywords,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}
