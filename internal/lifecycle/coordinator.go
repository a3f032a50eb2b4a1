// Package lifecycle bridges the synthesizer and the idea store: it stamps
// generated drafts with ephemeral identity and promotes chosen ones into
// durable, owned records.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ideaforge/api/internal/idea"
	"ideaforge/api/internal/ideastore"
	"ideaforge/api/internal/synth"
)

const (
	DefaultCount    = 3
	DefaultMaxCount = 10
)

type ideaStore interface {
	Create(ctx context.Context, draft idea.Draft, owner string) (idea.Idea, error)
	GetAs(ctx context.Context, id string, requester idea.Principal) (idea.Idea, error)
	ListByOwner(ctx context.Context, owner string, filter ideastore.Filter) ([]idea.Idea, error)
	CountByCategory(ctx context.Context, owner string) (map[idea.Category]int, error)
	Update(ctx context.Context, id string, patch idea.Patch, requester idea.Principal) (idea.Idea, error)
	Delete(ctx context.Context, id string, requester idea.Principal) error
}

type EventKind string

const (
	EventGenerated EventKind = "generated"
	EventSaved     EventKind = "saved"
	EventUpdated   EventKind = "updated"
	EventDeleted   EventKind = "deleted"
)

// Event describes a completed lifecycle step. Batch is set for generated
// events, Idea for the rest; deletes carry only the id inside Idea.
type Event struct {
	Kind  EventKind
	Idea  idea.Idea
	Batch *Batch
	Actor idea.Principal
}

// Observer reacts to lifecycle events after they succeed. Returned errors are
// logged and never undo or fail the operation.
type Observer interface {
	Observe(ctx context.Context, event Event) error
}

// Batch is one generation result. It belongs to the caller; the coordinator
// keeps no reference to it.
type Batch struct {
	Prompt      string        `json:"prompt"`
	Category    idea.Category `json:"category"`
	Ideas       []idea.Idea   `json:"ideas"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

// Find returns the batch entry with the given ephemeral id.
func (b Batch) Find(ephemeralID string) (idea.Idea, bool) {
	for _, item := range b.Ideas {
		if item.ID == ephemeralID {
			return item, true
		}
	}
	return idea.Idea{}, false
}

type Options struct {
	MaxCount int
}

type Coordinator struct {
	synth     synth.Synthesizer
	store     ideaStore
	ids       *IDAllocator
	now       func() time.Time
	maxCount  int
	observers []Observer
	log       *zap.Logger
}

func NewCoordinator(synthesizer synth.Synthesizer, store ideaStore, opts Options, log *zap.Logger, observers ...Observer) *Coordinator {
	maxCount := opts.MaxCount
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		synth:     synthesizer,
		store:     store,
		ids:       &IDAllocator{},
		now:       func() time.Time { return time.Now().UTC() },
		maxCount:  maxCount,
		observers: observers,
		log:       log,
	}
}

func (c *Coordinator) MaxCount() int {
	return c.maxCount
}

// Generate is open to anonymous callers and returns either a full batch or an error.
func (c *Coordinator) Generate(ctx context.Context, prompt string, category idea.Category, count int) (Batch, error) {
	if count > c.maxCount {
		return Batch{}, idea.InvalidRequest("count", fmt.Sprintf("count must be between 1 and %d", c.maxCount))
	}
	trimmed, err := synth.Validate(prompt, category, count)
	if err != nil {
		return Batch{}, err
	}

	drafts, err := c.synth.Synthesize(ctx, trimmed, category, count)
	if err != nil {
		if idea.KindOf(err) != "" {
			return Batch{}, err
		}
		return Batch{}, idea.SynthesisUnavailable(fmt.Errorf("synthesize ideas: %w", err))
	}
	if len(drafts) != count {
		return Batch{}, idea.SynthesisUnavailable(fmt.Errorf("synthesizer %s returned %d drafts, want %d", c.synth.Name(), len(drafts), count))
	}

	now := c.now()
	ids := c.ids.Batch(now, count)
	batch := Batch{
		Prompt:      trimmed,
		Category:    category,
		Ideas:       make([]idea.Idea, 0, count),
		GeneratedAt: now,
	}
	for i, draft := range drafts {
		batch.Ideas = append(batch.Ideas, idea.Idea{
			ID:        ids[i],
			Title:     draft.Title,
			Body:      draft.Body,
			Category:  category,
			Keywords:  idea.NormalizeKeywords(draft.Keywords),
			Saved:     false,
			CreatedAt: now,
		})
	}

	c.notify(ctx, Event{Kind: EventGenerated, Batch: &batch})
	return batch, nil
}

// Promote persists candidate for owner. Only the content fields of candidate
// are used. Promoting the same candidate twice yields two records.
func (c *Coordinator) Promote(ctx context.Context, candidate idea.Idea, owner idea.Principal) (idea.Idea, error) {
	if !owner.Authenticated() {
		return idea.Idea{}, idea.Unauthenticated("sign in to save ideas")
	}
	created, err := c.store.Create(ctx, candidate.Draft(), owner.ID)
	if err != nil {
		return idea.Idea{}, err
	}
	c.notify(ctx, Event{Kind: EventSaved, Idea: created, Actor: owner})
	return created, nil
}

func (c *Coordinator) Get(ctx context.Context, id string, requester idea.Principal) (idea.Idea, error) {
	return c.store.GetAs(ctx, id, requester)
}

func (c *Coordinator) List(ctx context.Context, owner idea.Principal, filter ideastore.Filter) ([]idea.Idea, error) {
	if !owner.Authenticated() {
		return nil, idea.Unauthenticated("sign in to list saved ideas")
	}
	return c.store.ListByOwner(ctx, owner.ID, filter)
}

func (c *Coordinator) Stats(ctx context.Context, owner idea.Principal) (map[idea.Category]int, error) {
	if !owner.Authenticated() {
		return nil, idea.Unauthenticated("sign in to view idea stats")
	}
	return c.store.CountByCategory(ctx, owner.ID)
}

func (c *Coordinator) Update(ctx context.Context, id string, patch idea.Patch, requester idea.Principal) (idea.Idea, error) {
	updated, err := c.store.Update(ctx, id, patch, requester)
	if err != nil {
		return idea.Idea{}, err
	}
	c.notify(ctx, Event{Kind: EventUpdated, Idea: updated, Actor: requester})
	return updated, nil
}

func (c *Coordinator) Delete(ctx context.Context, id string, requester idea.Principal) error {
	if err := c.store.Delete(ctx, id, requester); err != nil {
		return err
	}
	c.notify(ctx, Event{Kind: EventDeleted, Idea: idea.Idea{ID: id}, Actor: requester})
	return nil
}

func (c *Coordinator) notify(ctx context.Context, event Event) {
	for _, observer := range c.observers {
		if err := observer.Observe(ctx, event); err != nil {
			c.log.Warn("lifecycle: observer failed",
				zap.String("event", string(event.Kind)),
				zap.String("idea_id", event.Idea.ID),
				zap.Error(err),
			)
		}
	}
}
