// Package reconcile keeps a session's freshly generated ideas and its saved
// ideas consistent, so one idea is never shown as both unsaved and saved.
package reconcile

import (
	"context"

	"ideaforge/api/internal/idea"
)

// View is the per-session pair of collections. The zero value is ready to use.
type View struct {
	Generated []idea.Idea `json:"generated"`
	Saved     []idea.Idea `json:"saved"`
}

// ReplaceGenerated swaps in a new batch wholesale.
func (v *View) ReplaceGenerated(batch []idea.Idea) {
	v.Generated = append(make([]idea.Idea, 0, len(batch)), batch...)
}

// ApplySaved records a confirmed promotion: the generated entry stays in
// place with its flag flipped, and durable joins Saved unless already present.
// Call it only after the store has confirmed the write.
func (v *View) ApplySaved(ephemeralID string, durable idea.Idea) {
	for i := range v.Generated {
		if v.Generated[i].ID == ephemeralID {
			v.Generated[i].Saved = true
		}
	}
	if v.indexSaved(durable.ID) >= 0 {
		return
	}
	v.Saved = append(v.Saved, durable)
}

// LoadSaved replaces Saved with a fresh listing from the store.
func (v *View) LoadSaved(list []idea.Idea) {
	v.Saved = append(make([]idea.Idea, 0, len(list)), list...)
}

// ApplyUpdated swaps the saved entry with the same id, if any.
func (v *View) ApplyUpdated(updated idea.Idea) {
	if i := v.indexSaved(updated.ID); i >= 0 {
		v.Saved[i] = updated
	}
}

// ApplyDeleted drops the saved entry with id. Generated entries keep their
// flag; the ephemeral draft itself was never deleted.
func (v *View) ApplyDeleted(id string) {
	i := v.indexSaved(id)
	if i < 0 {
		return
	}
	v.Saved = append(v.Saved[:i:i], v.Saved[i+1:]...)
}

func (v *View) SavedByCategory(category idea.Category) []idea.Idea {
	out := make([]idea.Idea, 0)
	for _, item := range v.Saved {
		if item.Category == category {
			out = append(out, item)
		}
	}
	return out
}

// FindGenerated returns the generated entry with the ephemeral id.
func (v *View) FindGenerated(ephemeralID string) (idea.Idea, bool) {
	for _, item := range v.Generated {
		if item.ID == ephemeralID {
			return item, true
		}
	}
	return idea.Idea{}, false
}

func (v *View) indexSaved(id string) int {
	for i, item := range v.Saved {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Promoter persists a candidate on behalf of owner.
type Promoter interface {
	Promote(ctx context.Context, candidate idea.Idea, owner idea.Principal) (idea.Idea, error)
}

// SaveGenerated promotes the generated entry with ephemeralID and applies the
// result. On any failure the view is left untouched.
func (v *View) SaveGenerated(ctx context.Context, ephemeralID string, owner idea.Principal, promoter Promoter) (idea.Idea, error) {
	candidate, ok := v.FindGenerated(ephemeralID)
	if !ok {
		return idea.Idea{}, idea.NotFound("generated idea not found in this workspace")
	}
	durable, err := promoter.Promote(ctx, candidate, owner)
	if err != nil {
		return idea.Idea{}, err
	}
	v.ApplySaved(ephemeralID, durable)
	return durable, nil
}
