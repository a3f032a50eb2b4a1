// Package workspace persists a session's reconciliation view between
// requests, keyed by an opaque workspace id.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ideaforge/api/internal/idea"
	"ideaforge/api/internal/reconcile"
)

const DefaultTTL = 24 * time.Hour

type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: "workspace:", ttl: ttl}
}

// NewID mints a workspace id for a caller that has none yet.
func NewID() string {
	return uuid.NewString()
}

// ValidID rejects ids the caller could use to address arbitrary keys.
func ValidID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Load returns the stored view, or an empty one when nothing is stored.
func (s *RedisStore) Load(ctx context.Context, id string) (reconcile.View, error) {
	if !ValidID(id) {
		return reconcile.View{}, idea.InvalidRequest("workspace", "workspace id must be a uuid")
	}
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return reconcile.View{Generated: []idea.Idea{}, Saved: []idea.Idea{}}, nil
	}
	if err != nil {
		return reconcile.View{}, fmt.Errorf("load workspace: %w", err)
	}
	var view reconcile.View
	if err := json.Unmarshal(raw, &view); err != nil {
		return reconcile.View{}, fmt.Errorf("decode workspace: %w", err)
	}
	if view.Generated == nil {
		view.Generated = []idea.Idea{}
	}
	if view.Saved == nil {
		view.Saved = []idea.Idea{}
	}
	return view, nil
}

// Save overwrites the view and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, id string, view reconcile.View) error {
	if !ValidID(id) {
		return idea.InvalidRequest("workspace", "workspace id must be a uuid")
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode workspace: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save workspace: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}
