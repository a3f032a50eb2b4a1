// Package history keeps one git repository per saved idea and commits the
// idea's content on every create and update.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"

	"ideaforge/api/internal/idea"
	"ideaforge/api/internal/lifecycle"
)

const contentFile = "content.json"

// Snapshot is the versioned part of an idea.
type Snapshot struct {
	Title    string        `json:"title"`
	Body     string        `json:"body"`
	Category idea.Category `json:"category"`
	Keywords []string      `json:"keywords"`
}

func SnapshotOf(item idea.Idea) Snapshot {
	return Snapshot{
		Title:    item.Title,
		Body:     item.Body,
		Category: item.Category,
		Keywords: idea.NormalizeKeywords(item.Keywords),
	}
}

type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

type Revision struct {
	Hash      string        `json:"hash"`
	Message   string        `json:"message"`
	Author    string        `json:"author"`
	CreatedAt time.Time     `json:"createdAt"`
	Snapshot  Snapshot      `json:"snapshot"`
	Changes   []FieldChange `json:"changes"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits snapshot as the newest revision of ideaID, creating the
// repository on first use.
func (s *Service) Record(ideaID string, snapshot Snapshot, author, message string) (Revision, error) {
	path, err := s.repoPath(ideaID)
	if err != nil {
		return Revision{}, err
	}
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return Revision{}, fmt.Errorf("create repo dir: %w", err)
		}
		repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
			InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
		})
	}
	if err != nil {
		return Revision{}, fmt.Errorf("open repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return Revision{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, contentFile), append(payload, '\n'), 0o644); err != nil {
		return Revision{}, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return Revision{}, fmt.Errorf("git add content: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: author + "@users.ideaforge.local",
			When:  time.Now(),
		},
	})
	if err != nil {
		return Revision{}, fmt.Errorf("commit content: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj, snapshot), nil
}

// History lists revisions newest first, each with its changes against the
// previous one. An idea with no repository has no history.
func (s *Service) History(ideaID string, limit int) ([]Revision, error) {
	path, err := s.repoPath(ideaID)
	if err != nil {
		return nil, err
	}
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	// One extra commit is read so the oldest returned revision can be diffed.
	items := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		snapshot, err := readSnapshot(commitObj)
		if err != nil {
			return err
		}
		items = append(items, toRevision(commitObj, snapshot))
		if limit > 0 && len(items) > limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}

	for i := range items {
		var previous Snapshot
		if i+1 < len(items) {
			previous = items[i+1].Snapshot
		}
		items[i].Changes = DiffFields(previous, items[i].Snapshot)
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Remove deletes the repository of ideaID. Missing repositories are fine.
func (s *Service) Remove(ideaID string) error {
	path, err := s.repoPath(ideaID)
	if err != nil {
		return err
	}
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	s.lockMu.Lock()
	delete(s.locks, ideaID)
	s.lockMu.Unlock()
	return nil
}

// Observe keeps repositories in step with the idea lifecycle.
func (s *Service) Observe(_ context.Context, event lifecycle.Event) error {
	switch event.Kind {
	case lifecycle.EventSaved:
		_, err := s.Record(event.Idea.ID, SnapshotOf(event.Idea), authorName(event), "Save idea")
		return err
	case lifecycle.EventUpdated:
		_, err := s.Record(event.Idea.ID, SnapshotOf(event.Idea), authorName(event), "Update idea")
		return err
	case lifecycle.EventDeleted:
		return s.Remove(event.Idea.ID)
	default:
		return nil
	}
}

func authorName(event lifecycle.Event) string {
	if event.Actor.ID != "" {
		return event.Actor.ID
	}
	if event.Idea.Owner != "" {
		return event.Idea.Owner
	}
	return "ideaforge"
}

func (s *Service) repoPath(ideaID string) (string, error) {
	if _, err := uuid.Parse(ideaID); err != nil {
		return "", fmt.Errorf("invalid idea id %q for history", ideaID)
	}
	return filepath.Join(s.baseDir, ideaID), nil
}

func (s *Service) ideaLock(ideaID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[ideaID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[ideaID] = lock
	return lock
}

func readSnapshot(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", contentFile, err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(contents), &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

func toRevision(commitObj *object.Commit, snapshot Snapshot) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
		Snapshot:  snapshot,
		Changes:   []FieldChange{},
	}
}
