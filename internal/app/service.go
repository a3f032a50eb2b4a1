package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ideaforge/api/internal/auth"
	"ideaforge/api/internal/authpw"
	"ideaforge/api/internal/config"
	"ideaforge/api/internal/export"
	"ideaforge/api/internal/history"
	"ideaforge/api/internal/idea"
	"ideaforge/api/internal/ideastore"
	"ideaforge/api/internal/lifecycle"
	"ideaforge/api/internal/reconcile"
	"ideaforge/api/internal/search"
	"ideaforge/api/internal/store"
	"ideaforge/api/internal/workspace"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) Principal() idea.Principal {
	return idea.Principal{ID: s.UserID, Role: s.Role}
}

type userStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	Ping(context.Context) error
}

// sessionStore is satisfied by both the Redis and the PostgreSQL session backends.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type passwordAuth interface {
	SignUp(context.Context, authpw.SignUpRequest) (store.User, error)
	SignIn(context.Context, authpw.SignInRequest) (store.User, error)
}

type ideaLifecycle interface {
	MaxCount() int
	Generate(ctx context.Context, prompt string, category idea.Category, count int) (lifecycle.Batch, error)
	Promote(ctx context.Context, candidate idea.Idea, owner idea.Principal) (idea.Idea, error)
	Get(ctx context.Context, id string, requester idea.Principal) (idea.Idea, error)
	List(ctx context.Context, owner idea.Principal, filter ideastore.Filter) ([]idea.Idea, error)
	Stats(ctx context.Context, owner idea.Principal) (map[idea.Category]int, error)
	Update(ctx context.Context, id string, patch idea.Patch, requester idea.Principal) (idea.Idea, error)
	Delete(ctx context.Context, id string, requester idea.Principal) error
}

type workspaceStore interface {
	Load(ctx context.Context, id string) (reconcile.View, error)
	Save(ctx context.Context, id string, view reconcile.View) error
}

type searcher interface {
	Search(q search.Query) search.Response
}

type historyReader interface {
	History(ideaID string, limit int) ([]history.Revision, error)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// Deps are the collaborators wired in cmd/api. Workspaces, Search, History
// and Export may be nil; the matching routes then answer 503.
type Deps struct {
	Users      userStore
	Sessions   sessionStore
	Passwords  passwordAuth
	Ideas      ideaLifecycle
	Workspaces workspaceStore
	Search     searcher
	History    historyReader
	Export     exporter
	Log        *zap.Logger
}

type Service struct {
	cfg        config.Config
	users      userStore
	sessions   sessionStore
	passwords  passwordAuth
	ideas      ideaLifecycle
	workspaces workspaceStore
	search     searcher
	history    historyReader
	export     exporter
	log        *zap.Logger
}

func New(cfg config.Config, deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		users:      deps.Users,
		sessions:   deps.Sessions,
		passwords:  deps.Passwords,
		ideas:      deps.Ideas,
		workspaces: deps.Workspaces,
		search:     deps.Search,
		history:    deps.History,
		export:     deps.Export,
		log:        log,
	}
}

func errFeatureUnavailable(feature string) *DomainError {
	return domainError(http.StatusServiceUnavailable, "FEATURE_UNAVAILABLE", feature+" is not configured", nil)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.users.Ping(ctx)
}

// Auth

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	if s.passwords == nil {
		return Session{}, errFeatureUnavailable("password authentication")
	}
	user, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	if s.passwords == nil {
		return Session{}, errFeatureUnavailable("password authentication")
	}
	user, err := s.passwords.SignIn(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	ref, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	user, err := s.users.GetUserByID(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	token, claims, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, user.Role, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh, err := auth.RandomToken(32)
	if err != nil {
		return Session{}, err
	}
	refreshExpires := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          claims.ID,
		ExpiresAt:    claims.ExpiresAtTime(),
	}, nil
}

// SessionFromToken resolves a bearer token. The role comes from the user
// row, not the token, so demotions apply before the token expires.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, fmt.Errorf("check revoked token: %w", err)
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, fmt.Errorf("load user: %w", err)
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAtTime(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.log.Warn("auth: revoke access token", zap.String("user_id", session.UserID), zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.log.Warn("auth: revoke refresh token", zap.String("user_id", session.UserID), zap.Error(err))
		}
	}
	return nil
}

// Ideas

type GenerateInput struct {
	Prompt   string
	Category idea.Category
	Count    int
}

type GenerateResult struct {
	Batch       lifecycle.Batch
	WorkspaceID string
}

// Generate synthesizes a batch and, when workspaces are enabled, replaces the
// workspace's generated list with it.
func (s *Service) Generate(ctx context.Context, workspaceID string, in GenerateInput) (GenerateResult, error) {
	if workspaceID != "" && !workspace.ValidID(workspaceID) {
		return GenerateResult{}, idea.InvalidRequest("workspace", "workspace id is not valid")
	}
	batch, err := s.ideas.Generate(ctx, in.Prompt, in.Category, in.Count)
	if err != nil {
		return GenerateResult{}, err
	}
	result := GenerateResult{Batch: batch}
	if s.workspaces == nil {
		return result, nil
	}

	if workspaceID == "" {
		workspaceID = workspace.NewID()
	}
	view, err := s.workspaces.Load(ctx, workspaceID)
	if err != nil {
		s.log.Warn("workspace: load failed; batch not recorded", zap.String("workspace_id", workspaceID), zap.Error(err))
		return result, nil
	}
	view.ReplaceGenerated(batch.Ideas)
	if err := s.workspaces.Save(ctx, workspaceID, view); err != nil {
		s.log.Warn("workspace: save failed; batch not recorded", zap.String("workspace_id", workspaceID), zap.Error(err))
		return result, nil
	}
	result.WorkspaceID = workspaceID
	return result, nil
}

// SaveInput is a promote request. An EphemeralID found in the workspace's
// generated list wins over the content fields, which are otherwise saved as-is.
type SaveInput struct {
	EphemeralID string
	Title       string
	Body        string
	Category    idea.Category
	Keywords    []string
}

func (in SaveInput) hasContent() bool {
	return strings.TrimSpace(in.Title) != "" || strings.TrimSpace(in.Body) != ""
}

// Save promotes an idea for principal. A failed promotion leaves the
// workspace untouched.
func (s *Service) Save(ctx context.Context, workspaceID string, in SaveInput, principal idea.Principal) (idea.Idea, error) {
	if !principal.Authenticated() {
		return idea.Idea{}, idea.Unauthenticated("sign in to save ideas")
	}
	ref := strings.TrimSpace(in.EphemeralID)
	if ref != "" && !lifecycle.IsEphemeralID(ref) {
		return idea.Idea{}, idea.InvalidRequest("ephemeralId", "only generated ideas can be saved by id")
	}

	var (
		view    reconcile.View
		tracked bool
	)
	if ref != "" && workspaceID != "" && s.workspaces != nil {
		if !workspace.ValidID(workspaceID) {
			return idea.Idea{}, idea.InvalidRequest("workspace", "workspace id is not valid")
		}
		loaded, err := s.workspaces.Load(ctx, workspaceID)
		if err != nil {
			return idea.Idea{}, err
		}
		view, tracked = loaded, true
	}

	var (
		durable idea.Idea
		err     error
	)
	_, generated := view.FindGenerated(ref)
	switch {
	case tracked && generated:
		durable, err = view.SaveGenerated(ctx, ref, principal, s.ideas)
	case in.hasContent():
		candidate := idea.Idea{Title: in.Title, Body: in.Body, Category: in.Category, Keywords: in.Keywords}
		durable, err = s.ideas.Promote(ctx, candidate, principal)
		if err == nil && tracked {
			view.ApplySaved(ref, durable)
		}
	case ref != "":
		return idea.Idea{}, idea.NotFound("generated idea not found; send its content or generate again")
	default:
		return idea.Idea{}, idea.InvalidRequest("ephemeralId", "provide a generated idea id or the idea content")
	}
	if err != nil {
		return idea.Idea{}, err
	}

	if tracked {
		s.saveWorkspace(ctx, workspaceID, view)
	}
	return durable, nil
}

func (s *Service) GetIdea(ctx context.Context, id string, principal idea.Principal) (idea.Idea, error) {
	return s.ideas.Get(ctx, id, principal)
}

func (s *Service) ListIdeas(ctx context.Context, principal idea.Principal, filter ideastore.Filter) ([]idea.Idea, error) {
	return s.ideas.List(ctx, principal, filter)
}

func (s *Service) Stats(ctx context.Context, principal idea.Principal) (map[idea.Category]int, error) {
	return s.ideas.Stats(ctx, principal)
}

func (s *Service) UpdateIdea(ctx context.Context, workspaceID, id string, patch idea.Patch, principal idea.Principal) (idea.Idea, error) {
	updated, err := s.ideas.Update(ctx, id, patch, principal)
	if err != nil {
		return idea.Idea{}, err
	}
	s.touchWorkspace(ctx, workspaceID, func(v *reconcile.View) { v.ApplyUpdated(updated) })
	return updated, nil
}

func (s *Service) DeleteIdea(ctx context.Context, workspaceID, id string, principal idea.Principal) error {
	if err := s.ideas.Delete(ctx, id, principal); err != nil {
		return err
	}
	s.touchWorkspace(ctx, workspaceID, func(v *reconcile.View) { v.ApplyDeleted(id) })
	return nil
}

// Workspace returns the reconciliation view for workspaceID. For a signed-in
// caller the saved list is refreshed from the store.
func (s *Service) Workspace(ctx context.Context, workspaceID string, principal idea.Principal) (string, reconcile.View, error) {
	if workspaceID != "" && !workspace.ValidID(workspaceID) {
		return "", reconcile.View{}, idea.InvalidRequest("workspace", "workspace id is not valid")
	}
	view := reconcile.View{Generated: []idea.Idea{}, Saved: []idea.Idea{}}
	if s.workspaces != nil {
		if workspaceID == "" {
			workspaceID = workspace.NewID()
		} else {
			loaded, err := s.workspaces.Load(ctx, workspaceID)
			if err != nil {
				return "", reconcile.View{}, err
			}
			view = loaded
		}
	} else {
		workspaceID = ""
	}
	if principal.Authenticated() {
		saved, err := s.ideas.List(ctx, principal, ideastore.Filter{})
		if err != nil {
			return "", reconcile.View{}, err
		}
		view.LoadSaved(saved)
	}
	return workspaceID, view, nil
}

func (s *Service) touchWorkspace(ctx context.Context, workspaceID string, apply func(*reconcile.View)) {
	if s.workspaces == nil || workspaceID == "" || !workspace.ValidID(workspaceID) {
		return
	}
	view, err := s.workspaces.Load(ctx, workspaceID)
	if err != nil {
		s.log.Warn("workspace: load failed", zap.String("workspace_id", workspaceID), zap.Error(err))
		return
	}
	apply(&view)
	s.saveWorkspace(ctx, workspaceID, view)
}

// saveWorkspace is best effort: the durable record already exists and a
// reload of the workspace rebuilds the saved list from the store.
func (s *Service) saveWorkspace(ctx context.Context, workspaceID string, view reconcile.View) {
	if err := s.workspaces.Save(ctx, workspaceID, view); err != nil {
		s.log.Warn("workspace: save failed", zap.String("workspace_id", workspaceID), zap.Error(err))
	}
}

func (s *Service) History(ctx context.Context, id string, principal idea.Principal, limit int) ([]history.Revision, error) {
	if s.history == nil {
		return nil, errFeatureUnavailable("idea history")
	}
	if _, err := s.ideas.Get(ctx, id, principal); err != nil {
		return nil, err
	}
	revisions, err := s.history.History(id, limit)
	if err != nil {
		return nil, fmt.Errorf("read idea history: %w", err)
	}
	return revisions, nil
}

func (s *Service) Search(ctx context.Context, principal idea.Principal, q search.Query) (search.Response, error) {
	if !principal.Authenticated() {
		return search.Response{}, idea.Unauthenticated("sign in to search saved ideas")
	}
	if s.search == nil {
		return search.Response{}, errFeatureUnavailable("search")
	}
	q.OwnerID = principal.ID
	return s.search.Search(q), nil
}

func (s *Service) Export(ctx context.Context, principal idea.Principal, format export.Format, category idea.Category) (*export.Result, error) {
	if s.export == nil {
		return nil, errFeatureUnavailable("export")
	}
	return s.export.Export(ctx, export.Request{Owner: principal, Category: category, Format: format})
}
