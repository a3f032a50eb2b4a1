package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

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
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUsers struct {
	pingFn        func(context.Context) error
	getUserByIDFn func(context.Context, string) (store.User, error)
}

func (f *fakeUsers) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeUsers) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{ID: id, DisplayName: "User " + id, Email: id + "@example.com", Role: "user"}, nil
}

// memorySessions mirrors the Redis session store in memory.
type memorySessions struct {
	mu      sync.Mutex
	refresh map[string]string
	revoked map[string]bool
}

func newMemorySessions() *memorySessions {
	return &memorySessions{refresh: map[string]string{}, revoked: map[string]bool{}}
}

func (m *memorySessions) SaveRefreshSession(_ context.Context, hash, userID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[hash] = userID
	return nil
}

func (m *memorySessions) LookupRefreshSession(_ context.Context, hash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.refresh[hash]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return store.User{ID: userID}, nil
}

func (m *memorySessions) RevokeRefreshSession(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, hash)
	return nil
}

func (m *memorySessions) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memorySessions) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

type fakePasswords struct {
	signUpFn func(context.Context, authpw.SignUpRequest) (store.User, error)
	signInFn func(context.Context, authpw.SignInRequest) (store.User, error)
}

func (f *fakePasswords) SignUp(ctx context.Context, req authpw.SignUpRequest) (store.User, error) {
	return f.signUpFn(ctx, req)
}

func (f *fakePasswords) SignIn(ctx context.Context, req authpw.SignInRequest) (store.User, error) {
	return f.signInFn(ctx, req)
}

type fakeIdeas struct {
	generateFn func(context.Context, string, idea.Category, int) (lifecycle.Batch, error)
	promoteFn  func(context.Context, idea.Idea, idea.Principal) (idea.Idea, error)
	getFn      func(context.Context, string, idea.Principal) (idea.Idea, error)
	listFn     func(context.Context, idea.Principal, ideastore.Filter) ([]idea.Idea, error)
	statsFn    func(context.Context, idea.Principal) (map[idea.Category]int, error)
	updateFn   func(context.Context, string, idea.Patch, idea.Principal) (idea.Idea, error)
	deleteFn   func(context.Context, string, idea.Principal) error
}

func (f *fakeIdeas) MaxCount() int { return lifecycle.DefaultMaxCount }

func (f *fakeIdeas) Generate(ctx context.Context, prompt string, category idea.Category, count int) (lifecycle.Batch, error) {
	if f.generateFn != nil {
		return f.generateFn(ctx, prompt, category, count)
	}
	return templateBatch(prompt, category, count), nil
}

func (f *fakeIdeas) Promote(ctx context.Context, candidate idea.Idea, owner idea.Principal) (idea.Idea, error) {
	if f.promoteFn != nil {
		return f.promoteFn(ctx, candidate, owner)
	}
	candidate.ID = "11111111-1111-4111-8111-111111111111"
	candidate.Owner = owner.ID
	candidate.Saved = true
	return candidate, nil
}

func (f *fakeIdeas) Get(ctx context.Context, id string, requester idea.Principal) (idea.Idea, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id, requester)
	}
	return idea.Idea{ID: id, Owner: requester.ID, Saved: true}, nil
}

func (f *fakeIdeas) List(ctx context.Context, owner idea.Principal, filter ideastore.Filter) ([]idea.Idea, error) {
	if f.listFn != nil {
		return f.listFn(ctx, owner, filter)
	}
	return []idea.Idea{}, nil
}

func (f *fakeIdeas) Stats(ctx context.Context, owner idea.Principal) (map[idea.Category]int, error) {
	if f.statsFn != nil {
		return f.statsFn(ctx, owner)
	}
	return map[idea.Category]int{}, nil
}

func (f *fakeIdeas) Update(ctx context.Context, id string, patch idea.Patch, requester idea.Principal) (idea.Idea, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, patch, requester)
	}
	return idea.Idea{ID: id, Owner: requester.ID, Saved: true}, nil
}

func (f *fakeIdeas) Delete(ctx context.Context, id string, requester idea.Principal) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id, requester)
	}
	return nil
}

func templateBatch(prompt string, category idea.Category, count int) lifecycle.Batch {
	batch := lifecycle.Batch{Prompt: prompt, Category: category, GeneratedAt: time.Now().UTC()}
	for i := 1; i <= count; i++ {
		batch.Ideas = append(batch.Ideas, idea.Idea{
			ID:       "idea-1700000000000-1-" + string(rune('0'+i)),
			Title:    prompt + " idea",
			Body:     "About " + prompt,
			Category: category,
			Keywords: []string{strings.ToLower(prompt)},
		})
	}
	return batch
}

type memoryWorkspaces struct {
	mu      sync.Mutex
	views   map[string]reconcile.View
	saveErr error
}

func newMemoryWorkspaces() *memoryWorkspaces {
	return &memoryWorkspaces{views: map[string]reconcile.View{}}
}

func (m *memoryWorkspaces) Load(_ context.Context, id string) (reconcile.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	view, ok := m.views[id]
	if !ok {
		return reconcile.View{Generated: []idea.Idea{}, Saved: []idea.Idea{}}, nil
	}
	return view, nil
}

func (m *memoryWorkspaces) Save(_ context.Context, id string, view reconcile.View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.views[id] = view
	return nil
}

type fakeSearch struct {
	searchFn func(search.Query) search.Response
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	return f.searchFn(q)
}

type fakeHistory struct {
	historyFn func(string, int) ([]history.Revision, error)
}

func (f *fakeHistory) History(ideaID string, limit int) ([]history.Revision, error) {
	return f.historyFn(ideaID, limit)
}

type fakeExporter struct {
	exportFn func(context.Context, export.Request) (*export.Result, error)
}

func (f *fakeExporter) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return f.exportFn(ctx, req)
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  testSecret,
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
}

func newTestService(deps Deps) *Service {
	if deps.Users == nil {
		deps.Users = &fakeUsers{}
	}
	if deps.Sessions == nil {
		deps.Sessions = newMemorySessions()
	}
	if deps.Ideas == nil {
		deps.Ideas = &fakeIdeas{}
	}
	return New(testConfig(), deps)
}

func newTestServer(deps Deps) http.Handler {
	return NewHTTPServer(newTestService(deps), "*", nil, nil).Handler()
}

func bearerFor(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := auth.IssueToken([]byte(testSecret), userID, "User "+userID, "user", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func mustView(saved ...idea.Idea) reconcile.View {
	var view reconcile.View
	view.LoadSaved(saved)
	return view
}
