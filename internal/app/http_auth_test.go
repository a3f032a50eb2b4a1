package app

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"ideaforge/api/internal/auth"
	"ideaforge/api/internal/authpw"
	"ideaforge/api/internal/store"
)

func TestSignUpReturnsSession(t *testing.T) {
	var received authpw.SignUpRequest
	passwords := &fakePasswords{
		signUpFn: func(_ context.Context, req authpw.SignUpRequest) (store.User, error) {
			received = req
			return store.User{ID: "user-1", Email: "avery@example.com", DisplayName: "Avery", Role: "user"}, nil
		},
	}
	handler := newTestServer(Deps{Passwords: passwords})

	rr := doRequest(t, handler, http.MethodPost, "/api/auth/signup",
		`{"email":"avery@example.com","password":"long-enough","displayName":"Avery"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if received.Email != "avery@example.com" || received.DisplayName != "Avery" {
		t.Fatalf("unexpected sign up request %+v", received)
	}

	data, _ := decodeBody(t, rr)["data"].(map[string]any)
	if token, _ := data["token"].(string); token == "" {
		t.Fatalf("expected token")
	}
	if refresh, _ := data["refreshToken"].(string); refresh == "" {
		t.Fatalf("expected refreshToken")
	}
	user, _ := data["user"].(map[string]any)
	if user["id"] != "user-1" || user["displayName"] != "Avery" {
		t.Fatalf("unexpected user payload %v", user)
	}
}

func TestSignUpDuplicateEmailReturnsConflict(t *testing.T) {
	passwords := &fakePasswords{
		signUpFn: func(context.Context, authpw.SignUpRequest) (store.User, error) {
			return store.User{}, authpw.ErrEmailTaken
		},
	}
	handler := newTestServer(Deps{Passwords: passwords})

	rr := doRequest(t, handler, http.MethodPost, "/api/auth/signup", `{"email":"a@example.com","password":"long-enough"}`, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if code := decodeBody(t, rr)["code"]; code != "EMAIL_EXISTS" {
		t.Fatalf("expected EMAIL_EXISTS, got %v", code)
	}
}

func TestSignInInvalidCredentials(t *testing.T) {
	passwords := &fakePasswords{
		signInFn: func(context.Context, authpw.SignInRequest) (store.User, error) {
			return store.User{}, authpw.ErrInvalidCredentials
		},
	}
	handler := newTestServer(Deps{Passwords: passwords})

	rr := doRequest(t, handler, http.MethodPost, "/api/auth/signin", `{"email":"a@example.com","password":"wrong"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	if code := decodeBody(t, rr)["code"]; code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected INVALID_CREDENTIALS, got %v", code)
	}
}

func TestSignInRejectsInvalidBody(t *testing.T) {
	handler := newTestServer(Deps{Passwords: &fakePasswords{}})

	rr := doRequest(t, handler, http.MethodPost, "/api/auth/signin", `{"email":`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSignInWithoutPasswordBackendIsUnavailable(t *testing.T) {
	handler := newTestServer(Deps{})

	rr := doRequest(t, handler, http.MethodPost, "/api/auth/signin", `{"email":"a@example.com","password":"x"}`, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	sessions := newMemorySessions()
	svc := newTestService(Deps{Sessions: sessions})
	first, err := svc.issueSession(context.Background(), store.User{ID: "user-1", DisplayName: "Avery", Role: "user"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	handler := NewHTTPServer(svc, "*", nil, nil).Handler()

	rr := doRequest(t, handler, http.MethodPost, "/api/auth/refresh", `{"refreshToken":"`+first.RefreshToken+`"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	data, _ := decodeBody(t, rr)["data"].(map[string]any)
	if next, _ := data["refreshToken"].(string); next == "" || next == first.RefreshToken {
		t.Fatalf("expected a new refresh token, got %q", next)
	}

	replay := doRequest(t, handler, http.MethodPost, "/api/auth/refresh", `{"refreshToken":"`+first.RefreshToken+`"}`, nil)
	if replay.Code != http.StatusUnauthorized {
		t.Fatalf("expected replayed refresh token to be rejected, got %d", replay.Code)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	handler := newTestServer(Deps{})
	bearer := bearerFor(t, "user-1")

	rr := doRequest(t, handler, http.MethodPost, "/api/auth/logout", "", map[string]string{"Authorization": bearer})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	after := doRequest(t, handler, http.MethodGet, "/api/ideas", "", map[string]string{"Authorization": bearer})
	if after.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", after.Code)
	}
}

func TestProtectedRouteWithoutBearerReturnsUnauthorized(t *testing.T) {
	handler := newTestServer(Deps{})

	rr := doRequest(t, handler, http.MethodGet, "/api/ideas", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	if code := decodeBody(t, rr)["code"]; code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %v", code)
	}
}

func TestProtectedRouteWithExpiredBearerReturnsUnauthorized(t *testing.T) {
	handler := newTestServer(Deps{})
	token, _, err := auth.IssueToken([]byte(testSecret), "user-1", "Avery", "user", -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rr := doRequest(t, handler, http.MethodGet, "/api/ideas", "", map[string]string{"Authorization": "Bearer " + token})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestProtectedRouteWithDeletedUserReturnsUnauthorized(t *testing.T) {
	users := &fakeUsers{getUserByIDFn: func(context.Context, string) (store.User, error) {
		return store.User{}, store.ErrNotFound
	}}
	handler := newTestServer(Deps{Users: users})

	rr := doRequest(t, handler, http.MethodGet, "/api/ideas", "", map[string]string{"Authorization": bearerFor(t, "gone")})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestSessionEndpoint(t *testing.T) {
	handler := newTestServer(Deps{})

	anonymous := decodeBody(t, doRequest(t, handler, http.MethodGet, "/api/session", "", nil))
	if anonymous["authenticated"] != false {
		t.Fatalf("expected anonymous session, got %v", anonymous)
	}

	invalid := decodeBody(t, doRequest(t, handler, http.MethodGet, "/api/session", "",
		map[string]string{"Authorization": "Bearer not-a-token"}))
	if invalid["authenticated"] != false {
		t.Fatalf("expected invalid token to read as anonymous, got %v", invalid)
	}

	signedIn := decodeBody(t, doRequest(t, handler, http.MethodGet, "/api/session", "",
		map[string]string{"Authorization": bearerFor(t, "user-1")}))
	if signedIn["authenticated"] != true || !strings.HasPrefix(signedIn["userName"].(string), "User") {
		t.Fatalf("expected signed in session, got %v", signedIn)
	}
}
