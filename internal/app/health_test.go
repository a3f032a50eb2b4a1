package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(Deps{})

	rr := doRequest(t, handler, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ok := decodeBody(t, rr)["ok"]; ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	handler := newTestServer(Deps{Users: &fakeUsers{pingFn: func(context.Context) error { return nil }}})

	rr := doRequest(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["status"] != "ready" {
		t.Errorf("expected status=ready, got %v", payload["status"])
	}
	checks, _ := payload["checks"].(map[string]any)
	database, _ := checks["database"].(map[string]any)
	if database["status"] != "ok" {
		t.Errorf("expected database status=ok, got %v", database["status"])
	}
}

func TestReadyEndpoint_DatabaseFailure(t *testing.T) {
	handler := newTestServer(Deps{Users: &fakeUsers{pingFn: func(context.Context) error {
		return errors.New("connection refused")
	}}})

	rr := doRequest(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["ok"] != false || payload["status"] != "not_ready" {
		t.Errorf("unexpected payload %v", payload)
	}
	checks, _ := payload["checks"].(map[string]any)
	database, _ := checks["database"].(map[string]any)
	if database["error"] != "connection refused" {
		t.Errorf("expected database error, got %v", database["error"])
	}
}

func TestPreflightRequest(t *testing.T) {
	handler := newTestServer(Deps{})

	rr := doRequest(t, handler, http.MethodOptions, "/api/ideas", "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
}

func TestCORSAndRequestIDHeaders(t *testing.T) {
	handler := NewHTTPServer(newTestService(Deps{}), "https://ideas.example.com", nil, nil).Handler()

	rr := doRequest(t, handler, http.MethodGet, "/api/health", "", map[string]string{requestIDHeader: "req-42"})

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://ideas.example.com" {
		t.Errorf("expected configured origin, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); got == "" || !containsToken(got, "X-Workspace-ID") {
		t.Errorf("expected X-Workspace-ID in allowed headers, got %q", got)
	}
	if got := rr.Header().Get(requestIDHeader); got != "req-42" {
		t.Errorf("expected request id to be echoed, got %q", got)
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	handler := newTestServer(Deps{})

	rr := doRequest(t, handler, http.MethodGet, "/api/nope", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["success"] != false || payload["code"] != "NOT_FOUND" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func containsToken(list, token string) bool {
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == token {
			return true
		}
	}
	return false
}
