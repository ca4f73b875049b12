package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestClientSendsBearerToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /posts": `[]`,
	})

	resp, err := ts.client().get(ctx, "/posts?limit=5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	if r.Path != "/posts?limit=5" {
		t.Errorf("path = %q, want /posts?limit=5", r.Path)
	}
}

func TestDecodePostsListing(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /posts": `[{"ID":"p1","Topic":"argan oil","Provider":"gemini","PostURN":"urn:li:share:1","PublishedAt":"2026-02-01T09:00:00Z"}]`,
	})

	resp, err := ts.client().get(ctx, "/posts?limit=20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var posts []struct {
		ID          string
		Topic       string
		Provider    string
		PostURN     string
		PublishedAt time.Time
	}
	if err := decodeJSON(resp, &posts); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(posts))
	}
	got := posts[0]
	if got.Topic != "argan oil" || got.PostURN != "urn:li:share:1" {
		t.Errorf("post = %+v, want argan oil / urn:li:share:1", got)
	}
	if got.PublishedAt.IsZero() {
		t.Error("published_at should parse")
	}
}

func TestSessionsResetIssuesDelete(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /sessions/7": `{"status":"reset"}`,
	})

	resp, err := ts.client().delete(ctx, "/sessions/7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "reset" {
		t.Errorf("status = %q, want reset", result["status"])
	}

	r := ts.requests[0]
	if r.Method != "DELETE" || r.Path != "/sessions/7" {
		t.Errorf("request = %s %s, want DELETE /sessions/7", r.Method, r.Path)
	}
}

func TestDecodeJSONSurfacesServerError(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/errors")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should name the status code: %v", err)
	}
}

func TestClientReportsUnreachableServer(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.client()
	ts.server.Close()

	_, err := client.get(ctx, "/posts")
	if err == nil {
		t.Fatal("expected an error for a closed server")
	}
	if !strings.Contains(err.Error(), "is trendbot running") {
		t.Errorf("error should hint at the server being down: %v", err)
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := pidFilePath(dir)

	if err := writePIDFile(path); err != nil {
		t.Fatalf("writing PID file: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("reading PID file: %v", err)
	}
	if pid <= 0 {
		t.Errorf("pid = %d, want a live process ID", pid)
	}

	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("PID file should be gone after removal")
	}
}
