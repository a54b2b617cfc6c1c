package moltbook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/go-faster/errors"
)

// fakeBackend records every request and serves canned JSON per path.
type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  map[string]string // path → response body
	status   map[string]int    // path → status (default 200)
	server   *httptest.Server
}

type recordedRequest struct {
	method string
	path   string
	query  url.Values
	body   map[string]any
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		respond: map[string]string{},
		status:  map[string]int{},
	}
	fb.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
		}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&rec.body)
		}
		fb.mu.Lock()
		fb.requests = append(fb.requests, rec)
		fb.mu.Unlock()

		if code, ok := fb.status[r.URL.Path]; ok {
			w.WriteHeader(code)
		}
		body, ok := fb.respond[r.URL.Path]
		if !ok {
			body = `{"ok":true}`
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) recorded() []recordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]recordedRequest(nil), fb.requests...)
}

func (fb *fakeBackend) module(t *testing.T, cfg Config) *MoltbookModule {
	t.Helper()
	return newTestModule(t, fb.server, cfg)
}

// -----------------------------------------------------------------------------
// moltbook_status
// -----------------------------------------------------------------------------

func TestStatus_CombinesBothCalls(t *testing.T) {
	fb := newFakeBackend(t)
	fb.respond["/agents/me"] = `{"name":"crab-bot"}`
	fb.respond["/agents/status"] = `{"status":"active"}`
	m := fb.module(t, Config{})

	got, err := m.ExecuteTool(context.Background(), "moltbook_status", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obj := got.(map[string]any)
	me := obj["me"].(map[string]any)
	st := obj["status"].(map[string]any)
	if me["name"] != "crab-bot" {
		t.Errorf("me = %v", me)
	}
	if st["status"] != "active" {
		t.Errorf("status = %v", st)
	}

	reqs := fb.recorded()
	if len(reqs) != 2 || reqs[0].path != "/agents/me" || reqs[1].path != "/agents/status" {
		t.Errorf("unexpected request sequence: %+v", reqs)
	}
}

func TestStatus_NoPartialResult(t *testing.T) {
	fb := newFakeBackend(t)
	fb.respond["/agents/me"] = `{"name":"crab-bot"}`
	fb.status["/agents/status"] = http.StatusInternalServerError
	m := fb.module(t, Config{})

	got, err := m.ExecuteTool(context.Background(), "moltbook_status", nil)
	if err == nil {
		t.Fatal("expected error when the second call fails")
	}
	if got != nil {
		t.Errorf("expected nil result, got %v", got)
	}
	var upErr *UpstreamError
	if !errors.As(err, &upErr) || upErr.Status != http.StatusInternalServerError {
		t.Errorf("expected 500 UpstreamError, got %v", err)
	}
}

// -----------------------------------------------------------------------------
// moltbook_post
// -----------------------------------------------------------------------------

func TestPost_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"blank title", map[string]any{"title": "   ", "content": "body"}},
		{"missing content and url", map[string]any{"title": "hello"}},
		{"blank content and url", map[string]any{"title": "hello", "content": " ", "url": " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(t)
			m := fb.module(t, Config{})

			_, err := m.ExecuteTool(context.Background(), "moltbook_post", tt.params)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if n := len(fb.recorded()); n != 0 {
				t.Errorf("validation failure must not reach the network, got %d requests", n)
			}
		})
	}
}

func TestPost_SubmoltResolution(t *testing.T) {
	tests := []struct {
		name        string
		params      map[string]any
		cfgDefault  string
		wantSubmolt string
	}{
		{
			name:        "explicit param wins",
			params:      map[string]any{"title": "t", "content": "c", "submolt": "cats"},
			cfgDefault:  "robotics",
			wantSubmolt: "cats",
		},
		{
			name:        "configured default",
			params:      map[string]any{"title": "t", "content": "c"},
			cfgDefault:  "robotics",
			wantSubmolt: "robotics",
		},
		{
			name:        "literal fallback",
			params:      map[string]any{"title": "t", "content": "c"},
			wantSubmolt: "general",
		},
		{
			name:        "blank param falls through",
			params:      map[string]any{"title": "t", "content": "c", "submolt": "  "},
			cfgDefault:  "robotics",
			wantSubmolt: "robotics",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(t)
			m := fb.module(t, Config{DefaultSubmolt: tt.cfgDefault})

			_, err := m.ExecuteTool(context.Background(), "moltbook_post", tt.params)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			reqs := fb.recorded()
			if len(reqs) != 1 || reqs[0].method != http.MethodPost || reqs[0].path != "/posts" {
				t.Fatalf("unexpected requests: %+v", reqs)
			}
			if got := reqs[0].body["submolt"]; got != tt.wantSubmolt {
				t.Errorf("submolt = %v, want %q", got, tt.wantSubmolt)
			}
		})
	}
}

func TestPost_BodyFields(t *testing.T) {
	fb := newFakeBackend(t)
	m := fb.module(t, Config{})

	_, err := m.ExecuteTool(context.Background(), "moltbook_post", map[string]any{
		"title":   "  Molting season  ",
		"content": "shell care tips",
		"url":     "https://example.com/molt",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := fb.recorded()[0].body
	if body["title"] != "Molting season" {
		t.Errorf("title = %v, want trimmed", body["title"])
	}
	if body["content"] != "shell care tips" {
		t.Errorf("content = %v", body["content"])
	}
	if body["url"] != "https://example.com/molt" {
		t.Errorf("url = %v", body["url"])
	}
}

func TestPost_OmitsAbsentOptionalFields(t *testing.T) {
	fb := newFakeBackend(t)
	m := fb.module(t, Config{})

	_, err := m.ExecuteTool(context.Background(), "moltbook_post", map[string]any{
		"title": "link only",
		"url":   "https://example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := fb.recorded()[0].body
	if _, present := body["content"]; present {
		t.Errorf("content must be omitted when not provided, body = %v", body)
	}
}

// -----------------------------------------------------------------------------
// moltbook_feed
// -----------------------------------------------------------------------------

func TestFeed_Defaults(t *testing.T) {
	fb := newFakeBackend(t)
	m := fb.module(t, Config{})

	_, err := m.ExecuteTool(context.Background(), "moltbook_feed", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := fb.recorded()[0]
	if req.path != "/feed" {
		t.Errorf("path = %q, want /feed", req.path)
	}
	if req.query.Get("sort") != "new" {
		t.Errorf("sort = %q, want new", req.query.Get("sort"))
	}
	if req.query.Get("limit") != "10" {
		t.Errorf("limit = %q, want 10", req.query.Get("limit"))
	}
}

func TestFeed_LimitClamped(t *testing.T) {
	tests := []struct {
		name  string
		limit float64
		want  string
	}{
		{"above maximum", 500, "50"},
		{"below minimum", 0, "1"},
		{"negative", -3, "1"},
		{"in range", 25, "25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(t)
			m := fb.module(t, Config{})

			_, err := m.ExecuteTool(context.Background(), "moltbook_feed", map[string]any{"limit": tt.limit})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fb.recorded()[0].query.Get("limit"); got != tt.want {
				t.Errorf("limit = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFeed_GeneralPostsRouting(t *testing.T) {
	fb := newFakeBackend(t)
	m := fb.module(t, Config{})

	_, err := m.ExecuteTool(context.Background(), "moltbook_feed", map[string]any{
		"personalized": false,
		"submolt":      "cats",
		"sort":         "top",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := fb.recorded()[0]
	if req.path != "/posts" {
		t.Errorf("path = %q, want /posts", req.path)
	}
	if req.query.Get("submolt") != "cats" {
		t.Errorf("submolt = %q, want cats", req.query.Get("submolt"))
	}
	if req.query.Get("sort") != "top" {
		t.Errorf("sort = %q, want top", req.query.Get("sort"))
	}
}

func TestFeed_PersonalizedIgnoresSubmolt(t *testing.T) {
	fb := newFakeBackend(t)
	m := fb.module(t, Config{})

	_, err := m.ExecuteTool(context.Background(), "moltbook_feed", map[string]any{
		"personalized": true,
		"submolt":      "cats",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := fb.recorded()[0]
	if req.path != "/feed" {
		t.Errorf("path = %q, want /feed", req.path)
	}
	if req.query.Has("submolt") {
		t.Errorf("submolt must not be sent on the personalized feed, query = %v", req.query)
	}
}

// -----------------------------------------------------------------------------
// moltbook_search
// -----------------------------------------------------------------------------

func TestSearch_QueryTooShort(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"single character", "a"},
		{"whitespace padding does not count", " a "},
		{"single multibyte character", "猫"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(t)
			m := fb.module(t, Config{})

			_, err := m.ExecuteTool(context.Background(), "moltbook_search", map[string]any{"query": tt.query})
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if n := len(fb.recorded()); n != 0 {
				t.Errorf("short query must not reach the network, got %d requests", n)
			}
		})
	}
}

func TestSearch_MultibyteQuery(t *testing.T) {
	fb := newFakeBackend(t)
	m := fb.module(t, Config{})

	// Two runes, six bytes: character count is what satisfies the minimum.
	_, err := m.ExecuteTool(context.Background(), "moltbook_search", map[string]any{"query": "猫咪"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fb.recorded()[0].query.Get("q"); got != "猫咪" {
		t.Errorf("q = %q", got)
	}
}

func TestSearch_Defaults(t *testing.T) {
	fb := newFakeBackend(t)
	m := fb.module(t, Config{})

	_, err := m.ExecuteTool(context.Background(), "moltbook_search", map[string]any{"query": "molting"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := fb.recorded()[0]
	if req.path != "/search" {
		t.Errorf("path = %q, want /search", req.path)
	}
	if req.query.Get("q") != "molting" {
		t.Errorf("q = %q", req.query.Get("q"))
	}
	if req.query.Get("type") != "all" {
		t.Errorf("type = %q, want all", req.query.Get("type"))
	}
	if req.query.Get("limit") != "20" {
		t.Errorf("limit = %q, want 20", req.query.Get("limit"))
	}
}

func TestSearch_ExplicitParams(t *testing.T) {
	fb := newFakeBackend(t)
	m := fb.module(t, Config{})

	_, err := m.ExecuteTool(context.Background(), "moltbook_search", map[string]any{
		"query": "shell care",
		"type":  "comments",
		"limit": float64(200),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := fb.recorded()[0]
	if req.query.Get("type") != "comments" {
		t.Errorf("type = %q", req.query.Get("type"))
	}
	if req.query.Get("limit") != "50" {
		t.Errorf("limit = %q, want clamped 50", req.query.Get("limit"))
	}
}

// -----------------------------------------------------------------------------
// Module surface
// -----------------------------------------------------------------------------

func TestExecuteTool_UnknownTool(t *testing.T) {
	m := New(nil)
	_, err := m.ExecuteTool(context.Background(), "moltbook_delete_everything", nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestTools_DefinitionsMatchHandlers(t *testing.T) {
	m := New(nil)
	tools := m.Tools()
	if len(tools) != len(toolHandlers) {
		t.Fatalf("definitions (%d) and handlers (%d) out of sync", len(tools), len(toolHandlers))
	}
	for _, tool := range tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("tool %q has no handler", tool.Name)
		}
	}
}
