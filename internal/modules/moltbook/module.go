package moltbook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"

	"moltbridge/server/internal/modules"
)

const moltbookVersion = "v1"

// MoltbookModule implements the Module interface for the Moltbook API.
// It holds no per-call state: every invocation is an independent, stateless
// HTTP round trip, so concurrent tool executions are safe by construction.
type MoltbookModule struct {
	config ConfigSource
}

// New creates a new MoltbookModule backed by the given configuration source.
func New(source ConfigSource) *MoltbookModule {
	if source == nil {
		source = func() Config { return Config{} }
	}
	return &MoltbookModule{config: source}
}

// Name returns the module name
func (m *MoltbookModule) Name() string {
	return "moltbook"
}

// Description returns the module description
func (m *MoltbookModule) Description() string {
	return "Moltbook API - Check agent status, create posts, browse feeds, and search"
}

// APIVersion returns the Moltbook API version
func (m *MoltbookModule) APIVersion() string {
	return moltbookVersion
}

// Tools returns all available tools
func (m *MoltbookModule) Tools() []modules.Tool {
	return toolDefinitions
}

// ExecuteTool executes a tool by name and returns the decoded result value
func (m *MoltbookModule) ExecuteTool(ctx context.Context, name string, params map[string]any) (any, error) {
	handler, ok := toolHandlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	return handler(m, ctx, params)
}

// =============================================================================
// Tool Definitions
// =============================================================================

var toolDefinitions = []modules.Tool{
	{
		ID:          "moltbook:status",
		Name:        "moltbook_status",
		Description: "Get the agent's Moltbook identity and current status.",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: modules.InputSchema{
			Type:       "object",
			Properties: map[string]modules.Property{},
		},
	},
	{
		ID:          "moltbook:post",
		Name:        "moltbook_post",
		Description: "Create a post on Moltbook. Requires a title and at least one of content or url.",
		Annotations: modules.AnnotateCreate,
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"submolt": {Type: "string", Description: "Community to post in (default: configured community, else \"general\")"},
				"title":   {Type: "string", Description: "Post title (required)"},
				"content": {Type: "string", Description: "Post body text"},
				"url":     {Type: "string", Description: "Link to share"},
			},
			Required: []string{"title"},
		},
	},
	{
		ID:          "moltbook:feed",
		Name:        "moltbook_feed",
		Description: "Fetch the personalized feed, or general posts when personalized is false (optionally filtered by submolt).",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"personalized": {Type: "boolean", Description: "Fetch the personalized feed (default: true)"},
				"sort":         {Type: "string", Description: "Sort order (default: \"new\")"},
				"limit":        {Type: "number", Description: "Number of posts, 1-50 (default: 10)"},
				"submolt":      {Type: "string", Description: "Filter general posts by community (ignored when personalized)"},
			},
		},
	},
	{
		ID:          "moltbook:search",
		Name:        "moltbook_search",
		Description: "Search Moltbook posts, comments, and users.",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: modules.InputSchema{
			Type: "object",
			Properties: map[string]modules.Property{
				"query": {Type: "string", Description: "Search query (required, at least 2 characters)", MinLength: 2},
				"type":  {Type: "string", Description: "Result type: posts, comments, users, or all (default: \"all\")"},
				"limit": {Type: "number", Description: "Number of results, 1-50 (default: 20)"},
			},
			Required: []string{"query"},
		},
	},
}

// =============================================================================
// Tool Handlers
// =============================================================================

type toolHandler func(m *MoltbookModule, ctx context.Context, params map[string]any) (any, error)

var toolHandlers = map[string]toolHandler{
	"moltbook_status": (*MoltbookModule).status,
	"moltbook_post":   (*MoltbookModule).post,
	"moltbook_feed":   (*MoltbookModule).feed,
	"moltbook_search": (*MoltbookModule).search,
}

// status fetches the agent's identity and its current status. Both calls
// must succeed; there is no partial result.
func (m *MoltbookModule) status(ctx context.Context, params map[string]any) (any, error) {
	me, err := m.call(ctx, http.MethodGet, "/agents/me", nil, nil)
	if err != nil {
		return nil, err
	}
	st, err := m.call(ctx, http.MethodGet, "/agents/status", nil, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"me": me, "status": st}, nil
}

// post creates a post. Channel resolution order: explicit submolt param,
// configured default, literal "general".
func (m *MoltbookModule) post(ctx context.Context, params map[string]any) (any, error) {
	submolt := modules.StringParam(params, "submolt")
	if submolt == "" {
		submolt = strings.TrimSpace(m.config().DefaultSubmolt)
	}
	if submolt == "" {
		submolt = fallbackSubmolt
	}

	title := modules.StringParam(params, "title")
	if title == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "title must not be blank")
	}

	content := modules.StringParam(params, "content")
	link := modules.StringParam(params, "url")
	if content == "" && link == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "at least one of content or url is required")
	}

	body := map[string]any{
		"submolt": submolt,
		"title":   title,
	}
	if content != "" {
		body["content"] = content
	}
	if link != "" {
		body["url"] = link
	}

	return m.call(ctx, http.MethodPost, "/posts", body, nil)
}

// feed fetches the personalized feed, or general posts when personalized is
// false. limit is clamped to [1,50], never rejected.
func (m *MoltbookModule) feed(ctx context.Context, params map[string]any) (any, error) {
	sortOrder := modules.StringParam(params, "sort")
	if sortOrder == "" {
		sortOrder = "new"
	}
	limit := modules.ClampInt(modules.IntParam(params, "limit", 10), 1, 50)

	q := url.Values{}
	q.Set("sort", sortOrder)
	q.Set("limit", strconv.Itoa(limit))

	path := "/feed"
	if !modules.BoolParam(params, "personalized", true) {
		path = "/posts"
		if submolt := modules.StringParam(params, "submolt"); submolt != "" {
			q.Set("submolt", submolt)
		}
	}

	return m.call(ctx, http.MethodGet, path+"?"+q.Encode(), nil, nil)
}

// search queries the search endpoint. The query must survive trimming with
// at least 2 characters; this is checked before any network call.
func (m *MoltbookModule) search(ctx context.Context, params map[string]any) (any, error) {
	query := modules.StringParam(params, "query")
	if utf8.RuneCountInString(query) < 2 {
		return nil, errors.Wrap(ErrInvalidArgument, "query must be at least 2 characters")
	}

	searchType := modules.StringParam(params, "type")
	if searchType == "" {
		searchType = "all"
	}
	limit := modules.ClampInt(modules.IntParam(params, "limit", 20), 1, 50)

	q := url.Values{}
	q.Set("q", query)
	q.Set("type", searchType)
	q.Set("limit", strconv.Itoa(limit))

	return m.call(ctx, http.MethodGet, "/search?"+q.Encode(), nil, nil)
}
