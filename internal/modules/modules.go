package modules

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"moltbridge/server/internal/middleware"
	"moltbridge/server/internal/observability"
)

// =============================================================================
// Registry
// =============================================================================

// registration binds one tool definition to the module that executes it.
type registration struct {
	module Module
	tool   Tool
}

var (
	regMu    sync.RWMutex
	registry = make(map[string]*registration)
)

// RegisterOptions controls per-tool registration. Tools named in
// DisabledTools are skipped; unknown names are logged and ignored so a stale
// disable list cannot fail the registration.
type RegisterOptions struct {
	DisabledTools []string
}

// Register adds each of the module's tools to the registry individually.
// Disabling one tool never affects the others.
func Register(m Module, opts RegisterOptions) {
	disabled := make(map[string]bool, len(opts.DisabledTools))
	for _, name := range opts.DisabledTools {
		disabled[name] = true
	}

	regMu.Lock()
	defer regMu.Unlock()
	for _, tool := range m.Tools() {
		if disabled[tool.Name] || disabled[tool.ID] {
			log.Printf("[modules] tool %s disabled by host configuration", tool.Name)
			delete(disabled, tool.Name)
			delete(disabled, tool.ID)
			continue
		}
		registry[tool.Name] = &registration{module: m, tool: tool}
	}
	for name := range disabled {
		log.Printf("[modules] WARNING: disable list names unknown tool %q, ignoring", name)
	}
}

// ListTools returns all registered tool definitions, sorted by name for
// stable tools/list responses.
func ListTools() []Tool {
	regMu.RLock()
	defer regMu.RUnlock()
	tools := make([]Tool, 0, len(registry))
	for _, reg := range registry {
		tools = append(tools, reg.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

func lookup(toolName string) (*registration, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	reg, ok := registry[toolName]
	return reg, ok
}

// =============================================================================
// Tool Execution
// =============================================================================

// Run executes a registered tool: validates params against the tool's input
// schema, executes it, and wraps the outcome in the uniform result envelope.
// Tool-level failures come back as IsError envelopes, not Go errors.
func Run(ctx context.Context, toolName string, params map[string]any) (*ToolCallResult, error) {
	start := time.Now()

	reg, ok := lookup(toolName)
	if !ok {
		return errorEnvelope(fmt.Sprintf("unknown tool: %s", toolName)), nil
	}

	validated, err := ValidateParams(reg.tool.InputSchema, params)
	if err != nil {
		return errorEnvelope(err.Error()), nil
	}

	ctx, span := observability.StartToolSpan(ctx, reg.module.Name(), toolName)
	details, err := reg.module.ExecuteTool(ctx, toolName, validated)
	observability.EndSpan(span, err)

	durationMs := time.Since(start).Milliseconds()
	requestID := middleware.GetRequestID(ctx)
	clientID := ""
	if authCtx := middleware.GetAuthContext(ctx); authCtx != nil {
		clientID = authCtx.ClientID
	}

	if err != nil {
		observability.LogToolCall(requestID, clientID, reg.module.Name(), toolName, durationMs, "error", err.Error())
		observability.RecordToolCall(ctx, toolName, "error", durationMs)
		return errorEnvelope(err.Error()), nil
	}

	observability.LogToolCall(requestID, clientID, reg.module.Name(), toolName, durationMs, "success", "")
	observability.RecordToolCall(ctx, toolName, "success", durationMs)
	return Envelope(details)
}

// Envelope wraps a decoded result value in the uniform success shape: one
// pretty-printed text block plus the raw value under details.
func Envelope(details any) (*ToolCallResult, error) {
	text, err := ToPrettyJSON(details)
	if err != nil {
		return nil, err
	}
	return &ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		Details: details,
	}, nil
}

func errorEnvelope(msg string) *ToolCallResult {
	return &ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: msg}},
		IsError: true,
	}
}
