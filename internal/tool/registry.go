package tool

import (
	"sync"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/opencode/internal/logging"
)

// Registry manages tool registration and lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.ID()]; !exists {
		r.order = append(r.order, t.ID())
	}
	r.tools[t.ID()] = t
	logging.Debug().Str("tool", t.ID()).Msg("registered tool")
}

// Get retrieves a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.order))
	for _, id := range r.order {
		tools = append(tools, r.tools[id])
	}
	return tools
}

// IDs returns all tool IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// EinoTools returns Eino-compatible tools for model binding.
func (r *Registry) EinoTools() []einotool.BaseTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]einotool.BaseTool, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tools[id].EinoTool())
	}
	return out
}

// ToolInfos returns Eino ToolInfo for every registered tool.
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.ToolInfo, 0, len(r.order))
	for _, id := range r.order {
		t := r.tools[id]
		params := parseJSONSchemaToParams(t.Parameters())
		out = append(out, &schema.ToolInfo{
			Name:        t.ID(),
			Desc:        t.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return out
}

// Subset returns a new Registry containing only the named tools, preserving
// their original registration order. Used to build the reduced tool set a
// spawn_subagent nested loop runs with: no nested subagents, no shell.
func (r *Registry) Subset(ids ...string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	sub := NewRegistry()
	for _, id := range r.order {
		if want[id] {
			sub.Register(r.tools[id])
		}
	}
	return sub
}

// FullToolIDs is the complete top-level tool set a TurnRunner dispatches.
var FullToolIDs = []string{"read_file", "write_file", "apply_patch", "search", "http_fetch", "spawn_subagent"}

// SubagentToolIDs is the reduced tool set a nested subagent loop dispatches:
// no spawn_subagent (bounded recursion depth, not unbounded nesting).
var SubagentToolIDs = []string{"read_file", "write_file", "apply_patch", "search", "http_fetch"}

// NewDefaultRegistry builds a Registry with every top-level tool, rooted at
// allowedRoot and wired to launcher for spawn_subagent.
func NewDefaultRegistry(allowedRoot string, launcher SubagentLauncher) *Registry {
	r := NewRegistry()
	r.Register(NewReadFileTool(allowedRoot))
	r.Register(NewWriteFileTool(allowedRoot))
	r.Register(NewApplyPatchTool(allowedRoot))
	r.Register(NewSearchTool(allowedRoot))
	r.Register(NewHTTPFetchTool())
	r.Register(NewSpawnSubagentTool(launcher))
	return r
}

// NewSubagentRegistry builds the reduced Registry a nested agent loop uses.
func NewSubagentRegistry(allowedRoot string) *Registry {
	r := NewRegistry()
	r.Register(NewReadFileTool(allowedRoot))
	r.Register(NewWriteFileTool(allowedRoot))
	r.Register(NewApplyPatchTool(allowedRoot))
	r.Register(NewSearchTool(allowedRoot))
	r.Register(NewHTTPFetchTool())
	return r
}
