// Package tools is the declarative registry of AI-invocable tools:
// GitHub operations and context-store queries, with parameter validation,
// sanitization, and permission-gated execution.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Categories group tools for the prompt catalog.
const (
	CategoryGitHub  = "github"
	CategoryContext = "context"
)

// Permission tags. Write tools require chat WRITE (or a bound GitHub
// account with write); read tools require effective READ.
const (
	PermGitHubRead  = "github_read"
	PermGitHubWrite = "github_write"
	PermAIChat      = "ai_chat"
)

// Handler executes a tool with validated, sanitized parameters.
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Param describes one tool parameter. Order matters: signatures render
// required parameters first, in declaration order.
type Param struct {
	Name        string
	Type        string // "string", "int", "float", "bool", "array"
	Required    bool
	Default     interface{}
	Description string
}

// Definition is one registered tool.
type Definition struct {
	Name        string
	Category    string
	Description string
	Params      []Param
	Permission  string
	Handler     Handler
}

// Signature renders the canonical call format, required parameters first:
// [TOOL_CALL]name(owner=值, repo=值, [limit=值])[/TOOL_CALL]
func (d *Definition) Signature() string {
	var parts []string
	for _, p := range d.Params {
		if p.Required {
			parts = append(parts, p.Name+"=值")
		}
	}
	for _, p := range d.Params {
		if !p.Required {
			parts = append(parts, "["+p.Name+"=值]")
		}
	}
	return fmt.Sprintf("[TOOL_CALL]%s(%s)[/TOOL_CALL]", d.Name, strings.Join(parts, ", "))
}

// Registry holds tool definitions. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Definition
}

// NewRegistry creates a registry pre-loaded with the built-in GitHub and
// context tools. Handlers are attached later via Bind.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]*Definition)}
	for i := range builtinTools {
		r.Register(&builtinTools[i])
	}
	return r
}

// Register adds or replaces a definition.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = def
}

// Bind attaches an execution handler to a registered tool.
func (r *Registry) Bind(name string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("bind: unknown tool %q", name)
	}
	def.Handler = h
	return nil
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// List returns all tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByCategory returns tool names in a category, sorted.
func (r *Registry) ByCategory(category string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, def := range r.tools {
		if def.Category == category {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Catalog renders the tool list for the system prompt.
func (r *Registry) Catalog() string {
	var b strings.Builder
	for _, name := range r.List() {
		def, _ := r.Get(name)
		b.WriteString(fmt.Sprintf("- %s: %s\n  格式: %s\n", def.Name, def.Description, def.Signature()))
	}
	return b.String()
}
