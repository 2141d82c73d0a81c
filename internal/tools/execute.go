package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chimeyao/ghrelay/internal/permissions"
)

// Result is the unified return type from tool execution.
type Result struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Error         string      `json:"error,omitempty"`
	ExecutionTime float64     `json:"execution_time"`
}

// Executor validates, sanitizes, permission-checks, and runs tool calls.
type Executor struct {
	registry *Registry
	perms    *permissions.Store
}

// NewExecutor wires the registry to the permission store.
func NewExecutor(registry *Registry, perms *permissions.Store) *Executor {
	return &Executor{registry: registry, perms: perms}
}

// Registry exposes the underlying registry for prompt building.
func (e *Executor) Registry() *Registry { return e.registry }

// Allowed reports whether the chat user may run the named tool.
// Write tools need chat WRITE or a bound GitHub account with write access;
// read tools need effective READ. Superusers pass everything.
func (e *Executor) Allowed(chatID, name string) (bool, string) {
	def, ok := e.registry.Get(name)
	if !ok {
		return false, fmt.Sprintf("未知工具: %s", name)
	}
	if e.perms.IsSuperuser(chatID) {
		return true, ""
	}
	switch def.Permission {
	case PermGitHubWrite:
		if !e.perms.CanWrite(chatID) {
			return false, fmt.Sprintf("权限不足: 工具 '%s' 需要写权限", name)
		}
	default:
		if e.perms.EffectiveChatLevel(chatID) < permissions.ChatRead {
			return false, fmt.Sprintf("权限不足: 工具 '%s' 需要读权限", name)
		}
	}
	return true, ""
}

// Execute runs one tool call end to end. Errors are folded into the
// Result; the returned Result is never nil.
func (e *Executor) Execute(ctx context.Context, chatID, name string, params map[string]interface{}) *Result {
	start := time.Now()
	fail := func(msg string) *Result {
		return &Result{Success: false, Error: msg, ExecutionTime: time.Since(start).Seconds()}
	}

	if ok, reason := e.Allowed(chatID, name); !ok {
		slog.Warn("tool call denied", "tool", name, "chat_id", chatID, "reason", reason)
		return fail(reason)
	}

	validated, err := e.registry.Validate(name, params)
	if err != nil {
		return fail(err.Error())
	}
	if err := CheckSafety(validated); err != nil {
		slog.Warn("tool call rejected", "tool", name, "chat_id", chatID, "error", err)
		return fail(err.Error())
	}
	clean := Sanitize(validated)

	def, _ := e.registry.Get(name)
	if def.Handler == nil {
		return fail(fmt.Sprintf("工具 '%s' 未实现", name))
	}

	data, err := def.Handler(ctx, clean)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		slog.Error("tool execution failed", "tool", name, "error", err, "elapsed", elapsed)
		return &Result{Success: false, Error: err.Error(), ExecutionTime: elapsed}
	}
	slog.Debug("tool executed", "tool", name, "chat_id", chatID, "elapsed", elapsed)
	return &Result{Success: true, Data: data, ExecutionTime: elapsed}
}

// IsWriteTool reports whether the named tool mutates GitHub state.
// The agent loop uses this to run the status-message protocol.
func (e *Executor) IsWriteTool(name string) bool {
	def, ok := e.registry.Get(name)
	return ok && def.Permission == PermGitHubWrite
}
