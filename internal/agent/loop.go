// Package agent runs the multi-turn AI conversation loop: prompt
// assembly, tool-call parsing and execution, per-user rate limits, and
// the write-operation status protocol for group chats.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chimeyao/ghrelay/internal/config"
	"github.com/chimeyao/ghrelay/internal/contexts"
	"github.com/chimeyao/ghrelay/internal/parser"
	"github.com/chimeyao/ghrelay/internal/providers"
	"github.com/chimeyao/ghrelay/internal/tools"
)

const (
	maxTurns        = 15
	maxMessageChars = 4000
)

var endTokenPattern = regexp.MustCompile(`(?i)\[\s*(?:END|DONE|COMPLETE|FINISHED|对话结束|完成)\s*\]`)

var tracer = otel.Tracer("ghrelay/agent")

// Statuser posts and recalls transient status messages in the chat that
// initiated the conversation. Nil when the conversation has no chat side.
type Statuser interface {
	PostStatus(ctx context.Context, text string) (int64, error)
	RecallStatus(ctx context.Context, messageID int64) error
}

// Request is one inbound message for the loop.
type Request struct {
	ContextID   string
	ContextType contexts.Type
	UserID      string
	Content     string
	Repository  string
	Metadata    map[string]interface{}
	Status      Statuser
}

// ToolRun records one tool execution within a conversation.
type ToolRun struct {
	Tool    string
	Success bool
	Error   string
	Seconds float64
}

// Outcome is the result of a full conversation run.
type Outcome struct {
	Reply    string
	Turns    int
	ToolRuns []ToolRun
}

// Loop drives the model until it answers, signals completion, or hits
// the turn cap, executing tool calls between turns.
type Loop struct {
	cfg      *config.Config
	provider providers.Provider
	executor *tools.Executor
	contexts *contexts.Manager
	limiter  *Limiter
}

// NewLoop wires the provider, tool executor, and context store.
func NewLoop(cfg *config.Config, provider providers.Provider, executor *tools.Executor, ctxStore *contexts.Manager) *Loop {
	return &Loop{
		cfg:      cfg,
		provider: provider,
		executor: executor,
		contexts: ctxStore,
		limiter:  NewLimiter(),
	}
}

// Limiter exposes the per-user rate limiter for maintenance pruning.
func (l *Loop) Limiter() *Limiter { return l.limiter }

// Run handles one inbound message and returns the final reply text.
func (l *Loop) Run(ctx context.Context, req Request) (string, error) {
	out, err := l.RunDetailed(ctx, req)
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

// RunDetailed is Run plus per-tool execution details.
func (l *Loop) RunDetailed(ctx context.Context, req Request) (*Outcome, error) {
	if utf8.RuneCountInString(req.Content) > maxMessageChars {
		return &Outcome{Reply: fmt.Sprintf("消息过长, 请控制在%d字符以内", maxMessageChars)}, nil
	}
	if ok, msg := l.limiter.Allow(req.UserID, OpRequest); !ok {
		return &Outcome{Reply: msg}, nil
	}

	conv := l.contexts.GetOrCreate(req.ContextID, req.ContextType)
	conv.SetRepository(req.Repository)
	conv.AddMessage(contexts.Message{Role: "user", Content: req.Content, Metadata: req.Metadata})

	registry := l.executor.Registry()
	messages := buildMessages(registry, conv)

	out := &Outcome{}
	var lastResponse string
	slog.Info("conversation started", "context", req.ContextID, "user", req.UserID)

	for turn := 1; turn <= maxTurns; turn++ {
		out.Turns = turn
		if ok, msg := l.limiter.Allow(req.UserID, OpAICall); !ok {
			return l.finish(conv, out, msg), nil
		}

		content, err := l.chat(ctx, turn, messages)
		if err != nil {
			return nil, fmt.Errorf("模型调用失败: %w", err)
		}
		messages = append(messages, providers.Message{Role: "assistant", Content: content})
		lastResponse = content
		slog.Debug("turn completed", "turn", turn, "length", len(content))

		if endTokenPattern.MatchString(content) {
			slog.Info("conversation ended", "context", req.ContextID, "turn", turn, "reason", "end_token")
			return l.finish(conv, out, cleanResponse(content)), nil
		}

		calls := parser.Parse(content, nil)
		if len(calls) == 0 {
			slog.Info("conversation ended", "context", req.ContextID, "turn", turn, "reason", "no_tool_calls")
			return l.finish(conv, out, cleanResponse(content)), nil
		}

		wrote := false
		var results []string
		for _, call := range calls {
			res := l.runTool(ctx, req, call)
			out.ToolRuns = append(out.ToolRuns, ToolRun{
				Tool:    call.Name,
				Success: res.Success,
				Error:   res.Error,
				Seconds: res.ExecutionTime,
			})
			if res.Success && l.executor.IsWriteTool(call.Name) {
				wrote = true
			}
			results = append(results, formatResult(call.Name, res))
		}

		if wrote {
			// The status protocol already told the chat what happened.
			slog.Info("conversation ended", "context", req.ContextID, "turn", turn, "reason", "write_operation")
			return l.finish(conv, out, ""), nil
		}

		messages = append(messages, providers.Message{
			Role:    "user",
			Content: "工具执行结果:\n" + strings.Join(results, "\n"),
		})
	}

	slog.Warn("turn cap reached", "context", req.ContextID, "user", req.UserID, "max_turns", maxTurns)
	if reply := cleanResponse(lastResponse); reply != "" {
		return l.finish(conv, out, reply), nil
	}
	return l.finish(conv, out, "对话轮数已达上限"), nil
}

func (l *Loop) chat(ctx context.Context, turn int, messages []providers.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.Int("turn", turn),
		attribute.String("model", l.cfg.AI.Model),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, l.cfg.AITimeout())
	defer cancel()

	options := map[string]interface{}{}
	if l.cfg.AI.MaxTokens > 0 {
		options[providers.OptMaxTokens] = l.cfg.AI.MaxTokens
	}
	if l.cfg.AI.Temperature > 0 {
		options[providers.OptTemperature] = l.cfg.AI.Temperature
	}

	start := time.Now()
	resp, err := l.provider.Chat(callCtx, providers.ChatRequest{
		Messages: messages,
		Model:    l.cfg.AI.Model,
		Options:  options,
	})
	if err != nil {
		return "", err
	}
	slog.Debug("model call", "model", l.cfg.AI.Model, "elapsed", time.Since(start))
	return strings.TrimSpace(resp.Content), nil
}

// runTool executes one call, wrapping write operations in the status
// message protocol when a chat target is attached.
func (l *Loop) runTool(ctx context.Context, req Request, call parser.Call) *tools.Result {
	isWrite := l.executor.IsWriteTool(call.Name)

	var statusID int64
	if isWrite && req.Status != nil {
		text := fmt.Sprintf("正在执行GitHub操作...\n\n执行操作: %s\n目标: %s\n触发人: %s",
			ActionDisplayName(call.Name), TargetRepository(call.Params), req.UserID)
		id, err := req.Status.PostStatus(ctx, text)
		if err != nil {
			slog.Warn("status message failed", "tool", call.Name, "error", err)
		} else {
			statusID = id
		}
	}

	var res *tools.Result
	if ok, msg := l.limiter.Allow(req.UserID, OpToolCall); !ok {
		res = &tools.Result{Success: false, Error: msg}
	} else {
		res = l.executor.Execute(ctx, req.UserID, call.Name, call.Params)
	}

	if isWrite && req.Status != nil {
		if statusID != 0 {
			if err := req.Status.RecallStatus(ctx, statusID); err != nil {
				slog.Warn("status recall failed", "message_id", statusID, "error", err)
			}
		}
		var text string
		if res.Success {
			text = fmt.Sprintf("GitHub操作执行成功\n\n执行操作: %s\n目标: %s\n触发人: %s",
				ActionDisplayName(call.Name), TargetRepository(call.Params), req.UserID)
		} else {
			text = fmt.Sprintf("GitHub操作执行失败\n\n原因: %s\n执行操作: %s\n目标: %s\n触发人: %s",
				res.Error, ActionDisplayName(call.Name), TargetRepository(call.Params), req.UserID)
		}
		if _, err := req.Status.PostStatus(ctx, text); err != nil {
			slog.Warn("status message failed", "tool", call.Name, "error", err)
		}
	}
	return res
}

// finish records the assistant reply in the context and saves it.
func (l *Loop) finish(conv *contexts.Context, out *Outcome, reply string) *Outcome {
	if reply != "" {
		conv.AddMessage(contexts.Message{Role: "assistant", Content: reply})
	}
	if err := l.contexts.Save(conv.ID); err != nil {
		slog.Warn("save context failed", "context", conv.ID, "error", err)
	}
	out.Reply = reply
	return out
}

// cleanResponse strips end tokens and tool-call markup for delivery.
func cleanResponse(text string) string {
	return strings.TrimSpace(parser.Strip(endTokenPattern.ReplaceAllString(text, "")))
}

func formatResult(name string, res *tools.Result) string {
	if !res.Success {
		errMsg := res.Error
		if errMsg == "" {
			errMsg = "未知错误"
		}
		return fmt.Sprintf("%s: %s", name, errMsg)
	}
	switch data := res.Data.(type) {
	case nil:
		return fmt.Sprintf("%s: ", name)
	case string:
		return fmt.Sprintf("%s: %s", name, data)
	default:
		encoded, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Sprintf("%s: %v", name, data)
		}
		return fmt.Sprintf("%s: %s", name, encoded)
	}
}

// actionNames maps write tools to their chat-facing display names.
var actionNames = map[string]string{
	"create_issue":        "创建Issue",
	"update_issue":        "更新Issue",
	"close_issue":         "关闭Issue",
	"add_comment":         "添加评论",
	"update_comment":      "更新评论",
	"delete_comment":      "删除评论",
	"create_pull_request": "创建PR",
	"update_pull_request": "更新PR",
	"merge_pull_request":  "合并PR",
	"create_label":        "创建标签",
	"add_labels":          "添加标签",
}

// ActionDisplayName returns the human-readable name for a write tool.
func ActionDisplayName(tool string) string {
	if name, ok := actionNames[tool]; ok {
		return name
	}
	return tool
}

// TargetRepository extracts "owner/repo" from tool parameters.
func TargetRepository(params map[string]interface{}) string {
	owner, _ := params["owner"].(string)
	repo, _ := params["repo"].(string)
	if owner != "" && repo != "" {
		return owner + "/" + repo
	}
	return "未知仓库"
}
