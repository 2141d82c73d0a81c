// Package format turns raw GitHub webhook payloads into chat-ready
// notification content.
package format

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/chimeyao/ghrelay/internal/config"
)

// Content is a formatted notification ready for delivery.
type Content struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Body     string                 `json:"body"`
	URL      string                 `json:"url,omitempty"`
	Summary  string                 `json:"summary,omitempty"`
	Mentions []string               `json:"mentions,omitempty"`
	Priority int                    `json:"priority"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// eventIcons maps event types to their display icon.
var eventIcons = map[string]string{
	"push":                        "📤",
	"pull_request":                "🔀",
	"issues":                      "🐛",
	"release":                     "🚀",
	"star":                        "⭐",
	"fork":                        "🍴",
	"watch":                       "👀",
	"create":                      "🆕",
	"delete":                      "🗑️",
	"workflow_run":                "⚙️",
	"ai_review":                   "🤖",
	"system":                      "📋",
	"commit_comment":              "💬",
	"gollum":                      "📖",
	"member":                      "👥",
	"milestone":                   "🎯",
	"public":                      "🌍",
	"pull_request_review":         "👁️",
	"pull_request_review_comment": "💬",
	"repository":                  "📁",
	"status":                      "📊",
	"check_run":                   "✅",
	"check_suite":                 "📋",
	"deployment":                  "🚀",
	"deployment_status":           "📊",
	"page_build":                  "📄",
	"ping":                        "🏓",
	"default":                     "📋",
}

func icon(event string) string {
	if ic, ok := eventIcons[event]; ok {
		return ic
	}
	return eventIcons["default"]
}

// Formatter renders webhook events. The clock is injectable for tests.
type Formatter struct {
	cfg *config.Config
	now func() time.Time
}

// New creates a formatter bound to the current config.
func New(cfg *config.Config) *Formatter {
	return &Formatter{cfg: cfg, now: time.Now}
}

// SetConfig swaps the config after a hot reload.
func (f *Formatter) SetConfig(cfg *config.Config) { f.cfg = cfg }

type formatFunc func(*Formatter, map[string]interface{}, *config.RepoConfig) *Content

var formatters = map[string]formatFunc{
	"push":                        (*Formatter).formatPush,
	"pull_request":                (*Formatter).formatPullRequest,
	"issues":                      (*Formatter).formatIssues,
	"release":                     (*Formatter).formatRelease,
	"star":                        (*Formatter).formatStar,
	"fork":                        (*Formatter).formatFork,
	"watch":                       (*Formatter).formatWatch,
	"create":                      (*Formatter).formatCreate,
	"delete":                      (*Formatter).formatDelete,
	"workflow_run":                (*Formatter).formatWorkflowRun,
	"commit_comment":              (*Formatter).formatCommitComment,
	"gollum":                      (*Formatter).formatGollum,
	"member":                      (*Formatter).formatMember,
	"milestone":                   (*Formatter).formatMilestone,
	"public":                      (*Formatter).formatPublic,
	"pull_request_review":         (*Formatter).formatPRReview,
	"pull_request_review_comment": (*Formatter).formatPRReviewComment,
	"repository":                  (*Formatter).formatRepository,
	"status":                      (*Formatter).formatStatus,
	"check_run":                   (*Formatter).formatCheckRun,
	"check_suite":                 (*Formatter).formatCheckSuite,
	"deployment":                  (*Formatter).formatDeployment,
	"deployment_status":           (*Formatter).formatDeploymentStatus,
	"page_build":                  (*Formatter).formatPageBuild,
	"ping":                        (*Formatter).formatPing,
	"ai_review":                   (*Formatter).formatAIReview,
}

// Format renders an event payload. A nil result means the event was
// filtered (bot traffic, disabled event kinds, missed milestones).
func (f *Formatter) Format(event string, payload map[string]interface{}) *Content {
	repoName := str(obj(payload, "repository"), "full_name")
	rc := f.cfg.Repo(repoName)

	if f.shouldFilterBot(payload, rc) {
		slog.Debug("filtered bot-originated event", "event", event, "repo", repoName,
			"sender", str(obj(payload, "sender"), "login"))
		return nil
	}

	fn, ok := formatters[event]
	if !ok {
		slog.Warn("no formatter for event", "event", event, "repo", repoName)
		return f.formatDefault(event, payload, rc)
	}

	content := fn(f, payload, rc)
	if content != nil {
		content.Priority = priority(event, payload)
	}
	return content
}

// SystemMessage builds an operator-facing system notification.
func (f *Formatter) SystemMessage(source, level, message string) *Content {
	levelIcon := map[string]string{"info": "ℹ️", "warning": "⚠️", "error": "🚨"}[level]
	if levelIcon == "" {
		levelIcon = "📋"
	}
	return &Content{
		Type:  "system",
		Title: fmt.Sprintf("%s 系统消息 - %s", levelIcon, level),
		Body:  fmt.Sprintf("📡 来源: %s\n📝 消息: %s", source, message),
	}
}

// ErrorContent reports a formatting failure as a sendable message.
func ErrorContent(err error) *Content {
	return &Content{
		Type:  "system",
		Title: "❌ 消息格式化错误",
		Body:  fmt.Sprintf("格式化消息时发生错误: %v", err),
	}
}

// displayName prefers the configured alias over the repository full name.
func (f *Formatter) displayName(payload map[string]interface{}) string {
	repoName := str(obj(payload, "repository"), "full_name")
	if repoName == "" {
		return "Unknown"
	}
	return f.cfg.RepoDisplayName(repoName)
}

func (f *Formatter) timestamp() string {
	return f.now().Format("15:04:05")
}

const actionsBot = "github-actions[bot]"

// realPusher resolves who actually pushed, skipping the actions bot:
// pusher, then the latest commit's author, then the sender.
func realPusher(payload map[string]interface{}) string {
	if p := str(obj(payload, "pusher"), "name"); p != "" && p != actionsBot {
		return p
	}
	commits := arr(payload, "commits")
	if len(commits) > 0 {
		if latest, ok := commits[len(commits)-1].(map[string]interface{}); ok {
			author := obj(latest, "author")
			if u := str(author, "username"); u != "" && u != actionsBot {
				return u
			}
			if n := str(author, "name"); n != "" && n != actionsBot {
				return n
			}
		}
	}
	if s := str(obj(payload, "sender"), "login"); s != "" && s != actionsBot {
		return s
	}
	return "自动化"
}

// shouldFilterBot drops events produced by the relay's own review bot or
// by github-actions.
func (f *Formatter) shouldFilterBot(payload map[string]interface{}, rc *config.RepoConfig) bool {
	sender := str(obj(payload, "sender"), "login")
	if rc != nil && rc.AllowReview.BotUsername != "" && sender == rc.AllowReview.BotUsername {
		return true
	}
	if sender == actionsBot {
		return true
	}
	if str(obj(payload, "pusher"), "name") == actionsBot {
		return true
	}
	return false
}

// isStarMilestone reports whether the count is a configured milestone.
func (f *Formatter) isStarMilestone(count int) bool {
	ms := f.cfg.Notify.StarMilestones
	if !ms.Enabled {
		return false
	}
	for _, target := range ms.Targets {
		if count == target {
			return true
		}
	}
	return false
}

// priority maps message types to a 1-10 send priority with situational bumps.
func priority(event string, payload map[string]interface{}) int {
	base := map[string]int{
		"system":       9,
		"ai_review":    8,
		"release":      7,
		"pull_request": 6,
		"issues":       5,
		"workflow_run": 4,
		"push":         3,
		"star":         2,
		"fork":         2,
		"watch":        1,
		"create":       1,
		"delete":       1,
	}
	p, ok := base[event]
	if !ok {
		p = 5
	}

	action := str(payload, "action")
	switch event {
	case "pull_request", "issues":
		if action == "opened" || action == "closed" {
			p++
		}
	case "workflow_run":
		if str(obj(payload, "workflow_run"), "conclusion") == "failure" {
			p += 2
		}
	}

	if p > 10 {
		p = 10
	}
	return p
}

// Payload accessors. Webhook payloads decode to map[string]interface{} with
// float64 numbers.

func obj(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]interface{})
	return v
}

func arr(m map[string]interface{}, key string) []interface{} {
	if m == nil {
		return nil
	}
	v, _ := m[key].([]interface{})
	return v
}

func str(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func strOr(m map[string]interface{}, key, fallback string) string {
	if s := str(m, key); s != "" {
		return s
	}
	return fallback
}

func num(m map[string]interface{}, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func boolVal(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	v, _ := m[key].(bool)
	return v
}
