package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-github/v72/github"

	"github.com/chimeyao/ghrelay/internal/contexts"
	"github.com/chimeyao/ghrelay/internal/ghapi"
)

// Comment is one GitHub issue or PR comment event routed to the bot.
type Comment struct {
	Repository  string // "owner/repo"
	Number      int
	IsPR        bool
	CommentID   int64
	Author      string
	Body        string
	Action      string // "created", "edited", "deleted"
	BotUsername string
}

// Replier answers GitHub comments that mention the bot and keeps those
// answers consistent when the source comment is edited or deleted.
type Replier struct {
	gh        *ghapi.Client
	loop      *Loop
	ctxStore  *contexts.Manager
	statusFor func(repository string) Statuser
}

// NewReplier wires the GitHub client, conversation loop, and context store.
func NewReplier(gh *ghapi.Client, loop *Loop, ctxStore *contexts.Manager) *Replier {
	return &Replier{gh: gh, loop: loop, ctxStore: ctxStore}
}

// SetStatusFactory installs a per-repository status sink so write
// operations triggered by comments report progress into the repo's chat
// group. May return nil for repos without one.
func (r *Replier) SetStatusFactory(f func(repository string) Statuser) { r.statusFor = f }

// HandleComment routes one comment event. Bot-authored comments are
// ignored; unmentioned new comments are ignored.
func (r *Replier) HandleComment(ctx context.Context, c Comment) error {
	if c.BotUsername == "" || c.Author == c.BotUsername {
		return nil
	}
	mentioned := strings.Contains(c.Body, "@"+c.BotUsername)

	switch c.Action {
	case "edited":
		return r.handleEdited(ctx, c, mentioned)
	case "deleted":
		return r.handleDeleted(ctx, c)
	}

	if !mentioned {
		return nil
	}
	return r.reply(ctx, c)
}

// reply generates an answer and posts it as a quoted comment.
func (r *Replier) reply(ctx context.Context, c Comment) error {
	body, err := r.generate(ctx, c)
	if err != nil {
		return err
	}
	if body == "" {
		return nil
	}

	owner, repo, err := splitRepo(c.Repository)
	if err != nil {
		return err
	}
	posted, err := r.gh.CreateComment(ctx, owner, repo, c.Number, body)
	if err != nil {
		return fmt.Errorf("post reply: %w", err)
	}

	ctxID := r.contextID(c)
	if conv := r.ctxStore.Get(ctxID); conv != nil {
		conv.AddMessage(contexts.Message{
			Role:    "assistant",
			Content: body,
			Metadata: map[string]interface{}{
				"reply_to_comment_id": c.CommentID,
				"bot_comment_id":      posted.GetID(),
			},
		})
		if err := r.ctxStore.Save(ctxID); err != nil {
			slog.Warn("save context failed", "context", ctxID, "error", err)
		}
	}
	slog.Info("reply posted", "repository", c.Repository, "number", c.Number, "comment_id", posted.GetID())
	return nil
}

// generate runs the conversation loop and wraps the answer with the
// quoted source comment and the bot signature.
func (r *Replier) generate(ctx context.Context, c Comment) (string, error) {
	var status Statuser
	if r.statusFor != nil {
		status = r.statusFor(c.Repository)
	}
	out, err := r.loop.RunDetailed(ctx, Request{
		ContextID:   r.contextID(c),
		ContextType: r.contextType(c),
		UserID:      c.Author,
		Content:     c.Body,
		Repository:  c.Repository,
		Metadata:    map[string]interface{}{"comment_id": c.CommentID, "action": c.Action},
		Status:      status,
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if out.Reply == "" {
		return "", nil
	}
	return QuoteReply(out.Reply, c.Author, c.Body) + "\n\n" + Signature(r.loop.cfg.BotDisplayName(), out.ToolRuns), nil
}

// handleEdited regenerates or retracts the bot's answer after the source
// comment changed.
func (r *Replier) handleEdited(ctx context.Context, c Comment, mentioned bool) error {
	owner, repo, err := splitRepo(c.Repository)
	if err != nil {
		return err
	}
	existing, err := r.findBotReplies(ctx, owner, repo, c.Number, c.BotUsername)
	if err != nil {
		return err
	}

	if !mentioned {
		if len(existing) == 0 {
			return nil
		}
		slog.Info("mention removed, deleting bot replies", "repository", c.Repository, "number", c.Number, "count", len(existing))
		for _, comment := range existing {
			if err := r.gh.DeleteComment(ctx, owner, repo, comment.GetID()); err != nil {
				slog.Warn("delete bot reply failed", "comment_id", comment.GetID(), "error", err)
			}
		}
		return nil
	}

	body, err := r.generate(ctx, c)
	if err != nil {
		return err
	}
	if body == "" {
		return nil
	}

	if len(existing) == 0 {
		_, err := r.gh.CreateComment(ctx, owner, repo, c.Number, body)
		if err != nil {
			return fmt.Errorf("post reply: %w", err)
		}
		return nil
	}
	for _, comment := range existing {
		if _, err := r.gh.UpdateComment(ctx, owner, repo, comment.GetID(), body); err != nil {
			slog.Warn("update bot reply failed", "comment_id", comment.GetID(), "error", err)
		}
	}
	return nil
}

// handleDeleted removes the bot's answers and purges the deleted comment
// from conversation state.
func (r *Replier) handleDeleted(ctx context.Context, c Comment) error {
	owner, repo, err := splitRepo(c.Repository)
	if err != nil {
		return err
	}
	existing, err := r.findBotReplies(ctx, owner, repo, c.Number, c.BotUsername)
	if err != nil {
		return err
	}
	for _, comment := range existing {
		if err := r.gh.DeleteComment(ctx, owner, repo, comment.GetID()); err != nil {
			slog.Warn("delete bot reply failed", "comment_id", comment.GetID(), "error", err)
		}
	}

	ctxID := r.contextID(c)
	conv := r.ctxStore.Get(ctxID)
	if conv == nil {
		return nil
	}
	removed := conv.RemoveMessages(func(m contexts.Message) bool {
		return metaInt64(m.Metadata, "comment_id") == c.CommentID ||
			metaInt64(m.Metadata, "reply_to_comment_id") == c.CommentID
	})
	if removed > 0 {
		if err := r.ctxStore.Save(ctxID); err != nil {
			slog.Warn("save context failed", "context", ctxID, "error", err)
		}
		slog.Info("context messages purged", "context", ctxID, "count", removed)
	}
	return nil
}

// findBotReplies lists the bot's own signed or self-mentioning comments
// in the thread.
func (r *Replier) findBotReplies(ctx context.Context, owner, repo string, number int, botUsername string) ([]*github.IssueComment, error) {
	all, err := r.gh.ListComments(ctx, owner, repo, number, "created", "asc", 600)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	var replies []*github.IssueComment
	for _, comment := range all {
		if comment.GetUser().GetLogin() != botUsername {
			continue
		}
		body := comment.GetBody()
		if strings.Contains(body, ghapi.BotSignature) || strings.Contains(body, "@"+botUsername) {
			replies = append(replies, comment)
		}
	}
	return replies, nil
}

func (r *Replier) contextID(c Comment) string {
	if c.IsPR {
		return contexts.PRContextID(c.Repository, c.Number)
	}
	return contexts.IssueContextID(c.Repository, c.Number)
}

func (r *Replier) contextType(c Comment) contexts.Type {
	if c.IsPR {
		return contexts.TypePR
	}
	return contexts.TypeIssue
}

// QuoteReply prefixes the reply with @author and the quoted source
// comment, trimmed to its first three lines.
func QuoteReply(reply, author, original string) string {
	lines := strings.Split(strings.TrimSpace(original), "\n")
	if len(lines) > 3 {
		lines = append(lines[:3], "...")
	}
	quoted := make([]string, 0, len(lines))
	for _, line := range lines {
		quoted = append(quoted, "> "+line)
	}
	return fmt.Sprintf("@%s\n\n%s\n\n%s", author, strings.Join(quoted, "\n"), reply)
}

// Signature renders the trailing bot signature with collapsible
// execution details.
func Signature(botName string, runs []ToolRun) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString(ghapi.BotSignature)
	b.WriteString(fmt.Sprintf(" **%s**' GitHub Bot\n\n<details><summary>🔧 执行详情</summary>\n<p>\n\n", botName))

	if len(runs) > 0 {
		var succeeded, failed []ToolRun
		for _, run := range runs {
			if run.Success {
				succeeded = append(succeeded, run)
			} else {
				failed = append(failed, run)
			}
		}
		b.WriteString(fmt.Sprintf("**执行统计**: %d/%d 个工具成功\n\n", len(succeeded), len(runs)))
		if len(succeeded) > 0 {
			b.WriteString("**成功执行的工具**:\n")
			for _, run := range succeeded {
				if run.Seconds > 0 {
					b.WriteString(fmt.Sprintf("  - %s (%.2fs)\n", run.Tool, run.Seconds))
				} else {
					b.WriteString(fmt.Sprintf("  - %s\n", run.Tool))
				}
			}
			b.WriteString("\n")
		}
		if len(failed) > 0 {
			b.WriteString("**执行失败的工具**:\n")
			for _, run := range failed {
				errMsg := run.Error
				if errMsg == "" {
					errMsg = "未知错误"
				}
				b.WriteString(fmt.Sprintf("  - %s: %s\n", run.Tool, errMsg))
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("**使用服务**: GitHub API\n")
	}

	b.WriteString("\n</p>\n</details>")
	return b.String()
}

func splitRepo(repository string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("无效的仓库名称格式: %s", repository)
	}
	return owner, repo, nil
}

func metaInt64(meta map[string]interface{}, key string) int64 {
	if meta == nil {
		return 0
	}
	switch v := meta[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
