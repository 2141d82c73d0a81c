package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chimeyao/ghrelay/internal/agent"
	"github.com/chimeyao/ghrelay/internal/config"
	"github.com/chimeyao/ghrelay/internal/contexts"
	"github.com/chimeyao/ghrelay/internal/ghapi"
)

const (
	maxActiveReviews = 100
	reviewTimeout    = 180 * time.Second
	reviewAttempts   = 3
	reviewerID       = "ai_reviewer"

	dismissMessage = "重复"
)

// Notify emits the synthetic ai_review event into the notification path.
type Notify func(event, repository string, payload map[string]interface{})

// RequestEvent is a pull_request review_requested event.
type RequestEvent struct {
	Repository string // "owner/repo"
	Number     int
	Title      string
	Body       string
	URL        string
	Sender     string
}

// Controller performs at most one concurrent review per pull request,
// bounded to 100 active entries.
type Controller struct {
	cfg    *config.Config
	gh     *ghapi.Client
	loop   *agent.Loop
	notify Notify

	mu     sync.Mutex
	active map[string]bool // "repo#number" -> completed
}

// NewController wires config, the GitHub client, and the AI loop.
// notify may be nil.
func NewController(cfg *config.Config, gh *ghapi.Client, loop *agent.Loop, notify Notify) *Controller {
	return &Controller{
		cfg:    cfg,
		gh:     gh,
		loop:   loop,
		notify: notify,
		active: make(map[string]bool),
	}
}

// HandleReviewRequest runs a review if the event targets the configured
// bot user on a repository with review enabled.
func (c *Controller) HandleReviewRequest(ctx context.Context, ev RequestEvent) error {
	repoCfg := c.cfg.Repo(ev.Repository)
	if repoCfg == nil || !repoCfg.AllowReview.Enabled {
		return nil
	}
	botUsername := repoCfg.AllowReview.BotUsername
	if botUsername == "" {
		slog.Warn("review enabled without bot username", "repository", ev.Repository)
		return nil
	}

	owner, repo, err := splitRepo(ev.Repository)
	if err != nil {
		return err
	}

	reviewers, err := c.gh.ReviewRequests(ctx, owner, repo, ev.Number)
	if err != nil {
		return fmt.Errorf("list review requests: %w", err)
	}
	requested := false
	for _, user := range reviewers {
		if user.GetLogin() == botUsername {
			requested = true
			break
		}
	}
	if !requested {
		return nil
	}

	if !c.cfg.AI.Enabled {
		return c.removeAndComment(ctx, owner, repo, ev.Number, botUsername, "🚫 本仓库未允许AI审查功能")
	}

	key := fmt.Sprintf("%s#%d", ev.Repository, ev.Number)
	if !c.acquire(key) {
		slog.Info("review skipped", "key", key, "reason", "already active or at capacity")
		return nil
	}
	defer c.complete(key)

	return c.perform(ctx, ev, owner, repo, botUsername)
}

// acquire reserves an active slot for a review key. At capacity only
// completed entries are evicted; with every slot still running the new
// review is rejected.
func (c *Controller) acquire(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if completed, ok := c.active[key]; ok && !completed {
		return false
	}

	if len(c.active) >= maxActiveReviews {
		for k, completed := range c.active {
			if completed && k != key {
				delete(c.active, k)
				if len(c.active) < maxActiveReviews {
					break
				}
			}
		}
		if len(c.active) >= maxActiveReviews {
			if _, ok := c.active[key]; !ok {
				return false
			}
		}
	}

	c.active[key] = false
	return true
}

func (c *Controller) complete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[key] = true
}

// ActiveCount reports how many review entries are tracked.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

func (c *Controller) perform(ctx context.Context, ev RequestEvent, owner, repo, botUsername string) error {
	slog.Info("review started", "repository", ev.Repository, "number", ev.Number)

	files, err := c.gh.ListPullRequestFiles(ctx, owner, repo, ev.Number)
	if err != nil || len(files) == 0 {
		slog.Warn("no file changes for review", "repository", ev.Repository, "number", ev.Number, "error", err)
		return c.removeAndComment(ctx, owner, repo, ev.Number, botUsername, "📝 无法获取PR文件变更信息")
	}

	prompt := BuildPrompt(ev.Repository, ev.Number, ev.Title, ev.Body, files)

	response, err := c.generate(ctx, ev, prompt)
	var result *Result
	if err != nil {
		result = ErrorResult(err.Error(), ev.Repository, ev.Number)
	} else {
		result = ParseResponse(response, ev.Repository, ev.Number)
	}
	result.Repair()

	botName := c.cfg.BotDisplayName()
	if result.Status == StatusFailed {
		body := fmt.Sprintf("审查遇到了一些问题呢\n\n> [!CAUTION]\n> 🔧 **错误信息**: %s\n\n\n---\n%s **%s**' GitHub Bot",
			result.Summary, ghapi.BotSignature, botName)
		return c.removeAndComment(ctx, owner, repo, ev.Number, botUsername, body)
	}

	c.hideOutdatedReviews(ctx, owner, repo, ev.Number, botUsername)

	_, err = c.gh.CreateReview(ctx, owner, repo, ev.Number, result.FormatBody(botName), result.Event(), result.LineComments())
	if err != nil {
		slog.Error("review submission failed", "repository", ev.Repository, "number", ev.Number, "error", err)
		return c.removeAndComment(ctx, owner, repo, ev.Number, botUsername, "审查结果提交失败")
	}
	slog.Info("review submitted", "repository", ev.Repository, "number", ev.Number,
		"score", result.Score, "event", result.Event())

	if err := c.gh.RemoveReviewRequest(ctx, owner, repo, ev.Number, []string{botUsername}); err != nil {
		slog.Warn("remove review request failed", "repository", ev.Repository, "number", ev.Number, "error", err)
	}

	if c.notify != nil {
		c.notify("ai_review", ev.Repository, map[string]interface{}{
			"repository":     map[string]interface{}{"full_name": ev.Repository},
			"pr_number":      ev.Number,
			"pr_url":         ev.URL,
			"review_status":  result.Status,
			"review_summary": result.Summary,
			"sender":         map[string]interface{}{"login": botUsername},
		})
	}
	return nil
}

// generate asks the model for a verdict with exponential back-off.
func (c *Controller) generate(ctx context.Context, ev RequestEvent, prompt string) (string, error) {
	contextID := contexts.FallbackContextID(contexts.TypePR, fmt.Sprintf("review:%s#%d", ev.Repository, ev.Number))

	var lastErr error
	for attempt := 0; attempt < reviewAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * time.Second):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, reviewTimeout)
		response, err := c.loop.Run(callCtx, agent.Request{
			ContextID:   contextID,
			ContextType: contexts.TypePR,
			UserID:      reviewerID,
			Content:     prompt,
			Repository:  ev.Repository,
		})
		cancel()
		if err == nil && strings.TrimSpace(response) != "" {
			return response, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("AI服务未返回有效响应")
		}
		slog.Warn("review attempt failed", "repository", ev.Repository, "number", ev.Number,
			"attempt", attempt+1, "error", lastErr)
	}
	return "", lastErr
}

// hideOutdatedReviews dismisses the bot's earlier non-approving reviews.
func (c *Controller) hideOutdatedReviews(ctx context.Context, owner, repo string, number int, botUsername string) {
	reviews, err := c.gh.ListReviews(ctx, owner, repo, number)
	if err != nil {
		slog.Warn("list reviews failed", "repository", owner+"/"+repo, "number", number, "error", err)
		return
	}
	for _, rv := range reviews {
		state := rv.GetState()
		if rv.GetUser().GetLogin() != botUsername || (state != "CHANGES_REQUESTED" && state != "COMMENTED") {
			continue
		}
		if err := c.gh.DismissReview(ctx, owner, repo, number, rv.GetID(), dismissMessage); err != nil {
			slog.Warn("dismiss review failed", "review_id", rv.GetID(), "error", err)
		}
	}
}

// removeAndComment posts (or updates) a bot status comment and removes
// the bot's review request.
func (c *Controller) removeAndComment(ctx context.Context, owner, repo string, number int, botUsername, body string) error {
	c.hideOutdatedReviews(ctx, owner, repo, number, botUsername)

	keywords := []string{"GitHub Bot", c.cfg.BotDisplayName()}
	existing, err := c.gh.FindBotComment(ctx, owner, repo, number, keywords, botUsername)
	if err != nil {
		slog.Warn("find bot comment failed", "repository", owner+"/"+repo, "number", number, "error", err)
	}
	if existing != nil {
		if _, err := c.gh.UpdateComment(ctx, owner, repo, existing.GetID(), body); err != nil {
			slog.Warn("update comment failed", "comment_id", existing.GetID(), "error", err)
		}
	} else {
		if _, err := c.gh.CreateComment(ctx, owner, repo, number, body); err != nil {
			slog.Warn("create comment failed", "repository", owner+"/"+repo, "number", number, "error", err)
		}
	}

	if err := c.gh.RemoveReviewRequest(ctx, owner, repo, number, []string{botUsername}); err != nil {
		return fmt.Errorf("remove review request: %w", err)
	}
	return nil
}

func splitRepo(repository string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("无效的仓库名称格式: %s", repository)
	}
	return owner, repo, nil
}
