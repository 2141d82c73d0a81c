package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chimeyao/ghrelay/internal/agent"
	"github.com/chimeyao/ghrelay/internal/aggregate"
	"github.com/chimeyao/ghrelay/internal/chat"
	"github.com/chimeyao/ghrelay/internal/config"
	"github.com/chimeyao/ghrelay/internal/format"
	"github.com/chimeyao/ghrelay/internal/ghapi"
	"github.com/chimeyao/ghrelay/internal/review"
)

// notificationTypeMapping folds comment-ish events onto the message
// type their formatter understands.
var notificationTypeMapping = map[string]string{
	"issue_comment":               "issues",
	"pull_request_review":         "pull_request",
	"pull_request_review_comment": "pull_request",
}

// NotificationHandler formats an event and feeds it to the aggregator
// for every group the repository notifies.
func NotificationHandler(cfg *config.Config, formatter *format.Formatter, agg *aggregate.Aggregator) Handler {
	return func(ctx context.Context, ev *Event) error {
		rc := cfg.Repo(ev.Repository)
		if rc == nil {
			return nil
		}
		if !rc.MessageTypeAllowed(ev.Type) {
			slog.Debug("message type not allowed", "repository", ev.Repository, "type", ev.Type)
			return nil
		}

		messageType := ev.Type
		if mapped, ok := notificationTypeMapping[ev.Type]; ok {
			messageType = mapped
		}
		content := formatter.Format(messageType, ev.Payload)
		if content == nil {
			return nil
		}

		for _, groupID := range rc.GroupIDs {
			target := chat.GroupTarget(groupID)
			agg.Add(ev.Repository+"|"+target, target, content)
		}
		return nil
	}
}

// ReviewHandler feeds review_requested pull_request events into the
// review controller.
func ReviewHandler(ctrl *review.Controller) Handler {
	return func(ctx context.Context, ev *Event) error {
		if str(ev.Payload, "action") != "review_requested" {
			return nil
		}
		pr := obj(ev.Payload, "pull_request")
		if pr == nil {
			return fmt.Errorf("review_requested event without pull_request")
		}
		return ctrl.HandleReviewRequest(ctx, review.RequestEvent{
			Repository: ev.Repository,
			Number:     num(pr, "number"),
			Title:      str(pr, "title"),
			Body:       str(pr, "body"),
			URL:        str(pr, "html_url"),
			Sender:     str(obj(ev.Payload, "sender"), "login"),
		})
	}
}

// CommentHandler relays issue and PR comments to the AI replier when
// the repository has a bot username configured.
func CommentHandler(cfg *config.Config, replier *agent.Replier) Handler {
	return func(ctx context.Context, ev *Event) error {
		rc := cfg.Repo(ev.Repository)
		if rc == nil || rc.AllowReview.BotUsername == "" {
			return nil
		}

		comment := obj(ev.Payload, "comment")
		if comment == nil {
			return nil
		}

		issue := obj(ev.Payload, "issue")
		pr := obj(ev.Payload, "pull_request")
		var number int
		var isPR bool
		switch {
		case issue != nil:
			number = num(issue, "number")
			isPR = obj(issue, "pull_request") != nil
		case pr != nil:
			number = num(pr, "number")
			isPR = true
		default:
			return nil
		}

		return replier.HandleComment(ctx, agent.Comment{
			Repository:  ev.Repository,
			Number:      number,
			IsPR:        isPR,
			CommentID:   int64(num(comment, "id")),
			Author:      str(obj(comment, "user"), "login"),
			Body:        str(comment, "body"),
			Action:      str(ev.Payload, "action"),
			BotUsername: rc.AllowReview.BotUsername,
		})
	}
}

// AutomationHandler labels freshly opened issues and pull requests on
// repositories with auto-tagging turned on.
func AutomationHandler(cfg *config.Config, gh *ghapi.Client) Handler {
	return func(ctx context.Context, ev *Event) error {
		rc := cfg.Repo(ev.Repository)
		if rc == nil || !rc.AutoTag {
			return nil
		}
		if str(ev.Payload, "action") != "opened" {
			return nil
		}

		owner, repo, err := splitFullName(ev.Repository)
		if err != nil {
			return err
		}

		switch ev.Type {
		case "issues":
			issue := obj(ev.Payload, "issue")
			if issue == nil {
				return nil
			}
			return gh.HandleIssueOpened(ctx, owner, repo, num(issue, "number"), str(issue, "title"), str(issue, "body"))
		case "pull_request":
			pr := obj(ev.Payload, "pull_request")
			if pr == nil {
				return nil
			}
			return gh.HandlePROpened(ctx, owner, repo, num(pr, "number"), str(obj(pr, "head"), "ref"))
		}
		return nil
	}
}

func splitFullName(fullName string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("无效的仓库名称格式: %s", fullName)
	}
	return owner, repo, nil
}

func obj(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]interface{})
	return v
}

func str(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
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
	case int64:
		return int(v)
	}
	return 0
}
