package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chimeyao/ghrelay/internal/config"
	"github.com/chimeyao/ghrelay/internal/format"
)

// Target keys route notifications. Group targets are "group_<id>",
// private targets "private_<id>".
func GroupTarget(groupID string) string  { return "group_" + groupID }
func PrivateTarget(userID string) string { return "private_" + userID }

// usernamePrefixes are the body lines whose GitHub usernames get
// rewritten to chat @-mentions for bound users.
var usernamePrefixes = []string{
	"用户: ", "作者: ", "推送者: ", "发布者: ", "创建者: ", "删除者: ", "合并者: ", "触发者: ", "By: ",
}

const sendTimeout = 15 * time.Second

// Sender delivers formatted notifications over the chat connection. It
// implements the aggregation engine's sink.
type Sender struct {
	client  *Client
	cfg     *config.Config
	limiter *RateLimiter
}

// NewSender wires the client, config (for user bindings and bot
// identity), and per-target rate limiting.
func NewSender(client *Client, cfg *config.Config) *Sender {
	return &Sender{client: client, cfg: cfg, limiter: NewRateLimiter()}
}

// Prune drops idle entries from the per-target rate limiter.
func (s *Sender) Prune() { s.limiter.Prune() }

// SendSingle delivers one notification to a target.
func (s *Sender) SendSingle(target string, content *format.Content) error {
	if !s.limiter.Allow(target) {
		return fmt.Errorf("rate limited: %s", target)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	kind, id, ok := splitTarget(target)
	if !ok {
		return fmt.Errorf("bad target: %s", target)
	}

	segments := s.buildSegments(content, true)
	switch kind {
	case "group":
		node := NodeSeg(s.cfg.Chat.BotName, s.cfg.Chat.BotID, segments)
		msgID, err := s.client.SendGroupForwardMsg(ctx, id, []Segment{node})
		if err != nil {
			return err
		}
		slog.Info("notification sent", "target", target, "message_id", msgID)
		return nil
	case "private":
		msgID, err := s.client.SendPrivateMsg(ctx, id, segments)
		if err != nil {
			return err
		}
		slog.Info("notification sent", "target", target, "message_id", msgID)
		return nil
	}
	return fmt.Errorf("bad target kind: %s", kind)
}

// SendBundle delivers several notifications as one merged-forward
// message, then a quote-reply follow-up @-mentioning bound users.
func (s *Sender) SendBundle(target string, contents []*format.Content) error {
	if len(contents) == 0 {
		return nil
	}
	if !s.limiter.Allow(target) {
		return fmt.Errorf("rate limited: %s", target)
	}
	kind, id, ok := splitTarget(target)
	if !ok {
		return fmt.Errorf("bad target: %s", target)
	}
	if kind != "group" {
		// private targets get messages one by one
		var firstErr error
		for _, content := range contents {
			if err := s.SendSingle(target, content); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	mentions := map[string]bool{}
	nodes := make([]Segment, 0, len(contents))
	for _, content := range contents {
		for _, m := range content.Mentions {
			mentions[m] = true
		}
		nodes = append(nodes, NodeSeg(s.cfg.Chat.BotName, s.cfg.Chat.BotID, s.buildSegments(content, false)))
	}

	bundleID, err := s.client.SendGroupForwardMsg(ctx, id, nodes)
	if err != nil {
		return err
	}
	slog.Info("bundle sent", "target", target, "count", len(nodes), "message_id", bundleID)

	if len(mentions) > 0 {
		if err := s.sendMentionFollowUp(ctx, id, bundleID, mentions); err != nil {
			slog.Warn("mention follow-up failed", "target", target, "error", err)
		}
	}
	return nil
}

// sendMentionFollowUp quote-replies the bundle, @-ing every mentioned
// user with a chat binding.
func (s *Sender) sendMentionFollowUp(ctx context.Context, groupID string, bundleID int64, mentions map[string]bool) error {
	var segments []Segment
	if bundleID != 0 {
		segments = append(segments, ReplySeg(bundleID))
	}

	var named []string
	atCount := 0
	for username := range mentions {
		if chatID := s.cfg.UserChatID(username); chatID != "" {
			segments = append(segments, AtSeg(chatID))
			named = append(named, fmt.Sprintf("%s(%s)", username, chatID))
			atCount++
		} else {
			named = append(named, username)
		}
	}
	if atCount > 0 {
		segments = append(segments, TextSeg(" "))
	}
	segments = append(segments, TextSeg(fmt.Sprintf("📢 上述消息提及了: %s", strings.Join(named, "、"))))

	_, err := s.client.SendGroupMsg(ctx, groupID, segments)
	return err
}

// buildSegments renders a notification: title line, body with bound
// usernames rewritten, and a trailing link when not already present.
func (s *Sender) buildSegments(content *format.Content, withMentionLine bool) []Segment {
	var segments []Segment
	body := s.rewriteUsernames(content.Body)

	if content.Title != "" && content.Title != body {
		segments = append(segments, TextSeg(fmt.Sprintf("📢 %s\n\n", content.Title)))
	}
	segments = append(segments, TextSeg(body))

	hasLink := content.URL != "" && strings.Contains(body, "🔗") && strings.Contains(body, content.URL)
	if content.URL != "" && !hasLink {
		segments = append(segments, TextSeg(fmt.Sprintf("\n\n🔗 链接: %s", content.URL)))
	}
	if content.Summary != "" && content.Summary != body {
		segments = append(segments, TextSeg(fmt.Sprintf("\n\n📝 摘要: %s", content.Summary)))
	}

	if withMentionLine && len(content.Mentions) > 0 {
		var named []string
		for _, username := range content.Mentions {
			if chatID := s.cfg.UserChatID(username); chatID != "" {
				named = append(named, fmt.Sprintf("%s(%s)", username, chatID))
			} else {
				named = append(named, username)
			}
		}
		segments = append(segments, TextSeg(fmt.Sprintf("\n\n📢 提及用户: %s", strings.Join(named, "、"))))
	}
	return segments
}

// rewriteUsernames replaces bound GitHub usernames with chat mentions in
// the known body patterns.
func (s *Sender) rewriteUsernames(body string) string {
	for username, chatID := range s.cfg.Users {
		if chatID == "" {
			continue
		}
		body = strings.ReplaceAll(body, "@"+username, "@"+chatID)
		for _, prefix := range usernamePrefixes {
			body = strings.ReplaceAll(body, prefix+username, prefix+"@"+chatID)
		}
	}
	return body
}

func splitTarget(target string) (kind, id string, ok bool) {
	kind, id, ok = strings.Cut(target, "_")
	if !ok || id == "" {
		return "", "", false
	}
	return kind, id, true
}
