package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/chimeyao/ghrelay/internal/contexts"
)

// Recaller reconciles chat message recalls with conversation state: the
// recalled message and the bot's quoted reply leave the context, and the
// bot reply is recalled from the chat too.
type Recaller struct {
	client   *Client
	ctxStore *contexts.Manager
}

// NewRecaller wires the chat client to the context store.
func NewRecaller(client *Client, ctxStore *contexts.Manager) *Recaller {
	return &Recaller{client: client, ctxStore: ctxStore}
}

// HandleEvent processes OneBot push events, reacting to recall notices.
func (r *Recaller) HandleEvent(event map[string]interface{}) {
	postType, _ := event["post_type"].(string)
	if postType != "notice" {
		return
	}
	noticeType, _ := event["notice_type"].(string)

	switch noticeType {
	case "group_recall":
		groupID := numStr(event["group_id"])
		userID := numStr(event["user_id"])
		messageID := numStr(event["message_id"])
		r.OnRecall(context.Background(), contexts.GroupContextID(groupID, userID), messageID)
	case "friend_recall":
		userID := numStr(event["user_id"])
		messageID := numStr(event["message_id"])
		r.OnRecall(context.Background(), contexts.PrivateContextID(userID), messageID)
	}
}

// OnRecall removes the recalled message from its context together with
// the assistant reply quoting it, then recalls the reply message.
func (r *Recaller) OnRecall(ctx context.Context, contextID, messageID string) {
	conv := r.ctxStore.Get(contextID)
	if conv == nil {
		slog.Debug("recall: context not found", "context", contextID)
		return
	}

	msgs := conv.Recent(0)
	var botReplies []string
	for i, msg := range msgs {
		if metaStr(msg.Metadata, "message_id") != messageID {
			continue
		}
		if i+1 < len(msgs) {
			next := msgs[i+1]
			if next.Role == "assistant" && metaStr(next.Metadata, "reply_to_message_id") == messageID {
				if replyID := metaStr(next.Metadata, "message_id"); replyID != "" {
					botReplies = append(botReplies, replyID)
				}
			}
		}
	}

	removed := conv.RemoveMessages(func(m contexts.Message) bool {
		if metaStr(m.Metadata, "message_id") == messageID {
			return true
		}
		return m.Role == "assistant" && metaStr(m.Metadata, "reply_to_message_id") == messageID
	})
	if removed > 0 {
		if err := r.ctxStore.Save(contextID); err != nil {
			slog.Warn("recall: save context failed", "context", contextID, "error", err)
		}
		slog.Info("recall: context messages removed", "context", contextID, "count", removed)
	}

	for _, replyID := range botReplies {
		id, err := strconv.ParseInt(replyID, 10, 64)
		if err != nil {
			continue
		}
		if err := r.client.DeleteMsg(ctx, id); err != nil {
			slog.Warn("recall: delete bot reply failed", "message_id", replyID, "error", err)
			continue
		}
		slog.Info("recall: bot reply recalled", "message_id", replyID)
	}
}

func metaStr(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	switch v := meta[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

func numStr(v interface{}) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatInt(int64(n), 10)
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	}
	return fmt.Sprintf("%v", v)
}
