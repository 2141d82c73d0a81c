package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chimeyao/ghrelay/internal/agent"
	"github.com/chimeyao/ghrelay/internal/config"
	"github.com/chimeyao/ghrelay/internal/contexts"
	"github.com/chimeyao/ghrelay/internal/permissions"
)

// Messenger routes inbound chat messages into the conversation loop.
// Group messages must mention the bot; private messages always count.
// Replies are recorded with message ids so a later recall can find and
// remove the pair.
type Messenger struct {
	client   API
	cfg      *config.Config
	loop     *agent.Loop
	perms    *permissions.Store
	ctxStore *contexts.Manager
}

// NewMessenger wires the chat client to the conversation loop.
func NewMessenger(client API, cfg *config.Config, loop *agent.Loop, perms *permissions.Store, ctxStore *contexts.Manager) *Messenger {
	return &Messenger{client: client, cfg: cfg, loop: loop, perms: perms, ctxStore: ctxStore}
}

// HandleEvent processes OneBot push events, reacting to message frames.
// The conversation runs on its own goroutine so the websocket read loop
// is never blocked on the model.
func (m *Messenger) HandleEvent(event map[string]interface{}) {
	in, ok := m.route(event)
	if !ok {
		return
	}
	go m.respond(in)
}

// route decides whether a push event is a message for the bot and
// builds its loop input.
func (m *Messenger) route(event map[string]interface{}) (inbound, bool) {
	postType, _ := event["post_type"].(string)
	if postType != "message" {
		return inbound{}, false
	}

	msgType, _ := event["message_type"].(string)
	userID := numStr(event["user_id"])
	messageID := numStr(event["message_id"])
	raw, _ := event["raw_message"].(string)

	switch msgType {
	case "group":
		groupID := numStr(event["group_id"])
		content, mentioned := m.stripMention(raw)
		if !mentioned || content == "" {
			return inbound{}, false
		}
		return inbound{
			contextID:   contexts.GroupContextID(groupID, userID),
			contextType: contexts.TypeGroup,
			groupID:     groupID,
			userID:      userID,
			messageID:   messageID,
			content:     content,
		}, true
	case "private":
		content := strings.TrimSpace(raw)
		if content == "" {
			return inbound{}, false
		}
		return inbound{
			contextID:   contexts.PrivateContextID(userID),
			contextType: contexts.TypePrivate,
			userID:      userID,
			messageID:   messageID,
			content:     content,
		}, true
	}
	return inbound{}, false
}

// inbound is one chat message routed to the loop.
type inbound struct {
	contextID   string
	contextType contexts.Type
	groupID     string // empty for private chats
	userID      string
	messageID   string
	content     string
}

func (m *Messenger) respond(in inbound) {
	ctx := context.Background()

	if m.perms.EffectiveChatLevel(in.userID) < permissions.ChatRead {
		slog.Info("chat message refused", "user", in.userID, "context", in.contextID)
		m.send(ctx, in, "权限不足: 使用机器人需要 read 及以上权限")
		return
	}

	metadata := map[string]interface{}{"message_id": in.messageID}
	if in.groupID != "" {
		metadata["group_id"] = in.groupID
	}
	var status agent.Statuser
	if in.groupID != "" {
		status = NewStatusPoster(m.client, in.groupID)
	}

	out, err := m.loop.RunDetailed(ctx, agent.Request{
		ContextID:   in.contextID,
		ContextType: in.contextType,
		UserID:      in.userID,
		Content:     in.content,
		Metadata:    metadata,
		Status:      status,
	})
	if err != nil {
		slog.Error("chat conversation failed", "context", in.contextID, "error", err)
		m.send(ctx, in, "处理消息时出现错误, 请稍后再试")
		return
	}
	if out.Reply == "" {
		// Write operations already reported through the status protocol.
		return
	}

	sentID, err := m.send(ctx, in, out.Reply)
	if err != nil {
		slog.Warn("chat reply failed", "context", in.contextID, "error", err)
		return
	}

	if conv := m.ctxStore.Get(in.contextID); conv != nil {
		conv.AmendLastAssistant(map[string]interface{}{
			"message_id":          strconv.FormatInt(sentID, 10),
			"reply_to_message_id": in.messageID,
		})
		if err := m.ctxStore.Save(in.contextID); err != nil {
			slog.Warn("save context failed", "context", in.contextID, "error", err)
		}
	}
}

// send delivers text to the message's origin, quoting the source message
// in groups.
func (m *Messenger) send(ctx context.Context, in inbound, text string) (int64, error) {
	if in.groupID == "" {
		return m.client.SendPrivateMsg(ctx, in.userID, []Segment{TextSeg(text)})
	}
	segments := []Segment{TextSeg(text)}
	if id, err := strconv.ParseInt(in.messageID, 10, 64); err == nil {
		segments = append([]Segment{ReplySeg(id)}, segments...)
	}
	return m.client.SendGroupMsg(ctx, in.groupID, segments)
}

// stripMention removes the bot mention from a group message and reports
// whether the bot was mentioned at all.
func (m *Messenger) stripMention(raw string) (string, bool) {
	mentioned := false
	if botID := m.cfg.BotID(); botID != "" {
		at := fmt.Sprintf("[CQ:at,qq=%s]", botID)
		if strings.Contains(raw, at) {
			mentioned = true
			raw = strings.ReplaceAll(raw, at, "")
		}
	}
	name := "@" + m.cfg.BotDisplayName()
	if strings.Contains(raw, name) {
		mentioned = true
		raw = strings.ReplaceAll(raw, name, "")
	}
	return strings.TrimSpace(raw), mentioned
}
