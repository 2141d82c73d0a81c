package chat

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/chimeyao/ghrelay/internal/agent"
	"github.com/chimeyao/ghrelay/internal/config"
	"github.com/chimeyao/ghrelay/internal/contexts"
	"github.com/chimeyao/ghrelay/internal/permissions"
	"github.com/chimeyao/ghrelay/internal/providers"
	"github.com/chimeyao/ghrelay/internal/tools"
)

type sentMsg struct {
	target   string
	segments []Segment
}

// fakeAPI records outbound chat calls.
type fakeAPI struct {
	mu     sync.Mutex
	sent   []sentMsg
	nextID int64
}

func (f *fakeAPI) SendGroupMsg(ctx context.Context, groupID string, segments []Segment) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{target: "group_" + groupID, segments: segments})
	f.nextID++
	return f.nextID, nil
}

func (f *fakeAPI) SendPrivateMsg(ctx context.Context, userID string, segments []Segment) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{target: "private_" + userID, segments: segments})
	f.nextID++
	return f.nextID, nil
}

func (f *fakeAPI) DeleteMsg(ctx context.Context, messageID int64) error { return nil }

func (f *fakeAPI) messages() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sent...)
}

type scriptedProvider struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return &providers.ChatResponse{Content: p.reply, FinishReason: "stop"}, nil
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }
func (p *scriptedProvider) Name() string         { return "scripted" }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestMessenger(t *testing.T, provider *scriptedProvider) (*Messenger, *fakeAPI, *permissions.Store, *contexts.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.Chat.BotID = "10000"
	cfg.Chat.BotName = "relay-bot"

	perms, err := permissions.NewStore(filepath.Join(t.TempDir(), "permissions.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctxStore := contexts.NewManager("")
	executor := tools.NewExecutor(tools.NewRegistry(), perms)
	loop := agent.NewLoop(cfg, provider, executor, ctxStore)

	api := &fakeAPI{}
	return NewMessenger(api, cfg, loop, perms, ctxStore), api, perms, ctxStore
}

func groupMessageEvent(groupID, userID, messageID float64, raw string) map[string]interface{} {
	return map[string]interface{}{
		"post_type":    "message",
		"message_type": "group",
		"group_id":     groupID,
		"user_id":      userID,
		"message_id":   messageID,
		"raw_message":  raw,
	}
}

func TestRouteGroupRequiresMention(t *testing.T) {
	m, _, _, _ := newTestMessenger(t, &scriptedProvider{reply: "ok [END]"})

	if _, ok := m.route(groupMessageEvent(777, 1001, 42, "普通聊天消息")); ok {
		t.Error("unmentioned group message routed")
	}

	in, ok := m.route(groupMessageEvent(777, 1001, 42, "[CQ:at,qq=10000] 帮我看看issue"))
	if !ok {
		t.Fatal("mentioned group message not routed")
	}
	if in.contextID != "qq_group_777_1001" {
		t.Errorf("context id = %q", in.contextID)
	}
	if in.content != "帮我看看issue" {
		t.Errorf("content = %q, mention not stripped", in.content)
	}

	in, ok = m.route(groupMessageEvent(777, 1001, 42, "@relay-bot 状态如何"))
	if !ok || in.content != "状态如何" {
		t.Errorf("name mention: ok=%v content=%q", ok, in.content)
	}
}

func TestRoutePrivateAndNonMessage(t *testing.T) {
	m, _, _, _ := newTestMessenger(t, &scriptedProvider{reply: "ok [END]"})

	in, ok := m.route(map[string]interface{}{
		"post_type":    "message",
		"message_type": "private",
		"user_id":      float64(1001),
		"message_id":   float64(7),
		"raw_message":  "查一下PR",
	})
	if !ok {
		t.Fatal("private message not routed")
	}
	if in.contextID != "qq_private_1001" || in.groupID != "" {
		t.Errorf("inbound = %+v", in)
	}

	if _, ok := m.route(map[string]interface{}{"post_type": "notice", "notice_type": "group_recall"}); ok {
		t.Error("notice frame routed as message")
	}
}

func TestRespondRefusesWithoutReadLevel(t *testing.T) {
	provider := &scriptedProvider{reply: "should not be called [END]"}
	m, api, _, _ := newTestMessenger(t, provider)

	m.respond(inbound{
		contextID:   contexts.GroupContextID("777", "2002"),
		contextType: contexts.TypeGroup,
		groupID:     "777",
		userID:      "2002",
		messageID:   "42",
		content:     "帮我创建issue",
	})

	sent := api.messages()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1 refusal", len(sent))
	}
	text, _ := sent[0].segments[len(sent[0].segments)-1].Data["text"].(string)
	if !strings.Contains(text, "权限不足") || !strings.Contains(text, "read") {
		t.Errorf("refusal = %q", text)
	}
	if provider.callCount() != 0 {
		t.Errorf("model called %d times for refused user", provider.callCount())
	}
}

func TestRespondRepliesAndTagsContext(t *testing.T) {
	m, api, perms, ctxStore := newTestMessenger(t, &scriptedProvider{reply: "这个issue看起来没问题 [END]"})
	if err := perms.SetChatLevel("1001", permissions.ChatRead); err != nil {
		t.Fatal(err)
	}

	m.respond(inbound{
		contextID:   contexts.GroupContextID("777", "1001"),
		contextType: contexts.TypeGroup,
		groupID:     "777",
		userID:      "1001",
		messageID:   "5005",
		content:     "看看这个issue",
	})

	sent := api.messages()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	if sent[0].target != "group_777" {
		t.Errorf("target = %q", sent[0].target)
	}
	if sent[0].segments[0].Type != "reply" {
		t.Errorf("reply should quote the source message: %+v", sent[0].segments)
	}

	conv := ctxStore.Get("qq_group_777_1001")
	if conv == nil {
		t.Fatal("conversation context missing")
	}
	msgs := conv.Recent(0)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want user+assistant", len(msgs))
	}
	if got := msgs[0].Metadata["message_id"]; got != "5005" {
		t.Errorf("user message_id = %v", got)
	}
	if got := msgs[1].Metadata["reply_to_message_id"]; got != "5005" {
		t.Errorf("assistant reply_to_message_id = %v", got)
	}
	if got, _ := msgs[1].Metadata["message_id"].(string); got == "" {
		t.Error("assistant message_id not recorded")
	}
}

func TestRespondPrivateReply(t *testing.T) {
	m, api, perms, _ := newTestMessenger(t, &scriptedProvider{reply: "好的 [END]"})
	if err := perms.SetChatLevel("1001", permissions.ChatRead); err != nil {
		t.Fatal(err)
	}

	m.respond(inbound{
		contextID:   contexts.PrivateContextID("1001"),
		contextType: contexts.TypePrivate,
		userID:      "1001",
		messageID:   "8",
		content:     "在吗",
	})

	sent := api.messages()
	if len(sent) != 1 || sent[0].target != "private_1001" {
		t.Fatalf("sent = %+v", sent)
	}
}
