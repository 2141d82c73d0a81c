package agent

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chimeyao/ghrelay/internal/config"
	"github.com/chimeyao/ghrelay/internal/contexts"
	"github.com/chimeyao/ghrelay/internal/permissions"
	"github.com/chimeyao/ghrelay/internal/providers"
	"github.com/chimeyao/ghrelay/internal/tools"
)

type scriptProvider struct {
	responses []string
	calls     int
}

func (p *scriptProvider) Chat(_ context.Context, _ providers.ChatRequest) (*providers.ChatResponse, error) {
	if p.calls >= len(p.responses) {
		return &providers.ChatResponse{Content: "[END]"}, nil
	}
	content := p.responses[p.calls]
	p.calls++
	return &providers.ChatResponse{Content: content}, nil
}

func (p *scriptProvider) DefaultModel() string { return "test-model" }
func (p *scriptProvider) Name() string         { return "script" }

type fakeStatus struct {
	posts    []string
	recalled []int64
}

func (f *fakeStatus) PostStatus(_ context.Context, text string) (int64, error) {
	f.posts = append(f.posts, text)
	return int64(len(f.posts)), nil
}

func (f *fakeStatus) RecallStatus(_ context.Context, id int64) error {
	f.recalled = append(f.recalled, id)
	return nil
}

func newTestLoop(t *testing.T, provider providers.Provider) (*Loop, *tools.Registry, *permissions.Store) {
	t.Helper()
	dir := t.TempDir()
	perms, err := permissions.NewStore(filepath.Join(dir, "perms.json"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	registry := tools.NewRegistry()
	executor := tools.NewExecutor(registry, perms)
	ctxStore := contexts.NewManager(filepath.Join(dir, "contexts"))
	return NewLoop(config.Default(), provider, executor, ctxStore), registry, perms
}

func TestLimiterHourlyCap(t *testing.T) {
	l := NewLimiter()
	now := time.Now()

	for i := 0; i < maxToolCallsPerHour; i++ {
		if ok, msg := l.allowAt("u1", OpToolCall, now); !ok {
			t.Fatalf("call %d denied: %s", i, msg)
		}
	}
	ok, msg := l.allowAt("u1", OpToolCall, now)
	if ok {
		t.Fatal("call over cap allowed")
	}
	if !strings.Contains(msg, "超过tool_call限制") {
		t.Errorf("cap message = %q", msg)
	}

	// now blocked for an hour
	ok, msg = l.allowAt("u1", OpRequest, now.Add(time.Minute))
	if ok {
		t.Fatal("blocked user allowed")
	}
	if !strings.Contains(msg, "限流中") {
		t.Errorf("block message = %q", msg)
	}
	if ok, _ := l.allowAt("u1", OpRequest, now.Add(blockDuration+time.Minute)); !ok {
		t.Error("user still blocked after block expiry")
	}
	if ok, _ := l.allowAt("u2", OpToolCall, now); !ok {
		t.Error("independent user denied")
	}
}

func TestLimiterBurst(t *testing.T) {
	l := NewLimiter()
	now := time.Now()

	for i := 0; i < burstPerMinute; i++ {
		if ok, _ := l.allowAt("u1", OpRequest, now); !ok {
			t.Fatalf("request %d denied under burst cap", i)
		}
	}
	if ok, _ := l.allowAt("u1", OpRequest, now); ok {
		t.Error("request over burst cap allowed")
	}
}

func TestLimiterPrune(t *testing.T) {
	l := NewLimiter()
	l.allowAt("stale", OpRequest, time.Now().Add(-2*limitIdleTTL))
	l.allowAt("fresh", OpRequest, time.Now())
	l.Prune()
	if n := l.TrackedUsers(); n != 1 {
		t.Errorf("TrackedUsers = %d, want 1", n)
	}
}

func TestActionDisplayName(t *testing.T) {
	if got := ActionDisplayName("create_issue"); got != "创建Issue" {
		t.Errorf("create_issue = %q", got)
	}
	if got := ActionDisplayName("merge_pull_request"); got != "合并PR" {
		t.Errorf("merge_pull_request = %q", got)
	}
	if got := ActionDisplayName("something_else"); got != "something_else" {
		t.Errorf("unknown tool = %q", got)
	}
}

func TestTargetRepository(t *testing.T) {
	got := TargetRepository(map[string]interface{}{"owner": "octo", "repo": "hello"})
	if got != "octo/hello" {
		t.Errorf("TargetRepository = %q", got)
	}
	if got := TargetRepository(map[string]interface{}{"owner": "octo"}); got != "未知仓库" {
		t.Errorf("partial params = %q", got)
	}
}

func TestCleanResponse(t *testing.T) {
	got := cleanResponse("结果如下。\n[TOOL_CALL]list_issues(owner=o, repo=r)[/TOOL_CALL]\n[END]")
	if got != "结果如下。" {
		t.Errorf("cleanResponse = %q", got)
	}
	if got := cleanResponse("见 [issue 12]"); got != "见 [issue 12]" {
		t.Errorf("non-token bracket stripped: %q", got)
	}
	if got := cleanResponse("[完成]"); got != "" {
		t.Errorf("token-only response = %q", got)
	}
}

func TestEndTokenPattern(t *testing.T) {
	for _, text := range []string{"x [END]", "x [ done ]", "x [COMPLETE]", "x [对话结束]", "x [ 完成 ]"} {
		if !endTokenPattern.MatchString(text) {
			t.Errorf("end token not detected in %q", text)
		}
	}
	if endTokenPattern.MatchString("没有结束标记") {
		t.Error("false positive end token")
	}
}

func TestQuoteReply(t *testing.T) {
	got := QuoteReply("收到", "octocat", "line1\nline2")
	want := "@octocat\n\n> line1\n> line2\n\n收到"
	if got != want {
		t.Errorf("QuoteReply = %q, want %q", got, want)
	}

	got = QuoteReply("收到", "octocat", "l1\nl2\nl3\nl4\nl5")
	if !strings.Contains(got, "> l3\n> ...") {
		t.Errorf("long comment not elided: %q", got)
	}
	if strings.Contains(got, "l4") {
		t.Errorf("quoted beyond three lines: %q", got)
	}
}

func TestSignature(t *testing.T) {
	sig := Signature("relay-bot", []ToolRun{
		{Tool: "list_issues", Success: true, Seconds: 0.42},
		{Tool: "create_issue", Success: false, Error: "权限不足"},
	})
	for _, want := range []string{
		"✨ Powered by **relay-bot**' GitHub Bot",
		"**执行统计**: 1/2 个工具成功",
		"list_issues (0.42s)",
		"create_issue: 权限不足",
	} {
		if !strings.Contains(sig, want) {
			t.Errorf("signature missing %q:\n%s", want, sig)
		}
	}

	empty := Signature("relay-bot", nil)
	if !strings.Contains(empty, "**使用服务**: GitHub API") {
		t.Errorf("empty-run signature = %q", empty)
	}
}

func TestLoopPlainAnswer(t *testing.T) {
	provider := &scriptProvider{responses: []string{"你好呀 (｡･ω･｡) [END]"}}
	loop, _, perms := newTestLoop(t, provider)
	if err := perms.SetChatLevel("1001", permissions.ChatRead); err != nil {
		t.Fatal(err)
	}

	reply, err := loop.Run(context.Background(), Request{
		ContextID:   contexts.PrivateContextID("1001"),
		ContextType: contexts.TypePrivate,
		UserID:      "1001",
		Content:     "在吗",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reply != "你好呀 (｡･ω･｡)" {
		t.Errorf("reply = %q", reply)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestLoopToolRoundTrip(t *testing.T) {
	provider := &scriptProvider{responses: []string{
		"让我看看 [TOOL_CALL]get_context_stats()[/TOOL_CALL]",
		"共有 3 个上下文 [END]",
	}}
	loop, registry, perms := newTestLoop(t, provider)
	if err := perms.SetChatLevel("1001", permissions.ChatRead); err != nil {
		t.Fatal(err)
	}
	if err := registry.Bind("get_context_stats", func(context.Context, map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"total": 3}, nil
	}); err != nil {
		t.Fatal(err)
	}

	out, err := loop.RunDetailed(context.Background(), Request{
		ContextID:   contexts.PrivateContextID("1001"),
		ContextType: contexts.TypePrivate,
		UserID:      "1001",
		Content:     "现在有多少个上下文?",
	})
	if err != nil {
		t.Fatalf("RunDetailed: %v", err)
	}
	if out.Reply != "共有 3 个上下文" {
		t.Errorf("reply = %q", out.Reply)
	}
	if out.Turns != 2 {
		t.Errorf("turns = %d, want 2", out.Turns)
	}
	if len(out.ToolRuns) != 1 || !out.ToolRuns[0].Success {
		t.Fatalf("tool runs = %+v", out.ToolRuns)
	}
}

func TestLoopWriteOpStatusProtocol(t *testing.T) {
	provider := &scriptProvider{responses: []string{
		`[TOOL_CALL]create_issue(owner=octo, repo=hello, title="崩了")[/TOOL_CALL]`,
	}}
	loop, registry, perms := newTestLoop(t, provider)
	if err := perms.SetChatLevel("1001", permissions.ChatWrite); err != nil {
		t.Fatal(err)
	}
	if err := registry.Bind("create_issue", func(context.Context, map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"number": 7}, nil
	}); err != nil {
		t.Fatal(err)
	}

	status := &fakeStatus{}
	reply, err := loop.Run(context.Background(), Request{
		ContextID:   contexts.GroupContextID("12345", "1001"),
		ContextType: contexts.TypeGroup,
		UserID:      "1001",
		Content:     "帮我建个issue",
		Status:      status,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reply != "" {
		t.Errorf("write-op reply = %q, want empty", reply)
	}
	if len(status.posts) != 2 {
		t.Fatalf("status posts = %d, want 2", len(status.posts))
	}
	if !strings.Contains(status.posts[0], "正在执行GitHub操作") ||
		!strings.Contains(status.posts[0], "执行操作: 创建Issue") ||
		!strings.Contains(status.posts[0], "目标: octo/hello") {
		t.Errorf("status message = %q", status.posts[0])
	}
	if !strings.Contains(status.posts[1], "GitHub操作执行成功") {
		t.Errorf("completion message = %q", status.posts[1])
	}
	if len(status.recalled) != 1 || status.recalled[0] != 1 {
		t.Errorf("recalled = %v", status.recalled)
	}
}

func TestLoopTurnCap(t *testing.T) {
	var responses []string
	for i := 0; i < maxTurns+5; i++ {
		responses = append(responses, "[TOOL_CALL]get_context_stats()[/TOOL_CALL]")
	}
	provider := &scriptProvider{responses: responses}
	loop, registry, perms := newTestLoop(t, provider)
	if err := perms.SetChatLevel("1001", permissions.ChatRead); err != nil {
		t.Fatal(err)
	}
	if err := registry.Bind("get_context_stats", func(context.Context, map[string]interface{}) (interface{}, error) {
		return "ok", nil
	}); err != nil {
		t.Fatal(err)
	}

	reply, err := loop.Run(context.Background(), Request{
		ContextID:   contexts.PrivateContextID("1001"),
		ContextType: contexts.TypePrivate,
		UserID:      "1001",
		Content:     "stats",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reply != "对话轮数已达上限" {
		t.Errorf("reply = %q", reply)
	}
	if provider.calls != maxTurns {
		t.Errorf("provider calls = %d, want %d", provider.calls, maxTurns)
	}
}

func TestLoopRejectsOversizedMessage(t *testing.T) {
	loop, _, _ := newTestLoop(t, &scriptProvider{})
	reply, err := loop.Run(context.Background(), Request{
		ContextID:   contexts.PrivateContextID("1001"),
		ContextType: contexts.TypePrivate,
		UserID:      "1001",
		Content:     strings.Repeat("啊", maxMessageChars+1),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(reply, "消息过长") {
		t.Errorf("reply = %q", reply)
	}
}
