package format

import (
	"strings"
	"testing"
	"time"

	"github.com/chimeyao/ghrelay/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Repos["octo/repo"] = &config.RepoConfig{
		Alias:       "Octo",
		AllowReview: config.ReviewConfig{Enabled: true, BotUsername: "relay-bot"},
	}
	return cfg
}

func testFormatter() *Formatter {
	f := New(testConfig())
	f.now = func() time.Time { return time.Date(2026, 8, 25, 12, 30, 45, 0, time.UTC) }
	return f
}

func basePayload() map[string]interface{} {
	return map[string]interface{}{
		"repository": map[string]interface{}{
			"full_name": "octo/repo",
			"html_url":  "https://github.com/octo/repo",
		},
		"sender": map[string]interface{}{"login": "alice"},
	}
}

func TestFormatPush(t *testing.T) {
	f := testFormatter()
	payload := basePayload()
	payload["ref"] = "refs/heads/main"
	payload["compare"] = "https://github.com/octo/repo/compare/a...b"
	payload["pusher"] = map[string]interface{}{"name": "alice"}
	payload["commits"] = []interface{}{
		map[string]interface{}{
			"added":    []interface{}{"a.go"},
			"modified": []interface{}{"b.go", "c.go"},
			"removed":  []interface{}{},
			"author":   map[string]interface{}{"username": "alice"},
		},
	}

	c := f.Format("push", payload)
	if c == nil {
		t.Fatal("push should format")
	}
	if c.Title != "📤 Octo (12:30:45) Push 推送~" {
		t.Fatalf("title = %q", c.Title)
	}
	if !strings.Contains(c.Body, "├─ 🌿 分支: main") {
		t.Fatalf("body missing branch line:\n%s", c.Body)
	}
	if !strings.Contains(c.Body, "变更: +1 ~2 -0") {
		t.Fatalf("body missing change stats:\n%s", c.Body)
	}
	if !strings.Contains(c.Body, "🔗 https://github.com/octo/repo/compare/a...b") {
		t.Fatalf("body missing compare link:\n%s", c.Body)
	}
	if c.Priority != 3 {
		t.Fatalf("push priority = %d", c.Priority)
	}
}

func TestFormatPushFiltersActionsBot(t *testing.T) {
	f := testFormatter()
	payload := basePayload()
	payload["pusher"] = map[string]interface{}{"name": "github-actions[bot]"}

	if c := f.Format("push", payload); c != nil {
		t.Fatal("actions bot push should be filtered")
	}
}

func TestFormatFiltersReviewBotSender(t *testing.T) {
	f := testFormatter()
	payload := basePayload()
	payload["sender"] = map[string]interface{}{"login": "relay-bot"}

	if c := f.Format("issues", payload); c != nil {
		t.Fatal("review bot events should be filtered")
	}
}

func TestFormatPullRequestMerged(t *testing.T) {
	f := testFormatter()
	payload := basePayload()
	payload["action"] = "closed"
	payload["pull_request"] = map[string]interface{}{
		"number":   float64(7),
		"title":    "Add feature",
		"merged":   true,
		"html_url": "https://github.com/octo/repo/pull/7",
	}

	c := f.Format("pull_request", payload)
	if c == nil {
		t.Fatal("pr should format")
	}
	if !strings.Contains(c.Title, "PR 已合并~") {
		t.Fatalf("merged close should use merged verb: %q", c.Title)
	}
	// closed bumps the base priority of 6
	if c.Priority != 7 {
		t.Fatalf("priority = %d, want 7", c.Priority)
	}
}

func TestFormatPullRequestReviewRequested(t *testing.T) {
	f := testFormatter()
	payload := basePayload()
	payload["action"] = "review_requested"
	payload["requested_reviewer"] = map[string]interface{}{"login": "bob"}
	payload["pull_request"] = map[string]interface{}{
		"number": float64(3), "title": "Fix", "html_url": "https://github.com/octo/repo/pull/3",
	}

	c := f.Format("pull_request", payload)
	if c == nil {
		t.Fatal("should format")
	}
	if !strings.Contains(c.Body, "🔍 审查者: bob") {
		t.Fatalf("body missing reviewer:\n%s", c.Body)
	}
}

func TestFormatStarMilestoneOnly(t *testing.T) {
	f := testFormatter()

	payload := basePayload()
	payload["action"] = "created"
	payload["repository"].(map[string]interface{})["stargazers_count"] = float64(99)
	if c := f.Format("star", payload); c != nil {
		t.Fatal("non-milestone star count should be silent")
	}

	payload["repository"].(map[string]interface{})["stargazers_count"] = float64(666)
	c := f.Format("star", payload)
	if c == nil {
		t.Fatal("milestone star should notify")
	}
	if !strings.Contains(c.Title, "666 Stars") {
		t.Fatalf("title = %q", c.Title)
	}

	payload["action"] = "deleted"
	if c := f.Format("star", payload); c != nil {
		t.Fatal("unstar should be silent")
	}
}

func TestForkAndWatchSuppressed(t *testing.T) {
	f := testFormatter()
	if f.Format("fork", basePayload()) != nil {
		t.Fatal("fork should be suppressed")
	}
	p := basePayload()
	p["action"] = "started"
	if f.Format("watch", p) != nil {
		t.Fatal("watch should be suppressed")
	}
}

func TestTitlesCarryTimestamp(t *testing.T) {
	f := testFormatter()

	createPayload := basePayload()
	createPayload["ref_type"] = "branch"
	createPayload["ref"] = "feature/x"

	deletePayload := basePayload()
	deletePayload["ref_type"] = "tag"
	deletePayload["ref"] = "v1.0.0"

	runPayload := basePayload()
	runPayload["workflow_run"] = map[string]interface{}{
		"name":        "ci",
		"conclusion":  "success",
		"status":      "completed",
		"head_branch": "main",
		"actor":       map[string]interface{}{"login": "alice"},
	}

	tests := []struct {
		event   string
		payload map[string]interface{}
	}{
		{"create", createPayload},
		{"delete", deletePayload},
		{"workflow_run", runPayload},
	}
	for _, tt := range tests {
		c := f.Format(tt.event, tt.payload)
		if c == nil {
			t.Fatalf("%s should format", tt.event)
		}
		if !strings.Contains(c.Title, "Octo (12:30:45) ") {
			t.Errorf("%s title missing timestamp: %q", tt.event, c.Title)
		}
	}
}

func TestFormatUnknownEventFallsBack(t *testing.T) {
	f := testFormatter()
	payload := basePayload()
	payload["action"] = "created"

	c := f.Format("label", payload)
	if c == nil {
		t.Fatal("unknown event should use the default formatter")
	}
	if !strings.Contains(c.Body, "Event: label") {
		t.Fatalf("body = %q", c.Body)
	}
}

func TestWorkflowFailurePriority(t *testing.T) {
	f := testFormatter()
	payload := basePayload()
	payload["workflow_run"] = map[string]interface{}{
		"conclusion": "failure",
		"name":       "ci",
		"actor":      map[string]interface{}{"login": "alice"},
	}

	c := f.Format("workflow_run", payload)
	if c == nil {
		t.Fatal("workflow should format")
	}
	if c.Priority != 6 {
		t.Fatalf("failed workflow priority = %d, want 6", c.Priority)
	}
	if !strings.Contains(c.Body, "状态: 失败") {
		t.Fatalf("body = %q", c.Body)
	}
}

func TestExtractMentions(t *testing.T) {
	payload := map[string]interface{}{
		"sender": map[string]interface{}{"login": "alice"},
		"issue": map[string]interface{}{
			"title":     "bug",
			"body":      "ping @bob and @carol-x please, not @github-actions[bot]",
			"user":      map[string]interface{}{"login": "dave"},
			"assignees": []interface{}{map[string]interface{}{"login": "erin"}},
		},
		"commits": []interface{}{
			map[string]interface{}{"author": map[string]interface{}{"username": "frank"}},
			map[string]interface{}{"author": map[string]interface{}{"username": "github-actions[bot]"}},
		},
	}

	got := extractMentions(payload)
	want := []string{"alice", "bob", "carol-x", "dave", "erin", "frank"}
	if len(got) != len(want) {
		t.Fatalf("mentions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mentions = %v, want %v", got, want)
		}
	}
}

func TestSystemMessage(t *testing.T) {
	f := testFormatter()
	c := f.SystemMessage("dispatcher", "error", "queue full")
	if !strings.Contains(c.Title, "系统消息") || !strings.Contains(c.Body, "queue full") {
		t.Fatalf("unexpected system message: %+v", c)
	}
}
