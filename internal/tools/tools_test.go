package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chimeyao/ghrelay/internal/permissions"
)

func testPerms(t *testing.T, superusers ...string) *permissions.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "permissions.json")
	store, err := permissions.NewStore(path, superusers)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestSignatureRequiredFirst(t *testing.T) {
	r := NewRegistry()
	def, ok := r.Get("search_code")
	if !ok {
		t.Fatal("search_code not registered")
	}
	sig := def.Signature()
	want := "[TOOL_CALL]search_code(owner=值, repo=值, query=值, [file_extension=值], [path=值], [limit=值])[/TOOL_CALL]"
	if sig != want {
		t.Errorf("signature = %q, want %q", sig, want)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	r := NewRegistry()
	_, err := r.Validate("get_issue", map[string]interface{}{"owner": "a", "repo": "b"})
	if err == nil {
		t.Fatal("expected error for missing issue_number")
	}
	msg := err.Error()
	if !strings.Contains(msg, "issue_number") {
		t.Errorf("message should name missing param: %s", msg)
	}
	if !strings.Contains(msg, "[TOOL_CALL]get_issue(") {
		t.Errorf("message should include call format: %s", msg)
	}
}

func TestValidateCoercion(t *testing.T) {
	r := NewRegistry()
	params, err := r.Validate("get_pull_request", map[string]interface{}{
		"owner":     "octo",
		"repo":      "hello",
		"pr_number": "42",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if params["pr_number"] != 42 {
		t.Errorf("pr_number = %v (%T), want 42", params["pr_number"], params["pr_number"])
	}
}

func TestValidateArrayCoercion(t *testing.T) {
	r := NewRegistry()
	params, err := r.Validate("create_issue", map[string]interface{}{
		"owner":  "octo",
		"repo":   "hello",
		"title":  "bug",
		"labels": "bug, urgent",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	labels, ok := params["labels"].([]interface{})
	if !ok || len(labels) != 2 || labels[0] != "bug" || labels[1] != "urgent" {
		t.Errorf("labels = %v", params["labels"])
	}
}

func TestValidateDefaultsFilled(t *testing.T) {
	r := NewRegistry()
	params, err := r.Validate("get_file_content", map[string]interface{}{
		"owner": "octo", "repo": "hello", "path": "README.md",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if params["ref"] != "main" {
		t.Errorf("ref default = %v, want main", params["ref"])
	}
}

func TestValidateUnknownParam(t *testing.T) {
	r := NewRegistry()
	_, err := r.Validate("get_issue", map[string]interface{}{
		"owner": "a", "repo": "b", "issue_number": 1, "evil": "x",
	})
	if err == nil {
		t.Fatal("expected error for unknown param")
	}
}

func TestSanitizeStripsAndTruncates(t *testing.T) {
	out := Sanitize(map[string]interface{}{
		"body":  `<b>"hello"</b>`,
		"count": 5,
	})
	if out["body"] != "bhello/b" && out["body"] != "bhellob" {
		// both < > " / \ ' stripped
		if s := out["body"].(string); strings.ContainsAny(s, `<>"'\/`) {
			t.Errorf("body not stripped: %q", s)
		}
	}
	if out["count"] != 5 {
		t.Errorf("non-string mutated: %v", out["count"])
	}

	long := strings.Repeat("a", 2000)
	out = Sanitize(map[string]interface{}{"body": long})
	if len(out["body"].(string)) != 1000 {
		t.Errorf("len = %d, want 1000", len(out["body"].(string)))
	}
}

func TestCheckSafetyRejectsDangerous(t *testing.T) {
	bad := []string{"../../etc/passwd", "<script>alert(1)</script>", "eval(x)", "__import__('os')"}
	for _, v := range bad {
		if err := CheckSafety(map[string]interface{}{"p": v}); err == nil {
			t.Errorf("CheckSafety(%q) = nil, want error", v)
		}
	}
	if err := CheckSafety(map[string]interface{}{"p": "normal text"}); err != nil {
		t.Errorf("CheckSafety(normal) = %v", err)
	}
}

func TestExecutePermissionGate(t *testing.T) {
	perms := testPerms(t)
	perms.SetChatLevel("reader", permissions.ChatRead)
	perms.SetChatLevel("writer", permissions.ChatWrite)

	r := NewRegistry()
	r.Bind("get_issue", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return "issue-data", nil
	})
	r.Bind("close_issue", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return "closed", nil
	})
	e := NewExecutor(r, perms)

	readParams := map[string]interface{}{"owner": "a", "repo": "b", "issue_number": 1}

	if res := e.Execute(context.Background(), "reader", "get_issue", readParams); !res.Success {
		t.Errorf("reader read: %+v", res)
	}
	if res := e.Execute(context.Background(), "reader", "close_issue", readParams); res.Success {
		t.Error("reader should not close issues")
	}
	if res := e.Execute(context.Background(), "writer", "close_issue", readParams); !res.Success {
		t.Errorf("writer close: %+v", res)
	}
	if res := e.Execute(context.Background(), "stranger", "get_issue", readParams); res.Success {
		t.Error("unknown user should be denied")
	}
}

func TestExecuteSuperuserBypass(t *testing.T) {
	perms := testPerms(t, "boss")
	r := NewRegistry()
	r.Bind("delete_comment", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return "deleted", nil
	})
	e := NewExecutor(r, perms)

	res := e.Execute(context.Background(), "boss", "delete_comment",
		map[string]interface{}{"owner": "a", "repo": "b", "comment_id": 9})
	if !res.Success {
		t.Errorf("superuser denied: %+v", res)
	}
}

func TestIsWriteTool(t *testing.T) {
	e := NewExecutor(NewRegistry(), testPerms(t))
	if !e.IsWriteTool("merge_pull_request") {
		t.Error("merge_pull_request should be a write tool")
	}
	if e.IsWriteTool("list_issues") {
		t.Error("list_issues should not be a write tool")
	}
}
