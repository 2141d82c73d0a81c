package parser

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseBracket(t *testing.T) {
	text := `让我查一下~ [TOOL_CALL]get_issue(owner=octo, repo=hello, issue_number=7)[/TOOL_CALL]`
	calls := Parse(text, nil)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.Name != "get_issue" {
		t.Errorf("name = %q", c.Name)
	}
	want := map[string]interface{}{"owner": "octo", "repo": "hello", "issue_number": 7}
	if !reflect.DeepEqual(c.Params, want) {
		t.Errorf("params = %v, want %v", c.Params, want)
	}
}

func TestParseBracketQuotedCommas(t *testing.T) {
	text := `[TOOL_CALL]add_comment(owner=o, repo=r, issue_number=1, body="first, second, third")[/TOOL_CALL]`
	calls := Parse(text, nil)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Params["body"] != "first, second, third" {
		t.Errorf("body = %v", calls[0].Params["body"])
	}
}

func TestParseBracketTypes(t *testing.T) {
	text := `[TOOL_CALL]create_pull_request(owner=o, repo=r, title=t, body=b, head=h, draft=true, labels=[a, b])[/TOOL_CALL]`
	calls := Parse(text, nil)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	p := calls[0].Params
	if p["draft"] != true {
		t.Errorf("draft = %v (%T)", p["draft"], p["draft"])
	}
	labels, ok := p["labels"].([]interface{})
	if !ok || len(labels) != 2 || labels[0] != "a" {
		t.Errorf("labels = %v", p["labels"])
	}
}

func TestParseXML(t *testing.T) {
	text := `<tool_call><tool_name>list_issues</tool_name><parameters>{"owner":"o","repo":"r","limit":5}</parameters></tool_call>`
	calls := Parse(text, nil)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Name != "list_issues" || calls[0].Params["limit"] != float64(5) {
		t.Errorf("call = %+v", calls[0])
	}
}

func TestParseFencedJSON(t *testing.T) {
	text := "看这里：\n```json\n{\"tool_name\": \"get_context_stats\", \"parameters\": {}}\n```"
	calls := Parse(text, nil)
	if len(calls) != 1 || calls[0].Name != "get_context_stats" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestParseFencedFunctionForm(t *testing.T) {
	text := "```json\n{\"function\": {\"name\": \"get_issue\", \"arguments\": \"{\\\"owner\\\":\\\"o\\\",\\\"repo\\\":\\\"r\\\",\\\"issue_number\\\":3}\"}}\n```"
	calls := Parse(text, nil)
	if len(calls) != 1 {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].Params["issue_number"] != float64(3) {
		t.Errorf("params = %v", calls[0].Params)
	}
}

func TestParseMultiple(t *testing.T) {
	text := `[TOOL_CALL]a_tool(x=1)[/TOOL_CALL] 然后 [TOOL_CALL]b_tool(y=2)[/TOOL_CALL]`
	calls := Parse(text, nil)
	if len(calls) != 2 || calls[0].Name != "a_tool" || calls[1].Name != "b_tool" {
		t.Errorf("calls = %+v", calls)
	}
}

type rejectAll struct{}

func (rejectAll) Validate(name string, params map[string]interface{}) (map[string]interface{}, error) {
	return nil, &strError{"nope"}
}

type strError struct{ s string }

func (e *strError) Error() string { return e.s }

func TestParseValidatorSkipsInvalid(t *testing.T) {
	text := `[TOOL_CALL]bogus(x=1)[/TOOL_CALL]`
	if calls := Parse(text, rejectAll{}); len(calls) != 0 {
		t.Errorf("calls = %+v, want none", calls)
	}
}

func TestStrip(t *testing.T) {
	text := "好的~\n\n[TOOL_CALL]get_issue(owner=o, repo=r, issue_number=1)[/TOOL_CALL]\n\n\n我来查询。"
	got := Strip(text)
	if strings.Contains(got, "TOOL_CALL") {
		t.Errorf("markup left: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank lines not collapsed: %q", got)
	}
	if !strings.Contains(got, "好的~") || !strings.Contains(got, "我来查询。") {
		t.Errorf("text lost: %q", got)
	}
}

func TestStripKeepsOrdinaryCodeBlocks(t *testing.T) {
	text := "示例：\n```json\n{\"just\": \"data\"}\n```"
	got := Strip(text)
	if !strings.Contains(got, "just") {
		t.Errorf("ordinary code block removed: %q", got)
	}
}
