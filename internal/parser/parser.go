// Package parser extracts tool calls from AI replies. Three syntaxes are
// recognized: [TOOL_CALL] bracket markers, <tool_call> XML blocks, and
// fenced JSON code blocks.
package parser

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Call is one parsed tool invocation.
type Call struct {
	Name   string
	Params map[string]interface{}
}

// Validator checks a parsed call against the tool registry. Invalid calls
// are skipped with a warning.
type Validator interface {
	Validate(name string, params map[string]interface{}) (map[string]interface{}, error)
}

var (
	bracketPattern = regexp.MustCompile(`(?s)\[TOOL_CALL\]\s*([a-zA-Z0-9_]+)\s*\((.*?)\)\s*\[/TOOL_CALL\]`)
	xmlPattern     = regexp.MustCompile(`(?s)<tool_call>\s*<tool_name>(.*?)</tool_name>\s*<parameters>(.*?)</parameters>\s*</tool_call>`)
	fencePattern   = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")
)

// Parse collects tool calls from text in order of appearance across all
// three syntaxes. When v is non-nil each call is validated and coerced;
// invalid calls are dropped.
func Parse(text string, v Validator) []Call {
	var calls []Call
	calls = append(calls, parseBracket(text)...)
	calls = append(calls, parseXML(text)...)
	calls = append(calls, parseFenced(text)...)

	if strings.Contains(text, "[TOOL_CALL]") && !strings.Contains(text, "[/TOOL_CALL]") {
		slog.Warn("incomplete tool call marker in response")
	}

	if v == nil {
		return calls
	}
	var valid []Call
	for _, c := range calls {
		coerced, err := v.Validate(c.Name, c.Params)
		if err != nil {
			slog.Warn("invalid tool call skipped", "tool", c.Name, "error", err)
			continue
		}
		valid = append(valid, Call{Name: c.Name, Params: coerced})
	}
	return valid
}

// parseBracket handles [TOOL_CALL]name(k=v, k2=v2)[/TOOL_CALL].
func parseBracket(text string) []Call {
	var calls []Call
	for _, m := range bracketPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		params := map[string]interface{}{}
		for _, pair := range splitParams(m[2]) {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			params[strings.TrimSpace(key)] = typedValue(strings.TrimSpace(value))
		}
		calls = append(calls, Call{Name: name, Params: params})
	}
	return calls
}

// parseXML handles <tool_call><tool_name>n</tool_name><parameters>{json}</parameters></tool_call>.
func parseXML(text string) []Call {
	var calls []Call
	for _, m := range xmlPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		params := map[string]interface{}{}
		raw := strings.TrimSpace(m[2])
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &params); err != nil {
				slog.Warn("bad xml tool parameters", "tool", name, "error", err)
				continue
			}
		}
		calls = append(calls, Call{Name: name, Params: params})
	}
	return calls
}

// parseFenced handles fenced JSON blocks in two shapes:
// {"tool_name": ..., "parameters": {...}} and the OpenAI function form
// {"function": {"name": ..., "arguments": "{...}"}}.
func parseFenced(text string) []Call {
	var calls []Call
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		raw := strings.TrimSpace(m[1])
		if !strings.HasPrefix(raw, "{") {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			continue
		}
		if c, ok := callFromJSON(obj); ok {
			calls = append(calls, c)
		}
	}
	return calls
}

func callFromJSON(obj map[string]interface{}) (Call, bool) {
	if name, ok := obj["tool_name"].(string); ok && name != "" {
		params, _ := obj["parameters"].(map[string]interface{})
		if params == nil {
			params = map[string]interface{}{}
		}
		return Call{Name: name, Params: params}, true
	}
	if fn, ok := obj["function"].(map[string]interface{}); ok {
		name, _ := fn["name"].(string)
		if name == "" {
			return Call{}, false
		}
		params := map[string]interface{}{}
		switch args := fn["arguments"].(type) {
		case string:
			if args != "" {
				if err := json.Unmarshal([]byte(args), &params); err != nil {
					return Call{}, false
				}
			}
		case map[string]interface{}:
			params = args
		}
		return Call{Name: name, Params: params}, true
	}
	return Call{}, false
}

// splitParams splits "k=v, k2=v2" on commas, honoring quotes, brackets,
// and nested parens so values may contain commas.
func splitParams(s string) []string {
	var parts []string
	var buf strings.Builder
	depth := 0
	var quote rune

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			buf.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			buf.WriteRune(r)
		case r == '(' || r == '[' || r == '{':
			depth++
			buf.WriteRune(r)
		case r == ')' || r == ']' || r == '}':
			depth--
			buf.WriteRune(r)
		case r == ',' && depth == 0:
			if p := strings.TrimSpace(buf.String()); p != "" {
				parts = append(parts, p)
			}
			buf.Reset()
		default:
			buf.WriteRune(r)
		}
	}
	if p := strings.TrimSpace(buf.String()); p != "" {
		parts = append(parts, p)
	}
	return parts
}

// typedValue interprets a raw parameter value: bool, int, float,
// [array], quoted string, bare string.
func typedValue(raw string) interface{} {
	if len(raw) >= 2 {
		if (raw[0] == '"' && raw[len(raw)-1] == '"') || (raw[0] == '\'' && raw[len(raw)-1] == '\'') {
			return raw[1 : len(raw)-1]
		}
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if len(raw) >= 2 && raw[0] == '[' && raw[len(raw)-1] == ']' {
		var items []interface{}
		for _, item := range splitParams(raw[1 : len(raw)-1]) {
			items = append(items, typedValue(item))
		}
		return items
	}
	return raw
}

// Strip removes all tool-call markup from text and collapses runs of
// blank lines.
func Strip(text string) string {
	text = bracketPattern.ReplaceAllString(text, "")
	text = xmlPattern.ReplaceAllString(text, "")
	text = fencePattern.ReplaceAllStringFunc(text, func(block string) string {
		m := fencePattern.FindStringSubmatch(block)
		raw := strings.TrimSpace(m[1])
		if strings.HasPrefix(raw, "{") {
			var obj map[string]interface{}
			if err := json.Unmarshal([]byte(raw), &obj); err == nil {
				if _, ok := callFromJSON(obj); ok {
					return ""
				}
			}
		}
		return block
	})

	var lines []string
	blank := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			lines = append(lines, "")
			continue
		}
		blank = 0
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
