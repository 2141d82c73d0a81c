package format

import (
	"regexp"
	"sort"
	"strings"
)

// GitHub username rules: alphanumeric with inner hyphens, max 39 chars.
var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9](?:[a-zA-Z0-9]|-[a-zA-Z0-9]){0,38})`)

var textFieldNames = map[string]bool{
	"title": true, "body": true, "message": true,
	"description": true, "text": true, "content": true,
}

var userFieldNames = []string{
	"sender", "pusher", "author", "committer", "user",
	"assignee", "requested_reviewer", "reviewer", "actor",
}

var nestedObjectNames = []string{
	"pull_request", "issue", "release", "comment", "review",
	"discussion", "milestone", "project", "team", "member",
}

// extractMentions collects GitHub usernames worth notifying: @handles in
// text fields, structured user objects, and commit authors. Bot accounts
// are dropped. The result is sorted for determinism.
func extractMentions(payload map[string]interface{}) []string {
	mentions := map[string]bool{}

	for _, text := range collectTextFields(payload) {
		for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
			mentions[m[1]] = true
		}
	}

	addLogin := func(o map[string]interface{}) {
		if login := str(o, "login"); login != "" {
			mentions[login] = true
		}
	}

	for _, field := range userFieldNames {
		addLogin(obj(payload, field))
	}
	for _, name := range nestedObjectNames {
		nested := obj(payload, name)
		if nested == nil {
			continue
		}
		for _, field := range userFieldNames {
			addLogin(obj(nested, field))
		}
		for _, arrayField := range []string{"assignees", "requested_reviewers"} {
			for _, item := range arr(nested, arrayField) {
				if o, ok := item.(map[string]interface{}); ok {
					addLogin(o)
				}
			}
		}
	}

	for _, c := range arr(payload, "commits") {
		commit, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		for _, role := range []string{"author", "committer"} {
			if username := str(obj(commit, role), "username"); username != "" && username != actionsBot {
				mentions[username] = true
			}
		}
	}

	var result []string
	for m := range mentions {
		if m == "" || m == actionsBot || strings.HasSuffix(m, "[bot]") {
			continue
		}
		result = append(result, m)
	}
	sort.Strings(result)
	return result
}

func collectTextFields(obj interface{}) []string {
	var fields []string
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch val := v.(type) {
		case map[string]interface{}:
			for key, child := range val {
				if textFieldNames[key] {
					if s, ok := child.(string); ok && strings.TrimSpace(s) != "" {
						fields = append(fields, s)
						continue
					}
				}
				switch child.(type) {
				case map[string]interface{}, []interface{}:
					walk(child)
				}
			}
		case []interface{}:
			for _, item := range val {
				switch item.(type) {
				case map[string]interface{}, []interface{}:
					walk(item)
				}
			}
		}
	}
	walk(obj)
	return fields
}
