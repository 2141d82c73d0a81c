package ghapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chimeyao/ghrelay/internal/contexts"
	"github.com/chimeyao/ghrelay/internal/tools"
)

// BindTools attaches execution handlers for every registered tool to the
// GitHub client and context store.
func BindTools(r *tools.Registry, c *Client, ctxStore *contexts.Manager) error {
	handlers := map[string]tools.Handler{
		"search_code": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.SearchCode(ctx, pstr(p, "owner"), pstr(p, "repo"), pstr(p, "query"),
				pstr(p, "file_extension"), pstr(p, "path"), pint(p, "limit"))
		},
		"get_file_content": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.GetFileContent(ctx, pstr(p, "owner"), pstr(p, "repo"), pstr(p, "path"), pstr(p, "ref"))
		},
		"list_repository_files": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.ListFiles(ctx, pstr(p, "owner"), pstr(p, "repo"), pstr(p, "path"), pstr(p, "ref"))
		},
		"list_pull_requests": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.ListPullRequests(ctx, pstr(p, "owner"), pstr(p, "repo"),
				pstr(p, "state"), pstr(p, "sort"), pstr(p, "direction"), pint(p, "limit"))
		},
		"get_pull_request": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.GetPullRequest(ctx, pstr(p, "owner"), pstr(p, "repo"), pint(p, "pr_number"))
		},
		"list_issues": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.ListIssues(ctx, pstr(p, "owner"), pstr(p, "repo"), pstr(p, "state"),
				pstr(p, "sort"), pstr(p, "direction"), pstr(p, "labels"), pstr(p, "assignee"), pint(p, "limit"))
		},
		"get_issue": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.GetIssue(ctx, pstr(p, "owner"), pstr(p, "repo"), pint(p, "issue_number"))
		},
		"list_comments": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.ListComments(ctx, pstr(p, "owner"), pstr(p, "repo"), pint(p, "issue_number"),
				pstr(p, "sort"), pstr(p, "direction"), pint(p, "limit"))
		},
		"list_labels": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.ListLabels(ctx, pstr(p, "owner"), pstr(p, "repo"), pint(p, "limit"))
		},
		"create_pull_request": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.CreatePullRequest(ctx, pstr(p, "owner"), pstr(p, "repo"), pstr(p, "title"),
				pstr(p, "body"), pstr(p, "head"), pstr(p, "base"), pbool(p, "draft"))
		},
		"update_pull_request": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.UpdatePullRequest(ctx, pstr(p, "owner"), pstr(p, "repo"), pint(p, "pr_number"),
				pstr(p, "title"), pstr(p, "body"), pstr(p, "state"), pstr(p, "base"))
		},
		"merge_pull_request": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.MergePullRequest(ctx, pstr(p, "owner"), pstr(p, "repo"), pint(p, "pr_number"),
				pstr(p, "commit_title"), pstr(p, "commit_message"), pstr(p, "merge_method"))
		},
		"create_issue": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.CreateIssue(ctx, pstr(p, "owner"), pstr(p, "repo"), pstr(p, "title"),
				pstr(p, "body"), parr(p, "labels"), parr(p, "assignees"), pint(p, "milestone"))
		},
		"update_issue": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.UpdateIssue(ctx, pstr(p, "owner"), pstr(p, "repo"), pint(p, "issue_number"),
				pstr(p, "title"), pstr(p, "body"), pstr(p, "state"),
				parr(p, "labels"), parr(p, "assignees"), pint(p, "milestone"))
		},
		"close_issue": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.CloseIssue(ctx, pstr(p, "owner"), pstr(p, "repo"), pint(p, "issue_number"), pstr(p, "state_reason"))
		},
		"add_comment": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.CreateComment(ctx, pstr(p, "owner"), pstr(p, "repo"), pint(p, "issue_number"), pstr(p, "body"))
		},
		"update_comment": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.UpdateComment(ctx, pstr(p, "owner"), pstr(p, "repo"), int64(pint(p, "comment_id")), pstr(p, "body"))
		},
		"delete_comment": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			if err := c.DeleteComment(ctx, pstr(p, "owner"), pstr(p, "repo"), int64(pint(p, "comment_id"))); err != nil {
				return nil, err
			}
			return "评论已删除", nil
		},
		"create_label": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.CreateLabel(ctx, pstr(p, "owner"), pstr(p, "repo"), pstr(p, "name"),
				pstr(p, "color"), pstr(p, "description"))
		},
		"add_labels": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return c.AddLabels(ctx, pstr(p, "owner"), pstr(p, "repo"), pint(p, "issue_number"), parr(p, "labels"))
		},

		"search_conversations": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			filter := contexts.SearchFilter{}
			if types := parr(p, "context_types"); len(types) > 0 {
				filter.Type = contexts.Type(types[0])
			}
			if repos := parr(p, "repositories"); len(repos) > 0 {
				filter.Repository = repos[0]
			}
			if users := parr(p, "users"); len(users) > 0 {
				filter.UserID = users[0]
			}
			results := ctxStore.Search(pstr(p, "query"), filter, pint(p, "limit"))
			out := make([]map[string]interface{}, 0, len(results))
			for _, r := range results {
				out = append(out, map[string]interface{}{
					"context_id": r.Context.ID,
					"type":       r.Context.Type,
					"repository": r.Context.Repository,
					"hits":       r.Hits,
				})
			}
			return out, nil
		},
		"get_context_stats": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			return ctxStore.Stats(), nil
		},
		"find_related_contexts": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			related := ctxStore.Related(pstr(p, "context_id"), pint(p, "limit"))
			ids := make([]string, 0, len(related))
			for _, r := range related {
				ids = append(ids, r.ID)
			}
			return ids, nil
		},
		"export_context": func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			conv := ctxStore.Get(pstr(p, "context_id"))
			if conv == nil {
				return nil, fmt.Errorf("上下文不存在: %s", pstr(p, "context_id"))
			}
			if pstr(p, "format") == "text" {
				var b strings.Builder
				for _, m := range conv.Recent(0) {
					fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Role, m.Content)
				}
				return b.String(), nil
			}
			data, err := json.Marshal(conv.Snapshot())
			if err != nil {
				return nil, err
			}
			return json.RawMessage(data), nil
		},
	}

	for name, h := range handlers {
		if err := r.Bind(name, h); err != nil {
			return err
		}
	}
	return nil
}

func pstr(p map[string]interface{}, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func pint(p map[string]interface{}, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func pbool(p map[string]interface{}, key string) bool {
	v, _ := p[key].(bool)
	return v
}

func parr(p map[string]interface{}, key string) []string {
	items, ok := p[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out
}
