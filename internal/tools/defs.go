package tools

// builtinTools is the full catalog: GitHub read/write operations plus
// context-store queries. Descriptions feed the system prompt verbatim.
var builtinTools = []Definition{
	// --- GitHub read tools ---
	{
		Name: "search_code", Category: CategoryGitHub, Permission: PermGitHubRead,
		Description: "在GitHub仓库中搜索代码",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "query", Type: "string", Required: true, Description: "搜索关键字"},
			{Name: "file_extension", Type: "string", Description: "文件扩展名过滤"},
			{Name: "path", Type: "string", Description: "路径过滤"},
			{Name: "limit", Type: "int", Default: 30, Description: "结果数量限制"},
		},
	},
	{
		Name: "get_file_content", Category: CategoryGitHub, Permission: PermGitHubRead,
		Description: "获取GitHub文件内容",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "path", Type: "string", Required: true, Description: "文件路径"},
			{Name: "ref", Type: "string", Default: "main", Description: "分支或提交SHA"},
		},
	},
	{
		Name: "list_repository_files", Category: CategoryGitHub, Permission: PermGitHubRead,
		Description: "列出仓库文件和目录",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "path", Type: "string", Default: "", Description: "目录路径"},
			{Name: "ref", Type: "string", Default: "main", Description: "分支或提交SHA"},
		},
	},
	{
		Name: "list_pull_requests", Category: CategoryGitHub, Permission: PermGitHubRead,
		Description: "列出仓库的Pull Requests",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "state", Type: "string", Default: "open", Description: "PR状态(open/closed/all)"},
			{Name: "sort", Type: "string", Default: "created", Description: "排序方式(created/updated/popularity)"},
			{Name: "direction", Type: "string", Default: "desc", Description: "排序方向(asc/desc)"},
			{Name: "limit", Type: "int", Default: 30, Description: "结果数量限制"},
		},
	},
	{
		Name: "get_pull_request", Category: CategoryGitHub, Permission: PermGitHubRead,
		Description: "获取指定PR的详细信息",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "pr_number", Type: "int", Required: true, Description: "PR编号"},
		},
	},
	{
		Name: "list_issues", Category: CategoryGitHub, Permission: PermGitHubRead,
		Description: "列出仓库的Issues",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "state", Type: "string", Default: "open", Description: "Issue状态(open/closed/all)"},
			{Name: "sort", Type: "string", Default: "created", Description: "排序方式(created/updated/comments)"},
			{Name: "direction", Type: "string", Default: "desc", Description: "排序方向(asc/desc)"},
			{Name: "labels", Type: "string", Description: "标签过滤(逗号分隔)"},
			{Name: "assignee", Type: "string", Description: "分配人过滤"},
			{Name: "limit", Type: "int", Default: 30, Description: "结果数量限制"},
		},
	},
	{
		Name: "get_issue", Category: CategoryGitHub, Permission: PermGitHubRead,
		Description: "获取指定Issue的详细信息",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "issue_number", Type: "int", Required: true, Description: "Issue编号"},
		},
	},
	{
		Name: "list_comments", Category: CategoryGitHub, Permission: PermGitHubRead,
		Description: "列出Issue或PR的评论",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "issue_number", Type: "int", Required: true, Description: "Issue或PR编号"},
			{Name: "sort", Type: "string", Default: "created", Description: "排序方式(created/updated)"},
			{Name: "direction", Type: "string", Default: "asc", Description: "排序方向(asc/desc)"},
			{Name: "limit", Type: "int", Default: 30, Description: "结果数量限制"},
		},
	},
	{
		Name: "list_labels", Category: CategoryGitHub, Permission: PermGitHubRead,
		Description: "列出仓库的所有标签",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "limit", Type: "int", Default: 30, Description: "结果数量限制"},
		},
	},

	// --- GitHub write tools ---
	{
		Name: "create_pull_request", Category: CategoryGitHub, Permission: PermGitHubWrite,
		Description: "创建新的Pull Request",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "title", Type: "string", Required: true, Description: "PR标题"},
			{Name: "body", Type: "string", Required: true, Description: "PR描述"},
			{Name: "head", Type: "string", Required: true, Description: "源分支"},
			{Name: "base", Type: "string", Default: "main", Description: "目标分支"},
			{Name: "draft", Type: "bool", Default: false, Description: "是否为草稿PR"},
		},
	},
	{
		Name: "update_pull_request", Category: CategoryGitHub, Permission: PermGitHubWrite,
		Description: "更新Pull Request",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "pr_number", Type: "int", Required: true, Description: "PR编号"},
			{Name: "title", Type: "string", Description: "新标题"},
			{Name: "body", Type: "string", Description: "新描述"},
			{Name: "state", Type: "string", Description: "新状态(open/closed)"},
			{Name: "base", Type: "string", Description: "新目标分支"},
		},
	},
	{
		Name: "merge_pull_request", Category: CategoryGitHub, Permission: PermGitHubWrite,
		Description: "合并Pull Request",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "pr_number", Type: "int", Required: true, Description: "PR编号"},
			{Name: "commit_title", Type: "string", Description: "合并提交标题"},
			{Name: "commit_message", Type: "string", Description: "合并提交消息"},
			{Name: "merge_method", Type: "string", Default: "merge", Description: "合并方式(merge/squash/rebase)"},
		},
	},
	{
		Name: "create_issue", Category: CategoryGitHub, Permission: PermGitHubWrite,
		Description: "创建新的Issue",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "title", Type: "string", Required: true, Description: "Issue标题"},
			{Name: "body", Type: "string", Description: "Issue描述"},
			{Name: "labels", Type: "array", Description: "标签列表"},
			{Name: "assignees", Type: "array", Description: "分配人列表"},
			{Name: "milestone", Type: "int", Description: "里程碑编号"},
		},
	},
	{
		Name: "update_issue", Category: CategoryGitHub, Permission: PermGitHubWrite,
		Description: "更新Issue",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "issue_number", Type: "int", Required: true, Description: "Issue编号"},
			{Name: "title", Type: "string", Description: "新标题"},
			{Name: "body", Type: "string", Description: "新描述"},
			{Name: "state", Type: "string", Description: "新状态(open/closed)"},
			{Name: "labels", Type: "array", Description: "新标签列表"},
			{Name: "assignees", Type: "array", Description: "新分配人列表"},
			{Name: "milestone", Type: "int", Description: "新里程碑编号"},
		},
	},
	{
		Name: "close_issue", Category: CategoryGitHub, Permission: PermGitHubWrite,
		Description: "关闭Issue",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "issue_number", Type: "int", Required: true, Description: "Issue编号"},
			{Name: "state_reason", Type: "string", Description: "关闭原因(completed/not_planned)"},
		},
	},
	{
		Name: "add_comment", Category: CategoryGitHub, Permission: PermGitHubWrite,
		Description: "为Issue或PR添加评论",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "issue_number", Type: "int", Required: true, Description: "Issue或PR编号"},
			{Name: "body", Type: "string", Required: true, Description: "评论内容"},
		},
	},
	{
		Name: "update_comment", Category: CategoryGitHub, Permission: PermGitHubWrite,
		Description: "更新评论内容",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "comment_id", Type: "int", Required: true, Description: "评论ID"},
			{Name: "body", Type: "string", Required: true, Description: "新评论内容"},
		},
	},
	{
		Name: "delete_comment", Category: CategoryGitHub, Permission: PermGitHubWrite,
		Description: "删除评论",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "comment_id", Type: "int", Required: true, Description: "评论ID"},
		},
	},
	{
		Name: "create_label", Category: CategoryGitHub, Permission: PermGitHubWrite,
		Description: "创建新标签",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "name", Type: "string", Required: true, Description: "标签名称"},
			{Name: "color", Type: "string", Required: true, Description: "标签颜色(十六进制)"},
			{Name: "description", Type: "string", Description: "标签描述"},
		},
	},
	{
		Name: "add_labels", Category: CategoryGitHub, Permission: PermGitHubWrite,
		Description: "为Issue或PR添加标签",
		Params: []Param{
			{Name: "owner", Type: "string", Required: true, Description: "仓库所有者"},
			{Name: "repo", Type: "string", Required: true, Description: "仓库名称"},
			{Name: "issue_number", Type: "int", Required: true, Description: "Issue或PR编号"},
			{Name: "labels", Type: "array", Required: true, Description: "标签列表"},
		},
	},

	// --- Context tools ---
	{
		Name: "search_conversations", Category: CategoryContext, Permission: PermAIChat,
		Description: "搜索跨上下文的对话记录",
		Params: []Param{
			{Name: "query", Type: "string", Required: true, Description: "搜索查询"},
			{Name: "context_types", Type: "array", Description: "上下文类型过滤"},
			{Name: "repositories", Type: "array", Description: "仓库过滤"},
			{Name: "users", Type: "array", Description: "用户过滤"},
			{Name: "limit", Type: "int", Default: 20, Description: "结果数量限制"},
		},
	},
	{
		Name: "get_context_stats", Category: CategoryContext, Permission: PermAIChat,
		Description: "获取上下文统计信息",
	},
	{
		Name: "find_related_contexts", Category: CategoryContext, Permission: PermAIChat,
		Description: "查找相关的上下文",
		Params: []Param{
			{Name: "context_id", Type: "string", Required: true, Description: "目标上下文ID"},
			{Name: "limit", Type: "int", Default: 5, Description: "结果数量限制"},
		},
	},
	{
		Name: "export_context", Category: CategoryContext, Permission: PermAIChat,
		Description: "导出上下文数据",
		Params: []Param{
			{Name: "context_id", Type: "string", Required: true, Description: "上下文ID"},
			{Name: "format", Type: "string", Default: "json", Description: "导出格式(json/text)"},
		},
	},
}
