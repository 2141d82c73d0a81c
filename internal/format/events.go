package format

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/chimeyao/ghrelay/internal/config"
)

func joinBody(lines []string, url string) string {
	body := strings.Join(lines, "\n")
	if url != "" {
		body += "\n🔗 " + url
	}
	return body
}

func (f *Formatter) formatPush(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	ref := str(payload, "ref")
	branch := ref
	if strings.HasPrefix(ref, "refs/heads/") {
		branch = ref[strings.LastIndex(ref, "/")+1:]
	}

	pusher := realPusher(payload)
	commits := arr(payload, "commits")
	var added, modified, removed int
	changed := map[string]bool{}
	for _, c := range commits {
		cm, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		for _, field := range []string{"added", "modified", "removed"} {
			files := arr(cm, field)
			switch field {
			case "added":
				added += len(files)
			case "modified":
				modified += len(files)
			case "removed":
				removed += len(files)
			}
			for _, file := range files {
				if name, ok := file.(string); ok {
					changed[name] = true
				}
			}
		}
	}

	lines := []string{
		fmt.Sprintf("├─ 🌿 分支: %s", branch),
		fmt.Sprintf("├─ 👤 By: %s", pusher),
		fmt.Sprintf("├─ 📝 提交数: %d", len(commits)),
	}
	if added+modified+removed > 0 {
		lines = append(lines, fmt.Sprintf("├─ 📊 变更: +%d ~%d -%d", added, modified, removed))
		if len(changed) > 0 {
			lines = append(lines, fmt.Sprintf("└─ 📁 文件: %d 个文件变更", len(changed)))
		} else {
			lines[len(lines)-1] = strings.Replace(lines[len(lines)-1], "├─", "└─", 1)
		}
	} else {
		lines[len(lines)-1] = strings.Replace(lines[len(lines)-1], "├─", "└─", 1)
	}

	compareURL := str(payload, "compare")
	return &Content{
		Type:  "push",
		Title: fmt.Sprintf("%s %s (%s) Push 推送~", icon("push"), f.displayName(payload), f.timestamp()),
		Body:  joinBody(lines, compareURL),
		URL:   compareURL,
		Metadata: map[string]interface{}{
			"commit_count": len(commits),
			"branch":       branch,
			"changes":      map[string]int{"added": added, "modified": modified, "removed": removed},
		},
		Mentions: extractMentions(payload),
	}
}

var prActionText = map[string]string{
	"opened":           "已创建",
	"closed":           "已关闭",
	"reopened":         "已重开",
	"edited":           "已编辑",
	"ready_for_review": "准备审查",
	"review_requested": "请求审查",
	"labeled":          "已添加标签",
	"unlabeled":        "已移除标签",
	"synchronize":      "已同步",
}

func (f *Formatter) formatPullRequest(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	action := strOr(payload, "action", "unknown")
	pr := obj(payload, "pull_request")
	prNumber := num(pr, "number")
	prTitle := strOr(pr, "title", "No title")
	prURL := str(pr, "html_url")
	user := strOr(obj(payload, "sender"), "login", "Unknown")

	actionText := prActionText[action]
	if action == "closed" && boolVal(pr, "merged") {
		actionText = "已合并"
	}
	if actionText == "" {
		actionText = action
	}

	lines := []string{
		fmt.Sprintf("├─ 🆔 #%d", prNumber),
		fmt.Sprintf("├─ 📝 标题: %q", prTitle),
	}
	if action == "labeled" || action == "unlabeled" {
		label := obj(payload, "label")
		lines = append(lines, fmt.Sprintf("├─ 🏷️ 标签: %s (#%s)", strOr(label, "name", "Unknown"), str(label, "color")))
	}
	lines = append(lines, fmt.Sprintf("└─ 👤 By: %s", user))

	if action == "review_requested" {
		reviewer := str(obj(payload, "requested_reviewer"), "login")
		if reviewer == "" {
			if reviewers := arr(pr, "requested_reviewers"); len(reviewers) > 0 {
				if first, ok := reviewers[0].(map[string]interface{}); ok {
					reviewer = str(first, "login")
				}
			}
		}
		if reviewer == "" {
			reviewer = "Unknown"
		}
		lines = []string{
			fmt.Sprintf("├─ 🆔 #%d", prNumber),
			fmt.Sprintf("├─ 📝 标题: %q", prTitle),
			fmt.Sprintf("├─ 👤 请求者: %s", user),
			fmt.Sprintf("└─ 🔍 审查者: %s", reviewer),
		}
	}

	return &Content{
		Type:  "pull_request",
		Title: fmt.Sprintf("%s %s (%s) PR %s~", icon("pull_request"), f.displayName(payload), f.timestamp(), actionText),
		Body:  joinBody(lines, prURL),
		URL:   prURL,
		Metadata: map[string]interface{}{
			"pr_number": prNumber,
			"action":    action,
			"merged":    boolVal(pr, "merged"),
		},
		Mentions: extractMentions(payload),
	}
}

var issueActionText = map[string]string{
	"opened":     "已创建",
	"closed":     "已关闭",
	"reopened":   "已重开",
	"edited":     "已编辑",
	"assigned":   "已分配",
	"unassigned": "已取消分配",
	"labeled":    "已添加标签",
	"unlabeled":  "已移除标签",
}

func (f *Formatter) formatIssues(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	action := strOr(payload, "action", "unknown")
	issue := obj(payload, "issue")
	number := num(issue, "number")
	title := strOr(issue, "title", "No title")
	url := str(issue, "html_url")
	user := strOr(obj(payload, "sender"), "login", "Unknown")

	actionText := issueActionText[action]
	if actionText == "" {
		actionText = action
	}

	lines := []string{
		fmt.Sprintf("├─ 🆔 #%d", number),
		fmt.Sprintf("├─ 📝 标题: %q", title),
	}
	if action == "labeled" || action == "unlabeled" {
		label := obj(payload, "label")
		if color := str(label, "color"); color != "" {
			lines = append(lines, fmt.Sprintf("├─ 🏷️ 标签: %s (#%s)", strOr(label, "name", "Unknown"), color))
		} else {
			lines = append(lines, fmt.Sprintf("├─ 🏷️ 标签: %s", strOr(label, "name", "Unknown")))
		}
	}
	lines = append(lines, fmt.Sprintf("└─ 👤 By: %s", user))

	return &Content{
		Type:     "issues",
		Title:    fmt.Sprintf("%s %s (%s) Issue %s~", icon("issues"), f.displayName(payload), f.timestamp(), actionText),
		Body:     joinBody(lines, url),
		URL:      url,
		Metadata: map[string]interface{}{"issue_number": number, "action": action},
		Mentions: extractMentions(payload),
	}
}

func (f *Formatter) formatRelease(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	action := strOr(payload, "action", "unknown")
	release := obj(payload, "release")
	tag := strOr(release, "tag_name", "Unknown")
	name := strOr(release, "name", tag)
	url := str(release, "html_url")
	user := strOr(obj(payload, "sender"), "login", "Unknown")

	actionText := action
	if action == "published" {
		actionText = "已发布"
	}

	lines := []string{fmt.Sprintf("├─ 🏷️ 版本: %s", tag)}
	if name != tag {
		lines = append(lines, fmt.Sprintf("├─ 📋 名称: %q", name))
	}
	lines = append(lines, fmt.Sprintf("└─ 👤 By: %s", user))

	return &Content{
		Type:     "release",
		Title:    fmt.Sprintf("%s %s (%s) Release %s~", icon("release"), f.displayName(payload), f.timestamp(), actionText),
		Body:     joinBody(lines, url),
		URL:      url,
		Metadata: map[string]interface{}{"tag_name": tag, "action": action},
		Mentions: extractMentions(payload),
	}
}

// formatStar only notifies on reaching configured milestones; routine
// stars and unstars stay silent.
func (f *Formatter) formatStar(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	if str(payload, "action") != "created" {
		return nil
	}
	count := num(obj(payload, "repository"), "stargazers_count")
	if !f.isStarMilestone(count) {
		return nil
	}

	user := strOr(obj(payload, "sender"), "login", "Unknown")
	repoURL := str(obj(payload, "repository"), "html_url")
	lines := []string{
		fmt.Sprintf("├─ 🎯 里程碑: %d ⭐", count),
		fmt.Sprintf("├─ 👤 感谢: @%s", user),
		"└─ 🎉 感谢所有支持者!",
	}

	return &Content{
		Type:     "star",
		Title:    fmt.Sprintf("%s %s (%s) 🎉 达成 %d Stars 里程碑！", icon("star"), f.displayName(payload), f.timestamp(), count),
		Body:     joinBody(lines, repoURL),
		URL:      repoURL,
		Metadata: map[string]interface{}{"stargazers_count": count},
	}
}

func (f *Formatter) formatFork(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	slog.Debug("fork event recorded, not notified",
		"sender", str(obj(payload, "sender"), "login"),
		"repo", str(obj(payload, "repository"), "full_name"))
	return nil
}

func (f *Formatter) formatWatch(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	slog.Debug("watch event recorded, not notified",
		"sender", str(obj(payload, "sender"), "login"),
		"repo", str(obj(payload, "repository"), "full_name"))
	return nil
}

func (f *Formatter) formatCreate(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	refType := str(payload, "ref_type")
	ref := str(payload, "ref")
	sender := strOr(obj(payload, "sender"), "login", "Unknown")

	lines := []string{
		fmt.Sprintf("👤 创建者: %s", sender),
		fmt.Sprintf("📝 类型: %s", refType),
		fmt.Sprintf("🎯 名称: %s", ref),
	}
	return &Content{
		Type:     "create",
		Title:    fmt.Sprintf("%s %s (%s) 创建了%s", icon("create"), f.displayName(payload), f.timestamp(), refType),
		Body:     strings.Join(lines, "\n"),
		Metadata: map[string]interface{}{"ref_type": refType, "ref": ref},
	}
}

func (f *Formatter) formatDelete(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	refType := str(payload, "ref_type")
	ref := str(payload, "ref")
	sender := strOr(obj(payload, "sender"), "login", "Unknown")

	lines := []string{
		fmt.Sprintf("👤 删除者: %s", sender),
		fmt.Sprintf("📝 类型: %s", refType),
		fmt.Sprintf("🎯 名称: %s", ref),
	}
	return &Content{
		Type:     "delete",
		Title:    fmt.Sprintf("%s %s (%s) 删除了%s", icon("delete"), f.displayName(payload), f.timestamp(), refType),
		Body:     strings.Join(lines, "\n"),
		Metadata: map[string]interface{}{"ref_type": refType, "ref": ref},
	}
}

func (f *Formatter) formatWorkflowRun(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	run := obj(payload, "workflow_run")
	conclusion := str(run, "conclusion")
	status := str(run, "status")
	name := strOr(run, "name", "Unknown")
	branch := str(run, "head_branch")
	actor := strOr(obj(run, "actor"), "login", "Unknown")

	var emoji, statusText string
	switch {
	case conclusion == "success":
		emoji, statusText = "✅", "成功"
	case conclusion == "failure":
		emoji, statusText = "❌", "失败"
	case conclusion == "cancelled":
		emoji, statusText = "⏹️", "已取消"
	case status == "in_progress":
		emoji, statusText = "🔄", "运行中"
	default:
		emoji, statusText = "⚙️", strOr(run, "status", "未知")
	}

	lines := []string{
		fmt.Sprintf("👤 触发者: %s", actor),
		fmt.Sprintf("🔧 工作流: %s", name),
		fmt.Sprintf("🌿 分支: %s", branch),
		fmt.Sprintf("📊 状态: %s", statusText),
	}
	return &Content{
		Type:     "workflow_run",
		Title:    fmt.Sprintf("%s %s (%s) 工作流 %s", emoji, f.displayName(payload), f.timestamp(), statusText),
		Body:     strings.Join(lines, "\n"),
		URL:      str(run, "html_url"),
		Metadata: map[string]interface{}{"conclusion": conclusion, "status": status, "workflow": name},
	}
}

func (f *Formatter) formatCommitComment(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	comment := obj(payload, "comment")
	commitID := str(comment, "commit_id")
	if len(commitID) > 8 {
		commitID = commitID[:8]
	}
	body := str(comment, "body")
	if len(body) > 100 {
		body = body[:100] + "..."
	}

	lines := []string{
		fmt.Sprintf("├─ 👤 评论者: %s", strOr(obj(payload, "sender"), "login", "Unknown")),
		fmt.Sprintf("├─ 📝 提交: %s", commitID),
		fmt.Sprintf("└─ 💬 内容: %s", body),
	}
	return &Content{
		Type:     "commit_comment",
		Title:    fmt.Sprintf("💬 %s (%s) 提交评论", f.displayName(payload), f.timestamp()),
		Body:     strings.Join(lines, "\n"),
		URL:      str(comment, "html_url"),
		Metadata: map[string]interface{}{"commit_id": str(comment, "commit_id"), "comment_id": num(comment, "id")},
	}
}

func (f *Formatter) formatGollum(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	pages := arr(payload, "pages")
	user := strOr(obj(payload, "sender"), "login", "Unknown")

	var title string
	var lines []string
	if len(pages) > 0 {
		page, _ := pages[0].(map[string]interface{})
		actionText := map[string]string{"created": "创建", "edited": "编辑"}[str(page, "action")]
		if actionText == "" {
			actionText = str(page, "action")
		}
		title = fmt.Sprintf("%s %s (%s) Wiki %s", icon("gollum"), f.displayName(payload), f.timestamp(), actionText)
		lines = []string{
			fmt.Sprintf("├─ 👤 编辑者: %s", user),
			fmt.Sprintf("├─ 🔧 动作: %s", actionText),
			fmt.Sprintf("└─ 📄 页面: %s", strOr(page, "page_name", "Unknown")),
		}
		if len(pages) > 1 {
			lines = append(lines, fmt.Sprintf("📊 共 %d 个页面被修改", len(pages)))
		}
	} else {
		title = fmt.Sprintf("%s %s (%s) Wiki更新", icon("gollum"), f.displayName(payload), f.timestamp())
		lines = []string{fmt.Sprintf("├─ 👤 编辑者: %s", user), "└─ 📄 Wiki页面已更新"}
	}

	return &Content{
		Type:     "gollum",
		Title:    title,
		Body:     strings.Join(lines, "\n"),
		URL:      str(obj(payload, "repository"), "html_url") + "/wiki",
		Metadata: map[string]interface{}{"pages_count": len(pages)},
	}
}

func (f *Formatter) formatMember(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	action := str(payload, "action")
	actionText := map[string]string{
		"added":   "添加了成员",
		"removed": "移除了成员",
		"edited":  "编辑了成员权限",
	}[action]
	if actionText == "" {
		actionText = action + "成员"
	}
	member := strOr(obj(payload, "member"), "login", "Unknown")

	lines := []string{
		fmt.Sprintf("├─ 👤 操作者: %s", strOr(obj(payload, "sender"), "login", "Unknown")),
		fmt.Sprintf("├─ 🔧 动作: %s", actionText),
		fmt.Sprintf("└─ 👤 成员: %s", member),
	}
	return &Content{
		Type:     "member",
		Title:    fmt.Sprintf("%s %s (%s) %s", icon("member"), f.displayName(payload), f.timestamp(), actionText),
		Body:     strings.Join(lines, "\n"),
		URL:      str(obj(payload, "repository"), "html_url"),
		Metadata: map[string]interface{}{"action": action, "member": member},
	}
}

func (f *Formatter) formatMilestone(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	action := str(payload, "action")
	milestone := obj(payload, "milestone")
	actionText := map[string]string{
		"created": "创建了里程碑",
		"closed":  "关闭了里程碑",
		"opened":  "重新打开里程碑",
		"edited":  "编辑了里程碑",
		"deleted": "删除了里程碑",
	}[action]
	if actionText == "" {
		actionText = action + "里程碑"
	}

	lines := []string{
		fmt.Sprintf("├─ 👤 操作者: %s", strOr(obj(payload, "sender"), "login", "Unknown")),
		fmt.Sprintf("├─ 🔧 动作: %s", actionText),
		fmt.Sprintf("└─ 📝 标题: %s", strOr(milestone, "title", "Unknown")),
	}
	if action == "created" || action == "opened" || action == "edited" {
		open := num(milestone, "open_issues")
		closed := num(milestone, "closed_issues")
		if open+closed > 0 {
			progress := closed * 100 / (open + closed)
			lines = append(lines, fmt.Sprintf("📊 进度: %d%% (%d/%d)", progress, closed, open+closed))
		}
	}

	return &Content{
		Type:     "milestone",
		Title:    fmt.Sprintf("%s %s (%s) %s", icon("milestone"), f.displayName(payload), f.timestamp(), actionText),
		Body:     strings.Join(lines, "\n"),
		URL:      str(milestone, "html_url"),
		Metadata: map[string]interface{}{"action": action, "milestone_id": num(milestone, "id")},
	}
}

func (f *Formatter) formatPublic(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	lines := []string{
		fmt.Sprintf("├─ 👤 操作者: %s", strOr(obj(payload, "sender"), "login", "Unknown")),
		"└─ 🌍 仓库现在对所有人可见",
	}
	return &Content{
		Type:     "public",
		Title:    fmt.Sprintf("%s %s (%s) 仓库已公开", icon("public"), f.displayName(payload), f.timestamp()),
		Body:     strings.Join(lines, "\n"),
		URL:      str(obj(payload, "repository"), "html_url"),
		Metadata: map[string]interface{}{"action": "made_public"},
	}
}

func (f *Formatter) formatPRReview(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	review := obj(payload, "review")
	pr := obj(payload, "pull_request")
	state := str(review, "state")

	stateEmoji := map[string]string{"approved": "✅", "changes_requested": "❌", "commented": "💬"}[state]
	if stateEmoji == "" {
		stateEmoji = "👁️"
	}
	stateText := map[string]string{"approved": "批准了", "changes_requested": "请求修改", "commented": "评论了"}[state]
	if stateText == "" {
		stateText = "审查了"
	}

	lines := []string{
		fmt.Sprintf("├─ 👤 审查者: %s", strOr(obj(review, "user"), "login", "Unknown")),
		fmt.Sprintf("├─ %s 结果: %s", stateEmoji, stateText),
		fmt.Sprintf("└─ 🔀 PR: #%d %s", num(pr, "number"), strOr(pr, "title", "Unknown")),
	}
	return &Content{
		Type:  "pull_request_review",
		Title: fmt.Sprintf("%s %s (%s) PR审查", icon("pull_request_review"), f.displayName(payload), f.timestamp()),
		Body:  strings.Join(lines, "\n"),
		URL:   str(review, "html_url"),
		Metadata: map[string]interface{}{
			"action":       str(payload, "action"),
			"review_state": state,
			"pr_number":    num(pr, "number"),
		},
	}
}

func (f *Formatter) formatPRReviewComment(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	action := str(payload, "action")
	comment := obj(payload, "comment")
	pr := obj(payload, "pull_request")
	body := str(comment, "body")
	if len(body) > 100 {
		body = body[:100] + "..."
	}
	actionText := map[string]string{
		"created": "添加了审查评论",
		"edited":  "编辑了审查评论",
		"deleted": "删除了审查评论",
	}[action]
	if actionText == "" {
		actionText = action + "审查评论"
	}

	lines := []string{
		fmt.Sprintf("├─ 👤 评论者: %s", strOr(obj(comment, "user"), "login", "Unknown")),
		fmt.Sprintf("├─ 🔀 PR: #%d %s", num(pr, "number"), strOr(pr, "title", "Unknown")),
		fmt.Sprintf("└─ 💬 内容: %s", body),
	}
	return &Content{
		Type:  "pull_request_review_comment",
		Title: fmt.Sprintf("💬 %s (%s) %s", f.displayName(payload), f.timestamp(), actionText),
		Body:  strings.Join(lines, "\n"),
		URL:   str(comment, "html_url"),
		Metadata: map[string]interface{}{
			"action":     action,
			"pr_number":  num(pr, "number"),
			"comment_id": num(comment, "id"),
		},
	}
}

func (f *Formatter) formatRepository(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	action := str(payload, "action")
	repo := obj(payload, "repository")
	actionText := map[string]string{
		"created":     "创建了仓库",
		"deleted":     "删除了仓库",
		"archived":    "归档了仓库",
		"unarchived":  "取消归档仓库",
		"publicized":  "公开了仓库",
		"privatized":  "私有化了仓库",
		"transferred": "转移了仓库",
	}[action]
	if actionText == "" {
		actionText = action + "仓库"
	}

	lines := []string{
		fmt.Sprintf("├─ 👤 操作者: %s", strOr(obj(payload, "sender"), "login", "Unknown")),
		fmt.Sprintf("├─ 🔧 动作: %s", actionText),
		fmt.Sprintf("└─ 📁 仓库: %s", strOr(repo, "full_name", "Unknown")),
	}
	return &Content{
		Type:     "repository",
		Title:    fmt.Sprintf("%s %s (%s) %s", icon("repository"), f.displayName(payload), f.timestamp(), actionText),
		Body:     strings.Join(lines, "\n"),
		URL:      str(repo, "html_url"),
		Metadata: map[string]interface{}{"action": action, "repo_id": num(repo, "id")},
	}
}

func (f *Formatter) formatStatus(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	state := str(payload, "state")
	sha := str(obj(payload, "commit"), "sha")
	if len(sha) > 8 {
		sha = sha[:8]
	}
	stateEmoji := map[string]string{"success": "✅", "failure": "❌", "error": "🚨", "pending": "🔄"}[state]
	if stateEmoji == "" {
		stateEmoji = "📊"
	}

	lines := []string{
		fmt.Sprintf("├─ %s 状态: %s", stateEmoji, state),
		fmt.Sprintf("├─ 🔧 检查: %s", strOr(payload, "context", "Unknown")),
		fmt.Sprintf("├─ 📝 提交: %s", sha),
		fmt.Sprintf("└─ 💬 描述: %s", str(payload, "description")),
	}
	return &Content{
		Type:     "status",
		Title:    fmt.Sprintf("%s %s (%s) 状态检查", icon("status"), f.displayName(payload), f.timestamp()),
		Body:     strings.Join(lines, "\n"),
		URL:      str(payload, "target_url"),
		Metadata: map[string]interface{}{"state": state, "commit_sha": sha},
	}
}

func checkStatus(status, conclusion string) (string, string) {
	switch {
	case conclusion == "success":
		return "✅", "成功"
	case conclusion == "failure":
		return "❌", "失败"
	case conclusion == "cancelled":
		return "⏹️", "已取消"
	case status == "in_progress":
		return "🔄", "运行中"
	}
	text := status
	if text == "" {
		text = conclusion
	}
	if text == "" {
		text = "未知"
	}
	return "📋", text
}

func (f *Formatter) formatCheckRun(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	run := obj(payload, "check_run")
	emoji, statusText := checkStatus(str(run, "status"), str(run, "conclusion"))

	lines := []string{
		fmt.Sprintf("├─ %s 状态: %s", emoji, statusText),
		fmt.Sprintf("├─ 🔧 检查: %s", strOr(run, "name", "Unknown")),
		fmt.Sprintf("└─ 🔧 动作: %s", str(payload, "action")),
	}
	return &Content{
		Type:     "check_run",
		Title:    fmt.Sprintf("%s %s (%s) 检查运行", icon("check_run"), f.displayName(payload), f.timestamp()),
		Body:     strings.Join(lines, "\n"),
		URL:      str(run, "html_url"),
		Metadata: map[string]interface{}{"status": str(run, "status"), "conclusion": str(run, "conclusion")},
	}
}

func (f *Formatter) formatCheckSuite(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	suite := obj(payload, "check_suite")
	emoji, statusText := checkStatus(str(suite, "status"), str(suite, "conclusion"))

	lines := []string{
		fmt.Sprintf("├─ %s 状态: %s", emoji, statusText),
		fmt.Sprintf("├─ 🔧 动作: %s", str(payload, "action")),
		fmt.Sprintf("└─ 📋 套件ID: %d", num(suite, "id")),
	}
	return &Content{
		Type:     "check_suite",
		Title:    fmt.Sprintf("%s %s (%s) 检查套件", icon("check_suite"), f.displayName(payload), f.timestamp()),
		Body:     strings.Join(lines, "\n"),
		URL:      str(suite, "url"),
		Metadata: map[string]interface{}{"status": str(suite, "status"), "conclusion": str(suite, "conclusion")},
	}
}

func (f *Formatter) formatDeployment(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	deployment := obj(payload, "deployment")
	lines := []string{
		fmt.Sprintf("├─ 👤 部署者: %s", strOr(obj(payload, "sender"), "login", "Unknown")),
		fmt.Sprintf("├─ 🌍 环境: %s", strOr(deployment, "environment", "Unknown")),
		fmt.Sprintf("├─ 🌿 分支: %s", strOr(deployment, "ref", "Unknown")),
		"└─ 🚀 部署已创建",
	}
	return &Content{
		Type:     "deployment",
		Title:    fmt.Sprintf("%s %s (%s) 部署创建", icon("deployment"), f.displayName(payload), f.timestamp()),
		Body:     strings.Join(lines, "\n"),
		URL:      str(deployment, "url"),
		Metadata: map[string]interface{}{"environment": str(deployment, "environment"), "deployment_id": num(deployment, "id")},
	}
}

func (f *Formatter) formatDeploymentStatus(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	status := obj(payload, "deployment_status")
	deployment := obj(payload, "deployment")
	state := str(status, "state")

	stateEmoji := map[string]string{"success": "✅", "failure": "❌", "error": "🚨", "pending": "🔄", "in_progress": "🔄"}[state]
	if stateEmoji == "" {
		stateEmoji = "📊"
	}
	stateText := map[string]string{"success": "成功", "failure": "失败", "error": "错误", "pending": "等待中", "in_progress": "进行中"}[state]
	if stateText == "" {
		stateText = state
	}

	lines := []string{
		fmt.Sprintf("├─ %s 状态: %s", stateEmoji, stateText),
		fmt.Sprintf("├─ 🌍 环境: %s", strOr(deployment, "environment", "Unknown")),
		fmt.Sprintf("└─ 🚀 部署ID: %d", num(deployment, "id")),
	}
	return &Content{
		Type:     "deployment_status",
		Title:    fmt.Sprintf("%s %s (%s) 部署状态", icon("deployment_status"), f.displayName(payload), f.timestamp()),
		Body:     strings.Join(lines, "\n"),
		URL:      str(status, "target_url"),
		Metadata: map[string]interface{}{"state": state, "deployment_id": num(deployment, "id")},
	}
}

func (f *Formatter) formatPageBuild(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	build := obj(payload, "build")
	status := str(build, "status")
	errMsg := str(obj(build, "error"), "message")

	var emoji, statusText string
	switch {
	case status == "built":
		emoji, statusText = "✅", "构建成功"
	case errMsg != "":
		emoji, statusText = "❌", "构建失败"
	default:
		emoji, statusText = "📄", "页面构建"
	}

	lines := []string{
		fmt.Sprintf("├─ 👤 推送者: %s", strOr(obj(build, "pusher"), "login", "Unknown")),
		fmt.Sprintf("├─ %s 状态: %s", emoji, statusText),
	}
	if errMsg != "" {
		if len(errMsg) > 100 {
			errMsg = errMsg[:100]
		}
		lines = append(lines, fmt.Sprintf("└─ ❌ 错误: %s", errMsg))
	} else {
		lines = append(lines, "└─ 📄 GitHub Pages 已更新")
	}

	return &Content{
		Type:     "page_build",
		Title:    fmt.Sprintf("%s %s (%s) %s", icon("page_build"), f.displayName(payload), f.timestamp(), statusText),
		Body:     strings.Join(lines, "\n"),
		URL:      str(build, "url"),
		Metadata: map[string]interface{}{"status": status},
	}
}

func (f *Formatter) formatPing(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	zen := strOr(payload, "zen", "GitHub is awesome!")
	lines := []string{
		fmt.Sprintf("├─ 👤 发送者: %s", strOr(obj(payload, "sender"), "login", "Unknown")),
		fmt.Sprintf("├─ 🔗 Hook ID: %d", num(payload, "hook_id")),
		fmt.Sprintf("└─ 💭 禅语: %s", zen),
	}
	return &Content{
		Type:     "ping",
		Title:    fmt.Sprintf("%s %s (%s) Webhook测试", icon("ping"), f.displayName(payload), f.timestamp()),
		Body:     strings.Join(lines, "\n"),
		URL:      str(obj(payload, "repository"), "html_url"),
		Metadata: map[string]interface{}{"hook_id": num(payload, "hook_id"), "zen": zen},
	}
}

// formatAIReview renders the synthetic event emitted after an automated
// pull request review completes.
func (f *Formatter) formatAIReview(payload map[string]interface{}, _ *config.RepoConfig) *Content {
	prNumber := num(payload, "pr_number")
	summary := strOr(payload, "review_summary", "AI代码审查已完成")
	status := strOr(payload, "review_status", "completed")

	statusIcon := "🤖"
	switch status {
	case "approved":
		statusIcon = "✅"
	case "changes_requested":
		statusIcon = "⚠️"
	}

	lines := []string{
		fmt.Sprintf("├─ 🔍 PR编号: #%d", prNumber),
		fmt.Sprintf("├─ 📊 审查状态: %s", status),
		fmt.Sprintf("└─ 📝 审查摘要: %s", summary),
	}

	url := str(payload, "pr_url")
	if url == "" {
		url = str(obj(payload, "repository"), "html_url")
	}
	return &Content{
		Type:  "ai_review",
		Title: fmt.Sprintf("%s %s (%s) AI代码审查", statusIcon, f.displayName(payload), f.timestamp()),
		Body:  strings.Join(lines, "\n"),
		URL:   url,
		Metadata: map[string]interface{}{
			"pr_number":     prNumber,
			"review_status": status,
		},
	}
}

func (f *Formatter) formatDefault(event string, payload map[string]interface{}, _ *config.RepoConfig) *Content {
	user := strOr(obj(payload, "sender"), "login", "Unknown")
	action := str(payload, "action")

	lines := []string{fmt.Sprintf("├─ 👤 By: %s", user)}
	if action != "" {
		lines = append(lines, fmt.Sprintf("├─ 🔧 Action: %s", action))
	}
	lines = append(lines, fmt.Sprintf("└─ 📝 Event: %s", event))

	repoURL := str(obj(payload, "repository"), "html_url")
	return &Content{
		Type:     event,
		Title:    fmt.Sprintf("%s %s (%s) %s~", icon(event), f.displayName(payload), f.timestamp(), event),
		Body:     joinBody(lines, repoURL),
		URL:      repoURL,
		Priority: 5,
		Metadata: map[string]interface{}{"event": event, "action": action},
	}
}
