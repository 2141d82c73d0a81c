// Package review runs automated pull request reviews: prompt assembly,
// verdict parsing with a text fallback, result repair, and submission.
package review

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/go-github/v72/github"
)

// Review states, matching the GitHub review event they translate to.
const (
	StatusApproved         = "approved"
	StatusChangesRequested = "changes_requested"
	StatusCommented        = "commented"
	StatusFailed           = "failed"
)

const (
	maxPromptFiles  = 10
	maxPatchChars   = 2000
	maxLineComments = 10

	// approveThreshold is the score below which an approved verdict is
	// still submitted as COMMENT rather than APPROVE.
	approveThreshold = 90.0
)

// Comment is one line-level finding.
type Comment struct {
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
	Severity   string `json:"severity"` // critical, error, warning, info
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Category   string `json:"category,omitempty"`
}

// Result is a normalized review verdict.
type Result struct {
	Success          bool
	Repository       string
	PRNumber         int
	Score            float64
	Approved         bool
	Status           string
	Summary          string
	DetailedAnalysis string
	Comments         []Comment
	IssuesCount      map[string]int
	Error            string
}

// BuildPrompt renders the review request for the model: PR metadata plus
// up to ten files with truncated patches, and the strict JSON contract.
func BuildPrompt(repository string, number int, title, body string, files []*github.CommitFile) string {
	var filesInfo []string
	for i, file := range files {
		if i >= maxPromptFiles {
			break
		}
		patch := file.GetPatch()
		if len(patch) > maxPatchChars {
			patch = patch[:maxPatchChars]
		}
		filesInfo = append(filesInfo, fmt.Sprintf(`
### 文件: %s
- 状态: %s
- 新增行数: %d
- 删除行数: %d
- 变更内容:
`+"```diff\n%s\n```\n", file.GetFilename(), file.GetStatus(), file.GetAdditions(), file.GetDeletions(), patch))
	}

	if body == "" {
		body = "无描述"
	}

	return fmt.Sprintf(`# AI代码审查任务

## 基本信息
- **仓库**: %s
- **PR编号**: #%d
- **标题**: %s
- **描述**: %s

## 文件变更
%s

## 审查要求

请对以上Pull Request进行全面的代码审查，并严格按照以下JSON格式返回结果：

`+"```json"+`
{
  "overall_score": 85.5,
  "approved": true,
  "status": "approved",
  "summary": "整体代码质量良好，建议合并",
  "detailed_analysis": "详细的审查分析...",
  "comments": [
    {
      "file_path": "src/example.go",
      "line_number": 42,
      "severity": "warning",
      "message": "建议使用更具描述性的变量名",
      "suggestion": "将变量名从'x'改为'userCount'",
      "category": "code_quality"
    }
  ],
  "issues_count": {
    "critical": 0,
    "error": 0,
    "warning": 2,
    "info": 1
  }
}
`+"```"+`

## 评分标准

- **90-100分**: 优秀，代码质量很高，可以直接合并
- **80-89分**: 良好，有少量改进建议但不影响合并
- **70-79分**: 一般，需要一些改进但整体可接受
- **60-69分**: 较差，存在明显问题需要修改
- **60分以下**: 不合格，存在严重问题必须修改

## 输出要求

1. **必须返回有效的JSON格式**
2. **overall_score**: 0-100的数值评分
3. **approved**: 是否建议合并 (true/false)
4. **status**: 审查状态 ("approved", "changes_requested", "commented")
5. **summary**: 简洁的总结
6. **detailed_analysis**: 详细分析
7. **comments**: 具体的代码评论数组
8. **issues_count**: 按严重程度统计的问题数量

请确保返回的JSON格式正确，可以被程序解析。`,
		repository, number, title, body, strings.Join(filesInfo, "\n"))
}

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

type wireResult struct {
	OverallScore     *float64       `json:"overall_score"`
	Approved         *bool          `json:"approved"`
	Status           string         `json:"status"`
	Summary          string         `json:"summary"`
	DetailedAnalysis string         `json:"detailed_analysis"`
	Comments         []Comment      `json:"comments"`
	IssuesCount      map[string]int `json:"issues_count"`
}

// ParseResponse turns the model's answer into a Result. A fenced or bare
// JSON object is preferred; unparseable answers fall back to keyword
// scoring over the raw text.
func ParseResponse(text, repository string, number int) *Result {
	jsonStr := strings.TrimSpace(text)
	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		jsonStr = m[1]
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(jsonStr), &wire); err != nil {
		return fallbackResult(text, repository, number)
	}

	score := 85.0
	if wire.OverallScore != nil {
		score = *wire.OverallScore
	}
	approved := score >= 80
	if wire.Approved != nil {
		approved = *wire.Approved
	}

	status := wire.Status
	switch status {
	case StatusApproved, StatusChangesRequested, StatusCommented:
	default:
		switch {
		case approved && score >= 90:
			status = StatusApproved
		case score < 70:
			status = StatusChangesRequested
		default:
			status = StatusCommented
		}
	}

	issues := wire.IssuesCount
	if len(issues) == 0 {
		issues = map[string]int{"critical": 0, "error": 0, "warning": 0, "info": 0}
		for _, c := range wire.Comments {
			if _, ok := issues[c.Severity]; ok {
				issues[c.Severity]++
			}
		}
	}

	summary := wire.Summary
	if summary == "" {
		summary = "AI审查完成"
	}
	analysis := wire.DetailedAnalysis
	if analysis == "" {
		analysis = text
	}

	return &Result{
		Success:          true,
		Repository:       repository,
		PRNumber:         number,
		Score:            score,
		Approved:         approved,
		Status:           status,
		Summary:          summary,
		DetailedAnalysis: analysis,
		Comments:         wire.Comments,
		IssuesCount:      issues,
	}
}

// fallbackResult scores the raw text by keyword when JSON parsing fails.
func fallbackResult(text, repository string, number int) *Result {
	lower := strings.ToLower(text)

	var score float64
	switch {
	case containsAny(lower, "优秀", "excellent", "perfect", "很好"):
		score = 90
	case containsAny(lower, "良好", "good", "不错"):
		score = 80
	case containsAny(lower, "问题", "错误", "bug", "issue"):
		score = 65
	default:
		score = 75
	}

	approved := score >= 80
	status := StatusCommented
	if approved {
		status = StatusApproved
	}

	return &Result{
		Success:          true,
		Repository:       repository,
		PRNumber:         number,
		Score:            score,
		Approved:         approved,
		Status:           status,
		Summary:          "AI审查完成（文本解析）",
		DetailedAnalysis: text,
		IssuesCount:      map[string]int{"critical": 0, "error": 0, "warning": 0, "info": 0},
	}
}

// ErrorResult marks a review as failed with one critical issue.
func ErrorResult(errMsg, repository string, number int) *Result {
	return &Result{
		Success:          false,
		Repository:       repository,
		PRNumber:         number,
		Score:            0,
		Approved:         false,
		Status:           StatusFailed,
		Summary:          fmt.Sprintf("审查异常: %s", errMsg),
		DetailedAnalysis: fmt.Sprintf("审查过程中发生异常: %s", errMsg),
		IssuesCount:      map[string]int{"critical": 1},
		Error:            errMsg,
	}
}

// Repair fixes the inconsistencies a model verdict commonly has: score
// range, approved-but-low-score, and missing statistics keys.
func (r *Result) Repair() {
	if r.Score < 0 {
		r.Score = 0
	} else if r.Score > 100 {
		r.Score = 100
	}
	if r.Approved && r.Score < 70 {
		r.Approved = false
		r.Status = StatusChangesRequested
	}
	if r.IssuesCount == nil {
		r.IssuesCount = map[string]int{}
	}
	for _, key := range []string{"critical", "error", "warning", "info"} {
		if _, ok := r.IssuesCount[key]; !ok {
			r.IssuesCount[key] = 0
		}
	}
	if r.Summary == "" {
		r.Summary = "AI审查完成"
	}
	if r.DetailedAnalysis == "" {
		r.DetailedAnalysis = "详细分析信息不可用"
	}
}

// Event returns the GitHub review event for submission: APPROVE only for
// an approved verdict scoring at least 90, COMMENT otherwise.
func (r *Result) Event() string {
	if r.Approved && r.Score >= approveThreshold {
		return "APPROVE"
	}
	return "COMMENT"
}

// ScoreEmoji tiers a score for the report heading.
func ScoreEmoji(score float64) string {
	switch {
	case score >= 90:
		return "🎉"
	case score >= 80:
		return "✅"
	case score >= 70:
		return "⚠️"
	case score >= 60:
		return "❌"
	default:
		return "🚨"
	}
}

var severityEmojis = map[string]string{
	"critical": "🚨",
	"high":     "❌",
	"error":    "❌",
	"medium":   "⚠️",
	"warning":  "⚠️",
	"low":      "ℹ️",
	"info":     "ℹ️",
}

// FormatBody renders the review report comment signed with botName.
func (r *Result) FormatBody(botName string) string {
	status := "✅ 通过"
	if !r.Approved {
		status = "❌ 需要改进"
	}
	lines := []string{
		fmt.Sprintf("## %s AI代码审查报告", ScoreEmoji(r.Score)),
		"",
		fmt.Sprintf("**总体评分**: %.1f/100", r.Score),
		fmt.Sprintf("**审查状态**: %s", status),
		"",
		fmt.Sprintf("**总结**: %s", r.Summary),
	}

	hasIssues := false
	for _, count := range r.IssuesCount {
		if count > 0 {
			hasIssues = true
			break
		}
	}
	if hasIssues {
		lines = append(lines, "", "### 📊 问题统计", "")
		for _, severity := range []string{"critical", "high", "error", "medium", "warning", "low", "info"} {
			count, ok := r.IssuesCount[severity]
			if !ok || count == 0 {
				continue
			}
			emoji := severityEmojis[severity]
			lines = append(lines, fmt.Sprintf("- %s %s: %d", emoji, title(severity), count))
		}
	}

	lines = append(lines, "", "---", fmt.Sprintf("✨ Powered by **%s**' GitHub Bot", botName))
	return strings.Join(lines, "\n")
}

// LineComments converts findings into review line comments, capped.
func (r *Result) LineComments() []*github.DraftReviewComment {
	var comments []*github.DraftReviewComment
	for _, c := range r.Comments {
		if len(comments) >= maxLineComments {
			break
		}
		if c.FilePath == "" || c.LineNumber <= 0 {
			continue
		}
		body := fmt.Sprintf("**%s**: %s", title(c.Severity), c.Message)
		if c.Suggestion != "" {
			body += "\n\n" + c.Suggestion
		}
		comments = append(comments, &github.DraftReviewComment{
			Path: github.Ptr(c.FilePath),
			Line: github.Ptr(c.LineNumber),
			Body: github.Ptr(body),
		})
	}
	return comments
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
