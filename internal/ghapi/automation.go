package ghapi

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/go-github/v72/github"
)

// LabelSpec is a predefined label with its color and description.
type LabelSpec struct {
	Name        string
	Color       string
	Description string
}

// predefinedLabels is the palette used when auto-created labels are
// missing from a repository.
var predefinedLabels = map[string]LabelSpec{
	"bug":              {"Bug", "d73a4a", "Something isn't working"},
	"doc":              {"Doc", "0075ca", "Improvements or additions to documentation"},
	"feat":             {"feat", "a2eeef", "New feature or request"},
	"good first issue": {"good first issue", "7057ff", "Good for newcomers"},
	"help+":            {"help+", "008672", "需要额外关注"},
	"information+":     {"information+", "d876e3", "Further information is requested"},
	"won't_fix":        {"won't_fix", "e4e669", "此问题不适用于本程序"},
	"未计划":              {"未计划", "ffffff", "This will not be worked on"},
	"todo":             {"TODO", "8AF998", "正在计划实现的功能"},
	"等待验证":             {"等待验证", "2B99F7", "已尝试修复且开发者已验证，但仍需题主验证是否修复"},
	"优先级：低":            {"优先级：低", "BFF5B2", "较低的优先级，处理速度可能会很久"},
	"优先级：中等":           {"优先级：中等", "ECEE75", "中等优先级，在不久的版本会处理"},
	"优先级：高":            {"优先级：高", "ED3A06", "较高的优先级，可能会在下个版本更新处理"},
	"优先级：紧急":           {"优先级：紧急", "AC1AEB", "紧急修复，处理完成将会直接更新"},
	"bug/windows":      {"bug/Windows", "0969da", "在Windows操作系统会出现的问题"},
	"bug/linux":        {"bug/Linux", "FEF2C0", "在Linux系统会出现的问题"},
	"bug/macos":        {"bug/macOS", "CCDDFF", "在macOS上会出现的问题"},
	"小组件":              {"小组件", "ff6b6b", "与小组件相关的功能或问题"},
	"插件":               {"插件", "4ecdc4", "插件系统相关的功能或问题"},
	"配置":               {"配置", "f7b731", "配置文件或设置相关的问题"},
	"ui":               {"UI", "a55eea", "用户界面设计或交互相关的问题"},
	"通知提醒":             {"通知提醒", "fd79a8", "通知和提醒功能相关的问题"},
	"other":            {"Other", "636e72", "其他未分类的问题或功能"},
}

// keywordLabels maps labels to trigger keywords found in issue text.
var keywordLabels = map[string][]string{
	"Doc": {"文档", "说明"},
	"小组件": {"小组件", "组件", "控件"},
	"插件":  {"插件", "扩展"},
}

// BotSignature marks comments and reviews posted by the relay itself.
const BotSignature = "✨ Powered by"

// DetectLabels matches keyword mappings against issue text. Keywords
// must appear as standalone words (CJK-aware boundaries).
func DetectLabels(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var detected []string
	for label, keywords := range keywordLabels {
		for _, kw := range keywords {
			if matchKeyword(lower, strings.ToLower(kw)) {
				detected = append(detected, label)
				break
			}
		}
	}
	return detected
}

func matchKeyword(text, keyword string) bool {
	pattern := `\b` + regexp.QuoteMeta(keyword) + `\b`
	for _, r := range keyword {
		if r >= 0x4e00 && r <= 0x9fff {
			// CJK keywords have no \b boundary; require non-word neighbors
			pattern = `(^|[^\w\p{Han}])` + regexp.QuoteMeta(keyword) + `($|[^\w\p{Han}])`
			break
		}
	}
	matched, err := regexp.MatchString(pattern, text)
	return err == nil && matched
}

// EnsureLabels creates any missing labels from the predefined palette.
func (c *Client) EnsureLabels(ctx context.Context, owner, repo string, labels []string) error {
	existing, err := c.ListLabels(ctx, owner, repo, 100)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, l := range existing {
		have[strings.ToLower(l.GetName())] = true
	}

	for _, name := range labels {
		if have[strings.ToLower(name)] {
			continue
		}
		spec, ok := predefinedLabels[strings.ToLower(name)]
		if !ok {
			continue
		}
		if _, err := c.CreateLabel(ctx, owner, repo, spec.Name, spec.Color, spec.Description); err != nil {
			slog.Warn("create label failed", "repo", owner+"/"+repo, "label", spec.Name, "error", err)
			continue
		}
		slog.Info("label created", "repo", owner+"/"+repo, "label", spec.Name)
	}
	return nil
}

// ValidateIssueFormat checks bug reports for the expected sections.
func ValidateIssueFormat(title, body string) []string {
	var advice []string
	lowerTitle := strings.ToLower(title)
	if strings.Contains(lowerTitle, "bug") || strings.Contains(lowerTitle, "error") {
		sections := []string{"重现步骤", "期望行为", "实际行为", "reproduce", "expected", "actual"}
		found := false
		lowerBody := strings.ToLower(body)
		for _, s := range sections {
			if strings.Contains(lowerBody, strings.ToLower(s)) {
				found = true
				break
			}
		}
		if !found {
			advice = append(advice, "建议填写信息: 重现步骤、期望行为、实际行为")
		}
	}
	return advice
}

// ValidatePRFormat flags PRs opened directly from a mainline branch.
func ValidatePRFormat(headRef string) []string {
	switch headRef {
	case "main", "master", "develop":
		return []string{"建议: 请不要直接从主分支创建PR"}
	}
	return nil
}

// HandleIssueOpened posts format advice and auto-attaches keyword labels.
func (c *Client) HandleIssueOpened(ctx context.Context, owner, repo string, number int, title, body string) error {
	if advice := ValidateIssueFormat(title, body); len(advice) > 0 {
		msg := formatAdviceComment("Issue格式问题", advice)
		if _, err := c.CreateComment(ctx, owner, repo, number, msg); err != nil {
			slog.Warn("issue advice comment failed", "repo", owner+"/"+repo, "issue", number, "error", err)
		}
	}

	labels := DetectLabels(title + " " + body)
	if len(labels) == 0 {
		return nil
	}
	if err := c.EnsureLabels(ctx, owner, repo, labels); err != nil {
		slog.Warn("ensure labels failed", "repo", owner+"/"+repo, "error", err)
	}
	if _, err := c.AddLabels(ctx, owner, repo, number, labels); err != nil {
		return fmt.Errorf("auto label issue: %w", err)
	}
	slog.Info("issue auto-labeled", "repo", owner+"/"+repo, "issue", number, "labels", labels)
	return nil
}

// HandlePROpened posts format advice on freshly opened PRs.
func (c *Client) HandlePROpened(ctx context.Context, owner, repo string, number int, headRef string) error {
	advice := ValidatePRFormat(headRef)
	if len(advice) == 0 {
		return nil
	}
	msg := formatAdviceComment("PR格式问题", advice)
	if _, err := c.CreateComment(ctx, owner, repo, number, msg); err != nil {
		return fmt.Errorf("pr advice comment: %w", err)
	}
	return nil
}

func formatAdviceComment(heading string, advice []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", heading)
	for _, a := range advice {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	b.WriteString("\n建议修改内容以符合规范(当然可以忽略(")
	return b.String()
}

// FindBotComment locates the bot's own comment containing any keyword.
func (c *Client) FindBotComment(ctx context.Context, owner, repo string, number int, keywords []string, botUsername string) (*github.IssueComment, error) {
	comments, err := c.ListComments(ctx, owner, repo, number, "created", "asc", 100)
	if err != nil {
		return nil, err
	}
	for _, comment := range comments {
		if comment.GetUser().GetLogin() != botUsername {
			continue
		}
		body := strings.ToLower(comment.GetBody())
		for _, kw := range keywords {
			if strings.Contains(body, strings.ToLower(kw)) {
				return comment, nil
			}
		}
	}
	return nil, nil
}
