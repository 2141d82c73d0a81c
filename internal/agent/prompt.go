package agent

import (
	"strings"

	"github.com/chimeyao/ghrelay/internal/contexts"
	"github.com/chimeyao/ghrelay/internal/providers"
	"github.com/chimeyao/ghrelay/internal/tools"
)

// recentWindow is how many prior turns go into each model request.
const recentWindow = 5

const personaPrompt = "始终保持实事求是、温柔坚定的态度。不做糖衣炮弹, 但表达要温柔而有力量。" +
	"对复杂问题提供清晰、结构化且易于理解的观点。避免过度奉承, 使用俏皮、呆萌、可爱的语气与颜文字增添情绪色彩。" +
	"形式专业、逻辑明确、表达有前瞻性、务实优先、不说空话, 同时注意使用“颜文字”而不是 emoji。\n\n" +
	"当你需要使用工具时, 请在回复中明确说明要使用的工具名称和参数, 格式如下：\n" +
	"[TOOL_CALL]工具名称(参数1=值1, 参数2=值2)[/TOOL_CALL]"

const toolFormatRules = `### 调用格式
**标准格式**：[TOOL_CALL]工具名称(参数名1=参数值1, 参数名2=参数值2)[/TOOL_CALL]

**格式要求**：
1. 严格使用方括号标记：[TOOL_CALL] 和 [/TOOL_CALL]
2. 工具名称必须与定义完全一致
3. 参数格式：参数名=参数值, 多个参数用逗号和空格分隔
4. 字符串参数可以不加引号（系统会自动处理）
5. 布尔参数使用 true 或 false
6. 数字参数直接使用数字

### 约束
1. **工具限制**：只能使用上述列出的工具, 不得调用任何其他工具
2. **格式严格**：必须严格按照 [TOOL_CALL]工具名(参数)[/TOOL_CALL] 格式
3. **参数完整**：所有标记为必需的参数都必须提供
4. **参数正确**：参数名和类型必须完全符合工具定义
5. **不可编造**：不要编造或假设任何工具调用结果
6. **基于事实**：只基于实际工具返回的数据回复

回答完成后请在末尾加上 [END] 标记。`

// systemPrompt assembles persona, tool catalog, and format rules.
func systemPrompt(registry *tools.Registry) string {
	var b strings.Builder
	b.WriteString(personaPrompt)

	catalog := registry.Catalog()
	if catalog == "" {
		b.WriteString("\n\n**当前没有可用工具**, 你不能执行任何工具操作。")
		return b.String()
	}

	b.WriteString("\n\n可用工具:\n")
	b.WriteString("**限制：你只能使用以下明确列出的工具, 绝对不能调用任何未在此列表中的工具**\n\n")
	b.WriteString("### 可用工具列表\n")
	b.WriteString(catalog)
	b.WriteString("\n")
	b.WriteString(toolFormatRules)
	return b.String()
}

// buildMessages turns the conversation tail into a provider request. The
// latest user message is expected to already be in the context.
func buildMessages(registry *tools.Registry, conv *contexts.Context) []providers.Message {
	messages := []providers.Message{{Role: "system", Content: systemPrompt(registry)}}
	for _, msg := range conv.Recent(recentWindow) {
		role := "assistant"
		if msg.Role == "user" {
			role = "user"
		}
		messages = append(messages, providers.Message{Role: role, Content: msg.Content})
	}
	return messages
}
