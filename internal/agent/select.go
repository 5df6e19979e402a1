package agent

import (
	"strings"
)

var reviewKeywords = []string{
	"代码审查", "代码review", "code review", "审查代码", "检查代码",
	"代码质量", "代码问题", "代码优化", "性能优化", "安全检查",
	"重构", "refactor", "最佳实践", "best practice",
}

// codeMarkers are matched case-sensitively against the raw message.
var codeMarkers = []string{"```", "function", "class ", "def ", "const ", "let ", "var "}

// Select picks the agent for a message: the review agent when the message
// asks for a review or contains code, the general agent otherwise.
func Select(message string) ID {
	lower := strings.ToLower(message)
	for _, kw := range reviewKeywords {
		if strings.Contains(lower, kw) {
			return CodeReviewAgent
		}
	}
	for _, m := range codeMarkers {
		if strings.Contains(message, m) {
			return CodeReviewAgent
		}
	}
	return GeneralCodingAgent
}

// ReviewPrompt builds the fixed review request for a piece of code.
// Empty language or context lines are omitted.
func ReviewPrompt(code, language, context string) string {
	var b strings.Builder
	b.WriteString("Please review the following code in detail:\n\n")
	if language != "" {
		b.WriteString("Language: " + language + "\n")
	}
	if context != "" {
		b.WriteString("Context: " + context + "\n")
	}
	b.WriteString("\nCode:\n```" + language + "\n" + code + "\n```\n\n")
	b.WriteString("Please provide:\n")
	b.WriteString("1. A code quality score (1-10)\n")
	b.WriteString("2. Issues found and suggested improvements\n")
	b.WriteString("3. Security analysis\n")
	b.WriteString("4. Performance optimization suggestions\n")
	b.WriteString("5. Best practice recommendations")
	return b.String()
}
