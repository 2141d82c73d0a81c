package tools

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// maxStringParam truncates oversized string parameters after stripping.
const maxStringParam = 1000

// dangerousPatterns reject values carrying path traversal or injection
// attempts before they reach the GitHub API.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.\./`),
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)eval\(`),
	regexp.MustCompile(`(?i)exec\(`),
	regexp.MustCompile(`(?i)__import__`),
	regexp.MustCompile(`(?i)subprocess`),
	regexp.MustCompile(`(?i)os\.`),
}

var strippedChars = regexp.MustCompile(`[<>"'\\/]`)

// CheckSafety rejects any string parameter matching a dangerous pattern.
func CheckSafety(params map[string]interface{}) error {
	for name, value := range params {
		s, ok := value.(string)
		if !ok {
			continue
		}
		for _, pat := range dangerousPatterns {
			if pat.MatchString(s) {
				return fmt.Errorf("参数包含危险内容: %s", name)
			}
		}
	}
	return nil
}

// Sanitize strips markup-significant characters from string values and
// truncates them. Non-string values pass through unchanged.
func Sanitize(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for name, value := range params {
		if s, ok := value.(string); ok {
			s = strippedChars.ReplaceAllString(s, "")
			if len(s) > maxStringParam {
				s = truncateUTF8(s, maxStringParam)
			}
			out[name] = s
			continue
		}
		out[name] = value
	}
	return out
}

// truncateUTF8 cuts at a rune boundary at or below max bytes.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
