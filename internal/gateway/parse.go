package gateway

import "strings"

// extractJSON cleans an LLM response down to the JSON payload. Models
// sometimes wrap JSON in markdown code fences or add prose around it; strip
// the fences first, then fall back to slicing between the outermost braces.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "{") {
		return content
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
