package llm

import (
	"encoding/json"
	"strings"
)

// extractJSON returns the JSON payload of a model reply. Models sometimes
// wrap the object in a ```json fence; anything else is returned as is.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) {
		return text
	}

	if start := strings.Index(text, "```"); start != -1 {
		rest := text[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			rest = rest[nl+1:] // skip language tag
		}
		if end := strings.Index(rest, "```"); end != -1 {
			if inner := strings.TrimSpace(rest[:end]); json.Valid([]byte(inner)) {
				return inner
			}
		}
	}

	return text
}
