package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON object out of a model response, trying —
// in order — a fenced code block, a direct parse of the whole text, and
// finally the first-'{' to last-'}' slice. Models routinely wrap JSON in
// ```json fences or prepend a sentence of commentary.
func ExtractJSON(raw string, out interface{}) error {
	text := strings.TrimSpace(raw)

	if strings.Contains(text, "```") {
		for _, part := range strings.Split(text, "```") {
			cleaned := strings.TrimSpace(part)
			cleaned = strings.TrimPrefix(cleaned, "json")
			cleaned = strings.TrimSpace(cleaned)
			if strings.HasPrefix(cleaned, "{") {
				if err := json.Unmarshal([]byte(cleaned), out); err == nil {
					return nil
				}
			}
		}
	}

	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), out); err == nil {
			return nil
		}
	}

	return fmt.Errorf("llm: could not extract JSON from response")
}
