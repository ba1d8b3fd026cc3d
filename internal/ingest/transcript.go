package ingest

import (
	"encoding/json"
	"strings"
)

// ParseTranscript decodes a transcript in either supported shape: a JSON
// array of {"role","content"} objects, or plain text with one turn per
// line, optionally prefixed "user:" / "assistant:". Unprefixed lines
// default to the user role.
func ParseTranscript(content string) ([]Turn, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "[") {
		var turns []Turn
		if err := json.Unmarshal([]byte(trimmed), &turns); err == nil {
			return turns, nil
		}
		// Fall through: a text transcript can legitimately start with "[".
	}

	var turns []Turn
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		turn := Turn{Role: "user", Content: line}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "user:"):
			turn.Content = strings.TrimSpace(line[len("user:"):])
		case strings.HasPrefix(lower, "assistant:"):
			turn.Role = "assistant"
			turn.Content = strings.TrimSpace(line[len("assistant:"):])
		}
		if turn.Content != "" {
			turns = append(turns, turn)
		}
	}
	return turns, nil
}
