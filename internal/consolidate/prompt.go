package consolidate

import (
	"fmt"
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// buildPrompt renders one session's episodic records into a distillation
// prompt. The output contract (one fact per "- " line, NONE when nothing is
// worth keeping) is what ParseFacts expects back.
func buildPrompt(records []*types.MemoryRecord) string {
	var b strings.Builder
	b.WriteString("You are distilling an agent's episodic memory into durable facts.\n")
	b.WriteString("Below are conversation records from one session, oldest first.\n")
	b.WriteString("Extract the facts worth remembering long-term: stable preferences,\n")
	b.WriteString("decisions, environment details, recurring problems and their fixes.\n")
	b.WriteString("Ignore chit-chat and one-off details.\n\n")
	b.WriteString("Records:\n")
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec.Content)
	}
	b.WriteString("\nRespond with one fact per line, each starting with \"- \".\n")
	b.WriteString("Each fact must be a standalone sentence. If nothing is worth\n")
	b.WriteString("keeping, respond with exactly: NONE\n")
	return b.String()
}

// ParseFacts extracts fact lines from an LLM response. Only bulleted
// ("- ", "* ") or numbered lines count; prose preambles the model adds
// around the list are ignored, as are very short fragments. A NONE response
// (or anything unparseable) yields no facts.
func ParseFacts(response string) []string {
	var facts []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "NONE") {
			continue
		}
		fact, ok := stripListMarker(line)
		if !ok {
			continue
		}
		fact = strings.TrimSpace(fact)
		if len(fact) < 10 {
			continue
		}
		facts = append(facts, fact)
	}
	return facts
}

// stripListMarker removes a leading "- ", "* ", "3. " or "3) " marker.
// Reports false for lines that carry no marker.
func stripListMarker(s string) (string, bool) {
	if rest, ok := strings.CutPrefix(s, "- "); ok {
		return rest, true
	}
	if rest, ok := strings.CutPrefix(s, "* "); ok {
		return rest, true
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return s[i+1:], true
	}
	return "", false
}
