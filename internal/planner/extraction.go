package planner

import (
	"regexp"
	"strings"
)

// answerTag matches an <answer>...</answer> block, dot matching newlines
// so a multi-line JSON payload or prose answer survives intact. When a
// model emits more than one block (rare, but seen with chatty models
// that "think out loud" before answering), the LAST one is authoritative.
var answerTag = regexp.MustCompile(`(?s)<answer>(.*?)</answer>`)

// extractAnswer pulls the content of the last <answer>...</answer> block
// out of raw completion text. If no delimited block is present it falls
// back to the raw text itself, trimmed — some prompts (status_message)
// don't ask for a delimiter and the whole response is the answer.
func extractAnswer(raw string) string {
	matches := answerTag.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(matches[len(matches)-1][1])
}
