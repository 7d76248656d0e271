package assistant

import (
	"strings"
	"unicode/utf8"

	"github.com/raaihank/fin-sentinel/internal/safety"
)

const (
	safetyPreamble   = "You are a privacy-aware financial assistant. Do not expose raw PII."
	queryHeader      = "\n\nUser Query (masked):\n"
	contextHeader    = "\n\nContext:\n"
	contextSeparator = "\n---\n"
	answerCue        = "\n\nAnswer concisely:"

	maxSummaryRunes = 140
	redactedSummary = "Response redacted for safety."
)

var (
	passActions     = []string{"Download masked report", "Ask a follow-up question"}
	redactedActions = []string{"Retry with masked input"}
)

// composePrompt builds the model prompt. Both arguments must already be masked.
func composePrompt(maskedQuery string, snippets []string) string {
	var b strings.Builder
	b.WriteString(safetyPreamble)
	b.WriteString(queryHeader)
	b.WriteString(maskedQuery)
	if len(snippets) > 0 {
		b.WriteString(contextHeader)
		b.WriteString(strings.Join(snippets, contextSeparator))
	}
	b.WriteString(answerCue)
	return b.String()
}

func summarize(answer string, status safety.Status) string {
	if status == safety.StatusRedacted {
		return redactedSummary
	}
	line, _, _ := strings.Cut(answer, "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= maxSummaryRunes {
		return line
	}
	return string([]rune(line)[:maxSummaryRunes])
}

func actionsFor(status safety.Status) []string {
	src := passActions
	if status == safety.StatusRedacted {
		src = redactedActions
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
