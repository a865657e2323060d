package output

import (
	"fmt"
	"strings"

	"github.com/cartolens/cartolens/internal/core/resolver"
	"github.com/cartolens/cartolens/internal/core/turnstile"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// FormatResults renders a Kind/Input/URL markdown table.
func (f *MarkdownFormatter) FormatResults(results []*resolver.Result) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Kind | Input | URL |\n")
	sb.WriteString("|------|-------|-----|\n")
	for _, result := range nonNil(results) {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
			escapeMarkdownCell(string(result.Kind)),
			escapeMarkdownCell(result.Input),
			escapeMarkdownCell(result.URL),
		))
	}
	return sb.String(), nil
}

// FormatOutcome renders the outcome as a field/value markdown table.
func (f *MarkdownFormatter) FormatOutcome(outcome turnstile.Outcome) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	for _, row := range outcomeRows(NewOutcomeView(outcome)) {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n", row[0], escapeMarkdownCell(row[1])))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
