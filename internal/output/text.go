package output

import (
	"strings"

	"github.com/cartolens/cartolens/internal/core/resolver"
	"github.com/cartolens/cartolens/internal/core/turnstile"
)

// TextFormatter prints bare URLs, one per line, for piping into other tools.
type TextFormatter struct{}

// FormatResults prints each resolved URL on its own line.
func (f *TextFormatter) FormatResults(results []*resolver.Result) (string, error) {
	lines := make([]string, 0, len(results))
	for _, result := range nonNil(results) {
		lines = append(lines, result.URL)
	}
	return strings.Join(lines, "\n"), nil
}

// FormatOutcome prints the outcome label, with the error when there is one.
func (f *TextFormatter) FormatOutcome(outcome turnstile.Outcome) (string, error) {
	view := NewOutcomeView(outcome)
	if view.Error != "" {
		return view.Outcome + ": " + view.Error, nil
	}
	return view.Outcome, nil
}
