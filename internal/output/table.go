package output

import (
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/cartolens/cartolens/internal/core/resolver"
	"github.com/cartolens/cartolens/internal/core/turnstile"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatResults renders one row per resolution.
func (f *TableFormatter) FormatResults(results []*resolver.Result) (string, error) {
	return resultsTable(results).Render(), nil
}

// FormatOutcome renders the outcome as a field/value table.
func (f *TableFormatter) FormatOutcome(outcome turnstile.Outcome) (string, error) {
	return outcomeTable(outcome).Render(), nil
}

func resultsTable(results []*resolver.Result) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Kind", "Input", "URL"})
	for _, result := range nonNil(results) {
		t.AppendRow(table.Row{string(result.Kind), result.Input, result.URL})
	}
	return t
}

func outcomeTable(outcome turnstile.Outcome) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Field", "Value"})
	for _, row := range outcomeRows(NewOutcomeView(outcome)) {
		t.AppendRow(table.Row{row[0], row[1]})
	}
	return t
}
