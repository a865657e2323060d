// Package output renders resolver results and turnstile outcomes for the CLI.
package output

import (
	"fmt"
	"strings"

	"github.com/cartolens/cartolens/internal/core/resolver"
	"github.com/cartolens/cartolens/internal/core/turnstile"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Formats lists the accepted formats for flag help.
var Formats = []Format{FormatText, FormatTable, FormatJSON, FormatYAML, FormatMarkdown}

// Formatter renders command results.
type Formatter interface {
	FormatResults(results []*resolver.Result) (string, error)
	FormatOutcome(outcome turnstile.Outcome) (string, error)
}

// ParseFormat validates and normalizes a format string. Empty means text.
func ParseFormat(value string) (Format, error) {
	normalized := Format(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case "":
		return FormatText, nil
	case "yml":
		return FormatYAML, nil
	case "md":
		return FormatMarkdown, nil
	}
	for _, format := range Formats {
		if format == normalized {
			return format, nil
		}
	}
	return "", fmt.Errorf("unsupported output format: %s", value)
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatTable:
		return &TableFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TextFormatter{}
	}
}

// OutcomeView is the serializable form of a turnstile outcome.
type OutcomeView struct {
	Outcome    string `json:"outcome" yaml:"outcome"`
	Sent       bool   `json:"sent" yaml:"sent"`
	Persisted  bool   `json:"persisted" yaml:"persisted"`
	Skipped    string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	StatusCode int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	AnonID     string `json:"anon_id,omitempty" yaml:"anon_id,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewOutcomeView flattens outcome for rendering.
func NewOutcomeView(outcome turnstile.Outcome) OutcomeView {
	view := OutcomeView{
		Outcome:    outcome.Label(),
		Sent:       outcome.Sent,
		Persisted:  outcome.Persisted,
		Skipped:    string(outcome.Skipped),
		StatusCode: outcome.StatusCode,
		AnonID:     outcome.AnonID,
	}
	if outcome.Err != nil {
		view.Error = outcome.Err.Error()
	}
	return view
}

// outcomeRows is the field/value listing shared by table and markdown.
func outcomeRows(view OutcomeView) [][2]string {
	rows := [][2]string{
		{"outcome", view.Outcome},
		{"sent", fmt.Sprintf("%t", view.Sent)},
		{"persisted", fmt.Sprintf("%t", view.Persisted)},
	}
	if view.Skipped != "" {
		rows = append(rows, [2]string{"skipped", view.Skipped})
	}
	if view.StatusCode != 0 {
		rows = append(rows, [2]string{"status_code", fmt.Sprintf("%d", view.StatusCode)})
	}
	if view.AnonID != "" {
		rows = append(rows, [2]string{"anon_id", view.AnonID})
	}
	if view.Error != "" {
		rows = append(rows, [2]string{"error", view.Error})
	}
	return rows
}

func nonNil(results []*resolver.Result) []*resolver.Result {
	filtered := make([]*resolver.Result, 0, len(results))
	for _, result := range results {
		if result != nil {
			filtered = append(filtered, result)
		}
	}
	return filtered
}
