package output

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/cartolens/cartolens/internal/core/resolver"
	"github.com/cartolens/cartolens/internal/core/turnstile"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatResults renders results as a JSON array.
func (f *JSONFormatter) FormatResults(results []*resolver.Result) (string, error) {
	return f.marshal(nonNil(results))
}

// FormatOutcome renders the outcome as a JSON object.
func (f *JSONFormatter) FormatOutcome(outcome turnstile.Outcome) (string, error) {
	return f.marshal(NewOutcomeView(outcome))
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// YAMLFormatter renders results as YAML.
type YAMLFormatter struct{}

// FormatResults renders results as a YAML sequence.
func (f *YAMLFormatter) FormatResults(results []*resolver.Result) (string, error) {
	views := make([]resultView, 0, len(results))
	for _, result := range nonNil(results) {
		views = append(views, resultView{Kind: string(result.Kind), Input: result.Input, URL: result.URL})
	}
	return marshalYAML(views)
}

// FormatOutcome renders the outcome as a YAML mapping.
func (f *YAMLFormatter) FormatOutcome(outcome turnstile.Outcome) (string, error) {
	return marshalYAML(NewOutcomeView(outcome))
}

type resultView struct {
	Kind  string `yaml:"kind"`
	Input string `yaml:"input"`
	URL   string `yaml:"url"`
}

func marshalYAML(value any) (string, error) {
	data, err := yaml.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
