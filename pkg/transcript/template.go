package transcript

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template defines the chat prompt format: a system preamble emitted once
// at the start of the conversation, and the instruction tag pair wrapped
// around every user turn.
type Template struct {
	Preamble string `yaml:"preamble"`
	Open     string `yaml:"open"`
	Close    string `yaml:"close"`
}

// defaultSystemPrompt is the stock assistant persona.
const defaultSystemPrompt = "You are a helpful, respectful and honest assistant. " +
	"Always answer as short as possible, while being safe."

// DefaultTemplate returns the built-in llama-2 instruction format.
func DefaultTemplate() Template {
	return Template{
		Preamble: "<<SYS>> " + defaultSystemPrompt + " <</SYS>> ",
		Open:     "[INST] ",
		Close:    " [/INST]",
	}
}

// LoadTemplateFile reads a template from a YAML file. Fields absent from
// the file keep the built-in default's values, so a file may override just
// the preamble.
func LoadTemplateFile(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("failed to read template file: %w", err)
	}

	tpl := DefaultTemplate()
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return Template{}, fmt.Errorf("failed to parse template file: %w", err)
	}

	if err := tpl.validate(); err != nil {
		return Template{}, fmt.Errorf("invalid template file %s: %w", path, err)
	}
	return tpl, nil
}

// validate enforces the tag invariants: both tags present, so every turn
// stays well nested.
func (t Template) validate() error {
	if strings.TrimSpace(t.Open) == "" {
		return fmt.Errorf("open tag must not be blank")
	}
	if strings.TrimSpace(t.Close) == "" {
		return fmt.Errorf("close tag must not be blank")
	}
	return nil
}
