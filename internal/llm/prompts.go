package llm

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Prompt is one chat prompt with its sampling settings.
type Prompt struct {
	System      string  `yaml:"system"`
	User        string  `yaml:"user"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	tmpl *template.Template
}

// Prompts is the set used by the client.
type Prompts struct {
	Quotes      Prompt `yaml:"quotes"`
	CoreThought Prompt `yaml:"core_thought"`
	Outline     Prompt `yaml:"outline"`
}

type promptData struct {
	Title   string
	Context string
}

// LoadPrompts parses the embedded templates.
func LoadPrompts() (*Prompts, error) {
	return ParsePrompts(promptsYAML)
}

// ParsePrompts parses prompt templates from YAML.
func ParsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}

	named := map[string]*Prompt{
		"quotes":       &p.Quotes,
		"core_thought": &p.CoreThought,
		"outline":      &p.Outline,
	}
	var errs []error
	for name, pr := range named {
		if strings.TrimSpace(pr.User) == "" || pr.MaxTokens <= 0 {
			errs = append(errs, fmt.Errorf("prompt %s: user template and max_tokens are required", name))
			continue
		}
		t, err := template.New(name).Option("missingkey=error").Parse(pr.User)
		if err != nil {
			errs = append(errs, fmt.Errorf("prompt %s: %w", name, err))
			continue
		}
		pr.tmpl = t
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &p, nil
}

// Render fills the user template.
func (p *Prompt) Render(title, context string) (string, error) {
	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, promptData{Title: title, Context: context}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}
