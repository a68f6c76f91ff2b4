package interview

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

const (
	codingQuestionCount = 4
	theoryQuestionCount = 6
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Profile is the candidate description used to build the question prompt.
type Profile struct {
	Role       string
	Skills     []string
	Experience int
}

// PromptSet renders the deterministic prompts sent to the text generator.
type PromptSet struct {
	questions  *template.Template
	evaluation *template.Template
	summary    *template.Template
}

type promptFile struct {
	Questions  string `yaml:"questions"`
	Evaluation string `yaml:"evaluation"`
	Summary    string `yaml:"summary"`
}

// DefaultPrompts returns the built-in prompt templates.
func DefaultPrompts() (*PromptSet, error) {
	file, err := decodePromptFile(defaultPromptsYAML)
	if err != nil {
		return nil, err
	}
	return compilePrompts(file)
}

// LoadPrompts reads prompt overrides from a YAML file. Keys left empty keep the built-in template.
func LoadPrompts(path string) (*PromptSet, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPrompts()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file %s: %w", path, err)
	}

	defaults, err := decodePromptFile(defaultPromptsYAML)
	if err != nil {
		return nil, err
	}
	overrides, err := decodePromptFile(data)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(overrides.Questions) != "" {
		defaults.Questions = overrides.Questions
	}
	if strings.TrimSpace(overrides.Evaluation) != "" {
		defaults.Evaluation = overrides.Evaluation
	}
	if strings.TrimSpace(overrides.Summary) != "" {
		defaults.Summary = overrides.Summary
	}

	return compilePrompts(defaults)
}

func decodePromptFile(data []byte) (promptFile, error) {
	var file promptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return promptFile{}, fmt.Errorf("parse prompts yaml: %w", err)
	}
	return file, nil
}

func compilePrompts(file promptFile) (*PromptSet, error) {
	questions, err := template.New("questions").Option("missingkey=error").Parse(file.Questions)
	if err != nil {
		return nil, fmt.Errorf("compile questions prompt: %w", err)
	}
	evaluation, err := template.New("evaluation").Option("missingkey=error").Parse(file.Evaluation)
	if err != nil {
		return nil, fmt.Errorf("compile evaluation prompt: %w", err)
	}
	summary, err := template.New("summary").Option("missingkey=error").Parse(file.Summary)
	if err != nil {
		return nil, fmt.Errorf("compile summary prompt: %w", err)
	}

	return &PromptSet{questions: questions, evaluation: evaluation, summary: summary}, nil
}

// Questions renders the question generation prompt: QuestionCount ordinals, four coding
// and six theory questions, difficulty increasing with position.
func (p *PromptSet) Questions(profile Profile) (string, error) {
	ordinals := make([]int, QuestionCount)
	for i := range ordinals {
		ordinals[i] = i + 1
	}

	return render(p.questions, map[string]interface{}{
		"Count":       QuestionCount,
		"CodingCount": codingQuestionCount,
		"TheoryCount": theoryQuestionCount,
		"Role":        profile.Role,
		"Experience":  profile.Experience,
		"SkillList":   strings.Join(profile.Skills, ", "),
		"Ordinals":    ordinals,
	})
}

// Evaluation renders the per-answer evaluation prompt (1-10 score scale).
func (p *PromptSet) Evaluation(question, answer string) (string, error) {
	return render(p.evaluation, map[string]interface{}{
		"Question": question,
		"Answer":   answer,
	})
}

// Summary renders the final summary prompt (0-100 score scale plus a hire recommendation).
func (p *PromptSet) Summary(role string, skills []string) (string, error) {
	return render(p.summary, map[string]interface{}{
		"Role":      role,
		"SkillList": strings.Join(skills, ", "),
	})
}

func render(tmpl *template.Template, data map[string]interface{}) (string, error) {
	var builder strings.Builder
	if err := tmpl.Execute(&builder, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return builder.String(), nil
}
