package ai

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when the model answered without any choice.
var ErrEmptyCompletion = errors.New("no choices returned from model")

// TextGenerator turns a prompt into free-form model output.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to TextGenerator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f(ctx, prompt).
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
