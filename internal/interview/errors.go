package interview

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncompleteProfile indicates the interview lacks the fields required for question generation.
	ErrIncompleteProfile = errors.New("incomplete interview profile")
	// ErrInsufficientQuestions indicates the generated text did not contain enough ordinal items.
	ErrInsufficientQuestions = errors.New("insufficient questions generated")
	// ErrInvalidQuestionIndex indicates the submitted index does not address a stored question.
	ErrInvalidQuestionIndex = errors.New("invalid question index")
	// ErrGeneration indicates the text generation capability failed or returned unusable output.
	ErrGeneration = errors.New("text generation failed")
)

// IncompleteProfileError lists the profile fields missing for question generation.
type IncompleteProfileError struct {
	Missing []string
}

func (e *IncompleteProfileError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrIncompleteProfile.Error(), strings.Join(e.Missing, ", "))
}

func (e *IncompleteProfileError) Unwrap() error {
	return ErrIncompleteProfile
}
