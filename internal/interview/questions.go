package interview

import (
	"fmt"
	"regexp"
	"strings"
)

// QuestionCount is the fixed size of a generated question set.
const QuestionCount = 10

var ordinalMarker = regexp.MustCompile(`\d+\.\s+`)

// ParseQuestions splits a generated text blob on "N. " ordinal markers and returns
// the first QuestionCount items in their original order. Items are kept opaque and text
// before the first marker is not an item.
func ParseQuestions(raw string) ([]string, error) {
	var fragments []string
	if first := ordinalMarker.FindStringIndex(raw); first != nil {
		fragments = ordinalMarker.Split(raw[first[0]:], -1)
	}

	questions := make([]string, 0, QuestionCount)
	for _, fragment := range fragments {
		question := strings.TrimRight(strings.TrimSpace(fragment), "\n")
		if question == "" {
			continue
		}
		questions = append(questions, question)
	}

	if len(questions) < QuestionCount {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInsufficientQuestions, len(questions), QuestionCount)
	}

	return questions[:QuestionCount], nil
}
