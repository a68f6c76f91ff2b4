package service

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/interview-prep-api/internal/interview"
	"github.com/noah-isme/interview-prep-api/internal/models"
	"github.com/noah-isme/interview-prep-api/pkg/ai"
)

func TestSummaryTriggerPromptsWithRoleAndSkills(t *testing.T) {
	prompts, err := interview.DefaultPrompts()
	require.NoError(t, err)

	var seen string
	generator := ai.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		seen = prompt
		return canonicalSummary, nil
	})

	trigger := NewSummaryTrigger(generator, prompts, zerolog.Nop())
	summary := trigger.Summarize(context.Background(), models.Interview{
		ID:     "id",
		Role:   "Platform Engineer",
		Skills: datatypes.NewJSONSlice([]string{"Kubernetes", "Go"}),
	})

	require.True(t, strings.Contains(seen, "Platform Engineer"))
	require.True(t, strings.Contains(seen, "Kubernetes"))
	require.Equal(t, canonicalSummary, summary.Raw)
	require.NotNil(t, summary.Parsed)
	require.Equal(t, []string{"Testing depth"}, summary.Parsed.Improvements)
}

func TestSummaryTriggerFallsBackOnBlankOutput(t *testing.T) {
	prompts, err := interview.DefaultPrompts()
	require.NoError(t, err)

	generator := ai.GeneratorFunc(func(context.Context, string) (string, error) {
		return "  \n", nil
	})

	summary := NewSummaryTrigger(generator, prompts, zerolog.Nop()).Summarize(context.Background(), models.Interview{ID: "id", Role: "x"})
	require.Equal(t, interview.FallbackSummary(), summary)
}
