package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/interview-prep-api/internal/interview"
	"github.com/noah-isme/interview-prep-api/internal/models"
	"github.com/noah-isme/interview-prep-api/internal/observability"
	"github.com/noah-isme/interview-prep-api/pkg/ai"
)

// SummaryTrigger produces the final summary of an interview that is being completed. It
// never fails: generation problems yield interview.FallbackSummary.
type SummaryTrigger interface {
	Summarize(ctx context.Context, item models.Interview) interview.SummaryRecord
}

type summaryTrigger struct {
	generator ai.TextGenerator
	prompts   *interview.PromptSet
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewSummaryTrigger builds the final summary trigger.
func NewSummaryTrigger(generator ai.TextGenerator, prompts *interview.PromptSet, logger zerolog.Logger) SummaryTrigger {
	return &summaryTrigger{
		generator: generator,
		prompts:   prompts,
		logger:    logger.With().Str("component", "summary_trigger").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/interview-prep-api/internal/service/summary"),
	}
}

func (t *summaryTrigger) Summarize(ctx context.Context, item models.Interview) interview.SummaryRecord {
	ctx, span := t.tracer.Start(ctx, "interviews.summarize", trace.WithAttributes(
		attribute.String("interview.id", item.ID),
	))
	defer span.End()

	prompt, err := t.prompts.Summary(item.Role, []string(item.Skills))
	if err != nil {
		return t.fallback(span, item.ID, err)
	}

	raw, err := t.generator.Generate(ctx, prompt)
	if err != nil {
		return t.fallback(span, item.ID, err)
	}
	if strings.TrimSpace(raw) == "" {
		return t.fallback(span, item.ID, errors.New("empty summary"))
	}

	parsed := interview.ParseFeedback(raw)
	return interview.SummaryRecord{Raw: raw, Parsed: &parsed}
}

func (t *summaryTrigger) fallback(span trace.Span, id string, err error) interview.SummaryRecord {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	observability.SummaryFallbacks().Inc()
	t.logger.Warn().Err(err).Str("interview_id", id).Msg("final summary generation failed, storing fallback")
	return interview.FallbackSummary()
}
