package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/interview-prep-api/internal/dto"
	"github.com/noah-isme/interview-prep-api/internal/interview"
	"github.com/noah-isme/interview-prep-api/internal/models"
	"github.com/noah-isme/interview-prep-api/internal/repository"
)

var (
	// ErrReportStorageUnavailable indicates no report storage is configured.
	ErrReportStorageUnavailable = errors.New("report storage unavailable")
	// ErrReportContentRejected indicates the rendered report did not sniff as plain text.
	ErrReportContentRejected = errors.New("report content rejected")
)

const reportContentType = "text/markdown; charset=utf-8"

// ReportUploader persists a rendered report and returns a public URL.
type ReportUploader interface {
	Upload(ctx context.Context, name string, content []byte) (string, error)
}

// ReportService exports completed interviews as markdown reports.
type ReportService interface {
	Export(ctx context.Context, userID uint, id string) (dto.ReportResponse, error)
}

type reportService struct {
	repo     repository.InterviewRepository
	uploader ReportUploader
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewReportService constructs the report exporter. uploader may be nil.
func NewReportService(repo repository.InterviewRepository, uploader ReportUploader, logger zerolog.Logger) ReportService {
	return &reportService{
		repo:     repo,
		uploader: uploader,
		logger:   logger.With().Str("component", "report_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/interview-prep-api/internal/service/report"),
		now:      time.Now,
	}
}

func (s *reportService) Export(ctx context.Context, userID uint, id string) (dto.ReportResponse, error) {
	if s.uploader == nil {
		return dto.ReportResponse{}, ErrReportStorageUnavailable
	}

	ctx, span := s.tracer.Start(ctx, "interviews.export_report", trace.WithAttributes(
		attribute.String("interview.id", id),
	))
	defer span.End()

	item, err := loadOwnedInterview(ctx, s.repo, userID, id)
	if err != nil {
		span.RecordError(err)
		return dto.ReportResponse{}, err
	}
	if !item.IsTerminal() {
		return dto.ReportResponse{}, ErrInterviewNotCompleted
	}

	generatedAt := s.now().UTC()
	content := []byte(renderReport(item, generatedAt))

	detected := mimetype.Detect(content)
	span.SetAttributes(attribute.String("report.detected_mime", detected.String()))
	if !detected.Is("text/plain") {
		span.SetStatus(codes.Error, "unexpected content type")
		return dto.ReportResponse{}, fmt.Errorf("%w: detected %s", ErrReportContentRejected, detected.String())
	}

	url, err := s.uploader.Upload(ctx, fmt.Sprintf("interview-%s.md", item.ID), content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.ReportResponse{}, fmt.Errorf("upload report: %w", err)
	}

	s.logger.Info().Str("interview_id", id).Int("bytes", len(content)).Msg("interview report exported")

	return dto.ReportResponse{
		InterviewID: item.ID,
		URL:         url,
		ContentType: reportContentType,
		SizeBytes:   len(content),
		GeneratedAt: generatedAt,
	}, nil
}

func renderReport(item models.Interview, generatedAt time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Interview report: %s\n\n", item.Role)
	fmt.Fprintf(&b, "- Skills: %s\n", strings.Join(item.Skills, ", "))
	if item.Experience != nil {
		fmt.Fprintf(&b, "- Experience: %d years\n", *item.Experience)
	}
	fmt.Fprintf(&b, "- Answered: %d of %d\n", item.AnsweredCount(), len(item.Questions))
	fmt.Fprintf(&b, "- Generated: %s\n\n", generatedAt.Format(time.RFC3339))

	b.WriteString("## Final summary\n\n")
	summary := item.Summary()
	switch {
	case summary == nil:
		b.WriteString("_No summary available._\n\n")
	case summary.Parsed == nil:
		fmt.Fprintf(&b, "%s\n\n", summary.Raw)
	default:
		writeFeedback(&b, *summary.Parsed, dto.SummaryScoreScale)
	}

	b.WriteString("## Questions\n\n")
	for index, question := range item.Questions {
		fmt.Fprintf(&b, "### %d. %s\n\n", index+1, question)

		slot, ok := item.AnswerAt(index)
		if !ok || slot.Answer == "" {
			b.WriteString("_Not answered._\n\n")
			continue
		}

		fmt.Fprintf(&b, "**Answer**\n\n%s\n\n", slot.Answer)
		writeFeedback(&b, slot.ParsedFeedback.Data(), dto.AnswerScoreScale)
	}

	return b.String()
}

func writeFeedback(b *strings.Builder, record interview.FeedbackRecord, scale int) {
	if record.Score != nil {
		fmt.Fprintf(b, "**Score:** %d/%d\n\n", *record.Score, scale)
	}
	writeBullets(b, "Strengths", record.Strengths)
	writeBullets(b, "Improvements", record.Improvements)
	if record.Feedback != "" {
		fmt.Fprintf(b, "%s\n\n", record.Feedback)
	}
}

func writeBullets(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s**\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}
