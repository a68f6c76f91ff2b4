package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/interview-prep-api/internal/dto"
	"github.com/noah-isme/interview-prep-api/internal/interview"
	"github.com/noah-isme/interview-prep-api/internal/models"
	"github.com/noah-isme/interview-prep-api/internal/observability"
	"github.com/noah-isme/interview-prep-api/internal/repository"
	"github.com/noah-isme/interview-prep-api/pkg/ai"
)

var (
	// ErrInterviewNotFound indicates the interview cannot be located.
	ErrInterviewNotFound = errors.New("interview not found")
	// ErrInterviewForbidden indicates the interview belongs to another user.
	ErrInterviewForbidden = errors.New("forbidden")
	// ErrInterviewConflict indicates questions were regenerated or reset while the request ran.
	ErrInterviewConflict = errors.New("interview changed while the request was in flight")
	// ErrInterviewNotCompleted indicates the operation needs a completed interview.
	ErrInterviewNotCompleted = errors.New("interview is not completed")
	// ErrEmptyAnswer indicates the submitted answer had no content.
	ErrEmptyAnswer = errors.New("answer must not be empty")
)

const (
	statusCachePrefix = "interview:status:"
	// statusVersionPrefix keys a counter bumped on every invalidation. A status load only
	// populates the cache when the counter is unchanged since before the load.
	statusVersionPrefix = "interview:status-version:"
	statusVersionTTL    = 24 * time.Hour
)

var errStatusSuperseded = errors.New("status cache entry superseded")

// InterviewService drives interviews through their lifecycle.
type InterviewService interface {
	Create(ctx context.Context, userID uint, payload dto.InterviewCreateRequest) (dto.InterviewResponse, error)
	List(ctx context.Context, userID uint) ([]dto.InterviewListItem, error)
	Get(ctx context.Context, userID uint, id string) (dto.InterviewResponse, error)
	GenerateQuestions(ctx context.Context, userID uint, id string) (dto.InterviewResponse, error)
	SubmitAnswer(ctx context.Context, userID uint, id string, payload dto.InterviewAnswerRequest) (dto.AnswerResultResponse, error)
	Status(ctx context.Context, userID uint, id string) (dto.InterviewStatusResponse, error)
	Reset(ctx context.Context, userID uint, id string) (dto.InterviewResponse, error)
}

// InterviewServiceConfig tunes the interview service.
type InterviewServiceConfig struct {
	StatusCacheTTL time.Duration
}

type interviewService struct {
	repo      repository.InterviewRepository
	generator ai.TextGenerator
	prompts   *interview.PromptSet
	summaries SummaryTrigger
	events    InterviewEventPublisher
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type statusCacheEntry struct {
	UserID uint                        `json:"user_id"`
	Status dto.InterviewStatusResponse `json:"status"`
}

// NewInterviewService constructs the interview service. cache and events may be nil.
func NewInterviewService(repo repository.InterviewRepository, generator ai.TextGenerator, prompts *interview.PromptSet, events InterviewEventPublisher, cache *redis.Client, validate *validator.Validate, logger zerolog.Logger, cfg InterviewServiceConfig) InterviewService {
	if cfg.StatusCacheTTL <= 0 {
		cfg.StatusCacheTTL = 30 * time.Second
	}
	if events == nil {
		events = noopEventPublisher{}
	}

	return &interviewService{
		repo:      repo,
		generator: generator,
		prompts:   prompts,
		summaries: NewSummaryTrigger(generator, prompts, logger),
		events:    events,
		cache:     cache,
		cacheTTL:  cfg.StatusCacheTTL,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "interview_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/interview-prep-api/internal/service/interview"),
		now:       time.Now,
	}
}

func (s *interviewService) Create(ctx context.Context, userID uint, payload dto.InterviewCreateRequest) (dto.InterviewResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.InterviewResponse{}, err
	}

	item := models.Interview{
		ID:              uuid.NewString(),
		UserID:          userID,
		Role:            s.clean(payload.Role),
		Skills:          datatypes.NewJSONSlice(s.cleanSkills(payload.Skills)),
		Experience:      payload.Experience,
		DurationMinutes: payload.DurationMinutes,
		Status:          models.InterviewStatusCreated,
		Questions:       datatypes.NewJSONSlice([]string{}),
	}

	if err := s.repo.Create(ctx, &item); err != nil {
		return dto.InterviewResponse{}, err
	}

	observability.InterviewTransitions().WithLabelValues(models.InterviewStatusCreated).Inc()
	s.logger.Info().Str("interview_id", item.ID).Uint("user_id", userID).Msg("interview created")

	return dto.NewInterviewResponse(item), nil
}

func (s *interviewService) List(ctx context.Context, userID uint) ([]dto.InterviewListItem, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	response := make([]dto.InterviewListItem, 0, len(items))
	for _, item := range items {
		response = append(response, dto.NewInterviewListItem(item))
	}
	return response, nil
}

func (s *interviewService) Get(ctx context.Context, userID uint, id string) (dto.InterviewResponse, error) {
	item, err := loadOwnedInterview(ctx, s.repo, userID, id)
	if err != nil {
		return dto.InterviewResponse{}, err
	}
	return dto.NewInterviewResponse(item), nil
}

func (s *interviewService) GenerateQuestions(ctx context.Context, userID uint, id string) (dto.InterviewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "interviews.generate_questions", trace.WithAttributes(
		attribute.String("interview.id", id),
	))
	defer span.End()

	item, err := loadOwnedInterview(ctx, s.repo, userID, id)
	if err != nil {
		return dto.InterviewResponse{}, s.spanError(span, err)
	}

	profile, err := profileOf(item)
	if err != nil {
		return dto.InterviewResponse{}, s.spanError(span, err)
	}

	prompt, err := s.prompts.Questions(profile)
	if err != nil {
		return dto.InterviewResponse{}, s.spanError(span, err)
	}

	raw, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return dto.InterviewResponse{}, s.spanError(span, fmt.Errorf("%w: questions: %w", interview.ErrGeneration, err))
	}

	questions, err := interview.ParseQuestions(raw)
	if err != nil {
		return dto.InterviewResponse{}, s.spanError(span, err)
	}

	if item.IsTerminal() || item.AnsweredCount() > 0 {
		s.logger.Warn().
			Str("interview_id", id).
			Str("status", item.Status).
			Int("answered", item.AnsweredCount()).
			Msg("regenerating questions discards existing answers")
	}

	epoch, err := s.repo.ReplaceQuestions(ctx, id, questions)
	if err != nil {
		return dto.InterviewResponse{}, s.spanError(span, mapStoreError(err))
	}
	span.SetAttributes(attribute.Int("interview.epoch", epoch))

	s.invalidateStatus(ctx, id)
	observability.InterviewTransitions().WithLabelValues(models.InterviewStatusInProgress).Inc()
	s.publish(ctx, dto.EventQuestionsGenerated, item, models.InterviewStatusInProgress, nil)

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.InterviewResponse{}, s.spanError(span, mapStoreError(err))
	}
	return dto.NewInterviewResponse(updated), nil
}

func (s *interviewService) SubmitAnswer(ctx context.Context, userID uint, id string, payload dto.InterviewAnswerRequest) (dto.AnswerResultResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AnswerResultResponse{}, err
	}
	index := *payload.QuestionIndex
	answer := strings.TrimSpace(payload.Answer)
	if answer == "" {
		return dto.AnswerResultResponse{}, ErrEmptyAnswer
	}

	ctx, span := s.tracer.Start(ctx, "interviews.submit_answer", trace.WithAttributes(
		attribute.String("interview.id", id),
		attribute.Int("interview.question_index", index),
	))
	defer span.End()

	item, err := loadOwnedInterview(ctx, s.repo, userID, id)
	if err != nil {
		return dto.AnswerResultResponse{}, s.spanError(span, err)
	}

	if err := checkQuestionIndex(item, index); err != nil {
		return dto.AnswerResultResponse{}, s.spanError(span, err)
	}

	prompt, err := s.prompts.Evaluation(item.Questions[index], answer)
	if err != nil {
		return dto.AnswerResultResponse{}, s.spanError(span, err)
	}

	raw, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return dto.AnswerResultResponse{}, s.spanError(span, fmt.Errorf("%w: evaluation: %w", interview.ErrGeneration, err))
	}
	if strings.TrimSpace(raw) == "" {
		return dto.AnswerResultResponse{}, s.spanError(span, fmt.Errorf("%w: empty evaluation", interview.ErrGeneration))
	}

	parsed := interview.ParseFeedback(raw)
	write := repository.AnswerWrite{
		InterviewID:   id,
		Epoch:         item.Epoch,
		QuestionIndex: index,
		Answer:        answer,
		Feedback:      raw,
		Parsed:        parsed,
	}

	// Completion is positional: the last index completes even when earlier ones were skipped.
	if index == len(item.Questions)-1 && item.Summary() == nil {
		summary := s.summaries.Summarize(ctx, item)
		write.Summary = &summary
	}

	completed, err := s.repo.RecordAnswer(ctx, write)
	if err != nil {
		return dto.AnswerResultResponse{}, s.spanError(span, mapStoreError(err))
	}

	s.invalidateStatus(ctx, id)
	s.publish(ctx, dto.EventAnswerSubmitted, item, item.Status, &index)
	if completed {
		observability.InterviewTransitions().WithLabelValues(models.InterviewStatusCompleted).Inc()
		s.publish(ctx, dto.EventInterviewCompleted, item, models.InterviewStatusCompleted, nil)
		s.logger.Info().Str("interview_id", id).Msg("interview completed")
	}

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.AnswerResultResponse{}, s.spanError(span, mapStoreError(err))
	}

	return dto.AnswerResultResponse{
		QuestionIndex:  index,
		Feedback:       raw,
		ParsedFeedback: dto.NewFeedbackView(parsed, dto.AnswerScoreScale),
		Status:         updated.Status,
		Completed:      updated.IsTerminal(),
		FinalSummary:   dto.NewSummaryView(updated.Summary()),
	}, nil
}

func (s *interviewService) Status(ctx context.Context, userID uint, id string) (dto.InterviewStatusResponse, error) {
	if entry, ok := s.cachedStatus(ctx, id); ok {
		if entry.UserID != userID {
			return dto.InterviewStatusResponse{}, ErrInterviewForbidden
		}
		return entry.Status, nil
	}

	version, versioned := s.statusVersion(ctx, id)
	item, err := loadOwnedInterview(ctx, s.repo, userID, id)
	if err != nil {
		return dto.InterviewStatusResponse{}, err
	}

	status := dto.NewInterviewStatusResponse(item)
	if versioned {
		s.storeStatus(ctx, id, version, statusCacheEntry{UserID: item.UserID, Status: status})
	}
	return status, nil
}

func (s *interviewService) Reset(ctx context.Context, userID uint, id string) (dto.InterviewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "interviews.reset", trace.WithAttributes(
		attribute.String("interview.id", id),
	))
	defer span.End()

	item, err := loadOwnedInterview(ctx, s.repo, userID, id)
	if err != nil {
		return dto.InterviewResponse{}, s.spanError(span, err)
	}

	if _, err := s.repo.Reset(ctx, id); err != nil {
		return dto.InterviewResponse{}, s.spanError(span, mapStoreError(err))
	}

	s.invalidateStatus(ctx, id)
	observability.InterviewTransitions().WithLabelValues(models.InterviewStatusCreated).Inc()
	s.publish(ctx, dto.EventInterviewReset, item, models.InterviewStatusCreated, nil)

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.InterviewResponse{}, s.spanError(span, mapStoreError(err))
	}
	return dto.NewInterviewResponse(updated), nil
}

func (s *interviewService) publish(ctx context.Context, eventType string, item models.Interview, status string, index *int) {
	s.events.Publish(ctx, dto.InterviewEvent{
		Type:          eventType,
		InterviewID:   item.ID,
		UserID:        item.UserID,
		Status:        status,
		QuestionIndex: index,
		OccurredAt:    s.now().UTC(),
	})
}

func (s *interviewService) cachedStatus(ctx context.Context, id string) (statusCacheEntry, bool) {
	if s.cache == nil {
		return statusCacheEntry{}, false
	}

	cached, err := s.cache.Get(ctx, statusCachePrefix+id).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read status cache")
		}
		observability.StatusCacheLookups().WithLabelValues("miss").Inc()
		return statusCacheEntry{}, false
	}

	var entry statusCacheEntry
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		observability.StatusCacheLookups().WithLabelValues("miss").Inc()
		return statusCacheEntry{}, false
	}

	observability.StatusCacheLookups().WithLabelValues("hit").Inc()
	return entry, true
}

// statusVersion reads the invalidation counter; false means the cache must not be populated.
func (s *interviewService) statusVersion(ctx context.Context, id string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	version, err := s.cache.Get(ctx, statusVersionPrefix+id).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Str("interview_id", id).Msg("failed to read status cache version")
		return 0, false
	}
	return version, true
}

// storeStatus writes entry only if no invalidation happened since version was read.
func (s *interviewService) storeStatus(ctx context.Context, id string, version int64, entry statusCacheEntry) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}

	versionKey := statusVersionPrefix + id
	err = s.cache.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStatusSuperseded
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, statusCachePrefix+id, payload, s.cacheTTL)
			return nil
		})
		return err
	}, versionKey)

	switch {
	case err == nil:
	case errors.Is(err, errStatusSuperseded), errors.Is(err, redis.TxFailedErr):
		s.logger.Debug().Str("interview_id", id).Msg("skipped superseded status cache write")
	default:
		s.logger.Warn().Err(err).Msg("failed to store status cache")
	}
}

func (s *interviewService) invalidateStatus(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	versionKey := statusVersionPrefix + id
	_, err := s.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, statusVersionTTL)
		pipe.Del(ctx, statusCachePrefix+id)
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("interview_id", id).Msg("failed to invalidate status cache")
	}
}

func (s *interviewService) spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *interviewService) clean(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

func (s *interviewService) cleanSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	cleaned := make([]string, 0, len(skills))
	for _, skill := range skills {
		value := s.clean(skill)
		if value == "" {
			continue
		}
		key := strings.ToLower(value)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, value)
	}
	return cleaned
}

func profileOf(item models.Interview) (interview.Profile, error) {
	var missing []string
	if strings.TrimSpace(item.Role) == "" {
		missing = append(missing, "role")
	}
	if len(item.Skills) == 0 {
		missing = append(missing, "skills")
	}
	if item.Experience == nil || *item.Experience < 0 {
		missing = append(missing, "experience")
	}
	if len(missing) > 0 {
		return interview.Profile{}, &interview.IncompleteProfileError{Missing: missing}
	}

	return interview.Profile{
		Role:       item.Role,
		Skills:     append([]string{}, item.Skills...),
		Experience: *item.Experience,
	}, nil
}

func checkQuestionIndex(item models.Interview, index int) error {
	if index < 0 || index >= len(item.Questions) {
		return fmt.Errorf("%w: %d outside [0, %d)", interview.ErrInvalidQuestionIndex, index, len(item.Questions))
	}
	return nil
}

func loadOwnedInterview(ctx context.Context, repo repository.InterviewRepository, userID uint, id string) (models.Interview, error) {
	item, err := repo.GetByID(ctx, id)
	if err != nil {
		return models.Interview{}, mapStoreError(err)
	}
	if item.UserID != userID {
		return models.Interview{}, ErrInterviewForbidden
	}
	return item, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, repository.ErrInterviewNotFound):
		return ErrInterviewNotFound
	case errors.Is(err, repository.ErrEpochMismatch):
		return ErrInterviewConflict
	default:
		return err
	}
}
