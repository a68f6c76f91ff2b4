package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/interview-prep-api/internal/dto"
	"github.com/noah-isme/interview-prep-api/internal/interview"
	"github.com/noah-isme/interview-prep-api/internal/models"
	"github.com/noah-isme/interview-prep-api/internal/repository"
)

const canonicalEvaluation = "SCORE: 7\nSTRENGTHS:\n- Good naming\n- Clear logic\nIMPROVEMENTS:\n- Add tests\nFEEDBACK:\nSolid answer overall."

const canonicalSummary = "SCORE: 85\nKEY STRENGTHS:\n- Fundamentals\nIMPROVEMENTS:\n- Testing depth\nFEEDBACK:\nHire."

type scriptedGenerator struct {
	mu            sync.Mutex
	questions     string
	evaluation    string
	summary       string
	questionsErr  error
	evaluationErr error
	summaryErr    error
	calls         map[string]int
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		questions:  numberedQuestions(interview.QuestionCount),
		evaluation: canonicalEvaluation,
		summary:    canonicalSummary,
		calls:      map[string]int{},
	}
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case strings.HasPrefix(prompt, "Summarize"):
		g.calls["summary"]++
		return g.summary, g.summaryErr
	case strings.HasPrefix(prompt, "Evaluate"):
		g.calls["evaluation"]++
		return g.evaluation, g.evaluationErr
	default:
		g.calls["questions"]++
		return g.questions, g.questionsErr
	}
}

func (g *scriptedGenerator) count(kind string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[kind]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.InterviewEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event dto.InterviewEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

// resettingRepository resets the interview right before an answer is recorded, imitating a
// reset that lands while the evaluation call is in flight.
type resettingRepository struct {
	repository.InterviewRepository
}

func (r resettingRepository) RecordAnswer(ctx context.Context, write repository.AnswerWrite) (bool, error) {
	if _, err := r.InterviewRepository.Reset(ctx, write.InterviewID); err != nil {
		return false, err
	}
	return r.InterviewRepository.RecordAnswer(ctx, write)
}

func numberedQuestions(n int) string {
	var b strings.Builder
	b.WriteString("Here are your questions:\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d. [TYPE: Theory] [EASY] Go: Question number %d?\n", i, i)
	}
	return b.String()
}

type interviewFixture struct {
	service   InterviewService
	repo      repository.InterviewRepository
	generator *scriptedGenerator
	events    *recordingPublisher
	redis     *miniredis.Miniredis
}

func newInterviewFixture(t *testing.T) interviewFixture {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Interview{}, &models.InterviewAnswer{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	prompts, err := interview.DefaultPrompts()
	require.NoError(t, err)

	repo := repository.NewInterviewRepository(db)
	generator := newScriptedGenerator()
	events := &recordingPublisher{}
	svc := NewInterviewService(repo, generator, prompts, events, redis.NewClient(&redis.Options{Addr: mini.Addr()}), validator.New(), zerolog.Nop(), InterviewServiceConfig{})

	return interviewFixture{service: svc, repo: repo, generator: generator, events: events, redis: mini}
}

func intPointer(v int) *int {
	return &v
}

func (f interviewFixture) createReady(t *testing.T, userID uint) dto.InterviewResponse {
	t.Helper()
	created, err := f.service.Create(context.Background(), userID, dto.InterviewCreateRequest{
		Role:       "Backend Engineer",
		Skills:     []string{"Go", "SQL", "go"},
		Experience: intPointer(3),
	})
	require.NoError(t, err)
	return created
}

func (f interviewFixture) createGenerated(t *testing.T, userID uint) dto.InterviewResponse {
	t.Helper()
	created := f.createReady(t, userID)
	generated, err := f.service.GenerateQuestions(context.Background(), userID, created.ID)
	require.NoError(t, err)
	return generated
}

func answer(index int, text string) dto.InterviewAnswerRequest {
	return dto.InterviewAnswerRequest{QuestionIndex: intPointer(index), Answer: text}
}

func TestInterviewServiceCreateAndOwnership(t *testing.T) {
	f := newInterviewFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, 1, dto.InterviewCreateRequest{
		Role:       "  <b>Data</b> Engineer ",
		Skills:     []string{"Spark", " ", "spark", "SQL"},
		Experience: intPointer(0),
	})
	require.NoError(t, err)
	require.Equal(t, "Data Engineer", created.Role)
	require.Equal(t, []string{"Spark", "SQL"}, created.Skills)
	require.Equal(t, models.InterviewStatusCreated, created.Status)
	require.Empty(t, created.Questions)
	require.Empty(t, created.Answers)
	require.Nil(t, created.FinalSummary)

	fetched, err := f.service.Get(ctx, 1, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, fetched.ID)

	_, err = f.service.Get(ctx, 2, created.ID)
	require.ErrorIs(t, err, ErrInterviewForbidden)

	_, err = f.service.Get(ctx, 1, uuid.NewString())
	require.ErrorIs(t, err, ErrInterviewNotFound)

	list, err := f.service.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	others, err := f.service.List(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, others)
}

func TestInterviewServiceGenerateRequiresCompleteProfile(t *testing.T) {
	f := newInterviewFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, 1, dto.InterviewCreateRequest{Role: "SRE"})
	require.NoError(t, err)

	_, err = f.service.GenerateQuestions(ctx, 1, created.ID)
	require.ErrorIs(t, err, interview.ErrIncompleteProfile)

	var incomplete *interview.IncompleteProfileError
	require.True(t, errors.As(err, &incomplete))
	require.Equal(t, []string{"skills", "experience"}, incomplete.Missing)
	require.Zero(t, f.generator.count("questions"))

	stored, err := f.service.Get(ctx, 1, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.InterviewStatusCreated, stored.Status)
}

func TestInterviewServiceGenerateAcceptsZeroExperience(t *testing.T) {
	f := newInterviewFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, 1, dto.InterviewCreateRequest{Role: "Intern", Skills: []string{"Go"}, Experience: intPointer(0)})
	require.NoError(t, err)

	generated, err := f.service.GenerateQuestions(ctx, 1, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.InterviewStatusInProgress, generated.Status)
}

func TestInterviewServiceGenerateFailures(t *testing.T) {
	t.Run("insufficient questions", func(t *testing.T) {
		f := newInterviewFixture(t)
		f.generator.questions = numberedQuestions(9)
		created := f.createReady(t, 1)

		_, err := f.service.GenerateQuestions(context.Background(), 1, created.ID)
		require.ErrorIs(t, err, interview.ErrInsufficientQuestions)

		stored, err := f.service.Get(context.Background(), 1, created.ID)
		require.NoError(t, err)
		require.Equal(t, models.InterviewStatusCreated, stored.Status)
		require.Empty(t, stored.Questions)
	})

	t.Run("generator error", func(t *testing.T) {
		f := newInterviewFixture(t)
		f.generator.questionsErr = errors.New("upstream unavailable")
		created := f.createReady(t, 1)

		_, err := f.service.GenerateQuestions(context.Background(), 1, created.ID)
		require.ErrorIs(t, err, interview.ErrGeneration)
	})
}

func TestInterviewServiceGenerateQuestions(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)

	require.Equal(t, models.InterviewStatusInProgress, generated.Status)
	require.Len(t, generated.Questions, interview.QuestionCount)
	require.Equal(t, "[TYPE: Theory] [EASY] Go: Question number 1?", generated.Questions[0])
	require.Len(t, generated.Answers, interview.QuestionCount)
	require.Len(t, generated.Feedbacks, interview.QuestionCount)
	require.Len(t, generated.ParsedFeedbacks, interview.QuestionCount)
	for i := range generated.Answers {
		require.Empty(t, generated.Answers[i])
		require.Nil(t, generated.ParsedFeedbacks[i])
	}
	require.Equal(t, []string{dto.EventQuestionsGenerated}, f.events.types())
}

func TestInterviewServiceSubmitAnswerRejectsInvalidIndex(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)
	ctx := context.Background()

	for _, index := range []int{-1, interview.QuestionCount, 42} {
		_, err := f.service.SubmitAnswer(ctx, 1, generated.ID, answer(index, "anything"))
		require.ErrorIs(t, err, interview.ErrInvalidQuestionIndex)
	}
	require.Zero(t, f.generator.count("evaluation"))

	stored, err := f.service.Get(ctx, 1, generated.ID)
	require.NoError(t, err)
	for _, text := range stored.Answers {
		require.Empty(t, text)
	}

	created := f.createReady(t, 1)
	_, err = f.service.SubmitAnswer(ctx, 1, created.ID, answer(0, "too early"))
	require.ErrorIs(t, err, interview.ErrInvalidQuestionIndex)
}

func TestInterviewServiceSubmitAnswerStoresParsedFeedback(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)
	ctx := context.Background()

	result, err := f.service.SubmitAnswer(ctx, 1, generated.ID, answer(2, "  Use a buffered channel. "))
	require.NoError(t, err)
	require.False(t, result.Completed)
	require.Equal(t, models.InterviewStatusInProgress, result.Status)
	require.Nil(t, result.FinalSummary)
	require.Equal(t, 7, *result.ParsedFeedback.Score)
	require.Equal(t, dto.AnswerScoreScale, result.ParsedFeedback.ScoreScale)
	require.Equal(t, []string{"Good naming", "Clear logic"}, result.ParsedFeedback.Strengths)
	require.Equal(t, []string{"Add tests"}, result.ParsedFeedback.Improvements)
	require.Equal(t, "Solid answer overall.", result.ParsedFeedback.Feedback)

	stored, err := f.service.Get(ctx, 1, generated.ID)
	require.NoError(t, err)
	require.Equal(t, "Use a buffered channel.", stored.Answers[2])
	require.Equal(t, canonicalEvaluation, stored.Feedbacks[2])
	require.NotNil(t, stored.ParsedFeedbacks[2])
	require.Nil(t, stored.ParsedFeedbacks[1])

	_, err = f.service.SubmitAnswer(ctx, 1, generated.ID, answer(3, "   "))
	require.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestInterviewServiceLastIndexCompletesWithSkippedAnswers(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)
	ctx := context.Background()

	_, err := f.service.SubmitAnswer(ctx, 1, generated.ID, answer(0, "first"))
	require.NoError(t, err)

	result, err := f.service.SubmitAnswer(ctx, 1, generated.ID, answer(interview.QuestionCount-1, "last"))
	require.NoError(t, err)
	require.True(t, result.Completed)
	require.Equal(t, models.InterviewStatusCompleted, result.Status)
	require.NotNil(t, result.FinalSummary)
	require.Equal(t, canonicalSummary, result.FinalSummary.Raw)
	require.NotNil(t, result.FinalSummary.Parsed)
	require.Equal(t, 85, *result.FinalSummary.Parsed.Score)
	require.Equal(t, dto.SummaryScoreScale, result.FinalSummary.Parsed.ScoreScale)

	status, err := f.service.Status(ctx, 1, generated.ID)
	require.NoError(t, err)
	require.Equal(t, dto.InterviewStatusResponse{Total: interview.QuestionCount, Answered: 2, Status: models.InterviewStatusCompleted}, status)
	require.Contains(t, f.events.types(), dto.EventInterviewCompleted)
}

func TestInterviewServiceSummaryFailureFallsBack(t *testing.T) {
	f := newInterviewFixture(t)
	f.generator.summaryErr = errors.New("model overloaded")
	generated := f.createGenerated(t, 1)

	result, err := f.service.SubmitAnswer(context.Background(), 1, generated.ID, answer(interview.QuestionCount-1, "last"))
	require.NoError(t, err)
	require.True(t, result.Completed)
	require.NotNil(t, result.FinalSummary)
	require.Equal(t, interview.SummaryFallbackText, result.FinalSummary.Raw)
	require.Nil(t, result.FinalSummary.Parsed)
}

func TestInterviewServiceSummaryOncePerEpoch(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)
	ctx := context.Background()
	last := interview.QuestionCount - 1

	_, err := f.service.SubmitAnswer(ctx, 1, generated.ID, answer(last, "first try"))
	require.NoError(t, err)

	f.generator.summary = "SCORE: 10\nFEEDBACK: different"
	result, err := f.service.SubmitAnswer(ctx, 1, generated.ID, answer(last, "second try"))
	require.NoError(t, err)
	require.Equal(t, 1, f.generator.count("summary"))
	require.Equal(t, canonicalSummary, result.FinalSummary.Raw)

	// Earlier indices can still be answered, the interview stays completed.
	result, err = f.service.SubmitAnswer(ctx, 1, generated.ID, answer(1, "late answer"))
	require.NoError(t, err)
	require.Equal(t, models.InterviewStatusCompleted, result.Status)
	require.True(t, result.Completed)
}

func TestInterviewServiceResetThenGenerateStartsFresh(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)
	ctx := context.Background()

	_, err := f.service.SubmitAnswer(ctx, 1, generated.ID, answer(0, "a"))
	require.NoError(t, err)
	_, err = f.service.SubmitAnswer(ctx, 1, generated.ID, answer(interview.QuestionCount-1, "z"))
	require.NoError(t, err)

	reset, err := f.service.Reset(ctx, 1, generated.ID)
	require.NoError(t, err)
	require.Equal(t, models.InterviewStatusCreated, reset.Status)
	require.Empty(t, reset.Questions)
	require.Empty(t, reset.Answers)
	require.Nil(t, reset.FinalSummary)

	again, err := f.service.Reset(ctx, 1, generated.ID)
	require.NoError(t, err)
	require.Equal(t, models.InterviewStatusCreated, again.Status)

	regenerated, err := f.service.GenerateQuestions(ctx, 1, generated.ID)
	require.NoError(t, err)
	require.Equal(t, models.InterviewStatusInProgress, regenerated.Status)
	require.Len(t, regenerated.Answers, interview.QuestionCount)
	for i := range regenerated.Answers {
		require.Empty(t, regenerated.Answers[i])
		require.Empty(t, regenerated.Feedbacks[i])
		require.Nil(t, regenerated.ParsedFeedbacks[i])
	}
	require.Nil(t, regenerated.FinalSummary)

	_, err = f.service.Reset(ctx, 2, generated.ID)
	require.ErrorIs(t, err, ErrInterviewForbidden)
}

func TestInterviewServiceStatusCache(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)
	ctx := context.Background()
	key := statusCachePrefix + generated.ID

	status, err := f.service.Status(ctx, 1, generated.ID)
	require.NoError(t, err)
	require.Equal(t, dto.InterviewStatusResponse{Total: interview.QuestionCount, Answered: 0, Status: models.InterviewStatusInProgress}, status)
	require.True(t, f.redis.Exists(key))

	_, err = f.service.Status(ctx, 2, generated.ID)
	require.ErrorIs(t, err, ErrInterviewForbidden)

	_, err = f.service.SubmitAnswer(ctx, 1, generated.ID, answer(4, "answer"))
	require.NoError(t, err)
	require.False(t, f.redis.Exists(key))

	status, err = f.service.Status(ctx, 1, generated.ID)
	require.NoError(t, err)
	require.Equal(t, 1, status.Answered)
}

// interleavingRepository runs afterLoad once, right after a GetByID has read the store.
type interleavingRepository struct {
	repository.InterviewRepository
	afterLoad func()
}

func (r *interleavingRepository) GetByID(ctx context.Context, id string) (models.Interview, error) {
	item, err := r.InterviewRepository.GetByID(ctx, id)
	if hook := r.afterLoad; hook != nil {
		r.afterLoad = nil
		hook()
	}
	return item, err
}

func TestInterviewServiceStatusCacheSkipsSupersededLoad(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)
	ctx := context.Background()
	key := statusCachePrefix + generated.ID

	prompts, err := interview.DefaultPrompts()
	require.NoError(t, err)
	slow := &interleavingRepository{InterviewRepository: f.repo}
	reader := NewInterviewService(slow, f.generator, prompts, nil, redis.NewClient(&redis.Options{Addr: f.redis.Addr()}), validator.New(), zerolog.Nop(), InterviewServiceConfig{})

	slow.afterLoad = func() {
		_, err := f.service.SubmitAnswer(ctx, 1, generated.ID, answer(2, "landed mid-read"))
		require.NoError(t, err)
	}

	status, err := reader.Status(ctx, 1, generated.ID)
	require.NoError(t, err)
	require.Equal(t, 0, status.Answered)
	require.False(t, f.redis.Exists(key))

	status, err = f.service.Status(ctx, 1, generated.ID)
	require.NoError(t, err)
	require.Equal(t, 1, status.Answered)
	require.True(t, f.redis.Exists(key))

	cached, err := reader.Status(ctx, 1, generated.ID)
	require.NoError(t, err)
	require.Equal(t, 1, cached.Answered)
}

func TestInterviewServiceConcurrentDistinctAnswers(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, index := range []int{3, 6} {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			_, err := f.service.SubmitAnswer(ctx, 1, generated.ID, answer(index, fmt.Sprintf("answer %d", index)))
			errs <- err
		}(index)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.service.Get(ctx, 1, generated.ID)
	require.NoError(t, err)
	require.Equal(t, "answer 3", stored.Answers[3])
	require.Equal(t, "answer 6", stored.Answers[6])
}

func TestInterviewServiceAnswerDuringResetConflicts(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)

	prompts, err := interview.DefaultPrompts()
	require.NoError(t, err)
	svc := NewInterviewService(resettingRepository{f.repo}, f.generator, prompts, nil, nil, validator.New(), zerolog.Nop(), InterviewServiceConfig{})

	_, err = svc.SubmitAnswer(context.Background(), 1, generated.ID, answer(0, "stale"))
	require.ErrorIs(t, err, ErrInterviewConflict)

	stored, err := svc.Get(context.Background(), 1, generated.ID)
	require.NoError(t, err)
	require.Equal(t, models.InterviewStatusCreated, stored.Status)
	require.Empty(t, stored.Answers)
}
