package dto

import (
	"time"

	"github.com/noah-isme/interview-prep-api/internal/interview"
	"github.com/noah-isme/interview-prep-api/internal/models"
)

// Score scales reported next to feedback so clients never compare across record kinds.
const (
	AnswerScoreScale  = 10
	SummaryScoreScale = 100
)

// InterviewCreateRequest is the payload for creating an interview profile. Completeness is
// only enforced when questions are generated.
type InterviewCreateRequest struct {
	Role            string   `json:"role" validate:"max=160"`
	Skills          []string `json:"skills" validate:"max=20,dive,max=80"`
	Experience      *int     `json:"experience" validate:"omitempty,gte=0,lte=60"`
	DurationMinutes int      `json:"durationMinutes" validate:"gte=0,lte=480"`
}

// InterviewAnswerRequest submits an answer for one question index.
type InterviewAnswerRequest struct {
	QuestionIndex *int   `json:"questionIndex" validate:"required"`
	Answer        string `json:"answer" validate:"required,max=20000"`
}

// CodeRunRequest runs candidate code for a coding question.
type CodeRunRequest struct {
	Language string `json:"language" validate:"required"`
	Source   string `json:"source" validate:"required,max=20000"`
}

// FeedbackView is a parsed evaluation with its score scale.
type FeedbackView struct {
	Score        *int     `json:"score"`
	ScoreScale   int      `json:"score_scale"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Feedback     string   `json:"feedback"`
}

// SummaryView is the final summary of a completed interview. Parsed is null when the
// fallback summary was stored.
type SummaryView struct {
	Raw    string        `json:"raw"`
	Parsed *FeedbackView `json:"parsed"`
}

// InterviewResponse renders an interview. Answers, feedbacks and parsed feedbacks are sized
// to the question list with empty placeholders for unanswered indices.
type InterviewResponse struct {
	ID              string          `json:"id"`
	UserID          uint            `json:"user_id"`
	Role            string          `json:"role"`
	Skills          []string        `json:"skills"`
	Experience      *int            `json:"experience"`
	DurationMinutes int             `json:"duration_minutes"`
	Status          string          `json:"status"`
	Questions       []string        `json:"questions"`
	Answers         []string        `json:"answers"`
	Feedbacks       []string        `json:"feedbacks"`
	ParsedFeedbacks []*FeedbackView `json:"parsed_feedbacks"`
	FinalSummary    *SummaryView    `json:"final_summary"`
	CreatedAt       time.Time       `json:"created_at"`
	LastUpdatedAt   time.Time       `json:"last_updated_at"`
}

// InterviewListItem is the compact form used when listing a user's interviews.
type InterviewListItem struct {
	ID            string    `json:"id"`
	Role          string    `json:"role"`
	Skills        []string  `json:"skills"`
	Status        string    `json:"status"`
	Total         int       `json:"total"`
	Answered      int       `json:"answered"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// InterviewStatusResponse reports progress through an interview.
type InterviewStatusResponse struct {
	Total    int    `json:"total"`
	Answered int    `json:"answered"`
	Status   string `json:"status"`
}

// AnswerResultResponse is returned after an answer is evaluated.
type AnswerResultResponse struct {
	QuestionIndex  int          `json:"question_index"`
	Feedback       string       `json:"feedback"`
	ParsedFeedback FeedbackView `json:"parsed_feedback"`
	Status         string       `json:"status"`
	Completed      bool         `json:"completed"`
	FinalSummary   *SummaryView `json:"final_summary"`
}

// CodeRunResponse reports a sandboxed run.
type CodeRunResponse struct {
	QuestionIndex    int    `json:"question_index"`
	Language         string `json:"language"`
	Stdout           string `json:"stdout"`
	Stderr           string `json:"stderr"`
	ExitCode         int    `json:"exit_code"`
	TimedOut         bool   `json:"timed_out"`
	DurationMs       int64  `json:"duration_ms"`
	MemoryUsageBytes int64  `json:"memory_usage_bytes"`
}

// ReportResponse points at an exported interview report.
type ReportResponse struct {
	InterviewID string    `json:"interview_id"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	SizeBytes   int       `json:"size_bytes"`
	GeneratedAt time.Time `json:"generated_at"`
}

// InterviewEvent is pushed to websocket subscribers on lifecycle changes.
type InterviewEvent struct {
	Type          string    `json:"type"`
	InterviewID   string    `json:"interview_id"`
	UserID        uint      `json:"user_id"`
	Status        string    `json:"status"`
	QuestionIndex *int      `json:"question_index,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Interview event types.
const (
	EventQuestionsGenerated = "questions_generated"
	EventAnswerSubmitted    = "answer_submitted"
	EventInterviewCompleted = "interview_completed"
	EventInterviewReset     = "interview_reset"
)

// NewFeedbackView wraps a parsed record with its scale.
func NewFeedbackView(record interview.FeedbackRecord, scale int) FeedbackView {
	strengths := record.Strengths
	if strengths == nil {
		strengths = []string{}
	}
	improvements := record.Improvements
	if improvements == nil {
		improvements = []string{}
	}
	return FeedbackView{
		Score:        record.Score,
		ScoreScale:   scale,
		Strengths:    strengths,
		Improvements: improvements,
		Feedback:     record.Feedback,
	}
}

// NewSummaryView converts a stored summary, nil stays nil.
func NewSummaryView(summary *interview.SummaryRecord) *SummaryView {
	if summary == nil {
		return nil
	}
	view := &SummaryView{Raw: summary.Raw}
	if summary.Parsed != nil {
		parsed := NewFeedbackView(*summary.Parsed, SummaryScoreScale)
		view.Parsed = &parsed
	}
	return view
}

// NewInterviewResponse builds the full view of an interview.
func NewInterviewResponse(item models.Interview) InterviewResponse {
	questions := append([]string{}, item.Questions...)
	skills := append([]string{}, item.Skills...)

	answers := make([]string, len(questions))
	feedbacks := make([]string, len(questions))
	parsed := make([]*FeedbackView, len(questions))
	for _, slot := range item.Answers {
		if slot.QuestionIndex < 0 || slot.QuestionIndex >= len(questions) {
			continue
		}
		answers[slot.QuestionIndex] = slot.Answer
		feedbacks[slot.QuestionIndex] = slot.Feedback
		view := NewFeedbackView(slot.ParsedFeedback.Data(), AnswerScoreScale)
		parsed[slot.QuestionIndex] = &view
	}

	return InterviewResponse{
		ID:              item.ID,
		UserID:          item.UserID,
		Role:            item.Role,
		Skills:          skills,
		Experience:      item.Experience,
		DurationMinutes: item.DurationMinutes,
		Status:          item.Status,
		Questions:       questions,
		Answers:         answers,
		Feedbacks:       feedbacks,
		ParsedFeedbacks: parsed,
		FinalSummary:    NewSummaryView(item.Summary()),
		CreatedAt:       item.CreatedAt,
		LastUpdatedAt:   item.LastUpdatedAt,
	}
}

// NewInterviewListItem builds the compact list view.
func NewInterviewListItem(item models.Interview) InterviewListItem {
	return InterviewListItem{
		ID:            item.ID,
		Role:          item.Role,
		Skills:        append([]string{}, item.Skills...),
		Status:        item.Status,
		Total:         len(item.Questions),
		Answered:      item.AnsweredCount(),
		CreatedAt:     item.CreatedAt,
		LastUpdatedAt: item.LastUpdatedAt,
	}
}

// NewInterviewStatusResponse summarises progress.
func NewInterviewStatusResponse(item models.Interview) InterviewStatusResponse {
	return InterviewStatusResponse{
		Total:    len(item.Questions),
		Answered: item.AnsweredCount(),
		Status:   item.Status,
	}
}
