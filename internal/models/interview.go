package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/interview-prep-api/internal/interview"
)

// Interview lifecycle states.
const (
	InterviewStatusCreated    = "created"
	InterviewStatusInProgress = "in-progress"
	InterviewStatusCompleted  = "completed"
)

// Interview is a mock interview owned by a single user. Answers holds the sparse
// per-question entries of the current epoch.
type Interview struct {
	ID              string                      `gorm:"primaryKey;size:36" json:"id"`
	UserID          uint                        `gorm:"index;not null" json:"user_id"`
	Role            string                      `gorm:"size:160;not null" json:"role"`
	Skills          datatypes.JSONSlice[string] `json:"skills"`
	Experience      *int                        `json:"experience"`
	DurationMinutes int                         `gorm:"default:0" json:"duration_minutes"`
	Status          string                      `gorm:"size:32;not null;index" json:"status"`
	Questions       datatypes.JSONSlice[string] `json:"questions"`
	Epoch           int                         `gorm:"not null;default:0" json:"epoch"`
	FinalSummary    datatypes.JSON              `json:"final_summary"`
	CreatedAt       time.Time                   `json:"created_at"`
	LastUpdatedAt   time.Time                   `json:"last_updated_at"`
	Answers         []InterviewAnswer           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"answers"`
}

// InterviewAnswer stores the answer, raw evaluation and parsed evaluation for one question index.
type InterviewAnswer struct {
	ID             uint                                        `gorm:"primaryKey" json:"id"`
	InterviewID    string                                      `gorm:"size:36;not null;uniqueIndex:idx_interview_answer_slot" json:"interview_id"`
	QuestionIndex  int                                         `gorm:"not null;uniqueIndex:idx_interview_answer_slot" json:"question_index"`
	Epoch          int                                         `gorm:"not null" json:"epoch"`
	Answer         string                                      `gorm:"type:text" json:"answer"`
	Feedback       string                                      `gorm:"type:text" json:"feedback"`
	ParsedFeedback datatypes.JSONType[interview.FeedbackRecord] `json:"parsed_feedback"`
	UpdatedAt      time.Time                                   `json:"updated_at"`
}

// IsTerminal reports whether the interview reached the completed state.
func (i Interview) IsTerminal() bool {
	return i.Status == InterviewStatusCompleted
}

// Summary decodes the stored final summary, if any.
func (i Interview) Summary() *interview.SummaryRecord {
	if len(i.FinalSummary) == 0 || string(i.FinalSummary) == "null" {
		return nil
	}

	var summary interview.SummaryRecord
	if err := json.Unmarshal(i.FinalSummary, &summary); err != nil {
		return nil
	}
	return &summary
}

// AnswerAt returns the stored entry for a question index.
func (i Interview) AnswerAt(index int) (InterviewAnswer, bool) {
	for _, answer := range i.Answers {
		if answer.QuestionIndex == index {
			return answer, true
		}
	}
	return InterviewAnswer{}, false
}

// AnsweredCount counts question slots holding a non-empty answer.
func (i Interview) AnsweredCount() int {
	count := 0
	for _, answer := range i.Answers {
		if answer.Answer != "" && answer.QuestionIndex >= 0 && answer.QuestionIndex < len(i.Questions) {
			count++
		}
	}
	return count
}

// EncodeSummary serialises a summary for storage in Interview.FinalSummary.
func EncodeSummary(summary interview.SummaryRecord) (datatypes.JSON, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(payload), nil
}
