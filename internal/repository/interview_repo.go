package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/interview-prep-api/internal/interview"
	"github.com/noah-isme/interview-prep-api/internal/models"
)

var (
	// ErrInterviewNotFound indicates no interview document exists for the id.
	ErrInterviewNotFound = errors.New("interview record not found")
	// ErrEpochMismatch indicates a generation or reset happened since the interview was read.
	ErrEpochMismatch = errors.New("interview epoch changed")
)

// AnswerWrite is a targeted write of one question slot. When Summary is set the same
// write completes the interview, unless a summary already exists for the epoch.
type AnswerWrite struct {
	InterviewID   string
	Epoch         int
	QuestionIndex int
	Answer        string
	Feedback      string
	Parsed        interview.FeedbackRecord
	Summary       *interview.SummaryRecord
}

// InterviewRepository is the document store for interviews. Generation and reset replace
// whole fields and advance the epoch; answer writes touch only their own slot.
type InterviewRepository interface {
	Create(ctx context.Context, item *models.Interview) error
	GetByID(ctx context.Context, id string) (models.Interview, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Interview, error)
	ReplaceQuestions(ctx context.Context, id string, questions []string) (int, error)
	RecordAnswer(ctx context.Context, write AnswerWrite) (completed bool, err error)
	Reset(ctx context.Context, id string) (int, error)
}

// NewInterviewRepository constructs a gorm backed interview repository.
func NewInterviewRepository(db *gorm.DB) InterviewRepository {
	return &interviewRepository{db: db, now: time.Now}
}

type interviewRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func (r *interviewRepository) Create(ctx context.Context, item *models.Interview) error {
	now := r.now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.LastUpdatedAt = now
	if item.Status == "" {
		item.Status = models.InterviewStatusCreated
	}
	if item.Questions == nil {
		item.Questions = datatypes.NewJSONSlice([]string{})
	}
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *interviewRepository) GetByID(ctx context.Context, id string) (models.Interview, error) {
	var item models.Interview
	err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Interview{}, ErrInterviewNotFound
		}
		return models.Interview{}, err
	}

	var answers []models.InterviewAnswer
	err = r.db.WithContext(ctx).
		Where("interview_id = ? AND epoch = ?", id, item.Epoch).
		Order("question_index ASC").
		Find(&answers).Error
	if err != nil {
		return models.Interview{}, err
	}
	item.Answers = answers

	return item, nil
}

func (r *interviewRepository) ListByUser(ctx context.Context, userID uint) ([]models.Interview, error) {
	var items []models.Interview
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	var answers []models.InterviewAnswer
	err = r.db.WithContext(ctx).
		Where("interview_id IN ?", ids).
		Order("question_index ASC").
		Find(&answers).Error
	if err != nil {
		return nil, err
	}

	byInterview := make(map[string][]models.InterviewAnswer, len(items))
	for _, answer := range answers {
		byInterview[answer.InterviewID] = append(byInterview[answer.InterviewID], answer)
	}
	for i := range items {
		for _, answer := range byInterview[items[i].ID] {
			if answer.Epoch == items[i].Epoch {
				items[i].Answers = append(items[i].Answers, answer)
			}
		}
	}

	return items, nil
}

func (r *interviewRepository) ReplaceQuestions(ctx context.Context, id string, questions []string) (int, error) {
	return r.advanceEpoch(ctx, id, map[string]interface{}{
		"questions": datatypes.NewJSONSlice(questions),
		"status":    models.InterviewStatusInProgress,
	})
}

func (r *interviewRepository) Reset(ctx context.Context, id string) (int, error) {
	return r.advanceEpoch(ctx, id, map[string]interface{}{
		"questions": datatypes.NewJSONSlice([]string{}),
		"status":    models.InterviewStatusCreated,
	})
}

// advanceEpoch overwrites the generated content of an interview, drops every stored
// answer slot and returns the new epoch.
func (r *interviewRepository) advanceEpoch(ctx context.Context, id string, fields map[string]interface{}) (int, error) {
	var epoch int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Interview
		if err := tx.Select("id", "epoch").First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInterviewNotFound
			}
			return err
		}

		if err := tx.Where("interview_id = ?", id).Delete(&models.InterviewAnswer{}).Error; err != nil {
			return err
		}

		epoch = current.Epoch + 1
		updates := map[string]interface{}{
			"final_summary":   nil,
			"epoch":           epoch,
			"last_updated_at": r.now().UTC(),
		}
		for key, value := range fields {
			updates[key] = value
		}

		result := tx.Model(&models.Interview{}).
			Where("id = ? AND epoch = ?", id, current.Epoch).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrEpochMismatch
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return epoch, nil
}

func (r *interviewRepository) RecordAnswer(ctx context.Context, write AnswerWrite) (bool, error) {
	completed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now().UTC()

		touched := tx.Model(&models.Interview{}).
			Where("id = ? AND epoch = ?", write.InterviewID, write.Epoch).
			Update("last_updated_at", now)
		if touched.Error != nil {
			return touched.Error
		}
		if touched.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Interview{}).Where("id = ?", write.InterviewID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrInterviewNotFound
			}
			return ErrEpochMismatch
		}

		slot := models.InterviewAnswer{
			InterviewID:    write.InterviewID,
			QuestionIndex:  write.QuestionIndex,
			Epoch:          write.Epoch,
			Answer:         write.Answer,
			Feedback:       write.Feedback,
			ParsedFeedback: datatypes.NewJSONType(write.Parsed),
			UpdatedAt:      now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "interview_id"}, {Name: "question_index"}},
			DoUpdates: clause.AssignmentColumns([]string{"epoch", "answer", "feedback", "parsed_feedback", "updated_at"}),
		}).Create(&slot).Error
		if err != nil {
			return err
		}

		if write.Summary == nil {
			return nil
		}

		encoded, err := models.EncodeSummary(*write.Summary)
		if err != nil {
			return err
		}

		result := tx.Model(&models.Interview{}).
			Where("id = ? AND epoch = ? AND final_summary IS NULL", write.InterviewID, write.Epoch).
			Updates(map[string]interface{}{
				"status":          models.InterviewStatusCompleted,
				"final_summary":   encoded,
				"last_updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		completed = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return completed, nil
}
