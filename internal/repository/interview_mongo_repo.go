package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/datatypes"

	"github.com/noah-isme/interview-prep-api/internal/interview"
	"github.com/noah-isme/interview-prep-api/internal/models"
)

// InterviewCollection is the MongoDB collection holding interview documents.
const InterviewCollection = "interviews"

// interviewDocument keeps answers, feedbacks and parsed feedbacks as sparse maps keyed by
// question index so a single slot can be written through its own field path.
type interviewDocument struct {
	ID              string                              `bson:"_id"`
	UserID          int64                               `bson:"user_id"`
	Role            string                              `bson:"role"`
	Skills          []string                            `bson:"skills"`
	Experience      *int                                `bson:"experience"`
	DurationMinutes int                                 `bson:"duration_minutes"`
	Status          string                              `bson:"status"`
	Questions       []string                            `bson:"questions"`
	Epoch           int                                 `bson:"epoch"`
	Answers         map[string]string                   `bson:"answers"`
	Feedbacks       map[string]string                   `bson:"feedbacks"`
	ParsedFeedbacks map[string]interview.FeedbackRecord `bson:"parsed_feedbacks"`
	FinalSummary    *interview.SummaryRecord            `bson:"final_summary"`
	CreatedAt       time.Time                           `bson:"created_at"`
	LastUpdatedAt   time.Time                           `bson:"last_updated_at"`
}

// NewMongoInterviewRepository constructs a MongoDB backed interview repository.
func NewMongoInterviewRepository(db *mongo.Database) InterviewRepository {
	return &mongoInterviewRepository{collection: db.Collection(InterviewCollection), now: time.Now}
}

type mongoInterviewRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func (r *mongoInterviewRepository) Create(ctx context.Context, item *models.Interview) error {
	now := r.now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.LastUpdatedAt = now
	if item.Status == "" {
		item.Status = models.InterviewStatusCreated
	}

	_, err := r.collection.InsertOne(ctx, fromModel(*item))
	return err
}

func (r *mongoInterviewRepository) GetByID(ctx context.Context, id string) (models.Interview, error) {
	var doc interviewDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Interview{}, ErrInterviewNotFound
		}
		return models.Interview{}, err
	}
	return toModel(doc), nil
}

func (r *mongoInterviewRepository) ListByUser(ctx context.Context, userID uint) ([]models.Interview, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": int64(userID)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []interviewDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	items := make([]models.Interview, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toModel(doc))
	}
	return items, nil
}

func (r *mongoInterviewRepository) ReplaceQuestions(ctx context.Context, id string, questions []string) (int, error) {
	return r.advanceEpoch(ctx, id, bson.M{
		"questions": questions,
		"status":    models.InterviewStatusInProgress,
	})
}

func (r *mongoInterviewRepository) Reset(ctx context.Context, id string) (int, error) {
	return r.advanceEpoch(ctx, id, bson.M{
		"questions": []string{},
		"status":    models.InterviewStatusCreated,
	})
}

func (r *mongoInterviewRepository) advanceEpoch(ctx context.Context, id string, fields bson.M) (int, error) {
	var current struct {
		Epoch int `bson:"epoch"`
	}
	projection := options.FindOne().SetProjection(bson.M{"epoch": 1})
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}, projection).Decode(&current); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrInterviewNotFound
		}
		return 0, err
	}

	epoch := current.Epoch + 1
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "epoch": current.Epoch},
		epochUpdate(fields, epoch, r.now().UTC()),
	)
	if err != nil {
		return 0, err
	}
	if result.MatchedCount == 0 {
		return 0, ErrEpochMismatch
	}
	return epoch, nil
}

func (r *mongoInterviewRepository) RecordAnswer(ctx context.Context, write AnswerWrite) (bool, error) {
	now := r.now().UTC()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": write.InterviewID, "epoch": write.Epoch},
		answerSlotUpdate(write, now),
	)
	if err != nil {
		return false, err
	}
	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": write.InterviewID})
		if err != nil {
			return false, err
		}
		if count == 0 {
			return false, ErrInterviewNotFound
		}
		return false, ErrEpochMismatch
	}

	if write.Summary == nil {
		return false, nil
	}

	completion, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": write.InterviewID, "epoch": write.Epoch, "final_summary": nil},
		completionUpdate(*write.Summary, now),
	)
	if err != nil {
		return false, err
	}
	return completion.MatchedCount > 0, nil
}

func epochUpdate(fields bson.M, epoch int, now time.Time) bson.M {
	set := bson.M{
		"answers":          bson.M{},
		"feedbacks":        bson.M{},
		"parsed_feedbacks": bson.M{},
		"final_summary":    nil,
		"epoch":            epoch,
		"last_updated_at":  now,
	}
	for key, value := range fields {
		set[key] = value
	}
	return bson.M{"$set": set}
}

func answerSlotUpdate(write AnswerWrite, now time.Time) bson.M {
	slot := strconv.Itoa(write.QuestionIndex)
	return bson.M{"$set": bson.M{
		"answers." + slot:          write.Answer,
		"feedbacks." + slot:        write.Feedback,
		"parsed_feedbacks." + slot: write.Parsed,
		"last_updated_at":          now,
	}}
}

func completionUpdate(summary interview.SummaryRecord, now time.Time) bson.M {
	return bson.M{"$set": bson.M{
		"status":          models.InterviewStatusCompleted,
		"final_summary":   summary,
		"last_updated_at": now,
	}}
}

func fromModel(item models.Interview) interviewDocument {
	doc := interviewDocument{
		ID:              item.ID,
		UserID:          int64(item.UserID),
		Role:            item.Role,
		Skills:          []string(item.Skills),
		Experience:      item.Experience,
		DurationMinutes: item.DurationMinutes,
		Status:          item.Status,
		Questions:       []string(item.Questions),
		Epoch:           item.Epoch,
		Answers:         map[string]string{},
		Feedbacks:       map[string]string{},
		ParsedFeedbacks: map[string]interview.FeedbackRecord{},
		FinalSummary:    item.Summary(),
		CreatedAt:       item.CreatedAt,
		LastUpdatedAt:   item.LastUpdatedAt,
	}
	if doc.Skills == nil {
		doc.Skills = []string{}
	}
	if doc.Questions == nil {
		doc.Questions = []string{}
	}
	for _, answer := range item.Answers {
		slot := strconv.Itoa(answer.QuestionIndex)
		doc.Answers[slot] = answer.Answer
		doc.Feedbacks[slot] = answer.Feedback
		doc.ParsedFeedbacks[slot] = answer.ParsedFeedback.Data()
	}
	return doc
}

func toModel(doc interviewDocument) models.Interview {
	item := models.Interview{
		ID:              doc.ID,
		UserID:          uint(doc.UserID),
		Role:            doc.Role,
		Skills:          datatypes.NewJSONSlice(doc.Skills),
		Experience:      doc.Experience,
		DurationMinutes: doc.DurationMinutes,
		Status:          doc.Status,
		Questions:       datatypes.NewJSONSlice(doc.Questions),
		Epoch:           doc.Epoch,
		CreatedAt:       doc.CreatedAt,
		LastUpdatedAt:   doc.LastUpdatedAt,
	}

	if doc.FinalSummary != nil {
		if encoded, err := models.EncodeSummary(*doc.FinalSummary); err == nil {
			item.FinalSummary = encoded
		}
	}

	slots := make(map[int]struct{})
	for _, keys := range [][]string{mapKeys(doc.Answers), mapKeys(doc.Feedbacks), mapKeys(doc.ParsedFeedbacks)} {
		for _, key := range keys {
			index, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			slots[index] = struct{}{}
		}
	}

	indexes := make([]int, 0, len(slots))
	for index := range slots {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	for _, index := range indexes {
		slot := strconv.Itoa(index)
		item.Answers = append(item.Answers, models.InterviewAnswer{
			InterviewID:    doc.ID,
			QuestionIndex:  index,
			Epoch:          doc.Epoch,
			Answer:         doc.Answers[slot],
			Feedback:       doc.Feedbacks[slot],
			ParsedFeedback: datatypes.NewJSONType(doc.ParsedFeedbacks[slot]),
			UpdatedAt:      doc.LastUpdatedAt,
		})
	}

	return item
}

func mapKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	return keys
}

// EnsureInterviewIndexes creates the indexes used by the interview queries.
func EnsureInterviewIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(InterviewCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create interview indexes: %w", err)
	}
	return nil
}
