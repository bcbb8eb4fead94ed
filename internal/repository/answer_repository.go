package repository

import (
	"context"
	"mooc_exam_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type AnswerRepository struct {
	DB *gorm.DB
}

func NewAnswerRepository(db *gorm.DB) *AnswerRepository {
	return &AnswerRepository{DB: db}
}

func (r *AnswerRepository) WithTx(tx *gorm.DB) *AnswerRepository {
	return &AnswerRepository{DB: tx}
}

// Replace drops any previous answer for (instance, question) and stores the new selection.
func (r *AnswerRepository) Replace(ctx context.Context, instanceID string, questionID uint, optionIDs []uint, at time.Time) (*model.AnswerEntry, error) {
	entry := &model.AnswerEntry{
		InstanceID: instanceID,
		QuestionID: questionID,
		AnsweredAt: &at,
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteEntries(tx, "instance_id = ? AND question_id = ?", instanceID, questionID); err != nil {
			return err
		}
		for _, id := range optionIDs {
			entry.Selections = append(entry.Selections, model.AnswerSelection{OptionID: id})
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func deleteEntries(tx *gorm.DB, query string, args ...interface{}) error {
	var ids []uint
	if err := tx.Model(&model.AnswerEntry{}).Where(query, args...).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("answer_entry_id IN ?", ids).Delete(&model.AnswerSelection{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&model.AnswerEntry{}).Error
}

// ListByInstance returns the ledger of an instance keyed by question id.
func (r *AnswerRepository) ListByInstance(ctx context.Context, instanceID string) (map[uint]model.AnswerEntry, error) {
	var entries []model.AnswerEntry
	err := r.DB.WithContext(ctx).
		Preload("Selections").
		Where("instance_id = ?", instanceID).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]model.AnswerEntry, len(entries))
	for _, e := range entries {
		out[e.QuestionID] = e
	}
	return out, nil
}

// SaveGrade writes the graded fields, creating an empty ledger row for unanswered questions.
func (r *AnswerRepository) SaveGrade(ctx context.Context, instanceID string, questionID uint, correct bool, points float64) error {
	db := r.DB.WithContext(ctx)
	res := db.Model(&model.AnswerEntry{}).
		Where("instance_id = ? AND question_id = ?", instanceID, questionID).
		Updates(map[string]interface{}{"is_correct": correct, "points_earned": points})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return db.Create(&model.AnswerEntry{
		InstanceID:   instanceID,
		QuestionID:   questionID,
		IsCorrect:    &correct,
		PointsEarned: &points,
	}).Error
}
