package repository

import (
	"context"
	"mooc_exam_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

func (r *SubmissionRepository) WithTx(tx *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: tx}
}

// Ensure returns the submission of the attempt, creating an empty one if needed.
func (r *SubmissionRepository) Ensure(ctx context.Context, examID, userID uint, attempt int) (*model.Submission, error) {
	db := r.DB.WithContext(ctx)
	sub := model.Submission{ExamID: examID, UserID: userID, AttemptNumber: attempt}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&sub).Error
	if err != nil {
		return nil, err
	}
	var out model.Submission
	err = db.Where("exam_id = ? AND user_id = ? AND attempt_number = ?", examID, userID, attempt).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *SubmissionRepository) FindByID(ctx context.Context, id uint) (*model.Submission, error) {
	var sub model.Submission
	if err := r.DB.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubmissionRepository) Save(ctx context.Context, sub *model.Submission) error {
	return r.DB.WithContext(ctx).Save(sub).Error
}

// HasPassed reports whether any graded attempt of the learner passed the exam.
func (r *SubmissionRepository) HasPassed(ctx context.Context, examID, userID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&model.Submission{}).
		Where("exam_id = ? AND user_id = ? AND passed = ? AND graded_at IS NOT NULL", examID, userID, true).
		Count(&count).Error
	return count > 0, err
}

// ExamStats aggregates the graded submissions of an exam.
type ExamStats struct {
	Graded         int64   `json:"graded"`
	Passed         int64   `json:"passed"`
	AvgPercentage  float64 `json:"avgPercentage"`
	BestPercentage float64 `json:"bestPercentage"`
}

func (r *SubmissionRepository) Stats(ctx context.Context, examID uint) (*ExamStats, error) {
	var row struct {
		Graded int64
		Passed int64
		Avg    *float64
		Best   *float64
	}
	err := r.DB.WithContext(ctx).
		Model(&model.Submission{}).
		Select("COUNT(*) AS graded, COALESCE(SUM(CASE WHEN passed THEN 1 ELSE 0 END), 0) AS passed, AVG(percentage) AS avg, MAX(percentage) AS best").
		Where("exam_id = ? AND graded_at IS NOT NULL", examID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	stats := &ExamStats{Graded: row.Graded, Passed: row.Passed}
	if row.Avg != nil {
		stats.AvgPercentage = *row.Avg
	}
	if row.Best != nil {
		stats.BestPercentage = *row.Best
	}
	return stats, nil
}
