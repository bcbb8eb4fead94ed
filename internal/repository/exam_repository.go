package repository

import (
	"context"
	"mooc_exam_backend/internal/model"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) WithTx(tx *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: tx}
}

func (r *ExamRepository) FindByID(ctx context.Context, id uint) (*model.Exam, error) {
	var e model.Exam
	if err := r.DB.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ExamRepository) FindByUnitID(ctx context.Context, unitID uint) (*model.Exam, error) {
	var e model.Exam
	if err := r.DB.WithContext(ctx).Where("unit_id = ?", unitID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ExamRepository) Save(ctx context.Context, e *model.Exam) error {
	return r.DB.WithContext(ctx).Save(e).Error
}

func (r *ExamRepository) FindUnit(ctx context.Context, unitID uint) (*model.CourseUnit, error) {
	var u model.CourseUnit
	if err := r.DB.WithContext(ctx).First(&u, unitID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUnits returns the course's units in delivery order.
func (r *ExamRepository) ListUnits(ctx context.Context, courseID uint) ([]model.CourseUnit, error) {
	var units []model.CourseUnit
	err := r.DB.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("position ASC, id ASC").
		Find(&units).Error
	return units, err
}
