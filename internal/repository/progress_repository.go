package repository

import (
	"context"
	"mooc_exam_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) WithTx(tx *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: tx}
}

// AllLessonsCompleted reports whether the learner finished every lesson of the unit.
// A unit without lessons counts as completed.
func (r *ProgressRepository) AllLessonsCompleted(ctx context.Context, userID, unitID uint) (bool, error) {
	db := r.DB.WithContext(ctx)

	var total int64
	if err := db.Model(&model.Lesson{}).Where("unit_id = ?", unitID).Count(&total).Error; err != nil {
		return false, err
	}
	if total == 0 {
		return true, nil
	}

	var done int64
	err := db.Model(&model.LessonProgress{}).
		Joins("JOIN lessons ON lessons.id = lesson_progress.lesson_id AND lessons.deleted_at IS NULL").
		Where("lessons.unit_id = ? AND lesson_progress.user_id = ? AND lesson_progress.completed = ?", unitID, userID, true).
		Count(&done).Error
	if err != nil {
		return false, err
	}
	return done >= total, nil
}

func (r *ProgressRepository) FindEnrollment(ctx context.Context, userID, courseID uint) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindEnrollmentForUpdate locks the enrollment row for the progression update.
func (r *ProgressRepository) FindEnrollmentForUpdate(ctx context.Context, userID, courseID uint) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ProgressRepository) SaveEnrollment(ctx context.Context, e *model.Enrollment) error {
	return r.DB.WithContext(ctx).Save(e).Error
}

// FindUnitPass returns nil when the learner has not passed the unit yet.
func (r *ProgressRepository) FindUnitPass(ctx context.Context, userID, unitID uint) (*model.UnitPass, error) {
	var p model.UnitPass
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND unit_id = ?", userID, unitID).
		Limit(1).
		Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *ProgressRepository) CreateUnitPass(ctx context.Context, p *model.UnitPass) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

func (r *ProgressRepository) UpdateBestScore(ctx context.Context, id uint, score float64) error {
	return r.DB.WithContext(ctx).
		Model(&model.UnitPass{}).
		Where("id = ?", id).
		Update("best_score", score).Error
}

// AverageBestScore averages the best passing percentage over the passed units of the course.
func (r *ProgressRepository) AverageBestScore(ctx context.Context, userID, courseID uint) (float64, error) {
	var avg *float64
	err := r.DB.WithContext(ctx).
		Model(&model.UnitPass{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Select("AVG(best_score)").
		Scan(&avg).Error
	if err != nil || avg == nil {
		return 0, err
	}
	return *avg, nil
}

func (r *ProgressRepository) ListUnitPasses(ctx context.Context, userID, courseID uint) ([]model.UnitPass, error) {
	var list []model.UnitPass
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Order("first_passed_at ASC").
		Find(&list).Error
	return list, err
}
