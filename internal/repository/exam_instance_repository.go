package repository

import (
	"context"
	"mooc_exam_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExamInstanceRepository struct {
	DB *gorm.DB
}

func NewExamInstanceRepository(db *gorm.DB) *ExamInstanceRepository {
	return &ExamInstanceRepository{DB: db}
}

func (r *ExamInstanceRepository) WithTx(tx *gorm.DB) *ExamInstanceRepository {
	return &ExamInstanceRepository{DB: tx}
}

// Create inserts the instance and its frozen question rows.
func (r *ExamInstanceRepository) Create(ctx context.Context, inst *model.ExamInstance, questionIDs []uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Questions").Create(inst).Error; err != nil {
			return err
		}
		if len(questionIDs) == 0 {
			return nil
		}
		rows := make([]model.InstanceQuestion, 0, len(questionIDs))
		for i, qid := range questionIDs {
			rows = append(rows, model.InstanceQuestion{
				InstanceID: inst.ID,
				QuestionID: qid,
				Position:   i + 1,
			})
		}
		return tx.Create(&rows).Error
	})
}

func (r *ExamInstanceRepository) FindByID(ctx context.Context, id string) (*model.ExamInstance, error) {
	var inst model.ExamInstance
	if err := r.DB.WithContext(ctx).First(&inst, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &inst, nil
}

// FindForUpdate loads the instance with a row lock; only meaningful inside a transaction.
func (r *ExamInstanceRepository) FindForUpdate(ctx context.Context, id string) (*model.ExamInstance, error) {
	var inst model.ExamInstance
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&inst, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// QuestionIDs returns the frozen question ids in their delivery order.
func (r *ExamInstanceRepository) QuestionIDs(ctx context.Context, instanceID string) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).
		Model(&model.InstanceQuestion{}).
		Where("instance_id = ?", instanceID).
		Order("position ASC").
		Pluck("question_id", &ids).Error
	return ids, err
}

func (r *ExamInstanceRepository) HasQuestion(ctx context.Context, instanceID string, questionID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&model.InstanceQuestion{}).
		Where("instance_id = ? AND question_id = ?", instanceID, questionID).
		Count(&count).Error
	return count > 0, err
}

func (r *ExamInstanceRepository) CountAttempts(ctx context.Context, examID, userID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&model.ExamInstance{}).
		Where("exam_id = ? AND user_id = ?", examID, userID).
		Count(&count).Error
	return count, err
}

// FindActive returns the in-progress instance of the learner for the exam, or nil.
func (r *ExamInstanceRepository) FindActive(ctx context.Context, examID, userID uint) (*model.ExamInstance, error) {
	var inst model.ExamInstance
	err := r.DB.WithContext(ctx).
		Where("exam_id = ? AND user_id = ? AND status = ?", examID, userID, model.InstanceInProgress).
		Order("started_at DESC").
		Limit(1).
		Find(&inst).Error
	if err != nil {
		return nil, err
	}
	if inst.ID == "" {
		return nil, nil
	}
	return &inst, nil
}

// LastStartedAt returns the most recent start for the pair; ok is false when there is none.
func (r *ExamInstanceRepository) LastStartedAt(ctx context.Context, examID, userID uint) (time.Time, bool, error) {
	var inst model.ExamInstance
	err := r.DB.WithContext(ctx).
		Select("started_at").
		Where("exam_id = ? AND user_id = ?", examID, userID).
		Order("started_at DESC").
		Limit(1).
		Find(&inst).Error
	if err != nil {
		return time.Time{}, false, err
	}
	if inst.StartedAt.IsZero() {
		return time.Time{}, false, nil
	}
	return inst.StartedAt, true, nil
}

// Close moves an in-progress instance to a terminal status. It reports false when the
// instance was no longer in progress, which callers treat as a lost race.
func (r *ExamInstanceRepository) Close(ctx context.Context, id string, status model.InstanceStatus, endedAt time.Time, remaining int) (bool, error) {
	res := r.DB.WithContext(ctx).
		Model(&model.ExamInstance{}).
		Where("id = ? AND status = ?", id, model.InstanceInProgress).
		Updates(map[string]interface{}{
			"status":                 status,
			"ended_at":               endedAt,
			"active_key":             nil,
			"time_remaining_seconds": remaining,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ExamInstanceRepository) UpdateTimeRemaining(ctx context.Context, id string, seconds int) error {
	return r.DB.WithContext(ctx).
		Model(&model.ExamInstance{}).
		Where("id = ? AND status = ?", id, model.InstanceInProgress).
		Update("time_remaining_seconds", seconds).Error
}

func (r *ExamInstanceRepository) LinkSubmission(ctx context.Context, id string, submissionID uint) error {
	return r.DB.WithContext(ctx).
		Model(&model.ExamInstance{}).
		Where("id = ?", id).
		Update("submission_id", submissionID).Error
}

// ListOverdue returns ids of in-progress instances whose budget ran out before cutoff.
func (r *ExamInstanceRepository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).
		Model(&model.ExamInstance{}).
		Where("status = ? AND expires_at < ?", model.InstanceInProgress, cutoff).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *ExamInstanceRepository) ListByUserAndExam(ctx context.Context, examID, userID uint) ([]model.ExamInstance, error) {
	var list []model.ExamInstance
	err := r.DB.WithContext(ctx).
		Where("exam_id = ? AND user_id = ?", examID, userID).
		Order("attempt_number ASC").
		Find(&list).Error
	return list, err
}

type InstanceStatusCount struct {
	Status model.InstanceStatus
	Total  int64
}

func (r *ExamInstanceRepository) CountByStatus(ctx context.Context, examID uint) ([]InstanceStatusCount, error) {
	var rows []InstanceStatusCount
	err := r.DB.WithContext(ctx).
		Model(&model.ExamInstance{}).
		Select("status, COUNT(*) AS total").
		Where("exam_id = ?", examID).
		Group("status").
		Scan(&rows).Error
	return rows, err
}
