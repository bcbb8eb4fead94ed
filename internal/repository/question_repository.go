package repository

import (
	"context"
	"mooc_exam_backend/internal/model"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) WithTx(tx *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: tx}
}

// Create inserts the question together with its options.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Create(q).Error
}

func (r *QuestionRepository) FindByID(ctx context.Context, id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("label ASC") }).
		First(&q, id).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuestionRepository) ListByUnit(ctx context.Context, unitID uint) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("label ASC") }).
		Where("unit_id = ?", unitID).
		Order("id ASC").
		Find(&questions).Error
	return questions, err
}

// PoolEntry is the minimal view the sampler needs.
type PoolEntry struct {
	ID         uint
	Difficulty model.Difficulty
}

// SamplePool returns every auto-gradable question of the unit with its tier.
func (r *QuestionRepository) SamplePool(ctx context.Context, unitID uint) ([]PoolEntry, error) {
	var pool []PoolEntry
	err := r.DB.WithContext(ctx).
		Model(&model.Question{}).
		Select("id, difficulty").
		Where("unit_id = ? AND type IN ?", unitID, []model.QuestionType{model.QuestionSingleChoice, model.QuestionTrueFalse}).
		Order("id ASC").
		Scan(&pool).Error
	return pool, err
}

// FindByIDs loads questions with their current options, keyed by id.
func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]model.Question, error) {
	out := make(map[uint]model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var questions []model.Question
	err := r.DB.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("label ASC") }).
		Where("id IN ?", ids).
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		out[q.ID] = q
	}
	return out, nil
}

// Update saves the question fields and reconciles its options by label in one transaction.
// An option whose label survives the edit keeps its id, so saved selections still point at it.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question, options []model.QuestionOption) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Options").Save(q).Error; err != nil {
			return err
		}

		var existing []model.QuestionOption
		if err := tx.Where("question_id = ?", q.ID).Find(&existing).Error; err != nil {
			return err
		}
		byLabel := make(map[string]model.QuestionOption, len(existing))
		for _, o := range existing {
			byLabel[o.Label] = o
		}

		for i := range options {
			options[i].QuestionID = q.ID
			old, ok := byLabel[options[i].Label]
			if !ok {
				options[i].ID = 0
				if err := tx.Create(&options[i]).Error; err != nil {
					return err
				}
				continue
			}
			delete(byLabel, options[i].Label)
			options[i].ID = old.ID
			options[i].CreatedAt = old.CreatedAt
			err := tx.Model(&model.QuestionOption{}).
				Where("id = ?", old.ID).
				Updates(map[string]interface{}{"content": options[i].Content, "is_correct": options[i].IsCorrect}).Error
			if err != nil {
				return err
			}
		}

		// 被移除的选项软删除，历史作答仍可关联
		for _, o := range byLabel {
			if err := tx.Delete(&model.QuestionOption{}, o.ID).Error; err != nil {
				return err
			}
		}
		q.Options = options
		return nil
	})
}

func (r *QuestionRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", id).Delete(&model.QuestionOption{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Question{}, id).Error
	})
}

// CountReferences counts instances that froze the question, optionally only closed ones.
func (r *QuestionRepository) CountReferences(ctx context.Context, questionID uint, closedOnly bool) (int64, error) {
	var count int64
	q := r.DB.WithContext(ctx).
		Table("exam_instance_questions").
		Joins("JOIN exam_instances ON exam_instances.id = exam_instance_questions.instance_id").
		Where("exam_instance_questions.question_id = ?", questionID)
	if closedOnly {
		q = q.Where("exam_instances.status IN ?", []model.InstanceStatus{model.InstanceCompleted, model.InstanceExpired})
	}
	err := q.Count(&count).Error
	return count, err
}
