package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mooc_exam_backend/internal/model"
	"mooc_exam_backend/internal/repository"
	"mooc_exam_backend/internal/util"
	"mooc_exam_backend/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ExamInput struct {
	Title           string             `json:"title"`
	DurationMinutes int                `json:"durationMinutes" binding:"required"`
	AttemptsAllowed int                `json:"attemptsAllowed"`
	PassThreshold   float64            `json:"passThreshold"`
	RevealPolicy    model.RevealPolicy `json:"revealPolicy"`
	EasyCount       *int               `json:"easyCount"`
	MediumCount     *int               `json:"mediumCount"`
	HardCount       *int               `json:"hardCount"`
	CooldownMinutes *int               `json:"cooldownMinutes"`
}

func (in *ExamInput) validate() error {
	if in.DurationMinutes <= 0 {
		return util.NewErrorf(util.KindValidation, util.ErrInvalidInput, "duration must be positive")
	}
	if in.AttemptsAllowed == 0 {
		in.AttemptsAllowed = 1
	}
	if in.AttemptsAllowed < 1 {
		return util.NewErrorf(util.KindValidation, util.ErrInvalidInput, "at least one attempt must be allowed")
	}
	if in.PassThreshold < 0 || in.PassThreshold > 100 {
		return util.NewErrorf(util.KindValidation, util.ErrInvalidInput, "pass threshold must be within 0-100")
	}
	if in.RevealPolicy == "" {
		in.RevealPolicy = model.RevealAfterCompletion
	}
	if !in.RevealPolicy.Valid() {
		return util.NewErrorf(util.KindValidation, util.ErrInvalidInput, "unknown reveal policy %q", in.RevealPolicy)
	}
	for _, v := range []*int{in.EasyCount, in.MediumCount, in.HardCount, in.CooldownMinutes} {
		if v != nil && *v < 0 {
			return util.NewErrorf(util.KindValidation, util.ErrInvalidInput, "counts and cooldown must not be negative")
		}
	}
	return nil
}

// ExamStats is the instructor view of an exam's attempts.
type ExamStats struct {
	ExamID     uint                  `json:"examId"`
	ByStatus   map[string]int64      `json:"byStatus"`
	Graded     *repository.ExamStats `json:"graded"`
	PassRate   float64               `json:"passRate"`
	ComputedAt time.Time             `json:"computedAt"`
}

// ExamDefinitionService maintains per-unit exam settings and instructor statistics.
type ExamDefinitionService struct {
	Exams       *repository.ExamRepository
	Instances   *repository.ExamInstanceRepository
	Submissions *repository.SubmissionRepository
	Redis       *redis.Client
	CacheTTL    time.Duration
}

func NewExamDefinitionService(exams *repository.ExamRepository, instances *repository.ExamInstanceRepository, submissions *repository.SubmissionRepository, rdb *redis.Client, cacheTTL time.Duration) *ExamDefinitionService {
	return &ExamDefinitionService{
		Exams:       exams,
		Instances:   instances,
		Submissions: submissions,
		Redis:       rdb,
		CacheTTL:    cacheTTL,
	}
}

// Upsert creates or replaces the exam of a unit.
func (s *ExamDefinitionService) Upsert(ctx context.Context, unitID uint, in ExamInput) (*model.Exam, error) {
	unit, err := s.Exams.FindUnit(ctx, unitID)
	if err != nil {
		return nil, notFoundOr(err, util.ErrUnitNotFound)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	exam, err := s.Exams.FindByUnitID(ctx, unitID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		exam = &model.Exam{UnitID: unitID}
	}
	exam.Title = in.Title
	if exam.Title == "" {
		exam.Title = unit.Title
	}
	exam.DurationMinutes = in.DurationMinutes
	exam.AttemptsAllowed = in.AttemptsAllowed
	exam.PassThreshold = in.PassThreshold
	exam.RevealPolicy = in.RevealPolicy
	exam.EasyCount = in.EasyCount
	exam.MediumCount = in.MediumCount
	exam.HardCount = in.HardCount
	exam.CooldownMinutes = in.CooldownMinutes

	if err := s.Exams.Save(ctx, exam); err != nil {
		return nil, fmt.Errorf("save exam: %w", err)
	}
	s.invalidate(ctx, exam.ID)
	return exam, nil
}

func (s *ExamDefinitionService) GetByUnit(ctx context.Context, unitID uint) (*model.Exam, error) {
	exam, err := s.Exams.FindByUnitID(ctx, unitID)
	if err != nil {
		return nil, notFoundOr(err, util.ErrExamNotFound)
	}
	return exam, nil
}

func statsKey(examID uint) string {
	return fmt.Sprintf("exam:stats:%d", examID)
}

func (s *ExamDefinitionService) invalidate(ctx context.Context, examID uint) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(ctx, statsKey(examID)).Err(); err != nil {
		logger.Log.Warn("drop exam stats cache failed", zap.Uint("exam_id", examID), zap.Error(err))
	}
}

// Stats aggregates attempts of an exam. Results are cached in Redis for CacheTTL.
func (s *ExamDefinitionService) Stats(ctx context.Context, examID uint) (*ExamStats, error) {
	if _, err := s.Exams.FindByID(ctx, examID); err != nil {
		return nil, notFoundOr(err, util.ErrExamNotFound)
	}

	if s.Redis != nil {
		raw, err := s.Redis.Get(ctx, statsKey(examID)).Bytes()
		if err == nil {
			var cached ExamStats
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		} else if err != redis.Nil {
			logger.Log.Warn("read exam stats cache failed", zap.Uint("exam_id", examID), zap.Error(err))
		}
	}

	counts, err := s.Instances.CountByStatus(ctx, examID)
	if err != nil {
		return nil, err
	}
	graded, err := s.Submissions.Stats(ctx, examID)
	if err != nil {
		return nil, err
	}

	stats := &ExamStats{
		ExamID:     examID,
		ByStatus:   make(map[string]int64, len(counts)),
		Graded:     graded,
		ComputedAt: time.Now(),
	}
	for _, c := range counts {
		stats.ByStatus[string(c.Status)] = c.Total
	}
	if graded.Graded > 0 {
		stats.PassRate = roundTo2(float64(graded.Passed) / float64(graded.Graded) * 100)
	}

	if s.Redis != nil && s.CacheTTL > 0 {
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.Redis.Set(ctx, statsKey(examID), raw, s.CacheTTL).Err(); err != nil {
				logger.Log.Warn("write exam stats cache failed", zap.Uint("exam_id", examID), zap.Error(err))
			}
		}
	}
	return stats, nil
}
