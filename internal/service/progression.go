package service

import (
	"context"
	"errors"
	"fmt"
	"mooc_exam_backend/internal/model"
	"mooc_exam_backend/internal/repository"
	"mooc_exam_backend/internal/util"
	"mooc_exam_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProgressionOutcome describes what a pass changed on the enrollment.
type ProgressionOutcome struct {
	FirstPass       bool    `json:"firstPass"`
	CurrentUnitID   *uint   `json:"currentUnitId,omitempty"`
	UnitsCompleted  int     `json:"unitsCompleted"`
	ProgressPercent float64 `json:"progressPercent"`
	CourseCompleted bool    `json:"courseCompleted"`
}

// ProgressionUnlocker advances a learner through a course when a unit exam is passed.
// Re-passing a unit never counts it twice.
type ProgressionUnlocker struct {
	Exams    *repository.ExamRepository
	Progress *repository.ProgressRepository
	Notifier *NotificationService
}

func NewProgressionUnlocker(exams *repository.ExamRepository, progress *repository.ProgressRepository, notifier *NotificationService) *ProgressionUnlocker {
	return &ProgressionUnlocker{Exams: exams, Progress: progress, Notifier: notifier}
}

// Unlock must run inside the transaction that graded the passing submission.
func (u *ProgressionUnlocker) Unlock(ctx context.Context, tx *gorm.DB, userID uint, unit *model.CourseUnit, percentage float64, at time.Time) (*ProgressionOutcome, error) {
	progress := u.Progress.WithTx(tx)

	enr, err := progress.FindEnrollmentForUpdate(ctx, userID, unit.CourseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.Precondition(util.ErrNotEnrolled)
		}
		return nil, fmt.Errorf("load enrollment: %w", err)
	}

	out := &ProgressionOutcome{}
	pass, err := progress.FindUnitPass(ctx, userID, unit.ID)
	if err != nil {
		return nil, err
	}
	if pass == nil {
		err = progress.CreateUnitPass(ctx, &model.UnitPass{
			UserID:        userID,
			UnitID:        unit.ID,
			CourseID:      unit.CourseID,
			BestScore:     percentage,
			FirstPassedAt: at,
		})
		if err != nil {
			return nil, fmt.Errorf("record unit pass: %w", err)
		}
		enr.UnitsCompleted++
		out.FirstPass = true
	} else if percentage > pass.BestScore {
		if err := progress.UpdateBestScore(ctx, pass.ID, percentage); err != nil {
			return nil, err
		}
	}

	units, err := u.Exams.WithTx(tx).ListUnits(ctx, unit.CourseID)
	if err != nil {
		return nil, err
	}
	total := len(units)

	position := make(map[uint]int, total)
	var next *model.CourseUnit
	for i := range units {
		position[units[i].ID] = i
	}
	if idx, ok := position[unit.ID]; ok && idx+1 < total {
		next = &units[idx+1]
	}

	// 指针只前进不后退
	if next != nil {
		cur, known := -1, false
		if enr.CurrentUnitID != nil {
			cur, known = position[*enr.CurrentUnitID]
		}
		if !known || cur < position[next.ID] {
			enr.CurrentUnitID = &next.ID
		}
	}

	if total > 0 {
		enr.ProgressPercent = roundTo2(float64(enr.UnitsCompleted) / float64(total) * 100)
	}
	// 通过最后一个单元即视为完成课程；完成后进度保持 100
	lastUnit := next == nil
	if lastUnit || enr.CompletedAt != nil || (total > 0 && enr.UnitsCompleted >= total) {
		enr.ProgressPercent = 100
		if enr.CompletedAt == nil {
			enr.CompletedAt = &at
			out.CourseCompleted = true
		}
		avg, err := progress.AverageBestScore(ctx, userID, unit.CourseID)
		if err != nil {
			return nil, err
		}
		enr.OverallScore = roundTo2(avg)
	}

	if err := progress.SaveEnrollment(ctx, enr); err != nil {
		return nil, fmt.Errorf("save enrollment: %w", err)
	}

	out.CurrentUnitID = enr.CurrentUnitID
	out.UnitsCompleted = enr.UnitsCompleted
	out.ProgressPercent = enr.ProgressPercent

	if out.FirstPass {
		payload := map[string]interface{}{
			"courseId":   unit.CourseID,
			"unitId":     unit.ID,
			"percentage": percentage,
		}
		if next != nil {
			payload["nextUnitId"] = next.ID
		}
		if err := u.Notifier.Notify(ctx, tx, userID, model.NotificationUnitPassed, "Unit passed: "+unit.Title, payload); err != nil {
			return nil, err
		}
	}
	if out.CourseCompleted {
		err := u.Notifier.Notify(ctx, tx, userID, model.NotificationCourseCompleted, "Course completed", map[string]interface{}{
			"courseId":     unit.CourseID,
			"overallScore": enr.OverallScore,
		})
		if err != nil {
			return nil, err
		}
	}

	logger.Log.Info("progression updated",
		zap.Uint("user_id", userID),
		zap.Uint("unit_id", unit.ID),
		zap.Bool("first_pass", out.FirstPass),
		zap.Int("units_completed", enr.UnitsCompleted),
		zap.Float64("progress", enr.ProgressPercent),
	)
	return out, nil
}

// CourseProgress is the read-back view of an enrollment.
type CourseProgress struct {
	Enrollment *model.Enrollment `json:"enrollment"`
	UnitPasses []model.UnitPass  `json:"unitPasses"`
	TotalUnits int               `json:"totalUnits"`
}

func (u *ProgressionUnlocker) CourseProgress(ctx context.Context, userID, courseID uint) (*CourseProgress, error) {
	enr, err := u.Progress.FindEnrollment(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFound(util.ErrNotEnrolled)
		}
		return nil, err
	}
	passes, err := u.Progress.ListUnitPasses(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	units, err := u.Exams.ListUnits(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return &CourseProgress{Enrollment: enr, UnitPasses: passes, TotalUnits: len(units)}, nil
}
