package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mooc_exam_backend/internal/config"
	"mooc_exam_backend/internal/model"
	"mooc_exam_backend/internal/repository"
	"mooc_exam_backend/internal/util"
	"mooc_exam_backend/pkg/logger"
	"mooc_exam_backend/pkg/monitoring"
	"mooc_exam_backend/pkg/tracing"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ExamService is the exam attempt lifecycle as seen by the HTTP layer and the sweeper.
type ExamService interface {
	StartAttempt(ctx context.Context, userID, examID uint) (*StartResult, error)
	StartAttemptForUnit(ctx context.Context, userID, unitID uint) (*StartResult, error)
	GetInstance(ctx context.Context, userID uint, instanceID string) (*InstanceView, error)
	SaveAnswer(ctx context.Context, userID uint, instanceID string, in SaveAnswerInput) error
	Submit(ctx context.Context, userID uint, instanceID string) (*SubmitResult, error)
	GetResults(ctx context.Context, userID uint, instanceID string) (*ResultView, error)
	ListAttempts(ctx context.Context, userID, examID uint) (*AttemptHistory, error)
	ExpireOverdue(ctx context.Context) (int, error)
}

const sweepBatch = 500

// ExamManager implements ExamService on top of gorm. Every state transition of an instance
// happens in a transaction holding the instance row lock.
type ExamManager struct {
	DB          *gorm.DB
	Exams       *repository.ExamRepository
	Questions   *repository.QuestionRepository
	Instances   *repository.ExamInstanceRepository
	Answers     *repository.AnswerRepository
	Submissions *repository.SubmissionRepository
	Progress    *repository.ProgressRepository
	Unlocker    *ProgressionUnlocker
	Notifier    *NotificationService
	Locker      StartLocker

	mu     sync.RWMutex
	policy config.ExamConfig
	now    func() time.Time
	rnd    Shuffler
}

type ExamManagerOption func(*ExamManager)

func WithClock(now func() time.Time) ExamManagerOption {
	return func(m *ExamManager) { m.now = now }
}

func WithShuffler(rnd Shuffler) ExamManagerOption {
	return func(m *ExamManager) { m.rnd = rnd }
}

func NewExamManager(
	db *gorm.DB,
	exams *repository.ExamRepository,
	questions *repository.QuestionRepository,
	instances *repository.ExamInstanceRepository,
	answers *repository.AnswerRepository,
	submissions *repository.SubmissionRepository,
	progress *repository.ProgressRepository,
	unlocker *ProgressionUnlocker,
	notifier *NotificationService,
	locker StartLocker,
	policy config.ExamConfig,
	opts ...ExamManagerOption,
) *ExamManager {
	m := &ExamManager{
		DB:          db,
		Exams:       exams,
		Questions:   questions,
		Instances:   instances,
		Answers:     answers,
		Submissions: submissions,
		Progress:    progress,
		Unlocker:    unlocker,
		Notifier:    notifier,
		Locker:      locker,
		policy:      policy,
		now:         time.Now,
		rnd:         newLockedRand(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (s *ExamManager) Policy() config.ExamConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// UpdatePolicy swaps the attempt policy; registered as a config reload callback.
func (s *ExamManager) UpdatePolicy(policy config.ExamConfig) {
	s.mu.Lock()
	s.policy = policy
	s.mu.Unlock()
	logger.Log.Info("exam policy reloaded",
		zap.Duration("cooldown", policy.Cooldown),
		zap.Duration("submit_grace", policy.SubmitGrace),
		zap.Bool("grade_on_expiry", policy.GradeOnExpiry),
	)
}

func notFoundOr(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.NotFound(sentinel)
	}
	return err
}

func (s *ExamManager) reject(reason string, err error) error {
	monitoring.AttemptsRejected.WithLabelValues(reason).Inc()
	return err
}

func cooldownFor(exam *model.Exam, policy config.ExamConfig) time.Duration {
	if exam.CooldownMinutes != nil {
		return time.Duration(*exam.CooldownMinutes) * time.Minute
	}
	return policy.Cooldown
}

func (s *ExamManager) StartAttempt(ctx context.Context, userID, examID uint) (*StartResult, error) {
	exam, err := s.Exams.FindByID(ctx, examID)
	if err != nil {
		return nil, notFoundOr(err, util.ErrExamNotFound)
	}
	return s.start(ctx, userID, exam)
}

// StartAttemptForUnit starts the exam attached to a course unit.
func (s *ExamManager) StartAttemptForUnit(ctx context.Context, userID, unitID uint) (*StartResult, error) {
	exam, err := s.Exams.FindByUnitID(ctx, unitID)
	if err != nil {
		return nil, notFoundOr(err, util.ErrExamNotFound)
	}
	return s.start(ctx, userID, exam)
}

func (s *ExamManager) start(ctx context.Context, userID uint, exam *model.Exam) (res *StartResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "exam.start",
		attribute.Int64("exam.id", int64(exam.ID)),
		attribute.Int64("user.id", int64(userID)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	policy := s.Policy()

	unit, err := s.Exams.FindUnit(ctx, exam.UnitID)
	if err != nil {
		return nil, notFoundOr(err, util.ErrUnitNotFound)
	}

	if _, err := s.Progress.FindEnrollment(ctx, userID, unit.CourseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.reject("not_enrolled", util.Precondition(util.ErrNotEnrolled))
		}
		return nil, err
	}

	done, err := s.Progress.AllLessonsCompleted(ctx, userID, unit.ID)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, s.reject("lessons_incomplete", util.Precondition(util.ErrLessonsIncomplete))
	}

	release, ok, err := s.Locker.Acquire(ctx, startLockKey(exam.ID, userID), policy.StartLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire start lock: %w", err)
	}
	if !ok {
		return nil, s.reject("in_progress", util.Conflict(util.ErrAttemptInProgress))
	}
	defer release()

	now := s.now()

	active, err := s.Instances.FindActive(ctx, exam.ID, userID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if !active.Overdue(now, policy.SubmitGrace) {
			return nil, s.reject("in_progress", util.Conflict(util.ErrAttemptInProgress))
		}
		if _, err := s.expire(ctx, active.ID, "start"); err != nil {
			return nil, err
		}
	}

	used, err := s.Instances.CountAttempts(ctx, exam.ID, userID)
	if err != nil {
		return nil, err
	}
	if int(used) >= exam.AttemptsAllowed {
		return nil, s.reject("exhausted", util.Precondition(util.ErrAttemptsExhausted))
	}

	if wait := cooldownFor(exam, policy); wait > 0 {
		last, ok, err := s.Instances.LastStartedAt(ctx, exam.ID, userID)
		if err != nil {
			return nil, err
		}
		if next := last.Add(wait); ok && now.Before(next) {
			retry := int(math.Ceil(next.Sub(now).Seconds()))
			return nil, s.reject("cooldown", util.NewErrorf(util.KindPrecondition, util.ErrCooldownActive,
				"%s, retry in %d seconds", util.ErrCooldownActive.Error(), retry))
		}
	}

	pool, err := s.Questions.SamplePool(ctx, unit.ID)
	if err != nil {
		return nil, err
	}
	ids := SampleQuestions(pool, QuotaFor(exam, policy), s.rnd)

	duration := exam.DurationMinutes * 60
	key := model.ActiveInstanceKey(exam.ID, userID)
	inst := &model.ExamInstance{
		ExamID:               exam.ID,
		UserID:               userID,
		AttemptNumber:        int(used) + 1,
		Status:               model.InstanceInProgress,
		StartedAt:            now,
		ExpiresAt:            now.Add(time.Duration(duration) * time.Second),
		DurationSeconds:      duration,
		TimeRemainingSeconds: duration,
		ActiveKey:            &key,
	}
	if err := s.Instances.Create(ctx, inst, ids); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, s.reject("in_progress", util.Conflict(util.ErrAttemptInProgress))
		}
		return nil, fmt.Errorf("create exam instance: %w", err)
	}

	monitoring.AttemptsStarted.Inc()
	logger.Log.Info("exam attempt started",
		zap.String("instance_id", inst.ID),
		zap.Uint("exam_id", exam.ID),
		zap.Uint("user_id", userID),
		zap.Int("attempt", inst.AttemptNumber),
		zap.Int("questions", len(ids)),
	)

	return &StartResult{
		InstanceID:      inst.ID,
		ExamID:          exam.ID,
		AttemptNumber:   inst.AttemptNumber,
		Questions:       ids,
		StartTime:       inst.StartedAt,
		ExpiresAt:       inst.ExpiresAt,
		DurationSeconds: duration,
	}, nil
}

func (s *ExamManager) loadOwned(ctx context.Context, userID uint, instanceID string) (*model.ExamInstance, error) {
	inst, err := s.Instances.FindByID(ctx, instanceID)
	if err != nil {
		return nil, notFoundOr(err, util.ErrInstanceNotFound)
	}
	if inst.UserID != userID {
		return nil, util.Unauthorized(util.ErrInstanceForbidden)
	}
	return inst, nil
}

func (s *ExamManager) lockOwned(ctx context.Context, tx *gorm.DB, userID uint, instanceID string) (*model.ExamInstance, error) {
	inst, err := s.Instances.WithTx(tx).FindForUpdate(ctx, instanceID)
	if err != nil {
		return nil, notFoundOr(err, util.ErrInstanceNotFound)
	}
	if inst.UserID != userID {
		return nil, util.Unauthorized(util.ErrInstanceForbidden)
	}
	return inst, nil
}

// refresh expires an overdue instance on read and returns the current row.
func (s *ExamManager) refresh(ctx context.Context, inst *model.ExamInstance) (*model.ExamInstance, error) {
	if inst.Status != model.InstanceInProgress || !inst.Overdue(s.now(), s.Policy().SubmitGrace) {
		return inst, nil
	}
	if _, err := s.expire(ctx, inst.ID, "read"); err != nil {
		return nil, err
	}
	return s.Instances.FindByID(ctx, inst.ID)
}

// frozenQuestions returns the instance's questions in delivery order.
func (s *ExamManager) frozenQuestions(ctx context.Context, tx *gorm.DB, instanceID string) ([]model.Question, error) {
	instances, questions := s.Instances, s.Questions
	if tx != nil {
		instances, questions = instances.WithTx(tx), questions.WithTx(tx)
	}
	ids, err := instances.QuestionIDs(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	byID, err := questions.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *ExamManager) GetInstance(ctx context.Context, userID uint, instanceID string) (*InstanceView, error) {
	inst, err := s.loadOwned(ctx, userID, instanceID)
	if err != nil {
		return nil, err
	}
	if inst, err = s.refresh(ctx, inst); err != nil {
		return nil, err
	}

	exam, err := s.Exams.FindByID(ctx, inst.ExamID)
	if err != nil {
		return nil, notFoundOr(err, util.ErrExamNotFound)
	}
	questions, err := s.frozenQuestions(ctx, nil, inst.ID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.Answers.ListByInstance(ctx, inst.ID)
	if err != nil {
		return nil, err
	}

	view := &InstanceView{
		ID:                   inst.ID,
		ExamID:               inst.ExamID,
		ExamTitle:            exam.Title,
		AttemptNumber:        inst.AttemptNumber,
		Status:               inst.Status,
		StartedAt:            inst.StartedAt,
		EndedAt:              inst.EndedAt,
		DurationSeconds:      inst.DurationSeconds,
		TimeRemainingSeconds: inst.TimeRemainingSeconds,
		Questions:            make([]QuestionView, 0, len(questions)),
	}
	if inst.Status == model.InstanceInProgress {
		view.TimeRemainingSeconds = inst.RemainingAt(s.now())
	}

	for i, q := range questions {
		qv := QuestionView{
			ID:         q.ID,
			Position:   i + 1,
			Stem:       q.Stem,
			Type:       q.Type,
			Difficulty: q.Difficulty,
			Points:     q.Points,
			Options:    make([]OptionView, 0, len(q.Options)),
			Selected:   []uint{},
		}
		for _, o := range q.Options {
			qv.Options = append(qv.Options, OptionView{ID: o.ID, Label: o.Label, Content: o.Content})
		}
		if entry, ok := ledger[q.ID]; ok {
			qv.Selected = entry.OptionIDs()
		}
		view.Questions = append(view.Questions, qv)
	}
	return view, nil
}

func (s *ExamManager) SaveAnswer(ctx context.Context, userID uint, instanceID string, in SaveAnswerInput) (err error) {
	ctx, span := tracing.StartSpan(ctx, "exam.save_answer", attribute.String("instance.id", instanceID))
	defer func() { tracing.EndSpan(span, err) }()

	optionIDs := uniqueSorted(in.OptionIDs)
	timedOut := false

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, err := s.lockOwned(ctx, tx, userID, instanceID)
		if err != nil {
			return err
		}
		if inst.Status != model.InstanceInProgress {
			return util.Conflict(util.ErrInstanceNotActive)
		}

		now := s.now()
		if inst.Overdue(now, s.Policy().SubmitGrace) {
			exam, err := s.Exams.WithTx(tx).FindByID(ctx, inst.ExamID)
			if err != nil {
				return err
			}
			timedOut = true
			_, err = s.closeInstance(ctx, tx, inst, exam, model.InstanceExpired, "expired")
			return err
		}

		ok, err := s.Instances.WithTx(tx).HasQuestion(ctx, inst.ID, in.QuestionID)
		if err != nil {
			return err
		}
		if !ok {
			return util.Validation(util.ErrQuestionNotInExam)
		}

		questions, err := s.Questions.WithTx(tx).FindByIDs(ctx, []uint{in.QuestionID})
		if err != nil {
			return err
		}
		valid := make(map[uint]bool)
		for _, o := range questions[in.QuestionID].Options {
			valid[o.ID] = true
		}
		for _, id := range optionIDs {
			if !valid[id] {
				return util.Validation(util.ErrOptionNotInQuestion)
			}
		}

		if _, err := s.Answers.WithTx(tx).Replace(ctx, inst.ID, in.QuestionID, optionIDs, now); err != nil {
			return fmt.Errorf("save answer: %w", err)
		}

		if inst.SubmissionID == nil {
			sub, err := s.Submissions.WithTx(tx).Ensure(ctx, inst.ExamID, inst.UserID, inst.AttemptNumber)
			if err != nil {
				return err
			}
			if err := s.Instances.WithTx(tx).LinkSubmission(ctx, inst.ID, sub.ID); err != nil {
				return err
			}
		}

		if in.TimeRemaining != nil {
			remaining := inst.RemainingAt(now)
			if *in.TimeRemaining < remaining {
				remaining = max(*in.TimeRemaining, 0)
			}
			if err := s.Instances.WithTx(tx).UpdateTimeRemaining(ctx, inst.ID, remaining); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if timedOut {
		monitoring.InstancesExpired.Inc()
		return util.TimeExceeded(util.ErrTimeExceeded)
	}

	monitoring.AnswersSaved.Inc()
	return nil
}

func (s *ExamManager) Submit(ctx context.Context, userID uint, instanceID string) (res *SubmitResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "exam.submit", attribute.String("instance.id", instanceID))
	defer func() { tracing.EndSpan(span, err) }()

	timedOut := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, err := s.lockOwned(ctx, tx, userID, instanceID)
		if err != nil {
			return err
		}
		if inst.Status != model.InstanceInProgress {
			return util.Conflict(util.ErrInstanceNotActive)
		}
		exam, err := s.Exams.WithTx(tx).FindByID(ctx, inst.ExamID)
		if err != nil {
			return notFoundOr(err, util.ErrExamNotFound)
		}

		status, trigger := model.InstanceCompleted, "submit"
		if inst.Overdue(s.now(), s.Policy().SubmitGrace) {
			status, trigger = model.InstanceExpired, "expired"
			timedOut = true
		}
		res, err = s.closeInstance(ctx, tx, inst, exam, status, trigger)
		return err
	})
	if err != nil {
		return nil, err
	}
	if timedOut {
		monitoring.InstancesExpired.Inc()
		return nil, util.TimeExceeded(util.ErrTimeExceeded)
	}

	logger.Log.Info("exam submitted",
		zap.String("instance_id", instanceID),
		zap.Uint("user_id", userID),
		zap.Float64("percentage", res.Percentage),
		zap.Bool("passed", res.Passed),
	)
	return res, nil
}

// closeInstance flips an in-progress instance to status and, unless it expired with grading
// disabled, grades it and applies progression. Must run inside tx with the row locked.
func (s *ExamManager) closeInstance(ctx context.Context, tx *gorm.DB, inst *model.ExamInstance, exam *model.Exam, status model.InstanceStatus, trigger string) (*SubmitResult, error) {
	now := s.now()
	remaining := inst.RemainingAt(now)

	closed, err := s.Instances.WithTx(tx).Close(ctx, inst.ID, status, now, remaining)
	if err != nil {
		return nil, fmt.Errorf("close instance: %w", err)
	}
	if !closed {
		return nil, util.Conflict(util.ErrInstanceNotActive)
	}
	inst.Status = status
	inst.EndedAt = &now
	inst.TimeRemainingSeconds = remaining
	inst.ActiveKey = nil

	res := &SubmitResult{
		InstanceID:    inst.ID,
		AttemptNumber: inst.AttemptNumber,
		Status:        status,
	}

	if status == model.InstanceExpired {
		err := s.Notifier.Notify(ctx, tx, inst.UserID, model.NotificationAttemptExpired, "Exam time is up: "+exam.Title, map[string]interface{}{
			"examId":     exam.ID,
			"instanceId": inst.ID,
			"attempt":    inst.AttemptNumber,
		})
		if err != nil {
			return nil, err
		}
		if !s.Policy().GradeOnExpiry {
			return res, nil
		}
	}

	grade, err := s.grade(ctx, tx, inst, exam)
	if err != nil {
		return nil, err
	}

	subs := s.Submissions.WithTx(tx)
	sub, err := subs.Ensure(ctx, inst.ExamID, inst.UserID, inst.AttemptNumber)
	if err != nil {
		return nil, err
	}
	sub.Score = grade.Score
	sub.MaxScore = grade.MaxScore
	sub.Percentage = grade.Percentage
	sub.CorrectCount = grade.CorrectCount
	sub.Passed = grade.Passed
	sub.SubmittedAt = &now
	sub.GradedAt = &now
	if err := subs.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("save submission: %w", err)
	}
	if err := s.Instances.WithTx(tx).LinkSubmission(ctx, inst.ID, sub.ID); err != nil {
		return nil, err
	}

	res.Score = grade.Score
	res.MaxScore = grade.MaxScore
	res.Percentage = grade.Percentage
	res.CorrectCount = grade.CorrectCount
	res.Passed = grade.Passed
	monitoring.ObserveGrade(grade.Passed, trigger, grade.Percentage)

	if grade.Passed {
		unit, err := s.Exams.WithTx(tx).FindUnit(ctx, exam.UnitID)
		if err != nil {
			return nil, notFoundOr(err, util.ErrUnitNotFound)
		}
		outcome, err := s.Unlocker.Unlock(ctx, tx, inst.UserID, unit, grade.Percentage, now)
		if err != nil {
			return nil, err
		}
		res.Progression = outcome
	}
	return res, nil
}

// grade scores the saved answers and writes per-question results to the ledger.
func (s *ExamManager) grade(ctx context.Context, tx *gorm.DB, inst *model.ExamInstance, exam *model.Exam) (GradeResult, error) {
	questions, err := s.frozenQuestions(ctx, tx, inst.ID)
	if err != nil {
		return GradeResult{}, err
	}
	answers := s.Answers.WithTx(tx)
	ledger, err := answers.ListByInstance(ctx, inst.ID)
	if err != nil {
		return GradeResult{}, err
	}
	selections := make(map[uint][]uint, len(ledger))
	for qid, entry := range ledger {
		selections[qid] = entry.OptionIDs()
	}

	result := Grade(questions, selections, exam.PassThreshold)
	for _, g := range result.Questions {
		if g.ExcludedEssay {
			continue
		}
		if err := answers.SaveGrade(ctx, inst.ID, g.QuestionID, g.Correct, g.PointsEarned); err != nil {
			return GradeResult{}, fmt.Errorf("save grade: %w", err)
		}
	}
	return result, nil
}

// expire closes an overdue instance in its own transaction. It reports false when the
// instance had already left in_progress.
func (s *ExamManager) expire(ctx context.Context, instanceID, trigger string) (bool, error) {
	expired := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, err := s.Instances.WithTx(tx).FindForUpdate(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst.Status != model.InstanceInProgress {
			return nil
		}
		exam, err := s.Exams.WithTx(tx).FindByID(ctx, inst.ExamID)
		if err != nil {
			return err
		}
		if _, err := s.closeInstance(ctx, tx, inst, exam, model.InstanceExpired, trigger); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		monitoring.InstancesExpired.Inc()
		logger.Log.Info("exam instance expired",
			zap.String("instance_id", instanceID),
			zap.String("trigger", trigger),
		)
	}
	return expired, nil
}

// ExpireOverdue closes every in-progress instance whose time budget plus grace has passed.
func (s *ExamManager) ExpireOverdue(ctx context.Context) (int, error) {
	policy := s.Policy()
	ids, err := s.Instances.ListOverdue(ctx, s.now().Add(-policy.SubmitGrace), sweepBatch)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var expired int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(policy.SweepWorkers, 1))
	for _, id := range ids {
		id := id
		g.Go(func() error {
			ok, err := s.expire(gctx, id, "sweeper")
			if err != nil {
				// one bad row must not stall the rest of the batch
				logger.Log.Error("expire instance failed", zap.String("instance_id", id), zap.Error(err))
				return nil
			}
			if ok {
				atomic.AddInt64(&expired, 1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(expired), nil
}

// revealFor decides whether per-question correctness may be shown to the learner.
func (s *ExamManager) revealFor(ctx context.Context, exam *model.Exam, userID uint) (bool, error) {
	switch exam.RevealPolicy {
	case model.RevealImmediately:
		return true, nil
	case model.RevealAfterCompletion:
		passed, err := s.Submissions.HasPassed(ctx, exam.ID, userID)
		if err != nil || passed {
			return passed, err
		}
		used, err := s.Instances.CountAttempts(ctx, exam.ID, userID)
		if err != nil {
			return false, err
		}
		if int(used) < exam.AttemptsAllowed {
			return false, nil
		}
		// the last attempt may still be running
		active, err := s.Instances.FindActive(ctx, exam.ID, userID)
		return active == nil, err
	}
	return false, nil
}

func (s *ExamManager) GetResults(ctx context.Context, userID uint, instanceID string) (*ResultView, error) {
	inst, err := s.loadOwned(ctx, userID, instanceID)
	if err != nil {
		return nil, err
	}
	if inst, err = s.refresh(ctx, inst); err != nil {
		return nil, err
	}
	if inst.Status == model.InstanceInProgress {
		return nil, util.Conflict(util.ErrInstanceStillOpen)
	}

	exam, err := s.Exams.FindByID(ctx, inst.ExamID)
	if err != nil {
		return nil, notFoundOr(err, util.ErrExamNotFound)
	}

	view := &ResultView{
		InstanceID:    inst.ID,
		ExamID:        inst.ExamID,
		AttemptNumber: inst.AttemptNumber,
		Status:        inst.Status,
		RevealPolicy:  exam.RevealPolicy,
	}
	if inst.SubmissionID != nil {
		sub, err := s.Submissions.FindByID(ctx, *inst.SubmissionID)
		if err != nil {
			return nil, err
		}
		if sub.GradedAt != nil {
			view.Graded = true
			view.Score = sub.Score
			view.MaxScore = sub.MaxScore
			view.Percentage = sub.Percentage
			view.CorrectCount = sub.CorrectCount
			view.Passed = sub.Passed
		}
	}
	if !view.Graded {
		return view, nil
	}

	reveal, err := s.revealFor(ctx, exam, userID)
	if err != nil || !reveal {
		return view, err
	}
	view.Revealed = true

	questions, err := s.frozenQuestions(ctx, nil, inst.ID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.Answers.ListByInstance(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	for i, q := range questions {
		qr := QuestionResult{
			QuestionID:       q.ID,
			Position:         i + 1,
			Stem:             q.Stem,
			SelectedIDs:      []uint{},
			CorrectOptionIDs: []uint{},
			Points:           q.Points,
		}
		for _, o := range q.Options {
			if o.IsCorrect {
				qr.CorrectOptionIDs = append(qr.CorrectOptionIDs, o.ID)
			}
		}
		if entry, ok := ledger[q.ID]; ok {
			qr.SelectedIDs = entry.OptionIDs()
			if entry.IsCorrect != nil {
				qr.IsCorrect = *entry.IsCorrect
			}
			if entry.PointsEarned != nil {
				qr.PointsEarned = *entry.PointsEarned
			}
		}
		view.Questions = append(view.Questions, qr)
	}
	return view, nil
}

func (s *ExamManager) ListAttempts(ctx context.Context, userID, examID uint) (*AttemptHistory, error) {
	exam, err := s.Exams.FindByID(ctx, examID)
	if err != nil {
		return nil, notFoundOr(err, util.ErrExamNotFound)
	}
	list, err := s.Instances.ListByUserAndExam(ctx, examID, userID)
	if err != nil {
		return nil, err
	}

	hist := &AttemptHistory{
		ExamID:          exam.ID,
		AttemptsAllowed: exam.AttemptsAllowed,
		AttemptsUsed:    len(list),
		AttemptsLeft:    max(exam.AttemptsAllowed-len(list), 0),
		Attempts:        make([]AttemptSummary, 0, len(list)),
	}

	var lastStart time.Time
	for _, inst := range list {
		sum := AttemptSummary{
			InstanceID:    inst.ID,
			AttemptNumber: inst.AttemptNumber,
			Status:        inst.Status,
			StartedAt:     inst.StartedAt,
			EndedAt:       inst.EndedAt,
		}
		if inst.SubmissionID != nil {
			sub, err := s.Submissions.FindByID(ctx, *inst.SubmissionID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			if sub != nil && sub.GradedAt != nil {
				pct, passed := sub.Percentage, sub.Passed
				sum.Percentage = &pct
				sum.Passed = &passed
				hist.Passed = hist.Passed || passed
			}
		}
		if inst.StartedAt.After(lastStart) {
			lastStart = inst.StartedAt
		}
		hist.Attempts = append(hist.Attempts, sum)
	}

	if wait := cooldownFor(exam, s.Policy()); wait > 0 && !lastStart.IsZero() {
		if next := lastStart.Add(wait); s.now().Before(next) {
			hist.NextStartAt = &next
		}
	}
	return hist, nil
}
