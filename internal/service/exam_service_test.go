package service

import (
	"context"
	"errors"
	"mooc_exam_backend/internal/model"
	"mooc_exam_backend/internal/util"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func assertKind(t *testing.T, err error, kind util.ErrorKind, sentinel error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, util.KindOf(err), "error: %v", err)
	if sentinel != nil {
		assert.True(t, errors.Is(err, sentinel), "want %v, got %v", sentinel, err)
	}
}

func TestStartAttemptFreezesSampledQuestions(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))

	res := f.start(learnerID)
	assert.Equal(t, 1, res.AttemptNumber)
	assert.Len(t, res.Questions, 10)
	assert.Equal(t, 30*60, res.DurationSeconds)
	assert.True(t, f.clock.Now().Add(30*time.Minute).Equal(res.ExpiresAt))

	view, err := f.manager.GetInstance(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, model.InstanceInProgress, view.Status)
	assert.Equal(t, "Unit 1 quiz", view.ExamTitle)
	require.Len(t, view.Questions, 10)
	for i, q := range view.Questions {
		assert.Equal(t, res.Questions[i], q.ID)
		assert.Equal(t, i+1, q.Position)
		assert.Len(t, q.Options, 2)
		assert.Empty(t, q.Selected)
	}
}

func TestStartAttemptRejectsSecondActiveAttempt(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	f.start(learnerID)

	_, err := f.manager.StartAttempt(f.ctx, learnerID, f.firstExam().ID)
	assertKind(t, err, util.KindStateConflict, util.ErrAttemptInProgress)

	var count int64
	require.NoError(t, f.db.Model(&model.ExamInstance{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

// grantAll hands out every lock, leaving the database as the only guard.
type grantAll struct{}

func (grantAll) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

func TestConcurrentStartsKeepOneActiveAttempt(t *testing.T) {
	f := newFixture(t, tenEasy(10, model.RevealImmediately))
	f.manager.Locker = grantAll{}

	const n = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.manager.StartAttempt(f.ctx, learnerID, f.firstExam().ID)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assertKind(t, err, util.KindStateConflict, util.ErrAttemptInProgress)
	}
	assert.Equal(t, 1, successes)

	var active int64
	require.NoError(t, f.db.Model(&model.ExamInstance{}).Where("status = ?", model.InstanceInProgress).Count(&active).Error)
	assert.EqualValues(t, 1, active)
}

func TestActiveKeyIndexRejectsSecondOpenInstance(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)
	open := f.instance(res.InstanceID)

	key := model.ActiveInstanceKey(open.ExamID, open.UserID)
	dup := &model.ExamInstance{
		ExamID:          open.ExamID,
		UserID:          open.UserID,
		AttemptNumber:   open.AttemptNumber + 1,
		Status:          model.InstanceInProgress,
		StartedAt:       f.clock.Now(),
		ExpiresAt:       f.clock.Now().Add(time.Hour),
		DurationSeconds: 3600,
		ActiveKey:       &key,
	}
	err := f.manager.Instances.Create(f.ctx, dup, nil)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// closing frees the key for the next attempt
	_, err = f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)
	assert.Nil(t, f.instance(res.InstanceID).ActiveKey)
	next := f.start(learnerID)
	assert.Equal(t, 2, next.AttemptNumber)
}

func TestStartAttemptPreconditions(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))

	_, err := f.manager.StartAttempt(f.ctx, strangerID, f.firstExam().ID)
	assertKind(t, err, util.KindPrecondition, util.ErrNotEnrolled)

	_, err = f.manager.StartAttempt(f.ctx, laggardID, f.firstExam().ID)
	assertKind(t, err, util.KindPrecondition, util.ErrLessonsIncomplete)

	_, err = f.manager.StartAttempt(f.ctx, learnerID, 9999)
	assertKind(t, err, util.KindNotFound, util.ErrExamNotFound)
}

func TestStartAttemptForUnit(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))

	res, err := f.manager.StartAttemptForUnit(f.ctx, learnerID, f.units[0].ID)
	require.NoError(t, err)
	assert.Equal(t, f.firstExam().ID, res.ExamID)

	_, err = f.manager.StartAttemptForUnit(f.ctx, learnerID, f.units[1].ID)
	assertKind(t, err, util.KindNotFound, util.ErrExamNotFound)
}

func TestStartAttemptExhausted(t *testing.T) {
	f := newFixture(t, tenEasy(1, model.RevealImmediately))
	res := f.start(learnerID)
	_, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)

	_, err = f.manager.StartAttempt(f.ctx, learnerID, f.firstExam().ID)
	assertKind(t, err, util.KindPrecondition, util.ErrAttemptsExhausted)
}

func TestStartAttemptCooldown(t *testing.T) {
	in := tenEasy(3, model.RevealImmediately)
	in.CooldownMinutes = intPtr(10)
	f := newFixture(t, in)

	res := f.start(learnerID)
	_, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)

	f.clock.Advance(4 * time.Minute)
	_, err = f.manager.StartAttempt(f.ctx, learnerID, f.firstExam().ID)
	assertKind(t, err, util.KindPrecondition, util.ErrCooldownActive)

	hist, err := f.manager.ListAttempts(f.ctx, learnerID, f.firstExam().ID)
	require.NoError(t, err)
	require.NotNil(t, hist.NextStartAt)
	assert.True(t, res.StartTime.Add(10*time.Minute).Equal(*hist.NextStartAt))

	f.clock.Advance(6 * time.Minute)
	second := f.start(learnerID)
	assert.Equal(t, 2, second.AttemptNumber)
}

func TestStartAttemptReplacesOverdueActiveAttempt(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	first := f.start(learnerID)

	f.clock.Advance(31 * time.Minute)
	second := f.start(learnerID)

	assert.Equal(t, 2, second.AttemptNumber)
	assert.Equal(t, model.InstanceExpired, f.instance(first.InstanceID).Status)
}

func TestSaveAnswerReplacesPreviousSelection(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)
	qid := res.Questions[0]

	require.NoError(t, f.manager.SaveAnswer(f.ctx, learnerID, res.InstanceID, SaveAnswerInput{QuestionID: qid, OptionIDs: []uint{f.wrong[qid]}}))
	require.NoError(t, f.manager.SaveAnswer(f.ctx, learnerID, res.InstanceID, SaveAnswerInput{QuestionID: qid, OptionIDs: []uint{f.correct[qid], f.correct[qid]}}))

	view, err := f.manager.GetInstance(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, []uint{f.correct[qid]}, view.Questions[0].Selected)

	var entries int64
	require.NoError(t, f.db.Model(&model.AnswerEntry{}).Where("instance_id = ?", res.InstanceID).Count(&entries).Error)
	assert.EqualValues(t, 1, entries)

	inst := f.instance(res.InstanceID)
	assert.NotNil(t, inst.SubmissionID)
}

func TestSaveAnswerValidation(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	f.seedQuestions(f.units[1].ID, 1)
	res := f.start(learnerID)

	var foreign uint
	for qid := range f.correct {
		if !containsID(res.Questions, qid) {
			foreign = qid
		}
	}
	require.NotZero(t, foreign)

	err := f.manager.SaveAnswer(f.ctx, learnerID, res.InstanceID, SaveAnswerInput{QuestionID: foreign, OptionIDs: []uint{f.correct[foreign]}})
	assertKind(t, err, util.KindValidation, util.ErrQuestionNotInExam)

	qid := res.Questions[0]
	err = f.manager.SaveAnswer(f.ctx, learnerID, res.InstanceID, SaveAnswerInput{QuestionID: qid, OptionIDs: []uint{f.correct[foreign]}})
	assertKind(t, err, util.KindValidation, util.ErrOptionNotInQuestion)

	err = f.manager.SaveAnswer(f.ctx, classmateID, res.InstanceID, SaveAnswerInput{QuestionID: qid, OptionIDs: []uint{f.correct[qid]}})
	assertKind(t, err, util.KindUnauthorized, util.ErrInstanceForbidden)

	err = f.manager.SaveAnswer(f.ctx, learnerID, "missing", SaveAnswerInput{QuestionID: qid})
	assertKind(t, err, util.KindNotFound, util.ErrInstanceNotFound)
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestSaveAnswerClampsTimeRemaining(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)
	qid := res.Questions[0]

	f.clock.Advance(10 * time.Minute)
	// the client cannot claim more time than the server budget leaves
	require.NoError(t, f.manager.SaveAnswer(f.ctx, learnerID, res.InstanceID, SaveAnswerInput{QuestionID: qid, TimeRemaining: intPtr(3600)}))
	assert.Equal(t, 20*60, f.instance(res.InstanceID).TimeRemainingSeconds)

	require.NoError(t, f.manager.SaveAnswer(f.ctx, learnerID, res.InstanceID, SaveAnswerInput{QuestionID: qid, TimeRemaining: intPtr(600)}))
	assert.Equal(t, 600, f.instance(res.InstanceID).TimeRemainingSeconds)
}

func TestSaveAnswerWithinGraceIsAccepted(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)
	qid := res.Questions[0]

	f.clock.Advance(30*time.Minute + 3*time.Second)
	err := f.manager.SaveAnswer(f.ctx, learnerID, res.InstanceID, SaveAnswerInput{QuestionID: qid, OptionIDs: []uint{f.correct[qid]}})
	require.NoError(t, err)
}

func TestSaveAnswerAfterDeadlineExpiresInstance(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)
	qid := res.Questions[0]

	f.clock.Advance(31 * time.Minute)
	err := f.manager.SaveAnswer(f.ctx, learnerID, res.InstanceID, SaveAnswerInput{QuestionID: qid, OptionIDs: []uint{f.correct[qid]}})
	assertKind(t, err, util.KindTimeExceeded, util.ErrTimeExceeded)

	inst := f.instance(res.InstanceID)
	assert.Equal(t, model.InstanceExpired, inst.Status)
	assert.Nil(t, inst.ActiveKey)

	var saved int64
	require.NoError(t, f.db.Model(&model.AnswerEntry{}).Where("instance_id = ? AND answered_at IS NOT NULL", res.InstanceID).Count(&saved).Error)
	assert.Zero(t, saved)
}

func TestSubmitPassUnlocksNextUnit(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)
	f.answer(learnerID, res, 7)

	out, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, model.InstanceCompleted, out.Status)
	assert.Equal(t, 7.0, out.Score)
	assert.Equal(t, 10.0, out.MaxScore)
	assert.Equal(t, 70.0, out.Percentage)
	assert.Equal(t, 7, out.CorrectCount)
	assert.True(t, out.Passed)

	require.NotNil(t, out.Progression)
	assert.True(t, out.Progression.FirstPass)
	assert.Equal(t, 1, out.Progression.UnitsCompleted)
	assert.Equal(t, 50.0, out.Progression.ProgressPercent)
	require.NotNil(t, out.Progression.CurrentUnitID)
	assert.Equal(t, f.units[1].ID, *out.Progression.CurrentUnitID)

	enr := f.enrollment(learnerID)
	assert.Equal(t, 1, enr.UnitsCompleted)
	assert.Equal(t, f.units[1].ID, *enr.CurrentUnitID)
	assert.Nil(t, enr.CompletedAt)

	inst := f.instance(res.InstanceID)
	assert.Equal(t, model.InstanceCompleted, inst.Status)
	require.NotNil(t, inst.EndedAt)
	assert.Nil(t, inst.ActiveKey)

	notes, err := f.notify.List(f.ctx, learnerID, false)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotificationUnitPassed, notes[0].Type)
}

func TestSubmitFailDoesNotUnlock(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)
	f.answer(learnerID, res, 6)

	out, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, out.Percentage)
	assert.False(t, out.Passed)
	assert.Nil(t, out.Progression)

	enr := f.enrollment(learnerID)
	assert.Zero(t, enr.UnitsCompleted)
	assert.Equal(t, f.units[0].ID, *enr.CurrentUnitID)

	var passes int64
	require.NoError(t, f.db.Model(&model.UnitPass{}).Count(&passes).Error)
	assert.Zero(t, passes)
}

func TestSubmitTwiceConflicts(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)

	_, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)

	_, err = f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	assertKind(t, err, util.KindStateConflict, util.ErrInstanceNotActive)

	err = f.manager.SaveAnswer(f.ctx, learnerID, res.InstanceID, SaveAnswerInput{QuestionID: res.Questions[0]})
	assertKind(t, err, util.KindStateConflict, util.ErrInstanceNotActive)
}

func TestSubmitUnansweredScoresZero(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)

	out, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)
	assert.Zero(t, out.Score)
	assert.False(t, out.Passed)

	var graded int64
	require.NoError(t, f.db.Model(&model.AnswerEntry{}).Where("instance_id = ? AND is_correct = ?", res.InstanceID, false).Count(&graded).Error)
	assert.EqualValues(t, 10, graded)
}

func TestSubmitAfterDeadlineExpiresAndGrades(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)
	f.answer(learnerID, res, 8)

	f.clock.Advance(45 * time.Minute)
	_, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	assertKind(t, err, util.KindTimeExceeded, util.ErrTimeExceeded)

	inst := f.instance(res.InstanceID)
	assert.Equal(t, model.InstanceExpired, inst.Status)
	assert.Zero(t, inst.TimeRemainingSeconds)

	results, err := f.manager.GetResults(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)
	assert.True(t, results.Graded)
	assert.Equal(t, 80.0, results.Percentage)
	assert.True(t, results.Passed)

	// a pass recorded on expiry still counts toward progression
	assert.Equal(t, 1, f.enrollment(learnerID).UnitsCompleted)
}

func TestExpireWithoutGradingLeavesSubmissionOpen(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	policy := f.manager.Policy()
	policy.GradeOnExpiry = false
	f.manager.UpdatePolicy(policy)

	res := f.start(learnerID)
	f.answer(learnerID, res, 10)
	f.clock.Advance(time.Hour)

	n, err := f.manager.ExpireOverdue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := f.manager.GetResults(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, model.InstanceExpired, results.Status)
	assert.False(t, results.Graded)
	assert.Zero(t, f.enrollment(learnerID).UnitsCompleted)
}

func TestRepassDoesNotDoubleCount(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))

	first := f.start(learnerID)
	f.answer(learnerID, first, 7)
	_, err := f.manager.Submit(f.ctx, learnerID, first.InstanceID)
	require.NoError(t, err)

	second := f.start(learnerID)
	f.answer(learnerID, second, 10)
	out, err := f.manager.Submit(f.ctx, learnerID, second.InstanceID)
	require.NoError(t, err)
	require.NotNil(t, out.Progression)
	assert.False(t, out.Progression.FirstPass)
	assert.Equal(t, 1, out.Progression.UnitsCompleted)

	var pass model.UnitPass
	require.NoError(t, f.db.Where("user_id = ? AND unit_id = ?", learnerID, f.units[0].ID).First(&pass).Error)
	assert.Equal(t, 100.0, pass.BestScore)
	assert.Equal(t, 1, f.enrollment(learnerID).UnitsCompleted)
}

func TestPassingEveryUnitCompletesCourse(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	f.seedQuestions(f.units[1].ID, 4)
	second := f.upsertExam(f.units[1].ID, ExamInput{
		DurationMinutes: 20,
		PassThreshold:   50,
		EasyCount:       intPtr(4),
	})

	res := f.start(learnerID)
	f.answer(learnerID, res, 8)
	_, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)

	res2, err := f.manager.StartAttempt(f.ctx, learnerID, second.ID)
	require.NoError(t, err)
	require.Len(t, res2.Questions, 4)
	f.answer(learnerID, res2, 4)
	out, err := f.manager.Submit(f.ctx, learnerID, res2.InstanceID)
	require.NoError(t, err)

	require.NotNil(t, out.Progression)
	assert.True(t, out.Progression.CourseCompleted)
	assert.Equal(t, 100.0, out.Progression.ProgressPercent)

	enr := f.enrollment(learnerID)
	assert.Equal(t, 2, enr.UnitsCompleted)
	assert.NotNil(t, enr.CompletedAt)
	assert.Equal(t, 90.0, enr.OverallScore)
	// the pointer stays on the last unlocked unit
	assert.Equal(t, f.units[1].ID, *enr.CurrentUnitID)

	var completed int64
	require.NoError(t, f.db.Model(&model.Notification{}).Where("user_id = ? AND type = ?", learnerID, model.NotificationCourseCompleted).Count(&completed).Error)
	assert.EqualValues(t, 1, completed)
}

func TestPassingLastUnitFirstCompletesCourse(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	f.seedQuestions(f.units[1].ID, 4)
	last := f.upsertExam(f.units[1].ID, ExamInput{
		DurationMinutes: 20,
		PassThreshold:   50,
		EasyCount:       intPtr(4),
	})

	res, err := f.manager.StartAttempt(f.ctx, learnerID, last.ID)
	require.NoError(t, err)
	f.answer(learnerID, res, 4)
	out, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)

	require.NotNil(t, out.Progression)
	assert.True(t, out.Progression.CourseCompleted)
	assert.Equal(t, 100.0, out.Progression.ProgressPercent)
	assert.Equal(t, 1, out.Progression.UnitsCompleted)

	enr := f.enrollment(learnerID)
	assert.Equal(t, 100.0, enr.ProgressPercent)
	assert.NotNil(t, enr.CompletedAt)
	assert.Equal(t, 100.0, enr.OverallScore)

	// a later pass of an earlier unit keeps the course complete and refreshes the score
	first := f.start(learnerID)
	f.answer(learnerID, first, 8)
	out, err = f.manager.Submit(f.ctx, learnerID, first.InstanceID)
	require.NoError(t, err)
	require.NotNil(t, out.Progression)
	assert.False(t, out.Progression.CourseCompleted)
	assert.Equal(t, 100.0, out.Progression.ProgressPercent)

	enr = f.enrollment(learnerID)
	assert.Equal(t, 2, enr.UnitsCompleted)
	assert.Equal(t, 100.0, enr.ProgressPercent)
	assert.Equal(t, 90.0, enr.OverallScore)

	var completed int64
	require.NoError(t, f.db.Model(&model.Notification{}).Where("user_id = ? AND type = ?", learnerID, model.NotificationCourseCompleted).Count(&completed).Error)
	assert.EqualValues(t, 1, completed)
}

func TestExpireOverdueSweepsEveryLearner(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	a := f.start(learnerID)
	b := f.start(classmateID)
	f.answer(classmateID, b, 9)

	f.clock.Advance(20 * time.Minute)
	n, err := f.manager.ExpireOverdue(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(11 * time.Minute)
	n, err = f.manager.ExpireOverdue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, model.InstanceExpired, f.instance(a.InstanceID).Status)
	assert.Equal(t, model.InstanceExpired, f.instance(b.InstanceID).Status)
	assert.Equal(t, 1, f.enrollment(classmateID).UnitsCompleted)

	n, err = f.manager.ExpireOverdue(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	notes, err := f.notify.List(f.ctx, learnerID, true)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotificationAttemptExpired, notes[0].Type)
}

func TestGetInstanceExpiresOnRead(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)

	f.clock.Advance(10 * time.Minute)
	view, err := f.manager.GetInstance(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, 20*60, view.TimeRemainingSeconds)

	f.clock.Advance(time.Hour)
	view, err = f.manager.GetInstance(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, model.InstanceExpired, view.Status)
	assert.Zero(t, view.TimeRemainingSeconds)

	_, err = f.manager.GetInstance(f.ctx, classmateID, res.InstanceID)
	assertKind(t, err, util.KindUnauthorized, util.ErrInstanceForbidden)
}

func TestGetResultsBeforeSubmit(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)

	_, err := f.manager.GetResults(f.ctx, learnerID, res.InstanceID)
	assertKind(t, err, util.KindStateConflict, util.ErrInstanceStillOpen)
}

func TestResultRevealPolicies(t *testing.T) {
	t.Run("immediately", func(t *testing.T) {
		f := newFixture(t, tenEasy(3, model.RevealImmediately))
		res := f.start(learnerID)
		f.answer(learnerID, res, 3)
		_, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
		require.NoError(t, err)

		view, err := f.manager.GetResults(f.ctx, learnerID, res.InstanceID)
		require.NoError(t, err)
		assert.True(t, view.Revealed)
		require.Len(t, view.Questions, 10)
		correct := 0
		for _, q := range view.Questions {
			assert.Len(t, q.CorrectOptionIDs, 1)
			if q.IsCorrect {
				correct++
				assert.Equal(t, q.Points, q.PointsEarned)
			}
		}
		assert.Equal(t, 3, correct)
	})

	t.Run("never", func(t *testing.T) {
		f := newFixture(t, tenEasy(1, model.RevealNever))
		res := f.start(learnerID)
		f.answer(learnerID, res, 10)
		_, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
		require.NoError(t, err)

		view, err := f.manager.GetResults(f.ctx, learnerID, res.InstanceID)
		require.NoError(t, err)
		assert.True(t, view.Graded)
		assert.Equal(t, 100.0, view.Percentage)
		assert.False(t, view.Revealed)
		assert.Empty(t, view.Questions)
	})

	t.Run("after completion", func(t *testing.T) {
		f := newFixture(t, tenEasy(2, model.RevealAfterCompletion))
		first := f.start(learnerID)
		f.answer(learnerID, first, 2)
		_, err := f.manager.Submit(f.ctx, learnerID, first.InstanceID)
		require.NoError(t, err)

		view, err := f.manager.GetResults(f.ctx, learnerID, first.InstanceID)
		require.NoError(t, err)
		assert.False(t, view.Revealed, "attempts remain and no pass yet")

		second := f.start(learnerID)
		view, err = f.manager.GetResults(f.ctx, learnerID, first.InstanceID)
		require.NoError(t, err)
		assert.False(t, view.Revealed, "last attempt still running")

		f.answer(learnerID, second, 4)
		_, err = f.manager.Submit(f.ctx, learnerID, second.InstanceID)
		require.NoError(t, err)

		view, err = f.manager.GetResults(f.ctx, learnerID, first.InstanceID)
		require.NoError(t, err)
		assert.True(t, view.Revealed)
		assert.Len(t, view.Questions, 10)
	})

	t.Run("after completion on pass", func(t *testing.T) {
		f := newFixture(t, tenEasy(3, model.RevealAfterCompletion))
		res := f.start(learnerID)
		f.answer(learnerID, res, 9)
		_, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
		require.NoError(t, err)

		view, err := f.manager.GetResults(f.ctx, learnerID, res.InstanceID)
		require.NoError(t, err)
		assert.True(t, view.Revealed)
	})
}

func TestListAttempts(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))

	first := f.start(learnerID)
	f.answer(learnerID, first, 5)
	_, err := f.manager.Submit(f.ctx, learnerID, first.InstanceID)
	require.NoError(t, err)
	f.start(learnerID)

	hist, err := f.manager.ListAttempts(f.ctx, learnerID, f.firstExam().ID)
	require.NoError(t, err)
	assert.Equal(t, 2, hist.AttemptsUsed)
	assert.Equal(t, 1, hist.AttemptsLeft)
	assert.False(t, hist.Passed)
	assert.Nil(t, hist.NextStartAt)
	require.Len(t, hist.Attempts, 2)
	require.NotNil(t, hist.Attempts[0].Percentage)
	assert.Equal(t, 50.0, *hist.Attempts[0].Percentage)
	assert.Equal(t, model.InstanceInProgress, hist.Attempts[1].Status)
	assert.Nil(t, hist.Attempts[1].Percentage)
}

func TestExamStatsAggregatesGradedAttempts(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))

	a := f.start(learnerID)
	f.answer(learnerID, a, 9)
	_, err := f.manager.Submit(f.ctx, learnerID, a.InstanceID)
	require.NoError(t, err)

	b := f.start(classmateID)
	f.answer(classmateID, b, 5)
	_, err = f.manager.Submit(f.ctx, classmateID, b.InstanceID)
	require.NoError(t, err)
	f.start(classmateID)

	stats, err := f.defs.Stats(f.ctx, f.firstExam().ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.ByStatus[string(model.InstanceCompleted)])
	assert.EqualValues(t, 1, stats.ByStatus[string(model.InstanceInProgress)])
	assert.EqualValues(t, 2, stats.Graded.Graded)
	assert.EqualValues(t, 1, stats.Graded.Passed)
	assert.Equal(t, 70.0, stats.Graded.AvgPercentage)
	assert.Equal(t, 90.0, stats.Graded.BestPercentage)
	assert.Equal(t, 50.0, stats.PassRate)
}

func TestUpsertExamRoundTrip(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))

	in := tenEasy(5, "")
	in.Title = ""
	in.PassThreshold = 85
	updated := f.upsertExam(f.units[0].ID, in)
	assert.Equal(t, f.firstExam().ID, updated.ID)

	got, err := f.defs.GetByUnit(f.ctx, f.units[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.AttemptsAllowed)
	assert.Equal(t, 85.0, got.PassThreshold)
	assert.Equal(t, model.RevealAfterCompletion, got.RevealPolicy)
	assert.Equal(t, f.units[0].Title, got.Title)

	_, err = f.defs.Upsert(f.ctx, f.units[0].ID, ExamInput{DurationMinutes: 0})
	assertKind(t, err, util.KindValidation, util.ErrInvalidInput)

	_, err = f.defs.Upsert(f.ctx, 9999, tenEasy(1, ""))
	assertKind(t, err, util.KindNotFound, util.ErrUnitNotFound)
}
