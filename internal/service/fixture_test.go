package service

import (
	"context"
	"fmt"
	"mooc_exam_backend/internal/config"
	"mooc_exam_backend/internal/model"
	"mooc_exam_backend/internal/repository"
	"mooc_exam_backend/pkg/database"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	learnerID   uint = 1
	strangerID  uint = 2 // not enrolled
	laggardID   uint = 3 // enrolled, lessons unfinished
	classmateID uint = 4
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: is per connection
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	db      *gorm.DB
	clock   *fakeClock
	manager *ExamManager
	defs    *ExamDefinitionService
	bank    *QuestionBankService
	notify  *NotificationService

	course model.Course
	units  []model.CourseUnit
	exams  map[uint]*model.Exam // by unit id

	correct map[uint]uint // question id -> correct option
	wrong   map[uint]uint // question id -> a wrong option
}

// newFixture seeds a two unit course. The learner and classmate are enrolled and finished
// the single lesson of unit one; unit one's exam draws ten easy single choice questions.
func newFixture(t *testing.T, exam ExamInput) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		clock:   &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		exams:   make(map[uint]*model.Exam),
		correct: make(map[uint]uint),
		wrong:   make(map[uint]uint),
	}

	f.course = model.Course{Title: "Go 并发编程", InstructorID: 99}
	require.NoError(t, db.Create(&f.course).Error)
	for i := 1; i <= 2; i++ {
		u := model.CourseUnit{CourseID: f.course.ID, Title: fmt.Sprintf("Unit %d", i), Position: i}
		require.NoError(t, db.Create(&u).Error)
		f.units = append(f.units, u)
	}

	lesson := model.Lesson{UnitID: f.units[0].ID, Title: "goroutines", Position: 1}
	require.NoError(t, db.Create(&lesson).Error)

	for _, uid := range []uint{learnerID, laggardID, classmateID} {
		enr := model.Enrollment{UserID: uid, CourseID: f.course.ID, CurrentUnitID: &f.units[0].ID}
		require.NoError(t, db.Create(&enr).Error)
	}
	done := f.clock.Now()
	for _, uid := range []uint{learnerID, classmateID} {
		lp := model.LessonProgress{UserID: uid, LessonID: lesson.ID, Completed: true, CompletedAt: &done}
		require.NoError(t, db.Create(&lp).Error)
	}

	exams := repository.NewExamRepository(db)
	questions := repository.NewQuestionRepository(db)
	instances := repository.NewExamInstanceRepository(db)
	answers := repository.NewAnswerRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	progress := repository.NewProgressRepository(db)

	f.notify = NewNotificationService(repository.NewNotificationRepository(db))
	unlocker := NewProgressionUnlocker(exams, progress, f.notify)
	f.defs = NewExamDefinitionService(exams, instances, submissions, nil, 0)
	f.bank = NewQuestionBankService(db, questions, exams, nil)
	f.manager = NewExamManager(db, exams, questions, instances, answers, submissions, progress,
		unlocker, f.notify, NewLocalStartLocker(), config.DefaultExamConfig(),
		WithClock(f.clock.Now), WithShuffler(newLockedRand(42)),
	)

	f.seedQuestions(f.units[0].ID, 10)
	f.upsertExam(f.units[0].ID, exam)
	return f
}

func (f *fixture) seedQuestions(unitID uint, n int) {
	f.t.Helper()
	for i := 0; i < n; i++ {
		q, err := f.bank.Create(f.ctx, unitID, QuestionInput{
			Stem:       fmt.Sprintf("unit %d question %d", unitID, i+1),
			Type:       model.QuestionSingleChoice,
			Difficulty: model.DifficultyEasy,
			Options: []OptionInput{
				{Content: "right", IsCorrect: true},
				{Content: "wrong"},
			},
		})
		require.NoError(f.t, err)
		for _, o := range q.Options {
			if o.IsCorrect {
				f.correct[q.ID] = o.ID
			} else {
				f.wrong[q.ID] = o.ID
			}
		}
	}
}

func (f *fixture) upsertExam(unitID uint, in ExamInput) *model.Exam {
	f.t.Helper()
	exam, err := f.defs.Upsert(f.ctx, unitID, in)
	require.NoError(f.t, err)
	f.exams[unitID] = exam
	return exam
}

func (f *fixture) firstExam() *model.Exam {
	return f.exams[f.units[0].ID]
}

func (f *fixture) start(userID uint) *StartResult {
	f.t.Helper()
	res, err := f.manager.StartAttempt(f.ctx, userID, f.firstExam().ID)
	require.NoError(f.t, err)
	return res
}

// answer saves the correct option for the first n delivered questions and a wrong one for the rest.
func (f *fixture) answer(userID uint, started *StartResult, n int) {
	f.t.Helper()
	for i, qid := range started.Questions {
		opt := f.wrong[qid]
		if i < n {
			opt = f.correct[qid]
		}
		err := f.manager.SaveAnswer(f.ctx, userID, started.InstanceID, SaveAnswerInput{QuestionID: qid, OptionIDs: []uint{opt}})
		require.NoError(f.t, err)
	}
}

func (f *fixture) instance(id string) *model.ExamInstance {
	f.t.Helper()
	var inst model.ExamInstance
	require.NoError(f.t, f.db.First(&inst, "id = ?", id).Error)
	return &inst
}

func (f *fixture) enrollment(userID uint) *model.Enrollment {
	f.t.Helper()
	var enr model.Enrollment
	require.NoError(f.t, f.db.Where("user_id = ? AND course_id = ?", userID, f.course.ID).First(&enr).Error)
	return &enr
}

func intPtr(v int) *int { return &v }

// tenEasy samples all ten seeded questions of unit one.
func tenEasy(attempts int, reveal model.RevealPolicy) ExamInput {
	return ExamInput{
		Title:           "Unit 1 quiz",
		DurationMinutes: 30,
		AttemptsAllowed: attempts,
		PassThreshold:   70,
		RevealPolicy:    reveal,
		EasyCount:       intPtr(10),
		MediumCount:     intPtr(0),
		HardCount:       intPtr(0),
	}
}
