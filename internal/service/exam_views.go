package service

import (
	"mooc_exam_backend/internal/model"
	"time"
)

// StartResult is returned to the learner when an attempt begins.
type StartResult struct {
	InstanceID      string    `json:"instanceId"`
	ExamID          uint      `json:"examId"`
	AttemptNumber   int       `json:"attemptNumber"`
	Questions       []uint    `json:"questions"`
	StartTime       time.Time `json:"startTime"`
	ExpiresAt       time.Time `json:"expiresAt"`
	DurationSeconds int       `json:"durationSeconds"`
}

type OptionView struct {
	ID      uint   `json:"id"`
	Label   string `json:"label"`
	Content string `json:"content"`
}

// QuestionView never carries the answer key.
type QuestionView struct {
	ID         uint               `json:"id"`
	Position   int                `json:"position"`
	Stem       string             `json:"stem"`
	Type       model.QuestionType `json:"type"`
	Difficulty model.Difficulty   `json:"difficulty"`
	Points     float64            `json:"points"`
	Options    []OptionView       `json:"options"`
	Selected   []uint             `json:"selectedOptionIds"`
}

type InstanceView struct {
	ID                   string               `json:"id"`
	ExamID               uint                 `json:"examId"`
	ExamTitle            string               `json:"examTitle"`
	AttemptNumber        int                  `json:"attemptNumber"`
	Status               model.InstanceStatus `json:"status"`
	StartedAt            time.Time            `json:"startedAt"`
	EndedAt              *time.Time           `json:"endedAt,omitempty"`
	DurationSeconds      int                  `json:"durationSeconds"`
	TimeRemainingSeconds int                  `json:"timeRemainingSeconds"`
	Questions            []QuestionView       `json:"questions"`
}

// SaveAnswerInput is one answer upsert. TimeRemaining is the client's countdown checkpoint.
type SaveAnswerInput struct {
	QuestionID    uint   `json:"questionId" binding:"required"`
	OptionIDs     []uint `json:"selectedOptions"`
	TimeRemaining *int   `json:"timeRemainingSeconds"`
}

type SubmitResult struct {
	InstanceID    string               `json:"instanceId"`
	AttemptNumber int                  `json:"attemptNumber"`
	Status        model.InstanceStatus `json:"status"`
	Score         float64              `json:"score"`
	MaxScore      float64              `json:"maxScore"`
	Percentage    float64              `json:"percentage"`
	CorrectCount  int                  `json:"correctCount"`
	Passed        bool                 `json:"passed"`
	Progression   *ProgressionOutcome  `json:"progression,omitempty"`
}

// QuestionResult is the revealed per-question breakdown.
type QuestionResult struct {
	QuestionID       uint    `json:"questionId"`
	Position         int     `json:"position"`
	Stem             string  `json:"stem"`
	SelectedIDs      []uint  `json:"selectedOptionIds"`
	CorrectOptionIDs []uint  `json:"correctOptionIds"`
	IsCorrect        bool    `json:"isCorrect"`
	PointsEarned     float64 `json:"pointsEarned"`
	Points           float64 `json:"points"`
}

type ResultView struct {
	InstanceID    string               `json:"instanceId"`
	ExamID        uint                 `json:"examId"`
	AttemptNumber int                  `json:"attemptNumber"`
	Status        model.InstanceStatus `json:"status"`
	Graded        bool                 `json:"graded"`
	Score         float64              `json:"score"`
	MaxScore      float64              `json:"maxScore"`
	Percentage    float64              `json:"percentage"`
	CorrectCount  int                  `json:"correctCount"`
	Passed        bool                 `json:"passed"`
	RevealPolicy  model.RevealPolicy   `json:"revealPolicy"`
	Revealed      bool                 `json:"revealed"`
	Questions     []QuestionResult     `json:"questions,omitempty"`
}

type AttemptSummary struct {
	InstanceID    string               `json:"instanceId"`
	AttemptNumber int                  `json:"attemptNumber"`
	Status        model.InstanceStatus `json:"status"`
	StartedAt     time.Time            `json:"startedAt"`
	EndedAt       *time.Time           `json:"endedAt,omitempty"`
	Percentage    *float64             `json:"percentage,omitempty"`
	Passed        *bool                `json:"passed,omitempty"`
}

type AttemptHistory struct {
	ExamID          uint             `json:"examId"`
	AttemptsAllowed int              `json:"attemptsAllowed"`
	AttemptsUsed    int              `json:"attemptsUsed"`
	AttemptsLeft    int              `json:"attemptsLeft"`
	Passed          bool             `json:"passed"`
	NextStartAt     *time.Time       `json:"nextStartAt,omitempty"`
	Attempts        []AttemptSummary `json:"attempts"`
}
