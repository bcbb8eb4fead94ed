package model

import "time"

// Submission is the graded outcome of one attempt. It is created on the first saved answer
// (or at submit time) and frozen once GradedAt is set.
// swagger:model Submission
type Submission struct {
	RecordModel

	ExamID        uint       `gorm:"uniqueIndex:idx_submission_attempt;not null" json:"examId"`
	UserID        uint       `gorm:"uniqueIndex:idx_submission_attempt;not null" json:"userId"`
	AttemptNumber int        `gorm:"uniqueIndex:idx_submission_attempt;not null" json:"attemptNumber"`
	Score         float64    `gorm:"default:0" json:"score"`
	MaxScore      float64    `gorm:"default:0" json:"maxScore"`
	Percentage    float64    `gorm:"default:0" json:"percentage"`
	CorrectCount  int        `gorm:"default:0" json:"correctCount"`
	Passed        bool       `gorm:"default:false" json:"passed"`
	SubmittedAt   *time.Time `json:"submittedAt,omitempty"`
	GradedAt      *time.Time `json:"gradedAt,omitempty"`
}

func (Submission) TableName() string {
	return "exam_submissions"
}
