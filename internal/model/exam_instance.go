package model

import (
	"fmt"
	"time"
)

type InstanceStatus string

const (
	InstanceInProgress InstanceStatus = "in_progress"
	InstanceCompleted  InstanceStatus = "completed"
	InstanceExpired    InstanceStatus = "expired"
)

// ExamInstance is one learner's timed attempt at an exam.
// swagger:model ExamInstance
type ExamInstance struct {
	UUIDBase

	ExamID               uint           `gorm:"uniqueIndex:idx_instance_attempt;index:idx_instance_exam_user_started;not null" json:"examId"`
	UserID               uint           `gorm:"uniqueIndex:idx_instance_attempt;index:idx_instance_exam_user_started;not null" json:"userId"`
	AttemptNumber        int            `gorm:"uniqueIndex:idx_instance_attempt;not null" json:"attemptNumber"`
	Status               InstanceStatus `gorm:"size:20;index;not null" json:"status"`
	StartedAt            time.Time      `gorm:"index:idx_instance_exam_user_started;not null" json:"startedAt"`
	ExpiresAt            time.Time      `gorm:"index;not null" json:"expiresAt"`
	EndedAt              *time.Time     `json:"endedAt,omitempty"`
	DurationSeconds      int            `gorm:"not null" json:"durationSeconds"`
	TimeRemainingSeconds int            `json:"timeRemainingSeconds"`
	SubmissionID         *uint          `gorm:"index" json:"submissionId,omitempty"`

	// ActiveKey is set only while in progress; the unique index keeps a single open attempt per learner and exam.
	ActiveKey *string `gorm:"size:64;uniqueIndex" json:"-"`

	Questions []InstanceQuestion `gorm:"foreignKey:InstanceID" json:"-"`
}

func (ExamInstance) TableName() string {
	return "exam_instances"
}

func ActiveInstanceKey(examID, userID uint) string {
	return fmt.Sprintf("%d:%d", examID, userID)
}

func (i *ExamInstance) RemainingAt(now time.Time) int {
	left := int(i.ExpiresAt.Sub(now).Seconds())
	if left < 0 {
		return 0
	}
	return left
}

// Overdue reports whether the time budget plus grace has run out at now.
func (i *ExamInstance) Overdue(now time.Time, grace time.Duration) bool {
	return now.After(i.ExpiresAt.Add(grace))
}

// InstanceQuestion freezes the sampled question order of an instance.
type InstanceQuestion struct {
	RecordModel

	InstanceID string `gorm:"type:varchar(36);uniqueIndex:idx_instance_question;not null" json:"instanceId"`
	QuestionID uint   `gorm:"uniqueIndex:idx_instance_question;index;not null" json:"questionId"`
	Position   int    `gorm:"not null" json:"position"`
}

func (InstanceQuestion) TableName() string {
	return "exam_instance_questions"
}
