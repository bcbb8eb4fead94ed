package model

import "time"

// Enrollment progression fields are written only by the progression unlocker.
// swagger:model Enrollment
type Enrollment struct {
	RecordModel

	UserID          uint       `gorm:"uniqueIndex:idx_enrollment_user_course;not null" json:"userId"`
	CourseID        uint       `gorm:"uniqueIndex:idx_enrollment_user_course;not null" json:"courseId"`
	CurrentUnitID   *uint      `json:"currentUnitId,omitempty"`
	UnitsCompleted  int        `gorm:"default:0" json:"unitsCompleted"`
	ProgressPercent float64    `gorm:"default:0" json:"progressPercent"`
	OverallScore    float64    `gorm:"default:0" json:"overallScore"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// UnitPass marks a unit as passed by a learner; its existence gates the units-completed increment.
type UnitPass struct {
	RecordModel

	UserID        uint      `gorm:"uniqueIndex:idx_unit_pass_user_unit;not null" json:"userId"`
	UnitID        uint      `gorm:"uniqueIndex:idx_unit_pass_user_unit;not null" json:"unitId"`
	CourseID      uint      `gorm:"index;not null" json:"courseId"`
	BestScore     float64   `json:"bestScore"` // percentage of the best passing submission
	FirstPassedAt time.Time `json:"firstPassedAt"`
}

func (UnitPass) TableName() string {
	return "unit_passes"
}
