package model

import "gorm.io/datatypes"

const (
	NotificationUnitPassed      = "unit_passed"
	NotificationCourseCompleted = "course_completed"
	NotificationAttemptExpired  = "attempt_expired"
)

type Notification struct {
	BaseModel
	UserID  uint           `gorm:"index;not null" json:"userId"`
	Type    string         `gorm:"size:50;not null" json:"type"`
	Title   string         `gorm:"size:255" json:"title"`
	Payload datatypes.JSON `json:"payload"`
	Read    bool           `gorm:"default:false" json:"read"`
}

func (Notification) TableName() string {
	return "notifications"
}
