package model

import "time"

// Course, CourseUnit, Lesson and LessonProgress are owned by the catalog and lesson-tracking
// services. The exam core only reads them.

// swagger:model Course
type Course struct {
	BaseModel
	Title        string `gorm:"size:255;not null" json:"title"`
	InstructorID uint   `gorm:"index" json:"instructorId"`
}

func (Course) TableName() string {
	return "courses"
}

// CourseUnit is a course subdivision ("MOOC") holding lessons and at most one exam.
// swagger:model CourseUnit
type CourseUnit struct {
	BaseModel
	CourseID uint   `gorm:"index;not null" json:"courseId"`
	Title    string `gorm:"size:255;not null" json:"title"`
	Position int    `gorm:"not null;default:0" json:"position"`
}

func (CourseUnit) TableName() string {
	return "course_units"
}

type Lesson struct {
	BaseModel
	UnitID   uint   `gorm:"index;not null" json:"unitId"`
	Title    string `gorm:"size:255" json:"title"`
	Position int    `gorm:"default:0" json:"position"`
}

func (Lesson) TableName() string {
	return "lessons"
}

type LessonProgress struct {
	RecordModel
	UserID      uint       `gorm:"uniqueIndex:idx_lesson_progress_user_lesson;not null" json:"userId"`
	LessonID    uint       `gorm:"uniqueIndex:idx_lesson_progress_user_lesson;not null" json:"lessonId"`
	Completed   bool       `gorm:"default:false" json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (LessonProgress) TableName() string {
	return "lesson_progress"
}
