package model

type RevealPolicy string

const (
	RevealNever           RevealPolicy = "never"
	RevealAfterCompletion RevealPolicy = "after_completion"
	RevealImmediately     RevealPolicy = "immediately"
)

func (p RevealPolicy) Valid() bool {
	switch p {
	case RevealNever, RevealAfterCompletion, RevealImmediately:
		return true
	}
	return false
}

// swagger:model Exam
type Exam struct {
	BaseModel

	UnitID          uint         `gorm:"uniqueIndex;not null" json:"unitId"`
	Title           string       `gorm:"size:255" json:"title"`
	DurationMinutes int          `gorm:"not null" json:"durationMinutes"`
	AttemptsAllowed int          `gorm:"not null;default:1" json:"attemptsAllowed"`
	PassThreshold   float64      `gorm:"not null;default:60" json:"passThreshold"` // percentage
	RevealPolicy    RevealPolicy `gorm:"size:20;not null;default:'after_completion'" json:"revealPolicy"`

	// Per-tier sampling quotas. nil falls back to the configured defaults.
	EasyCount   *int `json:"easyCount,omitempty"`
	MediumCount *int `json:"mediumCount,omitempty"`
	HardCount   *int `json:"hardCount,omitempty"`

	CooldownMinutes *int `json:"cooldownMinutes,omitempty"`
}

func (Exam) TableName() string {
	return "exams"
}
