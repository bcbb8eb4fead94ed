package model

type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionTrueFalse    QuestionType = "true_false"
	QuestionEssay        QuestionType = "essay"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the tiers in sampling order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingleChoice, QuestionTrueFalse, QuestionEssay:
		return true
	}
	return false
}

// AutoGraded reports whether the grading engine scores this type.
func (t QuestionType) AutoGraded() bool {
	return t == QuestionSingleChoice || t == QuestionTrueFalse
}

// swagger:model Question
type Question struct {
	BaseModel

	UnitID     uint             `gorm:"index:idx_questions_unit_difficulty;not null" json:"unitId"`
	Stem       string           `gorm:"type:text;not null" json:"stem"`
	Type       QuestionType     `gorm:"size:20;not null" json:"type"`
	Difficulty Difficulty       `gorm:"index:idx_questions_unit_difficulty;size:10;not null" json:"difficulty"`
	Points     float64          `gorm:"not null;default:1" json:"points"`
	Version    int              `gorm:"not null;default:1" json:"version"`
	Options    []QuestionOption `gorm:"foreignKey:QuestionID" json:"options,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// swagger:model QuestionOption
type QuestionOption struct {
	BaseModel

	QuestionID uint   `gorm:"index;not null" json:"questionId"`
	Label      string `gorm:"size:4;not null" json:"label"`
	Content    string `gorm:"type:text" json:"content"`
	IsCorrect  bool   `gorm:"default:false" json:"isCorrect"`
}

func (QuestionOption) TableName() string {
	return "question_options"
}
