package model

import "time"

// AnswerEntry is the learner's current answer to one question of one instance.
// IsCorrect and PointsEarned stay nil until the instance is graded.
type AnswerEntry struct {
	RecordModel

	InstanceID   string            `gorm:"type:varchar(36);uniqueIndex:idx_answer_instance_question;not null" json:"instanceId"`
	QuestionID   uint              `gorm:"uniqueIndex:idx_answer_instance_question;not null" json:"questionId"`
	IsCorrect    *bool             `json:"isCorrect,omitempty"`
	PointsEarned *float64          `json:"pointsEarned,omitempty"`
	AnsweredAt   *time.Time        `json:"answeredAt,omitempty"`
	Selections   []AnswerSelection `gorm:"foreignKey:AnswerEntryID" json:"selections,omitempty"`
}

func (AnswerEntry) TableName() string {
	return "answer_entries"
}

// OptionIDs returns the selected option ids.
func (a *AnswerEntry) OptionIDs() []uint {
	ids := make([]uint, 0, len(a.Selections))
	for _, s := range a.Selections {
		ids = append(ids, s.OptionID)
	}
	return ids
}

type AnswerSelection struct {
	ID            uint `gorm:"primaryKey;autoIncrement" json:"id"`
	AnswerEntryID uint `gorm:"uniqueIndex:idx_selection_entry_option;not null" json:"answerEntryId"`
	OptionID      uint `gorm:"uniqueIndex:idx_selection_entry_option;not null" json:"optionId"`
}

func (AnswerSelection) TableName() string {
	return "answer_selections"
}
