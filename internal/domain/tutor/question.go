package tutor

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionShortAnswer    QuestionType = "SHORT_ANSWER"
)

// TopicTestQuestion is one cached, immutable test question.
// CorrectAnswer and Explanation never leave the server before the question is attempted.
type TopicTestQuestion struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TopicID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_topic_test_question_topic_ordinal" json:"topic_id"`
	Ordinal       int            `gorm:"column:ordinal;not null;uniqueIndex:idx_topic_test_question_topic_ordinal" json:"ordinal"`
	Type          QuestionType   `gorm:"column:type;type:text;not null" json:"type"`
	Prompt        string         `gorm:"column:prompt;type:text;not null" json:"prompt"`
	Options       datatypes.JSON `gorm:"column:options" json:"options,omitempty"`
	CorrectAnswer string         `gorm:"column:correct_answer;type:text;not null" json:"-"`
	Explanation   string         `gorm:"column:explanation;type:text" json:"-"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}

func (TopicTestQuestion) TableName() string { return "topic_test_question" }

func (q *TopicTestQuestion) OptionList() []string {
	if q == nil || len(q.Options) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(q.Options, &out); err != nil {
		return nil
	}
	return out
}
