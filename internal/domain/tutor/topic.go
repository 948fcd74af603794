package tutor

import (
	"time"

	"github.com/google/uuid"
)

type TopicKind string

const (
	TopicKindCore       TopicKind = "core"
	TopicKindSupporting TopicKind = "supporting"
)

// QuestionCount is the size of the generated test set for a topic of this kind.
func (k TopicKind) QuestionCount() int {
	if k == TopicKindCore {
		return 5
	}
	return 3
}

func (k TopicKind) Valid() bool {
	return k == TopicKindCore || k == TopicKindSupporting
}

// Topic is one entry of a file's ordered outline.
type Topic struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	FileID      uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_topic_file_index" json:"file_id"`
	OwnerUserID uuid.UUID   `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Index       int         `gorm:"column:position;not null;uniqueIndex:idx_topic_file_index" json:"index"`
	Title       string      `gorm:"column:title;type:text;not null" json:"title"`
	Kind        TopicKind   `gorm:"column:kind;type:text;not null" json:"kind"`
	SubTopics   []*SubTopic `gorm:"foreignKey:TopicID;references:ID" json:"sub_topics,omitempty"`
	CreatedAt   time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"not null" json:"updated_at"`
}

func (Topic) TableName() string { return "tutor_topic" }

// SubTopic carries the summary used for prompting and a lazily generated explanation.
type SubTopic struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TopicID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sub_topic_topic_index" json:"topic_id"`
	Index       int       `gorm:"column:position;not null;uniqueIndex:idx_sub_topic_topic_index" json:"index"`
	Title       string    `gorm:"column:title;type:text;not null" json:"title"`
	Summary     string    `gorm:"column:summary;type:text" json:"summary"`
	Explanation *string   `gorm:"column:explanation;type:text" json:"explanation,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (SubTopic) TableName() string { return "tutor_sub_topic" }
