package tutor

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ProgressStatus string

const (
	ProgressPending    ProgressStatus = "PENDING"
	ProgressInProgress ProgressStatus = "IN_PROGRESS"
	ProgressCompleted  ProgressStatus = "COMPLETED"
)

// QuestionAttempt is the per-ordinal answer history inside TopicProgress.
type QuestionAttempt struct {
	Attempted  bool   `json:"attempted"`
	Correct    bool   `json:"correct"`
	Attempts   int    `json:"attempts"`
	LastAnswer string `json:"last_answer,omitempty"`
}

// TopicProgress tracks one topic's test inside a session.
// IsWeakPoint is sticky: once set it is never cleared.
type TopicProgress struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_topic_progress_session_topic" json:"session_id"`
	TopicID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_topic_progress_session_topic" json:"topic_id"`
	Status           ProgressStatus `gorm:"column:status;type:text;not null" json:"status"`
	IsWeakPoint      bool           `gorm:"column:is_weak_point;not null;default:false" json:"is_weak_point"`
	QuestionAttempts datatypes.JSON `gorm:"column:question_attempts" json:"question_attempts"`
	CompletedAt      *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (TopicProgress) TableName() string { return "topic_progress" }

// Attempts decodes the attempt map keyed by question ordinal.
func (p *TopicProgress) Attempts() (map[int]QuestionAttempt, error) {
	out := map[int]QuestionAttempt{}
	if p == nil || len(p.QuestionAttempts) == 0 {
		return out, nil
	}
	raw := map[string]QuestionAttempt{}
	if err := json.Unmarshal(p.QuestionAttempts, &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, err
		}
		out[idx] = v
	}
	return out, nil
}

func (p *TopicProgress) SetAttempts(m map[int]QuestionAttempt) error {
	raw := make(map[string]QuestionAttempt, len(m))
	for k, v := range m {
		raw[strconv.Itoa(k)] = v
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	p.QuestionAttempts = datatypes.JSON(b)
	return nil
}
