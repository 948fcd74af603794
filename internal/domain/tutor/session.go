package tutor

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionPaused     SessionStatus = "PAUSED"
	SessionCompleted  SessionStatus = "COMPLETED"
)

type Phase string

const (
	PhaseExplaining Phase = "EXPLAINING"
	PhaseTesting    Phase = "TESTING"
)

// LearningSession is the per (user, file) tutor state machine.
type LearningSession struct {
	ID                uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_learning_session_user_file" json:"user_id"`
	FileID            uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_learning_session_user_file" json:"file_id"`
	Status            SessionStatus `gorm:"column:status;type:text;not null" json:"status"`
	CurrentTopicIndex int           `gorm:"column:current_topic_index;not null;default:0" json:"current_topic_index"`
	CurrentSubIndex   int           `gorm:"column:current_sub_index;not null;default:0" json:"current_sub_index"`
	CurrentPhase      Phase         `gorm:"column:current_phase;type:text;not null" json:"current_phase"`
	// Version is bumped on every write and used as the compare-and-swap guard.
	Version     int64      `gorm:"column:version;not null;default:0" json:"version"`
	PausedAt    *time.Time `gorm:"column:paused_at" json:"paused_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (LearningSession) TableName() string { return "learning_session" }

// Position is the resumable cursor of a session.
type Position struct {
	TopicIndex int   `json:"topic_index"`
	SubIndex   int   `json:"sub_index"`
	Phase      Phase `json:"phase"`
}

func (s *LearningSession) Position() Position {
	return Position{TopicIndex: s.CurrentTopicIndex, SubIndex: s.CurrentSubIndex, Phase: s.CurrentPhase}
}
