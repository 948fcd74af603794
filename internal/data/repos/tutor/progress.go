package tutor

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/neurobridge-tutor/internal/domain/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type ProgressRepo interface {
	Ensure(dbc dbctx.Context, sessionID, topicID uuid.UUID) (*domain.TopicProgress, error)
	GetBySessionAndTopic(dbc dbctx.Context, sessionID, topicID uuid.UUID) (*domain.TopicProgress, error)
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*domain.TopicProgress, error)
	Save(dbc dbctx.Context, row *domain.TopicProgress) error
}

type progressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return &progressRepo{db: db, log: baseLog.With("repo", "TopicProgressRepo")}
}

func (r *progressRepo) Ensure(dbc dbctx.Context, sessionID, topicID uuid.UUID) (*domain.TopicProgress, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	row := &domain.TopicProgress{
		ID:               uuid.New(),
		SessionID:        sessionID,
		TopicID:          topicID,
		Status:           domain.ProgressInProgress,
		QuestionAttempts: datatypes.JSON([]byte("{}")),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "topic_id"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return r.GetBySessionAndTopic(dbc, sessionID, topicID)
}

func (r *progressRepo) GetBySessionAndTopic(dbc dbctx.Context, sessionID, topicID uuid.UUID) (*domain.TopicProgress, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.TopicProgress
	if err := t.WithContext(dbc.Ctx).
		Where("session_id = ? AND topic_id = ?", sessionID, topicID).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *progressRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*domain.TopicProgress, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.TopicProgress
	if err := t.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Save persists status, attempts and completion. The weak-point flag is OR-ed in SQL so it can never be cleared.
func (r *progressRepo) Save(dbc dbctx.Context, row *domain.TopicProgress) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&domain.TopicProgress{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"status":            row.Status,
			"is_weak_point":     gorm.Expr("is_weak_point OR ?", row.IsWeakPoint),
			"question_attempts": row.QuestionAttempts,
			"completed_at":      row.CompletedAt,
			"updated_at":        time.Now().UTC(),
		}).Error
}
