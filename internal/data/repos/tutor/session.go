package tutor

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/neurobridge-tutor/internal/domain/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type SessionRepo interface {
	Ensure(dbc dbctx.Context, userID, fileID uuid.UUID) (*domain.LearningSession, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.LearningSession, error)
	GetByUserAndFile(dbc dbctx.Context, userID, fileID uuid.UUID) (*domain.LearningSession, error)
	UpdateIfVersion(dbc dbctx.Context, id uuid.UUID, version int64, updates map[string]interface{}) (bool, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "LearningSessionRepo")}
}

// Ensure creates the (user, file) session on first access and returns the stored row.
func (r *sessionRepo) Ensure(dbc dbctx.Context, userID, fileID uuid.UUID) (*domain.LearningSession, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	row := &domain.LearningSession{
		ID:           uuid.New(),
		UserID:       userID,
		FileID:       fileID,
		Status:       domain.SessionInProgress,
		CurrentPhase: domain.PhaseExplaining,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "file_id"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return r.GetByUserAndFile(dbc, userID, fileID)
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.LearningSession, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var rows []*domain.LearningSession
	if err := t.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *sessionRepo) GetByUserAndFile(dbc dbctx.Context, userID, fileID uuid.UUID) (*domain.LearningSession, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.LearningSession
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ? AND file_id = ?", userID, fileID).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// UpdateIfVersion applies updates only when the row still carries version, and bumps it.
func (r *sessionRepo) UpdateIfVersion(dbc dbctx.Context, id uuid.UUID, version int64, updates map[string]interface{}) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["version"] = gorm.Expr("version + 1")
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := t.WithContext(dbc.Ctx).
		Model(&domain.LearningSession{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
