package quota

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-tutor/internal/domain/quota"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// LogEntryRepo is append-only: there is no update or delete.
type LogEntryRepo interface {
	Append(dbc dbctx.Context, accountID uuid.UUID, reservationID *uuid.UUID, delta int, reason domain.LogReason, metadata map[string]any) (*domain.QuotaLogEntry, error)
	ListByAccount(dbc dbctx.Context, accountID uuid.UUID, limit int) ([]*domain.QuotaLogEntry, error)
	CountByAccountAndReason(dbc dbctx.Context, accountID uuid.UUID, reason domain.LogReason) (int64, error)
}

type logEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLogEntryRepo(db *gorm.DB, baseLog *logger.Logger) LogEntryRepo {
	return &logEntryRepo{db: db, log: baseLog.With("repo", "QuotaLogEntryRepo")}
}

func (r *logEntryRepo) Append(dbc dbctx.Context, accountID uuid.UUID, reservationID *uuid.UUID, delta int, reason domain.LogReason, metadata map[string]any) (*domain.QuotaLogEntry, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	row := &domain.QuotaLogEntry{
		ID:            uuid.New(),
		AccountID:     accountID,
		ReservationID: reservationID,
		Delta:         delta,
		Reason:        reason,
		Metadata:      datatypes.JSON(raw),
		CreatedAt:     time.Now().UTC(),
	}
	if err := t.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *logEntryRepo) ListByAccount(dbc dbctx.Context, accountID uuid.UUID, limit int) ([]*domain.QuotaLogEntry, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(dbc.Ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []*domain.QuotaLogEntry
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *logEntryRepo) CountByAccountAndReason(dbc dbctx.Context, accountID uuid.UUID, reason domain.LogReason) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(dbc.Ctx).
		Model(&domain.QuotaLogEntry{}).
		Where("account_id = ? AND reason = ?", accountID, reason).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
