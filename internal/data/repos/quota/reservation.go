package quota

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-tutor/internal/domain/quota"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type ReservationRepo interface {
	Create(dbc dbctx.Context, row *domain.QuotaReservation) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.QuotaReservation, error)
	Settle(dbc dbctx.Context, id uuid.UUID, to domain.ReservationStatus, now time.Time) (bool, error)
	ListPendingBefore(dbc dbctx.Context, before time.Time, limit int) ([]*domain.QuotaReservation, error)
}

type reservationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReservationRepo(db *gorm.DB, baseLog *logger.Logger) ReservationRepo {
	return &reservationRepo{db: db, log: baseLog.With("repo", "QuotaReservationRepo")}
}

func (r *reservationRepo) Create(dbc dbctx.Context, row *domain.QuotaReservation) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *reservationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.QuotaReservation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.QuotaReservation
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

// Settle moves a pending reservation to a terminal status. Only the first caller wins.
func (r *reservationRepo) Settle(dbc dbctx.Context, id uuid.UUID, to domain.ReservationStatus, now time.Time) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(dbc.Ctx).
		Model(&domain.QuotaReservation{}).
		Where("id = ? AND status = ?", id, domain.ReservationPending).
		Updates(map[string]interface{}{
			"status":     to,
			"settled_at": now.UTC(),
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *reservationRepo) ListPendingBefore(dbc dbctx.Context, before time.Time, limit int) ([]*domain.QuotaReservation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var rows []*domain.QuotaReservation
	if err := t.WithContext(dbc.Ctx).
		Where("status = ? AND created_at < ?", domain.ReservationPending, before.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
