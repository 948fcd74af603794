package quota

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/neurobridge-tutor/internal/domain/quota"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// AccountRepo exposes only guarded, single-row updates on quota_account.
// Every mutating method reports whether its guard matched instead of reading first.
type AccountRepo interface {
	Ensure(dbc dbctx.Context, userID uuid.UUID, bucket domain.Bucket, limit int, resetAt time.Time) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.QuotaAccount, error)
	GetByUserAndBucket(dbc dbctx.Context, userID uuid.UUID, bucket domain.Bucket) (*domain.QuotaAccount, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*domain.QuotaAccount, error)
	ListDue(dbc dbctx.Context, now time.Time, afterID uuid.UUID, limit int) ([]*domain.QuotaAccount, error)
	IncrementWithinLimit(dbc dbctx.Context, id uuid.UUID, amount int, now time.Time) (bool, error)
	DecrementInCycle(dbc dbctx.Context, id uuid.UUID, cycle int64, amount int, now time.Time) (bool, error)
	AdjustWithinBounds(dbc dbctx.Context, id uuid.UUID, delta int, now time.Time) (bool, error)
	ResetIfUnchanged(dbc dbctx.Context, observed *domain.QuotaAccount, nextResetAt, now time.Time) (bool, error)
	SetLimit(dbc dbctx.Context, id uuid.UUID, limit int, now time.Time) (bool, error)
}

type accountRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAccountRepo(db *gorm.DB, baseLog *logger.Logger) AccountRepo {
	return &accountRepo{db: db, log: baseLog.With("repo", "QuotaAccountRepo")}
}

func (r *accountRepo) Ensure(dbc dbctx.Context, userID uuid.UUID, bucket domain.Bucket, limit int, resetAt time.Time) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if userID == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	row := &domain.QuotaAccount{
		ID:        uuid.New(),
		UserID:    userID,
		Bucket:    bucket,
		Used:      0,
		Limit:     limit,
		ResetAt:   resetAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "bucket"}},
			DoNothing: true,
		}).
		Create(row).Error
}

func (r *accountRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.QuotaAccount, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var rows []*domain.QuotaAccount
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

func (r *accountRepo) GetByUserAndBucket(dbc dbctx.Context, userID uuid.UUID, bucket domain.Bucket) (*domain.QuotaAccount, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.QuotaAccount
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ? AND bucket = ?", userID, bucket).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *accountRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*domain.QuotaAccount, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []*domain.QuotaAccount
	if userID == uuid.Nil {
		return rows, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("bucket ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDue pages through accounts whose cycle has elapsed, keyset-ordered by id.
func (r *accountRepo) ListDue(dbc dbctx.Context, now time.Time, afterID uuid.UUID, limit int) ([]*domain.QuotaAccount, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var rows []*domain.QuotaAccount
	if err := t.WithContext(dbc.Ctx).
		Where("reset_at <= ? AND id > ?", now.UTC(), afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *accountRepo) IncrementWithinLimit(dbc dbctx.Context, id uuid.UUID, amount int, now time.Time) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(dbc.Ctx).
		Model(&domain.QuotaAccount{}).
		Where("id = ? AND used + ? <= quota_limit", id, amount).
		Updates(map[string]interface{}{
			"used":       gorm.Expr("used + ?", amount),
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DecrementInCycle gives units back only while the account is still in the cycle they were taken from.
func (r *accountRepo) DecrementInCycle(dbc dbctx.Context, id uuid.UUID, cycle int64, amount int, now time.Time) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(dbc.Ctx).
		Model(&domain.QuotaAccount{}).
		Where("id = ? AND cycle = ? AND used >= ?", id, cycle, amount).
		Updates(map[string]interface{}{
			"used":       gorm.Expr("used - ?", amount),
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *accountRepo) AdjustWithinBounds(dbc dbctx.Context, id uuid.UUID, delta int, now time.Time) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(dbc.Ctx).
		Model(&domain.QuotaAccount{}).
		Where("id = ? AND used + ? >= 0 AND used + ? <= quota_limit", id, delta, delta).
		Updates(map[string]interface{}{
			"used":       gorm.Expr("used + ?", delta),
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ResetIfUnchanged zeroes the counter only if (cycle, used) still match what the caller observed
// and the cycle boundary has actually elapsed.
func (r *accountRepo) ResetIfUnchanged(dbc dbctx.Context, observed *domain.QuotaAccount, nextResetAt, now time.Time) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if observed == nil {
		return false, nil
	}
	res := t.WithContext(dbc.Ctx).
		Model(&domain.QuotaAccount{}).
		Where("id = ? AND cycle = ? AND used = ? AND reset_at <= ?", observed.ID, observed.Cycle, observed.Used, now.UTC()).
		Updates(map[string]interface{}{
			"used":       0,
			"cycle":      gorm.Expr("cycle + 1"),
			"reset_at":   nextResetAt.UTC(),
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetLimit changes the limit only when the current usage still fits under it.
func (r *accountRepo) SetLimit(dbc dbctx.Context, id uuid.UUID, limit int, now time.Time) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(dbc.Ctx).
		Model(&domain.QuotaAccount{}).
		Where("id = ? AND used <= ?", id, limit).
		Updates(map[string]interface{}{
			"quota_limit": limit,
			"updated_at":  now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
