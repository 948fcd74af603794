package lock

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// Lease is one row per held key.
type Lease struct {
	Key       string    `gorm:"column:lease_key;primaryKey;type:text"`
	Token     string    `gorm:"column:token;type:text;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Lease) TableName() string { return "session_lease" }

type leaseLocker struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

// NewLeaseLocker stores leases in the session_lease table.
func NewLeaseLocker(db *gorm.DB, baseLog *logger.Logger) Locker {
	return &leaseLocker{
		db:  db,
		log: baseLog.With("service", "LeaseLocker"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (l *leaseLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	if key == "" {
		return nil, fmt.Errorf("lease key required")
	}
	now := l.now()
	token := newToken()
	row := &Lease{Key: key, Token: token, ExpiresAt: now.Add(ttl), CreatedAt: now}

	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "lease_key"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Take over an expired lease.
		res = l.db.WithContext(ctx).
			Model(&Lease{}).
			Where("lease_key = ? AND expires_at <= ?", key, now).
			Updates(map[string]interface{}{
				"token":      token,
				"expires_at": now.Add(ttl),
				"created_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrBusy
		}
	}

	return func(ctx context.Context) error {
		err := l.db.WithContext(ctx).
			Where("lease_key = ? AND token = ?", key, token).
			Delete(&Lease{}).Error
		if err != nil {
			l.log.Warn("lease release failed", "key", key, "error", err)
		}
		return err
	}, nil
}
