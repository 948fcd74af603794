package quota

import (
	"time"

	"github.com/google/uuid"
)

// Bucket names an independently limited quota pool.
type Bucket string

const (
	BucketLearningInteractions Bucket = "learning_interactions"
	BucketAutoExplain          Bucket = "auto_explain"
)

// Buckets lists every pool an account set is provisioned with.
var Buckets = []Bucket{BucketLearningInteractions, BucketAutoExplain}

func (b Bucket) Valid() bool {
	for _, known := range Buckets {
		if b == known {
			return true
		}
	}
	return false
}

// QuotaAccount is the per (user, bucket) usage counter.
// Used stays within [0, Limit]; a limit can never be lowered below current usage.
type QuotaAccount struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_quota_account_user_bucket" json:"user_id"`
	Bucket Bucket    `gorm:"column:bucket;type:text;not null;uniqueIndex:idx_quota_account_user_bucket" json:"bucket"`
	Used   int       `gorm:"column:used;not null;default:0" json:"used"`
	Limit  int       `gorm:"column:quota_limit;not null" json:"limit"`
	// ResetAt is the exclusive upper bound of the current cycle.
	ResetAt time.Time `gorm:"column:reset_at;not null;index" json:"reset_at"`
	// Cycle increments on every reset; reservations remember the cycle they were taken in.
	Cycle     int64     `gorm:"column:cycle;not null;default:0" json:"cycle"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (QuotaAccount) TableName() string { return "quota_account" }

func (a *QuotaAccount) Remaining() int {
	if a == nil || a.Used >= a.Limit {
		return 0
	}
	return a.Limit - a.Used
}

// NextResetAt returns the first instant (UTC) of the calendar month after current's month.
func NextResetAt(current time.Time) time.Time {
	c := current.UTC()
	return time.Date(c.Year(), c.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// NextResetAfter advances from current one month boundary at a time until the result is after now.
func NextResetAfter(current, now time.Time) time.Time {
	next := NextResetAt(current)
	for !next.After(now) {
		next = NextResetAt(next)
	}
	return next
}

// InitialResetAt is the cycle boundary for an account opened at now.
func InitialResetAt(now time.Time) time.Time {
	return NextResetAt(now)
}
