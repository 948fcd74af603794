package quota

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationCommitted ReservationStatus = "committed"
	ReservationRefunded  ReservationStatus = "refunded"
)

// QuotaReservation is a provisional hold settled by exactly one of commit or refund.
type QuotaReservation struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID         `gorm:"type:uuid;not null;index" json:"account_id"`
	UserID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	Bucket    Bucket            `gorm:"column:bucket;type:text;not null" json:"bucket"`
	Amount    int               `gorm:"column:amount;not null" json:"amount"`
	Cycle     int64             `gorm:"column:cycle;not null" json:"cycle"`
	Kind      string            `gorm:"column:kind;type:text" json:"kind,omitempty"`
	Status    ReservationStatus `gorm:"column:status;type:text;not null;index:idx_quota_reservation_status_created" json:"status"`
	SettledAt *time.Time        `gorm:"column:settled_at" json:"settled_at,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index:idx_quota_reservation_status_created" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}

func (QuotaReservation) TableName() string { return "quota_reservation" }
