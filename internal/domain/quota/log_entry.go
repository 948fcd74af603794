package quota

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type LogReason string

const (
	ReasonConsume     LogReason = "consume"
	ReasonRefund      LogReason = "refund"
	ReasonSystemReset LogReason = "system_reset"
	ReasonAdminAdjust LogReason = "admin_adjust"
)

// QuotaLogEntry is the append-only audit trail of every ledger mutation.
type QuotaLogEntry struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"account_id"`
	ReservationID *uuid.UUID     `gorm:"type:uuid;index" json:"reservation_id,omitempty"`
	Delta         int            `gorm:"column:delta;not null" json:"delta"`
	Reason        LogReason      `gorm:"column:reason;type:text;not null;index" json:"reason"`
	Metadata      datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
}

func (QuotaLogEntry) TableName() string { return "quota_log_entry" }
