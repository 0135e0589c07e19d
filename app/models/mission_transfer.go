package models

import "time"

// Transfer states. skipped is a deliberate deferral (recipient not payout
// enabled yet), not an error; failed and skipped are both user-retryable.
const (
	TransferStatusCreated = "created"
	TransferStatusPending = "pending"
	TransferStatusFailed  = "failed"
	TransferStatusSkipped = "skipped"
)

// MissionTransfer is the single transfer row per (payment, recipient) pair.
// Re-attempts update the row in place; the composite unique index makes a
// duplicate issuance impossible under concurrent retries.
type MissionTransfer struct {
	ID                   uint   `gorm:"primaryKey" json:"id"`
	MissionPaymentID     uint   `gorm:"not null;index:ux_mission_transfers_payment_dest,unique,priority:1" json:"mission_payment_id"`
	DestinationProfileID uint   `gorm:"not null;index:ux_mission_transfers_payment_dest,unique,priority:2" json:"destination_profile_id"`
	Status               string `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Amount               int64  `gorm:"not null;default:0" json:"amount"`
	ExternalTransferID   string `gorm:"type:varchar(191);default:''" json:"external_transfer_id,omitempty"`
	LastError            string `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Retryable reports whether the recipient may re-drive this transfer.
func (t *MissionTransfer) Retryable() bool {
	return t.Status == TransferStatusSkipped || t.Status == TransferStatusFailed
}
