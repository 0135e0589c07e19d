package models

import "time"

// Recipient roles in a mission split.
const (
	RecipientRoleWorker       = "worker"
	RecipientRoleIntermediary = "intermediary"
)

// MissionFinance is one recipient's allocation of a mission payment. Rows are
// computed when the mission is accepted and are immutable afterwards, so a
// fee change mid-flight can never alter an already-collected payment. The
// platform retains gross minus the sum of all allocations.
type MissionFinance struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	MissionID uint `gorm:"not null;index" json:"mission_id"`
	// Zero until a payment row exists for the mission; bound once, at
	// payment creation.
	MissionPaymentID uint `gorm:"not null;default:0;index" json:"mission_payment_id"`

	RecipientProfileID uint   `gorm:"not null;index" json:"recipient_profile_id"`
	RecipientRole      string `gorm:"type:varchar(20);not null" json:"recipient_role"`
	AllocatedAmount    int64  `gorm:"not null" json:"allocated_amount"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
