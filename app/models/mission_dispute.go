package models

import "time"

// Dispute states. An open dispute hard-gates distribution and retries on its
// payment; resolving lifts the gate without triggering anything by itself.
const (
	DisputeStatusOpen     = "open"
	DisputeStatusResolved = "resolved"
	DisputeStatusRejected = "rejected"
)

// MissionDispute contests a mission payment after funds were received.
type MissionDispute struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	MissionPaymentID uint   `gorm:"not null;index" json:"mission_payment_id"`
	Status           string `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Reason           string `gorm:"type:text;not null" json:"reason"`
	OpenedByProfile  uint   `gorm:"not null;default:0" json:"opened_by_profile"`

	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	ResolvedAt *time.Time `gorm:"type:timestamp;default:null" json:"resolved_at,omitempty"`
}
