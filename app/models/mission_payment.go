package models

import "time"

// Mission payment lifecycle. Transitions only move forward:
// unpaid -> pending -> received -> distributed, with errored reachable from
// pending/received. distributed and errored are terminal; a failed cycle is
// superseded by a new payment row, never reset in place.
const (
	PaymentStatusUnpaid      = "unpaid"
	PaymentStatusPending     = "pending"
	PaymentStatusReceived    = "received"
	PaymentStatusDistributed = "distributed"
	PaymentStatusErrored     = "errored"
)

// MissionPayment is one collection attempt for a mission. History is
// append-only; consumers always take the most recent row by creation time.
type MissionPayment struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	MissionID uint   `gorm:"not null;index" json:"mission_id"`
	Status    string `gorm:"type:varchar(20);not null;default:'unpaid';index" json:"status"`

	// Amounts are integer minor currency units.
	GrossAmount int64  `gorm:"not null;default:0" json:"gross_amount"`
	Currency    string `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`

	CheckoutSessionID string `gorm:"type:varchar(191);default:'';index" json:"checkout_session_id"`
	PaymentIntentID   string `gorm:"type:varchar(191);default:''" json:"payment_intent_id"`

	PaidAt        *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	DistributedAt *time.Time `gorm:"type:timestamp;default:null" json:"distributed_at,omitempty"`
	ErrorMessage  string     `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether no further transition may happen on this row.
func (p *MissionPayment) IsTerminal() bool {
	return p.Status == PaymentStatusDistributed || p.Status == PaymentStatusErrored
}
