package models

import "time"

// Mission statuses relevant to the payment core. The surrounding CRUD layer
// owns the full mission lifecycle; payments only need to know a mission was
// accepted (split fixed) and who the counterparties are.
const (
	MissionStatusOpen      = "open"
	MissionStatusAccepted  = "accepted"
	MissionStatusCompleted = "completed"
)

// Mission is the payment-core projection of a mission posting: the recruiter
// who pays, the worker who performs, the optional intermediary who referred,
// and the amount agreed at acceptance time.
type Mission struct {
	ID                    uint   `gorm:"primaryKey" json:"id"`
	Title                 string `gorm:"type:varchar(200);not null" json:"title"`
	Status                string `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	RecruiterProfileID    uint   `gorm:"not null;index" json:"recruiter_profile_id"`
	WorkerProfileID       *uint  `gorm:"default:null;index" json:"worker_profile_id,omitempty"`
	IntermediaryProfileID *uint  `gorm:"default:null;index" json:"intermediary_profile_id,omitempty"`
	AgreedAmount          int64  `gorm:"not null;default:0" json:"agreed_amount"`
	Currency              string `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
