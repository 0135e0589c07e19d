package models

import (
	"encoding/json"
	"time"
)

// Payout account onboarding states derived from processor account notifications.
const (
	PayoutStatusNotStarted = "not_started"
	PayoutStatusPending    = "pending"
	PayoutStatusComplete   = "complete"
	PayoutStatusRestricted = "restricted"
)

// Subscription states mirrored from the processor.
const (
	SubscriptionStatusActive            = "active"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusPaused            = "paused"
)

// Profile holds the billing and payout subset of a marketplace profile.
// Mission/application CRUD owns the rest of the profile surface; this model
// is mutated exclusively by inbound processor notifications (plus placeholder
// creation when a notification outruns account provisioning).
type Profile struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	DisplayName string `gorm:"type:varchar(120);default:''" json:"display_name"`
	Email       string `gorm:"type:varchar(200);default:'';index" json:"email"`

	// Processor identities. Nullable so the unique indexes tolerate the many
	// profiles that never touch billing.
	StripeCustomerID *string `gorm:"type:varchar(191);default:null;index:ux_profiles_stripe_customer,unique" json:"stripe_customer_id,omitempty"`
	StripeAccountID  *string `gorm:"type:varchar(191);default:null;index:ux_profiles_stripe_account,unique" json:"stripe_account_id,omitempty"`

	// Payout account state (Connect side).
	PayoutStatus     string `gorm:"type:varchar(20);not null;default:'not_started';index" json:"payout_status"`
	PayoutsEnabled   bool   `gorm:"default:false;index" json:"payouts_enabled"`
	ChargesEnabled   bool   `gorm:"default:false" json:"charges_enabled"`
	RequirementsJSON string `gorm:"type:text" json:"-"`

	// Subscription state (Billing side).
	SubscriptionID     string     `gorm:"type:varchar(191);default:'';index" json:"subscription_id"`
	SubscriptionStatus *string    `gorm:"type:varchar(32);default:null;index" json:"subscription_status,omitempty"`
	PlanID             string     `gorm:"type:varchar(191);default:''" json:"plan_id"`
	CurrentPeriodEnd   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `gorm:"default:false" json:"cancel_at_period_end"`

	// Set when the row was created as a placeholder by the synchronizer
	// before the provisioning trigger finished.
	Placeholder bool `gorm:"default:false" json:"placeholder"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPremium is derived from the subscription status and never stored, so the
// flag cannot drift from the status it is defined by.
func (p *Profile) IsPremium() bool {
	if p.SubscriptionStatus == nil {
		return false
	}
	switch *p.SubscriptionStatus {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}

// OutstandingRequirements decodes the requirement identifiers recorded from
// the last account notification.
func (p *Profile) OutstandingRequirements() []string {
	if p.RequirementsJSON == "" {
		return nil
	}
	var reqs []string
	if err := json.Unmarshal([]byte(p.RequirementsJSON), &reqs); err != nil {
		return nil
	}
	return reqs
}

// SetOutstandingRequirements encodes the requirement set for storage.
func (p *Profile) SetOutstandingRequirements(reqs []string) {
	if len(reqs) == 0 {
		p.RequirementsJSON = ""
		return
	}
	b, err := json.Marshal(reqs)
	if err != nil {
		return
	}
	p.RequirementsJSON = string(b)
}
