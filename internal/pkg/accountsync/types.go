package accountsync

import "time"

// SubscriptionUpdate is the normalized input for subscription state sync.
// Empty/nil fields are treated as absent and never overwrite stored values
// (additive merge).
type SubscriptionUpdate struct {
	SubscriptionID    string `validate:"required"`
	Status            string
	PlanID            string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd *bool
}

// AccountUpdate is the normalized input for payout account state sync.
// Account notifications always carry the full flag set, so these fields are
// applied unconditionally; only the requirement list may be absent.
type AccountUpdate struct {
	AccountID        string `validate:"required"`
	PayoutsEnabled   bool
	ChargesEnabled   bool
	DetailsSubmitted bool
	CurrentlyDue     []string
}

// CheckoutLink records the identities a completed subscription checkout
// established for a profile.
type CheckoutLink struct {
	CustomerID     string
	SubscriptionID string
}

// Identity carries every recipient hint a notification may hold, in
// resolution order: explicit profile id from metadata first, then stored
// processor identifiers.
type Identity struct {
	ProfileID  string // metadata value, decimal profile id
	CustomerID string
	AccountID  string
	Email      string
}
