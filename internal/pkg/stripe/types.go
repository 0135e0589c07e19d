package stripe

// CheckoutSessionParams describes a hosted checkout session to create.
// Payment mode collects a one-off mission payment; subscription mode starts
// a premium membership.
type CheckoutSessionParams struct {
	Mode              string // "payment" or "subscription"
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	CustomerID        string
	CustomerEmail     string

	// Payment mode.
	AmountTotal int64 // minor units
	Currency    string
	ProductName string

	// Subscription mode.
	PriceID string

	Metadata map[string]string
}

// CheckoutSession is the subset of the session object the core consumes.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// AccountParams describes an express payout account to create.
type AccountParams struct {
	Email    string
	Country  string
	Metadata map[string]string
}

// Account is the subset of the connected account object the core consumes.
type Account struct {
	ID               string `json:"id"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// AccountLink is a one-time onboarding URL for a connected account.
type AccountLink struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

// TransferParams describes a funds transfer to a connected account.
type TransferParams struct {
	Amount        int64
	Currency      string
	Destination   string // connected account id
	TransferGroup string
	Description   string
	// Sent as the Idempotency-Key header so a redelivered instruction can
	// never pay the same recipient twice.
	IdempotencyKey string
}

// Transfer is the subset of the transfer object the core consumes.
type Transfer struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Destination   string `json:"destination"`
	TransferGroup string `json:"transfer_group"`
}
