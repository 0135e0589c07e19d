package stripe

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Event types the payment core consumes.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventAccountUpdated       = "account.updated"
)

// Metadata keys set on outbound objects and read back from notifications.
const (
	MetadataProfileID = "profile_id"
	MetadataMissionID = "mission_id"
)

// Event is the normalized form of an inbound notification. Exactly one of
// the payload pointers is set for known types; raw provider vocabulary never
// leaves this package.
type Event struct {
	ID   string
	Type string

	Checkout     *CheckoutSessionPayload
	Subscription *SubscriptionPayload
	Invoice      *InvoicePayload
	Account      *AccountPayload
}

// Known reports whether the event type is one the core handles.
func (e *Event) Known() bool {
	switch e.Type {
	case EventCheckoutCompleted,
		EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted,
		EventInvoicePaid, EventInvoicePaymentFailed,
		EventAccountUpdated:
		return true
	default:
		return false
	}
}

// CheckoutSessionPayload covers both payment-mode (mission) and
// subscription-mode (membership) checkouts.
type CheckoutSessionPayload struct {
	SessionID         string
	Mode              string
	PaymentStatus     string
	AmountTotal       int64
	Currency          string
	CustomerID        string
	SubscriptionID    string
	PaymentIntentID   string
	ClientReferenceID string
	Metadata          map[string]string
}

// Captured reports whether funds were captured. Historic payload variants
// spell the captured state several ways; they are synonyms here.
func (p *CheckoutSessionPayload) Captured() bool {
	switch strings.ToLower(strings.TrimSpace(p.PaymentStatus)) {
	case "paid", "received", "succeeded", "complete", "no_payment_required":
		return true
	default:
		return false
	}
}

// SubscriptionPayload is a normalized subscription state change.
type SubscriptionPayload struct {
	SubscriptionID    string
	CustomerID        string
	Status            string
	PriceID           string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	Metadata          map[string]string
}

// InvoicePayload is a normalized invoice outcome.
type InvoicePayload struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	Paid           bool
}

// AccountPayload is a normalized connected-account state change.
type AccountPayload struct {
	AccountID        string
	PayoutsEnabled   bool
	ChargesEnabled   bool
	DetailsSubmitted bool
	CurrentlyDue     []string
	Metadata         map[string]string
}

type rawEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent normalizes a raw webhook body into an Event. Unknown types
// yield an Event with Known()==false and no payload; callers acknowledge and
// ignore those.
func ParseEvent(payload []byte) (*Event, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("webhook payload missing event id")
	}
	if strings.TrimSpace(raw.Type) == "" {
		return nil, errors.New("webhook payload missing event type")
	}

	ev := &Event{ID: raw.ID, Type: raw.Type}
	if !ev.Known() {
		return ev, nil
	}
	if len(raw.Data.Object) == 0 {
		return nil, errors.New("webhook payload missing data object")
	}

	switch raw.Type {
	case EventCheckoutCompleted:
		p, err := parseCheckoutSession(raw.Data.Object)
		if err != nil {
			return nil, err
		}
		ev.Checkout = p
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		p, err := parseSubscription(raw.Data.Object)
		if err != nil {
			return nil, err
		}
		ev.Subscription = p
	case EventInvoicePaid, EventInvoicePaymentFailed:
		p, err := parseInvoice(raw.Data.Object)
		if err != nil {
			return nil, err
		}
		ev.Invoice = p
	case EventAccountUpdated:
		p, err := parseAccount(raw.Data.Object)
		if err != nil {
			return nil, err
		}
		ev.Account = p
	}
	return ev, nil
}

func parseCheckoutSession(object json.RawMessage) (*CheckoutSessionPayload, error) {
	var raw struct {
		ID                string            `json:"id"`
		Mode              string            `json:"mode"`
		PaymentStatus     string            `json:"payment_status"`
		Status            string            `json:"status"`
		AmountTotal       int64             `json:"amount_total"`
		Currency          string            `json:"currency"`
		Customer          string            `json:"customer"`
		Subscription      string            `json:"subscription"`
		PaymentIntent     string            `json:"payment_intent"`
		ClientReferenceID string            `json:"client_reference_id"`
		Metadata          map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(object, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("checkout session payload missing id")
	}

	status := raw.PaymentStatus
	if status == "" {
		// Older payload variants only carry the session status.
		status = raw.Status
	}
	return &CheckoutSessionPayload{
		SessionID:         raw.ID,
		Mode:              strings.ToLower(strings.TrimSpace(raw.Mode)),
		PaymentStatus:     status,
		AmountTotal:       raw.AmountTotal,
		Currency:          strings.ToLower(strings.TrimSpace(raw.Currency)),
		CustomerID:        raw.Customer,
		SubscriptionID:    raw.Subscription,
		PaymentIntentID:   raw.PaymentIntent,
		ClientReferenceID: raw.ClientReferenceID,
		Metadata:          raw.Metadata,
	}, nil
}

func parseSubscription(object json.RawMessage) (*SubscriptionPayload, error) {
	var raw struct {
		ID                string `json:"id"`
		Customer          string `json:"customer"`
		Status            string `json:"status"`
		CurrentPeriodEnd  int64  `json:"current_period_end"`
		CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
		Items             struct {
			Data []struct {
				Price struct {
					ID string `json:"id"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
		Plan struct {
			ID string `json:"id"`
		} `json:"plan"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(object, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("subscription payload missing id")
	}

	priceID := ""
	if len(raw.Items.Data) > 0 {
		priceID = raw.Items.Data[0].Price.ID
	}
	if priceID == "" {
		// Legacy payloads expose the price as a top-level plan.
		priceID = raw.Plan.ID
	}

	var periodEnd *time.Time
	if raw.CurrentPeriodEnd > 0 {
		t := time.Unix(raw.CurrentPeriodEnd, 0).UTC()
		periodEnd = &t
	}

	return &SubscriptionPayload{
		SubscriptionID:    raw.ID,
		CustomerID:        raw.Customer,
		Status:            strings.ToLower(strings.TrimSpace(raw.Status)),
		PriceID:           priceID,
		CurrentPeriodEnd:  periodEnd,
		CancelAtPeriodEnd: raw.CancelAtPeriodEnd,
		Metadata:          raw.Metadata,
	}, nil
}

func parseInvoice(object json.RawMessage) (*InvoicePayload, error) {
	var raw struct {
		ID           string `json:"id"`
		Customer     string `json:"customer"`
		Subscription string `json:"subscription"`
		Paid         bool   `json:"paid"`
		Status       string `json:"status"`
	}
	if err := json.Unmarshal(object, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("invoice payload missing id")
	}

	paid := raw.Paid
	if !paid && strings.EqualFold(raw.Status, "paid") {
		paid = true
	}
	return &InvoicePayload{
		InvoiceID:      raw.ID,
		CustomerID:     raw.Customer,
		SubscriptionID: raw.Subscription,
		Paid:           paid,
	}, nil
}

func parseAccount(object json.RawMessage) (*AccountPayload, error) {
	var raw struct {
		ID               string `json:"id"`
		PayoutsEnabled   bool   `json:"payouts_enabled"`
		ChargesEnabled   bool   `json:"charges_enabled"`
		DetailsSubmitted bool   `json:"details_submitted"`
		Requirements     struct {
			CurrentlyDue []string `json:"currently_due"`
		} `json:"requirements"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(object, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("account payload missing id")
	}

	return &AccountPayload{
		AccountID:        raw.ID,
		PayoutsEnabled:   raw.PayoutsEnabled,
		ChargesEnabled:   raw.ChargesEnabled,
		DetailsSubmitted: raw.DetailsSubmitted,
		CurrentlyDue:     raw.Requirements.CurrentlyDue,
		Metadata:         raw.Metadata,
	}, nil
}
