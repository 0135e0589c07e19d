package payments

import (
	"context"

	"github.com/MarcReynaud/MissionPay/app/models"
	"github.com/MarcReynaud/MissionPay/internal/pkg/stripe"
)

// ProcessorClient is the processor surface the payment services call.
type ProcessorClient interface {
	CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreateTransfer(ctx context.Context, params stripe.TransferParams) (*stripe.Transfer, error)
	ListTransfersByGroup(ctx context.Context, group, destination string) ([]stripe.Transfer, error)
}

// TransferOutcome is one recipient's result of a distribution or retry run.
type TransferOutcome struct {
	ProfileID uint   `json:"profile_id"`
	Role      string `json:"role"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// DistributionResult summarizes one distribution run.
type DistributionResult struct {
	PaymentID     uint              `json:"payment_id"`
	PaymentStatus string            `json:"payment_status"`
	Transfers     []TransferOutcome `json:"transfers"`
}

// RetryResult is the structured outcome of a recipient-triggered retry.
type RetryResult struct {
	TransferStatus string `json:"transfer_status"`
	PaymentStatus  string `json:"payment_status"`
}

// User-visible payment states. These are what a recipient sees, never a raw
// internal error.
const (
	VisibleStatusUnpaid       = "unpaid"
	VisibleStatusPending      = "pending"
	VisibleStatusReceived     = "received"
	VisibleStatusPaid         = "paid"
	VisibleStatusActionNeeded = "action_needed"
	VisibleStatusError        = "error"
)

// PaymentProjection is the read-only view served to clients.
type PaymentProjection struct {
	Payment       *models.MissionPayment   `json:"payment,omitempty"`
	Transfers     []models.MissionTransfer `json:"transfers,omitempty"`
	VisibleStatus string                   `json:"visible_status"`
	DisputeOpen   bool                     `json:"dispute_open"`
	DisputeReason string                   `json:"dispute_reason,omitempty"`
}
