package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/MarcReynaud/MissionPay/app/models"
	"github.com/MarcReynaud/MissionPay/internal/pkg/database"
	"github.com/MarcReynaud/MissionPay/internal/pkg/metrics/counter"
	"github.com/MarcReynaud/MissionPay/internal/pkg/payments"
	"github.com/MarcReynaud/MissionPay/internal/pkg/stripe"
	"github.com/MarcReynaud/MissionPay/internal/pkg/usercontext"
)

type checkoutRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// HandleMissionCheckout starts the payment cycle for an accepted mission.
// Only the recruiter who posted the mission may pay for it.
func HandleMissionCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	missionID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid mission id")
	}

	db := database.GetDB()
	svc := payments.NewServiceFromDB(db, stripe.NewClientFromEnv())
	repo := payments.NewRepository(db)

	mission, err := repo.GetMission(missionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "mission not found")
		}
		return internalError(c, "failed to load mission")
	}
	if mission.RecruiterProfileID != userCtx.ProfileID && !userCtx.IsAdmin {
		return forbidden(c, "only the recruiter can pay for this mission")
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		return badRequest(c, "invalid request body")
	}
	successURL := defaultString(req.SuccessURL, publicURL(c, "/missions/checkout/success"))
	cancelURL := defaultString(req.CancelURL, publicURL(c, "/missions/checkout/cancel"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := svc.RecordSplit(ctx, missionID); err != nil {
		if errors.Is(err, payments.ErrMissionNotAccepted) {
			return conflict(c, "mission is not ready for payment")
		}
		if errors.Is(err, payments.ErrInvalidSplit) {
			return conflict(c, "allocation plan could not be computed")
		}
		return internalError(c, "failed to record allocation plan")
	}

	url, payment, err := svc.InitiatePayment(ctx, missionID, successURL, cancelURL)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrWrongState):
			return conflict(c, "mission payment already collected")
		case errors.Is(err, payments.ErrMissionNotAccepted), errors.Is(err, payments.ErrInvalidSplit):
			return conflict(c, "mission is not ready for payment")
		}
		return internalError(c, "failed to start checkout")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"checkout_url": url,
		"payment_id":   payment.ID,
		"status":       payment.Status,
	})
}

// HandleMissionPaymentStatus returns the payment projection for a mission.
// Every mission participant may read it.
func HandleMissionPaymentStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	missionID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid mission id")
	}

	db := database.GetDB()
	repo := payments.NewRepository(db)
	mission, err := repo.GetMission(missionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "mission not found")
		}
		return internalError(c, "failed to load mission")
	}
	if !missionParticipant(mission, userCtx.ProfileID) && !userCtx.IsAdmin {
		return forbidden(c, "not a participant of this mission")
	}

	svc := payments.NewServiceFromDB(db, stripe.NewClientFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	projection, err := svc.RefreshPaymentStatus(ctx, missionID)
	if err != nil {
		return internalError(c, "failed to load payment status")
	}
	return c.JSON(paymentProjectionResponse(projection))
}

// HandleTransferRetry re-drives the calling recipient's own skipped or
// failed transfer after payout onboarding completed.
func HandleTransferRetry(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	paymentID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid payment id")
	}

	db := database.GetDB()
	svc := payments.NewServiceFromDB(db, stripe.NewClientFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := svc.RetryTransfer(ctx, paymentID, userCtx.ProfileID)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrPaymentNotFound):
			return notFound(c, "payment not found")
		case errors.Is(err, payments.ErrDisputeOpen):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "dispute_open", "message": "An open dispute blocks this payout"})
		case errors.Is(err, payments.ErrNotRetryable):
			return conflict(c, "no retryable transfer for this recipient")
		case errors.Is(err, payments.ErrRecipientNotEligible):
			return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{"error": "payout_not_enabled", "message": "Complete payout onboarding first"})
		case errors.Is(err, payments.ErrWrongState):
			return conflict(c, "payment is not awaiting distribution")
		}
		return internalError(c, "transfer retry failed")
	}

	_ = counter.AddTransfer(result.TransferStatus)
	return c.JSON(fiber.Map{
		"transfer_status": result.TransferStatus,
		"payment_status":  result.PaymentStatus,
	})
}

// HandleAdminReleaseFunds forces a distribution run on a mission's current
// payment, typically after a dispute was resolved.
func HandleAdminReleaseFunds(c *fiber.Ctx) error {
	missionID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid mission id")
	}

	db := database.GetDB()
	svc := payments.NewServiceFromDB(db, stripe.NewClientFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := svc.ReleaseFunds(ctx, missionID)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrPaymentNotFound):
			return notFound(c, "no payment found for this mission")
		case errors.Is(err, payments.ErrDisputeOpen):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "dispute_open", "message": "Resolve the open dispute first"})
		case errors.Is(err, payments.ErrWrongState):
			return conflict(c, "payment is not awaiting distribution")
		case errors.Is(err, payments.ErrInvalidSplit):
			return conflict(c, "allocation plan is invalid, payment errored")
		}
		return internalError(c, "fund release failed")
	}

	for _, t := range result.Transfers {
		_ = counter.AddTransfer(t.Status)
	}
	return c.JSON(distributionResponse(result))
}

// HandleAdminPaymentMetrics returns the webhook and transfer counters.
func HandleAdminPaymentMetrics(c *fiber.Ctx) error {
	snapshot, err := counter.Snapshot()
	if err != nil {
		return internalError(c, "failed to read counters")
	}
	return c.JSON(fiber.Map{"counters": snapshot})
}

func missionParticipant(mission *models.Mission, profileID uint) bool {
	if profileID == 0 {
		return false
	}
	if mission.RecruiterProfileID == profileID {
		return true
	}
	if mission.WorkerProfileID != nil && *mission.WorkerProfileID == profileID {
		return true
	}
	if mission.IntermediaryProfileID != nil && *mission.IntermediaryProfileID == profileID {
		return true
	}
	return false
}

func paymentProjectionResponse(p *payments.PaymentProjection) fiber.Map {
	resp := fiber.Map{
		"status":       p.VisibleStatus,
		"dispute_open": p.DisputeOpen,
	}
	if p.DisputeOpen {
		resp["dispute_reason"] = p.DisputeReason
	}
	if p.Payment != nil {
		resp["payment_id"] = p.Payment.ID
		resp["gross_amount"] = p.Payment.GrossAmount
		resp["currency"] = p.Payment.Currency
		resp["paid_at"] = formatTimePtr(p.Payment.PaidAt)
		resp["distributed_at"] = formatTimePtr(p.Payment.DistributedAt)
	}
	transfers := make([]fiber.Map, 0, len(p.Transfers))
	for _, t := range p.Transfers {
		entry := fiber.Map{
			"recipient_profile_id": t.DestinationProfileID,
			"amount":               t.Amount,
			"status":               t.Status,
		}
		if t.LastError != "" {
			entry["last_error"] = t.LastError
		}
		transfers = append(transfers, entry)
	}
	resp["transfers"] = transfers
	return resp
}

func distributionResponse(r *payments.DistributionResult) fiber.Map {
	transfers := make([]fiber.Map, 0, len(r.Transfers))
	for _, t := range r.Transfers {
		entry := fiber.Map{
			"recipient_profile_id": t.ProfileID,
			"amount":               t.Amount,
			"status":               t.Status,
		}
		if t.Error != "" {
			entry["error"] = t.Error
		}
		transfers = append(transfers, entry)
	}
	return fiber.Map{
		"payment_id":     r.PaymentID,
		"payment_status": r.PaymentStatus,
		"transfers":      transfers,
	}
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
