package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MarcReynaud/MissionPay/internal/pkg/database"
	"github.com/MarcReynaud/MissionPay/internal/pkg/payments"
	"github.com/MarcReynaud/MissionPay/internal/pkg/stripe"
	"github.com/MarcReynaud/MissionPay/internal/pkg/usercontext"
)

type openDisputeRequest struct {
	Reason string `json:"reason"`
}

type resolveDisputeRequest struct {
	Outcome string `json:"outcome"` // "resolved" or "rejected"
}

// HandleOpenDispute freezes distribution on a payment. Opening is
// idempotent: a second open on the same payment returns the existing
// dispute.
func HandleOpenDispute(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	paymentID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid payment id")
	}

	var req openDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Reason == "" {
		return badRequest(c, "dispute reason is required")
	}

	svc := payments.NewServiceFromDB(database.GetDB(), stripe.NewClientFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dispute, err := svc.OpenDispute(ctx, paymentID, userCtx.ProfileID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrPaymentNotFound):
			return notFound(c, "payment not found")
		case errors.Is(err, payments.ErrWrongState):
			return conflict(c, "nothing collected to dispute")
		}
		return internalError(c, "failed to open dispute")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"dispute_id": dispute.ID,
		"status":     dispute.Status,
		"reason":     dispute.Reason,
	})
}

// HandleResolveDispute closes a dispute. Resolution lifts the gate but never
// releases funds by itself; an operator triggers release explicitly.
func HandleResolveDispute(c *fiber.Ctx) error {
	disputeID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid dispute id")
	}

	var req resolveDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	svc := payments.NewServiceFromDB(database.GetDB(), stripe.NewClientFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dispute, err := svc.ResolveDispute(ctx, disputeID, req.Outcome)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrWrongState):
			return conflict(c, "dispute is not open")
		case errors.Is(err, payments.ErrInvalidOutcome):
			return badRequest(c, "invalid dispute outcome")
		}
		return internalError(c, "failed to resolve dispute")
	}

	return c.JSON(fiber.Map{
		"dispute_id":  dispute.ID,
		"status":      dispute.Status,
		"resolved_at": formatTimePtr(dispute.ResolvedAt),
	})
}
