package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"
	"gorm.io/gorm"

	"github.com/MarcReynaud/MissionPay/internal/pkg/accountsync"
	"github.com/MarcReynaud/MissionPay/internal/pkg/constants"
	"github.com/MarcReynaud/MissionPay/internal/pkg/database"
	"github.com/MarcReynaud/MissionPay/internal/pkg/env"
	"github.com/MarcReynaud/MissionPay/internal/pkg/stripe"
	"github.com/MarcReynaud/MissionPay/internal/pkg/usercontext"
)

// HandlePayoutOnboarding sends the profile to the processor's hosted payout
// onboarding. Payout status only changes later, via account notifications.
func HandlePayoutOnboarding(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	svc := accountsync.NewServiceFromDB(database.GetDB())
	url, err := svc.StartOnboarding(
		ctx,
		stripe.NewClientFromEnv(),
		userCtx.ProfileID,
		publicURL(c, constants.PayoutOnboardingRoute),
		publicURL(c, "/user/settings/payouts"),
	)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return flash.WithError(c, fiber.Map{"type": "error", "message": "Profile not found"}).Redirect("/user/settings/payouts")
		}
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Payout onboarding could not be started"}).Redirect("/user/settings/payouts")
	}

	return c.Redirect(url, fiber.StatusSeeOther)
}

// HandleBillingCheckout creates a subscription-mode checkout session for the
// premium membership plan.
func HandleBillingCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	priceID := env.GetEnv("STRIPE_PREMIUM_PRICE_ID", "")
	if priceID == "" {
		return internalError(c, "membership plan is not configured")
	}

	repo := accountsync.NewRepository(database.GetDB())
	profile, err := repo.GetProfileByID(userCtx.ProfileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "profile not found")
		}
		return internalError(c, "failed to load profile")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	params := stripe.CheckoutSessionParams{
		Mode:              "subscription",
		SuccessURL:        publicURL(c, constants.MembershipRoute+"?checkout=success"),
		CancelURL:         publicURL(c, constants.MembershipRoute+"?checkout=canceled"),
		ClientReferenceID: strconv.FormatUint(uint64(profile.ID), 10),
		PriceID:           priceID,
		CustomerEmail:     profile.Email,
		Metadata: map[string]string{
			stripe.MetadataProfileID: strconv.FormatUint(uint64(profile.ID), 10),
		},
	}
	if profile.StripeCustomerID != nil {
		params.CustomerID = *profile.StripeCustomerID
		params.CustomerEmail = ""
	}

	client := stripe.NewClientFromEnv()
	session, err := client.CreateCheckoutSession(ctx, params)
	if err != nil {
		return internalError(c, "failed to start membership checkout")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"checkout_url": session.URL})
}
