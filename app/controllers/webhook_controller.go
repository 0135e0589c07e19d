package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/MarcReynaud/MissionPay/internal/pkg/accountsync"
	"github.com/MarcReynaud/MissionPay/internal/pkg/database"
	"github.com/MarcReynaud/MissionPay/internal/pkg/env"
	"github.com/MarcReynaud/MissionPay/internal/pkg/ledger"
	"github.com/MarcReynaud/MissionPay/internal/pkg/metrics/counter"
	"github.com/MarcReynaud/MissionPay/internal/pkg/payments"
	"github.com/MarcReynaud/MissionPay/internal/pkg/stripe"
)

// HandleStripeWebhook is the single ingress for processor notifications.
// Order matters: verify signature, check the ledger, apply side effects,
// then record the event. Recording last means a crash mid-handling leads to
// redelivery, never to a lost event.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	if !stripe.VerifyWebhookSignature(rawBody, signature, secret) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	event, err := stripe.ParseEvent(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	_ = counter.AddWebhookEvent(event.Type)

	db := database.GetDB()
	ledgerSvc := ledger.NewServiceFromDB(db)
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	processed, err := ledgerSvc.IsProcessed(ctx, event.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ledger_lookup_failed"})
	}
	if processed {
		_ = counter.AddWebhookDuplicate()
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	if !event.Known() {
		if err := ledgerSvc.MarkProcessed(ctx, event.ID, event.Type, string(rawBody)); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ledger_write_failed"})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	if err := dispatchStripeEvent(ctx, event); err != nil {
		// Transient failure: respond non-2xx without a ledger row so the
		// processor redelivers.
		log.Errorf("webhook %s (%s) failed: %v", event.ID, event.Type, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_handling_failed"})
	}

	if err := ledgerSvc.MarkProcessed(ctx, event.ID, event.Type, string(rawBody)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ledger_write_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// dispatchStripeEvent applies the side effects for one known event. A nil
// return marks the event processed; unresolvable recipients are logged and
// swallowed because redelivery cannot fix them.
func dispatchStripeEvent(ctx context.Context, event *stripe.Event) error {
	db := database.GetDB()
	syncSvc := accountsync.NewServiceFromDB(db)

	switch event.Type {
	case stripe.EventCheckoutCompleted:
		return handleCheckoutCompleted(ctx, syncSvc, event)
	case stripe.EventSubscriptionCreated, stripe.EventSubscriptionUpdated:
		return handleSubscriptionChange(ctx, syncSvc, event, event.Type == stripe.EventSubscriptionCreated)
	case stripe.EventSubscriptionDeleted:
		return handleSubscriptionDeleted(ctx, syncSvc, event)
	case stripe.EventInvoicePaid, stripe.EventInvoicePaymentFailed:
		return handleInvoice(ctx, syncSvc, event)
	case stripe.EventAccountUpdated:
		return handleAccountUpdated(ctx, syncSvc, event)
	}
	return nil
}

func handleCheckoutCompleted(ctx context.Context, syncSvc *accountsync.Service, event *stripe.Event) error {
	payload := event.Checkout

	if payload.Mode == "subscription" {
		profile, err := syncSvc.ResolveOrProvision(ctx, accountsync.Identity{
			ProfileID:  payload.Metadata[stripe.MetadataProfileID],
			CustomerID: payload.CustomerID,
		})
		if err != nil {
			if errors.Is(err, accountsync.ErrProfileNotResolved) {
				log.Warnf("checkout %s resolves no profile, dropping", payload.SessionID)
				return nil
			}
			return err
		}
		return syncSvc.LinkCheckout(ctx, profile.ID, accountsync.CheckoutLink{
			CustomerID:     payload.CustomerID,
			SubscriptionID: payload.SubscriptionID,
		})
	}

	paySvc := payments.NewServiceFromDB(database.GetDB(), stripe.NewClientFromEnv())
	if err := paySvc.HandleCheckoutCompleted(ctx, payload); err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			log.Warnf("checkout %s matches no mission payment, dropping", payload.SessionID)
			return nil
		}
		return err
	}
	return nil
}

func handleSubscriptionChange(ctx context.Context, syncSvc *accountsync.Service, event *stripe.Event, created bool) error {
	payload := event.Subscription
	profile, err := syncSvc.ResolveOrProvision(ctx, accountsync.Identity{
		ProfileID:  payload.Metadata[stripe.MetadataProfileID],
		CustomerID: payload.CustomerID,
	})
	if err != nil {
		if errors.Is(err, accountsync.ErrProfileNotResolved) {
			log.Warnf("subscription %s resolves no profile, dropping", payload.SubscriptionID)
			return nil
		}
		return err
	}
	cancelAt := payload.CancelAtPeriodEnd
	return syncSvc.SyncSubscription(ctx, profile, accountsync.SubscriptionUpdate{
		SubscriptionID:    payload.SubscriptionID,
		Status:            payload.Status,
		PlanID:            payload.PriceID,
		CurrentPeriodEnd:  payload.CurrentPeriodEnd,
		CancelAtPeriodEnd: &cancelAt,
	}, created)
}

func handleSubscriptionDeleted(ctx context.Context, syncSvc *accountsync.Service, event *stripe.Event) error {
	payload := event.Subscription
	profile, err := syncSvc.ResolveProfile(ctx, accountsync.Identity{
		ProfileID:  payload.Metadata[stripe.MetadataProfileID],
		CustomerID: payload.CustomerID,
	})
	if err != nil {
		if errors.Is(err, accountsync.ErrProfileNotResolved) {
			log.Warnf("subscription %s resolves no profile, dropping", payload.SubscriptionID)
			return nil
		}
		return err
	}
	return syncSvc.SyncSubscriptionDeleted(ctx, profile)
}

func handleInvoice(ctx context.Context, syncSvc *accountsync.Service, event *stripe.Event) error {
	payload := event.Invoice
	profile, err := syncSvc.ResolveOrProvision(ctx, accountsync.Identity{
		CustomerID: payload.CustomerID,
	})
	if err != nil {
		if errors.Is(err, accountsync.ErrProfileNotResolved) {
			log.Warnf("invoice %s resolves no profile, dropping", payload.InvoiceID)
			return nil
		}
		return err
	}
	return syncSvc.SyncInvoice(ctx, profile, payload.Paid)
}

func handleAccountUpdated(ctx context.Context, syncSvc *accountsync.Service, event *stripe.Event) error {
	payload := event.Account
	profile, err := syncSvc.ResolveProfile(ctx, accountsync.Identity{
		ProfileID: payload.Metadata[stripe.MetadataProfileID],
		AccountID: payload.AccountID,
	})
	if err != nil {
		if errors.Is(err, accountsync.ErrProfileNotResolved) {
			log.Warnf("account %s resolves no profile, dropping", payload.AccountID)
			return nil
		}
		return err
	}
	return syncSvc.SyncAccount(ctx, profile, accountsync.AccountUpdate{
		AccountID:        payload.AccountID,
		PayoutsEnabled:   payload.PayoutsEnabled,
		ChargesEnabled:   payload.ChargesEnabled,
		DetailsSubmitted: payload.DetailsSubmitted,
		CurrentlyDue:     payload.CurrentlyDue,
	})
}
