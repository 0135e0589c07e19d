package stripe

import (
	"testing"
	"time"
)

func TestParseEvent_CheckoutCompleted(t *testing.T) {
	raw := []byte(`{
		"id": "evt_100",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_200",
				"mode": "payment",
				"payment_status": "paid",
				"amount_total": 10000,
				"currency": "EUR",
				"payment_intent": "pi_300",
				"metadata": { "mission_id": "42" }
			}
		}
	}`)

	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !ev.Known() {
		t.Fatalf("expected known event type")
	}
	if ev.Checkout == nil {
		t.Fatalf("expected checkout payload")
	}
	if ev.Checkout.SessionID != "cs_200" || ev.Checkout.AmountTotal != 10000 {
		t.Fatalf("unexpected payload: %+v", ev.Checkout)
	}
	if ev.Checkout.Currency != "eur" {
		t.Fatalf("expected lowercased currency, got %q", ev.Checkout.Currency)
	}
	if !ev.Checkout.Captured() {
		t.Fatalf("expected paid session to be captured")
	}
	if ev.Checkout.Metadata[MetadataMissionID] != "42" {
		t.Fatalf("expected mission metadata to survive parsing")
	}
}

func TestCheckoutCaptured_Synonyms(t *testing.T) {
	for _, status := range []string{"paid", "received", "succeeded", "complete", "no_payment_required", " Paid "} {
		p := &CheckoutSessionPayload{PaymentStatus: status}
		if !p.Captured() {
			t.Fatalf("expected %q to count as captured", status)
		}
	}
	for _, status := range []string{"", "unpaid", "requires_payment_method"} {
		p := &CheckoutSessionPayload{PaymentStatus: status}
		if p.Captured() {
			t.Fatalf("expected %q to not count as captured", status)
		}
	}
}

func TestParseEvent_SubscriptionLegacyPlan(t *testing.T) {
	raw := []byte(`{
		"id": "evt_101",
		"type": "customer.subscription.updated",
		"data": {
			"object": {
				"id": "sub_1",
				"customer": "cus_1",
				"status": "ACTIVE",
				"current_period_end": 1700000000,
				"cancel_at_period_end": true,
				"plan": { "id": "price_legacy" }
			}
		}
	}`)

	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	sub := ev.Subscription
	if sub == nil {
		t.Fatalf("expected subscription payload")
	}
	if sub.Status != "active" {
		t.Fatalf("expected normalized status, got %q", sub.Status)
	}
	if sub.PriceID != "price_legacy" {
		t.Fatalf("expected legacy plan fallback, got %q", sub.PriceID)
	}
	if !sub.CancelAtPeriodEnd {
		t.Fatalf("expected cancel_at_period_end=true")
	}
	want := time.Unix(1700000000, 0).UTC()
	if sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Equal(want) {
		t.Fatalf("unexpected period end: %v", sub.CurrentPeriodEnd)
	}
}

func TestParseEvent_SubscriptionItemsPriceWins(t *testing.T) {
	raw := []byte(`{
		"id": "evt_102",
		"type": "customer.subscription.created",
		"data": {
			"object": {
				"id": "sub_2",
				"customer": "cus_2",
				"status": "trialing",
				"items": { "data": [ { "price": { "id": "price_new" } } ] },
				"plan": { "id": "price_legacy" }
			}
		}
	}`)

	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Subscription.PriceID != "price_new" {
		t.Fatalf("expected items price to win over legacy plan, got %q", ev.Subscription.PriceID)
	}
}

func TestParseEvent_AccountUpdated(t *testing.T) {
	raw := []byte(`{
		"id": "evt_103",
		"type": "account.updated",
		"data": {
			"object": {
				"id": "acct_1",
				"payouts_enabled": true,
				"charges_enabled": true,
				"details_submitted": true,
				"requirements": { "currently_due": ["individual.dob"] }
			}
		}
	}`)

	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	acct := ev.Account
	if acct == nil {
		t.Fatalf("expected account payload")
	}
	if !acct.PayoutsEnabled || !acct.DetailsSubmitted {
		t.Fatalf("unexpected flags: %+v", acct)
	}
	if len(acct.CurrentlyDue) != 1 || acct.CurrentlyDue[0] != "individual.dob" {
		t.Fatalf("unexpected requirements: %v", acct.CurrentlyDue)
	}
}

func TestParseEvent_InvoicePaidFromStatus(t *testing.T) {
	raw := []byte(`{
		"id": "evt_104",
		"type": "invoice.paid",
		"data": {
			"object": { "id": "in_1", "customer": "cus_3", "status": "paid" }
		}
	}`)

	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !ev.Invoice.Paid {
		t.Fatalf("expected status=paid to imply paid")
	}
}

func TestParseEvent_UnknownType(t *testing.T) {
	raw := []byte(`{"id":"evt_105","type":"payout.created","data":{"object":{"id":"po_1"}}}`)

	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Known() {
		t.Fatalf("expected unknown event type")
	}
	if ev.Checkout != nil || ev.Subscription != nil || ev.Invoice != nil || ev.Account != nil {
		t.Fatalf("expected no payload on unknown event")
	}
}

func TestParseEvent_Invalid(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"type":"checkout.session.completed"}`)); err == nil {
		t.Fatalf("expected missing id to error")
	}
	if _, err := ParseEvent([]byte(`{"id":"evt_1"}`)); err == nil {
		t.Fatalf("expected missing type to error")
	}
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Fatalf("expected invalid json to error")
	}
	if _, err := ParseEvent([]byte(`{"id":"evt_1","type":"checkout.session.completed"}`)); err == nil {
		t.Fatalf("expected missing data object to error")
	}
}
