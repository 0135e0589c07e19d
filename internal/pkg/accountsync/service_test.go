package accountsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/MarcReynaud/MissionPay/app/models"
	"github.com/MarcReynaud/MissionPay/internal/pkg/stripe"
)

type fakeProfileRepo struct {
	profiles map[uint]*models.Profile
	nextID   uint
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: map[uint]*models.Profile{}}
}

func (f *fakeProfileRepo) add(p *models.Profile) *models.Profile {
	if p.ID == 0 {
		f.nextID++
		p.ID = f.nextID
	} else if p.ID > f.nextID {
		f.nextID = p.ID
	}
	f.profiles[p.ID] = p
	return p
}

func (f *fakeProfileRepo) GetProfileByID(id uint) (*models.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfileRepo) GetProfileByCustomerID(customerID string) (*models.Profile, error) {
	for _, p := range f.profiles {
		if p.StripeCustomerID != nil && *p.StripeCustomerID == customerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeProfileRepo) GetProfileByAccountID(accountID string) (*models.Profile, error) {
	for _, p := range f.profiles {
		if p.StripeAccountID != nil && *p.StripeAccountID == accountID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeProfileRepo) UpsertPlaceholderByCustomerID(customerID, email string) (*models.Profile, error) {
	if p, err := f.GetProfileByCustomerID(customerID); err == nil {
		return p, nil
	}
	cid := customerID
	p := f.add(&models.Profile{StripeCustomerID: &cid, Email: email, Placeholder: true})
	cp := *p
	return &cp, nil
}

func (f *fakeProfileRepo) UpdateProfileFields(id uint, fields map[string]interface{}) error {
	p, ok := f.profiles[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range fields {
		switch k {
		case "stripe_customer_id":
			s := v.(string)
			p.StripeCustomerID = &s
		case "stripe_account_id":
			s := v.(string)
			p.StripeAccountID = &s
		case "payout_status":
			p.PayoutStatus = v.(string)
		case "payouts_enabled":
			p.PayoutsEnabled = v.(bool)
		case "charges_enabled":
			p.ChargesEnabled = v.(bool)
		case "requirements_json":
			p.RequirementsJSON = v.(string)
		case "subscription_id":
			p.SubscriptionID = v.(string)
		case "subscription_status":
			s := v.(string)
			p.SubscriptionStatus = &s
		case "plan_id":
			p.PlanID = v.(string)
		case "current_period_end":
			p.CurrentPeriodEnd = v.(*time.Time)
		case "cancel_at_period_end":
			p.CancelAtPeriodEnd = v.(bool)
		}
	}
	return nil
}

type fakeOnboardingClient struct {
	accountID    string
	linkURL      string
	createCalls  int
	accountEmail string
}

func (f *fakeOnboardingClient) CreateAccount(ctx context.Context, params stripe.AccountParams) (*stripe.Account, error) {
	f.createCalls++
	f.accountEmail = params.Email
	return &stripe.Account{ID: f.accountID}, nil
}

func (f *fakeOnboardingClient) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*stripe.AccountLink, error) {
	return &stripe.AccountLink{URL: f.linkURL}, nil
}

func strptr(s string) *string { return &s }

func TestResolveProfile_Order(t *testing.T) {
	repo := newFakeProfileRepo()
	byID := repo.add(&models.Profile{ID: 1})
	byCustomer := repo.add(&models.Profile{ID: 2, StripeCustomerID: strptr("cus_1")})
	byAccount := repo.add(&models.Profile{ID: 3, StripeAccountID: strptr("acct_1")})
	svc := NewService(repo)

	// Metadata profile id wins over everything.
	p, err := svc.ResolveProfile(context.Background(), Identity{ProfileID: "1", CustomerID: "cus_1", AccountID: "acct_1"})
	if err != nil || p.ID != byID.ID {
		t.Fatalf("expected profile 1, got %v (%v)", p, err)
	}

	p, err = svc.ResolveProfile(context.Background(), Identity{CustomerID: "cus_1", AccountID: "acct_1"})
	if err != nil || p.ID != byCustomer.ID {
		t.Fatalf("expected customer match, got %v (%v)", p, err)
	}

	p, err = svc.ResolveProfile(context.Background(), Identity{AccountID: "acct_1"})
	if err != nil || p.ID != byAccount.ID {
		t.Fatalf("expected account match, got %v (%v)", p, err)
	}

	if _, err := svc.ResolveProfile(context.Background(), Identity{CustomerID: "cus_unknown"}); !errors.Is(err, ErrProfileNotResolved) {
		t.Fatalf("expected ErrProfileNotResolved, got %v", err)
	}
}

func TestResolveOrProvision_Placeholder(t *testing.T) {
	repo := newFakeProfileRepo()
	svc := NewService(repo)

	p, err := svc.ResolveOrProvision(context.Background(), Identity{CustomerID: "cus_new", Email: "new@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Placeholder {
		t.Fatalf("expected placeholder profile")
	}
	if p.StripeCustomerID == nil || *p.StripeCustomerID != "cus_new" {
		t.Fatalf("expected customer id recorded, got %v", p.StripeCustomerID)
	}

	// A second notification for the same customer resolves the same row.
	again, err := svc.ResolveOrProvision(context.Background(), Identity{CustomerID: "cus_new"})
	if err != nil || again.ID != p.ID {
		t.Fatalf("expected identical profile, got %v (%v)", again, err)
	}

	// No customer hint means nothing can be provisioned.
	if _, err := svc.ResolveOrProvision(context.Background(), Identity{AccountID: "acct_x"}); !errors.Is(err, ErrProfileNotResolved) {
		t.Fatalf("expected ErrProfileNotResolved, got %v", err)
	}
}

func TestSyncSubscription_AdditiveMerge(t *testing.T) {
	repo := newFakeProfileRepo()
	profile := repo.add(&models.Profile{ID: 1, PlanID: "price_keep"})
	svc := NewService(repo)

	end := time.Unix(1700000000, 0)
	cancel := true
	err := svc.SyncSubscription(context.Background(), profile, SubscriptionUpdate{
		SubscriptionID:    "sub_1",
		Status:            "active",
		CurrentPeriodEnd:  &end,
		CancelAtPeriodEnd: &cancel,
	}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := repo.profiles[1]
	if stored.SubscriptionID != "sub_1" || stored.SubscriptionStatus == nil || *stored.SubscriptionStatus != "active" {
		t.Fatalf("unexpected stored state: %+v", stored)
	}
	// Absent plan id must not erase the stored one.
	if stored.PlanID != "price_keep" {
		t.Fatalf("expected plan to survive sparse update, got %q", stored.PlanID)
	}
	if !stored.CancelAtPeriodEnd {
		t.Fatalf("expected cancel_at_period_end applied")
	}
}

func TestSyncSubscription_LateCreatedFillsGapsOnly(t *testing.T) {
	repo := newFakeProfileRepo()
	active := "active"
	end := time.Unix(1700000000, 0)
	profile := repo.add(&models.Profile{
		ID:                 1,
		SubscriptionID:     "sub_1",
		SubscriptionStatus: &active,
		PlanID:             "price_current",
		CurrentPeriodEnd:   &end,
	})
	svc := NewService(repo)

	// An out-of-order "created" carrying older state arrives after "updated".
	err := svc.SyncSubscription(context.Background(), profile, SubscriptionUpdate{
		SubscriptionID: "sub_1",
		Status:         "incomplete",
		PlanID:         "price_stale",
	}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := repo.profiles[1]
	if *stored.SubscriptionStatus != "active" {
		t.Fatalf("expected status to survive late created event, got %q", *stored.SubscriptionStatus)
	}
	if stored.PlanID != "price_current" {
		t.Fatalf("expected plan to survive late created event, got %q", stored.PlanID)
	}
}

func TestSyncSubscription_RequiresSubscriptionID(t *testing.T) {
	repo := newFakeProfileRepo()
	profile := repo.add(&models.Profile{ID: 1})
	svc := NewService(repo)

	if err := svc.SyncSubscription(context.Background(), profile, SubscriptionUpdate{Status: "active"}, false); err == nil {
		t.Fatalf("expected validation error for missing subscription id")
	}
}

func TestSyncSubscriptionDeleted(t *testing.T) {
	repo := newFakeProfileRepo()
	active := "active"
	profile := repo.add(&models.Profile{ID: 1, SubscriptionID: "sub_1", SubscriptionStatus: &active, PlanID: "price_1"})
	svc := NewService(repo)

	if err := svc.SyncSubscriptionDeleted(context.Background(), profile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored := repo.profiles[1]
	if *stored.SubscriptionStatus != models.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled, got %q", *stored.SubscriptionStatus)
	}
	// History stays.
	if stored.SubscriptionID != "sub_1" || stored.PlanID != "price_1" {
		t.Fatalf("expected subscription history kept, got %+v", stored)
	}
}

func TestSyncInvoice(t *testing.T) {
	repo := newFakeProfileRepo()
	profile := repo.add(&models.Profile{ID: 1})
	svc := NewService(repo)

	if err := svc.SyncInvoice(context.Background(), profile, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *repo.profiles[1].SubscriptionStatus != models.SubscriptionStatusActive {
		t.Fatalf("expected active after paid invoice")
	}

	if err := svc.SyncInvoice(context.Background(), profile, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *repo.profiles[1].SubscriptionStatus != models.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due after failed invoice")
	}
}

func TestSyncAccount_DerivesPayoutStatus(t *testing.T) {
	repo := newFakeProfileRepo()
	profile := repo.add(&models.Profile{ID: 1})
	svc := NewService(repo)

	cases := []struct {
		in   AccountUpdate
		want string
	}{
		{AccountUpdate{AccountID: "acct_1"}, models.PayoutStatusPending},
		{AccountUpdate{AccountID: "acct_1", DetailsSubmitted: true}, models.PayoutStatusRestricted},
		{AccountUpdate{AccountID: "acct_1", DetailsSubmitted: true, PayoutsEnabled: true, ChargesEnabled: true}, models.PayoutStatusComplete},
	}
	for _, tt := range cases {
		if err := svc.SyncAccount(context.Background(), profile, tt.in); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := repo.profiles[1].PayoutStatus; got != tt.want {
			t.Fatalf("payout status = %q, want %q", got, tt.want)
		}
	}
	if !repo.profiles[1].PayoutsEnabled {
		t.Fatalf("expected payouts_enabled applied")
	}
}

func TestSyncAccount_Requirements(t *testing.T) {
	repo := newFakeProfileRepo()
	profile := repo.add(&models.Profile{ID: 1, RequirementsJSON: `["individual.dob"]`})
	svc := NewService(repo)

	// Absent list leaves stored requirements untouched.
	if err := svc.SyncAccount(context.Background(), profile, AccountUpdate{AccountID: "acct_1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.profiles[1].RequirementsJSON == "" {
		t.Fatalf("expected absent requirements to be kept")
	}

	// An empty (but present) list clears them.
	if err := svc.SyncAccount(context.Background(), profile, AccountUpdate{AccountID: "acct_1", CurrentlyDue: []string{}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.profiles[1].RequirementsJSON != "" {
		t.Fatalf("expected requirements cleared, got %q", repo.profiles[1].RequirementsJSON)
	}
}

func TestStartOnboarding(t *testing.T) {
	repo := newFakeProfileRepo()
	repo.add(&models.Profile{ID: 1, Email: "worker@example.com"})
	svc := NewService(repo)
	client := &fakeOnboardingClient{accountID: "acct_new", linkURL: "https://onboard.example/link"}

	url, err := svc.StartOnboarding(context.Background(), client, 1, "https://x/refresh", "https://x/return")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://onboard.example/link" {
		t.Fatalf("unexpected link: %q", url)
	}
	if client.createCalls != 1 || client.accountEmail != "worker@example.com" {
		t.Fatalf("expected account created with profile email")
	}
	stored := repo.profiles[1]
	if stored.StripeAccountID == nil || *stored.StripeAccountID != "acct_new" {
		t.Fatalf("expected account id persisted, got %v", stored.StripeAccountID)
	}
	// Status must not change until an account notification arrives.
	if stored.PayoutStatus != "" && stored.PayoutStatus != models.PayoutStatusNotStarted {
		t.Fatalf("expected payout status untouched, got %q", stored.PayoutStatus)
	}

	// Existing account is reused.
	if _, err := svc.StartOnboarding(context.Background(), client, 1, "https://x/refresh", "https://x/return"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.createCalls != 1 {
		t.Fatalf("expected no second account creation, got %d", client.createCalls)
	}
}
