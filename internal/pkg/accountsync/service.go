// Package accountsync maintains the billing and payout account state of
// profiles from processor notifications. Writes are additive merges: only
// fields present in the incoming payload are applied, so a sparse
// notification can never erase previously recorded state.
package accountsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MarcReynaud/MissionPay/app/models"
	"github.com/MarcReynaud/MissionPay/internal/pkg/stripe"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// ErrProfileNotResolved means no stored profile matches any recipient hint
// carried by the notification. Redelivery cannot change that outcome, so
// callers log and drop.
var ErrProfileNotResolved = errors.New("no profile resolves the notification recipient")

// OnboardingClient is the processor surface needed to start payout
// onboarding.
type OnboardingClient interface {
	CreateAccount(ctx context.Context, params stripe.AccountParams) (*stripe.Account, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*stripe.AccountLink, error)
}

// Service synchronizes profile billing/payout state.
type Service struct {
	repo     Repository
	validate *validator.Validate
}

// NewService creates a synchronizer from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

// NewServiceFromDB creates a synchronizer from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ResolveProfile finds the profile a notification targets. Resolution order:
// explicit profile id from metadata, then stored customer id, then stored
// payout account id.
func (s *Service) ResolveProfile(ctx context.Context, id Identity) (*models.Profile, error) {
	_ = ctx
	if raw := strings.TrimSpace(id.ProfileID); raw != "" {
		if pid, err := strconv.ParseUint(raw, 10, 32); err == nil && pid > 0 {
			p, err := s.repo.GetProfileByID(uint(pid))
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
		}
	}
	if cid := strings.TrimSpace(id.CustomerID); cid != "" {
		p, err := s.repo.GetProfileByCustomerID(cid)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if aid := strings.TrimSpace(id.AccountID); aid != "" {
		p, err := s.repo.GetProfileByAccountID(aid)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, ErrProfileNotResolved
}

// ResolveOrProvision resolves the target profile and, when a billing
// notification arrives before account provisioning finished, creates a
// minimal placeholder keyed by the customer id. A second failure to locate
// the profile after creation is fatal so the provider redelivers later.
func (s *Service) ResolveOrProvision(ctx context.Context, id Identity) (*models.Profile, error) {
	p, err := s.ResolveProfile(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProfileNotResolved) {
		return nil, err
	}
	cid := strings.TrimSpace(id.CustomerID)
	if cid == "" {
		return nil, ErrProfileNotResolved
	}

	p, err = s.repo.UpsertPlaceholderByCustomerID(cid, strings.TrimSpace(id.Email))
	if err != nil {
		return nil, fmt.Errorf("placeholder profile for customer %s: %w", cid, err)
	}
	return p, nil
}

// LinkCheckout records the identities a completed subscription checkout
// established for the profile.
func (s *Service) LinkCheckout(ctx context.Context, profileID uint, link CheckoutLink) error {
	_ = ctx
	if profileID == 0 {
		return errors.New("profile id is required")
	}
	fields := map[string]interface{}{}
	if cid := strings.TrimSpace(link.CustomerID); cid != "" {
		fields["stripe_customer_id"] = cid
	}
	if sid := strings.TrimSpace(link.SubscriptionID); sid != "" {
		fields["subscription_id"] = sid
	}
	return s.repo.UpdateProfileFields(profileID, fields)
}

// SyncSubscription applies a subscription state change. created marks a
// "subscription created" notification; when the stored record is already
// active with a plan set, a late-arriving created event only fills gaps
// instead of regressing the record.
func (s *Service) SyncSubscription(ctx context.Context, profile *models.Profile, in SubscriptionUpdate, created bool) error {
	_ = ctx
	if profile == nil || profile.ID == 0 {
		return errors.New("profile is required")
	}
	if err := s.validate.Struct(in); err != nil {
		return err
	}

	fillGapsOnly := created &&
		profile.SubscriptionStatus != nil &&
		*profile.SubscriptionStatus == models.SubscriptionStatusActive &&
		profile.PlanID != ""

	fields := map[string]interface{}{}
	if profile.SubscriptionID == "" || !fillGapsOnly {
		fields["subscription_id"] = strings.TrimSpace(in.SubscriptionID)
	}
	if status := normalizeSubscriptionStatus(in.Status); status != "" && !fillGapsOnly {
		fields["subscription_status"] = status
	}
	if plan := strings.TrimSpace(in.PlanID); plan != "" && (profile.PlanID == "" || !fillGapsOnly) {
		fields["plan_id"] = plan
	}
	if in.CurrentPeriodEnd != nil && (profile.CurrentPeriodEnd == nil || !fillGapsOnly) {
		fields["current_period_end"] = in.CurrentPeriodEnd
	}
	if in.CancelAtPeriodEnd != nil && !fillGapsOnly {
		fields["cancel_at_period_end"] = *in.CancelAtPeriodEnd
	}

	return s.repo.UpdateProfileFields(profile.ID, fields)
}

// SyncSubscriptionDeleted marks the subscription canceled. Other fields are
// kept for history.
func (s *Service) SyncSubscriptionDeleted(ctx context.Context, profile *models.Profile) error {
	_ = ctx
	if profile == nil || profile.ID == 0 {
		return errors.New("profile is required")
	}
	return s.repo.UpdateProfileFields(profile.ID, map[string]interface{}{
		"subscription_status": models.SubscriptionStatusCanceled,
	})
}

// SyncInvoice applies an invoice outcome: a paid invoice confirms the
// subscription active, a failed one moves it past_due.
func (s *Service) SyncInvoice(ctx context.Context, profile *models.Profile, paid bool) error {
	_ = ctx
	if profile == nil || profile.ID == 0 {
		return errors.New("profile is required")
	}
	status := models.SubscriptionStatusPastDue
	if paid {
		status = models.SubscriptionStatusActive
	}
	return s.repo.UpdateProfileFields(profile.ID, map[string]interface{}{
		"subscription_status": status,
	})
}

// SyncAccount applies a payout account state change and derives the
// onboarding status from the submitted/enabled flags.
func (s *Service) SyncAccount(ctx context.Context, profile *models.Profile, in AccountUpdate) error {
	_ = ctx
	if profile == nil || profile.ID == 0 {
		return errors.New("profile is required")
	}
	if err := s.validate.Struct(in); err != nil {
		return err
	}

	fields := map[string]interface{}{
		"stripe_account_id": strings.TrimSpace(in.AccountID),
		"payouts_enabled":   in.PayoutsEnabled,
		"charges_enabled":   in.ChargesEnabled,
		"payout_status":     derivePayoutStatus(in),
	}
	if in.CurrentlyDue != nil {
		if len(in.CurrentlyDue) == 0 {
			fields["requirements_json"] = ""
		} else if b, err := json.Marshal(in.CurrentlyDue); err == nil {
			fields["requirements_json"] = string(b)
		}
	}
	return s.repo.UpdateProfileFields(profile.ID, fields)
}

// StartOnboarding ensures the profile has a payout account at the processor
// and requests a fresh onboarding link. It never mutates payout status; only
// account notifications do.
func (s *Service) StartOnboarding(ctx context.Context, client OnboardingClient, profileID uint, refreshURL, returnURL string) (string, error) {
	profile, err := s.repo.GetProfileByID(profileID)
	if err != nil {
		return "", err
	}

	accountID := ""
	if profile.StripeAccountID != nil {
		accountID = *profile.StripeAccountID
	}
	if accountID == "" {
		account, err := client.CreateAccount(ctx, stripe.AccountParams{
			Email: profile.Email,
			Metadata: map[string]string{
				stripe.MetadataProfileID: strconv.FormatUint(uint64(profile.ID), 10),
			},
		})
		if err != nil {
			return "", fmt.Errorf("create payout account: %w", err)
		}
		accountID = account.ID
		if err := s.repo.UpdateProfileFields(profile.ID, map[string]interface{}{
			"stripe_account_id": accountID,
		}); err != nil {
			return "", err
		}
	}

	link, err := client.CreateAccountLink(ctx, accountID, refreshURL, returnURL)
	if err != nil {
		return "", fmt.Errorf("create onboarding link: %w", err)
	}
	return link.URL, nil
}

func derivePayoutStatus(in AccountUpdate) string {
	switch {
	case in.DetailsSubmitted && in.PayoutsEnabled:
		return models.PayoutStatusComplete
	case in.DetailsSubmitted:
		return models.PayoutStatusRestricted
	default:
		return models.PayoutStatusPending
	}
}

func normalizeSubscriptionStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusActive:
		return models.SubscriptionStatusActive
	case models.SubscriptionStatusTrialing:
		return models.SubscriptionStatusTrialing
	case models.SubscriptionStatusPastDue:
		return models.SubscriptionStatusPastDue
	case models.SubscriptionStatusCanceled:
		return models.SubscriptionStatusCanceled
	case models.SubscriptionStatusUnpaid:
		return models.SubscriptionStatusUnpaid
	case models.SubscriptionStatusIncomplete:
		return models.SubscriptionStatusIncomplete
	case models.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionStatusIncompleteExpired
	case models.SubscriptionStatusPaused:
		return models.SubscriptionStatusPaused
	default:
		return ""
	}
}
