package constants

// Static route constants
const (
	StripeWebhookRoute    = "/webhooks/stripe"
	APIPrefix             = "/api/v1"
	PayoutOnboardingRoute = "/user/settings/payouts/onboarding"
	MembershipRoute       = "/user/settings/membership"
)
