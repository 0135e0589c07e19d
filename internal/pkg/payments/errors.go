package payments

import "errors"

var (
	// ErrDisputeOpen gates distribution and retries while a dispute is open.
	// Callers surface it as a distinct "blocked by dispute" result.
	ErrDisputeOpen = errors.New("payment is blocked by an open dispute")

	// ErrWrongState means the payment is not in a state that permits the
	// requested action (status moves only forward).
	ErrWrongState = errors.New("payment state does not permit this action")

	// ErrNotRetryable means the transfer is not in a skipped/failed state.
	ErrNotRetryable = errors.New("transfer is not in a retryable state")

	// ErrRecipientNotEligible means the recipient's payout account is not
	// enabled yet; the transfer stays skipped.
	ErrRecipientNotEligible = errors.New("recipient is not payout-enabled")

	// ErrInvalidSplit marks a malformed allocation plan. Retrying would
	// recompute the same plan, so the payment is errored instead.
	ErrInvalidSplit = errors.New("allocation plan is invalid")

	// ErrMissionNotAccepted means the mission has no worker or no agreed
	// amount yet, so no split can be recorded.
	ErrMissionNotAccepted = errors.New("mission is not accepted")

	// ErrInvalidOutcome rejects dispute resolutions other than resolved or
	// rejected.
	ErrInvalidOutcome = errors.New("invalid dispute outcome")

	// ErrPaymentNotFound means no payment row exists for the lookup.
	ErrPaymentNotFound = errors.New("mission payment not found")
)
