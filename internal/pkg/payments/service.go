// Package payments owns the mission payment lifecycle: the payment state
// machine, the fund distribution engine, the recipient retry path and the
// dispute gate. All state transitions are conditional single-row updates;
// the (payment, recipient) unique transfer index carries the concurrency
// burden, not in-process locks.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MarcReynaud/MissionPay/app/models"
	"github.com/MarcReynaud/MissionPay/internal/pkg/stripe"
)

// Service implements the payment lifecycle operations.
type Service struct {
	repo   Repository
	client ProcessorClient
}

// NewService creates a payment service from injected collaborators.
func NewService(repo Repository, client ProcessorClient) *Service {
	return &Service{repo: repo, client: client}
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, client ProcessorClient) *Service {
	return NewService(NewRepository(db), client)
}

// RecordSplit fixes the allocation plan for an accepted mission. It is
// called once at acceptance time; rows are immutable afterwards, so later
// fee changes cannot alter an already-planned split.
func (s *Service) RecordSplit(ctx context.Context, missionID uint) error {
	_ = ctx
	mission, err := s.repo.GetMission(missionID)
	if err != nil {
		return err
	}
	if mission.Status == models.MissionStatusOpen {
		return ErrMissionNotAccepted
	}
	if mission.WorkerProfileID == nil || *mission.WorkerProfileID == 0 || mission.AgreedAmount <= 0 {
		return ErrMissionNotAccepted
	}

	existing, err := s.repo.ListFinanceByMission(missionID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		// The plan is immutable once recorded.
		return nil
	}

	workerPct, intermediaryPct := SharePercents()
	allocations, err := ComputeSplit(mission.AgreedAmount, *mission.WorkerProfileID, workerPct, mission.IntermediaryProfileID, intermediaryPct)
	if err != nil {
		return err
	}

	rows := make([]models.MissionFinance, 0, len(allocations))
	for _, a := range allocations {
		rows = append(rows, models.MissionFinance{
			MissionID:          missionID,
			RecipientProfileID: a.ProfileID,
			RecipientRole:      a.Role,
			AllocatedAmount:    a.Amount,
		})
	}
	return s.repo.CreateFinanceRows(rows)
}

// InitiatePayment creates a checkout session for the mission and records a
// pending payment row. A mission that already has funds received or
// distributed cannot start another cycle.
func (s *Service) InitiatePayment(ctx context.Context, missionID uint, successURL, cancelURL string) (string, *models.MissionPayment, error) {
	mission, err := s.repo.GetMission(missionID)
	if err != nil {
		return "", nil, err
	}
	if mission.AgreedAmount <= 0 {
		return "", nil, ErrMissionNotAccepted
	}

	latest, err := s.repo.GetLatestPaymentByMission(missionID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, err
	}
	if latest != nil {
		switch latest.Status {
		case models.PaymentStatusReceived, models.PaymentStatusDistributed:
			return "", nil, fmt.Errorf("%w: mission %d already has a %s payment", ErrWrongState, missionID, latest.Status)
		}
	}

	finance, err := s.repo.ListFinanceByMission(missionID)
	if err != nil {
		return "", nil, err
	}
	if len(finance) == 0 {
		return "", nil, fmt.Errorf("%w: no allocation plan recorded for mission %d", ErrInvalidSplit, missionID)
	}

	session, err := s.client.CreateCheckoutSession(ctx, stripe.CheckoutSessionParams{
		Mode:              "payment",
		SuccessURL:        successURL,
		CancelURL:         cancelURL,
		ClientReferenceID: strconv.FormatUint(uint64(mission.RecruiterProfileID), 10),
		AmountTotal:       mission.AgreedAmount,
		Currency:          mission.Currency,
		ProductName:       mission.Title,
		Metadata: map[string]string{
			stripe.MetadataMissionID: strconv.FormatUint(uint64(missionID), 10),
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("create checkout session: %w", err)
	}

	payment := &models.MissionPayment{
		MissionID:         missionID,
		Status:            models.PaymentStatusPending,
		GrossAmount:       mission.AgreedAmount,
		Currency:          mission.Currency,
		CheckoutSessionID: session.ID,
	}
	if err := s.repo.CreatePayment(payment); err != nil {
		return "", nil, err
	}
	if err := s.repo.BindFinanceToPayment(missionID, payment.ID); err != nil {
		return "", nil, err
	}
	return session.URL, payment, nil
}

// HandleCheckoutCompleted moves a mission payment from pending to received
// when the processor confirms capture, then attempts distribution. Transfer
// level failures are recorded on the rows, not bubbled up; only storage
// failures propagate so the notification is redelivered.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, payload *stripe.CheckoutSessionPayload) error {
	if payload == nil {
		return errors.New("checkout payload is required")
	}
	if !payload.Captured() {
		// Session completed without captured funds; stays pending.
		return nil
	}

	payment, err := s.repo.GetPaymentByCheckoutSession(payload.SessionID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		// Fall back to the mission carried in metadata.
		missionID := parseUintField(payload.Metadata[stripe.MetadataMissionID])
		if missionID == 0 {
			return fmt.Errorf("%w: checkout session %s matches no payment", ErrPaymentNotFound, payload.SessionID)
		}
		payment, err = s.repo.GetLatestPaymentByMission(missionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: mission %d has no payment row", ErrPaymentNotFound, missionID)
			}
			return err
		}
	}

	now := time.Now()
	fields := map[string]interface{}{"paid_at": &now}
	if payload.AmountTotal > 0 {
		fields["gross_amount"] = payload.AmountTotal
	}
	if payload.Currency != "" {
		fields["currency"] = payload.Currency
	}
	if payload.PaymentIntentID != "" {
		fields["payment_intent_id"] = payload.PaymentIntentID
	}
	moved, err := s.repo.UpdatePaymentStatusIf(payment.ID, models.PaymentStatusPending, models.PaymentStatusReceived, fields)
	if err != nil {
		return err
	}
	if !moved {
		// Already received or beyond; forward-only states make the
		// redelivery a no-op here.
		current, err := s.repo.GetPayment(payment.ID)
		if err != nil {
			return err
		}
		if current.Status != models.PaymentStatusReceived {
			return nil
		}
	}

	if err := s.repo.BindFinanceToPayment(payment.MissionID, payment.ID); err != nil {
		return err
	}

	if _, err := s.Distribute(ctx, payment.ID); err != nil {
		if errors.Is(err, ErrDisputeOpen) || errors.Is(err, ErrInvalidSplit) {
			// Both are persistent states the operator or recipient resolves;
			// redelivering the capture notification would not help.
			log.Warnf("distribution blocked for payment %d: %v", payment.ID, err)
			return nil
		}
		return err
	}
	return nil
}

// Distribute runs the fund distribution engine on a received payment. Each
// recipient is handled independently: ineligible recipients get a skipped
// transfer, processor failures get a failed transfer, and the payment
// becomes distributed only when a re-read shows every allocation matched by
// a created transfer.
func (s *Service) Distribute(ctx context.Context, paymentID uint) (*DistributionResult, error) {
	payment, err := s.repo.GetPayment(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	if payment.Status == models.PaymentStatusDistributed {
		transfers, err := s.repo.ListTransfersByPayment(paymentID)
		if err != nil {
			return nil, err
		}
		return s.buildResult(payment, transfers), nil
	}
	if payment.Status != models.PaymentStatusReceived {
		return nil, fmt.Errorf("%w: payment %d is %s", ErrWrongState, paymentID, payment.Status)
	}

	blocked, err := s.repo.HasOpenDispute(paymentID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrDisputeOpen
	}

	finance, err := s.repo.ListFinanceByPayment(paymentID)
	if err != nil {
		return nil, err
	}
	if err := ValidateSplit(payment.GrossAmount, finance); err != nil {
		// Malformed plans are fatal: re-running would recompute the same
		// plan, so the payment is errored and surfaced to an operator.
		if _, markErr := s.repo.UpdatePaymentStatusIf(paymentID, models.PaymentStatusReceived, models.PaymentStatusErrored, map[string]interface{}{
			"error_message": err.Error(),
		}); markErr != nil {
			return nil, markErr
		}
		log.Errorf("payment %d errored: %v", paymentID, err)
		return nil, err
	}

	for _, row := range finance {
		if err := s.distributeOne(ctx, payment, row); err != nil {
			return nil, err
		}
	}

	return s.finishDistribution(payment, finance)
}

// distributeOne settles a single allocation row: no-op when already created,
// skipped when the recipient is not payout-enabled, otherwise an issued
// transfer recorded as created or failed.
func (s *Service) distributeOne(ctx context.Context, payment *models.MissionPayment, row models.MissionFinance) error {
	existing, err := s.repo.GetTransfer(payment.ID, row.RecipientProfileID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if existing != nil && existing.Status == models.TransferStatusCreated {
		// At most one successful issuance per recipient.
		return nil
	}

	profile, err := s.repo.GetProfile(row.RecipientProfileID)
	if err != nil {
		return err
	}
	if profile.StripeAccountID == nil || !profile.PayoutsEnabled {
		return s.recordTransfer(payment.ID, row, models.TransferStatusSkipped, "", "recipient payout account is not enabled")
	}

	return s.issueTransfer(ctx, payment, row, *profile.StripeAccountID, existing)
}

// issueTransfer calls the processor for one allocation. When a previous
// attempt ended in an unknown outcome (recorded as failed), the transfer
// group is checked first so the recipient can never be paid twice.
func (s *Service) issueTransfer(ctx context.Context, payment *models.MissionPayment, row models.MissionFinance, destination string, previous *models.MissionTransfer) error {
	group := transferGroup(payment.ID)

	if previous != nil && previous.Status == models.TransferStatusFailed {
		existing, err := s.client.ListTransfersByGroup(ctx, group, destination)
		if err != nil {
			log.Warnf("transfer recheck for payment %d profile %d failed: %v", payment.ID, row.RecipientProfileID, err)
		} else if len(existing) > 0 {
			return s.recordTransfer(payment.ID, row, models.TransferStatusCreated, existing[0].ID, "")
		}
	}

	transfer, err := s.client.CreateTransfer(ctx, stripe.TransferParams{
		Amount:         row.AllocatedAmount,
		Currency:       payment.Currency,
		Destination:    destination,
		TransferGroup:  group,
		Description:    fmt.Sprintf("mission %d payout (%s)", payment.MissionID, row.RecipientRole),
		IdempotencyKey: transferIdempotencyKey(payment.ID, row.RecipientProfileID),
	})
	if err != nil {
		log.Warnf("transfer for payment %d profile %d failed: %v", payment.ID, row.RecipientProfileID, err)
		return s.recordTransfer(payment.ID, row, models.TransferStatusFailed, "", err.Error())
	}
	return s.recordTransfer(payment.ID, row, models.TransferStatusCreated, transfer.ID, "")
}

func (s *Service) recordTransfer(paymentID uint, row models.MissionFinance, status, externalID, lastError string) error {
	return s.repo.UpsertTransfer(&models.MissionTransfer{
		MissionPaymentID:     paymentID,
		DestinationProfileID: row.RecipientProfileID,
		Status:               status,
		Amount:               row.AllocatedAmount,
		ExternalTransferID:   externalID,
		LastError:            lastError,
	})
}

// finishDistribution re-reads all transfer rows and promotes the payment to
// distributed only when every allocation has a created transfer. Counting is
// never incremental, so a lost update delays the transition instead of
// corrupting it.
func (s *Service) finishDistribution(payment *models.MissionPayment, finance []models.MissionFinance) (*DistributionResult, error) {
	transfers, err := s.repo.ListTransfersByPayment(payment.ID)
	if err != nil {
		return nil, err
	}

	byProfile := make(map[uint]models.MissionTransfer, len(transfers))
	for _, t := range transfers {
		byProfile[t.DestinationProfileID] = t
	}
	complete := true
	for _, row := range finance {
		t, ok := byProfile[row.RecipientProfileID]
		if !ok || t.Status != models.TransferStatusCreated {
			complete = false
			break
		}
	}

	if complete {
		now := time.Now()
		if _, err := s.repo.UpdatePaymentStatusIf(payment.ID, models.PaymentStatusReceived, models.PaymentStatusDistributed, map[string]interface{}{
			"distributed_at": &now,
		}); err != nil {
			return nil, err
		}
	}

	current, err := s.repo.GetPayment(payment.ID)
	if err != nil {
		return nil, err
	}
	return s.buildResult(current, transfers), nil
}

func (s *Service) buildResult(payment *models.MissionPayment, transfers []models.MissionTransfer) *DistributionResult {
	outcomes := make([]TransferOutcome, 0, len(transfers))
	for _, t := range transfers {
		outcomes = append(outcomes, TransferOutcome{
			ProfileID: t.DestinationProfileID,
			Amount:    t.Amount,
			Status:    t.Status,
			Error:     t.LastError,
		})
	}
	return &DistributionResult{
		PaymentID:     payment.ID,
		PaymentStatus: payment.Status,
		Transfers:     outcomes,
	}
}

// RetryTransfer re-drives a skipped or failed transfer for one recipient.
// Preconditions: the transfer is retryable, the recipient is now payout
// enabled, and no open dispute blocks the payment. The row is updated in
// place; a successful retry re-evaluates the distributed transition.
func (s *Service) RetryTransfer(ctx context.Context, paymentID, recipientProfileID uint) (*RetryResult, error) {
	payment, err := s.repo.GetPayment(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.Status != models.PaymentStatusReceived {
		return nil, fmt.Errorf("%w: payment %d is %s", ErrWrongState, paymentID, payment.Status)
	}

	transfer, err := s.repo.GetTransfer(paymentID, recipientProfileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotRetryable
		}
		return nil, err
	}
	if !transfer.Retryable() {
		return nil, ErrNotRetryable
	}

	blocked, err := s.repo.HasOpenDispute(paymentID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrDisputeOpen
	}

	profile, err := s.repo.GetProfile(recipientProfileID)
	if err != nil {
		return nil, err
	}
	if profile.StripeAccountID == nil || !profile.PayoutsEnabled {
		return nil, ErrRecipientNotEligible
	}

	finance, err := s.repo.ListFinanceByPayment(paymentID)
	if err != nil {
		return nil, err
	}
	var row *models.MissionFinance
	for i := range finance {
		if finance[i].RecipientProfileID == recipientProfileID {
			row = &finance[i]
			break
		}
	}
	if row == nil {
		return nil, fmt.Errorf("no allocation row for payment %d profile %d", paymentID, recipientProfileID)
	}
	if err := s.issueTransfer(ctx, payment, *row, *profile.StripeAccountID, transfer); err != nil {
		return nil, err
	}

	result, err := s.finishDistribution(payment, finance)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.GetTransfer(paymentID, recipientProfileID)
	if err != nil {
		return nil, err
	}
	return &RetryResult{
		TransferStatus: updated.Status,
		PaymentStatus:  result.PaymentStatus,
	}, nil
}

// ReleaseFunds runs distribution for the mission's current payment.
func (s *Service) ReleaseFunds(ctx context.Context, missionID uint) (*DistributionResult, error) {
	payment, err := s.repo.GetLatestPaymentByMission(missionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return s.Distribute(ctx, payment.ID)
}

// RefreshPaymentStatus builds the read-only projection a client sees for a
// mission's current payment.
func (s *Service) RefreshPaymentStatus(ctx context.Context, missionID uint) (*PaymentProjection, error) {
	_ = ctx
	payment, err := s.repo.GetLatestPaymentByMission(missionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &PaymentProjection{VisibleStatus: VisibleStatusUnpaid}, nil
		}
		return nil, err
	}

	transfers, err := s.repo.ListTransfersByPayment(payment.ID)
	if err != nil {
		return nil, err
	}

	projection := &PaymentProjection{
		Payment:       payment,
		Transfers:     transfers,
		VisibleStatus: visibleStatus(payment, transfers),
	}
	dispute, err := s.repo.GetOpenDisputeByPayment(payment.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if dispute != nil {
		projection.DisputeOpen = true
		projection.DisputeReason = dispute.Reason
	}
	return projection, nil
}

// OpenDispute freezes further distribution on a payment. Only one open
// dispute exists per payment at a time.
func (s *Service) OpenDispute(ctx context.Context, paymentID, openedBy uint, reason string) (*models.MissionDispute, error) {
	_ = ctx
	if reason == "" {
		return nil, errors.New("dispute reason is required")
	}
	payment, err := s.repo.GetPayment(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.Status == models.PaymentStatusUnpaid {
		return nil, fmt.Errorf("%w: nothing collected to dispute", ErrWrongState)
	}

	if existing, err := s.repo.GetOpenDisputeByPayment(paymentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	dispute := &models.MissionDispute{
		MissionPaymentID: paymentID,
		Status:           models.DisputeStatusOpen,
		Reason:           reason,
		OpenedByProfile:  openedBy,
	}
	if err := s.repo.CreateDispute(dispute); err != nil {
		return nil, err
	}
	return dispute, nil
}

// ResolveDispute lifts the gate with a resolved or rejected outcome. It
// never triggers retries by itself; a recipient or the sweeper re-invokes
// them explicitly.
func (s *Service) ResolveDispute(ctx context.Context, disputeID uint, outcome string) (*models.MissionDispute, error) {
	_ = ctx
	if outcome != models.DisputeStatusResolved && outcome != models.DisputeStatusRejected {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
	changed, err := s.repo.ResolveDispute(disputeID, outcome)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("%w: dispute %d is not open", ErrWrongState, disputeID)
	}
	return s.repo.GetDispute(disputeID)
}

// SweepRetryableTransfers re-drives transfers whose recipient became payout
// enabled since they were skipped or failed. Used by the background sweeper;
// per-candidate failures are logged, not fatal.
func (s *Service) SweepRetryableTransfers(ctx context.Context, limit int) (int, error) {
	candidates, err := s.repo.ListRetryCandidates(limit)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, c := range candidates {
		if _, err := s.RetryTransfer(ctx, c.PaymentID, c.ProfileID); err != nil {
			log.Warnf("sweep retry for payment %d profile %d: %v", c.PaymentID, c.ProfileID, err)
			continue
		}
		retried++
	}
	return retried, nil
}

func visibleStatus(payment *models.MissionPayment, transfers []models.MissionTransfer) string {
	switch payment.Status {
	case models.PaymentStatusUnpaid:
		return VisibleStatusUnpaid
	case models.PaymentStatusPending:
		return VisibleStatusPending
	case models.PaymentStatusDistributed:
		return VisibleStatusPaid
	case models.PaymentStatusErrored:
		return VisibleStatusError
	}
	for _, t := range transfers {
		if t.Retryable() {
			return VisibleStatusActionNeeded
		}
	}
	return VisibleStatusReceived
}

func transferGroup(paymentID uint) string {
	return fmt.Sprintf("mission_payment_%d", paymentID)
}

// transferIdempotencyKey is deterministic per (payment, recipient) so a
// redelivered instruction collapses at the processor as well.
func transferIdempotencyKey(paymentID, profileID uint) string {
	name := fmt.Sprintf("missionpay/transfer/%d/%d", paymentID, profileID)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func parseUintField(raw string) uint {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}
