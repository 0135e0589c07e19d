package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileIsPremium(t *testing.T) {
	active := SubscriptionStatusActive
	trialing := SubscriptionStatusTrialing
	pastDue := SubscriptionStatusPastDue

	assert.False(t, (&Profile{}).IsPremium(), "no subscription means no premium")
	assert.True(t, (&Profile{SubscriptionStatus: &active}).IsPremium())
	assert.True(t, (&Profile{SubscriptionStatus: &trialing}).IsPremium())
	assert.False(t, (&Profile{SubscriptionStatus: &pastDue}).IsPremium())
}

func TestProfileOutstandingRequirements(t *testing.T) {
	p := &Profile{}
	assert.Nil(t, p.OutstandingRequirements())

	p.SetOutstandingRequirements([]string{"individual.dob", "external_account"})
	assert.Equal(t, []string{"individual.dob", "external_account"}, p.OutstandingRequirements())

	p.SetOutstandingRequirements(nil)
	assert.Empty(t, p.RequirementsJSON)
	assert.Nil(t, p.OutstandingRequirements())

	p.RequirementsJSON = "not json"
	assert.Nil(t, p.OutstandingRequirements())
}

func TestMissionPaymentIsTerminal(t *testing.T) {
	assert.False(t, (&MissionPayment{Status: PaymentStatusPending}).IsTerminal())
	assert.False(t, (&MissionPayment{Status: PaymentStatusReceived}).IsTerminal())
	assert.True(t, (&MissionPayment{Status: PaymentStatusDistributed}).IsTerminal())
	assert.True(t, (&MissionPayment{Status: PaymentStatusErrored}).IsTerminal())
}

func TestMissionTransferRetryable(t *testing.T) {
	assert.True(t, (&MissionTransfer{Status: TransferStatusSkipped}).Retryable())
	assert.True(t, (&MissionTransfer{Status: TransferStatusFailed}).Retryable())
	assert.False(t, (&MissionTransfer{Status: TransferStatusCreated}).Retryable())
	assert.False(t, (&MissionTransfer{Status: TransferStatusPending}).Retryable())
}
