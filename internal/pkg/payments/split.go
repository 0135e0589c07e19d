package payments

import (
	"fmt"
	"strconv"

	"github.com/MarcReynaud/MissionPay/app/models"
	"github.com/MarcReynaud/MissionPay/internal/pkg/env"
)

// Default recipient shares in percent. The platform retains whatever the
// floor-divided allocations leave over, so rounding loss always lands on the
// platform remainder, never on a recipient.
const (
	defaultWorkerSharePercent       = 85
	defaultIntermediarySharePercent = 5
)

// Allocation is one recipient's computed share of a gross amount.
type Allocation struct {
	ProfileID uint
	Role      string
	Amount    int64
}

// SharePercents reads the configured recipient shares.
func SharePercents() (worker, intermediary int64) {
	worker = envPercent("WORKER_SHARE_PERCENT", defaultWorkerSharePercent)
	intermediary = envPercent("INTERMEDIARY_SHARE_PERCENT", defaultIntermediarySharePercent)
	return worker, intermediary
}

func envPercent(key string, def int64) int64 {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 || v > 100 {
		return def
	}
	return v
}

// ComputeSplit produces the allocation plan for a gross amount in minor
// units. Shares are floor-divided; the remainder stays with the platform.
func ComputeSplit(gross int64, workerProfileID uint, workerPct int64, intermediaryProfileID *uint, intermediaryPct int64) ([]Allocation, error) {
	if gross <= 0 {
		return nil, fmt.Errorf("%w: gross amount must be positive, got %d", ErrInvalidSplit, gross)
	}
	if workerProfileID == 0 {
		return nil, fmt.Errorf("%w: worker profile is required", ErrInvalidSplit)
	}
	total := workerPct
	if intermediaryProfileID != nil {
		total += intermediaryPct
	}
	if workerPct <= 0 || total > 100 {
		return nil, fmt.Errorf("%w: shares %d+%d exceed 100%%", ErrInvalidSplit, workerPct, intermediaryPct)
	}

	allocations := []Allocation{{
		ProfileID: workerProfileID,
		Role:      models.RecipientRoleWorker,
		Amount:    gross * workerPct / 100,
	}}
	if intermediaryProfileID != nil && intermediaryPct > 0 {
		allocations = append(allocations, Allocation{
			ProfileID: *intermediaryProfileID,
			Role:      models.RecipientRoleIntermediary,
			Amount:    gross * intermediaryPct / 100,
		})
	}
	return allocations, nil
}

// ValidateSplit checks an allocation plan against the collected gross: every
// allocation positive, distinct recipients, and the sum never above gross.
// The platform remainder is gross minus the sum.
func ValidateSplit(gross int64, rows []models.MissionFinance) error {
	if len(rows) == 0 {
		return fmt.Errorf("%w: no allocation rows", ErrInvalidSplit)
	}
	seen := make(map[uint]struct{}, len(rows))
	var sum int64
	for _, row := range rows {
		if row.AllocatedAmount <= 0 {
			return fmt.Errorf("%w: allocation %d for profile %d is not positive", ErrInvalidSplit, row.AllocatedAmount, row.RecipientProfileID)
		}
		if _, dup := seen[row.RecipientProfileID]; dup {
			return fmt.Errorf("%w: duplicate allocation for profile %d", ErrInvalidSplit, row.RecipientProfileID)
		}
		seen[row.RecipientProfileID] = struct{}{}
		sum += row.AllocatedAmount
	}
	if sum > gross {
		return fmt.Errorf("%w: allocations %d exceed gross %d", ErrInvalidSplit, sum, gross)
	}
	return nil
}

// PlatformRemainder is the amount the platform retains after all recipient
// allocations.
func PlatformRemainder(gross int64, rows []models.MissionFinance) int64 {
	remainder := gross
	for _, row := range rows {
		remainder -= row.AllocatedAmount
	}
	return remainder
}
