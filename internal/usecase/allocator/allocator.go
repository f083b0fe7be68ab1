package allocator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giveharbor/giveharbor-backend/internal/domain"
)

// Allocation is one charity's share of a pool split.
type Allocation struct {
	CharityID            uuid.UUID
	Weight               decimal.Decimal
	Amount               int64 // minor units
	AllocationPercentage decimal.Decimal
}

// Calculate splits poolAmount (integer minor units) across charities in
// proportion to their trust/activity weights.
// Logic:
//  1. weight = trustRating * (1 + activityScore/100) per charity
//  2. Empty charity list or zero pool returns an empty allocation (a valid
//     "nothing to do" result, not an error)
//  3. All-zero weights fall back to an equal split so the run still makes progress
//  4. Floor each ideal share, then hand the flooring leftover out one minor
//     unit at a time to the largest fractional remainders, ties broken by
//     ascending charity ID (largest-remainder method)
//
// Safety: Ensures the allocated amounts sum to poolAmount exactly (no minor
// unit created or destroyed by rounding). Deterministic: identical inputs
// produce identical outputs, including the tie-break order.
func Calculate(poolAmount int64, charities []domain.CharityWeight) ([]Allocation, error) {
	if poolAmount < 0 {
		return nil, errors.New("pool amount cannot be negative")
	}

	if poolAmount == 0 || len(charities) == 0 {
		return []Allocation{}, nil
	}

	// Compute raw weights
	weights := make([]decimal.Decimal, len(charities))
	totalWeight := decimal.Zero
	for i, c := range charities {
		weights[i] = c.Weight()
		totalWeight = totalWeight.Add(weights[i])
	}

	// Equal-split fallback when every weight is zero
	if totalWeight.IsZero() {
		one := decimal.NewFromInt(1)
		for i := range weights {
			weights[i] = one
		}
		totalWeight = decimal.NewFromInt(int64(len(charities)))
	}

	// Floor each ideal share and keep the fractional remainder
	pool := decimal.NewFromInt(poolAmount)
	amounts := make([]int64, len(charities))
	fracs := make([]decimal.Decimal, len(charities))

	var flooredSum int64
	for i := range charities {
		ideal := pool.Mul(weights[i]).Div(totalWeight)
		floored := ideal.Floor()
		amounts[i] = floored.IntPart()
		fracs[i] = ideal.Sub(floored)
		flooredSum += amounts[i]
	}

	// Hand the flooring leftover to the largest fractional remainders,
	// ties broken by ascending charity ID for determinism
	leftover := poolAmount - flooredSum
	if leftover < 0 {
		return nil, fmt.Errorf("%w: floored shares sum %d exceeds pool %d",
			domain.ErrInvariantViolation, flooredSum, poolAmount)
	}

	order := make([]int, len(charities))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if !fracs[i].Equal(fracs[j]) {
			return fracs[i].GreaterThan(fracs[j])
		}
		return strings.Compare(charities[i].CharityID.String(), charities[j].CharityID.String()) < 0
	})

	for k := int64(0); k < leftover; k++ {
		amounts[order[int(k)%len(order)]]++
	}

	// Safety check: the core financial invariant
	var totalAllocated int64
	for _, amount := range amounts {
		totalAllocated += amount
	}
	if totalAllocated != poolAmount {
		return nil, fmt.Errorf("%w: allocated %d, pool %d",
			domain.ErrInvariantViolation, totalAllocated, poolAmount)
	}

	hundred := decimal.NewFromInt(100)
	allocations := make([]Allocation, len(charities))
	for i, c := range charities {
		allocations[i] = Allocation{
			CharityID:            c.CharityID,
			Weight:               weights[i],
			Amount:               amounts[i],
			AllocationPercentage: decimal.NewFromInt(amounts[i]).Mul(hundred).Div(pool).Round(4),
		}
	}

	return allocations, nil
}
