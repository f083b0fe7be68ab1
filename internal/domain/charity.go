package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultTrustRating is applied when a charity has no trust rating recorded.
// The fallback lives in the registry read path so that every consumer of
// charity weights sees the same policy.
var DefaultTrustRating = decimal.NewFromInt(5)

// Charity represents a charity entity in the domain layer.
// Read-only to the disbursement engine; mutated by charity-management
// workflows elsewhere.
type Charity struct {
	ID               uuid.UUID
	Name             string
	Verified         bool
	TrustRating      decimal.Decimal // 0..10
	ActivityScore    int             // 0..100
	LastActivityDate *time.Time
}

// Validate ensures the charity adheres to domain rules
// Returns an error if validation fails
func (c *Charity) Validate() error {
	if c.Name == "" {
		return errors.New("charity name cannot be empty")
	}

	if c.TrustRating.LessThan(decimal.Zero) || c.TrustRating.GreaterThan(decimal.NewFromInt(10)) {
		return errors.New("charity trust rating must be between 0 and 10")
	}

	if c.ActivityScore < 0 || c.ActivityScore > 100 {
		return errors.New("charity activity score must be between 0 and 100")
	}

	return nil
}

// CharityWeight is the slice of charity state the allocation calculator
// needs: identity plus the two scoring inputs, frozen at read time.
type CharityWeight struct {
	CharityID     uuid.UUID
	TrustRating   decimal.Decimal
	ActivityScore int
}

// Weight computes the allocation weight: trustRating * (1 + activityScore/100).
func (w CharityWeight) Weight() decimal.Decimal {
	activityFactor := decimal.NewFromInt(1).Add(
		decimal.NewFromInt(int64(w.ActivityScore)).Div(decimal.NewFromInt(100)),
	)
	return w.TrustRating.Mul(activityFactor)
}
