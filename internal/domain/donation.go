package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DisbursementStatus represents how much of a donation has been paid out
type DisbursementStatus string

const (
	DisbursementStatusPending   DisbursementStatus = "PENDING"
	DisbursementStatusPartial   DisbursementStatus = "PARTIAL"
	DisbursementStatusCompleted DisbursementStatus = "COMPLETED"
)

// Donation represents a completed donation awaiting disbursement.
// Amounts are integer minor currency units; no floating point is ever
// persisted for money.
//
// Payment capture creates donations (external); the batch orchestrator is
// the only writer of DisbursedAmount and Status afterward.
type Donation struct {
	ID              uuid.UUID
	Amount          int64
	DisbursedAmount int64
	Status          DisbursementStatus
	CharityID       *uuid.UUID // nil for pooled/undesignated donations
	CreatedAt       time.Time
}

// Remaining returns the undisbursed portion of the donation.
func (d *Donation) Remaining() int64 {
	return d.Amount - d.DisbursedAmount
}

// ApplyDisbursement increases DisbursedAmount by n and recomputes Status.
// DisbursedAmount is monotonically non-decreasing: n must be non-negative
// and must not exceed the remaining amount.
func (d *Donation) ApplyDisbursement(n int64) error {
	if n < 0 {
		return errors.New("disbursement amount cannot be negative")
	}
	if n > d.Remaining() {
		return fmt.Errorf("disbursement amount %d exceeds remaining %d on donation %s", n, d.Remaining(), d.ID)
	}

	d.DisbursedAmount += n

	switch {
	case d.DisbursedAmount == d.Amount:
		d.Status = DisbursementStatusCompleted
	case d.DisbursedAmount > 0:
		d.Status = DisbursementStatusPartial
	default:
		d.Status = DisbursementStatusPending
	}

	return nil
}

// Validate ensures the donation adheres to domain rules
// Returns an error if validation fails
func (d *Donation) Validate() error {
	if d.Amount < 0 {
		return errors.New("donation amount cannot be negative")
	}

	if d.DisbursedAmount < 0 || d.DisbursedAmount > d.Amount {
		return errors.New("disbursed amount must be between 0 and the donation amount")
	}

	switch d.Status {
	case DisbursementStatusPending, DisbursementStatusPartial, DisbursementStatusCompleted:
	default:
		return errors.New("disbursement status must be PENDING, PARTIAL, or COMPLETED")
	}

	return nil
}
