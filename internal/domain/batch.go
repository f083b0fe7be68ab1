package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchStatus represents the processing state of a disbursement batch
type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusCompleted  BatchStatus = "COMPLETED"
	BatchStatusFailed     BatchStatus = "FAILED"
)

// DisbursementBatch is the audit record of one allocation run.
// Immutable once Status reaches COMPLETED: replaying CalculationSnapshot
// must reproduce the exact per-charity amounts.
type DisbursementBatch struct {
	ID                  uuid.UUID
	BatchDate           time.Time
	TotalAmount         int64 // minor units distributed in this run
	CharityCount        int
	Status              BatchStatus
	CalculationSnapshot json.RawMessage // weight table frozen at calculation time
	CreatedBy           uuid.UUID
	Notes               string
}

// Validate ensures the batch adheres to domain rules
// Returns an error if validation fails
func (b *DisbursementBatch) Validate() error {
	if b.TotalAmount < 0 {
		return errors.New("batch total amount cannot be negative")
	}

	if b.CharityCount < 0 {
		return errors.New("batch charity count cannot be negative")
	}

	switch b.Status {
	case BatchStatusProcessing, BatchStatusCompleted, BatchStatusFailed:
	default:
		return errors.New("batch status must be PROCESSING, COMPLETED, or FAILED")
	}

	return nil
}

// BatchDisbursement is one charity's share of one batch. Trust and
// activity values are copied from the charity at computation time and
// never updated afterward, so historical batches do not drift when live
// charity data changes.
type BatchDisbursement struct {
	ID                   uuid.UUID
	BatchID              uuid.UUID
	CharityID            uuid.UUID
	Amount               int64 // minor units
	AllocationPercentage decimal.Decimal
	TrustRatingAtTime    decimal.Decimal
	ActivityScoreAtTime  int
}

// CalculationSnapshot is the serialized weight table stored on a batch.
type CalculationSnapshot struct {
	PoolAmount  int64                      `json:"pool_amount"`
	TotalWeight decimal.Decimal            `json:"total_weight"`
	Entries     []CalculationSnapshotEntry `json:"entries"`
}

// CalculationSnapshotEntry captures everything needed to replay one
// charity's share of the run.
type CalculationSnapshotEntry struct {
	CharityID            uuid.UUID       `json:"charity_id"`
	TrustRating          decimal.Decimal `json:"trust_rating"`
	ActivityScore        int             `json:"activity_score"`
	Weight               decimal.Decimal `json:"weight"`
	Amount               int64           `json:"amount"`
	AllocationPercentage decimal.Decimal `json:"allocation_percentage"`
}
