package domain

import (
	"context"

	"github.com/google/uuid"
)

// CharityRepository defines the read-only charity registry view used by
// the disbursement engine
type CharityRepository interface {
	// ListVerified retrieves all verified charities with their current
	// trust rating and activity score. The missing-data defaults
	// (trust rating 5.0, activity score 0) are applied here, not by
	// callers.
	ListVerified(ctx context.Context) ([]*Charity, error)
}

// DonationRepository defines the read path over the pending donation
// ledger (dashboard queries). Donation claiming for a batch happens
// inside DisbursementTx, never here.
type DonationRepository interface {
	// ListUndisbursed retrieves donations with status PENDING or PARTIAL,
	// oldest first.
	ListUndisbursed(ctx context.Context) ([]*Donation, error)
}

// BatchRepository defines the read path for historical disbursement
// batches and their per-charity breakdown
type BatchRepository interface {
	// List retrieves a paginated list of batches, newest first
	List(ctx context.Context, limit, offset int) ([]*DisbursementBatch, error)

	// Count returns the total number of batches
	Count(ctx context.Context) (int, error)

	// GetByID retrieves a single batch by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*DisbursementBatch, error)

	// ListDisbursements retrieves the per-charity rows of a batch,
	// exactly as committed (stored snapshot values, never live data)
	ListDisbursements(ctx context.Context, batchID uuid.UUID) ([]*BatchDisbursement, error)
}

// DisbursementTx is the set of operations available inside one atomic
// disbursement run. Implementations back every method with the same
// storage transaction.
type DisbursementTx interface {
	// ListUndisbursedDonationsForUpdate selects PENDING/PARTIAL donations
	// oldest first and locks them against concurrent writers for the
	// duration of the transaction.
	ListUndisbursedDonationsForUpdate(ctx context.Context) ([]*Donation, error)

	// ListVerifiedCharities reads the charity weight table atomically with
	// the donation claim.
	ListVerifiedCharities(ctx context.Context) ([]*Charity, error)

	// InsertBatch persists the batch audit record.
	InsertBatch(ctx context.Context, batch *DisbursementBatch) error

	// InsertBatchDisbursements persists the per-charity rows.
	InsertBatchDisbursements(ctx context.Context, disbursements []*BatchDisbursement) error

	// UpdateDonationDisbursement persists a donation's new disbursed
	// amount and status.
	UpdateDonationDisbursement(ctx context.Context, donation *Donation) error
}

// DisbursementUnitOfWork runs a disbursement under the system-wide batch
// lock inside a single serializable transaction. If another run holds the
// lock it fails fast with ErrConcurrentBatchInProgress. Any error from fn
// rolls the whole transaction back.
type DisbursementUnitOfWork interface {
	WithinBatchLock(ctx context.Context, fn func(tx DisbursementTx) error) error
}
