package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/giveharbor/giveharbor-backend/internal/domain"
)

// disbursementLockKey is the advisory lock key for "disbursement batch in
// progress". Session-independent and storage-level, so the single-run
// guarantee holds across multiple service instances.
const disbursementLockKey int64 = 0x6448_4152_424F_5221

// pq error codes that mean the transaction was aborted and is safe to retry.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// disbursementUnitOfWork implements domain.DisbursementUnitOfWork on a
// single serializable Postgres transaction.
type disbursementUnitOfWork struct {
	db *DB
}

// NewDisbursementUnitOfWork creates a new disbursement unit of work
func NewDisbursementUnitOfWork(db *DB) domain.DisbursementUnitOfWork {
	return &disbursementUnitOfWork{db: db}
}

// WithinBatchLock opens a serializable transaction, takes the batch
// advisory lock (failing fast with ErrConcurrentBatchInProgress if another
// run holds it), runs fn, and commits. Any error from fn rolls everything
// back: no batch row, no donation mutation, no partial state.
func (u *disbursementUnitOfWork) WithinBatchLock(ctx context.Context, fn func(tx domain.DisbursementTx) error) error {
	dbTx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin disbursement transaction: %w", mapStorageError(err))
	}
	defer dbTx.Rollback()

	// pg_try_advisory_xact_lock returns immediately; the lock is released
	// automatically on commit or rollback.
	var locked bool
	if err := dbTx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock($1)`, disbursementLockKey).Scan(&locked); err != nil {
		return fmt.Errorf("failed to acquire batch lock: %w", mapStorageError(err))
	}
	if !locked {
		return domain.ErrConcurrentBatchInProgress
	}

	if err := fn(&disbursementTx{tx: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit disbursement transaction: %w", mapStorageError(err))
	}

	return nil
}

// disbursementTx implements domain.DisbursementTx over one *sql.Tx.
type disbursementTx struct {
	tx *sql.Tx
}

// ListUndisbursedDonationsForUpdate selects PENDING/PARTIAL donations
// oldest first and locks the rows for the duration of the transaction, so
// no concurrent writer can claim the same remaining amounts.
func (t *disbursementTx) ListUndisbursedDonationsForUpdate(ctx context.Context) ([]*domain.Donation, error) {
	query := listUndisbursedQuery + ` FOR UPDATE`

	rows, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to lock undisbursed donations: %w", mapStorageError(err))
	}
	defer rows.Close()

	return scanDonations(rows)
}

// ListVerifiedCharities reads the weight table inside the same
// transaction as the donation claim, so no charity mutation can interleave
// with the snapshot.
func (t *disbursementTx) ListVerifiedCharities(ctx context.Context) ([]*domain.Charity, error) {
	rows, err := t.tx.QueryContext(ctx, listVerifiedCharitiesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query verified charities: %w", mapStorageError(err))
	}
	defer rows.Close()

	return scanCharities(rows)
}

// InsertBatch persists the batch audit record
func (t *disbursementTx) InsertBatch(ctx context.Context, batch *domain.DisbursementBatch) error {
	query := `
		INSERT INTO disbursement_batches
			(id, batch_date, total_amount, charity_count, status, calculation_snapshot, created_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := t.tx.ExecContext(ctx, query,
		batch.ID,
		batch.BatchDate,
		batch.TotalAmount,
		batch.CharityCount,
		string(batch.Status),
		[]byte(batch.CalculationSnapshot),
		batch.CreatedBy,
		batch.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert disbursement batch: %w", mapStorageError(err))
	}

	return nil
}

// InsertBatchDisbursements persists the per-charity rows
func (t *disbursementTx) InsertBatchDisbursements(ctx context.Context, disbursements []*domain.BatchDisbursement) error {
	query := `
		INSERT INTO batch_disbursements
			(id, batch_id, charity_id, amount, allocation_percentage, trust_rating_at_time, activity_score_at_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, row := range disbursements {
		_, err := t.tx.ExecContext(ctx, query,
			row.ID,
			row.BatchID,
			row.CharityID,
			row.Amount,
			row.AllocationPercentage.String(),
			row.TrustRatingAtTime.String(),
			row.ActivityScoreAtTime,
		)
		if err != nil {
			return fmt.Errorf("failed to insert batch disbursement: %w", mapStorageError(err))
		}
	}

	return nil
}

// UpdateDonationDisbursement persists a donation's new disbursed amount
// and status. The WHERE guard enforces monotonicity at the storage level
// as well: a disbursed amount can never be lowered.
func (t *disbursementTx) UpdateDonationDisbursement(ctx context.Context, donation *domain.Donation) error {
	query := `
		UPDATE donations
		SET disbursed_amount = $2, disbursement_status = $3
		WHERE id = $1 AND disbursed_amount <= $2
	`

	result, err := t.tx.ExecContext(ctx, query,
		donation.ID,
		donation.DisbursedAmount,
		string(donation.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to update donation disbursement: %w", mapStorageError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("%w: donation %s disbursement update affected %d rows",
			domain.ErrTransactionAborted, donation.ID, affected)
	}

	return nil
}

// mapStorageError translates driver and context failures into the domain's
// retryable error kinds.
func mapStorageError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrStorageTimeout, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%w: %v", domain.ErrTransactionAborted, err)
		case pqLockNotAvailable:
			return fmt.Errorf("%w: %v", domain.ErrConcurrentBatchInProgress, err)
		}
	}

	return err
}
