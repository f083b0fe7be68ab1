package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giveharbor/giveharbor-backend/internal/domain"
)

// batchRepository implements domain.BatchRepository
type batchRepository struct {
	db *DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *DB) domain.BatchRepository {
	return &batchRepository{db: db}
}

// List retrieves a paginated list of batches, newest first
func (r *batchRepository) List(ctx context.Context, limit, offset int) ([]*domain.DisbursementBatch, error) {
	query := `
		SELECT id, batch_date, total_amount, charity_count, status,
		       calculation_snapshot, created_by, notes
		FROM disbursement_batches
		ORDER BY batch_date DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query disbursement batches: %w", err)
	}
	defer rows.Close()

	var batches []*domain.DisbursementBatch
	for rows.Next() {
		batch, err := scanBatch(rows.Scan)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating disbursement batches: %w", err)
	}

	return batches, nil
}

// Count returns the total number of batches
func (r *batchRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM disbursement_batches`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count disbursement batches: %w", err)
	}
	return count, nil
}

// GetByID retrieves a single batch by its ID
func (r *batchRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DisbursementBatch, error) {
	query := `
		SELECT id, batch_date, total_amount, charity_count, status,
		       calculation_snapshot, created_by, notes
		FROM disbursement_batches
		WHERE id = $1
	`

	batch, err := scanBatch(func(dest ...any) error {
		return r.db.QueryRowContext(ctx, query, id).Scan(dest...)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("disbursement batch not found: %w", err)
		}
		return nil, err
	}

	return batch, nil
}

// ListDisbursements retrieves the per-charity rows of a batch. The stored
// trust/activity snapshot columns are returned as committed; live charity
// data is never joined in.
func (r *batchRepository) ListDisbursements(ctx context.Context, batchID uuid.UUID) ([]*domain.BatchDisbursement, error) {
	query := `
		SELECT id, batch_id, charity_id, amount, allocation_percentage,
		       trust_rating_at_time, activity_score_at_time
		FROM batch_disbursements
		WHERE batch_id = $1
		ORDER BY charity_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch disbursements: %w", err)
	}
	defer rows.Close()

	var disbursements []*domain.BatchDisbursement
	for rows.Next() {
		var row domain.BatchDisbursement
		var percentageStr, trustStr string

		err := rows.Scan(
			&row.ID,
			&row.BatchID,
			&row.CharityID,
			&row.Amount,
			&percentageStr,
			&trustStr,
			&row.ActivityScoreAtTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch disbursement: %w", err)
		}

		percentage, err := decimal.NewFromString(percentageStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse allocation_percentage: %w", err)
		}
		row.AllocationPercentage = percentage

		trust, err := decimal.NewFromString(trustStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse trust_rating_at_time: %w", err)
		}
		row.TrustRatingAtTime = trust

		disbursements = append(disbursements, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch disbursements: %w", err)
	}

	return disbursements, nil
}

// scanBatch scans one batch row via the given scan function (works for
// both sql.Rows and sql.Row).
func scanBatch(scan func(dest ...any) error) (*domain.DisbursementBatch, error) {
	var batch domain.DisbursementBatch
	var snapshot []byte

	err := scan(
		&batch.ID,
		&batch.BatchDate,
		&batch.TotalAmount,
		&batch.CharityCount,
		&batch.Status,
		&snapshot,
		&batch.CreatedBy,
		&batch.Notes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan disbursement batch: %w", err)
	}

	batch.CalculationSnapshot = snapshot
	return &batch, nil
}
