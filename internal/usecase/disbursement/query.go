package disbursement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/giveharbor/giveharbor-backend/internal/domain"
)

// BatchPage is a page of historical batches plus the total count for
// pagination.
type BatchPage struct {
	Batches    []*domain.DisbursementBatch
	TotalCount int
}

// BatchDetail is one batch with its per-charity breakdown, exactly as
// committed. The snapshot values stored at calculation time are returned
// verbatim; live charity data is never substituted.
type BatchDetail struct {
	Batch         *domain.DisbursementBatch
	Disbursements []*domain.BatchDisbursement
}

// ListBatches retrieves a paginated list of historical batches, newest first.
func (s *Service) ListBatches(ctx context.Context, limit, offset int) (*BatchPage, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	if offset < 0 {
		return nil, errors.New("offset must be non-negative")
	}

	totalCount, err := s.BatchRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count batches: %w", err)
	}

	batches, err := s.BatchRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	return &BatchPage{Batches: batches, TotalCount: totalCount}, nil
}

// GetBatchDetail retrieves a single batch and its per-charity rows.
func (s *Service) GetBatchDetail(ctx context.Context, batchID uuid.UUID) (*BatchDetail, error) {
	batch, err := s.BatchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	disbursements, err := s.BatchRepo.ListDisbursements(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch disbursements: %w", err)
	}

	return &BatchDetail{Batch: batch, Disbursements: disbursements}, nil
}
