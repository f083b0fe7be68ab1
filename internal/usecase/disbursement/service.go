package disbursement

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/giveharbor/giveharbor-backend/internal/domain"
	"github.com/giveharbor/giveharbor-backend/internal/usecase/allocator"
)

// CreateBulkDisbursementInput represents the input for a bulk disbursement run
type CreateBulkDisbursementInput struct {
	ActorID uuid.UUID
	Notes   string
}

// Service orchestrates disbursement batches: it is the only writer of
// batch rows, per-charity disbursement rows, and donation disbursement
// fields.
type Service struct {
	UnitOfWork domain.DisbursementUnitOfWork
	BatchRepo  domain.BatchRepository
	Logger     *zap.Logger
}

// NewService creates a new disbursement Service instance
func NewService(
	unitOfWork domain.DisbursementUnitOfWork,
	batchRepo domain.BatchRepository,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		UnitOfWork: unitOfWork,
		BatchRepo:  batchRepo,
		Logger:     logger,
	}
}

// CreateBulkDisbursement takes everything currently pending disbursement
// and splits it across verified charities by trust/activity weight.
// Logic (one atomic unit of work, guarded by the system-wide batch lock):
//  1. Claim all PENDING/PARTIAL donations and sum their remaining amounts
//     into the pool; an empty pool returns ErrNoPendingFunds untouched
//  2. Read the verified charity weight table; an empty table returns
//     ErrNoEligibleCharities and leaves funds pending
//  3. Run the allocation calculator and re-check conservation
//  4. Persist the batch audit record with the frozen weight snapshot,
//     one disbursement row per charity, and the updated donation rows
//
// Any failure rolls the whole transaction back: no batch row, no donation
// mutation, no partial state.
func (s *Service) CreateBulkDisbursement(ctx context.Context, input CreateBulkDisbursementInput) (uuid.UUID, error) {
	var batchID uuid.UUID

	err := s.UnitOfWork.WithinBatchLock(ctx, func(tx domain.DisbursementTx) error {
		donations, err := tx.ListUndisbursedDonationsForUpdate(ctx)
		if err != nil {
			return fmt.Errorf("failed to claim pending donations: %w", err)
		}

		var poolAmount int64
		for _, d := range donations {
			poolAmount += d.Remaining()
		}
		if poolAmount == 0 {
			return domain.ErrNoPendingFunds
		}

		charities, err := tx.ListVerifiedCharities(ctx)
		if err != nil {
			return fmt.Errorf("failed to read charity registry: %w", err)
		}
		if len(charities) == 0 {
			return domain.ErrNoEligibleCharities
		}

		weights := make([]domain.CharityWeight, len(charities))
		for i, c := range charities {
			weights[i] = domain.CharityWeight{
				CharityID:     c.ID,
				TrustRating:   c.TrustRating,
				ActivityScore: c.ActivityScore,
			}
		}

		allocations, err := allocator.Calculate(poolAmount, weights)
		if err != nil {
			return err
		}

		// Defensive re-check of the conservation invariant. The calculator
		// already guarantees this; if it ever breaks, abort before writing.
		var allocated int64
		for _, a := range allocations {
			allocated += a.Amount
		}
		if allocated != poolAmount {
			return fmt.Errorf("%w: allocated %d, pool %d", domain.ErrInvariantViolation, allocated, poolAmount)
		}

		snapshot, err := buildSnapshot(poolAmount, weights, allocations)
		if err != nil {
			return fmt.Errorf("failed to serialize calculation snapshot: %w", err)
		}

		batch := &domain.DisbursementBatch{
			ID:                  uuid.New(),
			BatchDate:           time.Now().UTC(),
			TotalAmount:         poolAmount,
			CharityCount:        len(charities),
			Status:              domain.BatchStatusCompleted,
			CalculationSnapshot: snapshot,
			CreatedBy:           input.ActorID,
			Notes:               input.Notes,
		}
		if err := batch.Validate(); err != nil {
			return err
		}
		if err := tx.InsertBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to insert disbursement batch: %w", err)
		}

		charityByID := make(map[uuid.UUID]*domain.Charity, len(charities))
		for _, c := range charities {
			charityByID[c.ID] = c
		}

		rows := make([]*domain.BatchDisbursement, len(allocations))
		for i, a := range allocations {
			c := charityByID[a.CharityID]
			rows[i] = &domain.BatchDisbursement{
				ID:                   uuid.New(),
				BatchID:              batch.ID,
				CharityID:            a.CharityID,
				Amount:               a.Amount,
				AllocationPercentage: a.AllocationPercentage,
				TrustRatingAtTime:    c.TrustRating,
				ActivityScoreAtTime:  c.ActivityScore,
			}
		}
		if err := tx.InsertBatchDisbursements(ctx, rows); err != nil {
			return fmt.Errorf("failed to insert batch disbursements: %w", err)
		}

		touched, err := attributeAllocations(donations, allocations)
		if err != nil {
			return err
		}
		for _, d := range touched {
			if err := tx.UpdateDonationDisbursement(ctx, d); err != nil {
				return fmt.Errorf("failed to update donation %s: %w", d.ID, err)
			}
		}

		batchID = batch.ID
		s.Logger.Info("disbursement batch created",
			zap.String("batch_id", batch.ID.String()),
			zap.Int64("pool_amount", poolAmount),
			zap.Int("charity_count", len(charities)),
			zap.Int("donations_touched", len(touched)),
			zap.String("created_by", input.ActorID.String()),
		)
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	return batchID, nil
}

// attributeAllocations spreads each charity's lump allocation across the
// claimed donations so every disbursed minor unit traces back to a
// donation. Order is deterministic: charities by ascending ID; within a
// charity, donations designated to it first, then undesignated, then
// anything still open, each group oldest first.
func attributeAllocations(donations []*domain.Donation, allocations []allocator.Allocation) ([]*domain.Donation, error) {
	ordered := make([]*domain.Donation, len(donations))
	copy(ordered, donations)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return strings.Compare(ordered[i].ID.String(), ordered[j].ID.String()) < 0
	})

	sortedAllocs := make([]allocator.Allocation, len(allocations))
	copy(sortedAllocs, allocations)
	sort.Slice(sortedAllocs, func(i, j int) bool {
		return strings.Compare(sortedAllocs[i].CharityID.String(), sortedAllocs[j].CharityID.String()) < 0
	})

	touched := make(map[uuid.UUID]*domain.Donation)

	for _, alloc := range sortedAllocs {
		remaining := alloc.Amount

		for pass := 0; pass < 3 && remaining > 0; pass++ {
			for _, d := range ordered {
				if remaining == 0 {
					break
				}
				if d.Remaining() == 0 {
					continue
				}
				switch pass {
				case 0: // donations designated to this charity
					if d.CharityID == nil || *d.CharityID != alloc.CharityID {
						continue
					}
				case 1: // undesignated donations
					if d.CharityID != nil {
						continue
					}
				}

				take := d.Remaining()
				if take > remaining {
					take = remaining
				}
				if err := d.ApplyDisbursement(take); err != nil {
					return nil, fmt.Errorf("%w: %v", domain.ErrInvariantViolation, err)
				}
				remaining -= take
				touched[d.ID] = d
			}
		}

		if remaining > 0 {
			return nil, fmt.Errorf("%w: charity %s allocation has %d minor units unattributed",
				domain.ErrInvariantViolation, alloc.CharityID, remaining)
		}
	}

	result := make([]*domain.Donation, 0, len(touched))
	for _, d := range ordered {
		if _, ok := touched[d.ID]; ok {
			result = append(result, d)
		}
	}
	return result, nil
}

func buildSnapshot(poolAmount int64, weights []domain.CharityWeight, allocations []allocator.Allocation) (json.RawMessage, error) {
	amountByCharity := make(map[uuid.UUID]allocator.Allocation, len(allocations))
	for _, a := range allocations {
		amountByCharity[a.CharityID] = a
	}

	snapshot := domain.CalculationSnapshot{
		PoolAmount: poolAmount,
		Entries:    make([]domain.CalculationSnapshotEntry, len(weights)),
	}
	for i, w := range weights {
		a := amountByCharity[w.CharityID]
		snapshot.TotalWeight = snapshot.TotalWeight.Add(a.Weight)
		snapshot.Entries[i] = domain.CalculationSnapshotEntry{
			CharityID:            w.CharityID,
			TrustRating:          w.TrustRating,
			ActivityScore:        w.ActivityScore,
			Weight:               a.Weight,
			Amount:               a.Amount,
			AllocationPercentage: a.AllocationPercentage,
		}
	}

	return json.Marshal(snapshot)
}
