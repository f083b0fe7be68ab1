package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/giveharbor/giveharbor-backend/internal/domain"
)

// donationRepository implements domain.DonationRepository
type donationRepository struct {
	db *DB
}

// NewDonationRepository creates a new donation repository
func NewDonationRepository(db *DB) domain.DonationRepository {
	return &donationRepository{db: db}
}

const listUndisbursedQuery = `
	SELECT id, amount, disbursed_amount, disbursement_status, charity_id, created_at
	FROM donations
	WHERE disbursement_status IN ('PENDING', 'PARTIAL')
	ORDER BY created_at ASC, id ASC
`

// ListUndisbursed retrieves donations with status PENDING or PARTIAL,
// oldest first. Read-only dashboard path; batch claiming locks rows via
// the disbursement transaction instead.
func (r *donationRepository) ListUndisbursed(ctx context.Context) ([]*domain.Donation, error) {
	rows, err := r.db.QueryContext(ctx, listUndisbursedQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query undisbursed donations: %w", err)
	}
	defer rows.Close()

	return scanDonations(rows)
}

// scanDonations scans donation rows; shared with the disbursement
// transaction's locked ledger read.
func scanDonations(rows *sql.Rows) ([]*domain.Donation, error) {
	var donations []*domain.Donation
	for rows.Next() {
		var donation domain.Donation
		var charityID sql.NullString

		err := rows.Scan(
			&donation.ID,
			&donation.Amount,
			&donation.DisbursedAmount,
			&donation.Status,
			&charityID,
			&donation.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donation: %w", err)
		}

		if charityID.Valid {
			parsed, err := uuid.Parse(charityID.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse donation charity_id: %w", err)
			}
			donation.CharityID = &parsed
		}

		donations = append(donations, &donation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating donations: %w", err)
	}

	return donations, nil
}
