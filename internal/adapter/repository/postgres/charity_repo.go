package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/giveharbor/giveharbor-backend/internal/domain"
)

// charityRepository implements domain.CharityRepository
type charityRepository struct {
	db *DB
}

// NewCharityRepository creates a new charity repository
func NewCharityRepository(db *DB) domain.CharityRepository {
	return &charityRepository{db: db}
}

// listVerifiedCharitiesQuery centralizes the missing-data policy: a
// charity without a recorded trust rating counts as 5.0, one without an
// activity score counts as 0. Every weight-table read goes through this
// query so the engine and the dashboards can never diverge on defaults.
const listVerifiedCharitiesQuery = `
	SELECT id, name, verified,
	       COALESCE(trust_rating, 5.0),
	       COALESCE(activity_score, 0),
	       last_activity_date
	FROM charities
	WHERE verified = true
	ORDER BY id
`

// ListVerified retrieves all verified charities with their current trust
// rating and activity score
func (r *charityRepository) ListVerified(ctx context.Context) ([]*domain.Charity, error) {
	rows, err := r.db.QueryContext(ctx, listVerifiedCharitiesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query verified charities: %w", err)
	}
	defer rows.Close()

	return scanCharities(rows)
}

// scanCharities scans charity rows; shared with the disbursement
// transaction's registry read.
func scanCharities(rows *sql.Rows) ([]*domain.Charity, error) {
	var charities []*domain.Charity
	for rows.Next() {
		var charity domain.Charity
		var trustStr string
		var lastActivity sql.NullTime

		err := rows.Scan(
			&charity.ID,
			&charity.Name,
			&charity.Verified,
			&trustStr,
			&charity.ActivityScore,
			&lastActivity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan charity: %w", err)
		}

		trust, err := decimal.NewFromString(trustStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse trust_rating: %w", err)
		}
		charity.TrustRating = trust

		if lastActivity.Valid {
			t := lastActivity.Time
			charity.LastActivityDate = &t
		}

		charities = append(charities, &charity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating charities: %w", err)
	}

	return charities, nil
}
