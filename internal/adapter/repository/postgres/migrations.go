package postgres

import (
	"fmt"

	"go.uber.org/zap"
)

// RunMigrations creates the disbursement engine schema if it does not exist.
// Charities and donations are owned by external workflows (charity
// management and payment capture); their tables are created here so the
// engine can run standalone, but only the disbursement columns are ever
// written by this service.
func RunMigrations(db *DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("running database migrations")

	statements := []string{
		`CREATE TABLE IF NOT EXISTS charities (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			verified BOOLEAN NOT NULL DEFAULT false,
			trust_rating NUMERIC(4,2) CHECK (trust_rating >= 0 AND trust_rating <= 10),
			activity_score INTEGER CHECK (activity_score >= 0 AND activity_score <= 100),
			last_activity_date TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS donations (
			id UUID PRIMARY KEY,
			amount BIGINT NOT NULL CHECK (amount >= 0),
			disbursed_amount BIGINT NOT NULL DEFAULT 0
				CHECK (disbursed_amount >= 0 AND disbursed_amount <= amount),
			disbursement_status VARCHAR(20) NOT NULL DEFAULT 'PENDING'
				CHECK (disbursement_status IN ('PENDING', 'PARTIAL', 'COMPLETED')),
			charity_id UUID REFERENCES charities(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_donations_undisbursed
			ON donations (created_at)
			WHERE disbursement_status IN ('PENDING', 'PARTIAL')`,
		`CREATE TABLE IF NOT EXISTS disbursement_batches (
			id UUID PRIMARY KEY,
			batch_date TIMESTAMPTZ NOT NULL,
			total_amount BIGINT NOT NULL CHECK (total_amount >= 0),
			charity_count INTEGER NOT NULL CHECK (charity_count >= 0),
			status VARCHAR(20) NOT NULL
				CHECK (status IN ('PROCESSING', 'COMPLETED', 'FAILED')),
			calculation_snapshot JSONB NOT NULL,
			created_by UUID NOT NULL,
			notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS batch_disbursements (
			id UUID PRIMARY KEY,
			batch_id UUID NOT NULL REFERENCES disbursement_batches(id),
			charity_id UUID NOT NULL REFERENCES charities(id),
			amount BIGINT NOT NULL CHECK (amount >= 0),
			allocation_percentage NUMERIC(8,4) NOT NULL,
			trust_rating_at_time NUMERIC(4,2) NOT NULL,
			activity_score_at_time INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batch_disbursements_batch
			ON batch_disbursements (batch_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	logger.Info("database migrations completed")
	return nil
}
