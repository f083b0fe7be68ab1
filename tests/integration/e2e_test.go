//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giveharbor/giveharbor-backend/internal/adapter/repository/postgres"
	"github.com/giveharbor/giveharbor-backend/internal/domain"
)

var (
	db      *postgres.DB
	baseURL string
	token   string
)

// TestMain sets up the test environment: a live database and a running
// server (started separately, e.g. via docker compose).
func TestMain(m *testing.M) {
	var err error
	db, err = postgres.NewDB(getDBConnectionString())
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, nil); err != nil {
		panic(fmt.Sprintf("Failed to run migrations: %v", err))
	}

	baseURL = getenv("E2E_BASE_URL", "http://localhost:8080")
	token = getenv("API_TOKEN", "dev-token")

	os.Exit(m.Run())
}

func getDBConnectionString() string {
	if s := os.Getenv("DB_CONN_STR"); s != "" {
		return s
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getenv("DB_HOST", "localhost"),
		getenv("DB_PORT", "5432"),
		getenv("DB_USER", "postgres"),
		getenv("DB_PASSWORD", "postgres"),
		getenv("DB_NAME", "giveharbor"),
	)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// resetTables clears engine state between tests. Charities and donations
// are re-seeded by each test.
func resetTables(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, table := range []string{"batch_disbursements", "disbursement_batches", "donations", "charities"} {
		_, err := db.ExecContext(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}
}

func seedCharity(t *testing.T, name string, verified bool, trust decimal.Decimal, activity int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO charities (id, name, verified, trust_rating, activity_score, last_activity_date)
		VALUES ($1, $2, $3, $4, $5, now())
	`, id, name, verified, trust.String(), activity)
	require.NoError(t, err)
	return id
}

func seedDonation(t *testing.T, amount int64, charityID *uuid.UUID, createdAt time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO donations (id, amount, disbursed_amount, disbursement_status, charity_id, created_at)
		VALUES ($1, $2, 0, 'PENDING', $3, $4)
	`, id, amount, charityID, createdAt)
	require.NoError(t, err)
	return id
}

func postDisbursement(t *testing.T, actorID uuid.UUID, notes string) (*http.Response, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"notes": notes})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/disbursements", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", actorID.String())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestE2E_BulkDisbursement_ConservesPool(t *testing.T) {
	resetTables(t)

	seedCharity(t, "Water Relief", true, decimal.NewFromInt(9), 50)
	seedCharity(t, "Food Bank", true, decimal.NewFromInt(6), 20)
	seedCharity(t, "Unverified Org", false, decimal.NewFromInt(10), 100) // must be excluded

	now := time.Now().UTC()
	seedDonation(t, 700, nil, now.Add(-2*time.Hour))
	seedDonation(t, 300, nil, now.Add(-1*time.Hour))

	actorID := uuid.New()
	resp, body := postDisbursement(t, actorID, "e2e run")
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", body)

	batchID, err := uuid.Parse(body["batch_id"].(string))
	require.NoError(t, err)

	ctx := context.Background()

	// Batch row reflects the full pool and only the verified charities.
	batchRepo := postgres.NewBatchRepository(db)
	batch, err := batchRepo.GetByID(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), batch.TotalAmount)
	assert.Equal(t, 2, batch.CharityCount)
	assert.Equal(t, domain.BatchStatusCompleted, batch.Status)
	assert.Equal(t, actorID, batch.CreatedBy)

	// Per-charity rows sum to the pool exactly.
	rows, err := batchRepo.ListDisbursements(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	var total int64
	for _, r := range rows {
		total += r.Amount
	}
	assert.Equal(t, int64(1000), total)

	// The snapshot replays to the committed amounts.
	var snapshot domain.CalculationSnapshot
	require.NoError(t, json.Unmarshal(batch.CalculationSnapshot, &snapshot))
	assert.Equal(t, int64(1000), snapshot.PoolAmount)
	assert.Len(t, snapshot.Entries, 2)

	// Every donation is fully disbursed; a second run sees no pending funds.
	var pending int
	require.NoError(t, db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM donations WHERE disbursement_status IN ('PENDING', 'PARTIAL')
	`).Scan(&pending))
	assert.Equal(t, 0, pending)

	resp2, body2 := postDisbursement(t, actorID, "")
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, "no_pending_funds", body2["status"])
}

func TestE2E_SnapshotFrozenAgainstLaterCharityChanges(t *testing.T) {
	resetTables(t)

	charityID := seedCharity(t, "Shelter", true, decimal.NewFromInt(8), 40)
	seedDonation(t, 500, nil, time.Now().UTC())

	resp, body := postDisbursement(t, uuid.New(), "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	batchID := uuid.MustParse(body["batch_id"].(string))

	// Drift the live charity data after the batch committed.
	_, err := db.ExecContext(context.Background(), `
		UPDATE charities SET trust_rating = 1.0, activity_score = 5 WHERE id = $1
	`, charityID)
	require.NoError(t, err)

	rows, err := postgres.NewBatchRepository(db).ListDisbursements(context.Background(), batchID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].TrustRatingAtTime.Equal(decimal.NewFromInt(8)),
		"stored snapshot must not follow live charity mutations")
	assert.Equal(t, 40, rows[0].ActivityScoreAtTime)
}

func TestE2E_ConcurrentRuns_ExactlyOneWins(t *testing.T) {
	resetTables(t)

	seedCharity(t, "Food Bank", true, decimal.NewFromInt(7), 30)
	for i := 0; i < 50; i++ {
		seedDonation(t, 100, nil, time.Now().UTC().Add(time.Duration(-i)*time.Minute))
	}

	const attempts = 4
	statuses := make([]int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, _ := postDisbursement(t, uuid.New(), "concurrent")
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	var created, rejectedOrEmpty int
	for _, code := range statuses {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict, http.StatusOK:
			// Losers either hit the batch lock or arrive after the pool
			// is drained.
			rejectedOrEmpty++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	assert.Equal(t, 1, created, "exactly one concurrent run may win the pool")
	assert.Equal(t, attempts-1, rejectedOrEmpty)

	// The pool was never double-spent: disbursed totals match the pool.
	var disbursed int64
	require.NoError(t, db.QueryRowContext(context.Background(),
		`SELECT COALESCE(SUM(disbursed_amount), 0) FROM donations`).Scan(&disbursed))
	assert.Equal(t, int64(5000), disbursed)
}

func TestE2E_NoEligibleCharities_LeavesFundsPending(t *testing.T) {
	resetTables(t)

	seedCharity(t, "Unverified Org", false, decimal.NewFromInt(9), 90)
	donationID := seedDonation(t, 400, nil, time.Now().UTC())

	resp, _ := postDisbursement(t, uuid.New(), "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var status string
	var disbursed int64
	require.NoError(t, db.QueryRowContext(context.Background(), `
		SELECT disbursement_status, disbursed_amount FROM donations WHERE id = $1
	`, donationID).Scan(&status, &disbursed))
	assert.Equal(t, "PENDING", status)
	assert.Equal(t, int64(0), disbursed)

	var batches int
	require.NoError(t, db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM disbursement_batches`).Scan(&batches))
	assert.Equal(t, 0, batches, "a failed run must not leave a batch row behind")
}
