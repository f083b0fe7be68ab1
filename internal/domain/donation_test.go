package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDonation_ApplyDisbursement_StatusTransitions(t *testing.T) {
	d := &Donation{
		ID:     uuid.New(),
		Amount: 1000,
		Status: DisbursementStatusPending,
	}

	require.NoError(t, d.ApplyDisbursement(400))
	assert.Equal(t, DisbursementStatusPartial, d.Status)
	assert.Equal(t, int64(600), d.Remaining())

	require.NoError(t, d.ApplyDisbursement(600))
	assert.Equal(t, DisbursementStatusCompleted, d.Status)
	assert.Equal(t, int64(0), d.Remaining())
}

func TestDonation_ApplyDisbursement_ZeroKeepsStatus(t *testing.T) {
	d := &Donation{
		ID:     uuid.New(),
		Amount: 1000,
		Status: DisbursementStatusPending,
	}

	require.NoError(t, d.ApplyDisbursement(0))
	assert.Equal(t, DisbursementStatusPending, d.Status)
}

func TestDonation_ApplyDisbursement_RejectsNegative(t *testing.T) {
	d := &Donation{ID: uuid.New(), Amount: 1000, Status: DisbursementStatusPending}

	err := d.ApplyDisbursement(-1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be negative")
	assert.Equal(t, int64(0), d.DisbursedAmount)
}

func TestDonation_ApplyDisbursement_RejectsOverDisbursement(t *testing.T) {
	d := &Donation{
		ID:              uuid.New(),
		Amount:          1000,
		DisbursedAmount: 900,
		Status:          DisbursementStatusPartial,
	}

	err := d.ApplyDisbursement(101)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds remaining")
	assert.Equal(t, int64(900), d.DisbursedAmount, "failed application must not mutate the donation")
}

func TestDonation_Validate(t *testing.T) {
	valid := &Donation{ID: uuid.New(), Amount: 100, DisbursedAmount: 50, Status: DisbursementStatusPartial}
	assert.NoError(t, valid.Validate())

	negative := &Donation{ID: uuid.New(), Amount: -1, Status: DisbursementStatusPending}
	assert.Error(t, negative.Validate())

	overDisbursed := &Donation{ID: uuid.New(), Amount: 100, DisbursedAmount: 101, Status: DisbursementStatusPartial}
	assert.Error(t, overDisbursed.Validate())

	badStatus := &Donation{ID: uuid.New(), Amount: 100, Status: "REFUNDED"}
	assert.Error(t, badStatus.Validate())
}
