package domain

import "errors"

// Disbursement run outcomes. All of these abort the enclosing transaction;
// none leave partial writes behind.
var (
	// ErrNoPendingFunds signals an empty pending pool. A legitimate no-op,
	// not a failure: nothing is written and nothing needs retrying.
	ErrNoPendingFunds = errors.New("no pending funds to disburse")

	// ErrNoEligibleCharities signals that no verified charities exist.
	// Funds remain pending.
	ErrNoEligibleCharities = errors.New("no eligible charities for disbursement")

	// ErrConcurrentBatchInProgress signals that another disbursement run
	// holds the batch lock. Callers should retry later, not immediately.
	ErrConcurrentBatchInProgress = errors.New("another disbursement batch is in progress")

	// ErrStorageTimeout signals the transaction could not complete within
	// its deadline. Safe to retry.
	ErrStorageTimeout = errors.New("storage operation timed out")

	// ErrTransactionAborted signals the storage layer aborted the
	// transaction (e.g. serialization failure). Safe to retry.
	ErrTransactionAborted = errors.New("storage transaction aborted")

	// ErrInvariantViolation signals the computed allocation did not sum to
	// the pool amount. Must never occur; detection aborts the run before
	// anything is committed.
	ErrInvariantViolation = errors.New("allocation invariant violated")
)
