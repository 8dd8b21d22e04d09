package domain

import "errors"

var (
	ErrInvalidGuardian        = errors.New("invalid_guardian")
	ErrInvalidTransactionType = errors.New("invalid_transaction_type")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidAmountSign      = errors.New("invalid_amount_sign")
	ErrInsufficientBalance    = errors.New("insufficient_balance")
	ErrIdempotencyConflict    = errors.New("idempotency_conflict")
)
