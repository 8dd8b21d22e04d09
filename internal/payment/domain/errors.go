package domain

import "errors"

var (
	ErrInvalidGuardian = errors.New("invalid_guardian")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidMethod   = errors.New("invalid_method")
	ErrPaymentNotFound = errors.New("payment_not_found")

	ErrIdempotencyConflict = errors.New("idempotency_conflict")
)
