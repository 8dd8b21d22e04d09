package domain

import "errors"

var (
	ErrInvalidPeriod        = errors.New("invalid_period")
	ErrPeriodClosed         = errors.New("period_closed")
	ErrPeriodNotClosed      = errors.New("period_not_closed")
	ErrPeriodUnderReview    = errors.New("period_under_review")
	ErrPeriodNotUnderReview = errors.New("period_not_under_review")
	ErrReopenReasonRequired = errors.New("reopen_reason_required")
	ErrPeriodReopened       = errors.New("period_reopened")
)
