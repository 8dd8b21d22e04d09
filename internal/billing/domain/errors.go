package domain

import "errors"

var (
	ErrBillingNotFound   = errors.New("billing_not_found")
	ErrStudentNoGuardian = errors.New("student_has_no_guardian")
	ErrBillingFrozen     = errors.New("billing_frozen")
)
