package domain

import "errors"

var (
	ErrUnknownProvider  = errors.New("unknown_debit_provider")
	ErrNothingToExport  = errors.New("nothing_to_export")
	ErrBatchNotFound    = errors.New("debit_batch_not_found")
	ErrLineNotFound     = errors.New("debit_line_not_found")
	ErrLineProcessed    = errors.New("debit_line_already_processed")
	ErrInvalidResultRow = errors.New("invalid_result_row")
)
