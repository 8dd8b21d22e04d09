package domain

import "errors"

var (
	ErrImportNotFound     = errors.New("bank_transfer_import_not_found")
	ErrImportConfirmed    = errors.New("bank_transfer_import_confirmed")
	ErrTransferNotFound   = errors.New("bank_transfer_not_found")
	ErrTransferNotMatched = errors.New("bank_transfer_not_matched")
	ErrTransferApplied    = errors.New("bank_transfer_already_applied")
	ErrTransferCancelled  = errors.New("bank_transfer_cancelled")
	ErrTransferChanged    = errors.New("bank_transfer_changed")
	ErrMissingColumn      = errors.New("missing_column")
	ErrEmptyFile          = errors.New("empty_file")
)
