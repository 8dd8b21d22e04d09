package domain

import "time"

// Provider serializes collection files and reads result files for one
// collection agency.
type Provider interface {
	Code() string
	Prefix() string
	Encode(h Header, lines []*DebitExportLine) ([]byte, error)
	ParseResult(raw []byte) ([]ResultRow, error)
}

type Header struct {
	ConsignorCode  string
	ConsignorName  string
	BankCode       string
	BranchCode     string
	WithdrawalDate time.Time
	Year           int
	Month          int
}

// ResultRow is one data record of a result file. Err is set when the record
// could not be read.
type ResultRow struct {
	Row          int
	CustomerCode string
	Reference    string
	Amount       int64
	ResultCode   string
	Err          error
}
