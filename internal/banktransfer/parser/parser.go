// Package parser reads bank transfer files into transfer rows.
package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/smallbiznis/jukubill/internal/banktransfer/domain"
	"github.com/smallbiznis/jukubill/internal/textenc"
	"github.com/smallbiznis/jukubill/pkg/rowerr"
)

// Transfer is one parsed source row.
type Transfer struct {
	Row          int
	TransferDate time.Time
	Amount       int64
	PayerName    string
	PayerKana    string
	GuardianHint string
	BankName     string
	BranchName   string
}

type Result struct {
	Rows     []Transfer
	Errors   *rowerr.List
	Encoding string
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006/1/2", "20060102", "2006.01.02", "060102"}

// ParseGeneric reads a header-mapped CSV one record at a time. Invalid rows
// are reported and skipped; the rest are returned.
func ParseGeneric(r io.Reader, mapping domain.ColumnMapping, maxErrors int) (*Result, error) {
	mapping = mapping.WithDefaults()
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, cell := range header {
		cell = strings.TrimPrefix(cell, "\ufeff")
		index[textenc.NormalizeSpaces(cell)] = i
	}
	col := func(name string) int {
		if name == "" {
			return -1
		}
		if i, ok := index[textenc.NormalizeSpaces(name)]; ok {
			return i
		}
		return -1
	}
	dateCol, amountCol := col(mapping.Date), col(mapping.Amount)
	nameCol, kanaCol := col(mapping.PayerName), col(mapping.PayerKana)
	bankCol, branchCol := col(mapping.Bank), col(mapping.Branch)
	switch {
	case dateCol < 0:
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingColumn, mapping.Date)
	case amountCol < 0:
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingColumn, mapping.Amount)
	case nameCol < 0 && kanaCol < 0:
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingColumn, mapping.PayerName)
	}

	res := &Result{Errors: rowerr.NewList(maxErrors)}
	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			res.Errors.Addf(row, "", "malformed record: %v", err)
			continue
		}
		if blank(record) {
			continue
		}
		cell := func(i int) string {
			if i < 0 || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		t := Transfer{Row: row, BankName: cell(bankCol), BranchName: cell(branchCol)}
		ok := true
		if t.TransferDate, err = ParseDate(cell(dateCol)); err != nil {
			res.Errors.Addf(row, mapping.Date, "%v", err)
			ok = false
		}
		if t.Amount, err = ParseAmount(cell(amountCol)); err != nil {
			res.Errors.Addf(row, mapping.Amount, "%v", err)
			ok = false
		}
		t.GuardianHint, t.PayerName = ParsePayer(cell(nameCol))
		t.PayerKana = textenc.NormalizeSpaces(cell(kanaCol))
		if t.PayerName == "" && t.PayerKana == "" && t.GuardianHint == "" {
			res.Errors.Addf(row, mapping.PayerName, "payer is required")
			ok = false
		}
		if ok {
			res.Rows = append(res.Rows, t)
		}
	}
	return res, nil
}

// ParseRaw reads a bank-format CSV. Data rows carry "2" in the first column;
// rows whose third column is empty have the payer one column further right.
func ParseRaw(raw []byte, maxErrors int) (*Result, error) {
	text, encoding, err := textenc.DetectDecode(raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyFile
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	res := &Result{Errors: rowerr.NewList(maxErrors), Encoding: encoding}
	row := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			res.Errors.Addf(row, "", "malformed record: %v", err)
			continue
		}
		if len(record) == 0 || textenc.Fold(strings.TrimSpace(record[0])) != "2" {
			continue
		}
		cell := func(i int) string {
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		// variant with an empty third column: type, date, "", payer, amount, bank, branch
		offset := 0
		if cell(2) == "" {
			offset = 1
		}
		t := Transfer{Row: row, BankName: cell(4 + offset), BranchName: cell(5 + offset)}
		ok := true
		if t.TransferDate, err = ParseDate(cell(1)); err != nil {
			res.Errors.Addf(row, "date", "%v", err)
			ok = false
		}
		if t.Amount, err = ParseAmount(cell(3 + offset)); err != nil {
			res.Errors.Addf(row, "amount", "%v", err)
			ok = false
		}
		t.GuardianHint, t.PayerName = ParsePayer(cell(2 + offset))
		t.PayerKana = t.PayerName
		if t.PayerName == "" && t.GuardianHint == "" {
			res.Errors.Addf(row, "payer", "payer is required")
			ok = false
		}
		if ok {
			res.Rows = append(res.Rows, t)
		}
	}
	return res, nil
}

// ParsePayer splits a leading guardian number from the payer name after
// folding full-width digits, e.g. "８２１８８５９コジマ" -> ("8218859", "コジマ").
func ParsePayer(s string) (hint, name string) {
	folded := textenc.Fold(strings.TrimSpace(s))
	end := 0
	for end < len(folded) && folded[end] >= '0' && folded[end] <= '9' {
		end++
	}
	return folded[:end], textenc.NormalizeSpaces(folded[end:])
}

// ParseAmount accepts digits with optional thousands separators and a yen mark.
func ParseAmount(s string) (int64, error) {
	folded := textenc.Fold(s)
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == ',' || r == '¥' || r == '\\' || r == '円' || unicode.IsSpace(r):
			return -1
		}
		return r
	}, folded)
	if cleaned == "" {
		return 0, fmt.Errorf("amount is required")
	}
	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %d", v)
	}
	return v, nil
}

func ParseDate(s string) (time.Time, error) {
	folded := strings.TrimSpace(textenc.Fold(s))
	if folded == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, layout := range dateLayouts {
		if len(layout) != len(folded) && layout != "2006/1/2" {
			continue
		}
		if t, err := time.Parse(layout, folded); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
