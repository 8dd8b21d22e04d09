// Package provider implements the collection file formats of the supported
// direct-debit agencies. Files are CSV with zengin-style record types:
// 1 header, 2 data, 8 trailer, 9 end.
package provider

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/smallbiznis/jukubill/internal/directdebit/domain"
	"github.com/smallbiznis/jukubill/internal/textenc"
)

const (
	recordHeader  = "1"
	recordData    = "2"
	recordTrailer = "8"
	recordEnd     = "9"

	typeCodeDebit = "91"
	codeClassJIS  = "0"
)

// Registry resolves providers by code.
type Registry map[string]domain.Provider

func NewRegistry(providers ...domain.Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Code()] = p
	}
	return r
}

// Default returns the JIS and UFJ providers.
func Default() Registry {
	return NewRegistry(JIS{}, UFJ{})
}

func (r Registry) Get(code string) (domain.Provider, error) {
	p, ok := r[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, code)
	}
	return p, nil
}

func writeFile(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	out, err := textenc.EncodeShiftJIS(buf.String())
	if err != nil {
		return nil, fmt.Errorf("encode shift_jis: %w", err)
	}
	return out, nil
}

func trailer(lines []*domain.DebitExportLine) []string {
	var total int64
	for _, l := range lines {
		total += l.Amount
	}
	return []string{recordTrailer, strconv.Itoa(len(lines)), strconv.FormatInt(total, 10)}
}

// readDataRecords decodes a result file and yields its data records.
func readDataRecords(raw []byte, minFields int, fn func(row int, record []string) domain.ResultRow) ([]domain.ResultRow, error) {
	text, _, err := textenc.DetectDecode(raw)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var out []domain.ResultRow
	row := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			out = append(out, domain.ResultRow{Row: row, Err: fmt.Errorf("%w: %v", domain.ErrInvalidResultRow, err)})
			continue
		}
		if len(record) == 0 || strings.TrimSpace(record[0]) != recordData {
			continue
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		if len(record) < minFields {
			out = append(out, domain.ResultRow{Row: row, Err: fmt.Errorf("%w: expected %d fields, got %d", domain.ErrInvalidResultRow, minFields, len(record))})
			continue
		}
		out = append(out, fn(row, record))
	}
	return out, nil
}

func parseAmount(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.ReplaceAll(textenc.Fold(s), ",", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", domain.ErrInvalidResultRow, s)
	}
	return v, nil
}

func resultRow(row int, customerCode, reference, amount, code string) domain.ResultRow {
	out := domain.ResultRow{Row: row, CustomerCode: customerCode, Reference: reference, ResultCode: code}
	if code == "" {
		out.Err = fmt.Errorf("%w: result code is empty", domain.ErrInvalidResultRow)
		return out
	}
	out.Amount, out.Err = parseAmount(amount)
	return out
}
