package domain

import "strings"

// ColumnMapping names the header cells of a generic import.
type ColumnMapping struct {
	Date      string `json:"date"`
	Amount    string `json:"amount"`
	PayerName string `json:"payer_name"`
	PayerKana string `json:"payer_kana"`
	Bank      string `json:"bank"`
	Branch    string `json:"branch"`
}

func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		Date:      "日付",
		Amount:    "金額",
		PayerName: "振込人名",
		PayerKana: "振込人カナ",
		Bank:      "銀行名",
		Branch:    "支店名",
	}
}

// WithDefaults fills unset columns from DefaultColumnMapping.
func (m ColumnMapping) WithDefaults() ColumnMapping {
	d := DefaultColumnMapping()
	if strings.TrimSpace(m.Date) == "" {
		m.Date = d.Date
	}
	if strings.TrimSpace(m.Amount) == "" {
		m.Amount = d.Amount
	}
	if strings.TrimSpace(m.PayerName) == "" && strings.TrimSpace(m.PayerKana) == "" {
		m.PayerName = d.PayerName
		m.PayerKana = d.PayerKana
	}
	if strings.TrimSpace(m.Bank) == "" {
		m.Bank = d.Bank
	}
	if strings.TrimSpace(m.Branch) == "" {
		m.Branch = d.Branch
	}
	return m
}
