// Package rowerr collects per-row problems of batch operations.
package rowerr

import "fmt"

const DefaultMax = 100

type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Ref     string `json:"ref,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// List keeps the first Max errors and counts all of them.
type List struct {
	Max   int        `json:"-"`
	Items []RowError `json:"items"`
	Total int        `json:"total"`
}

func NewList(max int) *List {
	if max <= 0 {
		max = DefaultMax
	}
	return &List{Max: max, Items: []RowError{}}
}

func (l *List) Add(e RowError) {
	l.Total++
	if len(l.Items) < l.Max {
		l.Items = append(l.Items, e)
	}
}

func (l *List) Addf(row int, field, format string, args ...any) {
	l.Add(RowError{Row: row, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (l *List) Empty() bool {
	return l.Total == 0
}

// Truncated reports whether errors were dropped from Items.
func (l *List) Truncated() bool {
	return l.Total > len(l.Items)
}
