package rowerr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListIsBounded(t *testing.T) {
	l := NewList(2)
	assert.True(t, l.Empty())

	l.Addf(1, "amount", "invalid amount %q", "x")
	l.Add(RowError{Row: 2, Message: "missing date"})
	l.Add(RowError{Row: 3, Message: "missing name"})

	assert.Equal(t, 3, l.Total)
	assert.Len(t, l.Items, 2)
	assert.True(t, l.Truncated())
	assert.Equal(t, `row 1: amount: invalid amount "x"`, l.Items[0].Error())
	assert.Equal(t, "row 2: missing date", l.Items[1].Error())
}

func TestNewListDefaultMax(t *testing.T) {
	assert.Equal(t, DefaultMax, NewList(0).Max)
}
