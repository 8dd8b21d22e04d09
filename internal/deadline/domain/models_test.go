package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsClosed_AutoCloseAfterClosingDay(t *testing.T) {
	d := MonthlyBillingDeadline{Year: 2025, Month: 4, ClosingDay: 25, AutoClose: true}

	assert.False(t, d.IsClosed(time.Date(2025, 4, 25, 23, 59, 0, 0, time.UTC), time.UTC))
	assert.True(t, d.IsClosed(time.Date(2025, 4, 26, 0, 0, 0, 0, time.UTC), time.UTC))
	assert.Equal(t, StateClosed, d.State(time.Date(2025, 4, 26, 0, 0, 0, 0, time.UTC), time.UTC))

	d.IsReopened = true
	assert.False(t, d.IsClosed(time.Date(2025, 4, 26, 0, 0, 0, 0, time.UTC), time.UTC))
	assert.Equal(t, StateOpen, d.State(time.Date(2025, 4, 26, 0, 0, 0, 0, time.UTC), time.UTC))
}

func TestIsClosed_ReopenedWinsOverManualClose(t *testing.T) {
	d := MonthlyBillingDeadline{Year: 2025, Month: 4, ClosingDay: 25, IsManuallyClosed: true}
	now := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	assert.True(t, d.IsClosed(now, time.UTC))
	d.IsReopened = true
	assert.False(t, d.IsClosed(now, time.UTC))
	assert.True(t, d.IsManuallyClosed)
}

func TestIsClosed_NoAutoClose(t *testing.T) {
	d := MonthlyBillingDeadline{Year: 2025, Month: 4, ClosingDay: 25}
	assert.False(t, d.IsClosed(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), time.UTC))
}

func TestIsClosed_UsesBusinessTimezone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	d := MonthlyBillingDeadline{Year: 2025, Month: 4, ClosingDay: 25, AutoClose: true}

	// 2025-04-25 16:00 UTC is already the 26th in Tokyo.
	now := time.Date(2025, 4, 25, 16, 0, 0, 0, time.UTC)
	assert.False(t, d.IsClosed(now, time.UTC))
	assert.True(t, d.IsClosed(now, tokyo))
}

func TestClosingDate_ClampedToMonthEnd(t *testing.T) {
	d := MonthlyBillingDeadline{Year: 2025, Month: 2, ClosingDay: 31}
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), d.ClosingDate(time.UTC))
}

func TestState_UnderReview(t *testing.T) {
	d := MonthlyBillingDeadline{Year: 2025, Month: 4, ClosingDay: 25, AutoClose: true, IsUnderReview: true}
	assert.Equal(t, StateUnderReview, d.State(time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC), time.UTC))
	assert.Equal(t, StateClosed, d.State(time.Date(2025, 4, 27, 0, 0, 0, 0, time.UTC), time.UTC))
}
