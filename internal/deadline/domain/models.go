package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type State string

const (
	StateOpen        State = "open"
	StateUnderReview State = "under_review"
	StateClosed      State = "closed"
)

// MonthlyBillingDeadline holds the edit-lock flags of one billing month.
// The closed state is always derived, see IsClosed.
type MonthlyBillingDeadline struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID `gorm:"not null;uniqueIndex:ux_billing_deadlines_period,priority:1" json:"org_id"`
	Year             int          `gorm:"not null;uniqueIndex:ux_billing_deadlines_period,priority:2" json:"year"`
	Month            int          `gorm:"not null;uniqueIndex:ux_billing_deadlines_period,priority:3" json:"month"`
	ClosingDay       int          `gorm:"not null" json:"closing_day"`
	AutoClose        bool         `gorm:"not null" json:"auto_close"`
	IsManuallyClosed bool         `gorm:"not null;default:false" json:"is_manually_closed"`
	ClosedAt         *time.Time   `json:"closed_at,omitempty"`
	ClosedBy         string       `gorm:"type:varchar(64)" json:"closed_by,omitempty"`
	IsUnderReview    bool         `gorm:"not null;default:false" json:"is_under_review"`
	ReviewStartedAt  *time.Time   `json:"review_started_at,omitempty"`
	ReviewStartedBy  string       `gorm:"type:varchar(64)" json:"review_started_by,omitempty"`
	IsReopened       bool         `gorm:"not null;default:false" json:"is_reopened"`
	ReopenedAt       *time.Time   `json:"reopened_at,omitempty"`
	ReopenedBy       string       `gorm:"type:varchar(64)" json:"reopened_by,omitempty"`
	ReopenReason     string       `gorm:"type:text" json:"reopen_reason,omitempty"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (MonthlyBillingDeadline) TableName() string { return "monthly_billing_deadlines" }

// ClosingDate is the closing day of the month in loc, clamped to the last day.
func (d MonthlyBillingDeadline) ClosingDate(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	last := time.Date(d.Year, time.Month(d.Month)+1, 0, 0, 0, 0, 0, loc).Day()
	day := d.ClosingDay
	if day < 1 {
		day = 1
	}
	if day > last {
		day = last
	}
	return time.Date(d.Year, time.Month(d.Month), day, 0, 0, 0, 0, loc)
}

// IsClosed reports manually_closed OR (auto_close AND today > closing date),
// overridden to false while the reopened flag is set.
func (d MonthlyBillingDeadline) IsClosed(now time.Time, loc *time.Location) bool {
	if d.IsReopened {
		return false
	}
	if d.IsManuallyClosed {
		return true
	}
	if !d.AutoClose {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return today.After(d.ClosingDate(loc))
}

func (d MonthlyBillingDeadline) State(now time.Time, loc *time.Location) State {
	if d.IsClosed(now, loc) {
		return StateClosed
	}
	if d.IsUnderReview && !d.IsReopened {
		return StateUnderReview
	}
	return StateOpen
}

// View is the deadline with its derived state for one instant.
type View struct {
	MonthlyBillingDeadline
	State       State     `json:"state"`
	IsClosed    bool      `json:"is_closed"`
	ClosingDate time.Time `json:"closing_date"`
}

func NewView(d MonthlyBillingDeadline, now time.Time, loc *time.Location) View {
	return View{
		MonthlyBillingDeadline: d,
		State:                  d.State(now, loc),
		IsClosed:               d.IsClosed(now, loc),
		ClosingDate:            d.ClosingDate(loc),
	}
}
