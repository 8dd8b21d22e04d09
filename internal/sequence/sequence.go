package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	billingTemplate     = "CB{YYYY}{MM}-{SEQ4}"
	paymentTemplate     = "PAY-{YYYY}{MM}{DD}-{SEQ4}"
	invoiceTemplate     = "INV-{YYYY}{MM}-{SEQ4}"
	debitBatchTemplate  = "-{YYYY}{MM}{DD}-{SEQ4}"
	importBatchTemplate = "BTI-{YYYY}{MM}{DD}{HH}{mm}{ss}"
)

// Counter is one per-tenant, per-prefix monotonic counter.
type Counter struct {
	OrgID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Prefix string       `gorm:"primaryKey;type:varchar(64)"`
	Value  int64        `gorm:"not null"`
}

func (Counter) TableName() string { return "sequence_counters" }

// Next increments the counter for (orgID, prefix) inside tx and returns the
// new value. The upsert takes the row lock, so concurrent callers in other
// transactions wait rather than reuse a number.
func Next(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, prefix string) (int64, error) {
	prefix = strings.TrimSpace(prefix)
	if orgID == 0 || prefix == "" {
		return 0, fmt.Errorf("sequence: org and prefix are required")
	}

	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "org_id"}, {Name: "prefix"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value": gorm.Expr("sequence_counters.value + 1"),
		}),
	}).Create(&Counter{OrgID: orgID, Prefix: prefix, Value: 1}).Error
	if err != nil {
		return 0, fmt.Errorf("sequence: increment %s: %w", prefix, err)
	}

	var value int64
	if err := tx.WithContext(ctx).
		Model(&Counter{}).
		Where("org_id = ? AND prefix = ?", orgID, prefix).
		Select("value").
		Scan(&value).Error; err != nil {
		return 0, fmt.Errorf("sequence: read %s: %w", prefix, err)
	}
	return value, nil
}

func next(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, template string, at time.Time) (string, error) {
	prefix, err := Format(strings.SplitN(template, "{SEQ", 2)[0], at, 0)
	if err != nil {
		return "", err
	}
	seq, err := Next(ctx, tx, orgID, prefix)
	if err != nil {
		return "", err
	}
	return Format(template, at, seq)
}

func monthStart(year, month int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// NextBillingNo returns CB{YYYY}{MM}-{SEQ4} for a billing month.
func NextBillingNo(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, year, month int) (string, error) {
	return next(ctx, tx, orgID, billingTemplate, monthStart(year, month))
}

// NextInvoiceNo returns INV-{YYYY}{MM}-{SEQ4} for a billing month.
func NextInvoiceNo(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, year, month int) (string, error) {
	return next(ctx, tx, orgID, invoiceTemplate, monthStart(year, month))
}

// NextPaymentNo returns PAY-{YYYYMMDD}-{SEQ4} for the payment date.
func NextPaymentNo(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, at time.Time) (string, error) {
	return next(ctx, tx, orgID, paymentTemplate, at)
}

// NextDebitBatchNo returns {PREFIX}-{YYYYMMDD}-{SEQ4}; the sequence resets per provider per day.
func NextDebitBatchNo(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, providerPrefix string, at time.Time) (string, error) {
	providerPrefix = strings.ToUpper(strings.TrimSpace(providerPrefix))
	if providerPrefix == "" {
		return "", fmt.Errorf("sequence: provider prefix is required")
	}
	return next(ctx, tx, orgID, providerPrefix+debitBatchTemplate, at)
}

// ImportBatchNo returns BTI-{YYYYMMDDHHMMSS}.
func ImportBatchNo(at time.Time) string {
	out, _ := Format(importBatchTemplate, at, 0)
	return out
}
