package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/jukubill/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
	"gorm.io/gorm"
)

// PurchasedItemSource bills the purchases tagged with the target month.
type PurchasedItemSource struct {
	catalog catalogdomain.Repository
}

func NewPurchasedItemSource(catalog catalogdomain.Repository) *PurchasedItemSource {
	return &PurchasedItemSource{catalog: catalog}
}

func (s *PurchasedItemSource) Name() billingdomain.SourceType {
	return billingdomain.SourcePurchasedItem
}

func (s *PurchasedItemSource) Collect(ctx context.Context, db *gorm.DB, in billingdomain.SourceInput) ([]billingdomain.LineItem, error) {
	rows, err := s.catalog.ListPurchasedItems(ctx, db, in.OrgID, in.Student.ID, in.Year, in.Month)
	if err != nil {
		return nil, err
	}
	items := make([]billingdomain.LineItem, 0, len(rows))
	for _, row := range rows {
		qty := row.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, billingdomain.LineItem{
			SourceType:         billingdomain.SourcePurchasedItem,
			SourceID:           row.ID.String(),
			ItemType:           row.ItemType,
			ProductCode:        row.ProductCode,
			Name:               row.ProductName,
			UnitPrice:          row.UnitPrice,
			Quantity:           qty,
			Amount:             row.UnitPrice * int64(qty),
			CompanyDiscountCap: row.CompanyDiscountCap,
		})
	}
	return items, nil
}

// ContractSource bills active contracts whose date range covers the month.
type ContractSource struct {
	catalog catalogdomain.Repository
}

func NewContractSource(catalog catalogdomain.Repository) *ContractSource {
	return &ContractSource{catalog: catalog}
}

func (s *ContractSource) Name() billingdomain.SourceType {
	return billingdomain.SourceContract
}

func (s *ContractSource) Collect(ctx context.Context, db *gorm.DB, in billingdomain.SourceInput) ([]billingdomain.LineItem, error) {
	from, to := catalogdomain.MonthRange(in.Year, in.Month)
	rows, err := s.catalog.ListContracts(ctx, db, in.OrgID, []snowflake.ID{in.Student.ID}, from, to)
	if err != nil {
		return nil, err
	}
	items := make([]billingdomain.LineItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, billingdomain.LineItem{
			SourceType:         billingdomain.SourceContract,
			SourceID:           row.ID.String(),
			ItemType:           row.ItemType,
			ProductCode:        row.ProductCode,
			Name:               row.ProductName,
			UnitPrice:          row.MonthlyAmount,
			Quantity:           1,
			Amount:             row.MonthlyAmount,
			CompanyDiscountCap: row.CompanyDiscountCap,
		})
	}
	return items, nil
}

// seminarSource is appended after whichever primary source produced data.
type seminarSource struct {
	catalog catalogdomain.Repository
}

func (s *seminarSource) Name() billingdomain.SourceType {
	return billingdomain.SourceSeminar
}

func (s *seminarSource) Collect(ctx context.Context, db *gorm.DB, in billingdomain.SourceInput) ([]billingdomain.LineItem, error) {
	rows, err := s.catalog.ListSeminarEnrollments(ctx, db, in.OrgID, in.Student.ID, in.Year, in.Month)
	if err != nil {
		return nil, err
	}
	items := make([]billingdomain.LineItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, billingdomain.LineItem{
			SourceType: billingdomain.SourceSeminar,
			SourceID:   row.ID.String(),
			ItemType:   catalogdomain.ItemTypeSeminar,
			Name:       row.SeminarName,
			UnitPrice:  row.Amount,
			Quantity:   1,
			Amount:     row.Amount,
		})
	}
	return items, nil
}

// collectItems walks the primary sources in order and stops at the first one
// with data, then appends seminar lines.
func collectItems(ctx context.Context, db *gorm.DB, sources []billingdomain.SnapshotSource, seminars billingdomain.SnapshotSource, in billingdomain.SourceInput) ([]billingdomain.LineItem, error) {
	var items []billingdomain.LineItem
	for _, source := range sources {
		collected, err := source.Collect(ctx, db, in)
		if err != nil {
			return nil, err
		}
		if len(collected) > 0 {
			items = collected
			break
		}
	}
	if seminars != nil {
		extra, err := seminars.Collect(ctx, db, in)
		if err != nil {
			return nil, err
		}
		items = append(items, extra...)
	}
	return items, nil
}
