package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/jukubill/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
	"github.com/smallbiznis/jukubill/internal/config"
	"gorm.io/gorm"
)

const minContractsForMiles = 2

type discountInput struct {
	orgID      snowflake.ID
	guardian   *catalogdomain.Guardian
	student    *catalogdomain.Student
	siblings   []*catalogdomain.Student
	items      billingdomain.ItemsDocument
	year       int
	month      int
	firstChild bool
	rules      config.BillingRules
}

// computeDiscounts evaluates discounts in their fixed order: corona, company,
// manual per student, manual per guardian, friend referral, mile. Guardian
// scoped discounts and miles land on the first child only.
func (s *Service) computeDiscounts(ctx context.Context, tx *gorm.DB, in discountInput) ([]billingdomain.DiscountLine, error) {
	lines := []billingdomain.DiscountLine{}

	if in.rules.CoronaDiscountAmount > 0 && in.items.Has(catalogdomain.ItemTypeTextbook) {
		lines = append(lines, billingdomain.DiscountLine{
			Kind:   billingdomain.DiscountCorona,
			Name:   "corona discount",
			Amount: in.rules.CoronaDiscountAmount,
		})
	}

	if in.guardian.CompanyDiscountEligible {
		lines = append(lines, companyDiscounts(in.items.Items, in.rules.CompanyDiscountRate)...)
	}

	from, to := catalogdomain.MonthRange(in.year, in.month)
	standing, err := s.catalog.ListDiscounts(ctx, tx, in.orgID, in.student.ID, in.guardian.ID, from, to)
	if err != nil {
		return nil, err
	}

	var studentManual, guardianManual, referral []billingdomain.DiscountLine
	for _, d := range standing {
		if d.Amount <= 0 {
			continue
		}
		studentScoped := d.StudentID != nil && *d.StudentID == in.student.ID
		guardianScoped := d.StudentID == nil && d.GuardianID != nil && *d.GuardianID == in.guardian.ID
		if !studentScoped && !(guardianScoped && in.firstChild) {
			continue
		}
		line := billingdomain.DiscountLine{Name: d.Name, Amount: d.Amount, SourceID: d.ID.String()}
		switch {
		case d.Kind == catalogdomain.DiscountKindFriendReferral:
			line.Kind = billingdomain.DiscountFriendReferral
			referral = append(referral, line)
		case studentScoped:
			line.Kind = billingdomain.DiscountManualStudent
			studentManual = append(studentManual, line)
		default:
			line.Kind = billingdomain.DiscountManualGuardian
			guardianManual = append(guardianManual, line)
		}
	}
	lines = append(lines, studentManual...)
	lines = append(lines, guardianManual...)
	lines = append(lines, referral...)

	if in.firstChild {
		mile, err := s.mileDiscount(ctx, tx, in)
		if err != nil {
			return nil, err
		}
		if mile != nil {
			lines = append(lines, *mile)
		}
	}
	return lines, nil
}

// companyDiscounts grants rate percent on each tuition line, capped by the
// product's own percentage cap. A zero cap excludes the product.
func companyDiscounts(items []billingdomain.LineItem, rate int64) []billingdomain.DiscountLine {
	if rate <= 0 {
		return nil
	}
	var lines []billingdomain.DiscountLine
	hundred := decimal.NewFromInt(100)
	for _, item := range items {
		if item.ItemType != catalogdomain.ItemTypeTuition || item.CompanyDiscountCap <= 0 || item.Amount <= 0 {
			continue
		}
		pct := rate
		if item.CompanyDiscountCap < pct {
			pct = item.CompanyDiscountCap
		}
		amount := decimal.NewFromInt(item.Amount).
			Mul(decimal.NewFromInt(pct)).
			Div(hundred).
			Round(0).
			IntPart()
		if amount <= 0 {
			continue
		}
		target := item.ProductCode
		if target == "" {
			target = item.Name
		}
		lines = append(lines, billingdomain.DiscountLine{
			Kind:     billingdomain.DiscountCompany,
			Name:     "company discount",
			Amount:   amount,
			SourceID: item.SourceID,
			Target:   target,
			Percent:  pct,
		})
	}
	return lines
}

// mileDiscount requires at least two active contracts across the guardian's children.
func (s *Service) mileDiscount(ctx context.Context, tx *gorm.DB, in discountInput) (*billingdomain.DiscountLine, error) {
	usage, err := s.catalog.GetMileUsage(ctx, tx, in.orgID, in.guardian.ID, in.year, in.month)
	if err != nil || usage == nil {
		return nil, err
	}
	amount := billingdomain.MileDiscount(usage.Miles)
	if amount <= 0 {
		return nil, nil
	}

	ids := make([]snowflake.ID, 0, len(in.siblings))
	for _, sibling := range in.siblings {
		ids = append(ids, sibling.ID)
	}
	from, to := catalogdomain.MonthRange(in.year, in.month)
	contracts, err := s.catalog.ListContracts(ctx, tx, in.orgID, ids, from, to)
	if err != nil {
		return nil, err
	}
	if len(contracts) < minContractsForMiles {
		return nil, nil
	}
	return &billingdomain.DiscountLine{
		Kind:     billingdomain.DiscountMile,
		Name:     "mile discount",
		Amount:   amount,
		SourceID: usage.ID.String(),
		Miles:    usage.Miles,
	}, nil
}
