package domain

import (
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
)

const (
	mileBaseline  = 2
	mileStep      = 2
	mileStepValue = 500
	mileMinimum   = 4
)

// MileDiscount converts redeemed miles into a discount amount. The first two
// miles are a baseline; every further two miles are worth 500.
func MileDiscount(miles int) int64 {
	if miles < mileMinimum {
		return 0
	}
	return int64((miles-mileBaseline)/mileStep) * mileStepValue
}

// DedupFacilityItems keeps only the highest priced facility line. The kept
// line stays at its original position; other lines pass through unchanged.
func DedupFacilityItems(items []LineItem) []LineItem {
	keep := -1
	for i, item := range items {
		if item.ItemType != catalogdomain.ItemTypeFacility {
			continue
		}
		if keep < 0 || item.Amount > items[keep].Amount {
			keep = i
		}
	}

	out := make([]LineItem, 0, len(items))
	for i, item := range items {
		if item.ItemType == catalogdomain.ItemTypeFacility && i != keep {
			continue
		}
		out = append(out, item)
	}
	return out
}
