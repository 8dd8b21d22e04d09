package domain

import (
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
)

// DocumentVersion is written into every snapshot document. Readers accept
// older versions and fill missing fields with zero values.
const DocumentVersion = 1

type SourceType string

const (
	SourcePurchasedItem SourceType = "purchased_item"
	SourceContract      SourceType = "contract"
	SourceSeminar       SourceType = "seminar"
)

// LineItem is one frozen billable line.
type LineItem struct {
	SourceType         SourceType             `json:"source_type"`
	SourceID           string                 `json:"source_id"`
	ItemType           catalogdomain.ItemType `json:"item_type"`
	ProductCode        string                 `json:"product_code,omitempty"`
	Name               string                 `json:"name"`
	UnitPrice          int64                  `json:"unit_price"`
	Quantity           int                    `json:"quantity"`
	Amount             int64                  `json:"amount"`
	CompanyDiscountCap int64                  `json:"company_discount_cap,omitempty"`
}

type ItemsDocument struct {
	Version int        `json:"version"`
	Items   []LineItem `json:"items"`
}

func NewItemsDocument(items []LineItem) ItemsDocument {
	if items == nil {
		items = []LineItem{}
	}
	return ItemsDocument{Version: DocumentVersion, Items: items}
}

func (d ItemsDocument) Subtotal() int64 {
	var total int64
	for _, item := range d.Items {
		total += item.Amount
	}
	return total
}

func (d ItemsDocument) Has(itemType catalogdomain.ItemType) bool {
	for _, item := range d.Items {
		if item.ItemType == itemType {
			return true
		}
	}
	return false
}

type DiscountKind string

const (
	DiscountCorona         DiscountKind = "corona"
	DiscountCompany        DiscountKind = "company"
	DiscountManualStudent  DiscountKind = "manual_student"
	DiscountManualGuardian DiscountKind = "manual_guardian"
	DiscountFriendReferral DiscountKind = "friend_referral"
	DiscountMile           DiscountKind = "mile"
)

// DiscountLine is one applied reduction. Amount is positive.
type DiscountLine struct {
	Kind     DiscountKind `json:"kind"`
	Name     string       `json:"name"`
	Amount   int64        `json:"amount"`
	SourceID string       `json:"source_id,omitempty"`
	Target   string       `json:"target,omitempty"`
	Percent  int64        `json:"percent,omitempty"`
	Miles    int          `json:"miles,omitempty"`
}

type DiscountsDocument struct {
	Version   int            `json:"version"`
	Discounts []DiscountLine `json:"discounts"`
}

func NewDiscountsDocument(lines []DiscountLine) DiscountsDocument {
	if lines == nil {
		lines = []DiscountLine{}
	}
	return DiscountsDocument{Version: DocumentVersion, Discounts: lines}
}

func (d DiscountsDocument) Total() int64 {
	var total int64
	for _, line := range d.Discounts {
		total += line.Amount
	}
	return total
}
