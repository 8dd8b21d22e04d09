package domain

import (
	"testing"
	"time"

	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
	"github.com/stretchr/testify/assert"
)

func TestMileDiscount(t *testing.T) {
	cases := map[int]int64{0: 0, 1: 0, 2: 0, 3: 0, 4: 500, 5: 500, 6: 1000, 8: 1500, 9: 1500}
	for miles, want := range cases {
		assert.Equal(t, want, MileDiscount(miles), "miles=%d", miles)
	}
}

func TestDedupFacilityItems(t *testing.T) {
	items := []LineItem{
		{Name: "tuition", ItemType: catalogdomain.ItemTypeTuition, Amount: 20000},
		{Name: "facility a", ItemType: catalogdomain.ItemTypeFacility, Amount: 500},
		{Name: "facility b", ItemType: catalogdomain.ItemTypeFacility, Amount: 800},
		{Name: "textbook", ItemType: catalogdomain.ItemTypeTextbook, Amount: 3000},
		{Name: "facility c", ItemType: catalogdomain.ItemTypeFacility, Amount: 650},
	}

	out := DedupFacilityItems(items)
	assert.Len(t, out, 3)
	assert.Equal(t, "tuition", out[0].Name)
	assert.Equal(t, "facility b", out[1].Name)
	assert.Equal(t, int64(800), out[1].Amount)
	assert.Equal(t, "textbook", out[2].Name)
}

func TestDedupFacilityItems_NoFacility(t *testing.T) {
	items := []LineItem{{Name: "tuition", ItemType: catalogdomain.ItemTypeTuition, Amount: 100}}
	assert.Equal(t, items, DedupFacilityItems(items))
	assert.Empty(t, DedupFacilityItems(nil))
}

func TestRecomputeKeepsBalanceIdentity(t *testing.T) {
	b := ConfirmedBilling{Subtotal: 23800, DiscountTotal: 3000, CarryOverAmount: 5000, PaidAmount: 1000}
	b.Recompute()
	assert.Equal(t, int64(20800), b.TotalAmount)
	assert.Equal(t, b.TotalAmount+b.CarryOverAmount-b.PaidAmount, b.Balance)
	assert.Equal(t, int64(24800), b.Balance)
}

func TestApplyPayment(t *testing.T) {
	now := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	b := ConfirmedBilling{Subtotal: 3000, Status: StatusConfirmed}
	b.Recompute()

	assert.Equal(t, int64(1000), b.ApplyPayment(1000, now))
	assert.Equal(t, StatusPartial, b.Status)
	assert.Equal(t, int64(2000), b.Balance)
	assert.Nil(t, b.PaidAt)

	assert.Equal(t, int64(2000), b.ApplyPayment(5000, now))
	assert.Equal(t, StatusPaid, b.Status)
	assert.Equal(t, int64(0), b.Balance)
	assert.NotNil(t, b.PaidAt)

	assert.Equal(t, int64(0), b.ApplyPayment(100, now))
}

func TestDocumentsTotals(t *testing.T) {
	items := NewItemsDocument([]LineItem{{Amount: 100}, {Amount: 250}})
	assert.Equal(t, DocumentVersion, items.Version)
	assert.Equal(t, int64(350), items.Subtotal())

	discounts := NewDiscountsDocument(nil)
	assert.NotNil(t, discounts.Discounts)
	assert.Equal(t, int64(0), discounts.Total())
}
