package sequence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:seq_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&Counter{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestFormat(t *testing.T) {
	at := time.Date(2025, 4, 7, 9, 5, 3, 0, time.UTC)

	out, err := Format("CB{YYYY}{MM}-{SEQ4}", at, 12)
	require.NoError(t, err)
	assert.Equal(t, "CB202504-0012", out)

	out, err = Format("BTI-{YYYY}{MM}{DD}{HH}{mm}{ss}", at, 0)
	require.NoError(t, err)
	assert.Equal(t, "BTI-20250407090503", out)

	_, err = Format("X-{SEQ4}", at, 0)
	assert.Error(t, err)

	_, err = Format("X-{BOGUS}", at, 1)
	assert.Error(t, err)
}

func TestNextIsPerTenantPerPrefix(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	node, _ := snowflake.NewNode(1)
	orgA, orgB := node.Generate(), node.Generate()

	for want := int64(1); want <= 3; want++ {
		got, err := Next(ctx, db, orgA, "PAY-20250407-")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := Next(ctx, db, orgB, "PAY-20250407-")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = Next(ctx, db, orgA, "PAY-20250408-")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestBuilders(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	node, _ := snowflake.NewNode(1)
	org := node.Generate()
	at := time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC)

	no, err := NextBillingNo(ctx, db, org, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, "CB202504-0001", no)

	no, err = NextBillingNo(ctx, db, org, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, "CB202504-0002", no)

	no, err = NextInvoiceNo(ctx, db, org, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, "INV-202504-0001", no)

	no, err = NextPaymentNo(ctx, db, org, at)
	require.NoError(t, err)
	assert.Equal(t, "PAY-20250407-0001", no)

	no, err = NextDebitBatchNo(ctx, db, org, "jis", at)
	require.NoError(t, err)
	assert.Equal(t, "JIS-20250407-0001", no)

	no, err = NextDebitBatchNo(ctx, db, org, "UFJ", at)
	require.NoError(t, err)
	assert.Equal(t, "UFJ-20250407-0001", no)

	assert.Equal(t, "BTI-20250407100000", ImportBatchNo(at))
}
