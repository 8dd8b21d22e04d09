package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/jukubill/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type row struct {
	ID    int64 `gorm:"primaryKey"`
	OrgID int64 `gorm:"index"`
	Name  string
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&row{}))
	return db
}

func TestStoreScopesByQueryFields(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := ProvideStore[row](db)

	rows := make([]*row, 0, BatchSize+3)
	for i := 1; i <= BatchSize+3; i++ {
		rows = append(rows, &row{ID: int64(i), OrgID: int64(i%2 + 1), Name: fmt.Sprintf("r%d", i)})
	}
	require.NoError(t, store.BatchCreate(ctx, rows))
	require.NoError(t, store.BatchCreate(ctx, nil))

	found, err := store.Find(ctx, &row{OrgID: 1}, option.WithOrder("id"), option.WithLimit(2))
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, int64(2), found[0].ID)
	assert.Equal(t, int64(4), found[1].ID)

	one, err := store.FindOne(ctx, &row{OrgID: 2, Name: "r3"})
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, int64(3), one.ID)

	missing, err := store.FindOne(ctx, &row{OrgID: 1, Name: "r3"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreCreate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := ProvideStore[row](db)

	require.NoError(t, store.Create(ctx, &row{ID: 10, OrgID: 1, Name: "a"}))
	assert.Error(t, store.Create(ctx, &row{ID: 10, OrgID: 1, Name: "dup"}))
}
