package repository

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// openDryRunPostgres builds statements against the postgres dialect without
// a server and records the last SELECT.
func openDryRunPostgres(t *testing.T) (*gorm.DB, *string) {
	t.Helper()
	conn, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=jukubill dbname=jukubill sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	var last string
	require.NoError(t, conn.Callback().Query().After("gorm:query").Register("test:capture_sql", func(tx *gorm.DB) {
		last = tx.Statement.SQL.String()
	}))
	return conn, &last
}

func TestBillingReadsUsedByMoneyPathsLockRows(t *testing.T) {
	conn, last := openDryRunPostgres(t)
	ctx := context.Background()
	repo := Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	orgID := node.Generate()

	_, err = repo.ListOutstandingForPeriod(ctx, conn, orgID, 2025, 4)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(*last), "FOR UPDATE"), *last)
	assert.Contains(t, *last, "is_locked")

	_, err = repo.ListOpenByGuardian(ctx, conn, orgID, node.Generate())
	require.NoError(t, err)
	assert.Contains(t, *last, "FOR UPDATE")

	_, err = repo.ListByIDs(ctx, conn, orgID, []snowflake.ID{node.Generate()})
	require.NoError(t, err)
	assert.NotContains(t, *last, "FOR UPDATE")
}
