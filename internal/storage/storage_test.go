package storage

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	at := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	key := Key(snowflake.ID(42), KindBankTransfer, at, "Furikomi April.CSV")
	assert.Equal(t, "42/bank-transfer/2025/04/furikomi-april.csv", key)

	key = Key(snowflake.ID(42), KindDebitExport, at, "???.csv")
	assert.Equal(t, "42/debit-export/2025/04/file.csv", key)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "jis-2025-04-01-2025-04-30.csv", FileName(".csv", "JIS", "2025-04-01", "2025-04-30"))
}

func TestNopArchiver(t *testing.T) {
	at := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	key, err := NopArchiver{}.Archive(context.Background(), snowflake.ID(1), KindDebitResult, at, "result.csv", []byte("x"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "1/debit-result/2025/04/result.csv", key)
}
