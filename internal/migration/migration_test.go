package migration

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

func TestApplyAutoMigratesSQLite(t *testing.T) {
	dsn := fmt.Sprintf("file:migration_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, Apply(conn))
	// A second run is a no-op.
	require.NoError(t, Apply(conn))

	for _, m := range Models() {
		tabler, ok := m.(schema.Tabler)
		require.True(t, ok, "%T has no table name", m)
		assert.True(t, conn.Migrator().HasTable(tabler.TableName()), tabler.TableName())
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, keys(ups), keys(downs))
}

func TestEmbeddedMigrationsCreateEveryTable(t *testing.T) {
	var ddl strings.Builder
	err := fs.WalkDir(embeddedMigrations, migrationsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return err
		}
		body, err := fs.ReadFile(embeddedMigrations, path)
		if err != nil {
			return err
		}
		ddl.Write(body)
		return nil
	})
	require.NoError(t, err)

	for _, m := range Models() {
		table := m.(schema.Tabler).TableName()
		assert.Contains(t, ddl.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
