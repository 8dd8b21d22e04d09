package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/jukubill/internal/config"
	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DB_LOG_LEVEL", "info")
	t.Setenv("DB_SLOW_QUERY_MS", "50")

	cfg := LoadConfig(config.Config{AppName: " ", Environment: "production"})
	assert.Equal(t, "jukubill", cfg.ServiceName)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Debug())
	assert.Equal(t, 50*time.Millisecond, cfg.SlowQuery)

	gcfg := GormLoggerConfig(cfg)
	assert.Equal(t, gormlogger.Info, gcfg.Level)
	assert.Equal(t, 50*time.Millisecond, gcfg.SlowThreshold)
	assert.True(t, gcfg.IgnoreRecordNotFound)
}

func TestGormLoggerConfigDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEPLOYMENT_ENV", "")
	t.Setenv("DB_SLOW_QUERY_MS", "oops")

	cfg := LoadConfig(config.Config{Environment: "production"})
	assert.False(t, cfg.Debug())
	assert.Equal(t, defaultSlowQuery, cfg.SlowQuery)

	gcfg := GormLoggerConfig(Config{SQLLogLevel: "verbose"})
	assert.Equal(t, gormlogger.Warn, gcfg.Level)
	assert.Equal(t, 200*time.Millisecond, gcfg.SlowThreshold)
}
