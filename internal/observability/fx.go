package observability

import (
	"github.com/smallbiznis/jukubill/internal/observability/logger"
	"github.com/smallbiznis/jukubill/internal/observability/metrics"
	"go.uber.org/fx"
	gormlogger "gorm.io/gorm/logger"
)

// Module provides the process logger, the GORM query logger settings and
// the OTel meter used by the billing services.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(cfg Config) logger.Config {
			return logger.Config{
				ServiceName: cfg.ServiceName,
				Environment: cfg.Environment,
				Version:     cfg.Version,
				Level:       cfg.LogLevel,
				Format:      cfg.LogFormat,
				Debug:       cfg.Debug(),
			}
		},
		logger.New,
		GormLoggerConfig,
		func(cfg Config) metrics.Config {
			return metrics.Config{
				Enabled:          cfg.OtelEnabled,
				ExporterEndpoint: cfg.OtelExporterEndpoint,
				ExporterProtocol: cfg.OtelExporterProtocol,
				ServiceName:      cfg.ServiceName,
				Environment:      cfg.Environment,
			}
		},
		metrics.NewProvider,
		metrics.New,
	),
)

// GormLoggerConfig maps DB_LOG_LEVEL and DB_SLOW_QUERY_MS onto the query
// logger. Unknown levels fall back to warn.
func GormLoggerConfig(cfg Config) logger.GormLoggerConfig {
	out := logger.DefaultGormLoggerConfig()
	switch cfg.SQLLogLevel {
	case "silent":
		out.Level = gormlogger.Silent
	case "error":
		out.Level = gormlogger.Error
	case "info":
		out.Level = gormlogger.Info
	default:
		out.Level = gormlogger.Warn
	}
	if cfg.SlowQuery > 0 {
		out.SlowThreshold = cfg.SlowQuery
	}
	return out
}
