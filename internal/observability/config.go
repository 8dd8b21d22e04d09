package observability

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/jukubill/internal/config"
)

const defaultSlowQuery = 200 * time.Millisecond

// Config is the logging and telemetry view of the application config.
// LOG_*, DB_* and OTEL_EXPORTER_OTLP_* environment variables override it.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	// SQLLogLevel is one of silent, error, warn or info.
	SQLLogLevel string
	SlowQuery   time.Duration

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
}

func LoadConfig(cfg config.Config) Config {
	return Config{
		ServiceName:          firstNonEmpty(cfg.AppName, "jukubill"),
		Environment:          env("DEPLOYMENT_ENV", cfg.Environment),
		Version:              env("SERVICE_VERSION", cfg.AppVersion),
		LogLevel:             strings.ToLower(env("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(env("LOG_FORMAT", "json")),
		SQLLogLevel:          strings.ToLower(env("DB_LOG_LEVEL", "warn")),
		SlowQuery:            envMillis("DB_SLOW_QUERY_MS", defaultSlowQuery),
		OtelEnabled:          cfg.OtelEnabled,
		OtelExporterEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(env("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
	}
}

// Debug reports whether verbose request logging and stack traces are on.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func env(key, def string) string {
	return firstNonEmpty(os.Getenv(key), def)
}

func envMillis(key string, def time.Duration) time.Duration {
	ms, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
