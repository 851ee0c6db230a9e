package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// RuntimeConfig holds process-level settings for the server/worker binaries
// (HTTP port, OTEL/logging identity, shutdown timeouts) — everything that
// isn't part of a project's persisted ProjectConfig and instead varies per
// deployment, parsed the way the teacher's internal/config/config.go parses
// its single env-tagged Config struct.
type RuntimeConfig struct {
	AppEnv string `env:"FP_APP_ENV" envDefault:"dev"`
	Port   int    `env:"FP_PORT" envDefault:"8080"`

	ProjectDir string `env:"FP_PROJECT_DIR" envDefault:"."`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"flowerpower"`

	ServerShutdownTimeout time.Duration `env:"FP_SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"FP_HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"FP_HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"FP_HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	CORSAllowOrigins string `env:"FP_CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin  int    `env:"FP_RATE_LIMIT_PER_MIN" envDefault:"60"`

	MetricsPort int `env:"FP_METRICS_PORT" envDefault:"9090"`
}

// LoadRuntimeConfig parses FP_/OTEL_-prefixed env vars into a RuntimeConfig.
func LoadRuntimeConfig() (RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := env.Parse(&cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("op=config.LoadRuntimeConfig: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the process is running in development mode.
func (c RuntimeConfig) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the process is running in production mode.
func (c RuntimeConfig) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }
