package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment variables.
type Config struct {
	// Mode selects the runtime mode: "api" or "worker".
	Mode string `env:"ADMISSIOND_MODE" envDefault:"api"`

	// Server
	Host string `env:"ADMISSIOND_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"ADMISSIOND_PORT" envDefault:"8080"`

	// Database
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Redis — holds the atomic primitives (§4.3); job delivery does not use it.
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Telemetry
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`
	OTELDebug   bool   `env:"OTEL_DEBUG" envDefault:"false"`

	// OTLPEndpoint is a collector gRPC endpoint (host:port, no scheme) spans
	// are exported to. Empty disables the real exporter; OTELDebug then
	// controls whether spans are merely logged.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Migrations
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// CORS
	CORSAllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// AuthSecret is the HMAC key used to validate the already-authenticated
	// principal token the core receives (§6.5). Never used to issue tokens.
	AuthSecret string `env:"AUTH_SECRET,required"`

	// Generator providers (§6.3)
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AWSRegion       string `env:"AWS_REGION" envDefault:"us-east-1"`

	// ProviderMaxLeases bounds the shared {provider,model,lane} concurrency
	// pool independently of any single user's own concurrency cap (§5). A
	// deployment parameter: raise it as actual upstream provider capacity grows.
	ProviderMaxLeases int `env:"PROVIDER_MAX_LEASES" envDefault:"50"`

	// Queue dispatch (§4.4 / Design Note 9)
	QueueMode            string `env:"QUEUE_MODE" envDefault:"local"` // "local" or "remote"
	QStashURL            string `env:"QSTASH_URL"`
	QStashToken          string `env:"QSTASH_TOKEN"`
	QStashCurrentSignKey string `env:"QSTASH_CURRENT_SIGNING_KEY"`
	QStashNextSignKey    string `env:"QSTASH_NEXT_SIGNING_KEY"`
	AppURL               string `env:"APP_URL" envDefault:"http://localhost:8080"`

	// NodeEnv gates the worker signature-bypass in local/dev/test runs (§4.7 step 1).
	NodeEnv string `env:"NODE_ENV" envDefault:"development"`

	// Slack (optional — if unset, the failure notifier is disabled)
	SlackBotToken     string `env:"SLACK_BOT_TOKEN"`
	SlackAlertChannel string `env:"SLACK_ALERT_CHANNEL"`
}

// Load reads configuration from environment variables and fails fast if
// required scalars are missing or malformed, rather than at first use.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Mode != "api" && c.Mode != "worker" {
		return fmt.Errorf("ADMISSIOND_MODE must be \"api\" or \"worker\", got %q", c.Mode)
	}
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters")
	}
	if c.QueueMode != "local" && c.QueueMode != "remote" {
		return fmt.Errorf("QUEUE_MODE must be \"local\" or \"remote\", got %q", c.QueueMode)
	}
	return nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsLocalDev reports whether the worker's signature-verification bypass
// (X-Local-Dev header, §4.7 step 1) is honored.
func (c *Config) IsLocalDev() bool {
	return c.NodeEnv == "development" || c.NodeEnv == "test"
}

// SlackEnabled reports whether the ops notifier (§[DOMAIN] Messaging) is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAlertChannel != ""
}
