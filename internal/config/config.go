// Package config defines the relay's application configuration.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	pkgconfig "github.com/lewisedginton/aiboy_relay/pkg/config"
	"github.com/lewisedginton/aiboy_relay/pkg/logger"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultSystemPrompt is the persona prompt sent as the system message.
	DefaultSystemPrompt = "You are AIBOY, a helpful AI assistant focused on blockchain and AI technology."

	// DefaultFallbackMessage is returned when the completion text cannot be extracted.
	DefaultFallbackMessage = "Sorry, I couldn't process that request."

	redacted = "[REDACTED]"
)

// AppConfig holds all application configuration
type AppConfig struct {
	// Service configuration
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"aiboy-relay"`
	Environment string `env:"ENVIRONMENT" yaml:"environment" default:"development"`

	// StripPrefix is removed from request paths before routing, e.g. "/api"
	StripPrefix string `env:"STRIP_PREFIX" yaml:"strip_prefix"`

	Common  pkgconfig.CommonConfig     `yaml:"logging"`
	HTTP    pkgconfig.HTTPServerConfig `yaml:"http"`
	Metrics pkgconfig.MetricsConfig    `yaml:"metrics"`
	OpenAI  OpenAIConfig               `yaml:"openai"`
	Relay   RelayConfig                `yaml:"relay"`
	Health  HealthConfig               `yaml:"health"`
}

// OpenAIConfig holds upstream completion provider configuration
type OpenAIConfig struct {
	APIKey     string `env:"OPENAI_API_KEY" yaml:"api_key" required:"true"`
	Model      string `env:"OPENAI_MODEL" yaml:"model" default:"gpt-4"`
	APIBaseURL string `env:"OPENAI_API_URL" yaml:"api_base_url" default:"https://api.openai.com/v1"`
	// Timeout bounds one upstream call; 0 disables the bound.
	Timeout time.Duration `env:"OPENAI_TIMEOUT" yaml:"timeout" default:"60s"`
}

// RelayConfig holds the fixed prompt and fallback text used for every request
type RelayConfig struct {
	SystemPrompt    string `env:"RELAY_SYSTEM_PROMPT" yaml:"system_prompt" default:"You are AIBOY, a helpful AI assistant focused on blockchain and AI technology."`
	FallbackMessage string `env:"RELAY_FALLBACK_MESSAGE" yaml:"fallback_message" default:"Sorry, I couldn't process that request."`
}

// HealthConfig holds health check configuration
type HealthConfig struct {
	CheckUpstream    bool          `env:"HEALTH_CHECK_UPSTREAM" yaml:"check_upstream" default:"false"`
	Timeout          time.Duration `env:"HEALTH_TIMEOUT" yaml:"timeout" default:"5s"`
	FailureThreshold int           `env:"HEALTH_FAILURE_THRESHOLD" yaml:"failure_threshold" default:"3"`
}

// Load reads AppConfig from the environment and validates it
func Load() (*AppConfig, error) {
	var cfg AppConfig
	if err := pkgconfig.GetConfigFromEnvVars(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *AppConfig) Validate() error {
	var result error

	if err := c.Common.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.HTTP.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.Metrics.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		result = multierror.Append(result, fmt.Errorf("openai api_key must not be blank"))
	}
	if strings.TrimSpace(c.OpenAI.Model) == "" {
		result = multierror.Append(result, fmt.Errorf("openai model must not be empty"))
	}
	if u, err := url.Parse(c.OpenAI.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("openai api_base_url must be an absolute URL, got %q", c.OpenAI.APIBaseURL))
	}
	if c.OpenAI.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("openai timeout cannot be negative"))
	}
	// The upstream bound must fire before http.Server drops the connection.
	if wt := c.HTTP.WriteTimeout(); wt > 0 && (c.OpenAI.Timeout == 0 || c.OpenAI.Timeout >= wt) {
		result = multierror.Append(result, fmt.Errorf(
			"openai timeout (%s) must be non-zero and below http write timeout (%s); set HTTP_WRITE_TIMEOUT_SECONDS=0 to run without either",
			c.OpenAI.Timeout, wt))
	}

	if c.Health.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("health timeout must be greater than 0"))
	}
	if c.Health.FailureThreshold < 1 {
		result = multierror.Append(result, fmt.Errorf("health failure_threshold must be at least 1"))
	}

	if c.StripPrefix != "" && !strings.HasPrefix(c.StripPrefix, "/") {
		result = multierror.Append(result, fmt.Errorf("strip_prefix must start with '/', got %q", c.StripPrefix))
	}

	return result
}

// GetLogLevel returns the parsed logger level
func (c *AppConfig) GetLogLevel() logger.Level {
	return logger.ParseLevel(c.Common.LogLevel)
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	env := strings.ToLower(c.Environment)
	return env == "development" || env == "dev"
}

// Redacted returns a copy safe to print or log.
func (c *AppConfig) Redacted() AppConfig {
	out := *c
	if out.OpenAI.APIKey != "" {
		out.OpenAI.APIKey = redacted
	}
	return out
}

// YAML renders the redacted configuration.
func (c *AppConfig) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

// LogConfig logs the current configuration (without sensitive data)
func (c *AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("environment", c.Environment),
		logger.StringField("listen_addr", c.HTTP.Addr()),
		logger.StringField("openai_model", c.OpenAI.Model),
		logger.StringField("openai_api_url", c.OpenAI.APIBaseURL),
		logger.DurationField("openai_timeout", c.OpenAI.Timeout),
		logger.IntField("system_prompt_length", len(c.Relay.SystemPrompt)),
		logger.StringField("log_level", c.Common.LogLevel),
		logger.StringField("log_format", c.Common.LogFormat),
		logger.BoolField("metrics_exposed", c.Metrics.ExposeMetrics),
		logger.BoolField("health_check_upstream", c.Health.CheckUpstream),
	)
}
