package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
)

// CommonConfig holds logging settings shared by every binary.
type CommonConfig struct {
	// LogLevel specifies the minimum log level to output
	// Valid values: debug, info, warn, error
	LogLevel string `env:"LOG_LEVEL" yaml:"log_level" default:"info"`

	// LogFormat selects the logrus formatter: json or text
	LogFormat string `env:"LOG_FORMAT" yaml:"log_format" default:"json"`
}

// Validate checks CommonConfig for a known log level and format
func (c CommonConfig) Validate() error {
	var result error

	if !oneOf(strings.ToLower(c.LogLevel), validLogLevels) {
		result = multierror.Append(result, fmt.Errorf("log_level must be one of %v, got %q", validLogLevels, c.LogLevel))
	}
	if !oneOf(strings.ToLower(c.LogFormat), validLogFormats) {
		result = multierror.Append(result, fmt.Errorf("log_format must be one of %v, got %q", validLogFormats, c.LogFormat))
	}

	return result
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
