// Package cli defines the relay's command-line interface.
package cli

import (
	"os"

	"github.com/lewisedginton/aiboy_relay/pkg/config"
	"github.com/lewisedginton/aiboy_relay/pkg/logger"
	"github.com/urfave/cli/v2"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

const defaultServiceName = "aiboy-relay"

// NewApp builds the relay CLI. Running it without a command starts the relay.
func NewApp() *cli.App {
	return &cli.App{
		Name:    defaultServiceName,
		Usage:   "Relay chat messages to an OpenAI-compatible completion API",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Value:   ".env",
				Usage:   "Dotenv file loaded before configuration; missing files are ignored",
				EnvVars: []string{"ENV_FILE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: before,
		Action: serveAction,
		Commands: []*cli.Command{
			ServeCommand(),
			ConfigCommand(),
			HealthCommand(),
		},
	}
}

// before loads the env file and builds the logger shared by all commands.
func before(ctx *cli.Context) error {
	if err := config.LoadEnvFile(ctx.String("env-file")); err != nil {
		return err
	}
	if ctx.IsSet("log-level") {
		if err := os.Setenv("LOG_LEVEL", ctx.String("log-level")); err != nil {
			return err
		}
	}

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = defaultServiceName
	}
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = ctx.String("log-level")
	}

	log := logger.NewLogger(logger.Config{
		Level:   logger.ParseLevel(level),
		Format:  os.Getenv("LOG_FORMAT"),
		Service: service,
		Output:  ctx.App.ErrWriter,
	})

	ctx.App.Metadata = map[string]interface{}{
		"logger": log,
	}
	return nil
}
