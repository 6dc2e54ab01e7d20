package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	appconfig "github.com/lewisedginton/aiboy_relay/internal/config"
	"github.com/lewisedginton/aiboy_relay/pkg/logger"
	"github.com/urfave/cli/v2"
)

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata["logger"].(logger.Logger); ok {
			return log
		}
	}

	return logger.NewLogger(logger.Config{
		Level:   logger.InfoLevel,
		Format:  "json",
		Service: defaultServiceName,
	})
}

func loadConfig(log logger.Logger) (*appconfig.AppConfig, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		log.Error("Failed to load configuration", logger.ErrorField(err))
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// shutdownContext is cancelled on SIGINT or SIGTERM.
func shutdownContext(parent context.Context, log logger.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info("Received shutdown signal", logger.StringField("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
