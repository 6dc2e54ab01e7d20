package cli

import (
	"fmt"

	"github.com/lewisedginton/aiboy_relay/internal/server"
	"github.com/lewisedginton/aiboy_relay/pkg/logger"
	"github.com/urfave/cli/v2"
)

// ServeCommand returns the command that runs the relay
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the chat relay (default)",
		Action:  serveAction,
	}
}

func serveAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	cfg.LogConfig(log)

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField(err))
		return fmt.Errorf("failed to create server: %w", err)
	}

	runCtx, cancel := shutdownContext(ctx.Context, log)
	defer cancel()

	if err := srv.Run(runCtx); err != nil {
		log.Error("Relay exited with error", logger.ErrorField(err))
		return err
	}
	return nil
}
