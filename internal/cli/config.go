package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// ConfigCommand returns a command for configuration operations
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration operations",
		Action:  configShowAction,
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective configuration as YAML with secrets redacted",
				Action: configShowAction,
			},
			{
				Name:   "validate",
				Usage:  "Validate configuration",
				Action: configValidateAction,
			},
		},
	}
}

func configShowAction(ctx *cli.Context) error {
	cfg, err := loadConfig(getLogger(ctx))
	if err != nil {
		return err
	}

	out, err := cfg.YAML()
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = ctx.App.Writer.Write(out)
	return err
}

func configValidateAction(ctx *cli.Context) error {
	log := getLogger(ctx)
	log.Info("Validating configuration")

	if _, err := loadConfig(log); err != nil {
		return err
	}

	log.Info("Configuration validation passed")
	_, err := fmt.Fprintln(ctx.App.Writer, "Configuration is valid")
	return err
}
