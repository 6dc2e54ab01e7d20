package cli

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/lewisedginton/aiboy_relay/pkg/config"
	"github.com/lewisedginton/aiboy_relay/pkg/logger"
	"github.com/urfave/cli/v2"
)

// HealthCommand returns a command that probes a running relay, for container health checks
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Probe a running relay's health endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "host:port of the relay (default 127.0.0.1:$PORT)",
			},
			&cli.BoolFlag{
				Name:  "ready",
				Usage: "Probe readiness instead of liveness",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 3 * time.Second,
				Usage: "Probe timeout",
			},
		},
		Action: healthAction,
	}
}

func healthAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	addr := ctx.String("addr")
	if addr == "" {
		var httpCfg config.HTTPServerConfig
		if err := config.GetConfigFromEnvVars(&httpCfg); err != nil {
			return fmt.Errorf("failed to load http configuration: %w", err)
		}
		addr = net.JoinHostPort("127.0.0.1", strconv.Itoa(httpCfg.Port))
	}

	path := "/health/live"
	if ctx.Bool("ready") {
		path = "/health/ready"
	}

	client := &http.Client{Timeout: ctx.Duration("timeout")}
	resp, err := client.Get("http://" + addr + path)
	if err != nil {
		log.Error("Health check failed", logger.ErrorField(err))
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error("Health check failed with status", logger.IntField("status_code", resp.StatusCode))
		return fmt.Errorf("health check failed with status: %d", resp.StatusCode)
	}

	log.Info("Health check passed", logger.StringField("path", path))
	_, err = fmt.Fprintln(ctx.App.Writer, "Health check passed")
	return err
}
