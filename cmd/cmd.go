package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/webitel/actor-node/internal/config"
)

const (
	ServiceName      = "actor-node"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

// Run builds and runs the actor-node CLI application.
func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "actor-model concurrency runtime node",
		Commands: []*cli.Command{
			runCmd(),
			psCmd(),
		},
	}

	return app.Run(os.Args)
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run the node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"), config.Flags())
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("shutting down...")
			return app.Stop(context.Background())
		},
	}
}
