package main

import (
	"context"
	"os"

	"github.com/dukex/escalate/pkg/cmd"
	"github.com/dukex/escalate/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "escalate-api",
		Usage:                 "Manage escalation rules and workflows over HTTP",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}, cmd.RuntimeFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.SetupWithFormat(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("escalate-api")

			logger.InfoContext(ctx, "Initializing Escalate API")

			rt, err := cmd.NewRuntime(ctx, cmd.RuntimeConfigFromCommand(command, "escalate-api"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to release resources", "error", err)
				}
			}()

			return NewAPI(logger, rt.Engine).Start(int(command.Int("port")))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("escalate-api").Error("Exited with error", "error", err)
		os.Exit(1)
	}
}
