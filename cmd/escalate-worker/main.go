package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/escalate/pkg/cmd"
	"github.com/dukex/escalate/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "escalate-worker",
		EnableShellCompletion: true,
		Usage:                 "Evaluate conversation signals from the event bus and run matched workflows",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
		}, cmd.RuntimeFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.SetupWithFormat(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("escalate-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Escalate Worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.NewRuntime(ctx, cmd.RuntimeConfigFromCommand(command, "escalate-worker"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to release resources", "error", err)
				}
			}()

			return NewWorkerManager(workerID, rt.Engine, rt.EventBus, logger).Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("escalate-worker").Error("Exited with error", "error", err)
		os.Exit(1)
	}
}
