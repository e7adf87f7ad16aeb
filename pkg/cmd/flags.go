package cmd

import (
	"github.com/dukex/escalate/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

// RuntimeFlags are the flags every binary accepts.
func RuntimeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Execution ledger URL (memory://, file://dir, postgres://..., redis://...)",
			Value:   "memory://",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "definitions-path",
			Usage:   "Directory or file with rule and workflow definitions (YAML or JSON)",
			Sources: cli.EnvVars("DEFINITIONS_PATH"),
		},
		&cli.StringFlag{
			Name:    "reload-schedule",
			Usage:   "Cron schedule for reloading definitions, empty to disable",
			Sources: cli.EnvVars("RELOAD_SCHEDULE"),
		},
		&cli.StringFlag{
			Name:    "data-redis-url",
			Usage:   "Redis URL backing data_fetch steps, empty to disable",
			Sources: cli.EnvVars("DATA_REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "ai-endpoint",
			Usage:   "HTTP endpoint generating ai_response text, empty to disable",
			Sources: cli.EnvVars("AI_ENDPOINT"),
		},
		&cli.IntFlag{
			Name:    "max-steps",
			Usage:   "Maximum steps a single execution may run",
			Value:   workflow.DefaultMaxSteps,
			Sources: cli.EnvVars("MAX_STEPS"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// RuntimeConfigFromCommand reads the values of RuntimeFlags.
func RuntimeConfigFromCommand(command *cli.Command, serviceName string) RuntimeConfig {
	return RuntimeConfig{
		ServiceName:     serviceName,
		DatabaseURL:     command.String("database-url"),
		EventBus:        command.String("event-bus"),
		DefinitionsPath: command.String("definitions-path"),
		ReloadSchedule:  command.String("reload-schedule"),
		RedisURL:        command.String("data-redis-url"),
		AIEndpoint:      command.String("ai-endpoint"),
		Tracing:         command.Bool("tracing"),
		MaxSteps:        int(command.Int("max-steps")),
	}
}
