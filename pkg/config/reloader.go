package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const reloadTimeout = time.Minute

// Reloader runs a Loader on a cron schedule. Registration is idempotent, so
// unchanged definitions keep their counters.
type Reloader struct {
	loader   *Loader
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewReloader(loader *Loader, schedule string, logger *slog.Logger) (*Reloader, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid reload schedule: %w", err)
	}

	logger = logger.With("module", "definitions_reloader", "schedule", schedule)
	adapter := cronLogger{logger: logger}

	return &Reloader{
		loader:   loader,
		schedule: schedule,
		cron: cron.New(cron.WithLogger(adapter), cron.WithChain(
			cron.SkipIfStillRunning(adapter),
			cron.Recover(adapter),
		)),
		logger: logger,
	}, nil
}

func (r *Reloader) Start() error {
	id, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()

		r.Reload(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reload: %w", err)
	}

	r.logger.Info("Scheduled definitions reload", "entry_id", id)
	r.cron.Start()

	return nil
}

// Reload runs one load pass and logs its outcome.
func (r *Reloader) Reload(ctx context.Context) LoadResult {
	result, err := r.loader.Load(ctx)
	if err != nil {
		r.logger.Error("Definitions reload finished with errors", "error", err)
	}

	return result
}

// Stop waits for a running reload to finish or ctx to end.
func (r *Reloader) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
