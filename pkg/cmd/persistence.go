package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/escalate/pkg/persistence"
	"github.com/dukex/escalate/pkg/persistence/file"
	"github.com/dukex/escalate/pkg/persistence/memory"
	"github.com/dukex/escalate/pkg/persistence/postgresql"
	"github.com/dukex/escalate/pkg/persistence/redis"
)

var ErrUnsupportedLedger = errors.New("unsupported ledger provider")

// NewLedger opens the execution ledger named by the scheme of databaseURL:
// memory://, file://<dir>, postgres:// (or postgresql://) and redis://.
func NewLedger(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Ledger, error) {
	provider, rest := parseLedgerProvider(databaseURL)

	logger.InfoContext(ctx, "Opening execution ledger", "provider", provider)

	var (
		ledger persistence.Ledger
		err    error
	)

	switch provider {
	case "memory":
		return memory.NewLedger(), nil
	case "file":
		ledger, err = file.NewLedger(rest)
	case "postgres", "postgresql":
		ledger, err = postgresql.Open(ctx, logger, databaseURL)
	case "redis", "rediss":
		ledger, err = redis.Open(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLedger, provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", provider, err)
	}

	return ledger, nil
}

func parseLedgerProvider(databaseURL string) (string, string) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	return provider, rest
}
