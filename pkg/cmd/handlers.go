// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukex/escalate/pkg/eventbus"
	"github.com/dukex/escalate/pkg/handlers"
	"github.com/dukex/escalate/pkg/protocol"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HandlersConfig configures the built-in step handlers. Optional backends
// left empty disable their step kind.
type HandlersConfig struct {
	Publisher  eventbus.EventPublisher
	RedisURL   string
	AIEndpoint string
	Logger     *slog.Logger
}

// NewHandlers builds the step handler dispatch table. The returned close
// function releases the data fetch connection.
func NewHandlers(ctx context.Context, config HandlersConfig) (protocol.Handlers, func() error, error) {
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	table := protocol.Handlers{
		Decision: handlers.Decision{},
		Wait:     handlers.Wait{MaxInline: handlers.DefaultMaxInline},
		APICall:  handlers.NewAPICall(client, config.Logger),
	}

	if config.Publisher != nil {
		table.Notification = handlers.NewNotification(config.Publisher)
	}

	if config.AIEndpoint != "" {
		table.AIResponse = handlers.NewAIResponse(handlers.HTTPGenerator{
			Endpoint: config.AIEndpoint,
			Client:   client,
		})
	}

	closer := func() error { return nil }

	if config.RedisURL != "" {
		options, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return protocol.Handlers{}, nil, fmt.Errorf("invalid data fetch redis url: %w", err)
		}

		rdb := redis.NewClient(options)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()

			return protocol.Handlers{}, nil, fmt.Errorf("failed to connect to data fetch redis: %w", err)
		}

		table.DataFetch = handlers.NewRedisFetch(rdb, handlers.DefaultRecordPrefix)
		closer = rdb.Close
	}

	config.Logger.InfoContext(ctx, "Step handlers configured",
		"notification", table.Notification != nil,
		"data_fetch", table.DataFetch != nil,
		"ai_response", table.AIResponse != nil)

	return table, closer, nil
}
