// Package redis provides an execution ledger backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/escalate/pkg/models"
	"github.com/dukex/escalate/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "escalate:"
	maxRetries    = 10
)

// Ledger stores each execution as a JSON string and indexes ids in sorted sets
// scored by start time:
//
//	<prefix>execution:<id>
//	<prefix>workflow:<workflow_id>:executions
//	<prefix>conversation:<conversation_id>:executions
type Ledger struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// Open parses a redis:// URL, connects and pings the server.
func Open(ctx context.Context, logger *slog.Logger, redisURL string) (*Ledger, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return New(client, logger, defaultPrefix), nil
}

func New(client *redis.Client, logger *slog.Logger, prefix string) *Ledger {
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Ledger{
		client: client,
		prefix: prefix,
		logger: logger.With("module", "redis_ledger"),
	}
}

func (l *Ledger) executionKey(id string) string {
	return l.prefix + "execution:" + id
}

func (l *Ledger) workflowIndex(workflowID string) string {
	return l.prefix + "workflow:" + workflowID + ":executions"
}

func (l *Ledger) conversationIndex(conversationID string) string {
	return l.prefix + "conversation:" + conversationID + ":executions"
}

// Record performs an optimistic check-and-set on the execution key, retrying
// when a concurrent writer touches it first.
func (l *Ledger) Record(ctx context.Context, execution *models.Execution) error {
	if execution == nil || execution.ID == "" {
		return persistence.NewLedgerError("Record", "", persistence.ErrInvalidExecutionID)
	}

	key := l.executionKey(execution.ID)

	payload, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewLedgerError("Record", execution.ID, fmt.Errorf("failed to marshal execution: %w", err))
	}

	write := func(tx *redis.Tx) error {
		stored, err := l.load(ctx, tx, key)
		if err != nil && !persistence.IsExecutionNotFound(err) {
			return err
		}

		if err := persistence.CheckAppend(stored, execution); err != nil {
			return err
		}

		score := float64(execution.StartedAt.UnixMilli())

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.ZAdd(ctx, l.workflowIndex(execution.WorkflowID), redis.Z{Score: score, Member: execution.ID})
			pipe.ZAdd(ctx, l.conversationIndex(execution.ConversationID), redis.Z{Score: score, Member: execution.ID})

			return nil
		})

		return err
	}

	for range maxRetries {
		err = l.client.Watch(ctx, write, key)
		if errors.Is(err, redis.TxFailedErr) {
			l.logger.Debug("Concurrent execution update, retrying", "execution_id", execution.ID)

			continue
		}

		if err != nil {
			return persistence.NewLedgerError("Record", execution.ID, err)
		}

		return nil
	}

	return persistence.NewLedgerError("Record", execution.ID, fmt.Errorf("gave up after %d attempts: %w", maxRetries, err))
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := l.load(ctx, l.client, l.executionKey(id))
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			err = &models.ExecutionNotFoundError{ID: id}
		}

		return nil, persistence.NewLedgerError("Get", id, err)
	}

	return execution, nil
}

func (l *Ledger) ByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return l.list(ctx, l.workflowIndex(workflowID))
}

func (l *Ledger) ByConversation(ctx context.Context, conversationID string) ([]*models.Execution, error) {
	return l.list(ctx, l.conversationIndex(conversationID))
}

func (l *Ledger) HealthCheck(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (l *Ledger) Close(_ context.Context) error {
	return l.client.Close()
}

func (l *Ledger) load(ctx context.Context, cmd redis.Cmdable, key string) (*models.Execution, error) {
	data, err := cmd.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &models.ExecutionNotFoundError{ID: key}
		}

		return nil, fmt.Errorf("failed to read execution: %w", err)
	}

	var execution models.Execution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}

	return &execution, nil
}

func (l *Ledger) list(ctx context.Context, index string) ([]*models.Execution, error) {
	ids, err := l.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", index, err)
	}

	executions := make([]*models.Execution, 0, len(ids))
	if len(ids) == 0 {
		return executions, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = l.executionKey(id)
	}

	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read executions: %w", err)
	}

	for i, value := range values {
		data, ok := value.(string)
		if !ok {
			l.logger.Warn("Indexed execution is missing", "execution_id", ids[i], "index", index)

			continue
		}

		var execution models.Execution
		if err := json.Unmarshal([]byte(data), &execution); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution %s: %w", ids[i], err)
		}

		executions = append(executions, &execution)
	}

	persistence.SortExecutions(executions)

	return executions, nil
}
