// Package postgresql provides the PostgreSQL execution ledger.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/escalate/pkg/models"
	"github.com/dukex/escalate/pkg/persistence"
	"github.com/dukex/escalate/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

const selectColumns = `
	SELECT id, workflow_id, conversation_id, status, current_step_id, variables,
		   log, output, error, failed_step_id, started_at, updated_at, completed_at
	FROM executions
`

// Ledger stores executions in the executions table.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to databaseURL and migrates the schema.
func Open(ctx context.Context, logger *slog.Logger, databaseURL string) (*Ledger, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	err = sqlbase.NewMigrationManager(logger, database, migrations()).RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return New(database, logger), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, logger *slog.Logger) *Ledger {
	return &Ledger{db: db, logger: logger.With("module", "postgres_ledger")}
}

// Record locks the stored row, checks the append rules and upserts in one transaction.
func (l *Ledger) Record(ctx context.Context, execution *models.Execution) error {
	if execution == nil || execution.ID == "" {
		return persistence.NewLedgerError("Record", "", persistence.ErrInvalidExecutionID)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewLedgerError("Record", execution.ID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() { _ = tx.Rollback() }()

	stored, err := lockStored(ctx, tx, execution.ID)
	if err != nil {
		return persistence.NewLedgerError("Record", execution.ID, err)
	}

	if err := persistence.CheckAppend(stored, execution); err != nil {
		return persistence.NewLedgerError("Record", execution.ID, err)
	}

	variablesJSON, err := json.Marshal(nonNilVariables(execution.Variables))
	if err != nil {
		return persistence.NewLedgerError("Record", execution.ID, fmt.Errorf("failed to marshal variables: %w", err))
	}

	logJSON, err := json.Marshal(nonNilLog(execution.Log))
	if err != nil {
		return persistence.NewLedgerError("Record", execution.ID, fmt.Errorf("failed to marshal log: %w", err))
	}

	var outputJSON any

	if execution.Output != nil {
		encoded, err := json.Marshal(execution.Output)
		if err != nil {
			return persistence.NewLedgerError("Record", execution.ID, fmt.Errorf("failed to marshal output: %w", err))
		}

		outputJSON = encoded
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, conversation_id, status, current_step_id, variables,
			log, output, error, failed_step_id, started_at, updated_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_step_id = EXCLUDED.current_step_id,
			variables = EXCLUDED.variables,
			log = EXCLUDED.log,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			failed_step_id = EXCLUDED.failed_step_id,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = tx.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.ConversationID,
		string(execution.Status),
		execution.CurrentStepID,
		variablesJSON,
		logJSON,
		outputJSON,
		execution.Error,
		execution.FailedStepID,
		execution.StartedAt,
		execution.UpdatedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewLedgerError("Record", execution.ID, fmt.Errorf("failed to save execution: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return persistence.NewLedgerError("Record", execution.ID, fmt.Errorf("failed to commit: %w", err))
	}

	return nil
}

func lockStored(ctx context.Context, tx *sql.Tx, id string) (*models.Execution, error) {
	var (
		status  string
		logJSON []byte
	)

	err := tx.QueryRowContext(ctx, "SELECT status, log FROM executions WHERE id = $1 FOR UPDATE", id).Scan(&status, &logJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load stored execution: %w", err)
	}

	stored := &models.Execution{ID: id, Status: models.ExecutionStatus(status)}
	if err := json.Unmarshal(logJSON, &stored.Log); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored log: %w", err)
	}

	return stored, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.Execution, error) {
	row := l.db.QueryRowContext(ctx, selectColumns+" WHERE id = $1", id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewLedgerError("Get", id, &models.ExecutionNotFoundError{ID: id})
		}

		return nil, persistence.NewLedgerError("Get", id, err)
	}

	return execution, nil
}

func (l *Ledger) ByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return l.list(ctx, selectColumns+" WHERE workflow_id = $1 ORDER BY started_at, id", workflowID)
}

func (l *Ledger) ByConversation(ctx context.Context, conversationID string) ([]*models.Execution, error) {
	return l.list(ctx, selectColumns+" WHERE conversation_id = $1 ORDER BY started_at, id", conversationID)
}

func (l *Ledger) HealthCheck(ctx context.Context) error {
	err := l.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (l *Ledger) Close(_ context.Context) error {
	if l.db != nil {
		err := l.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

func (l *Ledger) list(ctx context.Context, query string, arg string) ([]*models.Execution, error) {
	rows, err := l.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			l.logger.Error("Failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return executions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		execution     models.Execution
		status        string
		variablesJSON []byte
		logJSON       []byte
		outputJSON    []byte
		completedAt   sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.ConversationID,
		&status,
		&execution.CurrentStepID,
		&variablesJSON,
		&logJSON,
		&outputJSON,
		&execution.Error,
		&execution.FailedStepID,
		&execution.StartedAt,
		&execution.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)

	if err := json.Unmarshal(variablesJSON, &execution.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if err := json.Unmarshal(logJSON, &execution.Log); err != nil {
		return nil, fmt.Errorf("failed to unmarshal log: %w", err)
	}

	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &execution.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}

	if completedAt.Valid {
		completed := completedAt.Time
		execution.CompletedAt = &completed
	}

	return &execution, nil
}

func nonNilVariables(variables map[string]any) map[string]any {
	if variables == nil {
		return map[string]any{}
	}

	return variables
}

func nonNilLog(log []models.StepOutcome) []models.StepOutcome {
	if log == nil {
		return []models.StepOutcome{}
	}

	return log
}
