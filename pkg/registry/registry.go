// Package registry stores validated rules and workflows and serves them to the
// trigger matcher and the executor.
package registry

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/escalate/pkg/models"
	"github.com/go-playground/validator/v10"
)

type ruleEntry struct {
	rule      *models.Rule
	order     uint64
	triggered atomic.Int64
}

type workflowEntry struct {
	workflow   *models.Workflow
	order      uint64
	executions atomic.Int64
}

// Registry holds rules and workflows keyed by id. Reads take a shared lock and
// counters are updated atomically.
type Registry struct {
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
	mu        sync.RWMutex
	rules     map[string]*ruleEntry
	workflows map[string]*workflowEntry
	sequence  uint64
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		validate:  newValidator(),
		now:       time.Now,
		rules:     make(map[string]*ruleEntry),
		workflows: make(map[string]*workflowEntry),
	}
}

// RegisterRule validates and stores the rule. Registering an existing id
// replaces its definition but keeps its counter and position.
func (r *Registry) RegisterRule(rule *models.Rule) error {
	if err := r.validateRule(rule); err != nil {
		return err
	}

	stored := rule.Clone()
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.rules[stored.ID]; ok {
		stored.CreatedAt = entry.rule.CreatedAt
		stored.UpdatedAt = now
		stored.TriggeredCount = 0
		entry.rule = stored

		r.logger.Info("rule updated", "rule_id", stored.ID, "priority", stored.Priority, "active", stored.Active)

		return nil
	}

	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.TriggeredCount = 0

	r.sequence++
	r.rules[stored.ID] = &ruleEntry{rule: stored, order: r.sequence}

	r.logger.Info("rule registered", "rule_id", stored.ID, "priority", stored.Priority, "active", stored.Active)

	return nil
}

// RegisterWorkflow validates and stores the workflow. Registering an existing
// id replaces its definition but keeps its execution counter.
func (r *Registry) RegisterWorkflow(workflow *models.Workflow) error {
	stored := workflow.Clone()
	if err := r.validateWorkflow(stored); err != nil {
		return err
	}

	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	stored.ExecutionCount = 0

	if entry, ok := r.workflows[stored.ID]; ok {
		stored.CreatedAt = entry.workflow.CreatedAt
		stored.UpdatedAt = now
		entry.workflow = stored

		r.logger.Info("workflow updated", "workflow_id", stored.ID, "steps", len(stored.Steps), "active", stored.Active)

		return nil
	}

	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.sequence++
	r.workflows[stored.ID] = &workflowEntry{workflow: stored, order: r.sequence}

	r.logger.Info("workflow registered", "workflow_id", stored.ID, "steps", len(stored.Steps), "active", stored.Active)

	return nil
}

func (r *Registry) Rule(id string) (*models.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.rules[id]
	if !ok {
		return nil, &models.RuleNotFoundError{ID: id}
	}

	return entry.snapshot(), nil
}

func (r *Registry) Workflow(id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.workflows[id]
	if !ok {
		return nil, &models.WorkflowNotFoundError{ID: id}
	}

	return entry.snapshot(), nil
}

// Rules returns every rule, active or not, in matching order.
func (r *Registry) Rules() []*models.Rule {
	return r.listRules(func(*models.Rule) bool { return true })
}

// ActiveRules returns active rules scoped to industry, by descending priority
// and then registration order.
func (r *Registry) ActiveRules(industry string) []*models.Rule {
	return r.listRules(func(rule *models.Rule) bool {
		return rule.Active && rule.AppliesTo(industry)
	})
}

// Workflows returns every workflow in registration order.
func (r *Registry) Workflows() []*models.Workflow {
	return r.listWorkflows(func(*models.Workflow) bool { return true })
}

// ActiveWorkflows returns active workflows serving industry in registration order.
func (r *Registry) ActiveWorkflows(industry string) []*models.Workflow {
	return r.listWorkflows(func(workflow *models.Workflow) bool {
		return workflow.Active && workflow.AppliesTo(industry)
	})
}

func (r *Registry) SetRuleActive(id string, active bool) (*models.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rules[id]
	if !ok {
		return nil, &models.RuleNotFoundError{ID: id}
	}

	updated := entry.rule.Clone()
	updated.Active = active
	updated.UpdatedAt = r.now().UTC()
	entry.rule = updated

	r.logger.Info("rule activation changed", "rule_id", id, "active", active)

	return entry.snapshot(), nil
}

func (r *Registry) SetWorkflowActive(id string, active bool) (*models.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.workflows[id]
	if !ok {
		return nil, &models.WorkflowNotFoundError{ID: id}
	}

	updated := entry.workflow.Clone()
	updated.Active = active
	updated.UpdatedAt = r.now().UTC()
	entry.workflow = updated

	r.logger.Info("workflow activation changed", "workflow_id", id, "active", active)

	return entry.snapshot(), nil
}

// IncrementTriggered bumps the rule's triggered counter and returns the new value.
func (r *Registry) IncrementTriggered(id string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.rules[id]
	if !ok {
		return 0, &models.RuleNotFoundError{ID: id}
	}

	return entry.triggered.Add(1), nil
}

// IncrementExecutions bumps the workflow's execution counter and returns the new value.
func (r *Registry) IncrementExecutions(id string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.workflows[id]
	if !ok {
		return 0, &models.WorkflowNotFoundError{ID: id}
	}

	return entry.executions.Add(1), nil
}

func (r *Registry) HealthCheck(_ context.Context) error {
	return nil
}

func (r *Registry) listRules(keep func(*models.Rule) bool) []*models.Rule {
	r.mu.RLock()

	entries := make([]*ruleEntry, 0, len(r.rules))
	for _, entry := range r.rules {
		if keep(entry.rule) {
			entries = append(entries, entry)
		}
	}

	slices.SortFunc(entries, func(a, b *ruleEntry) int {
		if c := cmp.Compare(b.rule.Priority, a.rule.Priority); c != 0 {
			return c
		}

		return cmp.Compare(a.order, b.order)
	})

	rules := make([]*models.Rule, len(entries))
	for i, entry := range entries {
		rules[i] = entry.snapshot()
	}

	r.mu.RUnlock()

	return rules
}

func (r *Registry) listWorkflows(keep func(*models.Workflow) bool) []*models.Workflow {
	r.mu.RLock()

	entries := make([]*workflowEntry, 0, len(r.workflows))
	for _, entry := range r.workflows {
		if keep(entry.workflow) {
			entries = append(entries, entry)
		}
	}

	slices.SortFunc(entries, func(a, b *workflowEntry) int {
		return cmp.Compare(a.order, b.order)
	})

	workflows := make([]*models.Workflow, len(entries))
	for i, entry := range entries {
		workflows[i] = entry.snapshot()
	}

	r.mu.RUnlock()

	return workflows
}

func (e *ruleEntry) snapshot() *models.Rule {
	rule := e.rule.Clone()
	rule.TriggeredCount = e.triggered.Load()

	return rule
}

func (e *workflowEntry) snapshot() *models.Workflow {
	workflow := e.workflow.Clone()
	workflow.ExecutionCount = e.executions.Load()

	return workflow
}
