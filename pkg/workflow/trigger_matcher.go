package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/escalate/pkg/conditions"
	"github.com/dukex/escalate/pkg/eventbus"
	"github.com/dukex/escalate/pkg/events"
	"github.com/dukex/escalate/pkg/models"
	"github.com/google/uuid"
)

// RuleSource is the part of the registry the matcher reads from.
type RuleSource interface {
	ActiveRules(industry string) []*models.Rule
	IncrementTriggered(id string) (int64, error)
}

// TriggerMatcher scores active rules against a conversation context.
type TriggerMatcher struct {
	rules     RuleSource
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

// NewTriggerMatcher creates a matcher. publisher may be nil.
func NewTriggerMatcher(rules RuleSource, publisher eventbus.EventPublisher, logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		rules:     rules,
		publisher: publisher,
		logger:    logger.With("module", "trigger_matcher"),
	}
}

// Match evaluates every active rule for industry and returns the ones that
// matched, in registry order. Every rule is evaluated even after a match.
func (tm *TriggerMatcher) Match(ctx context.Context, c models.Context, industry string) []models.MatchResult {
	rules := tm.rules.ActiveRules(industry)
	results := make([]models.MatchResult, 0)

	tm.logger.Debug("Matching rules against context",
		"industry", industry,
		"rules_count", len(rules))

	for _, rule := range rules {
		matched, traces := conditions.EvaluateAll(rule.Conditions, c)
		if !matched {
			continue
		}

		count, err := tm.rules.IncrementTriggered(rule.ID)
		if err != nil {
			tm.logger.Warn("Failed to increment triggered count", "rule_id", rule.ID, "error", err)
		} else {
			rule.TriggeredCount = count
		}

		result := models.MatchResult{
			Rule: rule,
			Trace: models.MatchTrace{
				RuleID:     rule.ID,
				Conditions: traces,
				Result:     matched,
			},
		}

		switch rule.Kind {
		case models.RuleKindEscalationAction:
			result.Actions = rule.Actions
		case models.RuleKindWorkflowTrigger:
			result.WorkflowID = rule.WorkflowID
		}

		results = append(results, result)

		tm.logger.Debug("Rule matched",
			"rule_id", rule.ID,
			"rule_kind", rule.Kind,
			"triggered_count", rule.TriggeredCount)

		tm.publish(ctx, industry, result)
	}

	tm.logger.Info("Completed rule matching",
		"industry", industry,
		"matches_found", len(results))

	return results
}

func (tm *TriggerMatcher) publish(ctx context.Context, industry string, result models.MatchResult) {
	if tm.publisher == nil {
		return
	}

	event := events.RuleMatched{
		BaseEvent: events.BaseEvent{
			ID:         uuid.NewString(),
			Type:       events.RuleMatchedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: result.WorkflowID,
		},
		RuleID:    result.Rule.ID,
		RuleKind:  result.Rule.Kind,
		Industry:  industry,
		Actions:   result.Actions,
		Trace:     result.Trace,
		Triggered: result.Rule.TriggeredCount,
	}

	if err := tm.publisher.Publish(ctx, result.Rule.ID, event); err != nil {
		tm.logger.Error("Failed to publish rule matched event", "rule_id", result.Rule.ID, "error", err)
	}
}
