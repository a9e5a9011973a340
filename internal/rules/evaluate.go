// internal/rules/evaluate.go
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/types"
)

/*
 * Rule evaluation orchestration.
 *
 * Evaluation flow per rule:
 *   1. Date window check (initialDate <= now <= endDate, open when absent)
 *   2. Path compilation and loop discovery
 *   3. Chain validation (invalid rules are logged and skipped)
 *   4. No loops: one short-circuit AND over the conditions in order
 *   5. Loops: expand contexts, evaluate the AND once per context
 *   6. Emit a result when the AND held (no loops) or held in any context
 *
 * Evidence only carries contexts whose conjunction held. Any error while
 * evaluating a rule becomes a result with an errors entry; the batch
 * continues with the next rule.
 */

// Engine evaluates business rules against JSON documents.
type Engine struct {
	logger      zerolog.Logger
	clock       types.Clock
	maxContexts int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for date windows.
func WithClock(c types.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithMaxContexts overrides DefaultMaxContexts.
func WithMaxContexts(n int) Option {
	return func(e *Engine) { e.maxContexts = n }
}

// NewEngine creates a rules engine.
func NewEngine(logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:      logger.With().Str("component", "rules").Logger(),
		clock:       types.SystemClock{},
		maxContexts: DefaultMaxContexts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateJSON decodes data and evaluates rules against it.
func (e *Engine) EvaluateJSON(data []byte, rules []types.Rule) ([]types.RuleResult, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return e.Evaluate(doc, rules), nil
}

// Evaluate returns a result for every active rule that matched or failed.
func (e *Engine) Evaluate(doc any, rules []types.Rule) []types.RuleResult {
	now := e.clock.Now()
	results := []types.RuleResult{}

	for _, rule := range rules {
		active, err := Active(rule, now)
		if err != nil {
			e.logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("Rule has unparseable dates, skipping")
			continue
		}
		if !active {
			continue
		}

		sets, matched, err := e.evaluateRule(doc, rule)
		if errors.Is(err, types.ErrInvalidRule) {
			e.logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("Invalid rule: different array structures referenced in the same rule")
			continue
		}
		if err != nil {
			e.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("Error processing rule")
			results = append(results, types.RuleResult{
				ID:         rule.ID,
				Type:       rule.Type,
				Message:    rule.Description,
				Conditions: []types.ConditionSet{},
				Keyword:    types.RuleKeyword,
				Errors: []types.RuleError{{
					Cause:   err.Error(),
					Context: fmt.Sprintf("Error occurred while processing rule [%s]", rule.ID),
				}},
			})
			continue
		}
		if matched {
			results = append(results, types.RuleResult{
				ID:         rule.ID,
				Type:       rule.Type,
				Message:    rule.Description,
				Conditions: sets,
				Keyword:    types.RuleKeyword,
			})
		}
	}
	return results
}

// Active reports whether now falls inside the rule's date window.
func Active(rule types.Rule, now time.Time) (bool, error) {
	if rule.InitialDate != "" {
		start, err := parseDate(rule.InitialDate)
		if err != nil {
			return false, fmt.Errorf("initialDate: %w", err)
		}
		if now.Before(start) {
			return false, nil
		}
	}
	if rule.EndDate != "" {
		end, err := parseDate(rule.EndDate)
		if err != nil {
			return false, fmt.Errorf("endDate: %w", err)
		}
		if now.After(end) {
			return false, nil
		}
	}
	return true, nil
}

// parseDate accepts RFC3339 timestamps or calendar days (midnight UTC).
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(types.DateLayout, s)
}

// evaluateRule returns the successful condition sets and whether the rule matched.
func (e *Engine) evaluateRule(doc any, rule types.Rule) ([]types.ConditionSet, bool, error) {
	paths := make([]Path, len(rule.Conditions))
	for i, cond := range rule.Conditions {
		p, err := ParsePath(cond.Value)
		if err != nil {
			return nil, false, err
		}
		paths[i] = p
	}

	loops, err := discoverLoops(paths)
	if err != nil {
		return nil, false, err
	}

	if len(loops) == 0 {
		set, ok, err := evaluateConjunction(doc, rule.Conditions, paths, nil)
		if err != nil || !ok {
			return nil, false, err
		}
		return []types.ConditionSet{set}, true, nil
	}

	contexts, err := expandContexts(doc, loops, e.maxContexts)
	if err != nil {
		return nil, false, err
	}

	var sets []types.ConditionSet
	for _, ctx := range contexts {
		set, ok, err := evaluateConjunction(doc, rule.Conditions, paths, ctx)
		if err != nil {
			return nil, false, fmt.Errorf("context %v: %w", []int(ctx), err)
		}
		if ok {
			sets = append(sets, set)
		}
	}
	return sets, len(sets) > 0, nil
}

// evaluateConjunction evaluates conditions in order, stopping at the first false.
func evaluateConjunction(doc any, conds []types.Condition, paths []Path, ctx Context) (types.ConditionSet, bool, error) {
	set := types.ConditionSet{ConditionValues: []types.ConditionValue{}}
	for i, cond := range conds {
		bound := paths[i].Bind(ctx)
		value, found := Resolve(bound, doc)
		ok, err := Compare(cond.Operator, value, found, cond.ComparisonValue)
		if err != nil {
			return set, false, fmt.Errorf("condition %q %s: %w", bound, cond.Operator, err)
		}
		if !ok {
			return set, false, nil
		}
		set.ConditionValues = append(set.ConditionValues, types.ConditionValue{
			InstancePath:      bound.String(),
			InstancePathValue: value,
			Operator:          cond.Operator,
			ComparisonValue:   cond.ComparisonValue,
		})
	}
	set.Result = true
	return set, true, nil
}
