// internal/types/rules.go
package types

/*
 * Domain types for business-rule evaluation.
 *
 * Rules are authored as YAML or JSON documents and evaluated by
 * internal/rules against arbitrary JSON documents (payloads, reports).
 *
 * Key types:
 *   - Rule: date-windowed conjunction of conditions
 *   - Condition: document path, operator, comparison value
 *   - PathSegment: one component of a compiled path (key, index, marker, loop slot)
 *   - RuleResult: evidence for a matched rule, or the errors it raised
 *
 * Paths use dot notation with "[]" repetition markers: "c[].d" means
 * "field d of every element of array c".
 */

// Operator is the closed set of condition operators.
type Operator string

const (
	OpExists         Operator = "exists"
	OpDoesNotExist   Operator = "does_not_exists"
	OpIsEmpty        Operator = "is_empty"
	OpIsNotEmpty     Operator = "is_not_empty"
	OpEq             Operator = "="
	OpNeq            Operator = "<>"
	OpLt             Operator = "<"
	OpLte            Operator = "<="
	OpGt             Operator = ">"
	OpGte            Operator = ">="
	OpContains       Operator = "contains"
	OpDoesNotContain Operator = "does_not_contains"
	OpIsContained    Operator = "is_contained"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
)

// PathSegment represents one component of a compiled document path.
type PathSegment struct {
	Key     string // object key (mutually exclusive with IsIndex/Each/Bound)
	Index   int    // array index, or loop slot when Bound
	IsIndex bool   // disambiguates Index=0 from unset
	Each    bool   // repetition marker: every element of the preceding array
	Bound   bool   // loop-bound position: Index names the loop slot
}

// Condition is a single comparison against a document path.
type Condition struct {
	Value           string   `json:"value" yaml:"value"`
	Operator        Operator `json:"operator" yaml:"operator"`
	ComparisonValue any      `json:"comparisonValue,omitempty" yaml:"comparisonValue,omitempty"`
}

// Rule is a conjunction of conditions, active between InitialDate and EndDate.
type Rule struct {
	ID          string      `json:"id" yaml:"id"`
	Type        string      `json:"type" yaml:"type"`
	Description string      `json:"description" yaml:"description"`
	InitialDate string      `json:"initialDate,omitempty" yaml:"initialDate,omitempty"`
	EndDate     string      `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	Conditions  []Condition `json:"conditions" yaml:"conditions"`
}

// RuleKeyword tags every rule result.
const RuleKeyword = "conditional"

// ConditionValue records one satisfied condition at a concrete path.
type ConditionValue struct {
	InstancePath      string   `json:"instancePath"`
	InstancePathValue any      `json:"instancePathValue"`
	Operator          Operator `json:"operator"`
	ComparisonValue   any      `json:"comparisonValue"`
}

// ConditionSet is the evidence gathered for one context.
type ConditionSet struct {
	Result          bool             `json:"result"`
	ConditionValues []ConditionValue `json:"conditionValues"`
}

// RuleError describes why a rule could not be evaluated.
type RuleError struct {
	Cause   string `json:"cause"`
	Context string `json:"context"`
}

// RuleResult is emitted for a matched rule or one that raised an error.
type RuleResult struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	Conditions []ConditionSet `json:"conditions"`
	Keyword    string         `json:"keyword"`
	Errors     []RuleError    `json:"errors,omitempty"`
}
