// Package models provides condition evaluation for journey branching.
package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CompareOperator is the comparison applied by a condition node.
type CompareOperator string

const (
	OperatorGreaterThan    CompareOperator = ">"
	OperatorLessThan       CompareOperator = "<"
	OperatorGreaterOrEqual CompareOperator = ">="
	OperatorLessOrEqual    CompareOperator = "<="
	OperatorEqual          CompareOperator = "="
)

// ConditionConfig compares a context (or subject) field against a threshold.
type ConditionConfig struct {
	Field    string          `json:"field"    validate:"required"`
	Operator CompareOperator `json:"operator" validate:"required"`
	Value    any             `json:"value"    validate:"required"`
}

// Evaluate applies the configured comparison to value. Both operands are
// coerced to numbers; any operand that cannot be coerced evaluates to false,
// never an error. Conditions always resolve to a boolean.
func (c *ConditionConfig) Evaluate(value any) bool {
	left, ok := toNumber(value)
	if !ok {
		return false
	}

	right, ok := toNumber(c.Value)
	if !ok {
		return false
	}

	switch c.Operator {
	case OperatorGreaterThan:
		return left > right
	case OperatorLessThan:
		return left < right
	case OperatorGreaterOrEqual:
		return left >= right
	case OperatorLessOrEqual:
		return left <= right
	case OperatorEqual:
		return left == right
	default:
		return false
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)

		return f, err == nil
	default:
		return 0, false
	}
}
