// Package models provides condition evaluation for workflow definition steps.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is a field/operator/value predicate evaluated against request
// form data by condition-type steps.
type Condition struct {
	Field    string `json:"field"    validate:"required"`
	Operator string `json:"operator" validate:"required,oneof=eq neq gt gte lt lte contains"`
	Value    any    `json:"value"`
}

// Evaluate resolves Field against the given data (dot-separated path into
// nested maps) and applies the operator. A missing field evaluates to false
// rather than erroring, so absent optional form fields skip cleanly.
func (c Condition) Evaluate(data map[string]any) (bool, error) {
	actual, found := lookupField(data, c.Field)
	if !found {
		return false, nil
	}

	switch c.Operator {
	case "eq":
		return equal(actual, c.Value), nil
	case "neq":
		return !equal(actual, c.Value), nil
	case "gt", "gte", "lt", "lte":
		left, err := toFloat(actual)
		if err != nil {
			return false, fmt.Errorf("field %q: %w", c.Field, err)
		}

		right, err := toFloat(c.Value)
		if err != nil {
			return false, fmt.Errorf("condition value: %w", err)
		}

		switch c.Operator {
		case "gt":
			return left > right, nil
		case "gte":
			return left >= right, nil
		case "lt":
			return left < right, nil
		default:
			return left <= right, nil
		}
	case "contains":
		haystack, ok := actual.(string)
		if !ok {
			return false, fmt.Errorf("field %q is not a string", c.Field)
		}

		needle, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("condition value is not a string")
		}

		return strings.Contains(haystack, needle), nil
	default:
		return false, fmt.Errorf("unsupported operator: %s", c.Operator)
	}
}

func lookupField(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = data

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func equal(a, b any) bool {
	af, errA := toFloat(a)
	bf, errB := toFloat(b)

	if errA == nil && errB == nil {
		return af == bf
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string %q to number: %w", n, err)
		}

		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}
