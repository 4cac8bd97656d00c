package engine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/variables"
)

// evaluateCondition resolves the field against the variable bag and applies
// the operator. Missing variables resolve to the empty string, so exists
// and is_empty behave sensibly on never-set fields. Malformed regex
// patterns evaluate to false rather than halting the flow.
func evaluateCondition(bag variables.Bag, cfg flow.ConditionConfig) bool {
	raw, found := variables.Resolve(bag, cfg.Field)

	switch cfg.Operator {
	case flow.OpExists:
		return found
	case flow.OpNotExists:
		return !found
	}

	actual := variables.Stringify(raw)
	expected := variables.Interpolate(cfg.Value, bag)

	switch cfg.Operator {
	case flow.OpIsEmpty:
		return actual == ""
	case flow.OpIsNotEmpty:
		return actual != ""
	case flow.OpGreaterThan:
		a, okA := parseNumber(actual)
		b, okB := parseNumber(expected)
		return okA && okB && a > b
	case flow.OpLessThan:
		a, okA := parseNumber(actual)
		b, okB := parseNumber(expected)
		return okA && okB && a < b
	case flow.OpRegex:
		re, err := regexp.Compile(expected)
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	}

	if !cfg.CaseSensitive {
		actual = strings.ToLower(actual)
		expected = strings.ToLower(expected)
	}

	switch cfg.Operator {
	case flow.OpEquals:
		return actual == expected
	case flow.OpNotEquals:
		return actual != expected
	case flow.OpContains:
		return strings.Contains(actual, expected)
	case flow.OpNotContains:
		return !strings.Contains(actual, expected)
	case flow.OpStartsWith:
		return strings.HasPrefix(actual, expected)
	case flow.OpEndsWith:
		return strings.HasSuffix(actual, expected)
	default:
		return false
	}
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}
