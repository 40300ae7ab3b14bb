package engine

import (
	"strconv"
	"strings"

	"github.com/mbolis/survey-flow/model"
)

// EvaluateRule reports whether the rule's condition holds for the current
// answer to its source field. It is total: unknown operators, missing
// values and non-numeric input all evaluate to false, never to an error.
func EvaluateRule(rule model.ConditionalRule, answer model.AnswerValue) bool {
	if answer.IsEmpty() {
		return rule.Operator == model.OpIsEmpty
	}

	var ruleValue string
	if rule.Value != nil {
		ruleValue = *rule.Value
	}

	switch rule.Operator {
	case model.OpEquals:
		return answer.String() == ruleValue
	case model.OpNotEquals:
		return answer.String() != ruleValue
	case model.OpGreaterThan:
		a, r, ok := parseBoth(answer.String(), ruleValue)
		return ok && a > r
	case model.OpLessThan:
		a, r, ok := parseBoth(answer.String(), ruleValue)
		return ok && a < r
	case model.OpContains:
		if members := answer.Members(); members != nil {
			for _, m := range members {
				if m == ruleValue {
					return true
				}
			}
			return false
		}
		return strings.Contains(strings.ToLower(answer.String()), strings.ToLower(ruleValue))
	case model.OpIn:
		for _, v := range strings.Split(ruleValue, ",") {
			if answer.String() == strings.TrimSpace(v) {
				return true
			}
		}
		return false
	case model.OpIsEmpty:
		return false
	case model.OpIsNotEmpty:
		return true
	}
	return false
}

func parseBoth(a, b string) (fa, fb float64, ok bool) {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	return fa, fb, errA == nil && errB == nil
}
