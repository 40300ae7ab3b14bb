package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mbolis/survey-flow/engine"
	"github.com/mbolis/survey-flow/model"
)

func strptr(s string) *string { return &s }

func TestEvaluateRule(t *testing.T) {
	tests := []struct {
		name     string
		operator model.Operator
		value    *string
		answer   model.AnswerValue
		want     bool
	}{
		{"equals match", model.OpEquals, strptr("yes"), "yes", true},
		{"equals mismatch", model.OpEquals, strptr("yes"), "no", false},
		{"equals absent answer", model.OpEquals, strptr("yes"), "", false},
		{"not_equals match", model.OpNotEquals, strptr("yes"), "no", true},
		{"not_equals mismatch", model.OpNotEquals, strptr("yes"), "yes", false},
		{"not_equals absent answer", model.OpNotEquals, strptr("yes"), "", false},

		{"greater_than true", model.OpGreaterThan, strptr("18"), "25", true},
		{"greater_than false", model.OpGreaterThan, strptr("18"), "12", false},
		{"greater_than equal", model.OpGreaterThan, strptr("18"), "18", false},
		{"greater_than non-numeric answer", model.OpGreaterThan, strptr("18"), "abc", false},
		{"greater_than non-numeric rule value", model.OpGreaterThan, strptr("abc"), "25", false},
		{"less_than true", model.OpLessThan, strptr("18"), "12", true},
		{"less_than false", model.OpLessThan, strptr("18"), "25", false},
		{"less_than decimal", model.OpLessThan, strptr("18.5"), "18.25", true},

		{"contains substring", model.OpContains, strptr("road"), "Broadway", true},
		{"contains case-insensitive", model.OpContains, strptr("ROAD"), "broadway", true},
		{"contains no substring", model.OpContains, strptr("road"), "Main St", false},
		{"contains checkbox member", model.OpContains, strptr("b"), model.MultiValue([]string{"a", "b"}), true},
		{"contains checkbox non-member", model.OpContains, strptr("c"), model.MultiValue([]string{"a", "b"}), false},

		{"in member", model.OpIn, strptr("red,green,blue"), "green", true},
		{"in member with spaces", model.OpIn, strptr("red, green, blue"), "green", true},
		{"in non-member", model.OpIn, strptr("red,green,blue"), "yellow", false},

		{"is_empty on absent", model.OpIsEmpty, nil, "", true},
		{"is_empty on blank", model.OpIsEmpty, nil, "   ", true},
		{"is_empty on empty checkbox", model.OpIsEmpty, nil, "[]", true},
		{"is_empty on present", model.OpIsEmpty, nil, "x", false},
		{"is_empty ignores rule value", model.OpIsEmpty, strptr("whatever"), "", true},
		{"is_not_empty on present", model.OpIsNotEmpty, nil, "x", true},
		{"is_not_empty on absent", model.OpIsNotEmpty, nil, "", false},
		{"is_not_empty ignores rule value", model.OpIsNotEmpty, strptr("whatever"), "x", true},

		// a nil comparison value must never panic
		{"equals nil rule value", model.OpEquals, nil, "yes", false},
		{"greater_than nil rule value", model.OpGreaterThan, nil, "25", false},
		{"in nil rule value", model.OpIn, nil, "yes", false},

		{"unknown operator", model.Operator("between"), strptr("1"), "2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := model.ConditionalRule{
				SourceFieldID: 1,
				Operator:      tt.operator,
				Value:         tt.value,
				Action:        model.ActionShow,
			}
			assert.Equal(t, tt.want, engine.EvaluateRule(rule, tt.answer))
		})
	}
}
