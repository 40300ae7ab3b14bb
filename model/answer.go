package model

import (
	"encoding/json"
	"strings"
)

// AnswerValue is the stored form of an answer: plain text for scalar
// fields, a JSON array string for checkbox fields.
type AnswerValue string

// AnswerSet maps field id to the respondent's current answer.
type AnswerSet map[int64]AnswerValue

func (v AnswerValue) String() string { return string(v) }

func (v AnswerValue) IsEmpty() bool {
	s := strings.TrimSpace(string(v))
	return s == "" || s == "[]"
}

// Members decodes a multi-value (checkbox) answer. Scalar answers yield nil.
func (v AnswerValue) Members() []string {
	s := strings.TrimSpace(string(v))
	if !strings.HasPrefix(s, "[") {
		return nil
	}
	var members []string
	if err := json.Unmarshal([]byte(s), &members); err != nil {
		return nil
	}
	return members
}

// MultiValue encodes a list of selected option values as a checkbox answer.
func MultiValue(values []string) AnswerValue {
	b, _ := json.Marshal(values)
	return AnswerValue(b)
}

// Merged returns a copy of the set overlaid with the given answers.
func (a AnswerSet) Merged(overlay AnswerSet) AnswerSet {
	merged := make(AnswerSet, len(a)+len(overlay))
	for id, v := range a {
		merged[id] = v
	}
	for id, v := range overlay {
		merged[id] = v
	}
	return merged
}
