package model

import "time"

type SurveyStatus string

const (
	SurveyDraft     SurveyStatus = "draft"
	SurveyPublished SurveyStatus = "published"
	SurveyClosed    SurveyStatus = "closed"
)

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldDropdown FieldType = "dropdown"
	FieldRadio    FieldType = "radio"
	FieldCheckbox FieldType = "checkbox"
)

// HasOptions reports whether the field type takes a predefined option list.
func (t FieldType) HasOptions() bool {
	return t == FieldDropdown || t == FieldRadio || t == FieldCheckbox
}

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpIn          Operator = "in"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
)

type RuleAction string

const (
	ActionShow RuleAction = "show"
	ActionHide RuleAction = "hide"
)

type RuleTarget string

const (
	TargetSection RuleTarget = "section"
	TargetField   RuleTarget = "field"
)

type ResponseStatus string

const (
	ResponseInProgress ResponseStatus = "in_progress"
	ResponseCompleted  ResponseStatus = "completed"
)

// Survey is the full definition graph, immutable for the duration of a
// response session once published.
type Survey struct {
	ID           int64             `json:"id,omitempty"`
	Version      int               `json:"version,omitempty"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Status       SurveyStatus      `json:"status"`
	Sections     []Section         `json:"sections"`
	Rules        []ConditionalRule `json:"rules,omitempty"`
	Dependencies []FieldDependency `json:"dependencies,omitempty"`
}

type Section struct {
	ID          int64   `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Order       int     `json:"order"`
	Fields      []Field `json:"fields"`
}

type Field struct {
	ID         int64       `json:"id,omitempty"`
	SectionID  int64       `json:"section_id,omitempty"`
	Label      string      `json:"label"`
	Type       FieldType   `json:"field_type"`
	Required   bool        `json:"is_required"`
	Sensitive  bool        `json:"is_sensitive"`
	Order      int         `json:"order"`
	Config     FieldConfig `json:"config"`
	Options    []Option    `json:"options,omitempty"`
	DependsOn  bool        `json:"has_dependencies,omitempty"`
}

// FieldConfig carries type-specific constraints. Zero pointers mean
// unconstrained.
type FieldConfig struct {
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinDate   *string  `json:"min_date,omitempty"`
	MaxDate   *string  `json:"max_date,omitempty"`
}

type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ConditionalRule shows or hides a section or field when the answer to the
// source field satisfies the operator. Rules are kept in creation order;
// the last matching rule targeting an entity wins.
type ConditionalRule struct {
	ID            int64      `json:"id,omitempty"`
	TargetType    RuleTarget `json:"target_type"`
	TargetID      int64      `json:"target_id"`
	SourceFieldID int64      `json:"source_field_id"`
	Operator      Operator   `json:"operator"`
	Value         *string    `json:"value,omitempty"`
	Action        RuleAction `json:"action"`
}

// FieldDependency swaps the option list of the dependent field when the
// source field's answer equals SourceValue.
type FieldDependency struct {
	ID               int64    `json:"id,omitempty"`
	DependentFieldID int64    `json:"dependent_field_id"`
	SourceFieldID    int64    `json:"source_field_id"`
	SourceValue      string   `json:"source_value"`
	DependentOptions []Option `json:"dependent_options"`
}

type SurveyResponse struct {
	ID            int64          `json:"id"`
	SurveyID      int64          `json:"survey_id"`
	SessionToken  string         `json:"session_token,omitempty"`
	RespondentID  *int64         `json:"respondent_id,omitempty"`
	Status        ResponseStatus `json:"status"`
	Version       int            `json:"-"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	LastSectionID *int64         `json:"last_section_id,omitempty"`
	IP            string         `json:"-"`
	UserAgent     string         `json:"-"`
}

// FieldAnswer holds the current value for one (response, field) pair.
// For sensitive fields the store keeps only a sealed payload at rest;
// Value here is always the comparison/display view.
type FieldAnswer struct {
	ID         int64       `json:"id,omitempty"`
	ResponseID int64       `json:"response_id"`
	FieldID    int64       `json:"field_id"`
	Value      AnswerValue `json:"value"`
	AnsweredAt time.Time   `json:"answered_at"`
}

// SectionByID returns the section with the given id, or nil.
func (s *Survey) SectionByID(id int64) *Section {
	for i := range s.Sections {
		if s.Sections[i].ID == id {
			return &s.Sections[i]
		}
	}
	return nil
}

// FieldByID returns the field with the given id, or nil.
func (s *Survey) FieldByID(id int64) *Field {
	for i := range s.Sections {
		for j := range s.Sections[i].Fields {
			if s.Sections[i].Fields[j].ID == id {
				return &s.Sections[i].Fields[j]
			}
		}
	}
	return nil
}

// DependenciesOf returns the dependency rows filtering the given field's
// options, in creation order.
func (s *Survey) DependenciesOf(fieldID int64) (deps []FieldDependency) {
	for _, d := range s.Dependencies {
		if d.DependentFieldID == fieldID {
			deps = append(deps, d)
		}
	}
	return
}
