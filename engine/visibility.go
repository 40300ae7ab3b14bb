package engine

import (
	"sort"

	"github.com/mbolis/survey-flow/model"
)

// VisibleSections computes the ordered list of sections currently shown to
// the respondent. Sections with no applicable rule are visible; rules are
// applied in creation order and the last matching rule per section wins.
func VisibleSections(survey *model.Survey, answers model.AnswerSet) []model.Section {
	visible := make(map[int64]bool, len(survey.Sections))
	for _, section := range survey.Sections {
		visible[section.ID] = true
	}

	for _, rule := range survey.Rules {
		if rule.TargetType != model.TargetSection {
			continue
		}
		if _, known := visible[rule.TargetID]; !known {
			continue
		}
		applyRule(rule, answers, visible)
	}

	sections := make([]model.Section, 0, len(survey.Sections))
	for _, section := range survey.Sections {
		if visible[section.ID] {
			sections = append(sections, section)
		}
	}
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Order < sections[j].Order
	})
	return sections
}

// SectionVisible reports whether one section is currently visible.
func SectionVisible(survey *model.Survey, sectionID int64, answers model.AnswerSet) bool {
	for _, s := range VisibleSections(survey, answers) {
		if s.ID == sectionID {
			return true
		}
	}
	return false
}

// VisibleFields computes the ordered list of visible fields of a section.
// Fields of a hidden section are hidden regardless of field-level rules.
func VisibleFields(survey *model.Survey, section *model.Section, answers model.AnswerSet) []model.Field {
	if !SectionVisible(survey, section.ID, answers) {
		return nil
	}

	visible := make(map[int64]bool, len(section.Fields))
	for _, field := range section.Fields {
		visible[field.ID] = true
	}

	for _, rule := range survey.Rules {
		if rule.TargetType != model.TargetField {
			continue
		}
		if _, known := visible[rule.TargetID]; !known {
			continue
		}
		applyRule(rule, answers, visible)
	}

	fields := make([]model.Field, 0, len(section.Fields))
	for _, field := range section.Fields {
		if visible[field.ID] {
			fields = append(fields, field)
		}
	}
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Order < fields[j].Order
	})
	return fields
}

func applyRule(rule model.ConditionalRule, answers model.AnswerSet, visible map[int64]bool) {
	met := EvaluateRule(rule, answers[rule.SourceFieldID])
	switch rule.Action {
	case model.ActionShow:
		visible[rule.TargetID] = met
	case model.ActionHide:
		visible[rule.TargetID] = !met
	}
}
