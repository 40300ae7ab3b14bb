package engine

import (
	"math"

	"github.com/mbolis/survey-flow/model"
)

// Progress summarizes how far a respondent has come through the currently
// visible sections.
type Progress struct {
	SectionsCompleted int     `json:"sections_completed"`
	TotalSections     int     `json:"total_sections"`
	SectionsRemaining int     `json:"sections_remaining"`
	Percentage        float64 `json:"percentage"`
}

// SectionComplete reports whether a visible section counts as completed:
// it was submitted at least once and every required visible field of it
// holds a non-empty answer.
func SectionComplete(survey *model.Survey, section *model.Section, answers model.AnswerSet, submitted map[int64]bool) bool {
	if !submitted[section.ID] {
		return false
	}
	for _, field := range VisibleFields(survey, section, answers) {
		if field.Required && answers[field.ID].IsEmpty() {
			return false
		}
	}
	return true
}

// ComputeProgress derives completion metrics from the full answer set.
// Hidden sections are invisible to the calculation; zero visible sections
// yields 0%, not a division failure.
func ComputeProgress(survey *model.Survey, answers model.AnswerSet, submitted map[int64]bool) Progress {
	visible := VisibleSections(survey, answers)

	completed := 0
	for i := range visible {
		if SectionComplete(survey, &visible[i], answers, submitted) {
			completed++
		}
	}

	p := Progress{
		SectionsCompleted: completed,
		TotalSections:     len(visible),
		SectionsRemaining: len(visible) - completed,
	}
	if p.TotalSections > 0 {
		p.Percentage = math.Round(float64(completed)/float64(p.TotalSections)*100*100) / 100
	}
	return p
}
