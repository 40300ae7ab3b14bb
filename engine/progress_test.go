package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mbolis/survey-flow/engine"
	"github.com/mbolis/survey-flow/model"
)

func TestSectionComplete(t *testing.T) {
	survey := demoSurvey()
	sectionA := survey.SectionByID(10)

	// never submitted: not complete even with all answers in place
	answers := model.AnswerSet{100: "no"}
	assert.False(t, engine.SectionComplete(survey, sectionA, answers, map[int64]bool{}))

	// submitted with the required field answered
	submitted := map[int64]bool{10: true}
	assert.True(t, engine.SectionComplete(survey, sectionA, answers, submitted))

	// submitted but the required answer later cleared
	assert.False(t, engine.SectionComplete(survey, sectionA, model.AnswerSet{100: ""}, submitted))

	// an all-optional section counts as complete once the marker exists
	sectionC := survey.SectionByID(30)
	assert.False(t, engine.SectionComplete(survey, sectionC, model.AnswerSet{}, map[int64]bool{}))
	assert.True(t, engine.SectionComplete(survey, sectionC, model.AnswerSet{}, map[int64]bool{30: true}))
}

func TestComputeProgress(t *testing.T) {
	survey := demoSurvey()

	// customer == no: section B hidden, 2 visible sections total
	answers := model.AnswerSet{100: "no"}
	p := engine.ComputeProgress(survey, answers, map[int64]bool{10: true})
	assert.Equal(t, 1, p.SectionsCompleted)
	assert.Equal(t, 2, p.TotalSections)
	assert.Equal(t, 1, p.SectionsRemaining)
	assert.Equal(t, 50.0, p.Percentage)

	// customer == yes: section B joins the denominator
	answers = model.AnswerSet{100: "yes"}
	p = engine.ComputeProgress(survey, answers, map[int64]bool{10: true})
	assert.Equal(t, 1, p.SectionsCompleted)
	assert.Equal(t, 3, p.TotalSections)
	assert.InDelta(t, 33.33, p.Percentage, 0.001)

	p = engine.ComputeProgress(survey, answers, map[int64]bool{})
	assert.Equal(t, 0, p.SectionsCompleted)
	assert.Equal(t, 0.0, p.Percentage)
}

func TestComputeProgress_NoVisibleSections(t *testing.T) {
	survey := demoSurvey()
	for i := range survey.Sections {
		survey.Rules = append(survey.Rules, model.ConditionalRule{
			ID: int64(100 + i), TargetType: model.TargetSection, TargetID: survey.Sections[i].ID,
			SourceFieldID: 100, Operator: model.OpIsEmpty, Action: model.ActionHide,
		})
	}

	p := engine.ComputeProgress(survey, model.AnswerSet{}, map[int64]bool{})
	assert.Equal(t, 0, p.TotalSections)
	assert.Equal(t, 0.0, p.Percentage)
}
