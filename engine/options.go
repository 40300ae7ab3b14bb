package engine

import "github.com/mbolis/survey-flow/model"

// FieldOptions resolves the currently selectable options for a field.
// Fields without dependency rows expose their static options. Fields with
// dependency rows expose exactly the options of the first row whose source
// value matches the current answer, or nothing when no row matches.
func FieldOptions(survey *model.Survey, field *model.Field, answers model.AnswerSet) []model.Option {
	deps := survey.DependenciesOf(field.ID)
	if len(deps) == 0 {
		return field.Options
	}

	for _, dep := range deps {
		if answers[dep.SourceFieldID].String() == dep.SourceValue {
			return dep.DependentOptions
		}
	}
	return nil
}

func optionValues(options []model.Option) map[string]bool {
	values := make(map[string]bool, len(options))
	for _, opt := range options {
		values[opt.Value] = true
	}
	return values
}
