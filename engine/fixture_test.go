package engine_test

import "github.com/mbolis/survey-flow/model"

// demoSurvey builds a three-section survey:
//
//   - Section A (10): radio "Are you a customer?" (100, required),
//     text "Company name" (101) shown only when customer == yes
//   - Section B (20): shown only when customer == yes;
//     dropdown "Product" (200, required),
//     dropdown "Model" (201) whose options depend on the product
//   - Section C (30): always visible, optional text "Comments" (300)
func demoSurvey() *model.Survey {
	return &model.Survey{
		ID:     1,
		Status: model.SurveyPublished,
		Title:  "Customer feedback",
		Sections: []model.Section{
			{
				ID:    10,
				Title: "About you",
				Order: 1,
				Fields: []model.Field{
					{
						ID: 100, SectionID: 10, Label: "Are you a customer?",
						Type: model.FieldRadio, Required: true, Order: 1,
						Options: []model.Option{
							{Label: "Yes", Value: "yes"},
							{Label: "No", Value: "no"},
						},
					},
					{
						ID: 101, SectionID: 10, Label: "Company name",
						Type: model.FieldText, Order: 2,
					},
				},
			},
			{
				ID:    20,
				Title: "Your product",
				Order: 2,
				Fields: []model.Field{
					{
						ID: 200, SectionID: 20, Label: "Product",
						Type: model.FieldDropdown, Required: true, Order: 1,
						Options: []model.Option{
							{Label: "Laptop", Value: "laptop"},
							{Label: "Phone", Value: "phone"},
						},
					},
					{
						ID: 201, SectionID: 20, Label: "Model",
						Type: model.FieldDropdown, Order: 2, DependsOn: true,
					},
				},
			},
			{
				ID:    30,
				Title: "Anything else?",
				Order: 3,
				Fields: []model.Field{
					{
						ID: 300, SectionID: 30, Label: "Comments",
						Type: model.FieldText, Order: 1,
					},
				},
			},
		},
		Rules: []model.ConditionalRule{
			{
				ID: 1, TargetType: model.TargetSection, TargetID: 20,
				SourceFieldID: 100, Operator: model.OpEquals, Value: strptr("yes"),
				Action: model.ActionShow,
			},
			{
				ID: 2, TargetType: model.TargetField, TargetID: 101,
				SourceFieldID: 100, Operator: model.OpEquals, Value: strptr("yes"),
				Action: model.ActionShow,
			},
		},
		Dependencies: []model.FieldDependency{
			{
				ID: 1, DependentFieldID: 201, SourceFieldID: 200, SourceValue: "laptop",
				DependentOptions: []model.Option{
					{Label: "Air 13", Value: "air-13"},
					{Label: "Pro 16", Value: "pro-16"},
				},
			},
			{
				ID: 2, DependentFieldID: 201, SourceFieldID: 200, SourceValue: "phone",
				DependentOptions: []model.Option{
					{Label: "One", Value: "one"},
				},
			},
		},
	}
}

func sectionIDs(sections []model.Section) (ids []int64) {
	for _, s := range sections {
		ids = append(ids, s.ID)
	}
	return
}

func fieldIDs(fields []model.Field) (ids []int64) {
	for _, f := range fields {
		ids = append(ids, f.ID)
	}
	return
}
