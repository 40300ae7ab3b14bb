package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mbolis/survey-flow/model"
)

const dateLayout = "2006-01-02"

// ValidateSection checks one section's submission batch against visibility,
// ownership, requiredness, type and option constraints.
//
// A hidden section or a batch value for a foreign field aborts with the
// corresponding sentinel error. All other failures are collected into a
// ValidationError; the caller must persist nothing when err is non-nil.
func ValidateSection(survey *model.Survey, section *model.Section, batch, prior model.AnswerSet) error {
	if !SectionVisible(survey, section.ID, prior) {
		return ErrSectionNotVisible
	}

	sectionFields := make(map[int64]*model.Field, len(section.Fields))
	for i := range section.Fields {
		sectionFields[section.Fields[i].ID] = &section.Fields[i]
	}
	for fieldID := range batch {
		if sectionFields[fieldID] == nil {
			return ErrSectionOwnership
		}
	}

	visible := VisibleFields(survey, section, prior)
	visibleIDs := make(map[int64]bool, len(visible))
	for _, f := range visible {
		visibleIDs[f.ID] = true
	}

	// option checks run against the answers as they will stand after this
	// batch, so a trigger answered in the same submission takes effect
	merged := prior.Merged(batch)

	errs := map[string]string{}
	for fieldID, value := range batch {
		field := sectionFields[fieldID]
		key := strconv.FormatInt(fieldID, 10)

		if !visibleIDs[fieldID] {
			errs[key] = "This field is not available based on your previous answers."
			continue
		}
		if value.IsEmpty() {
			continue // emptiness is the required check's business
		}
		if msg := checkValue(survey, field, value, merged); msg != "" {
			errs[key] = msg
		}
	}

	for _, field := range visible {
		if !field.Required {
			continue
		}
		if batch[field.ID].IsEmpty() && prior[field.ID].IsEmpty() {
			errs[strconv.FormatInt(field.ID, 10)] = "This field is required."
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkValue(survey *model.Survey, field *model.Field, value model.AnswerValue, answers model.AnswerSet) string {
	switch field.Type {
	case model.FieldText:
		length := utf8.RuneCountInString(value.String())
		if min := field.Config.MinLength; min != nil && length < *min {
			return fmt.Sprintf("Value must be at least %d characters long", *min)
		}
		if max := field.Config.MaxLength; max != nil && length > *max {
			return fmt.Sprintf("Value must be at most %d characters long", *max)
		}

	case model.FieldNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(value.String()), 64)
		if err != nil {
			return fmt.Sprintf("Value '%s' is not a valid number", value)
		}
		if min := field.Config.Min; min != nil && n < *min {
			return fmt.Sprintf("Value must be at least %v", *min)
		}
		if max := field.Config.Max; max != nil && n > *max {
			return fmt.Sprintf("Value must be at most %v", *max)
		}

	case model.FieldDate:
		d, err := time.Parse(dateLayout, value.String())
		if err != nil {
			return fmt.Sprintf("Value '%s' is not a valid date (expected YYYY-MM-DD)", value)
		}
		if min := field.Config.MinDate; min != nil {
			if minDate, err := time.Parse(dateLayout, *min); err == nil && d.Before(minDate) {
				return fmt.Sprintf("Date must not be before %s", *min)
			}
		}
		if max := field.Config.MaxDate; max != nil {
			if maxDate, err := time.Parse(dateLayout, *max); err == nil && d.After(maxDate) {
				return fmt.Sprintf("Date must not be after %s", *max)
			}
		}

	case model.FieldDropdown, model.FieldRadio:
		allowed := optionValues(FieldOptions(survey, field, answers))
		if !allowed[value.String()] {
			return fmt.Sprintf("Value '%s' is not a valid option", value)
		}

	case model.FieldCheckbox:
		members := value.Members()
		if members == nil {
			return "Value must be a list of selected options"
		}
		allowed := optionValues(FieldOptions(survey, field, answers))
		for _, m := range members {
			if !allowed[m] {
				return fmt.Sprintf("Value '%s' is not a valid option", m)
			}
		}
	}
	return ""
}
