package engine

import (
	"context"
	"time"

	"github.com/gofrs/uuid"

	"github.com/mbolis/survey-flow/model"
)

// Store is the persistence port the flow drives. Implementations must make
// SaveSection atomic (answers upsert + section marker + response update in
// one transaction) and fail with ErrConcurrentModification when the
// response version moved under a concurrent writer.
type Store interface {
	SurveyByID(ctx context.Context, id int64) (*model.Survey, error)
	CreateResponse(ctx context.Context, resp *model.SurveyResponse) error
	ResponseByToken(ctx context.Context, token string) (*model.SurveyResponse, error)
	Answers(ctx context.Context, responseID int64) (model.AnswerSet, error)
	SubmittedSections(ctx context.Context, responseID int64) (map[int64]bool, error)
	SaveSection(ctx context.Context, resp *model.SurveyResponse, sectionID int64, answers model.AnswerSet, status model.ResponseStatus) error
	FinishResponse(ctx context.Context, resp *model.SurveyResponse, at time.Time) error
}

// Flow drives a survey response through its lifecycle. It is stateless
// between calls: everything is re-derived from the store on each request.
type Flow struct {
	store Store
}

func New(store Store) *Flow {
	return &Flow{store: store}
}

// FieldView is a visible field merged with its resolved option list and,
// for navigation, the respondent's existing answer.
type FieldView struct {
	FieldID      int64              `json:"field_id"`
	Label        string             `json:"label"`
	Type         model.FieldType    `json:"field_type"`
	Required     bool               `json:"is_required"`
	Config       model.FieldConfig  `json:"config"`
	CurrentValue *model.AnswerValue `json:"current_value,omitempty"`
	Options      []model.Option     `json:"options,omitempty"`
}

type SectionView struct {
	SectionID int64       `json:"section_id"`
	Title     string      `json:"title"`
	Order     int         `json:"order"`
	Fields    []FieldView `json:"fields"`
}

type CurrentSectionResult struct {
	CurrentSection *SectionView `json:"current_section"`
	IsComplete     bool         `json:"is_complete"`
	Progress       Progress     `json:"progress"`
}

type SectionResult struct {
	Section    *SectionView `json:"section"`
	IsEditable bool         `json:"is_editable"`
	Progress   Progress     `json:"progress"`
}

type SubmitResult struct {
	IsComplete bool     `json:"is_complete"`
	Progress   Progress `json:"progress"`
}

// Start opens a new response session against a published survey and hands
// out an unguessable session token.
func (f *Flow) Start(ctx context.Context, surveyID int64, ip, userAgent string) (*model.SurveyResponse, error) {
	survey, err := f.store.SurveyByID(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if survey.Status != model.SurveyPublished {
		return nil, ErrSurveyNotPublished
	}

	token, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	resp := &model.SurveyResponse{
		SurveyID:     surveyID,
		SessionToken: token.String(),
		Status:       model.ResponseInProgress,
		StartedAt:    time.Now(),
		IP:           ip,
		UserAgent:    userAgent,
	}
	if err := f.store.CreateResponse(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CurrentSection returns the first visible section the respondent has not
// completed yet, re-derived from scratch on every call.
func (f *Flow) CurrentSection(ctx context.Context, token string) (*CurrentSectionResult, error) {
	_, survey, answers, submitted, err := f.load(ctx, token)
	if err != nil {
		return nil, err
	}

	progress := ComputeProgress(survey, answers, submitted)
	for _, section := range VisibleSections(survey, answers) {
		section := section
		if SectionComplete(survey, &section, answers, submitted) {
			continue
		}
		view := f.sectionView(survey, &section, answers, nil)
		return &CurrentSectionResult{CurrentSection: view, Progress: progress}, nil
	}

	return &CurrentSectionResult{IsComplete: true, Progress: progress}, nil
}

// GetSection returns a visible section with existing answers pre-filled,
// for navigating back to a previously submitted section.
func (f *Flow) GetSection(ctx context.Context, token string, sectionID int64) (*SectionResult, error) {
	_, survey, answers, submitted, err := f.load(ctx, token)
	if err != nil {
		return nil, err
	}

	section := survey.SectionByID(sectionID)
	if section == nil {
		return nil, ErrSectionNotFound
	}
	if !SectionVisible(survey, sectionID, answers) {
		return nil, ErrSectionNotVisible
	}

	view := f.sectionView(survey, section, answers, answers)
	return &SectionResult{
		Section:    view,
		IsEditable: true,
		Progress:   ComputeProgress(survey, answers, submitted),
	}, nil
}

// SubmitSection validates and commits one section's batch of answers as an
// all-or-nothing unit, then reports recomputed progress. Resubmitting a
// section of a completed response reopens it: status flips back to
// in-progress and the respondent must finish again.
func (f *Flow) SubmitSection(ctx context.Context, token string, sectionID int64, batch model.AnswerSet) (*SubmitResult, error) {
	resp, survey, prior, submitted, err := f.load(ctx, token)
	if err != nil {
		return nil, err
	}

	section := survey.SectionByID(sectionID)
	if section == nil {
		return nil, ErrSectionNotFound
	}

	if err := ValidateSection(survey, section, batch, prior); err != nil {
		return nil, err
	}

	// editing a completed response reopens it
	if err := f.store.SaveSection(ctx, resp, sectionID, batch, model.ResponseInProgress); err != nil {
		return nil, err
	}

	answers := prior.Merged(batch)
	submitted[sectionID] = true

	progress := ComputeProgress(survey, answers, submitted)
	return &SubmitResult{
		IsComplete: f.isComplete(survey, answers, submitted),
		Progress:   progress,
	}, nil
}

// Finish transitions the response to completed. Finishing twice is a
// conflict, never a silent success.
func (f *Flow) Finish(ctx context.Context, token string) (*model.SurveyResponse, error) {
	resp, err := f.store.ResponseByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if resp.Status == model.ResponseCompleted {
		return nil, ErrAlreadyCompleted
	}

	if err := f.store.FinishResponse(ctx, resp, time.Now()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *Flow) load(ctx context.Context, token string) (*model.SurveyResponse, *model.Survey, model.AnswerSet, map[int64]bool, error) {
	resp, err := f.store.ResponseByToken(ctx, token)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	survey, err := f.store.SurveyByID(ctx, resp.SurveyID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	answers, err := f.store.Answers(ctx, resp.ID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	submitted, err := f.store.SubmittedSections(ctx, resp.ID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return resp, survey, answers, submitted, nil
}

func (f *Flow) isComplete(survey *model.Survey, answers model.AnswerSet, submitted map[int64]bool) bool {
	for _, section := range VisibleSections(survey, answers) {
		section := section
		if !SectionComplete(survey, &section, answers, submitted) {
			return false
		}
	}
	return true
}

func (f *Flow) sectionView(survey *model.Survey, section *model.Section, answers model.AnswerSet, current model.AnswerSet) *SectionView {
	view := &SectionView{
		SectionID: section.ID,
		Title:     section.Title,
		Order:     section.Order,
	}
	for _, field := range VisibleFields(survey, section, answers) {
		fv := FieldView{
			FieldID:  field.ID,
			Label:    field.Label,
			Type:     field.Type,
			Required: field.Required,
			Config:   field.Config,
		}
		if field.Type.HasOptions() {
			fv.Options = FieldOptions(survey, &field, answers)
		}
		if current != nil {
			if value, ok := current[field.ID]; ok && !value.IsEmpty() {
				value := value
				fv.CurrentValue = &value
			}
		}
		view.Fields = append(view.Fields, fv)
	}
	return view
}
