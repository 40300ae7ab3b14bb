package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/survey-flow/engine"
	"github.com/mbolis/survey-flow/model"
)

// fakeStore is an in-memory engine.Store with the same atomicity and
// version-check behavior as the SQL store.
type fakeStore struct {
	surveys   map[int64]*model.Survey
	responses map[string]*model.SurveyResponse
	answers   map[int64]model.AnswerSet
	submitted map[int64]map[int64]bool
	nextID    int64

	beforeSave func() // hook to simulate a concurrent writer
}

func newFakeStore(surveys ...*model.Survey) *fakeStore {
	s := &fakeStore{
		surveys:   map[int64]*model.Survey{},
		responses: map[string]*model.SurveyResponse{},
		answers:   map[int64]model.AnswerSet{},
		submitted: map[int64]map[int64]bool{},
	}
	for _, survey := range surveys {
		s.surveys[survey.ID] = survey
	}
	return s
}

func (s *fakeStore) SurveyByID(_ context.Context, id int64) (*model.Survey, error) {
	survey := s.surveys[id]
	if survey == nil {
		return nil, engine.ErrSurveyNotFound
	}
	return survey, nil
}

func (s *fakeStore) CreateResponse(_ context.Context, resp *model.SurveyResponse) error {
	s.nextID++
	resp.ID = s.nextID
	stored := *resp
	s.responses[resp.SessionToken] = &stored
	s.answers[resp.ID] = model.AnswerSet{}
	s.submitted[resp.ID] = map[int64]bool{}
	return nil
}

func (s *fakeStore) ResponseByToken(_ context.Context, token string) (*model.SurveyResponse, error) {
	stored := s.responses[token]
	if stored == nil {
		return nil, engine.ErrSessionNotFound
	}
	resp := *stored
	return &resp, nil
}

func (s *fakeStore) Answers(_ context.Context, responseID int64) (model.AnswerSet, error) {
	out := model.AnswerSet{}
	for id, value := range s.answers[responseID] {
		out[id] = value
	}
	return out, nil
}

func (s *fakeStore) SubmittedSections(_ context.Context, responseID int64) (map[int64]bool, error) {
	out := map[int64]bool{}
	for id := range s.submitted[responseID] {
		out[id] = true
	}
	return out, nil
}

func (s *fakeStore) SaveSection(_ context.Context, resp *model.SurveyResponse, sectionID int64, answers model.AnswerSet, status model.ResponseStatus) error {
	stored := s.responses[resp.SessionToken]
	if stored == nil {
		return engine.ErrSessionNotFound
	}
	if s.beforeSave != nil {
		s.beforeSave()
	}
	if stored.Version != resp.Version {
		return engine.ErrConcurrentModification
	}

	stored.Version++
	stored.Status = status
	stored.LastSectionID = &sectionID
	for fieldID, value := range answers {
		s.answers[resp.ID][fieldID] = value
	}
	s.submitted[resp.ID][sectionID] = true

	resp.Version = stored.Version
	resp.Status = stored.Status
	resp.LastSectionID = stored.LastSectionID
	return nil
}

func (s *fakeStore) FinishResponse(_ context.Context, resp *model.SurveyResponse, at time.Time) error {
	stored := s.responses[resp.SessionToken]
	if stored == nil {
		return engine.ErrSessionNotFound
	}
	if stored.Version != resp.Version {
		return engine.ErrConcurrentModification
	}

	stored.Version++
	stored.Status = model.ResponseCompleted
	stored.CompletedAt = &at

	resp.Version = stored.Version
	resp.Status = stored.Status
	resp.CompletedAt = stored.CompletedAt
	return nil
}

func TestFlowStart(t *testing.T) {
	survey := demoSurvey()
	store := newFakeStore(survey)
	flow := engine.New(store)
	ctx := context.Background()

	resp, err := flow.Start(ctx, survey.ID, "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionToken)
	assert.Equal(t, model.ResponseInProgress, resp.Status)

	// each session gets its own token
	other, err := flow.Start(ctx, survey.ID, "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.NotEqual(t, resp.SessionToken, other.SessionToken)

	_, err = flow.Start(ctx, 999, "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, engine.ErrSurveyNotFound)
}

func TestFlowStart_UnpublishedSurvey(t *testing.T) {
	survey := demoSurvey()
	survey.Status = model.SurveyDraft
	flow := engine.New(newFakeStore(survey))

	_, err := flow.Start(context.Background(), survey.ID, "", "")
	assert.ErrorIs(t, err, engine.ErrSurveyNotPublished)
}

func TestFlow_WalkThrough(t *testing.T) {
	survey := demoSurvey()
	store := newFakeStore(survey)
	flow := engine.New(store)
	ctx := context.Background()

	resp, err := flow.Start(ctx, survey.ID, "", "")
	require.NoError(t, err)
	token := resp.SessionToken

	current, err := flow.CurrentSection(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, current.CurrentSection)
	assert.EqualValues(t, 10, current.CurrentSection.SectionID)
	assert.Equal(t, 0.0, current.Progress.Percentage)

	// "no" keeps section B hidden: 2 visible sections, 1 done
	submit, err := flow.SubmitSection(ctx, token, 10, model.AnswerSet{100: "no"})
	require.NoError(t, err)
	assert.False(t, submit.IsComplete)
	assert.Equal(t, 2, submit.Progress.TotalSections)
	assert.Equal(t, 50.0, submit.Progress.Percentage)

	current, err = flow.CurrentSection(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, current.CurrentSection)
	assert.EqualValues(t, 30, current.CurrentSection.SectionID)

	// the final section is all-optional; an empty batch completes it
	submit, err = flow.SubmitSection(ctx, token, 30, model.AnswerSet{})
	require.NoError(t, err)
	assert.True(t, submit.IsComplete)
	assert.Equal(t, 100.0, submit.Progress.Percentage)

	current, err = flow.CurrentSection(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, current.CurrentSection)
	assert.True(t, current.IsComplete)

	done, err := flow.Finish(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.ResponseCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	_, err = flow.Finish(ctx, token)
	assert.ErrorIs(t, err, engine.ErrAlreadyCompleted)
}

func TestFlow_EditRevealsSections(t *testing.T) {
	survey := demoSurvey()
	store := newFakeStore(survey)
	flow := engine.New(store)
	ctx := context.Background()

	resp, err := flow.Start(ctx, survey.ID, "", "")
	require.NoError(t, err)
	token := resp.SessionToken

	_, err = flow.SubmitSection(ctx, token, 10, model.AnswerSet{100: "no"})
	require.NoError(t, err)
	_, err = flow.SubmitSection(ctx, token, 30, model.AnswerSet{})
	require.NoError(t, err)
	_, err = flow.Finish(ctx, token)
	require.NoError(t, err)

	// flipping the trigger answer reopens the response and reveals section B
	submit, err := flow.SubmitSection(ctx, token, 10, model.AnswerSet{100: "yes"})
	require.NoError(t, err)
	assert.False(t, submit.IsComplete)
	assert.Equal(t, 3, submit.Progress.TotalSections)
	assert.Equal(t, 1, submit.Progress.SectionsRemaining)

	stored, err := store.ResponseByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.ResponseInProgress, stored.Status)

	current, err := flow.CurrentSection(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, current.CurrentSection)
	assert.EqualValues(t, 20, current.CurrentSection.SectionID)

	submit, err = flow.SubmitSection(ctx, token, 20, model.AnswerSet{200: "laptop", 201: "air-13"})
	require.NoError(t, err)
	assert.True(t, submit.IsComplete)

	done, err := flow.Finish(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.ResponseCompleted, done.Status)
}

func TestFlow_InvalidSubmitPersistsNothing(t *testing.T) {
	survey := demoSurvey()
	store := newFakeStore(survey)
	flow := engine.New(store)
	ctx := context.Background()

	resp, err := flow.Start(ctx, survey.ID, "", "")
	require.NoError(t, err)
	token := resp.SessionToken

	_, err = flow.SubmitSection(ctx, token, 10, model.AnswerSet{100: "yes"})
	require.NoError(t, err)

	_, err = flow.SubmitSection(ctx, token, 20, model.AnswerSet{200: "tablet"})
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "200")

	answers, err := store.Answers(ctx, resp.ID)
	require.NoError(t, err)
	assert.NotContains(t, answers, int64(200))
	submitted, err := store.SubmittedSections(ctx, resp.ID)
	require.NoError(t, err)
	assert.False(t, submitted[20])
}

func TestFlow_SubmitErrors(t *testing.T) {
	survey := demoSurvey()
	store := newFakeStore(survey)
	flow := engine.New(store)
	ctx := context.Background()

	resp, err := flow.Start(ctx, survey.ID, "", "")
	require.NoError(t, err)
	token := resp.SessionToken

	_, err = flow.SubmitSection(ctx, "no-such-token", 10, model.AnswerSet{})
	assert.ErrorIs(t, err, engine.ErrSessionNotFound)

	_, err = flow.SubmitSection(ctx, token, 999, model.AnswerSet{})
	assert.ErrorIs(t, err, engine.ErrSectionNotFound)

	// section B is hidden while the trigger is unanswered
	_, err = flow.SubmitSection(ctx, token, 20, model.AnswerSet{200: "laptop"})
	assert.ErrorIs(t, err, engine.ErrSectionNotVisible)

	// field 300 belongs to another section
	_, err = flow.SubmitSection(ctx, token, 10, model.AnswerSet{100: "yes", 300: "hello"})
	assert.ErrorIs(t, err, engine.ErrSectionOwnership)
}

func TestFlow_ConcurrentModification(t *testing.T) {
	survey := demoSurvey()
	store := newFakeStore(survey)
	flow := engine.New(store)
	ctx := context.Background()

	resp, err := flow.Start(ctx, survey.ID, "", "")
	require.NoError(t, err)
	token := resp.SessionToken

	// another writer commits between load and save
	store.beforeSave = func() {
		store.responses[token].Version++
	}

	_, err = flow.SubmitSection(ctx, token, 10, model.AnswerSet{100: "no"})
	assert.ErrorIs(t, err, engine.ErrConcurrentModification)
}

func TestFlowGetSection(t *testing.T) {
	survey := demoSurvey()
	store := newFakeStore(survey)
	flow := engine.New(store)
	ctx := context.Background()

	resp, err := flow.Start(ctx, survey.ID, "", "")
	require.NoError(t, err)
	token := resp.SessionToken

	_, err = flow.SubmitSection(ctx, token, 10, model.AnswerSet{100: "yes"})
	require.NoError(t, err)

	_, err = flow.GetSection(ctx, token, 999)
	assert.ErrorIs(t, err, engine.ErrSectionNotFound)

	// navigating back pre-fills existing answers
	result, err := flow.GetSection(ctx, token, 10)
	require.NoError(t, err)
	assert.True(t, result.IsEditable)
	require.NotEmpty(t, result.Section.Fields)
	assert.Equal(t, []int64{100, 101}, viewFieldIDs(result.Section.Fields))
	require.NotNil(t, result.Section.Fields[0].CurrentValue)
	assert.EqualValues(t, "yes", *result.Section.Fields[0].CurrentValue)

	// dependent options resolve against the stored answers
	_, err = flow.SubmitSection(ctx, token, 20, model.AnswerSet{200: "phone", 201: "one"})
	require.NoError(t, err)
	result, err = flow.GetSection(ctx, token, 20)
	require.NoError(t, err)
	assert.Equal(t, []model.Option{{Label: "One", Value: "one"}}, result.Section.Fields[1].Options)
}

func TestFlowGetSection_Hidden(t *testing.T) {
	survey := demoSurvey()
	store := newFakeStore(survey)
	flow := engine.New(store)
	ctx := context.Background()

	resp, err := flow.Start(ctx, survey.ID, "", "")
	require.NoError(t, err)

	_, err = flow.GetSection(ctx, resp.SessionToken, 20)
	assert.ErrorIs(t, err, engine.ErrSectionNotVisible)
}

func viewFieldIDs(fields []engine.FieldView) (ids []int64) {
	for _, f := range fields {
		ids = append(ids, f.FieldID)
	}
	return
}
