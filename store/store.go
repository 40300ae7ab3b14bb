package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/mbolis/survey-flow/engine"
	"github.com/mbolis/survey-flow/model"
)

// Store is the sqlite-backed persistence layer behind the progression
// engine. All SubmitSection writes happen in one transaction guarded by an
// optimistic version check on the response row.
type Store struct {
	db  *sql.DB
	box *sealedBox
}

func New(db *sql.DB, answerKey []byte) (*Store, error) {
	box, err := newSealedBox(answerKey)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, box: box}, nil
}

// SurveyByID loads the full definition graph: sections, fields, options,
// rules and dependencies, each in stored order.
func (s *Store) SurveyByID(ctx context.Context, id int64) (*model.Survey, error) {
	survey := &model.Survey{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, version, title, description, status
		FROM survey
		WHERE id = ?`,
		id,
	).Scan(&survey.ID, &survey.Version, &survey.Title, &survey.Description, &survey.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrSurveyNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "db.get_survey")
	}

	if err := s.loadSections(ctx, survey); err != nil {
		return nil, err
	}
	if err := s.loadRules(ctx, survey); err != nil {
		return nil, err
	}
	if err := s.loadDependencies(ctx, survey); err != nil {
		return nil, err
	}
	return survey, nil
}

func (s *Store) loadSections(ctx context.Context, survey *model.Survey) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, ord
		FROM section
		WHERE survey_id = ?
		ORDER BY ord`,
		survey.ID,
	)
	if err != nil {
		return errors.Wrap(err, "db.get_sections")
	}
	defer rows.Close()

	for rows.Next() {
		sec := model.Section{}
		if err := rows.Scan(&sec.ID, &sec.Title, &sec.Description, &sec.Order); err != nil {
			return errors.Wrap(err, "db.get_sections.scan")
		}
		survey.Sections = append(survey.Sections, sec)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "db.get_sections")
	}

	for i := range survey.Sections {
		if err := s.loadFields(ctx, &survey.Sections[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadFields(ctx context.Context, section *model.Section) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.label, f.field_type, f.required, f.sensitive, f.ord, f.config,
			EXISTS (SELECT 1 FROM field_dependency d WHERE d.dependent_field_id = f.id)
		FROM field f
		WHERE f.section_id = ?
		ORDER BY f.ord`,
		section.ID,
	)
	if err != nil {
		return errors.Wrap(err, "db.get_fields")
	}
	defer rows.Close()

	for rows.Next() {
		f := model.Field{SectionID: section.ID}
		var config string
		if err := rows.Scan(&f.ID, &f.Label, &f.Type, &f.Required, &f.Sensitive, &f.Order, &config, &f.DependsOn); err != nil {
			return errors.Wrap(err, "db.get_fields.scan")
		}
		if config != "" {
			if err := json.Unmarshal([]byte(config), &f.Config); err != nil {
				return errors.Wrap(err, "db.get_fields.parse_config")
			}
		}
		section.Fields = append(section.Fields, f)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "db.get_fields")
	}

	for i := range section.Fields {
		if err := s.loadOptions(ctx, &section.Fields[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadOptions(ctx context.Context, field *model.Field) error {
	if !field.Type.HasOptions() {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, value
		FROM field_option
		WHERE field_id = ?
		ORDER BY ord`,
		field.ID,
	)
	if err != nil {
		return errors.Wrap(err, "db.get_options")
	}
	defer rows.Close()

	for rows.Next() {
		opt := model.Option{}
		if err := rows.Scan(&opt.Label, &opt.Value); err != nil {
			return errors.Wrap(err, "db.get_options.scan")
		}
		field.Options = append(field.Options, opt)
	}
	return errors.Wrap(rows.Err(), "db.get_options")
}

// loadRules keeps creation (primary key) order: the visibility resolver
// relies on it for last-rule-wins.
func (s *Store) loadRules(ctx context.Context, survey *model.Survey) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_type, target_id, source_field_id, operator, value, action
		FROM conditional_rule
		WHERE survey_id = ?
		ORDER BY id`,
		survey.ID,
	)
	if err != nil {
		return errors.Wrap(err, "db.get_rules")
	}
	defer rows.Close()

	for rows.Next() {
		r := model.ConditionalRule{}
		if err := rows.Scan(&r.ID, &r.TargetType, &r.TargetID, &r.SourceFieldID, &r.Operator, &r.Value, &r.Action); err != nil {
			return errors.Wrap(err, "db.get_rules.scan")
		}
		survey.Rules = append(survey.Rules, r)
	}
	return errors.Wrap(rows.Err(), "db.get_rules")
}

func (s *Store) loadDependencies(ctx context.Context, survey *model.Survey) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dependent_field_id, source_field_id, source_value, dependent_options
		FROM field_dependency
		WHERE survey_id = ?
		ORDER BY id`,
		survey.ID,
	)
	if err != nil {
		return errors.Wrap(err, "db.get_dependencies")
	}
	defer rows.Close()

	for rows.Next() {
		d := model.FieldDependency{}
		var options string
		if err := rows.Scan(&d.ID, &d.DependentFieldID, &d.SourceFieldID, &d.SourceValue, &options); err != nil {
			return errors.Wrap(err, "db.get_dependencies.scan")
		}
		if err := json.Unmarshal([]byte(options), &d.DependentOptions); err != nil {
			return errors.Wrap(err, "db.get_dependencies.parse_options")
		}
		survey.Dependencies = append(survey.Dependencies, d)
	}
	return errors.Wrap(rows.Err(), "db.get_dependencies")
}

func (s *Store) CreateResponse(ctx context.Context, resp *model.SurveyResponse) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO survey_response (survey_id, respondent_id, session_token, status, started_at, ip, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id, version`,
		resp.SurveyID,
		resp.RespondentID,
		resp.SessionToken,
		resp.Status,
		resp.StartedAt,
		resp.IP,
		resp.UserAgent,
	).Scan(&resp.ID, &resp.Version)
	return errors.Wrap(err, "db.insert_response")
}

func (s *Store) ResponseByToken(ctx context.Context, token string) (*model.SurveyResponse, error) {
	resp := &model.SurveyResponse{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, survey_id, respondent_id, session_token, status, version,
			started_at, completed_at, last_section_id, ip, user_agent
		FROM survey_response
		WHERE session_token = ?`,
		token,
	).Scan(
		&resp.ID, &resp.SurveyID, &resp.RespondentID, &resp.SessionToken, &resp.Status, &resp.Version,
		&resp.StartedAt, &resp.CompletedAt, &resp.LastSectionID, &resp.IP, &resp.UserAgent,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "db.get_response")
	}
	return resp, nil
}

// Answers returns the decrypted view of all answers for a response.
func (s *Store) Answers(ctx context.Context, responseID int64) (model.AnswerSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.field_id, a.value, a.encrypted_value
		FROM field_answer a
		WHERE a.response_id = ?`,
		responseID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_answers")
	}
	defer rows.Close()

	answers := model.AnswerSet{}
	for rows.Next() {
		var fieldID int64
		var value sql.NullString
		var sealed []byte
		if err := rows.Scan(&fieldID, &value, &sealed); err != nil {
			return nil, errors.Wrap(err, "db.get_answers.scan")
		}
		if len(sealed) > 0 {
			plaintext, err := s.box.Open(sealed)
			if err != nil {
				return nil, errors.Wrap(err, "db.get_answers.unseal")
			}
			answers[fieldID] = model.AnswerValue(plaintext)
		} else {
			answers[fieldID] = model.AnswerValue(value.String)
		}
	}
	return answers, errors.Wrap(rows.Err(), "db.get_answers")
}

func (s *Store) SubmittedSections(ctx context.Context, responseID int64) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT section_id
		FROM submitted_section
		WHERE response_id = ?`,
		responseID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_submitted_sections")
	}
	defer rows.Close()

	submitted := map[int64]bool{}
	for rows.Next() {
		var sectionID int64
		if err := rows.Scan(&sectionID); err != nil {
			return nil, errors.Wrap(err, "db.get_submitted_sections.scan")
		}
		submitted[sectionID] = true
	}
	return submitted, errors.Wrap(rows.Err(), "db.get_submitted_sections")
}

// SaveSection commits one validated section batch atomically: the version
// bump on the response row doubles as the optimistic lock, then answers are
// upserted and the section marked submitted. A lost race surfaces as
// engine.ErrConcurrentModification.
func (s *Store) SaveSection(ctx context.Context, resp *model.SurveyResponse, sectionID int64, answers model.AnswerSet, status model.ResponseStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "db.begin_tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE survey_response
		SET
			status = ?,
			completed_at = NULL,
			last_section_id = ?,
			version = version+1
		WHERE	id = ?
			AND version = ?`,
		status,
		sectionID,
		resp.ID,
		resp.Version,
	)
	if err != nil {
		return errors.Wrap(err, "db.update_response")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "db.update_response.verify")
	}
	if n < 1 {
		return engine.ErrConcurrentModification
	}

	sensitive, err := sensitiveFields(ctx, tx, sectionID)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO field_answer (response_id, field_id, value, encrypted_value, answered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (response_id, field_id) DO UPDATE SET
			value = excluded.value,
			encrypted_value = excluded.encrypted_value,
			answered_at = excluded.answered_at`)
	if err != nil {
		return errors.Wrap(err, "db.upsert_answer.prepare")
	}
	defer stmt.Close()

	now := time.Now()
	for fieldID, value := range answers {
		var plain sql.NullString
		var sealed []byte
		if sensitive[fieldID] {
			sealed, err = s.box.Seal(value.String())
			if err != nil {
				return err
			}
		} else {
			plain = sql.NullString{String: value.String(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, resp.ID, fieldID, plain, sealed, now); err != nil {
			return errors.Wrap(err, "db.upsert_answer")
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO submitted_section (response_id, section_id, submitted_at)
		VALUES (?, ?, ?)
		ON CONFLICT (response_id, section_id) DO UPDATE SET
			submitted_at = excluded.submitted_at`,
		resp.ID, sectionID, now,
	)
	if err != nil {
		return errors.Wrap(err, "db.mark_submitted")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "db.save_section.commit")
	}

	resp.Version++
	resp.Status = status
	resp.CompletedAt = nil
	resp.LastSectionID = &sectionID
	return nil
}

func sensitiveFields(ctx context.Context, tx *sql.Tx, sectionID int64) (map[int64]bool, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id
		FROM field
		WHERE section_id = ?
			AND sensitive`,
		sectionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_sensitive_fields")
	}
	defer rows.Close()

	sensitive := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "db.get_sensitive_fields.scan")
		}
		sensitive[id] = true
	}
	return sensitive, errors.Wrap(rows.Err(), "db.get_sensitive_fields")
}

// FinishResponse transitions the response to completed, guarded by the
// same optimistic version check as SaveSection.
func (s *Store) FinishResponse(ctx context.Context, resp *model.SurveyResponse, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE survey_response
		SET
			status = ?,
			completed_at = ?,
			version = version+1
		WHERE	id = ?
			AND status = ?
			AND version = ?`,
		model.ResponseCompleted,
		at,
		resp.ID,
		model.ResponseInProgress,
		resp.Version,
	)
	if err != nil {
		return errors.Wrap(err, "db.finish_response")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "db.finish_response.verify")
	}
	if n < 1 {
		return engine.ErrConcurrentModification
	}

	resp.Version++
	resp.Status = model.ResponseCompleted
	resp.CompletedAt = &at
	return nil
}
