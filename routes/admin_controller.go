package routes

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/survey-flow/app"
	"github.com/mbolis/survey-flow/engine"
	"github.com/mbolis/survey-flow/httpx"
	"github.com/mbolis/survey-flow/log"
	"github.com/mbolis/survey-flow/model"
)

func CreateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		survey := model.Survey{}
		err := render.DecodeJSON(r.Body, &survey)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		var surveyId int64
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO survey (title, description, status) VALUES (?, ?, ?)
			RETURNING id`,
			survey.Title,
			survey.Description,
			model.SurveyDraft,
		).Scan(&surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey", err)
			return
		}

		err = insertSections(r, tx, surveyId, survey.Sections)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey.sections", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": surveyId,
		})
	}
}

func insertSections(r *http.Request, tx *sql.Tx, surveyId int64, sections []model.Section) error {
	sectionStmt, err := tx.PrepareContext(r.Context(), `
		INSERT INTO section (survey_id, title, description, ord)
		VALUES (?, ?, ?, ?)
		RETURNING id`)
	if err != nil {
		return err
	}
	defer sectionStmt.Close()

	fieldStmt, err := tx.PrepareContext(r.Context(), `
		INSERT INTO field (section_id, label, field_type, required, sensitive, ord, config)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	if err != nil {
		return err
	}
	defer fieldStmt.Close()

	optionStmt, err := tx.PrepareContext(r.Context(), `
		INSERT INTO field_option (field_id, label, value, ord)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer optionStmt.Close()

	for i, section := range sections {
		ord := section.Order
		if ord == 0 {
			ord = i + 1
		}

		var sectionId int64
		err = sectionStmt.QueryRowContext(r.Context(), surveyId, section.Title, section.Description, ord).Scan(&sectionId)
		if err != nil {
			return err
		}

		for j, field := range section.Fields {
			fieldOrd := field.Order
			if fieldOrd == 0 {
				fieldOrd = j + 1
			}

			configJson, err := json.Marshal(field.Config)
			if err != nil {
				return err
			}

			var fieldId int64
			err = fieldStmt.QueryRowContext(r.Context(),
				sectionId, field.Label, field.Type, field.Required, field.Sensitive, fieldOrd, string(configJson),
			).Scan(&fieldId)
			if err != nil {
				return err
			}

			for k, opt := range field.Options {
				_, err = optionStmt.ExecContext(r.Context(), fieldId, opt.Label, opt.Value, k+1)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT s.id, s.version, s.title, s.description, s.status
			FROM survey s`)
		if err != nil {
			httpx.LogInternalError(w, "db.get_surveys", err)
			return
		}
		defer rows.Close()

		surveys := []model.Survey{}
		for rows.Next() {
			s := model.Survey{}
			err = rows.Scan(&s.ID, &s.Version, &s.Title, &s.Description, &s.Status)
			if err != nil {
				httpx.LogInternalError(w, "db.get_surveys.scan", err)
				return
			}

			surveys = append(surveys, s)
		}

		render.JSON(w, r, map[string]any{
			"surveys": surveys,
		})
	}
}

func GetSurveyById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey, err := app.Store.SurveyByID(r.Context(), surveyId)
		if err != nil {
			if errors.Is(err, engine.ErrSurveyNotFound) {
				httpx.LogNotFound(w, "get_survey", surveyId)
			} else {
				httpx.LogInternalError(w, "db.get_survey", err)
			}
			return
		}

		render.JSON(w, r, survey)
	}
}

// UpdateSurvey replaces a draft survey's metadata and definition wholesale,
// guarded by an optimistic version check. Published surveys are immutable.
func UpdateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey := model.Survey{}
		err = render.DecodeJSON(r.Body, &survey)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(r.Context(), `
			UPDATE survey
			SET
				title = ?,
				description = ?,
				updated_at = CURRENT_TIMESTAMP,
				version = version+1
			WHERE	id = ?
				AND version = ?
				AND status = ?`,
			survey.Title,
			survey.Description,
			surveyId,
			survey.Version,
			model.SurveyDraft,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey", err)
			return
		}
		// optimistic lock, and drafts only
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.verify", err)
			return
		}
		if n < 1 {
			httpx.LogStatus(w, http.StatusConflict, log.DebugLevel, "db.update_survey.verify.conflict")
			return
		}

		// recreate the definition graph (cascades to fields and options)
		_, err = tx.ExecContext(r.Context(), `
			DELETE FROM section
			WHERE survey_id = ?`,
			surveyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.delete_sections", err)
			return
		}

		err = insertSections(r, tx, surveyId, survey.Sections)
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.sections", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM survey WHERE id = ?`,
			surveyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_survey", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_survey.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_survey", surveyId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func transitionSurvey(app app.App, code string, from, to model.SurveyStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			UPDATE survey
			SET
				status = ?,
				updated_at = CURRENT_TIMESTAMP,
				version = version+1
			WHERE	id = ?
				AND status = ?`,
			to,
			surveyId,
			from,
		)
		if err != nil {
			httpx.LogInternalError(w, code, err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, code+".verify", err)
			return
		}
		if n < 1 {
			httpx.LogStatus(w, http.StatusConflict, log.DebugLevel, code+".conflict")
			return
		}

		render.JSON(w, r, map[string]any{
			"id":     surveyId,
			"status": to,
		})
	}
}

func PublishSurvey(app app.App) http.HandlerFunc {
	return transitionSurvey(app, "db.publish_survey", model.SurveyDraft, model.SurveyPublished)
}

func CloseSurvey(app app.App) http.HandlerFunc {
	return transitionSurvey(app, "db.close_survey", model.SurveyPublished, model.SurveyClosed)
}

func CreateRule(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		rule := model.ConditionalRule{}
		err = render.DecodeJSON(r.Body, &rule)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		// source field and target must belong to this survey
		ok, err := fieldInSurvey(r, app, rule.SourceFieldID, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_rule.check_source", err)
			return
		}
		if !ok {
			httpx.LogStatusMsg(w, http.StatusUnprocessableEntity, log.DebugLevel, "rule.source_field", "source field does not belong to survey %d", surveyId)
			return
		}
		switch rule.TargetType {
		case model.TargetSection:
			ok, err = sectionInSurvey(r, app, rule.TargetID, surveyId)
		case model.TargetField:
			ok, err = fieldInSurvey(r, app, rule.TargetID, surveyId)
		default:
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "rule.target_type", "invalid target type %q", rule.TargetType)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.insert_rule.check_target", err)
			return
		}
		if !ok {
			httpx.LogStatusMsg(w, http.StatusUnprocessableEntity, log.DebugLevel, "rule.target", "target does not belong to survey %d", surveyId)
			return
		}

		var ruleId int64
		err = app.QueryRowContext(r.Context(), `
			INSERT INTO conditional_rule (survey_id, target_type, target_id, source_field_id, operator, value, action)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			surveyId, rule.TargetType, rule.TargetID, rule.SourceFieldID, rule.Operator, rule.Value, rule.Action,
		).Scan(&ruleId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_rule", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": ruleId,
		})
	}
}

func CreateDependency(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		dep := model.FieldDependency{}
		err = render.DecodeJSON(r.Body, &dep)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		for _, fieldId := range []int64{dep.DependentFieldID, dep.SourceFieldID} {
			ok, err := fieldInSurvey(r, app, fieldId, surveyId)
			if err != nil {
				httpx.LogInternalError(w, "db.insert_dependency.check_field", err)
				return
			}
			if !ok {
				httpx.LogStatusMsg(w, http.StatusUnprocessableEntity, log.DebugLevel, "dependency.field", "field %d does not belong to survey %d", fieldId, surveyId)
				return
			}
		}

		optionsJson, err := json.Marshal(dep.DependentOptions)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_dependency.parse_options", err)
			return
		}

		var depId int64
		err = app.QueryRowContext(r.Context(), `
			INSERT INTO field_dependency (survey_id, dependent_field_id, source_field_id, source_value, dependent_options)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`,
			surveyId, dep.DependentFieldID, dep.SourceFieldID, dep.SourceValue, string(optionsJson),
		).Scan(&depId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_dependency", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": depId,
		})
	}
}

func sectionInSurvey(r *http.Request, app app.App, sectionId, surveyId int64) (bool, error) {
	var ok bool
	err := app.QueryRowContext(r.Context(), `
		SELECT 1 FROM section WHERE id = ? AND survey_id = ?`,
		sectionId, surveyId,
	).Scan(&ok)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return ok, err
}

func fieldInSurvey(r *http.Request, app app.App, fieldId, surveyId int64) (bool, error) {
	var ok bool
	err := app.QueryRowContext(r.Context(), `
		SELECT 1
		FROM field f
		INNER JOIN section s ON (f.section_id = s.id)
		WHERE f.id = ? AND s.survey_id = ?`,
		fieldId, surveyId,
	).Scan(&ok)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return ok, err
}

func ListResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		responses, err := app.Store.ResponsesBySurvey(r.Context(), surveyId, r.URL.Query().Get("status"))
		if err != nil {
			httpx.LogInternalError(w, "db.get_responses", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"responses": responses,
		})
	}
}

// ExportResponses streams all responses of a survey as CSV, one row per
// response and one column per field, sensitive values decrypted.
func ExportResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey, err := app.Store.SurveyByID(r.Context(), surveyId)
		if err != nil {
			if errors.Is(err, engine.ErrSurveyNotFound) {
				httpx.LogNotFound(w, "export_responses", surveyId)
			} else {
				httpx.LogInternalError(w, "db.get_survey", err)
			}
			return
		}

		responses, err := app.Store.ResponsesBySurvey(r.Context(), surveyId, r.URL.Query().Get("status"))
		if err != nil {
			httpx.LogInternalError(w, "db.get_responses", err)
			return
		}

		var fields []model.Field
		for _, section := range survey.Sections {
			fields = append(fields, section.Fields...)
		}

		w.Header().Set("content-type", "text/csv")
		w.Header().Set("content-disposition", `attachment; filename="responses.csv"`)

		out := csv.NewWriter(w)
		header := []string{"response_id", "status", "started_at", "completed_at"}
		for _, f := range fields {
			header = append(header, f.Label)
		}
		if err := out.Write(header); err != nil {
			log.Errorf("export_responses.write_header: %s", err)
			return
		}

		for _, resp := range responses {
			answers, err := app.Store.Answers(r.Context(), resp.ID)
			if err != nil {
				log.Errorf("export_responses.answers: %s", err)
				return
			}

			completedAt := ""
			if resp.CompletedAt != nil {
				completedAt = resp.CompletedAt.Format("2006-01-02 15:04:05")
			}
			row := []string{
				strconv.FormatInt(resp.ID, 10),
				string(resp.Status),
				resp.StartedAt.Format("2006-01-02 15:04:05"),
				completedAt,
			}
			for _, f := range fields {
				row = append(row, answers[f.ID].String())
			}
			if err := out.Write(row); err != nil {
				log.Errorf("export_responses.write_row: %s", err)
				return
			}
		}
		out.Flush()
	}
}

func SurveyAnalytics(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		stats, err := app.Analytics.SurveyStats(r.Context(), surveyId)
		if err != nil {
			if errors.Is(err, engine.ErrSurveyNotFound) {
				httpx.LogNotFound(w, "get_analytics", surveyId)
			} else {
				httpx.LogInternalError(w, "db.get_analytics", err)
			}
			return
		}

		render.JSON(w, r, stats)
	}
}
