package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/survey-flow/app"
	"github.com/mbolis/survey-flow/engine"
	"github.com/mbolis/survey-flow/httpx"
	"github.com/mbolis/survey-flow/log"
	"github.com/mbolis/survey-flow/model"
)

const sessionTokenHeader = "X-Session-Token"

func StartSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		resp, err := app.Flow.Start(r.Context(), surveyId, clientIP(r), r.UserAgent())
		if err != nil {
			renderFlowError(w, r, "submission.start", err)
			return
		}
		app.Analytics.Invalidate(surveyId)

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"session_token": resp.SessionToken,
		})
	}
}

func GetCurrentSection(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := sessionToken(w, r)
		if !ok {
			return
		}

		result, err := app.Flow.CurrentSection(r.Context(), token)
		if err != nil {
			renderFlowError(w, r, "submission.current_section", err)
			return
		}

		render.JSON(w, r, result)
	}
}

func GetSection(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := sessionToken(w, r)
		if !ok {
			return
		}
		sectionId, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		result, err := app.Flow.GetSection(r.Context(), token, sectionId)
		if err != nil {
			renderFlowError(w, r, "submission.get_section", err)
			return
		}

		render.JSON(w, r, result)
	}
}

type submitSectionRequest struct {
	SectionID int64 `json:"section_id"`
	Answers   []struct {
		FieldID int64 `json:"field_id"`
		Value   any   `json:"value"`
	} `json:"answers"`
}

func SubmitSection(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := sessionToken(w, r)
		if !ok {
			return
		}

		req := submitSectionRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		batch := model.AnswerSet{}
		for _, answer := range req.Answers {
			batch[answer.FieldID] = answerValue(answer.Value)
		}

		result, err := app.Flow.SubmitSection(r.Context(), token, req.SectionID, batch)
		if err != nil {
			renderFlowError(w, r, "submission.submit_section", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"status":      "success",
			"message":     "Section saved successfully",
			"is_complete": result.IsComplete,
			"progress":    result.Progress,
		})
	}
}

func FinishSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := sessionToken(w, r)
		if !ok {
			return
		}

		resp, err := app.Flow.Finish(r.Context(), token)
		if err != nil {
			renderFlowError(w, r, "submission.finish", err)
			return
		}
		app.Analytics.Invalidate(resp.SurveyID)

		render.JSON(w, r, map[string]any{
			"message":      "Survey completed successfully",
			"completed_at": resp.CompletedAt,
		})
	}
}

func sessionToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := r.Header.Get(sessionTokenHeader)
	if token == "" {
		httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "request.session_token", "%s header required", sessionTokenHeader)
		return "", false
	}
	return token, true
}

// answerValue normalizes a decoded JSON answer into its stored form:
// arrays become checkbox answers, everything else a scalar string.
func answerValue(value any) model.AnswerValue {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return model.AnswerValue(v)
	case float64:
		return model.AnswerValue(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		return model.AnswerValue(strconv.FormatBool(v))
	case []any:
		members := make([]string, len(v))
		for i, m := range v {
			members[i] = string(answerValue(m))
		}
		return model.MultiValue(members)
	default:
		return model.AnswerValue(fmt.Sprint(v))
	}
}

// renderFlowError translates engine error kinds to transport status codes.
// The engine itself never performs this translation.
func renderFlowError(w http.ResponseWriter, r *http.Request, code string, err error) {
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		log.Debugf("%s: validation failed: %v", code, verr.Fields)
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, map[string]any{
			"status": "error",
			"errors": verr.Fields,
		})

	case errors.Is(err, engine.ErrSessionNotFound),
		errors.Is(err, engine.ErrSurveyNotFound),
		errors.Is(err, engine.ErrSurveyNotPublished),
		errors.Is(err, engine.ErrSectionNotFound):
		httpx.LogNotFound(w, code, err)

	case errors.Is(err, engine.ErrSectionNotVisible):
		httpx.LogStatusMsg(w, http.StatusForbidden, log.DebugLevel, code, "%s", err)

	case errors.Is(err, engine.ErrSectionOwnership):
		httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, code, "%s", err)

	case errors.Is(err, engine.ErrAlreadyCompleted),
		errors.Is(err, engine.ErrConcurrentModification):
		httpx.LogStatusMsg(w, http.StatusConflict, log.DebugLevel, code, "%s", err)

	default:
		httpx.LogInternalError(w, code, err)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return strings.Split(r.RemoteAddr, ":")[0]
}
