package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mbolis/survey-flow/model"
)

// ResponsesBySurvey lists a survey's responses, newest first, optionally
// filtered by status.
func (s *Store) ResponsesBySurvey(ctx context.Context, surveyID int64, status string) ([]model.SurveyResponse, error) {
	query := `
		SELECT id, survey_id, respondent_id, session_token, status, version,
			started_at, completed_at, last_section_id, ip, user_agent
		FROM survey_response
		WHERE survey_id = ?`
	args := []any{surveyID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_responses")
	}
	defer rows.Close()

	responses := []model.SurveyResponse{}
	for rows.Next() {
		resp := model.SurveyResponse{}
		err := rows.Scan(
			&resp.ID, &resp.SurveyID, &resp.RespondentID, &resp.SessionToken, &resp.Status, &resp.Version,
			&resp.StartedAt, &resp.CompletedAt, &resp.LastSectionID, &resp.IP, &resp.UserAgent,
		)
		if err != nil {
			return nil, errors.Wrap(err, "db.get_responses.scan")
		}
		responses = append(responses, resp)
	}
	return responses, errors.Wrap(rows.Err(), "db.get_responses")
}
