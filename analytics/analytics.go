package analytics

import (
	"context"
	"database/sql"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mbolis/survey-flow/engine"
	"github.com/mbolis/survey-flow/model"
)

// Stats aggregates response counters for one survey.
type Stats struct {
	SurveyID             int64      `json:"survey_id"`
	SurveyTitle          string     `json:"survey_title"`
	TotalResponses       int        `json:"total_responses"`
	CompletedResponses   int        `json:"completed_responses"`
	InProgressResponses  int        `json:"in_progress_responses"`
	CompletionRate       float64    `json:"completion_rate"`
	AvgCompletionSeconds *int64     `json:"average_completion_time_seconds"`
	LastResponseAt       *time.Time `json:"last_response_at"`
}

// Service computes per-survey statistics, memoized for a short TTL.
type Service struct {
	db  *sql.DB
	ttl time.Duration

	mu    sync.Mutex
	cache map[int64]cached
}

type cached struct {
	stats   Stats
	expires time.Time
}

func New(db *sql.DB) *Service {
	return &Service{db: db, ttl: 60 * time.Second, cache: map[int64]cached{}}
}

func (s *Service) SurveyStats(ctx context.Context, surveyID int64) (Stats, error) {
	s.mu.Lock()
	entry, hit := s.cache[surveyID]
	s.mu.Unlock()
	if hit && time.Now().Before(entry.expires) {
		return entry.stats, nil
	}

	stats, err := s.compute(ctx, surveyID)
	if err != nil {
		return Stats{}, err
	}

	s.mu.Lock()
	s.cache[surveyID] = cached{stats: stats, expires: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return stats, nil
}

// Invalidate drops the cached entry; call it when a response changes.
func (s *Service) Invalidate(surveyID int64) {
	s.mu.Lock()
	delete(s.cache, surveyID)
	s.mu.Unlock()
}

func (s *Service) compute(ctx context.Context, surveyID int64) (Stats, error) {
	stats := Stats{SurveyID: surveyID}
	err := s.db.QueryRowContext(ctx, `
		SELECT title FROM survey WHERE id = ?`,
		surveyID,
	).Scan(&stats.SurveyTitle)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, engine.ErrSurveyNotFound
	}
	if err != nil {
		return stats, errors.Wrap(err, "db.get_survey")
	}

	var lastResponse sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = ? THEN 1 END),
			COUNT(CASE WHEN status = ? THEN 1 END),
			MAX(started_at)
		FROM survey_response
		WHERE survey_id = ?`,
		model.ResponseCompleted,
		model.ResponseInProgress,
		surveyID,
	).Scan(&stats.TotalResponses, &stats.CompletedResponses, &stats.InProgressResponses, &lastResponse)
	if err != nil {
		return stats, errors.Wrap(err, "db.count_responses")
	}
	if lastResponse.Valid {
		stats.LastResponseAt = &lastResponse.Time
	}

	if stats.TotalResponses > 0 {
		rate := float64(stats.CompletedResponses) / float64(stats.TotalResponses) * 100
		stats.CompletionRate = math.Round(rate*100) / 100
	}

	var avgSeconds sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG(strftime('%s', completed_at) - strftime('%s', started_at))
		FROM survey_response
		WHERE survey_id = ?
			AND status = ?
			AND completed_at IS NOT NULL`,
		surveyID,
		model.ResponseCompleted,
	).Scan(&avgSeconds)
	if err != nil {
		return stats, errors.Wrap(err, "db.avg_completion_time")
	}
	if avgSeconds.Valid {
		avg := int64(avgSeconds.Float64)
		stats.AvgCompletionSeconds = &avg
	}

	return stats, nil
}
