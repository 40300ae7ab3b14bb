package app

import (
	"database/sql"

	"github.com/go-chi/oauth"

	"github.com/mbolis/survey-flow/analytics"
	"github.com/mbolis/survey-flow/config"
	"github.com/mbolis/survey-flow/engine"
	"github.com/mbolis/survey-flow/store"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config
	Store     *store.Store
	Flow      *engine.Flow
	Analytics *analytics.Service
}
