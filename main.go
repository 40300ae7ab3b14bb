package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/mbolis/survey-flow/analytics"
	"github.com/mbolis/survey-flow/app"
	"github.com/mbolis/survey-flow/config"
	"github.com/mbolis/survey-flow/database"
	"github.com/mbolis/survey-flow/engine"
	"github.com/mbolis/survey-flow/httpx"
	"github.com/mbolis/survey-flow/log"
	"github.com/mbolis/survey-flow/routes"
	"github.com/mbolis/survey-flow/store"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	st, err := store.New(db, cfg.AnswerKey)
	if err != nil {
		log.Fatal("main.store:", err)
	}

	app := app.App{
		DB:           db,
		BearerServer: httpx.NewBearerServer(db, cfg),
		Config:       cfg,
		Store:        st,
		Flow:         engine.New(st),
		Analytics:    analytics.New(db),
	}

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
