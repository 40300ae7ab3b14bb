package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mbolis/survey-flow/app"
	"github.com/mbolis/survey-flow/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	root.
		With(middlewares.CookieAuth(app.BearerServer), middlewares.Admin(app.TokenSecret)).
		Mount("/admin", servePrivateFiles("/admin"))
	root.Mount("/", servePublicFiles())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	// respondent lifecycle
	api.Post(`/surveys/{id:^\d+$}/start`, StartSurvey(app))
	api.Route("/submissions", func(r chi.Router) {
		r.Get("/current-section", GetCurrentSection(app))
		r.Post("/submit-section", SubmitSection(app))
		r.Get(`/sections/{id:^\d+$}`, GetSection(app))
		r.Post("/finish", FinishSurvey(app))
	})

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))

		// survey authoring
		r.Post("/surveys", CreateSurvey(app))
		r.Get("/surveys", ListSurveys(app))
		r.Get(`/surveys/{id:^\d+$}`, GetSurveyById(app))
		r.Put(`/surveys/{id:^\d+$}`, UpdateSurvey(app))
		r.Delete(`/surveys/{id:^\d+$}`, DeleteSurvey(app))
		r.Post(`/surveys/{id:^\d+$}/publish`, PublishSurvey(app))
		r.Post(`/surveys/{id:^\d+$}/close`, CloseSurvey(app))
		r.Post(`/surveys/{id:^\d+$}/rules`, CreateRule(app))
		r.Post(`/surveys/{id:^\d+$}/dependencies`, CreateDependency(app))

		// collected responses
		r.Get(`/surveys/{id:^\d+$}/responses`, ListResponses(app))
		r.Get(`/surveys/{id:^\d+$}/export`, ExportResponses(app))
		r.Get(`/surveys/{id:^\d+$}/analytics`, SurveyAnalytics(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}

func servePublicFiles() http.Handler {
	return http.FileServer(http.Dir("public"))
}

func servePrivateFiles(path string) http.Handler {
	return http.StripPrefix(path, http.FileServer(http.Dir("private")))
}
