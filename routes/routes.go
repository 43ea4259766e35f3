package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mbolis/form-forge/app"
	"github.com/mbolis/form-forge/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))
	root.Mount("/", servePublicFiles())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))
	api.Post("/signup", Signup(app))

	// public form surface
	api.Get("/f/{slug}", PublicGetFormBySlug(app))
	api.Post("/forms/{id}/view", PublicRecordView(app))
	api.Post("/forms/{id}/submit", PublicSubmitForm(app))

	api.Post("/stripe/webhook", StripeWebhook(app))

	// owner surface
	api.Group(func(r chi.Router) {
		r.Use(middlewares.Authenticated(app.TokenSecret))

		r.Post("/forms", CreateForm(app))
		r.Get("/forms", ListForms(app))
		r.Get("/forms/{id}", GetFormById(app))
		r.Patch("/forms/{id}", UpdateForm(app))
		r.Delete("/forms/{id}", DeleteForm(app))

		r.Post("/forms/{id}/fields", UpsertFields(app))
		r.Post("/forms/{id}/publish", PublishForm(app))

		r.Get("/forms/{id}/submissions", GetFormSubmissions(app))
		r.Delete("/submissions/{id}", DeleteSubmission(app))
		r.Get("/export", ExportSubmissionsCSV(app))

		r.Post("/ai/generate", GenerateForm(app))
		r.Post("/billing/checkout", BillingCheckout(app))
		r.Post("/billing/portal", BillingPortal(app))
	})

	return api
}

func servePublicFiles() http.Handler {
	return http.FileServer(http.Dir("public"))
}
