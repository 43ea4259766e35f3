package routes

import (
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gofrs/uuid"
	"github.com/mbolis/form-forge/app"
	"github.com/mbolis/form-forge/httpx"
	"github.com/mbolis/form-forge/intake"
	"github.com/mbolis/form-forge/log"
	"github.com/mbolis/form-forge/model"
	"github.com/mbolis/form-forge/routes/middlewares"
)

const visitorCookieMaxAge = 60 * 60 * 24 * 365 // one year

func PublicGetFormBySlug(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formSlug := chi.URLParam(r, "slug")

		form := model.Form{Slug: formSlug}
		err := app.QueryRowContext(r.Context(), `
			SELECT id, title, description, allow_multiple_responses
			FROM form
			WHERE slug = ?
				AND status = ?`,
			formSlug,
			model.FormStatusPublished,
		).Scan(&form.ID, &form.Title, &form.Description, &form.AllowMultipleResponses)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_form", formSlug)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}
		form.Status = model.FormStatusPublished

		formFields, err := loadFields(r, app, form.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form.fields", err)
			return
		}

		// tell a returning visitor they already answered
		submitted := false
		if !form.AllowMultipleResponses {
			if cookie, err := r.Cookie("v_" + form.ID); err == nil {
				var count int
				err = app.QueryRowContext(r.Context(), `
					SELECT COUNT(*) FROM submission
					WHERE form_id = ?
						AND visitor_token = ?`,
					form.ID,
					cookie.Value,
				).Scan(&count)
				if err != nil {
					httpx.LogInternalError(w, "db.get_form.submitted", err)
					return
				}
				submitted = count > 0
			}
		}

		render.JSON(w, r, map[string]any{
			"form":      form,
			"fields":    formFields,
			"submitted": submitted,
		})
	}
}

func PublicRecordView(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")
		visitor := visitorToken(r, formId)

		var userId any
		if id := middlewares.MaybeUserID(app.TokenSecret, r); id != "" {
			userId = id
		}

		_, err := app.ExecContext(r.Context(), `
			INSERT INTO form_view (id, form_id, user_id, visitor_token, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			uuid.Must(uuid.NewV4()).String(),
			formId,
			userId,
			visitor,
			time.Now().UTC(),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_view", err)
			return
		}

		setVisitorCookie(w, formId, visitor)
		render.JSON(w, r, map[string]any{
			"ok": true,
		})
	}
}

func PublicSubmitForm(app app.App) http.HandlerFunc {
	pipeline := &intake.Pipeline{DB: app.DB, Files: app.Files}

	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")
		visitor := visitorToken(r, formId)
		caller := intake.Caller{
			UserID:       middlewares.MaybeUserID(app.TokenSecret, r),
			VisitorToken: visitor,
		}

		res, err := pipeline.Submit(r.Context(), formId, r, caller)
		if err != nil {
			if errors.Is(err, intake.ErrFormNotFound) {
				httpx.LogNotFound(w, "submit_form", formId)
				return
			}
			log.Errorf("submit_form: %s", err)

			// best effort: land the visitor back on the form page
			if res.Slug != "" {
				redirectToForm(w, r, res.Slug, "error="+string(intake.ReasonFailed))
				return
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if !res.Accepted {
			redirectToForm(w, r, res.Slug, "error="+string(res.Reason))
			return
		}

		setVisitorCookie(w, formId, visitor)
		redirectToForm(w, r, res.Slug, "submitted=1")
	}
}

func redirectToForm(w http.ResponseWriter, r *http.Request, formSlug, query string) {
	http.Redirect(w, r, "/f/"+url.PathEscape(formSlug)+"?"+query, http.StatusSeeOther)
}

// visitorToken reads the per-form visitor cookie, minting a fresh token when
// the visitor has none yet.
func visitorToken(r *http.Request, formId string) string {
	cookie, err := r.Cookie("v_" + formId)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return uuid.Must(uuid.NewV4()).String()
}

func setVisitorCookie(w http.ResponseWriter, formId, visitor string) {
	http.SetCookie(w, &http.Cookie{
		Path:   "/",
		Name:   "v_" + formId,
		Value:  visitor,
		MaxAge: visitorCookieMaxAge,
	})
}
