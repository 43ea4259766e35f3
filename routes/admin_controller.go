package routes

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gofrs/uuid"
	"github.com/mbolis/form-forge/app"
	"github.com/mbolis/form-forge/fields"
	"github.com/mbolis/form-forge/httpx"
	"github.com/mbolis/form-forge/log"
	"github.com/mbolis/form-forge/model"
	"github.com/mbolis/form-forge/routes/middlewares"
	"github.com/mbolis/form-forge/slug"
)

// FreeMonthlyForms caps new forms per calendar month (UTC) on the free plan.
const FreeMonthlyForms = 3

type createFormRequest struct {
	Spec model.FormSpec `json:"spec"`
}

func CreateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := middlewares.UserID(r)

		req := createFormRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		err = req.Spec.Validate()
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusUnprocessableEntity, log.DebugLevel, "create_form.validate", "invalid spec: %s", err)
			return
		}

		if plan := userPlan(r, app, userId); plan == model.PlanFree {
			now := time.Now().UTC()
			monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

			var count int
			err = app.QueryRowContext(r.Context(), `
				SELECT COUNT(*) FROM form
				WHERE user_id = ?
					AND created_at >= ?`,
				userId,
				monthStart,
			).Scan(&count)
			if err != nil {
				httpx.LogInternalError(w, "db.count_forms", err)
				return
			}
			if count >= FreeMonthlyForms {
				httpx.LogStatusMsg(w, http.StatusPaymentRequired, log.DebugLevel, "create_form.plan_limit",
					"free plan allows up to %d new forms per month; upgrade to create more", FreeMonthlyForms)
				return
			}
		}

		formId := uuid.Must(uuid.NewV4()).String()
		_, err = app.ExecContext(r.Context(), `
			INSERT INTO form (id, user_id, title, description, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			formId,
			userId,
			req.Spec.Title,
			req.Spec.Description,
			model.FormStatusDraft,
			time.Now().UTC(),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form", err)
			return
		}

		plan := fields.BuildPlan(nil, req.Spec.Fields)
		_, err = fields.Reconciler{DB: app.DB}.Apply(r.Context(), formId, plan)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form.fields", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"formId": formId,
		})
	}
}

func ListForms(app app.App) http.HandlerFunc {
	type dashboardForm struct {
		model.Form
		SubmissionCount int `json:"submission_count"`
		ViewCount       int `json:"view_count"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT
				f.id, f.title, f.description, f.status, f.slug, f.allow_multiple_responses, f.created_at,
				(SELECT COUNT(*) FROM submission s WHERE s.form_id = f.id),
				(SELECT COUNT(*) FROM form_view v WHERE v.form_id = f.id)
			FROM form f
			WHERE f.user_id = ?
			ORDER BY f.created_at DESC`,
			middlewares.UserID(r),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_forms", err)
			return
		}
		defer rows.Close()

		forms := []dashboardForm{}
		for rows.Next() {
			f := dashboardForm{}
			var formSlug sql.NullString
			err = rows.Scan(
				&f.ID, &f.Title, &f.Description, &f.Status, &formSlug, &f.AllowMultipleResponses, &f.CreatedAt,
				&f.SubmissionCount, &f.ViewCount,
			)
			if err != nil {
				httpx.LogInternalError(w, "db.get_forms.scan", err)
				return
			}
			f.Slug = formSlug.String

			forms = append(forms, f)
		}

		render.JSON(w, r, map[string]any{
			"forms": forms,
		})
	}
}

func GetFormById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")
		form, found := ownedForm(w, r, app, formId)
		if !found {
			return
		}

		formFields, err := loadFields(r, app, formId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form.fields", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"form":   form,
			"fields": formFields,
		})
	}
}

type updateFormRequest struct {
	Title                  *string `json:"title"`
	Description            *string `json:"description"`
	AllowMultipleResponses *bool   `json:"allow_multiple_responses"`
}

func UpdateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")
		if _, found := ownedForm(w, r, app, formId); !found {
			return
		}

		req := updateFormRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		set := ""
		args := []any{}
		if req.Title != nil {
			set += "title = ?, "
			args = append(args, *req.Title)
		}
		if req.Description != nil {
			set += "description = ?, "
			args = append(args, *req.Description)
		}
		if req.AllowMultipleResponses != nil {
			set += "allow_multiple_responses = ?, "
			args = append(args, *req.AllowMultipleResponses)
		}
		if len(args) == 0 {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "update_form.no_updates")
			return
		}

		args = append(args, formId)
		_, err = app.ExecContext(r.Context(), `
			UPDATE form SET `+set[:len(set)-2]+` WHERE id = ?`,
			args...,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")
		if _, found := ownedForm(w, r, app, formId); !found {
			return
		}

		// fields, submissions and views go with it (ON DELETE CASCADE)
		_, err := app.ExecContext(r.Context(), `DELETE FROM form WHERE id = ?`, formId)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_form", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type upsertFieldsRequest struct {
	Fields []model.FieldSpec `json:"fields"`
}

func UpsertFields(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")
		if _, found := ownedForm(w, r, app, formId); !found {
			return
		}

		req := upsertFieldsRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		for i, f := range req.Fields {
			if !f.Type.Valid() {
				httpx.LogStatusMsg(w, http.StatusUnprocessableEntity, log.DebugLevel, "upsert_fields.validate",
					"fields[%d]: unknown type %q", i, f.Type)
				return
			}
		}

		existing, err := fields.ExistingIDs(r.Context(), app.DB, formId)
		if err != nil {
			httpx.LogInternalError(w, "db.upsert_fields.existing", err)
			return
		}

		plan := fields.BuildPlan(existing, req.Fields)
		applied, err := fields.Reconciler{DB: app.DB}.Apply(r.Context(), formId, plan)
		if err != nil {
			httpx.LogInternalError(w, "db.upsert_fields.apply", err)
			return
		}

		render.JSON(w, r, applied)
	}
}

type publishFormRequest struct {
	Slug string `json:"slug"`
}

func PublishForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")
		form, found := ownedForm(w, r, app, formId)
		if !found {
			return
		}

		req := publishFormRequest{}
		render.DecodeJSON(r.Body, &req) // empty body means slug from title

		desired := req.Slug
		if desired == "" {
			desired = form.Title
		}
		base := slug.Make(desired)

		candidate := base
		for i := 1; ; i++ {
			var taken int
			err := app.QueryRowContext(r.Context(), `
				SELECT 1 FROM form
				WHERE slug = ?
					AND id <> ?`,
				candidate,
				formId,
			).Scan(&taken)
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			if err != nil {
				httpx.LogInternalError(w, "db.publish_form.slug", err)
				return
			}
			candidate = fmt.Sprintf("%s-%d", base, i)
			if i > 50 {
				break
			}
		}

		_, err := app.ExecContext(r.Context(), `
			UPDATE form
			SET
				status = ?,
				slug = ?
			WHERE id = ?`,
			model.FormStatusPublished,
			candidate,
			formId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.publish_form", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"slug": candidate,
		})
	}
}

func GetFormSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")
		if _, found := ownedForm(w, r, app, formId); !found {
			return
		}

		rows, err := app.QueryContext(r.Context(), `
			SELECT id, data, user_id, created_at
			FROM submission
			WHERE form_id = ?
			ORDER BY created_at DESC`,
			formId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_submissions", err)
			return
		}
		defer rows.Close()

		submissions := []model.Submission{}
		for rows.Next() {
			s := model.Submission{FormID: formId}
			var data string
			var userId sql.NullString
			err = rows.Scan(&s.ID, &data, &userId, &s.CreatedAt)
			if err != nil {
				httpx.LogInternalError(w, "db.get_submissions.scan", err)
				return
			}
			s.UserID = userId.String

			err = json.Unmarshal([]byte(data), &s.Data)
			if err != nil {
				httpx.LogInternalError(w, "db.get_submissions.parse_data", err)
				return
			}

			submissions = append(submissions, s)
		}

		render.JSON(w, r, map[string]any{
			"submissions": submissions,
		})
	}
}

func DeleteSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionId := chi.URLParam(r, "id")

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM submission
			WHERE id = ?
				AND form_id IN (SELECT id FROM form WHERE user_id = ?)`,
			submissionId,
			middlewares.UserID(r),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_submission", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_submission.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_submission", submissionId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// ownedForm loads a form and enforces that the caller owns it, writing 404 or
// 403 itself when not.
func ownedForm(w http.ResponseWriter, r *http.Request, app app.App, formId string) (form model.Form, found bool) {
	var formSlug sql.NullString
	err := app.QueryRowContext(r.Context(), `
		SELECT id, user_id, title, description, status, slug, allow_multiple_responses, created_at
		FROM form
		WHERE id = ?`,
		formId,
	).Scan(&form.ID, &form.UserID, &form.Title, &form.Description, &form.Status, &formSlug, &form.AllowMultipleResponses, &form.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		httpx.LogNotFound(w, "get_form", formId)
		return model.Form{}, false
	}
	if err != nil {
		httpx.LogInternalError(w, "db.get_form", err)
		return model.Form{}, false
	}
	form.Slug = formSlug.String

	if form.UserID != middlewares.UserID(r) {
		httpx.LogStatus(w, http.StatusForbidden, log.DebugLevel, "get_form.owner")
		return model.Form{}, false
	}
	return form, true
}

func loadFields(r *http.Request, app app.App, formId string) ([]model.FormField, error) {
	rows, err := app.QueryContext(r.Context(), `
		SELECT id, type, label, placeholder, required, options, validation, position
		FROM form_field
		WHERE form_id = ?
		ORDER BY position`,
		formId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	formFields := []model.FormField{}
	for rows.Next() {
		f := model.FormField{FormID: formId}
		var options, validation sql.NullString
		err = rows.Scan(&f.ID, &f.Type, &f.Label, &f.Placeholder, &f.Required, &options, &validation, &f.Position)
		if err != nil {
			return nil, err
		}

		if options.Valid {
			err = json.Unmarshal([]byte(options.String), &f.Options)
			if err != nil {
				return nil, err
			}
		}
		if validation.Valid {
			err = json.Unmarshal([]byte(validation.String), &f.Validation)
			if err != nil {
				return nil, err
			}
		}

		formFields = append(formFields, f)
	}
	return formFields, rows.Err()
}

func userPlan(r *http.Request, app app.App, userId string) model.Plan {
	var plan model.Plan
	err := app.QueryRowContext(r.Context(), `SELECT plan FROM profile WHERE user_id = ?`, userId).Scan(&plan)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Warnf("db.get_plan: %s", err)
		}
		return model.PlanFree
	}
	return plan
}
