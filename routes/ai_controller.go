package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/gofrs/uuid"
	"github.com/mbolis/form-forge/app"
	"github.com/mbolis/form-forge/httpx"
	"github.com/mbolis/form-forge/log"
	"github.com/mbolis/form-forge/model"
	"github.com/mbolis/form-forge/routes/middlewares"
)

// FreeDailyGenerations caps AI generations per rolling 24h on the free plan.
const FreeDailyGenerations = 10

type generateFormRequest struct {
	Description string `json:"description"`
}

func GenerateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := middlewares.UserID(r)

		req := generateFormRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil || req.Description == "" {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "generate_form.description")
			return
		}

		if app.Generator == nil {
			httpx.LogStatus(w, http.StatusServiceUnavailable, log.WarnLevel, "generate_form.not_configured")
			return
		}

		if plan := userPlan(r, app, userId); plan == model.PlanFree {
			var count int
			err = app.QueryRowContext(r.Context(), `
				SELECT COUNT(*) FROM ai_generation
				WHERE user_id = ?
					AND created_at >= ?`,
				userId,
				time.Now().UTC().Add(-24*time.Hour),
			).Scan(&count)
			if err != nil {
				httpx.LogInternalError(w, "db.count_generations", err)
				return
			}
			if count >= FreeDailyGenerations {
				httpx.LogStatusMsg(w, http.StatusTooManyRequests, log.DebugLevel, "generate_form.plan_limit",
					"daily AI generation limit reached; upgrade to Pro")
				return
			}
		}

		spec, err := app.Generator.Generate(r.Context(), req.Description)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadGateway, log.ErrorLevel, "generate_form.generate", "AI generation failed")
			log.Errorf("generate_form: %s", err)
			return
		}

		// usage log, best effort
		_, err = app.ExecContext(r.Context(), `
			INSERT INTO ai_generation (id, user_id, description, created_at)
			VALUES (?, ?, ?, ?)`,
			uuid.Must(uuid.NewV4()).String(),
			userId,
			req.Description,
			time.Now().UTC(),
		)
		if err != nil {
			log.Warnf("db.insert_generation: %s", err)
		}

		render.JSON(w, r, map[string]any{
			"spec": spec,
		})
	}
}
