package routes

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/mbolis/form-forge/app"
	"github.com/mbolis/form-forge/billing"
	"github.com/mbolis/form-forge/httpx"
	"github.com/mbolis/form-forge/log"
	"github.com/mbolis/form-forge/model"
	"github.com/mbolis/form-forge/routes/middlewares"
	stripe "github.com/stripe/stripe-go/v78"
)

func BillingCheckout(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !app.Payments.Enabled() {
			httpx.LogStatus(w, http.StatusServiceUnavailable, log.WarnLevel, "billing.not_configured")
			return
		}
		userId := middlewares.UserID(r)

		customerId, err := stripeCustomerId(r, app, userId)
		if err != nil {
			httpx.LogInternalError(w, "billing.customer", err)
			return
		}

		checkoutUrl, err := app.Payments.CheckoutURL(customerId, userId, app.PublicBaseURL)
		if err != nil {
			httpx.LogInternalError(w, "billing.checkout", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"url": checkoutUrl,
		})
	}
}

// stripeCustomerId returns the profile's Stripe customer, creating and
// persisting one on first use.
func stripeCustomerId(r *http.Request, app app.App, userId string) (string, error) {
	var customerId sql.NullString
	var username string
	err := app.QueryRowContext(r.Context(), `
		SELECT p.stripe_customer_id, u.username
		FROM profile p
		INNER JOIN user u ON (u.id = p.user_id)
		WHERE p.user_id = ?`,
		userId,
	).Scan(&customerId, &username)
	if err != nil {
		return "", err
	}
	if customerId.String != "" {
		return customerId.String, nil
	}

	created, err := app.Payments.CreateCustomer(username, userId)
	if err != nil {
		return "", err
	}

	_, err = app.ExecContext(r.Context(), `
		UPDATE profile SET stripe_customer_id = ? WHERE user_id = ?`,
		created,
		userId,
	)
	if err != nil {
		return "", err
	}
	return created, nil
}

func BillingPortal(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if app.Payments == nil {
			httpx.LogStatus(w, http.StatusServiceUnavailable, log.WarnLevel, "billing.not_configured")
			return
		}
		userId := middlewares.UserID(r)

		var customerId sql.NullString
		err := app.QueryRowContext(r.Context(), `
			SELECT stripe_customer_id FROM profile WHERE user_id = ?`,
			userId,
		).Scan(&customerId)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			httpx.LogInternalError(w, "db.get_profile", err)
			return
		}
		if customerId.String == "" {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "billing.portal.no_customer")
			return
		}

		portalUrl, err := app.Payments.PortalURL(customerId.String, app.PublicBaseURL)
		if err != nil {
			httpx.LogInternalError(w, "billing.portal", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"url": portalUrl,
		})
	}
}

func StripeWebhook(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if app.Payments == nil {
			httpx.LogStatus(w, http.StatusServiceUnavailable, log.WarnLevel, "billing.not_configured")
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "webhook.read_body")
			return
		}

		event, err := app.Payments.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "webhook.verify")
			return
		}

		switch event.Type {
		case "checkout.session.completed":
			var session stripe.CheckoutSession
			if err = json.Unmarshal(event.Data.Raw, &session); err != nil {
				httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "webhook.parse_session")
				return
			}
			err = syncCheckout(r, app, session)

		case "customer.subscription.created",
			"customer.subscription.updated",
			"customer.subscription.deleted":
			var sub stripe.Subscription
			if err = json.Unmarshal(event.Data.Raw, &sub); err != nil {
				httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "webhook.parse_subscription")
				return
			}
			err = syncSubscription(r, app, sub)

		default:
			log.Debugf("webhook: ignoring event %s", event.Type)
		}
		if err != nil {
			httpx.LogInternalError(w, "webhook.sync", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"received": true,
		})
	}
}

func syncCheckout(r *http.Request, app app.App, session stripe.CheckoutSession) error {
	userId := session.Metadata["user_id"]
	if userId == "" {
		userId = session.ClientReferenceID
	}
	if userId == "" {
		log.Warn("webhook: checkout session without user reference")
		return nil
	}

	var customerId string
	if session.Customer != nil {
		customerId = session.Customer.ID
	}

	// the session alone does not carry subscription state; fetch it
	if session.Subscription != nil {
		sub, err := app.Payments.Subscription(session.Subscription.ID)
		if err == nil {
			return setPlan(r, app, userId, sub, customerId)
		}
		log.Warnf("webhook: retrieve subscription: %s", err)
	}

	_, err := app.ExecContext(r.Context(), `
		UPDATE profile
		SET
			plan = ?,
			stripe_customer_id = COALESCE(NULLIF(?, ''), stripe_customer_id),
			plan_status = 'active'
		WHERE user_id = ?`,
		model.PlanPro,
		customerId,
		userId,
	)
	return err
}

func syncSubscription(r *http.Request, app app.App, sub stripe.Subscription) error {
	if sub.Customer == nil {
		log.Warn("webhook: subscription without customer")
		return nil
	}

	var userId string
	err := app.QueryRowContext(r.Context(), `
		SELECT user_id FROM profile WHERE stripe_customer_id = ?`,
		sub.Customer.ID,
	).Scan(&userId)
	if errors.Is(err, sql.ErrNoRows) {
		log.Warnf("webhook: no profile for customer %s", sub.Customer.ID)
		return nil
	}
	if err != nil {
		return err
	}

	return setPlan(r, app, userId, &sub, sub.Customer.ID)
}

func setPlan(r *http.Request, app app.App, userId string, sub *stripe.Subscription, customerId string) error {
	plan := model.PlanFree
	if billing.ActiveStatus(sub.Status) {
		plan = model.PlanPro
	}

	var periodEnd any
	if sub.CurrentPeriodEnd > 0 {
		periodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}

	_, err := app.ExecContext(r.Context(), `
		UPDATE profile
		SET
			plan = ?,
			stripe_customer_id = COALESCE(NULLIF(?, ''), stripe_customer_id),
			stripe_subscription_id = ?,
			plan_status = ?,
			current_period_end = ?,
			cancel_at_period_end = ?
		WHERE user_id = ?`,
		plan,
		customerId,
		sub.ID,
		string(sub.Status),
		periodEnd,
		sub.CancelAtPeriodEnd,
		userId,
	)
	return err
}
