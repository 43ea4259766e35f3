// Package billing is the payments collaborator: checkout and portal session
// creation plus webhook event verification, all against Stripe.
package billing

import (
	"github.com/mbolis/form-forge/config"
	stripe "github.com/stripe/stripe-go/v78"
	portalsession "github.com/stripe/stripe-go/v78/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/customer"
	"github.com/stripe/stripe-go/v78/subscription"
	"github.com/stripe/stripe-go/v78/webhook"
)

type Client struct {
	priceID       string
	webhookSecret string
}

// New returns nil when no secret key is configured; callers treat a nil
// client as billing disabled.
func New(cfg config.StripeConfig) *Client {
	if cfg.SecretKey == "" {
		return nil
	}
	stripe.Key = cfg.SecretKey
	return &Client{
		priceID:       cfg.PriceProMonth,
		webhookSecret: cfg.WebhookSecret,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.priceID != ""
}

func (c *Client) CreateCustomer(email, userID string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.AddMetadata("user_id", userID)

	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

// CheckoutURL creates a subscription checkout session for the pro plan.
func (c *Client) CheckoutURL(customerID, userID, origin string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(c.priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(origin + "/billing?success=1"),
		CancelURL:         stripe.String(origin + "/billing?canceled=1"),
		ClientReferenceID: stripe.String(userID),
	}
	params.AddMetadata("user_id", userID)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (c *Client) PortalURL(customerID, origin string) (string, error) {
	sess, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(origin + "/billing"),
	})
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (c *Client) Subscription(id string) (*stripe.Subscription, error) {
	return subscription.Get(id, nil)
}

// ParseWebhook verifies the signature header and decodes the event.
func (c *Client) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signature, c.webhookSecret)
}

// ActiveStatus reports whether a subscription status keeps the pro plan on.
func ActiveStatus(status stripe.SubscriptionStatus) bool {
	switch status {
	case stripe.SubscriptionStatusActive,
		stripe.SubscriptionStatusTrialing,
		stripe.SubscriptionStatusPastDue:
		return true
	}
	return false
}
