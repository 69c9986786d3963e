package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Rayan-Walnut/wp-cloud/internal/core"
	"github.com/Rayan-Walnut/wp-cloud/internal/external"
	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// maxWebhookBodySize caps Stripe webhook payloads at 64 KB. Real payloads
// are far smaller; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// Provisioner is the subset of the deployment trigger the webhook needs.
type Provisioner interface {
	// HandleSessionCompleted drives the pending record for a paid session
	// through deployment.
	HandleSessionCompleted(ctx context.Context, sessionID string) error

	// Deprovision removes the installation for a cancelled subscription.
	Deprovision(ctx context.Context, username string) error
}

// StripeWebhookHandler handles asynchronous events from Stripe. The route is
// not behind auth middleware; security comes from verifying the
// Stripe-Signature header against the signing secret.
type StripeWebhookHandler struct {
	verifier    external.WebhookVerifier
	provisioner Provisioner
	secret      string
	logger      *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	provisioner Provisioner,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:    verifier,
		provisioner: provisioner,
		secret:      secret,
		logger:      logger,
	}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook/stripe", h.Handle)
}

// webhookAck is the body returned for every verified delivery.
type webhookAck struct {
	Status string `json:"status"`
}

// Handle processes incoming Stripe webhook events.
//
// The raw body is verified against the signature before any byte of it is
// interpreted; verification failures are 400 with no side effects. Once the
// signature checks out the response is always 200, even when downstream
// processing fails: the failure is logged and the pending record stays put
// for a redelivery or reconcile sweep, and a non-2xx here would only make
// Stripe hammer the endpoint with retries that would fail the same way.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookInvalidPayload,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookMissingSignature,
			"missing Stripe-Signature header",
			nil,
		))
		return
	}

	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookInvalidSignature,
			"webhook signature verification failed",
			err,
		))
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event JSON", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookInvalidPayload,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
	}

	core.JSON(w, r, http.StatusOK, webhookAck{Status: "success"})
}

// routeEvent dispatches the event by type. Every handler is idempotent, so a
// redelivered event is harmless.
func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	switch event.Type {
	case external.EventStripeCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)

	case external.EventStripeInvoicePaid:
		return h.handleInvoicePaid(ctx, event)

	case external.EventStripePaymentFailed:
		return h.handlePaymentFailed(ctx, event)

	case external.EventStripeSubDeleted:
		return h.handleSubscriptionDeleted(ctx, event)

	case external.EventStripeSubUpdated:
		return h.handleSubscriptionUpdated(ctx, event)

	default:
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.Type,
		)
		return nil
	}
}

// handleCheckoutCompleted processes checkout.session.completed: the initial
// payment succeeded, so the pending deployment gets provisioned.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripeWebhookEvent) error {
	session, err := event.checkoutSession()
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "checkout completed",
		"event_id", event.ID,
		"session_id", session.ID,
		"customer", session.Customer,
		"subscription", session.Subscription,
	)

	return h.provisioner.HandleSessionCompleted(ctx, session.ID)
}

// handleInvoicePaid processes invoice.paid, the monthly renewal signal.
// Access continuation is implicit today: an installation stays up unless the
// subscription is deleted, so a renewal only needs an audit trail.
func (h *StripeWebhookHandler) handleInvoicePaid(ctx context.Context, event *stripeWebhookEvent) error {
	invoice, err := event.invoice()
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "invoice paid",
		"event_id", event.ID,
		"customer", invoice.Customer,
		"subscription", invoice.Subscription,
	)
	return nil
}

// handlePaymentFailed processes invoice.payment_failed. Stripe's dunning
// flow retries the charge and eventually cancels the subscription, which
// arrives here as customer.subscription.deleted; until then the failure is
// only flagged.
func (h *StripeWebhookHandler) handlePaymentFailed(ctx context.Context, event *stripeWebhookEvent) error {
	invoice, err := event.invoice()
	if err != nil {
		return err
	}

	h.logger.WarnContext(ctx, "invoice payment failed",
		"event_id", event.ID,
		"customer", invoice.Customer,
	)
	return nil
}

// handleSubscriptionDeleted processes customer.subscription.deleted: the
// subscription is gone, so the installation comes down. The username rides
// in the subscription metadata; without it there is nothing to tear down.
func (h *StripeWebhookHandler) handleSubscriptionDeleted(ctx context.Context, event *stripeWebhookEvent) error {
	sub, err := event.subscription()
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "subscription deleted",
		"event_id", event.ID,
		"customer", sub.Customer,
	)

	username := sub.Metadata["username"]
	if username == "" {
		h.logger.WarnContext(ctx, "subscription deleted without username metadata, skipping teardown",
			"event_id", event.ID,
			"customer", sub.Customer,
		)
		return nil
	}

	return h.provisioner.Deprovision(ctx, username)
}

// handleSubscriptionUpdated processes customer.subscription.updated. Plan
// changes do not alter installation resources yet, so the event is only
// acknowledged.
func (h *StripeWebhookHandler) handleSubscriptionUpdated(ctx context.Context, event *stripeWebhookEvent) error {
	sub, err := event.subscription()
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "subscription updated",
		"event_id", event.ID,
		"customer", sub.Customer,
		"status", sub.Status,
	)
	return nil
}

// stripeWebhookEvent is a minimal representation of a Stripe webhook event,
// just the fields needed for routing and processing. Avoiding the full
// stripe.Event type keeps the handler decoupled from the library and makes
// testing straightforward.
type stripeWebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// stripeCheckoutSessionObj carries the checkout session fields read from
// checkout.session.completed events.
type stripeCheckoutSessionObj struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// stripeSubscriptionObj carries the subscription fields read from
// customer.subscription.* events.
type stripeSubscriptionObj struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// stripeInvoiceObj carries the invoice fields read from invoice.* events.
type stripeInvoiceObj struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

func (e *stripeWebhookEvent) checkoutSession() (*stripeCheckoutSessionObj, error) {
	var session stripeCheckoutSessionObj
	if err := json.Unmarshal(e.Data.Object, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (e *stripeWebhookEvent) subscription() (*stripeSubscriptionObj, error) {
	var sub stripeSubscriptionObj
	if err := json.Unmarshal(e.Data.Object, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (e *stripeWebhookEvent) invoice() (*stripeInvoiceObj, error) {
	var invoice stripeInvoiceObj
	if err := json.Unmarshal(e.Data.Object, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}
