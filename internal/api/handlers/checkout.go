// Package handlers contains the HTTP handler implementations for the wp-cloud
// API: checkout session creation, the Stripe webhook, and the installation
// management pass-through to the deployer daemon.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Rayan-Walnut/wp-cloud/internal/core"
	"github.com/Rayan-Walnut/wp-cloud/internal/external"
	"github.com/Rayan-Walnut/wp-cloud/internal/pendingstore"
	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// CreateCheckoutRequest is the request body for
// POST /api/stripe/create-checkout-session.
type CreateCheckoutRequest struct {
	Username string `json:"username" validate:"required"`
	Domain   string `json:"domain" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	PriceID  string `json:"price_id" validate:"required"`
}

// CheckoutResponse is the success response. The frontend redirects the
// customer to SessionURL to pay.
type CheckoutResponse struct {
	Success    bool   `json:"success"`
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
}

// CheckoutHandler opens checkout sessions and records the matching pending
// deployment.
type CheckoutHandler struct {
	gateway   external.PaymentGateway
	store     pendingstore.PendingStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewCheckoutHandler creates a CheckoutHandler.
func NewCheckoutHandler(
	gateway external.PaymentGateway,
	store pendingstore.PendingStore,
	v *core.Validator,
	logger *slog.Logger,
) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{
		gateway:   gateway,
		store:     store,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts the checkout endpoint.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/stripe/create-checkout-session", h.CreateCheckoutSession)
}

// CreateCheckoutSession handles POST /api/stripe/create-checkout-session.
//
// The pending record is persisted before the session id is returned to the
// client: once a customer can pay, the webhook must be able to find the
// record. A storage failure therefore fails the whole request even though
// the Stripe session was already created; the orphaned session simply
// expires unpaid.
func (h *CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	session, err := h.gateway.CreateCheckoutSession(r.Context(), external.CheckoutParams{
		Username: req.Username,
		Domain:   req.Domain,
		Email:    req.Email,
		PriceID:  req.PriceID,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create checkout session",
			"username", req.Username,
			"domain", req.Domain,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	record := types.PendingDeployment{
		Username:  req.Username,
		Domain:    req.Domain,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Put(r.Context(), session.ID, record); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to persist pending deployment",
			"session_id", session.ID,
			"username", req.Username,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		"session_id", session.ID,
		"username", req.Username,
		"domain", req.Domain,
	)

	core.JSON(w, r, http.StatusOK, CheckoutResponse{
		Success:    true,
		SessionID:  session.ID,
		SessionURL: session.URL,
	})
}
