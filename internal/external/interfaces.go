package external

import (
	"context"

	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// CheckoutParams carries the customer-supplied provisioning details attached
// to a new checkout session. The three identity fields travel as session
// metadata so the webhook can recover them independently of local state.
type CheckoutParams struct {
	Username string
	Domain   string
	Email    string
	PriceID  string
}

// CheckoutSession is the provider-neutral view of a Stripe checkout session.
type CheckoutSession struct {
	ID            string
	URL           string
	Status        string // open, complete, expired
	PaymentStatus string // paid, unpaid, no_payment_required
}

// PaymentGateway abstracts the payment provider. The concrete implementation
// is StripeClient; handlers and the reconciler depend only on this interface.
type PaymentGateway interface {
	// CreateCheckoutSession opens a subscription-mode checkout session and
	// returns its id and redirect URL.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// GetCheckoutSession retrieves the current state of a session, including
	// its payment status. Used to decide whether a stale pending record was
	// ever paid for.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// WebhookVerifier abstracts Stripe webhook signature checking.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the signature header and
	// signing secret. Returns nil on success.
	Verify(payload []byte, header string, secret string) error
}

// Stripe event type constants prevent magic strings in webhook handlers.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeInvoicePaid       = "invoice.paid"
	EventStripePaymentFailed     = "invoice.payment_failed"
	EventStripeSubDeleted        = "customer.subscription.deleted"
	EventStripeSubUpdated        = "customer.subscription.updated"
)

// Deployer abstracts the WordPress deployer daemon. The daemon owns the
// installations database; this API is a thin pass-through in front of it.
type Deployer interface {
	// Deploy provisions a WordPress instance. It blocks until the daemon
	// finishes or ctx expires, which can take minutes.
	Deploy(ctx context.Context, username, domain, email string) (*types.DeployResult, error)

	// DeleteInstallation tears down the instance belonging to username.
	DeleteInstallation(ctx context.Context, username string) error

	// ListInstallations returns every installation the daemon knows about.
	ListInstallations(ctx context.Context) ([]types.Installation, error)

	// GetInstallation returns a single installation or a not-found AppError.
	GetInstallation(ctx context.Context, username string) (*types.Installation, error)

	// Status reports the runtime state of an installation.
	Status(ctx context.Context, username string) (types.InstallationStatus, error)

	// Restart restarts the instance belonging to username.
	Restart(ctx context.Context, username string) error

	// Logs returns the last lines of the instance's container logs.
	Logs(ctx context.Context, username string, lines int) (string, error)

	// Ping checks daemon reachability; used by the health endpoint.
	Ping(ctx context.Context) error
}
