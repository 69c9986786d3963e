// Package pendingstore persists provisioning requests that have a checkout
// session but no deployment yet. Records are keyed by the Stripe checkout
// session id: written when a session is created, read back when the payment
// webhook arrives, and deleted only after a successful deployment. A record
// that survives a crash anywhere in between is picked up again on the next
// delivery or reconcile sweep.
package pendingstore

import (
	"context"

	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// PendingStore is the persistence contract for pending deployments.
// Implementations must make Put/Remove atomic with respect to concurrent
// calls and must treat an absent key as a normal outcome, not an error.
type PendingStore interface {
	// Put inserts the record under sessionID, overwriting any previous
	// record for the same id.
	Put(ctx context.Context, sessionID string, record types.PendingDeployment) error

	// Get returns the record for sessionID. The boolean reports presence;
	// absence returns (zero, false, nil).
	Get(ctx context.Context, sessionID string) (types.PendingDeployment, bool, error)

	// Remove deletes the record for sessionID. Removing an absent key is a
	// no-op.
	Remove(ctx context.Context, sessionID string) error

	// List returns a snapshot of every pending record keyed by session id.
	List(ctx context.Context) (map[string]types.PendingDeployment, error)
}
