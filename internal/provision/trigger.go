// Package provision turns confirmed payments into WordPress deployments. The
// Trigger is invoked by the Stripe webhook on checkout completion; the
// Reconciler re-drives records the webhook path failed to finish.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Rayan-Walnut/wp-cloud/internal/external"
	"github.com/Rayan-Walnut/wp-cloud/internal/pendingstore"
	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// Trigger drives the lookup, deploy, remove sequence for a completed
// checkout session. Concurrent invocations for the same session id coalesce
// into a single flight, so webhook redeliveries cannot double-deploy.
type Trigger struct {
	store         pendingstore.PendingStore
	deployer      external.Deployer
	deployTimeout time.Duration
	logger        *slog.Logger

	group singleflight.Group
}

// NewTrigger creates a Trigger. deployTimeout bounds a single deploy call;
// the daemon can take minutes to provision a site.
func NewTrigger(
	store pendingstore.PendingStore,
	deployer external.Deployer,
	deployTimeout time.Duration,
	logger *slog.Logger,
) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		store:         store,
		deployer:      deployer,
		deployTimeout: deployTimeout,
		logger:        logger,
	}
}

// HandleSessionCompleted processes a paid checkout session. A session id
// with no pending record is terminal: logged and acknowledged, since the
// record was either already deployed and removed, or never created here.
// Deployment failure keeps the record so a redelivery or reconcile sweep can
// try again; the error is returned for logging but callers must not convert
// it into a non-2xx webhook response.
func (t *Trigger) HandleSessionCompleted(ctx context.Context, sessionID string) error {
	_, err, _ := t.group.Do(sessionID, func() (any, error) {
		return nil, t.provision(ctx, sessionID)
	})
	return err
}

func (t *Trigger) provision(ctx context.Context, sessionID string) error {
	record, ok, err := t.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		t.logger.InfoContext(ctx, "no pending deployment for session, nothing to do",
			"session_id", sessionID,
		)
		return nil
	}

	t.logger.InfoContext(ctx, "payment confirmed, deploying",
		"session_id", sessionID,
		"username", record.Username,
		"domain", record.Domain,
	)

	deployCtx, cancel := context.WithTimeout(ctx, t.deployTimeout)
	defer cancel()

	result, err := t.deployer.Deploy(deployCtx, record.Username, record.Domain, record.Email)
	if err != nil {
		t.logger.ErrorContext(ctx, "deployment failed, keeping pending record",
			"session_id", sessionID,
			"username", record.Username,
			"error", err,
		)
		return types.NewAppError(
			types.ErrCodeProvisioningFailed,
			fmt.Sprintf("deployment failed for session %s", sessionID),
			err,
		)
	}

	t.logger.InfoContext(ctx, "deployment succeeded",
		"session_id", sessionID,
		"username", record.Username,
		"url", result.URL,
	)

	// Remove only after a successful deploy. A failed remove leaves the
	// record behind; the next delivery finds the username already taken and
	// the operator resolves it from the logs.
	if err := t.store.Remove(ctx, sessionID); err != nil {
		t.logger.ErrorContext(ctx, "deployed but failed to remove pending record",
			"session_id", sessionID,
			"username", record.Username,
			"error", err,
		)
		return err
	}
	return nil
}

// Deprovision tears down the installation for a cancelled subscription. An
// already-deleted installation is treated as done.
func (t *Trigger) Deprovision(ctx context.Context, username string) error {
	err := t.deployer.DeleteInstallation(ctx, username)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundInstallation {
			t.logger.InfoContext(ctx, "installation already gone", "username", username)
			return nil
		}
		return err
	}

	t.logger.InfoContext(ctx, "installation removed", "username", username)
	return nil
}
