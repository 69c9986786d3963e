package provision

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Rayan-Walnut/wp-cloud/internal/external"
	"github.com/Rayan-Walnut/wp-cloud/internal/pendingstore"
	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// reconcileConcurrency bounds how many sessions a sweep inspects in parallel.
const reconcileConcurrency = 4

// DeadLetterPublisher receives pending records the reconciler gives up on.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, sessionID string, record types.PendingDeployment, reason string) error
}

// ReconcilerConfig tunes the sweep cadence and give-up thresholds.
type ReconcilerConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// MinAge a record must reach before the reconciler touches it, so
	// in-flight webhook deliveries are left alone.
	MinAge time.Duration
	// MaxAttempts of re-driven deployments per session before dead-lettering.
	MaxAttempts int
	// SessionTTL after which an unpaid session is considered abandoned.
	SessionTTL time.Duration
}

// Reconciler periodically re-examines pending records that should have been
// resolved by a webhook delivery. Paid sessions are re-driven through the
// Trigger; abandoned ones are dead-lettered and dropped. Attempt counts live
// in memory only, so a restart grants a fresh budget; the stored records
// themselves are never rewritten.
type Reconciler struct {
	store      pendingstore.PendingStore
	gateway    external.PaymentGateway
	trigger    *Trigger
	deadLetter DeadLetterPublisher
	cfg        ReconcilerConfig
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

// NewReconciler creates a Reconciler. Run must be called to start sweeping.
func NewReconciler(
	store pendingstore.PendingStore,
	gateway external.PaymentGateway,
	trigger *Trigger,
	deadLetter DeadLetterPublisher,
	cfg ReconcilerConfig,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:      store,
		gateway:    gateway,
		trigger:    trigger,
		deadLetter: deadLetter,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		attempts:   map[string]int{},
	}
}

// Run sweeps on the configured interval until ctx is cancelled. One sweep
// runs immediately on start to drain anything left over from a crash.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("reconciler started",
		"interval", r.cfg.Interval,
		"min_age", r.cfg.MinAge,
		"max_attempts", r.cfg.MaxAttempts,
	)

	r.Sweep(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep inspects every pending record old enough to be suspect and resolves
// each one: re-deploy, leave for later, or dead-letter.
func (r *Reconciler) Sweep(ctx context.Context) {
	records, err := r.store.List(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "reconcile sweep failed to list pending records", "error", err)
		return
	}

	cutoff := r.now().Add(-r.cfg.MinAge)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for sessionID, record := range records {
		if record.CreatedAt.After(cutoff) {
			continue
		}
		g.Go(func() error {
			r.reconcileSession(gctx, sessionID, record)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Reconciler) reconcileSession(ctx context.Context, sessionID string, record types.PendingDeployment) {
	session, err := r.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundSession {
			// The session no longer exists provider-side; nothing will ever
			// pay for this record.
			r.giveUp(ctx, sessionID, record, "session_not_found")
			return
		}
		r.logger.WarnContext(ctx, "reconcile could not fetch checkout session",
			"session_id", sessionID,
			"error", err,
		)
		return
	}

	if session.PaymentStatus == "paid" {
		r.redrive(ctx, sessionID, record)
		return
	}

	if r.now().Sub(record.CreatedAt) > r.cfg.SessionTTL {
		r.giveUp(ctx, sessionID, record, "never_paid")
		return
	}

	r.logger.DebugContext(ctx, "pending session not yet paid, leaving for later",
		"session_id", sessionID,
		"payment_status", session.PaymentStatus,
	)
}

// redrive pushes a paid-but-unprovisioned session back through the trigger.
func (r *Reconciler) redrive(ctx context.Context, sessionID string, record types.PendingDeployment) {
	r.mu.Lock()
	r.attempts[sessionID]++
	attempt := r.attempts[sessionID]
	r.mu.Unlock()

	if attempt > r.cfg.MaxAttempts {
		r.giveUp(ctx, sessionID, record, "attempts_exhausted")
		return
	}

	r.logger.InfoContext(ctx, "re-driving paid session",
		"session_id", sessionID,
		"username", record.Username,
		"attempt", attempt,
	)

	if err := r.trigger.HandleSessionCompleted(ctx, sessionID); err != nil {
		r.logger.WarnContext(ctx, "reconcile re-drive failed",
			"session_id", sessionID,
			"attempt", attempt,
			"error", err,
		)
		return
	}

	r.mu.Lock()
	delete(r.attempts, sessionID)
	r.mu.Unlock()
}

// giveUp dead-letters the record and removes it from the store so sweeps
// stop revisiting it.
func (r *Reconciler) giveUp(ctx context.Context, sessionID string, record types.PendingDeployment, reason string) {
	r.logger.ErrorContext(ctx, "giving up on pending deployment",
		"session_id", sessionID,
		"username", record.Username,
		"reason", reason,
	)

	if err := r.deadLetter.Publish(ctx, sessionID, record, reason); err != nil {
		// Keep the record; a later sweep retries the dead-letter.
		r.logger.ErrorContext(ctx, "failed to dead-letter pending deployment",
			"session_id", sessionID,
			"error", err,
		)
		return
	}

	if err := r.store.Remove(ctx, sessionID); err != nil {
		r.logger.ErrorContext(ctx, "failed to remove dead-lettered record",
			"session_id", sessionID,
			"error", err,
		)
		return
	}

	r.mu.Lock()
	delete(r.attempts, sessionID)
	r.mu.Unlock()
}
