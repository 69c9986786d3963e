package core

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthProbeTimeout = 5 * time.Second

// HealthProbe reports the availability of a downstream dependency.
type HealthProbe interface {
	// Name identifies the dependency in health output and logs.
	Name() string
	// Check returns nil when the dependency is reachable.
	Check(ctx context.Context) error
}

type healthResponse struct {
	Status               string `json:"status"`
	Message              string `json:"message"`
	Error                string `json:"error,omitempty"`
	CloudflareConfigured bool   `json:"cloudflare_configured"`
	StripeConfigured     bool   `json:"stripe_configured"`
	DeployerAvailable    bool   `json:"deployer_available"`
}

// HandleHealth reports service health. Configuration flags are computed
// locally; registered probes run concurrently with a shared deadline. A
// failing deployer probe degrades the whole response to 500 because the
// service cannot fulfill its purpose without it.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	var mu sync.Mutex
	failures := make(map[string]error)

	g, ctx := errgroup.WithContext(ctx)
	for _, probe := range s.HealthProbes {
		g.Go(func() error {
			if err := probe.Check(ctx); err != nil {
				mu.Lock()
				failures[probe.Name()] = err
				mu.Unlock()
				s.Logger.Warn("health probe failed",
					"probe", probe.Name(),
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	resp := healthResponse{
		Status:               "ok",
		Message:              "WordPress Deployment API is running",
		CloudflareConfigured: s.Config.Cloudflare.Configured(),
		StripeConfigured:     s.Config.Stripe.Configured(),
		DeployerAvailable:    true,
	}

	status := http.StatusOK
	if err, ok := failures["deployer"]; ok {
		resp.Status = "error"
		resp.Message = "API running but deployer unavailable"
		resp.Error = err.Error()
		resp.DeployerAvailable = false
		status = http.StatusInternalServerError
	}

	JSON(w, r, status, resp)
}
