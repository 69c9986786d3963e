package types

import "time"

// PendingDeployment is a provisioning request recorded at checkout time and
// not yet fulfilled. It is keyed by the Stripe checkout session id in the
// pending store, created when the checkout session is created, read by the
// webhook handler, and deleted only after a successful deployment. Records
// are never updated in place.
type PendingDeployment struct {
	Username  string    `json:"username"`
	Domain    string    `json:"domain"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// InstallationStatus describes the runtime state of a deployed instance as
// reported by the deployer daemon.
type InstallationStatus string

const (
	InstallationRunning InstallationStatus = "running"
	InstallationStopped InstallationStatus = "stopped"
	InstallationError   InstallationStatus = "error"
	InstallationUnknown InstallationStatus = "unknown"
)

// Installation is a provisioned WordPress instance as known to the deployer
// daemon. The API exposes these as read-mostly passthrough data; the daemon
// is the source of truth.
type Installation struct {
	Username  string             `json:"username"`
	Domain    string             `json:"domain"`
	Email     string             `json:"email"`
	URL       string             `json:"url,omitempty"`
	Status    InstallationStatus `json:"status,omitempty"`
	CreatedAt time.Time          `json:"created_at,omitempty"`
}

// DeployResult is the deployer daemon's response to a provisioning request.
type DeployResult struct {
	Username string `json:"username"`
	Domain   string `json:"domain"`
	URL      string `json:"url,omitempty"`
	AdminURL string `json:"admin_url,omitempty"`
}
