package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// maxDeployerResponseBytes caps buffered daemon responses; the largest
// legitimate payload is a log tail.
const maxDeployerResponseBytes = 1 << 20

// DeployerClientConfig holds the configuration for creating a DeployerClient.
type DeployerClientConfig struct {
	BaseURL string
	APIKey  string
	// RequestTimeout bounds the passthrough calls (list, status, logs,
	// restart, ping). Deploys are bounded by the caller's context instead,
	// since provisioning legitimately takes minutes.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// DeployerClient implements Deployer over the daemon's REST API. The daemon
// runs alongside this service on the host and does the actual container and
// DNS work; a deploy call blocks until provisioning finishes.
type DeployerClient struct {
	base           *BaseClient
	baseURL        string
	apiKey         string
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewDeployerClient creates a DeployerClient. The httpClient timeout bounds
// individual requests; deploy calls additionally respect the context deadline
// set by the caller.
func NewDeployerClient(httpClient *http.Client, cfg DeployerClientConfig) *DeployerClient {
	base := NewBaseClient(
		httpClient,
		"deployer",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    250 * time.Millisecond,
			MaxWait:    2 * time.Second,
		},
		"wp-cloud/1.0",
	)
	return NewDeployerClientWithBase(base, cfg)
}

// NewDeployerClientWithBase creates a DeployerClient with a pre-configured
// BaseClient.
func NewDeployerClientWithBase(base *BaseClient, cfg DeployerClientConfig) *DeployerClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DeployerClient{
		base:           base,
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		requestTimeout: cfg.RequestTimeout,
		logger:         logger,
	}
}

type deployRequest struct {
	Username string `json:"username"`
	Domain   string `json:"domain"`
	Email    string `json:"email"`
}

// Deploy provisions a WordPress instance for the given customer. Deploys are
// not retried: a timed-out deploy may still be running daemon-side, and the
// daemon treats a duplicate username as an error rather than doubling up.
func (d *DeployerClient) Deploy(ctx context.Context, username, domain, email string) (*types.DeployResult, error) {
	resp, err := d.doJSON(ctx, http.MethodPost, "/deploy", deployRequest{
		Username: username,
		Domain:   domain,
		Email:    email,
	})
	if err != nil {
		return nil, d.wrapDeployerError("Deploy", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, d.handleErrorResponse(resp, "Deploy")
	}

	var result types.DeployResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeDeployerUnavailable,
			"failed to decode deployer deploy response",
			err,
		)
	}
	return &result, nil
}

// DeleteInstallation tears down the instance belonging to username. The
// daemon treats deleting an unknown username as a 404, which is surfaced as a
// not-found AppError.
func (d *DeployerClient) DeleteInstallation(ctx context.Context, username string) error {
	resp, err := d.do(ctx, http.MethodDelete, "/installations/"+url.PathEscape(username), nil)
	if err != nil {
		return d.wrapDeployerError("DeleteInstallation", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return d.handleErrorResponse(resp, "DeleteInstallation")
	}
	return nil
}

type installationList struct {
	Installations []types.Installation `json:"installations"`
}

// ListInstallations returns every installation the daemon knows about.
func (d *DeployerClient) ListInstallations(ctx context.Context) ([]types.Installation, error) {
	resp, err := d.do(ctx, http.MethodGet, "/installations", nil)
	if err != nil {
		return nil, d.wrapDeployerError("ListInstallations", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, d.handleErrorResponse(resp, "ListInstallations")
	}

	var list installationList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeDeployerUnavailable,
			"failed to decode deployer installations response",
			err,
		)
	}
	return list.Installations, nil
}

// GetInstallation returns a single installation by username.
func (d *DeployerClient) GetInstallation(ctx context.Context, username string) (*types.Installation, error) {
	resp, err := d.do(ctx, http.MethodGet, "/installations/"+url.PathEscape(username), nil)
	if err != nil {
		return nil, d.wrapDeployerError("GetInstallation", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, d.handleErrorResponse(resp, "GetInstallation")
	}

	var inst types.Installation
	if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeDeployerUnavailable,
			"failed to decode deployer installation response",
			err,
		)
	}
	return &inst, nil
}

type statusResponse struct {
	Status types.InstallationStatus `json:"status"`
}

// Status reports the runtime state of an installation.
func (d *DeployerClient) Status(ctx context.Context, username string) (types.InstallationStatus, error) {
	resp, err := d.do(ctx, http.MethodGet, "/installations/"+url.PathEscape(username)+"/status", nil)
	if err != nil {
		return types.InstallationUnknown, d.wrapDeployerError("Status", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.InstallationUnknown, d.handleErrorResponse(resp, "Status")
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return types.InstallationUnknown, types.NewAppError(
			types.ErrCodeDeployerUnavailable,
			"failed to decode deployer status response",
			err,
		)
	}
	return status.Status, nil
}

// Restart restarts the instance belonging to username.
func (d *DeployerClient) Restart(ctx context.Context, username string) error {
	resp, err := d.do(ctx, http.MethodPost, "/installations/"+url.PathEscape(username)+"/restart", nil)
	if err != nil {
		return d.wrapDeployerError("Restart", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return d.handleErrorResponse(resp, "Restart")
	}
	return nil
}

type logsResponse struct {
	Logs string `json:"logs"`
}

// Logs returns the last lines of the instance's container logs.
func (d *DeployerClient) Logs(ctx context.Context, username string, lines int) (string, error) {
	path := "/installations/" + url.PathEscape(username) + "/logs"
	if lines > 0 {
		path += "?lines=" + strconv.Itoa(lines)
	}

	resp, err := d.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", d.wrapDeployerError("Logs", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", d.handleErrorResponse(resp, "Logs")
	}

	var logs logsResponse
	if err := json.NewDecoder(resp.Body).Decode(&logs); err != nil {
		return "", types.NewAppError(
			types.ErrCodeDeployerUnavailable,
			"failed to decode deployer logs response",
			err,
		)
	}
	return logs.Logs, nil
}

// Ping checks daemon reachability.
func (d *DeployerClient) Ping(ctx context.Context) error {
	resp, err := d.do(ctx, http.MethodGet, "/ping", nil)
	if err != nil {
		return d.wrapDeployerError("Ping", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return d.handleErrorResponse(resp, "Ping")
	}
	return nil
}

func (d *DeployerClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if d.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.requestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if d.apiKey != "" {
		req.Header.Set("X-Api-Key", d.apiKey)
	}

	resp, err := d.base.Do(req)
	if err != nil {
		return nil, err
	}

	// The timeout context is released when this function returns, so the
	// body must be drained here rather than by the caller.
	buf, readErr := io.ReadAll(io.LimitReader(resp.Body, maxDeployerResponseBytes))
	resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	resp.Body = io.NopCloser(bytes.NewReader(buf))
	return resp, nil
}

func (d *DeployerClient) doJSON(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("X-Api-Key", d.apiKey)
	}
	return d.base.Do(req)
}

// deployerErrorResponse is the daemon's error body shape.
type deployerErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleErrorResponse maps a daemon error response to an AppError.
func (d *DeployerClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var derr deployerErrorResponse
	_ = json.Unmarshal(body, &derr)
	message := derr.Message
	if message == "" {
		message = derr.Error
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}

	if resp.StatusCode == http.StatusNotFound {
		return types.NewAppError(
			types.ErrCodeNotFoundInstallation,
			fmt.Sprintf("%s: installation not found", operation),
			nil,
		)
	}

	return types.NewAppError(
		types.ErrCodeDeployerUnavailable,
		fmt.Sprintf("%s: deployer returned %d: %s", operation, resp.StatusCode, message),
		nil,
	)
}

// wrapDeployerError normalizes transport failures. Gateway-level codes from
// BaseClient are rewritten to the deployer taxonomy so callers see a single
// error surface for daemon trouble.
func (d *DeployerClient) wrapDeployerError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeGatewayUnavailable, types.ErrCodeGatewayRateLimited:
			return types.NewAppError(
				types.ErrCodeDeployerUnavailable,
				fmt.Sprintf("%s: deployer unreachable", operation),
				err,
			)
		}
		return err
	}
	return types.NewAppError(
		types.ErrCodeDeployerUnavailable,
		fmt.Sprintf("%s: deployer request failed: %v", operation, err),
		err,
	)
}

// DeployerProbe adapts a Deployer to the health probe interface.
type DeployerProbe struct {
	Client Deployer
}

func (p DeployerProbe) Name() string { return "deployer" }

func (p DeployerProbe) Check(ctx context.Context) error {
	return p.Client.Ping(ctx)
}
