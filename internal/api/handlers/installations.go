package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Rayan-Walnut/wp-cloud/internal/core"
	"github.com/Rayan-Walnut/wp-cloud/internal/external"
	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// InstallationsHandler exposes the deployer daemon's installation database
// over the API, plus the manual deploy path and credential verification used
// by the admin frontend. The daemon is the source of truth; these handlers
// pass through.
type InstallationsHandler struct {
	deployer          external.Deployer
	validator         *core.Validator
	adminPasswordHash string
	logger            *slog.Logger
}

// NewInstallationsHandler creates an InstallationsHandler. adminPasswordHash
// is a bcrypt hash; an empty hash disables credential verification.
func NewInstallationsHandler(
	deployer external.Deployer,
	v *core.Validator,
	adminPasswordHash string,
	logger *slog.Logger,
) *InstallationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InstallationsHandler{
		deployer:          deployer,
		validator:         v,
		adminPasswordHash: adminPasswordHash,
		logger:            logger,
	}
}

// RegisterRoutes mounts the installation management endpoints.
func (h *InstallationsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/installations", h.List)
	r.Get("/api/installations/{username}", h.Get)
	r.Delete("/api/installations/{username}", h.Delete)
	r.Get("/api/installations/{username}/status", h.Status)
	r.Post("/api/installations/{username}/restart", h.Restart)
	r.Get("/api/installations/{username}/logs", h.Logs)
	r.Post("/api/deploy", h.Deploy)
	r.Post("/api/verify-credentials", h.VerifyCredentials)
}

// InstallationListResponse is the response for GET /api/installations.
type InstallationListResponse struct {
	Installations []types.Installation `json:"installations"`
}

// List handles GET /api/installations.
func (h *InstallationsHandler) List(w http.ResponseWriter, r *http.Request) {
	installations, err := h.deployer.ListInstallations(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if installations == nil {
		installations = []types.Installation{}
	}
	core.JSON(w, r, http.StatusOK, InstallationListResponse{Installations: installations})
}

// Get handles GET /api/installations/{username}.
func (h *InstallationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	installation, err := h.deployer.GetInstallation(r.Context(), username)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, installation)
}

// Delete handles DELETE /api/installations/{username}.
func (h *InstallationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := h.deployer.DeleteInstallation(r.Context(), username); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "installation deleted", "username", username)
	core.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse is the response for GET /api/installations/{username}/status.
type StatusResponse struct {
	Username string                   `json:"username"`
	Status   types.InstallationStatus `json:"status"`
}

// Status handles GET /api/installations/{username}/status.
func (h *InstallationsHandler) Status(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	status, err := h.deployer.Status(r.Context(), username)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, StatusResponse{Username: username, Status: status})
}

// Restart handles POST /api/installations/{username}/restart.
func (h *InstallationsHandler) Restart(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := h.deployer.Restart(r.Context(), username); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "installation restarted", "username", username)
	core.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// LogsResponse is the response for GET /api/installations/{username}/logs.
type LogsResponse struct {
	Username string `json:"username"`
	Logs     string `json:"logs"`
}

// defaultLogLines is returned when the lines query parameter is absent.
const defaultLogLines = 100

// Logs handles GET /api/installations/{username}/logs?lines=N.
func (h *InstallationsHandler) Logs(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	lines := defaultLogLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidField,
				"lines must be a positive integer",
				err,
			))
			return
		}
		lines = parsed
	}

	logs, err := h.deployer.Logs(r.Context(), username, lines)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, LogsResponse{Username: username, Logs: logs})
}

// DeployRequest is the request body for POST /api/deploy, the manual
// deployment path that skips payment entirely.
type DeployRequest struct {
	Username string `json:"username" validate:"required"`
	Domain   string `json:"domain" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

// DeployResponse is the response for POST /api/deploy.
type DeployResponse struct {
	Success bool               `json:"success"`
	Result  *types.DeployResult `json:"result"`
}

// Deploy handles POST /api/deploy.
func (h *InstallationsHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.deployer.Deploy(r.Context(), req.Username, req.Domain, req.Email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "manual deployment failed",
			"username", req.Username,
			"domain", req.Domain,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "manual deployment succeeded",
		"username", req.Username,
		"url", result.URL,
	)
	core.JSON(w, r, http.StatusOK, DeployResponse{Success: true, Result: result})
}

// VerifyCredentialsRequest is the request body for POST /api/verify-credentials.
type VerifyCredentialsRequest struct {
	Password string `json:"password" validate:"required"`
}

// VerifyCredentials handles POST /api/verify-credentials. The admin password
// is stored as a bcrypt hash in configuration; a wrong password is 401 so
// the frontend can distinguish it from validation problems.
func (h *InstallationsHandler) VerifyCredentials(w http.ResponseWriter, r *http.Request) {
	var req VerifyCredentialsRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if h.adminPasswordHash == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthInvalidCreds,
			"credential verification is not configured",
			nil,
		))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.adminPasswordHash), []byte(req.Password)); err != nil {
		h.logger.WarnContext(r.Context(), "credential verification failed")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthInvalidCreds,
			"invalid credentials",
			err,
		))
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"valid": true})
}
