package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pitabwire/util"

	"github.com/backflowhq/service-authgate/service/gate"
	"github.com/backflowhq/service-authgate/service/models"
	"github.com/backflowhq/service-authgate/service/ratelimit"
	"github.com/backflowhq/service-authgate/utils"
)

type createPrincipalRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type principalResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// checkAdminRateLimit guards administrative mutations. These grant or revoke
// access, so the allowance is much tighter than for login.
func (h *AuthServer) checkAdminRateLimit(req *http.Request) error {
	ctx := req.Context()

	result := h.limiter.Check(ctx, "admin_rl:ip:"+utils.ClientIPFromContext(ctx), ratelimit.OpAdmin)
	if !result.Allowed {
		util.Log(ctx).WithField("retry_after_s", result.RetryAfterSec).
			Warn("admin rate limit exceeded")
		return gate.ErrRateLimitedFor(result.RetryAfter)
	}
	return nil
}

// CreatePrincipalEndpoint registers a principal. Admin only.
func (h *AuthServer) CreatePrincipalEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	log := util.Log(ctx)

	if err := h.checkAdminRateLimit(req); err != nil {
		return err
	}

	var body createPrincipalRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		log.WithError(err).Debug("could not decode create principal body")
		return badRequest(rw, "malformed request body")
	}

	if !models.ValidRole(body.Role) {
		return badRequest(rw, "unknown role")
	}
	if len(body.Password) < minPasswordLength {
		return badRequest(rw, "password does not meet length requirements")
	}

	passwordHash, err := h.hasher.Hash(ctx, []byte(body.Password))
	if err != nil {
		log.WithError(err).Error("could not hash password")
		return gate.ErrServiceUnavailable
	}

	principal := &models.Principal{
		Email:        body.Email,
		Role:         body.Role,
		IsActive:     true,
		PasswordHash: passwordHash,
	}

	if err = h.credentialStore.Create(ctx, principal); err != nil {
		log.WithError(err).Error("could not create principal")
		return gate.ErrServiceUnavailable
	}

	log.WithFields(map[string]any{
		"principal_id": principal.ID,
		"role":         principal.Role,
	}).Info("principal created")

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusCreated)
	return json.NewEncoder(rw).Encode(principalResponse{
		ID:    principal.ID,
		Email: principal.Email,
		Role:  principal.Role,
	})
}

// DeactivatePrincipalEndpoint disables an account and revokes its sessions
// in the same stroke, so the deactivation takes effect immediately.
func (h *AuthServer) DeactivatePrincipalEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	log := util.Log(ctx)

	if err := h.checkAdminRateLimit(req); err != nil {
		return err
	}

	principalID := mux.Vars(req)["PrincipalId"]

	if err := h.credentialStore.SetActive(ctx, principalID, false); err != nil {
		log.WithError(err).WithField("principal_id", principalID).Error("could not deactivate principal")
		return gate.ErrServiceUnavailable
	}

	if err := h.gate.RevokeAllForPrincipal(ctx, principalID); err != nil {
		return err
	}

	log.WithField("principal_id", principalID).Info("principal deactivated, sessions revoked")

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

// RevokePrincipalSessionsEndpoint is logout-everywhere for one principal.
func (h *AuthServer) RevokePrincipalSessionsEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	if err := h.checkAdminRateLimit(req); err != nil {
		return err
	}

	principalID := mux.Vars(req)["PrincipalId"]

	if err := h.gate.RevokeAllForPrincipal(ctx, principalID); err != nil {
		return err
	}

	util.Log(ctx).WithField("principal_id", principalID).Info("principal sessions revoked")

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

// RevokeAllSessionsEndpoint clears the entire session store. Incident
// response only: every logged-in client on every device is signed out.
func (h *AuthServer) RevokeAllSessionsEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	if err := h.checkAdminRateLimit(req); err != nil {
		return err
	}

	if err := h.gate.RevokeAll(ctx); err != nil {
		return err
	}

	util.Log(ctx).Warn("all sessions revoked")

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

// ListLoginEventsEndpoint returns the recent authentication audit trail for
// a principal.
func (h *AuthServer) ListLoginEventsEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	principalID := mux.Vars(req)["PrincipalId"]

	limit := 50
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	events, err := h.eventStore.ListForPrincipal(ctx, principalID, limit)
	if err != nil {
		util.Log(ctx).WithError(err).Error("could not list login events")
		return gate.ErrServiceUnavailable
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	return json.NewEncoder(rw).Encode(events)
}

func badRequest(rw http.ResponseWriter, message string) error {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusBadRequest)
	return json.NewEncoder(rw).Encode(&ErrorResponse{
		Code:    http.StatusBadRequest,
		Message: message,
	})
}
