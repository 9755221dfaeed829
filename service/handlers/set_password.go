package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pitabwire/util"

	"github.com/backflowhq/service-authgate/service/gate"
)

const minPasswordLength = 10

type passwordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// SubmitPasswordChangeEndpoint re-hashes the caller's password after
// verifying the current one, then revokes every other session the principal
// holds so a stolen credential cannot ride along on old tokens. The session
// that made the change stays valid.
func (h *AuthServer) SubmitPasswordChangeEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	log := util.Log(ctx)

	principal := principalFromContext(ctx)
	if principal == nil {
		return gate.ErrUnauthenticated
	}

	var body passwordChangeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		log.WithError(err).Debug("could not decode password change body")
		return gate.ErrInvalidCredentials
	}

	if len(body.NewPassword) < minPasswordLength {
		return badRequest(rw, "password does not meet length requirements")
	}

	if err := h.hasher.Compare(ctx, principal.PasswordHash, []byte(body.CurrentPassword)); err != nil {
		return gate.ErrInvalidCredentials
	}

	newHash, err := h.hasher.Hash(ctx, []byte(body.NewPassword))
	if err != nil {
		log.WithError(err).Error("could not hash new password")
		return gate.ErrServiceUnavailable
	}

	if err = h.credentialStore.UpdatePassword(ctx, principal.ID, newHash); err != nil {
		log.WithError(err).Error("could not persist new password hash")
		return gate.ErrServiceUnavailable
	}

	// Drop every other device's session; re-mint one for the caller so the
	// active session carries on under the new credential.
	if err = h.gate.RevokeAllForPrincipal(ctx, principal.ID); err != nil {
		return err
	}

	session, err := h.sessionStore.Create(ctx, principal.ID, h.gate.SessionTTL())
	if err != nil {
		log.WithError(err).Error("could not re-create session after password change")
		return gate.ErrServiceUnavailable
	}

	if err = h.issueSessionCookie(rw, session.Token, h.gate.SessionTTL()); err != nil {
		log.WithError(err).Error("could not encode session cookie")
		return gate.ErrServiceUnavailable
	}

	log.WithField("principal_id", principal.ID).Info("password changed, other sessions revoked")

	rw.WriteHeader(http.StatusNoContent)
	return nil
}
