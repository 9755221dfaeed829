package handlers

import (
	"net/http"

	"github.com/pitabwire/util"
)

// SubmitLogoutEndpoint revokes the presented session and clears the cookie.
// Logout is idempotent: an absent or already-revoked session still clears the
// cookie and succeeds.
func (h *AuthServer) SubmitLogoutEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	token, err := h.sessionTokenFromRequest(req)
	if err == nil {
		if revokeErr := h.gate.RevokeSession(ctx, token); revokeErr != nil {
			util.Log(ctx).WithError(revokeErr).Warn("could not revoke session on logout")
		}
	}

	h.clearSessionCookie(rw)
	rw.WriteHeader(http.StatusNoContent)
	return nil
}
