package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/backflowhq/service-authgate/service/gate"
)

type whoamiResponse struct {
	PrincipalID string `json:"principalId"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// WhoamiEndpoint returns the principal bound to the presented session.
func (h *AuthServer) WhoamiEndpoint(rw http.ResponseWriter, req *http.Request) error {
	principal := principalFromContext(req.Context())
	if principal == nil {
		return gate.ErrUnauthenticated
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	return json.NewEncoder(rw).Encode(whoamiResponse{
		PrincipalID: principal.ID,
		Email:       principal.Email,
		Role:        principal.Role,
	})
}
