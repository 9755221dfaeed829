package handlers

import (
	"encoding/json"
	"net/http"
)

// HealthCheckEndpoint reports process liveness.
func (h *AuthServer) HealthCheckEndpoint(rw http.ResponseWriter, _ *http.Request) error {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	return json.NewEncoder(rw).Encode(map[string]string{"status": "ok"})
}
