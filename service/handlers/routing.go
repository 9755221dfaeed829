package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pitabwire/util"

	"github.com/backflowhq/service-authgate/service/models"
	"github.com/backflowhq/service-authgate/utils"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h *AuthServer) addHandler(router *mux.Router, f handlerFunc, path string, name string, method string) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(utils.ClientIPToContext(r.Context(), util.GetIP(r)))

		err := f(w, r)
		if err != nil {
			h.writeError(r.Context(), w, err, name)
		}
	})

	router.Path(path).
		Name(name).
		Handler(handler).
		Methods(method)
}

// protected wraps a handler with session validation and a flat role check.
// The allowed role set is explicit per route; an empty set admits any
// authenticated principal.
func (h *AuthServer) protected(f handlerFunc, roles ...string) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		ctx := r.Context()

		token, err := h.sessionTokenFromRequest(r)
		if err != nil {
			return err
		}

		principal, err := h.gate.ValidateSession(ctx, token)
		if err != nil {
			return err
		}

		if err = h.gate.Authorize(principal, roles...); err != nil {
			return err
		}

		r = r.WithContext(principalToContext(ctx, principal))
		return f(w, r)
	}
}

// SetupRouterV1 -
func (h *AuthServer) SetupRouterV1() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)

	h.addHandler(router, h.HealthCheckEndpoint, "/healthz", "HealthCheckEndpoint", "GET")

	h.addHandler(router, h.SubmitLoginEndpoint, "/login", "SubmitLoginEndpoint", "POST")
	h.addHandler(router, h.SubmitLogoutEndpoint, "/logout", "SubmitLogoutEndpoint", "POST")

	h.addHandler(router, h.protected(h.WhoamiEndpoint), "/whoami", "WhoamiEndpoint", "GET")
	h.addHandler(router, h.protected(h.SubmitPasswordChangeEndpoint), "/password", "SubmitPasswordChangeEndpoint", "POST")

	adminRoles := []string{models.RoleAdmin}
	h.addHandler(router, h.protected(h.CreatePrincipalEndpoint, adminRoles...),
		"/api/principals", "CreatePrincipalEndpoint", "PUT")
	h.addHandler(router, h.protected(h.DeactivatePrincipalEndpoint, adminRoles...),
		"/api/principals/{PrincipalId}/deactivate", "DeactivatePrincipalEndpoint", "POST")
	h.addHandler(router, h.protected(h.ListLoginEventsEndpoint, models.RoleAdmin, models.RoleCompanyAdmin),
		"/api/principals/{PrincipalId}/events", "ListLoginEventsEndpoint", "GET")
	h.addHandler(router, h.protected(h.RevokePrincipalSessionsEndpoint, adminRoles...),
		"/api/sessions/{PrincipalId}", "RevokePrincipalSessionsEndpoint", "DELETE")
	h.addHandler(router, h.protected(h.RevokeAllSessionsEndpoint, adminRoles...),
		"/api/sessions", "RevokeAllSessionsEndpoint", "DELETE")

	return router
}
