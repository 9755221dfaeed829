package handlers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/pitabwire/util"
	"github.com/pkg/errors"

	"github.com/backflowhq/service-authgate/config"
	"github.com/backflowhq/service-authgate/service/gate"
	"github.com/backflowhq/service-authgate/service/ratelimit"
	"github.com/backflowhq/service-authgate/service/repository"
)

const (
	// SessionCookieName holds the securecookie-encoded session token.
	SessionCookieName = "session_storage"
	sessionCookieKey  = "sess_id"
)

type AuthServer struct {
	sessionCookieCodec []securecookie.Codec
	config             *config.AuthGateConfig
	gate               *gate.Gate
	limiter            *ratelimit.Limiter

	// Repository dependencies, for operations that sit outside the
	// authenticate/validate path (registration, password change).
	credentialStore repository.CredentialStore
	sessionStore    repository.SessionStore
	eventStore      repository.LoginEventStore
	hasher          gate.Hasher
}

// NewAuthServer builds the HTTP layer around the gate and its stores.
func NewAuthServer(
	cfg *config.AuthGateConfig,
	authGate *gate.Gate,
	limiter *ratelimit.Limiter,
	credentialStore repository.CredentialStore,
	sessionStore repository.SessionStore,
	eventStore repository.LoginEventStore,
	hasher gate.Hasher,
) (*AuthServer, error) {

	hashKey, err := hex.DecodeString(cfg.SecureCookieHashKey)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode secure cookie hash key")
	}

	blockKey, err := hex.DecodeString(cfg.SecureCookieBlockKey)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode secure cookie block key")
	}

	return &AuthServer{
		sessionCookieCodec: []securecookie.Codec{securecookie.New(hashKey, blockKey)},
		config:             cfg,
		gate:               authGate,
		limiter:            limiter,
		credentialStore:    credentialStore,
		sessionStore:       sessionStore,
		eventStore:         eventStore,
		hasher:             hasher,
	}, nil
}

func (h *AuthServer) Config() *config.AuthGateConfig {
	return h.config
}

func (h *AuthServer) Gate() *gate.Gate {
	return h.gate
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError maps a handler failure to a JSON response. Typed gate failures
// carry their own status and generic message; anything else is an internal
// error, logged in full and surfaced generically unless ExposeErrors is set.
func (h *AuthServer) writeError(ctx context.Context, w http.ResponseWriter, err error, name string) {
	log := util.Log(ctx).WithField("handler", name).WithError(err)

	code, message, retryAfter := statusForError(err)
	if code == http.StatusInternalServerError {
		log.Error("internal service error")
		if h.config.ExposeErrors {
			message = fmt.Sprintf("%s: %s", message, err)
		}
	} else {
		log.Debug("request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	if retryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	}
	w.WriteHeader(code)

	if encodeErr := json.NewEncoder(w).Encode(&ErrorResponse{Code: code, Message: message}); encodeErr != nil {
		log.WithError(encodeErr).Error("could not write error to response")
	}
}

// statusForError translates the gate's error taxonomy into HTTP. Everything
// credential-shaped collapses into the same generic 401 so the wire leaks
// nothing about which accounts exist; only lockout and rate limiting expose a
// retry-after hint.
func statusForError(err error) (code int, message string, retryAfterSec int) {
	var authErr *gate.Error
	if !errors.As(err, &authErr) {
		return http.StatusInternalServerError, "could not process request", 0
	}

	switch authErr.Kind {
	case gate.KindInvalidCredentials:
		return http.StatusUnauthorized, "invalid credentials", 0
	case gate.KindUnauthenticated, gate.KindSessionExpired:
		return http.StatusUnauthorized, "please log in", 0
	case gate.KindAccountDisabled, gate.KindForbidden:
		return http.StatusForbidden, "operation not permitted", 0
	case gate.KindAccountLocked, gate.KindRateLimited:
		return http.StatusTooManyRequests, "too many attempts, try again later", int(authErr.RetryAfter.Seconds())
	case gate.KindServiceUnavailable:
		return http.StatusServiceUnavailable, "service temporarily unavailable", 0
	}
	return http.StatusInternalServerError, "could not process request", 0
}
