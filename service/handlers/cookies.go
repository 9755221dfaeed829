package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/backflowhq/service-authgate/service/gate"
	"github.com/backflowhq/service-authgate/service/models"
)

type principalContextKey struct{}

func principalToContext(ctx context.Context, principal *models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

func principalFromContext(ctx context.Context) *models.Principal {
	principal, ok := ctx.Value(principalContextKey{}).(*models.Principal)
	if !ok {
		return nil
	}
	return principal
}

// issueSessionCookie signs and sets the session token cookie.
func (h *AuthServer) issueSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) error {
	encoded, err := h.sessionCookieCodec[0].Encode(sessionCookieKey, token)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Secure:   h.config.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(ttl),
	})
	return nil
}

func (h *AuthServer) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.config.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// sessionTokenFromRequest decodes the session token from the request cookie.
// A missing or undecodable cookie is an Unauthenticated failure, never an
// internal error.
func (h *AuthServer) sessionTokenFromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", gate.ErrUnauthenticated
	}

	var token string
	for _, codec := range h.sessionCookieCodec {
		if decodeErr := codec.Decode(sessionCookieKey, cookie.Value, &token); decodeErr == nil {
			return token, nil
		}
	}
	return "", gate.ErrUnauthenticated
}
