package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pitabwire/util"

	"github.com/backflowhq/service-authgate/service/gate"
	"github.com/backflowhq/service-authgate/service/ratelimit"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	PrincipalID string    `json:"principalId"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// SubmitLoginEndpoint authenticates an email/password pair and issues the
// session cookie. Rate limits apply per client address and per submitted
// email, the more restrictive outcome winning.
func (h *AuthServer) SubmitLoginEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	start := time.Now()
	log := util.Log(ctx)

	var body loginRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		log.WithError(err).Debug("could not decode login request body")
		return gate.ErrInvalidCredentials
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	ipAddr := util.GetIP(req)

	if result := h.checkLoginRateLimit(ctx, ipAddr, email); !result.Allowed {
		return gate.ErrRateLimitedFor(result.RetryAfter)
	}

	principal, session, err := h.gate.Authenticate(ctx, email, body.Password)
	if err != nil {
		return err
	}

	h.resetLoginRateLimit(ctx, ipAddr, email)

	if err = h.issueSessionCookie(rw, session.Token, h.gate.SessionTTL()); err != nil {
		log.WithError(err).Error("could not encode session cookie")
		return gate.ErrServiceUnavailable
	}

	log.WithFields(map[string]any{
		"principal_id": principal.ID,
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Info("login completed successfully")

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	return json.NewEncoder(rw).Encode(loginResponse{
		PrincipalID: principal.ID,
		Role:        principal.Role,
		ExpiresAt:   session.ExpiresAt,
	})
}

func loginRateLimitKey(keyType, value string) string {
	return "login_rl:" + keyType + ":" + value
}

// checkLoginRateLimit checks rate limits for both IP and email.
// Returns the most restrictive result.
func (h *AuthServer) checkLoginRateLimit(ctx context.Context, ip, email string) ratelimit.Result {
	log := util.Log(ctx)

	ipResult := h.limiter.Check(ctx, loginRateLimitKey("ip", ip), ratelimit.OpLogin)
	if !ipResult.Allowed {
		log.WithFields(map[string]any{
			"ip":            ip,
			"retry_after_s": ipResult.RetryAfterSec,
		}).Warn("login rate limit exceeded for IP")
		return ipResult
	}

	if email == "" {
		return ipResult
	}

	emailResult := h.limiter.Check(ctx, loginRateLimitKey("email", email), ratelimit.OpLogin)
	if !emailResult.Allowed {
		log.WithFields(map[string]any{
			"email_prefix":  email[:min(3, len(email))] + "***",
			"retry_after_s": emailResult.RetryAfterSec,
		}).Warn("login rate limit exceeded for email")
		return emailResult
	}

	if emailResult.AttemptsLeft < ipResult.AttemptsLeft {
		return emailResult
	}
	return ipResult
}

// resetLoginRateLimit clears rate limits after a successful login.
func (h *AuthServer) resetLoginRateLimit(ctx context.Context, ip, email string) {
	h.limiter.Reset(ctx, loginRateLimitKey("ip", ip), ratelimit.OpLogin)
	if email != "" {
		h.limiter.Reset(ctx, loginRateLimitKey("email", email), ratelimit.OpLogin)
	}
}
