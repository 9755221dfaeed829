package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/backflowhq/service-authgate/config"
	"github.com/backflowhq/service-authgate/service/gate"
	"github.com/backflowhq/service-authgate/service/handlers"
	"github.com/backflowhq/service-authgate/service/models"
	"github.com/backflowhq/service-authgate/service/ratelimit"
	"github.com/backflowhq/service-authgate/service/repository"
	"github.com/backflowhq/service-authgate/utils"
)

const (
	testLoginAttempts = 10
	testHashCost      = 4
)

type AuthHandlersTestSuite struct {
	suite.Suite

	ctx         context.Context
	credentials *repository.InMemoryCredentialStore
	sessions    *repository.InMemorySessionStore
	events      *repository.InMemoryLoginEventStore
	hasher      *utils.BCrypt
	limiter     *ratelimit.Limiter
	authGate    *gate.Gate

	server *httptest.Server
	client *http.Client
}

func TestAuthHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(AuthHandlersTestSuite))
}

func (s *AuthHandlersTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.credentials = repository.NewInMemoryCredentialStore(repository.LockoutPolicy{
		Threshold: 5,
		Duration:  30 * time.Minute,
	}, nil)
	s.sessions = repository.NewInMemorySessionStore(nil)
	s.events = repository.NewInMemoryLoginEventStore()
	s.hasher = utils.NewBCryptWithCost(testHashCost)

	s.limiter = ratelimit.New(map[ratelimit.Operation]ratelimit.Policy{
		ratelimit.OpLogin: {Threshold: testLoginAttempts, Window: time.Hour, Cooldown: time.Minute},
		ratelimit.OpAdmin: {Threshold: 50, Window: time.Hour, Cooldown: time.Minute},
	})

	s.authGate = gate.New(gate.Config{
		Credentials: s.credentials,
		Sessions:    s.sessions,
		Events:      s.events,
		Hasher:      s.hasher,
		SessionTTL:  time.Hour,
	})

	cfg := &config.AuthGateConfig{
		SecureCookieHashKey:  "d1f4f1a3b8d84f79e6d4b8b5c3f04725a8a7d6b4c2f9a987d5e4f3a2b1c086d1",
		SecureCookieBlockKey: "a7e7b4f8d2e5a3c1f0b6d9d4f3a5c20798d1c1e7c4f6a3e4b0e5c2f4a7d6b301",
		SecureCookies:        false,
	}

	srv, err := handlers.NewAuthServer(cfg, s.authGate, s.limiter, s.credentials, s.sessions, s.events, s.hasher)
	require.NoError(s.T(), err)

	s.server = httptest.NewServer(srv.SetupRouterV1())

	jar, err := cookiejar.New(nil)
	require.NoError(s.T(), err)
	s.client = &http.Client{Jar: jar}
}

func (s *AuthHandlersTestSuite) TearDownTest() {
	s.server.Close()
	s.limiter.Stop()
}

func (s *AuthHandlersTestSuite) seedPrincipal(email, password, role string) *models.Principal {
	hash, err := s.hasher.Hash(s.ctx, []byte(password))
	require.NoError(s.T(), err)

	principal := &models.Principal{
		Email:        email,
		Role:         role,
		IsActive:     true,
		PasswordHash: hash,
	}
	require.NoError(s.T(), s.credentials.Create(s.ctx, principal))
	return principal
}

func (s *AuthHandlersTestSuite) postJSON(path string, payload any) *http.Response {
	body, err := json.Marshal(payload)
	require.NoError(s.T(), err)

	resp, err := s.client.Post(s.server.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(s.T(), err)
	return resp
}

func (s *AuthHandlersTestSuite) login(email, password string) *http.Response {
	return s.postJSON("/login", map[string]string{"email": email, "password": password})
}

func (s *AuthHandlersTestSuite) TestLoginSuccessSetsSessionCookie() {
	principal := s.seedPrincipal("alice@example.com", "correct-horse-battery", models.RoleTechnician)

	resp := s.login("alice@example.com", "correct-horse-battery")
	defer resp.Body.Close()

	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var body struct {
		PrincipalID string    `json:"principalId"`
		Role        string    `json:"role"`
		ExpiresAt   time.Time `json:"expiresAt"`
	}
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(s.T(), principal.ID, body.PrincipalID)
	assert.Equal(s.T(), models.RoleTechnician, body.Role)
	assert.True(s.T(), body.ExpiresAt.After(time.Now()))

	var sessionCookie *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == handlers.SessionCookieName {
			sessionCookie = cookie
		}
	}
	require.NotNil(s.T(), sessionCookie, "login must set the session cookie")
	assert.True(s.T(), sessionCookie.HttpOnly)
	assert.Equal(s.T(), http.SameSiteStrictMode, sessionCookie.SameSite)
	assert.NotEmpty(s.T(), sessionCookie.Value)
}

func (s *AuthHandlersTestSuite) TestLoginFailuresAreGeneric() {
	s.seedPrincipal("alice@example.com", "correct-horse-battery", models.RoleTechnician)

	testCases := []struct {
		name     string
		email    string
		password string
	}{
		{name: "unknown email", email: "nobody@example.com", password: "whatever-password"},
		{name: "wrong password", email: "alice@example.com", password: "wrong-password"},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			resp := s.login(tc.email, tc.password)
			defer resp.Body.Close()

			require.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)

			var body handlers.ErrorResponse
			require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(s.T(), "invalid credentials", body.Message,
				"failure reason must not leak whether the account exists")
		})
	}
}

func (s *AuthHandlersTestSuite) TestWhoamiRequiresSession() {
	resp, err := s.client.Get(s.server.URL + "/whoami")
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)
}

func (s *AuthHandlersTestSuite) TestWhoamiReturnsPrincipal() {
	s.seedPrincipal("alice@example.com", "correct-horse-battery", models.RoleTester)

	loginResp := s.login("alice@example.com", "correct-horse-battery")
	loginResp.Body.Close()
	require.Equal(s.T(), http.StatusOK, loginResp.StatusCode)

	resp, err := s.client.Get(s.server.URL + "/whoami")
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var body struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(s.T(), "alice@example.com", body.Email)
	assert.Equal(s.T(), models.RoleTester, body.Role)
}

func (s *AuthHandlersTestSuite) TestLogoutRevokesSession() {
	s.seedPrincipal("alice@example.com", "correct-horse-battery", models.RoleTechnician)

	loginResp := s.login("alice@example.com", "correct-horse-battery")
	loginResp.Body.Close()
	require.Equal(s.T(), http.StatusOK, loginResp.StatusCode)

	logoutResp := s.postJSON("/logout", nil)
	logoutResp.Body.Close()
	require.Equal(s.T(), http.StatusNoContent, logoutResp.StatusCode)

	resp, err := s.client.Get(s.server.URL + "/whoami")
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(s.T(), 0, s.sessions.Count())
}

func (s *AuthHandlersTestSuite) TestLoginRateLimitReturns429() {
	s.seedPrincipal("alice@example.com", "correct-horse-battery", models.RoleTechnician)

	for i := 0; i < testLoginAttempts; i++ {
		resp := s.login("alice@example.com", "wrong-password")
		resp.Body.Close()
	}

	resp := s.login("alice@example.com", "wrong-password")
	defer resp.Body.Close()

	require.Equal(s.T(), http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(s.T(), resp.Header.Get("Retry-After"))
}

func (s *AuthHandlersTestSuite) TestAdminEndpointsRejectNonAdmins() {
	s.seedPrincipal("tech@example.com", "correct-horse-battery", models.RoleTechnician)

	loginResp := s.login("tech@example.com", "correct-horse-battery")
	loginResp.Body.Close()
	require.Equal(s.T(), http.StatusOK, loginResp.StatusCode)

	req, err := http.NewRequest(http.MethodPut, s.server.URL+"/api/principals",
		bytes.NewReader([]byte(`{"email":"new@example.com","password":"long-enough-pass","role":"tester"}`)))
	require.NoError(s.T(), err)

	resp, err := s.client.Do(req)
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	assert.Equal(s.T(), http.StatusForbidden, resp.StatusCode)
}

func (s *AuthHandlersTestSuite) TestAdminCreatesPrincipalWhoCanLogin() {
	s.seedPrincipal("admin@example.com", "correct-horse-battery", models.RoleAdmin)

	loginResp := s.login("admin@example.com", "correct-horse-battery")
	loginResp.Body.Close()
	require.Equal(s.T(), http.StatusOK, loginResp.StatusCode)

	req, err := http.NewRequest(http.MethodPut, s.server.URL+"/api/principals",
		bytes.NewReader([]byte(`{"email":"new@example.com","password":"long-enough-pass","role":"tester"}`)))
	require.NoError(s.T(), err)

	resp, err := s.client.Do(req)
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)

	// The fresh principal can authenticate on a separate client.
	jar, err := cookiejar.New(nil)
	require.NoError(s.T(), err)
	freshClient := &http.Client{Jar: jar}

	body, err := json.Marshal(map[string]string{"email": "new@example.com", "password": "long-enough-pass"})
	require.NoError(s.T(), err)
	freshResp, err := freshClient.Post(s.server.URL+"/login", "application/json", bytes.NewReader(body))
	require.NoError(s.T(), err)
	defer freshResp.Body.Close()
	assert.Equal(s.T(), http.StatusOK, freshResp.StatusCode)
}

func (s *AuthHandlersTestSuite) TestCreatePrincipalRejectsUnknownRole() {
	s.seedPrincipal("admin@example.com", "correct-horse-battery", models.RoleAdmin)

	loginResp := s.login("admin@example.com", "correct-horse-battery")
	loginResp.Body.Close()

	req, err := http.NewRequest(http.MethodPut, s.server.URL+"/api/principals",
		bytes.NewReader([]byte(`{"email":"new@example.com","password":"long-enough-pass","role":"superuser"}`)))
	require.NoError(s.T(), err)

	resp, err := s.client.Do(req)
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *AuthHandlersTestSuite) TestDeactivationSignsPrincipalOut() {
	target := s.seedPrincipal("tech@example.com", "correct-horse-battery", models.RoleTechnician)
	s.seedPrincipal("admin@example.com", "admin-pass-phrase", models.RoleAdmin)

	// Technician signs in on their own client.
	jar, err := cookiejar.New(nil)
	require.NoError(s.T(), err)
	techClient := &http.Client{Jar: jar}

	body, err := json.Marshal(map[string]string{"email": "tech@example.com", "password": "correct-horse-battery"})
	require.NoError(s.T(), err)
	techLogin, err := techClient.Post(s.server.URL+"/login", "application/json", bytes.NewReader(body))
	require.NoError(s.T(), err)
	techLogin.Body.Close()
	require.Equal(s.T(), http.StatusOK, techLogin.StatusCode)

	adminLogin := s.login("admin@example.com", "admin-pass-phrase")
	adminLogin.Body.Close()
	require.Equal(s.T(), http.StatusOK, adminLogin.StatusCode)

	req, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/api/principals/%s/deactivate", s.server.URL, target.ID), nil)
	require.NoError(s.T(), err)
	resp, err := s.client.Do(req)
	require.NoError(s.T(), err)
	resp.Body.Close()
	require.Equal(s.T(), http.StatusNoContent, resp.StatusCode)

	whoami, err := techClient.Get(s.server.URL + "/whoami")
	require.NoError(s.T(), err)
	defer whoami.Body.Close()
	assert.Equal(s.T(), http.StatusUnauthorized, whoami.StatusCode)
}

func (s *AuthHandlersTestSuite) TestRevokeAllSessions() {
	s.seedPrincipal("admin@example.com", "admin-pass-phrase", models.RoleAdmin)
	s.seedPrincipal("tech@example.com", "correct-horse-battery", models.RoleTechnician)

	jar, err := cookiejar.New(nil)
	require.NoError(s.T(), err)
	techClient := &http.Client{Jar: jar}
	body, err := json.Marshal(map[string]string{"email": "tech@example.com", "password": "correct-horse-battery"})
	require.NoError(s.T(), err)
	techLogin, err := techClient.Post(s.server.URL+"/login", "application/json", bytes.NewReader(body))
	require.NoError(s.T(), err)
	techLogin.Body.Close()

	adminLogin := s.login("admin@example.com", "admin-pass-phrase")
	adminLogin.Body.Close()
	require.Equal(s.T(), http.StatusOK, adminLogin.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, s.server.URL+"/api/sessions", nil)
	require.NoError(s.T(), err)
	resp, err := s.client.Do(req)
	require.NoError(s.T(), err)
	resp.Body.Close()
	require.Equal(s.T(), http.StatusNoContent, resp.StatusCode)

	// Every session is gone, the admin's own included.
	assert.Equal(s.T(), 0, s.sessions.Count())

	whoami, err := techClient.Get(s.server.URL + "/whoami")
	require.NoError(s.T(), err)
	defer whoami.Body.Close()
	assert.Equal(s.T(), http.StatusUnauthorized, whoami.StatusCode)
}

func (s *AuthHandlersTestSuite) TestPasswordChangeRevokesOtherSessions() {
	s.seedPrincipal("alice@example.com", "correct-horse-battery", models.RoleTechnician)

	// Two devices sign in.
	jar, err := cookiejar.New(nil)
	require.NoError(s.T(), err)
	otherDevice := &http.Client{Jar: jar}
	body, err := json.Marshal(map[string]string{"email": "alice@example.com", "password": "correct-horse-battery"})
	require.NoError(s.T(), err)
	otherLogin, err := otherDevice.Post(s.server.URL+"/login", "application/json", bytes.NewReader(body))
	require.NoError(s.T(), err)
	otherLogin.Body.Close()

	loginResp := s.login("alice@example.com", "correct-horse-battery")
	loginResp.Body.Close()
	require.Equal(s.T(), http.StatusOK, loginResp.StatusCode)

	changeResp := s.postJSON("/password", map[string]string{
		"currentPassword": "correct-horse-battery",
		"newPassword":     "entirely-new-secret",
	})
	changeResp.Body.Close()
	require.Equal(s.T(), http.StatusNoContent, changeResp.StatusCode)

	// The changing device keeps a live session.
	whoami, err := s.client.Get(s.server.URL + "/whoami")
	require.NoError(s.T(), err)
	whoami.Body.Close()
	assert.Equal(s.T(), http.StatusOK, whoami.StatusCode)

	// The other device is signed out.
	otherWhoami, err := otherDevice.Get(s.server.URL + "/whoami")
	require.NoError(s.T(), err)
	defer otherWhoami.Body.Close()
	assert.Equal(s.T(), http.StatusUnauthorized, otherWhoami.StatusCode)

	// Old password no longer works, the new one does.
	oldResp := s.login("alice@example.com", "correct-horse-battery")
	oldResp.Body.Close()
	assert.Equal(s.T(), http.StatusUnauthorized, oldResp.StatusCode)

	newResp := s.login("alice@example.com", "entirely-new-secret")
	newResp.Body.Close()
	assert.Equal(s.T(), http.StatusOK, newResp.StatusCode)
}
