// Package gate implements the session-authentication core: credential
// verification, session lifecycle, and flat role authorization. It depends
// only on the store contracts; transports sit above it and map its typed
// failures onto their own surface.
package gate

import (
	"context"
	"strings"
	"time"

	"github.com/pitabwire/util"
	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"github.com/backflowhq/service-authgate/service/models"
	"github.com/backflowhq/service-authgate/service/repository"
	"github.com/backflowhq/service-authgate/utils"
)

// DefaultSessionTTL is the authoritative session lifetime when none is
// configured.
const DefaultSessionTTL = 24 * time.Hour

// Hasher abstracts password hashing so the work factor and decoy comparison
// can be controlled by the caller.
type Hasher interface {
	Hash(ctx context.Context, data []byte) ([]byte, error)
	Compare(ctx context.Context, hash, data []byte) error
	CompareDecoy(ctx context.Context, data []byte)
}

// Config wires a Gate's collaborators. Credentials, Sessions and Hasher are
// required; Events is optional (no audit trail when nil); Clock defaults to
// the system clock and SessionTTL to DefaultSessionTTL.
type Config struct {
	Credentials repository.CredentialStore
	Sessions    repository.SessionStore
	Events      repository.LoginEventStore
	Hasher      Hasher
	Clock       Clock
	SessionTTL  time.Duration
}

// Gate validates credentials and session tokens and enforces role checks.
type Gate struct {
	credentials repository.CredentialStore
	sessions    repository.SessionStore
	events      repository.LoginEventStore
	hasher      Hasher
	clock       Clock
	sessionTTL  time.Duration
}

// New creates a Gate from the supplied configuration.
func New(cfg Config) *Gate {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &Gate{
		credentials: cfg.Credentials,
		sessions:    cfg.Sessions,
		events:      cfg.Events,
		hasher:      cfg.Hasher,
		clock:       clock,
		sessionTTL:  ttl,
	}
}

// SessionTTL exposes the configured session lifetime for cookie max-age.
func (g *Gate) SessionTTL() time.Duration {
	return g.sessionTTL
}

// Authenticate verifies an email/password pair and mints a session on
// success. Unknown emails and wrong passwords both come back as
// InvalidCredentials, with a decoy hash comparison on the unknown-email path
// so the two are not separable by timing. Store failures fail closed.
func (g *Gate) Authenticate(ctx context.Context, email, password string) (*models.Principal, *models.Session, error) {
	log := util.Log(ctx)
	email = strings.ToLower(strings.TrimSpace(email))

	principal, err := g.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			g.hasher.CompareDecoy(ctx, []byte(password))
			g.recordEvent(ctx, "", email, models.LoginEventBadCredential)
			return nil, nil, ErrInvalidCredentials
		}
		log.WithError(err).Error("credential store lookup failed")
		return nil, nil, ErrServiceUnavailable
	}

	now := g.clock.Now()

	// Fast rejection while locked; failed attempts during a lockout do not
	// extend the lock, so the password is not even compared.
	if principal.LockedAt(now) {
		g.recordEvent(ctx, principal.ID, email, models.LoginEventLocked)
		return nil, nil, ErrAccountLockedFor(principal.LockedUntil.Sub(now))
	}

	if err = g.hasher.Compare(ctx, principal.PasswordHash, []byte(password)); err != nil {
		if recordErr := g.credentials.RecordFailedAttempt(ctx, principal.ID); recordErr != nil {
			log.WithError(recordErr).Error("could not record failed login attempt")
		}
		g.recordEvent(ctx, principal.ID, email, models.LoginEventBadCredential)
		return nil, nil, ErrInvalidCredentials
	}

	if err = g.credentials.ClearFailedAttempts(ctx, principal.ID); err != nil {
		// Not fatal to the login, but worth surfacing in the logs.
		log.WithError(err).Error("could not clear failed login attempts")
	}

	if !principal.IsActive {
		g.recordEvent(ctx, principal.ID, email, models.LoginEventDisabled)
		return nil, nil, ErrAccountDisabled
	}

	session, err := g.sessions.Create(ctx, principal.ID, g.sessionTTL)
	if err != nil {
		log.WithError(err).Error("could not create session")
		return nil, nil, ErrServiceUnavailable
	}

	g.recordEvent(ctx, principal.ID, email, models.LoginEventSucceeded)
	return principal, session, nil
}

// ValidateSession resolves a bearer token to its principal. The owning
// principal's current state is re-read on every call; a deactivated or
// deleted principal invalidates the session immediately, valid TTL or not.
func (g *Gate) ValidateSession(ctx context.Context, token string) (*models.Principal, error) {
	log := util.Log(ctx)

	if !utils.ValidSessionTokenShape(token) {
		return nil, ErrUnauthenticated
	}

	session, err := g.sessions.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		log.WithError(err).Error("session store lookup failed")
		return nil, ErrServiceUnavailable
	}

	now := g.clock.Now()
	if session.ExpiredAt(now) {
		if deleteErr := g.sessions.DeleteByToken(ctx, token); deleteErr != nil {
			log.WithError(deleteErr).Warn("could not delete expired session")
		}
		return nil, ErrSessionExpired
	}

	principal, err := g.credentials.GetByID(ctx, session.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Orphaned session.
			if deleteErr := g.sessions.DeleteByToken(ctx, token); deleteErr != nil {
				log.WithError(deleteErr).Warn("could not delete orphaned session")
			}
			return nil, ErrUnauthenticated
		}
		log.WithError(err).Error("credential store lookup failed during session validation")
		return nil, ErrServiceUnavailable
	}

	if !principal.IsActive {
		if deleteErr := g.sessions.DeleteByToken(ctx, token); deleteErr != nil {
			log.WithError(deleteErr).Warn("could not delete session of deactivated principal")
		}
		return nil, ErrUnauthenticated
	}

	if touchErr := g.sessions.Touch(ctx, token, now); touchErr != nil {
		log.WithError(touchErr).Warn("could not update session activity")
	}

	return principal, nil
}

// Authorize checks that the principal's role is in the required set. The
// check is pure and flat: no role inherits another's permissions. An empty
// required set admits any authenticated principal.
func (g *Gate) Authorize(principal *models.Principal, requiredRoles ...string) error {
	if principal == nil {
		return ErrUnauthenticated
	}
	if len(requiredRoles) == 0 {
		return nil
	}
	for _, role := range requiredRoles {
		if principal.Role == role {
			return nil
		}
	}
	return ErrForbidden
}

// RevokeSession removes a single session, used by logout.
func (g *Gate) RevokeSession(ctx context.Context, token string) error {
	if err := g.sessions.DeleteByToken(ctx, token); err != nil {
		util.Log(ctx).WithError(err).Error("could not revoke session")
		return ErrServiceUnavailable
	}
	return nil
}

// RevokeAllForPrincipal removes every session a principal holds, used for
// logout-everywhere and on deactivation.
func (g *Gate) RevokeAllForPrincipal(ctx context.Context, principalID string) error {
	if err := g.sessions.DeleteAllForPrincipal(ctx, principalID); err != nil {
		util.Log(ctx).WithError(err).Error("could not revoke principal sessions")
		return ErrServiceUnavailable
	}
	return nil
}

// RevokeAll removes every session in the store, the incident-response switch.
func (g *Gate) RevokeAll(ctx context.Context) error {
	if err := g.sessions.DeleteAll(ctx); err != nil {
		util.Log(ctx).WithError(err).Error("could not revoke all sessions")
		return ErrServiceUnavailable
	}
	return nil
}

// recordEvent appends to the audit trail. Best effort only: an audit failure
// never changes an authentication outcome.
func (g *Gate) recordEvent(ctx context.Context, principalID, email, status string) {
	if g.events == nil {
		return
	}

	event := &models.LoginEvent{
		PrincipalID: principalID,
		Email:       email,
		ClientIP:    utils.ClientIPFromContext(ctx),
		Status:      status,
		Properties:  datatypes.JSONMap{},
	}

	if err := g.events.Record(ctx, event); err != nil {
		util.Log(ctx).WithError(err).Warn("could not record login event")
	}
}
