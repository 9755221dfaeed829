package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pitabwire/util"
	"github.com/redis/go-redis/v9"

	"github.com/backflowhq/service-authgate/service/models"
)

const (
	sessionCachePrefix    = "authgate:session:"
	principalTokensPrefix = "authgate:principal_sessions:"
)

// CachedSessionStore is a read-through cache in front of a persistent
// SessionStore. Hits avoid a database round trip for token lookups; every
// mutation writes through and invalidates. The cache only accelerates the
// token-to-session binding: expiry and principal-state checks still happen on
// the authoritative record each validation.
type CachedSessionStore struct {
	inner SessionStore
	cache *redis.Client
}

// NewCachedSessionStore wraps inner with a Redis token cache.
func NewCachedSessionStore(inner SessionStore, cache *redis.Client) *CachedSessionStore {
	return &CachedSessionStore{
		inner: inner,
		cache: cache,
	}
}

func (s *CachedSessionStore) Create(ctx context.Context, principalID string, ttl time.Duration) (*models.Session, error) {
	session, err := s.inner.Create(ctx, principalID, ttl)
	if err != nil {
		return nil, err
	}
	s.cacheSession(ctx, session)
	return session, nil
}

func (s *CachedSessionStore) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	payload, err := s.cache.Get(ctx, sessionCachePrefix+token).Result()
	if err == nil {
		var session models.Session
		if unmarshalErr := json.Unmarshal([]byte(payload), &session); unmarshalErr == nil {
			return &session, nil
		}
		// Unreadable cache entry, fall through to the database.
		s.cache.Del(ctx, sessionCachePrefix+token)
	} else if err != redis.Nil {
		util.Log(ctx).WithError(err).Warn("session cache lookup failed, using database")
	}

	session, err := s.inner.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	s.cacheSession(ctx, session)
	return session, nil
}

func (s *CachedSessionStore) Touch(ctx context.Context, token string, at time.Time) error {
	// The cached copy keeps its stale LastActivityAt until it naturally
	// expires; activity tracking is advisory.
	return s.inner.Touch(ctx, token, at)
}

func (s *CachedSessionStore) DeleteByToken(ctx context.Context, token string) error {
	if err := s.inner.DeleteByToken(ctx, token); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, sessionCachePrefix+token).Err(); err != nil {
		util.Log(ctx).WithError(err).Warn("could not invalidate cached session")
	}
	return nil
}

func (s *CachedSessionStore) DeleteAllForPrincipal(ctx context.Context, principalID string) error {
	if err := s.inner.DeleteAllForPrincipal(ctx, principalID); err != nil {
		return err
	}

	setKey := principalTokensPrefix + principalID
	tokens, err := s.cache.SMembers(ctx, setKey).Result()
	if err != nil {
		util.Log(ctx).WithError(err).Warn("could not list cached sessions for principal")
		return nil
	}
	for _, token := range tokens {
		s.cache.Del(ctx, sessionCachePrefix+token)
	}
	s.cache.Del(ctx, setKey)
	return nil
}

func (s *CachedSessionStore) DeleteAll(ctx context.Context) error {
	if err := s.inner.DeleteAll(ctx); err != nil {
		return err
	}
	if err := s.cache.FlushDB(ctx).Err(); err != nil {
		util.Log(ctx).WithError(err).Warn("could not flush session cache")
	}
	return nil
}

func (s *CachedSessionStore) DeleteExpired(ctx context.Context, now time.Time) error {
	// Cached entries carry their own TTL and age out on their own.
	return s.inner.DeleteExpired(ctx, now)
}

func (s *CachedSessionStore) cacheSession(ctx context.Context, session *models.Session) {
	remaining := time.Until(session.ExpiresAt)
	if remaining <= 0 {
		return
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return
	}

	if err = s.cache.Set(ctx, sessionCachePrefix+session.Token, payload, remaining).Err(); err != nil {
		util.Log(ctx).WithError(err).Warn("could not cache session")
		return
	}
	s.cache.SAdd(ctx, principalTokensPrefix+session.PrincipalID, session.Token)
	s.cache.Expire(ctx, principalTokensPrefix+session.PrincipalID, remaining)
}
