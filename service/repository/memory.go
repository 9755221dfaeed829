package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/backflowhq/service-authgate/service/models"
	"github.com/backflowhq/service-authgate/utils"
)

// In-memory store implementations. Each instance owns its own state; nothing
// here is process-wide, so tests construct one per case. The now function is
// injectable so lockout and expiry behavior can be driven by a fake clock.

type InMemoryCredentialStore struct {
	mu         sync.Mutex
	policy     LockoutPolicy
	now        func() time.Time
	principals map[string]*models.Principal
}

// NewInMemoryCredentialStore creates an empty credential store. A nil now
// falls back to time.Now.
func NewInMemoryCredentialStore(policy LockoutPolicy, now func() time.Time) *InMemoryCredentialStore {
	if now == nil {
		now = time.Now
	}
	return &InMemoryCredentialStore{
		policy:     policy,
		now:        now,
		principals: make(map[string]*models.Principal),
	}
}

func (s *InMemoryCredentialStore) FindByEmail(_ context.Context, email string) (*models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, principal := range s.principals {
		if principal.Email == email {
			cp := *principal
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryCredentialStore) GetByID(_ context.Context, id string) (*models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	principal, ok := s.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *principal
	return &cp, nil
}

func (s *InMemoryCredentialStore) Create(_ context.Context, principal *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if principal.ID == "" {
		principal.ID = uuid.NewString()
	}
	principal.Email = strings.ToLower(strings.TrimSpace(principal.Email))
	principal.CreatedAt = s.now()

	cp := *principal
	s.principals[principal.ID] = &cp
	return nil
}

func (s *InMemoryCredentialStore) RecordFailedAttempt(_ context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	principal, ok := s.principals[principalID]
	if !ok {
		return ErrNotFound
	}

	principal.FailedLoginAttempts++
	if principal.FailedLoginAttempts >= s.policy.Threshold {
		lockedUntil := s.now().Add(s.policy.Duration)
		principal.LockedUntil = &lockedUntil
	}
	return nil
}

func (s *InMemoryCredentialStore) ClearFailedAttempts(_ context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	principal, ok := s.principals[principalID]
	if !ok {
		return ErrNotFound
	}

	principal.FailedLoginAttempts = 0
	principal.LockedUntil = nil
	return nil
}

func (s *InMemoryCredentialStore) UpdatePassword(_ context.Context, principalID string, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	principal, ok := s.principals[principalID]
	if !ok {
		return ErrNotFound
	}
	principal.PasswordHash = passwordHash
	return nil
}

func (s *InMemoryCredentialStore) SetActive(_ context.Context, principalID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	principal, ok := s.principals[principalID]
	if !ok {
		return ErrNotFound
	}
	principal.IsActive = active
	return nil
}

type InMemorySessionStore struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]*models.Session
}

// NewInMemorySessionStore creates an empty session store. A nil now falls
// back to time.Now.
func NewInMemorySessionStore(now func() time.Time) *InMemorySessionStore {
	if now == nil {
		now = time.Now
	}
	return &InMemorySessionStore{
		now:      now,
		sessions: make(map[string]*models.Session),
	}
}

func (s *InMemorySessionStore) Create(_ context.Context, principalID string, ttl time.Duration) (*models.Session, error) {
	token, err := utils.GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	session := &models.Session{
		BaseModel:      models.BaseModel{ID: uuid.NewString(), CreatedAt: now},
		Token:          token,
		PrincipalID:    principalID,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
	}
	cp := *session
	s.sessions[token] = &cp
	return session, nil
}

func (s *InMemorySessionStore) FindByToken(_ context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *InMemorySessionStore) Touch(_ context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[token]; ok {
		session.LastActivityAt = at
	}
	return nil
}

func (s *InMemorySessionStore) DeleteByToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

func (s *InMemorySessionStore) DeleteAllForPrincipal(_ context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, session := range s.sessions {
		if session.PrincipalID == principalID {
			delete(s.sessions, token)
		}
	}
	return nil
}

func (s *InMemorySessionStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]*models.Session)
	return nil
}

func (s *InMemorySessionStore) DeleteExpired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, session := range s.sessions {
		if session.ExpiredAt(now) {
			delete(s.sessions, token)
		}
	}
	return nil
}

// Count reports the number of live session records, used by tests.
func (s *InMemorySessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

type InMemoryLoginEventStore struct {
	mu     sync.Mutex
	events []*models.LoginEvent
}

// NewInMemoryLoginEventStore creates an empty login event store.
func NewInMemoryLoginEventStore() *InMemoryLoginEventStore {
	return &InMemoryLoginEventStore{}
}

func (s *InMemoryLoginEventStore) Record(_ context.Context, event *models.LoginEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

func (s *InMemoryLoginEventStore) ListForPrincipal(_ context.Context, principalID string, limit int) ([]*models.LoginEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.LoginEvent
	for _, event := range s.events {
		if event.PrincipalID == principalID {
			cp := *event
			matched = append(matched, &cp)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
