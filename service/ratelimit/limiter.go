package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Operation names a rate-limited action. Thresholds differ per operation:
// login attempts allow room for typos while administrative mutations are
// tightly bounded.
type Operation string

const (
	OpLogin Operation = "login"
	OpAdmin Operation = "admin"
)

// Policy configures the sliding window for one operation. Once the number of
// attempts inside Window reaches Threshold, further attempts are blocked for
// at least Cooldown, even if the window itself would clear sooner.
type Policy struct {
	Threshold int           // Maximum attempts allowed inside the window
	Window    time.Duration // Sliding window length
	Cooldown  time.Duration // Hard floor applied once the threshold trips
}

// DefaultLoginPolicy returns the default policy for login attempts.
func DefaultLoginPolicy() Policy {
	return Policy{
		Threshold: 7,
		Window:    time.Hour,
		Cooldown:  15 * time.Minute,
	}
}

// DefaultAdminPolicy returns the default policy for administrative operations.
func DefaultAdminPolicy() Policy {
	return Policy{
		Threshold: 5,
		Window:    5 * time.Minute,
		Cooldown:  30 * time.Minute,
	}
}

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed       bool
	AttemptsUsed  int
	AttemptsLeft  int
	RetryAfter    time.Duration
	RetryAfterSec int
}

type entry struct {
	attempts     []time.Time
	blockedUntil time.Time
}

// Limiter provides sliding-window rate limiting keyed by (clientKey,
// operation). State is in-memory and per-process; a restart clears it.
type Limiter struct {
	mu       sync.Mutex
	now      func() time.Time
	policies map[Operation]Policy
	store    map[string]*entry
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithNow injects a time source, used by tests to drive window expiry.
func WithNow(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter with the given per-operation policies and starts its
// cleanup goroutine. Operations without a registered policy use the login
// defaults.
func New(policies map[Operation]Policy, opts ...Option) *Limiter {
	l := &Limiter{
		now:      time.Now,
		policies: policies,
		store:    make(map[string]*entry),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.cleanup()

	return l
}

func (l *Limiter) policyFor(op Operation) Policy {
	if policy, ok := l.policies[op]; ok {
		return policy
	}
	return DefaultLoginPolicy()
}

func key(clientKey string, op Operation) string {
	return fmt.Sprintf("%s:%s", op, clientKey)
}

// cleanup periodically removes entries whose window and cooldown both lapsed.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for k, e := range l.store {
				if !now.Before(e.blockedUntil) && l.allPruned(e, now) {
					delete(l.store, k)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) allPruned(e *entry, now time.Time) bool {
	for _, at := range e.attempts {
		// Keep the entry while any attempt could still count against
		// the widest configured window.
		if now.Sub(at) <= l.widestWindow() {
			return false
		}
	}
	return true
}

func (l *Limiter) widestWindow() time.Duration {
	widest := DefaultLoginPolicy().Window
	for _, policy := range l.policies {
		if policy.Window > widest {
			widest = policy.Window
		}
	}
	return widest
}

// Stop terminates the cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

// Check records an attempt for the key and reports whether it is allowed.
// Increments are atomic under the limiter's lock so concurrent requests for
// the same key cannot slip past the threshold.
func (l *Limiter) Check(_ context.Context, clientKey string, op Operation) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	policy := l.policyFor(op)
	now := l.now()

	k := key(clientKey, op)
	e, exists := l.store[k]
	if !exists {
		e = &entry{}
		l.store[k] = e
	}

	// Hard cooldown floor from a previous trip.
	if now.Before(e.blockedUntil) {
		return blockedResult(policy, e.blockedUntil.Sub(now))
	}

	e.attempts = pruneBefore(e.attempts, now.Add(-policy.Window))

	if len(e.attempts) >= policy.Threshold {
		// Window still saturated: trip the cooldown so the block holds
		// for at least that long.
		retryAfter := e.attempts[0].Add(policy.Window).Sub(now)
		if policy.Cooldown > retryAfter {
			retryAfter = policy.Cooldown
		}
		e.blockedUntil = now.Add(retryAfter)
		return blockedResult(policy, retryAfter)
	}

	e.attempts = append(e.attempts, now)
	return Result{
		Allowed:      true,
		AttemptsUsed: len(e.attempts),
		AttemptsLeft: policy.Threshold - len(e.attempts),
	}
}

// Peek reports the current state without recording an attempt.
func (l *Limiter) Peek(_ context.Context, clientKey string, op Operation) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	policy := l.policyFor(op)
	now := l.now()

	e, exists := l.store[key(clientKey, op)]
	if !exists {
		return Result{Allowed: true, AttemptsLeft: policy.Threshold}
	}

	if now.Before(e.blockedUntil) {
		return blockedResult(policy, e.blockedUntil.Sub(now))
	}

	live := pruneBefore(e.attempts, now.Add(-policy.Window))
	if len(live) >= policy.Threshold {
		retryAfter := live[0].Add(policy.Window).Sub(now)
		if policy.Cooldown > retryAfter {
			retryAfter = policy.Cooldown
		}
		return blockedResult(policy, retryAfter)
	}

	return Result{
		Allowed:      true,
		AttemptsUsed: len(live),
		AttemptsLeft: policy.Threshold - len(live),
	}
}

// Reset clears the state for a key, called after a successful login.
func (l *Limiter) Reset(_ context.Context, clientKey string, op Operation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.store, key(clientKey, op))
}

// ResetAll clears all rate limit entries.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.store = make(map[string]*entry)
}

func pruneBefore(attempts []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(attempts) && !attempts[idx].After(cutoff) {
		idx++
	}
	return attempts[idx:]
}

func blockedResult(policy Policy, retryAfter time.Duration) Result {
	return Result{
		Allowed:       false,
		AttemptsUsed:  policy.Threshold,
		AttemptsLeft:  0,
		RetryAfter:    retryAfter,
		RetryAfterSec: int(retryAfter.Seconds()),
	}
}
