package repository

import (
	"context"
	"time"

	"github.com/pitabwire/util"
)

// SessionJanitor periodically removes expired session rows. Expired sessions
// are already rejected lazily on validation; the janitor only keeps the table
// from growing without bound.
type SessionJanitor struct {
	store    SessionStore
	interval time.Duration
	stop     chan struct{}
}

// NewSessionJanitor creates a janitor sweeping the store at the given interval.
func NewSessionJanitor(store SessionStore, interval time.Duration) *SessionJanitor {
	return &SessionJanitor{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Run blocks sweeping the store until Stop is called or the context ends.
func (j *SessionJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.store.DeleteExpired(ctx, time.Now()); err != nil {
				util.Log(ctx).WithError(err).Warn("could not sweep expired sessions")
			}
		case <-j.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop terminates a running janitor.
func (j *SessionJanitor) Stop() {
	close(j.stop)
}
