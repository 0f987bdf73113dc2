package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"carservice/internal/booking"

	"github.com/rs/zerolog"
)

const recheckInterval = time.Minute

// FailoverSessionStore serves booking sessions from primary (redis) and switches
// to fallback (memory) while primary is failing. Primary is retried once a minute.
// Sessions written or deleted while primary was unreachable are pending: fallback
// is authoritative for them until the change has been replayed on primary.
type FailoverSessionStore struct {
	primary   booking.SessionStore
	fallback  booking.SessionStore
	logger    zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
	pending   map[int64]struct{}
}

func NewFailoverSessionStore(primary, fallback booking.SessionStore, logger *zerolog.Logger) *FailoverSessionStore {
	return &FailoverSessionStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "session_failover").Logger(),
		pending:  make(map[int64]struct{}),
	}
}

// usePrimary reports whether the next call should try primary.
func (r *FailoverSessionStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) >= recheckInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverSessionStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Warn().Err(err).Msg("Session primary store failed, switching to fallback")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverSessionStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Session primary store recovered")
	}
}

func (r *FailoverSessionStore) setPending(masterID int64, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, was := r.pending[masterID]
	if on {
		r.pending[masterID] = struct{}{}
	} else {
		delete(r.pending, masterID)
	}
	return was
}

func (r *FailoverSessionStore) isPending(masterID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[masterID]
	return ok
}

func (r *FailoverSessionStore) Get(ctx context.Context, masterID int64) (*booking.Session, error) {
	if r.isPending(masterID) {
		s, err := r.fallback.Get(ctx, masterID)
		if err != nil {
			return nil, err
		}
		if r.usePrimary() {
			r.replay(ctx, masterID, s)
		}
		return s, nil
	}

	if r.usePrimary() {
		s, err := r.primary.Get(ctx, masterID)
		if err == nil {
			r.markUp()
			return s, nil
		}
		r.markDown(err)
	}
	return r.fallback.Get(ctx, masterID)
}

// replay copies the fallback state of a pending session to primary; nil means deleted.
func (r *FailoverSessionStore) replay(ctx context.Context, masterID int64, s *booking.Session) {
	var err error
	if s == nil {
		err = r.primary.Delete(ctx, masterID)
	} else {
		err = r.primary.Save(ctx, s)
	}
	if err != nil {
		r.markDown(err)
		return
	}
	r.markUp()
	r.setPending(masterID, false)
	if s != nil {
		_ = r.fallback.Delete(ctx, masterID)
	}
}

func (r *FailoverSessionStore) Save(ctx context.Context, s *booking.Session) error {
	if r.usePrimary() {
		err := r.primary.Save(ctx, s)
		if err == nil {
			r.markUp()
			if r.setPending(s.MasterID, false) {
				_ = r.fallback.Delete(ctx, s.MasterID)
			}
			return nil
		}
		r.markDown(err)
	}
	if err := r.fallback.Save(ctx, s); err != nil {
		return err
	}
	r.setPending(s.MasterID, true)
	return nil
}

// Delete always reaches for primary, even while degraded. When primary cannot be
// reached the deletion is kept as a pending tombstone and replayed on recovery.
func (r *FailoverSessionStore) Delete(ctx context.Context, masterID int64) error {
	fbErr := r.fallback.Delete(ctx, masterID)
	if err := r.primary.Delete(ctx, masterID); err != nil {
		r.markDown(err)
		r.setPending(masterID, true)
		return fbErr
	}
	r.markUp()
	r.setPending(masterID, false)
	return fbErr
}

// Degraded reports whether the fallback is currently serving.
func (r *FailoverSessionStore) Degraded() bool {
	return r.isDown.Load()
}
