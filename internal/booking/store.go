package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore keeps booking sessions between updates.
// Get returns nil without error when the session is absent or expired.
type SessionStore interface {
	Get(ctx context.Context, masterID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, masterID int64) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	sessions map[int64]*Session
	mu       sync.RWMutex
	timeout  time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore(timeout time.Duration) *MemoryStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &MemoryStore{
		sessions: make(map[int64]*Session),
		timeout:  timeout,
		now:      time.Now,
	}
}

func (ms *MemoryStore) Get(_ context.Context, masterID int64) (*Session, error) {
	ms.mu.RLock()
	s, ok := ms.sessions[masterID]
	ms.mu.RUnlock()
	if !ok || s.IsExpired(ms.now(), ms.timeout) {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (ms *MemoryStore) Save(_ context.Context, s *Session) error {
	cp := *s
	ms.mu.Lock()
	ms.sessions[s.MasterID] = &cp
	ms.mu.Unlock()
	return nil
}

func (ms *MemoryStore) Delete(_ context.Context, masterID int64) error {
	ms.mu.Lock()
	delete(ms.sessions, masterID)
	ms.mu.Unlock()
	return nil
}

// Cleanup removes expired sessions.
func (ms *MemoryStore) Cleanup() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	removed := 0
	now := ms.now()
	for id, s := range ms.sessions {
		if s.IsExpired(now, ms.timeout) {
			delete(ms.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired included.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.sessions)
}

// RunJanitor calls Cleanup every interval until ctx is done.
func (ms *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ms.Cleanup(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}

// RedisStore keeps sessions as JSON with a sliding TTL.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
	prefix  string
}

func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &RedisStore{client: client, timeout: timeout, prefix: "carservice:booking:session:"}
}

func (rs *RedisStore) key(masterID int64) string {
	return rs.prefix + strconv.FormatInt(masterID, 10)
}

func (rs *RedisStore) Get(ctx context.Context, masterID int64) (*Session, error) {
	data, err := rs.client.Get(ctx, rs.key(masterID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (rs *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := rs.client.Set(ctx, rs.key(s.MasterID), data, rs.timeout).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (rs *RedisStore) Delete(ctx context.Context, masterID int64) error {
	if err := rs.client.Del(ctx, rs.key(masterID)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}
