package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"carservice/internal/booking"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, masterID int64) (*booking.Session, error) {
	args := m.Called(ctx, masterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Session), args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, s *booking.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockStore) Delete(ctx context.Context, masterID int64) error {
	args := m.Called(ctx, masterID)
	return args.Error(0)
}

func TestFailoverSessionStore(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverSessionStore(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		s := &booking.Session{MasterID: 1}
		primary.On("Get", ctx, int64(1)).Return(s, nil).Once()

		got, err := repo.Get(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, s, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		s := &booking.Session{MasterID: 2}
		primary.On("Get", ctx, int64(2)).Return(nil, errors.New("fail")).Once()
		fallback.On("Get", ctx, int64(2)).Return(s, nil).Once()

		got, err := repo.Get(ctx, 2)
		assert.NoError(t, err)
		assert.Equal(t, s, got)
		assert.True(t, repo.Degraded())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("DegradedSkipsPrimary", func(t *testing.T) {
		s := &booking.Session{MasterID: 3}
		fallback.On("Save", ctx, s).Return(nil).Once()

		assert.NoError(t, repo.Save(ctx, s))
		primary.AssertNotCalled(t, "Save", ctx, s)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		s := &booking.Session{MasterID: 4}
		primary.On("Get", ctx, int64(4)).Return(s, nil).Once()

		got, err := repo.Get(ctx, 4)
		assert.NoError(t, err)
		assert.Equal(t, s, got)
		assert.False(t, repo.Degraded())
		primary.AssertExpectations(t)
	})

	t.Run("DeleteHitsBothStores", func(t *testing.T) {
		fallback.On("Delete", ctx, int64(5)).Return(nil).Once()
		primary.On("Delete", ctx, int64(5)).Return(nil).Once()

		assert.NoError(t, repo.Delete(ctx, 5))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}

func TestFailoverWithMemoryFallback(t *testing.T) {
	primary := new(mockStore)
	fallback := booking.NewMemoryStore(time.Minute)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverSessionStore(primary, fallback, &logger)
	ctx := context.Background()

	s := booking.NewSession(7, 8, time.Now())
	primary.On("Save", ctx, s).Return(errors.New("connection refused")).Once()
	assert.NoError(t, repo.Save(ctx, s))

	got, err := repo.Get(ctx, 7)
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.Equal(t, int64(8), got.ClientID)
	}
	primary.AssertExpectations(t)
}

// switchableStore is a memory store that can be taken offline.
type switchableStore struct {
	*booking.MemoryStore
	down bool
}

var errOffline = errors.New("dial tcp: connection refused")

func (s *switchableStore) Get(ctx context.Context, masterID int64) (*booking.Session, error) {
	if s.down {
		return nil, errOffline
	}
	return s.MemoryStore.Get(ctx, masterID)
}

func (s *switchableStore) Save(ctx context.Context, sess *booking.Session) error {
	if s.down {
		return errOffline
	}
	return s.MemoryStore.Save(ctx, sess)
}

func (s *switchableStore) Delete(ctx context.Context, masterID int64) error {
	if s.down {
		return errOffline
	}
	return s.MemoryStore.Delete(ctx, masterID)
}

func newSwitchableRepo() (*FailoverSessionStore, *switchableStore, *booking.MemoryStore) {
	primary := &switchableStore{MemoryStore: booking.NewMemoryStore(time.Hour)}
	fallback := booking.NewMemoryStore(time.Hour)
	logger := zerolog.New(io.Discard)
	return NewFailoverSessionStore(primary, fallback, &logger), primary, fallback
}

func ageRecheck(repo *FailoverSessionStore) {
	repo.mu.Lock()
	repo.lastCheck = time.Now().Add(-2 * recheckInterval)
	repo.mu.Unlock()
}

func TestFailoverDeleteWhileDegradedStaysDeleted(t *testing.T) {
	repo, primary, _ := newSwitchableRepo()
	ctx := context.Background()

	s := booking.NewSession(1, 2, time.Now())
	s.State = booking.StateChoosingDuration
	assert.NoError(t, repo.Save(ctx, s))

	primary.down = true
	_, err := repo.Get(ctx, 1)
	assert.NoError(t, err)
	assert.True(t, repo.Degraded())

	assert.NoError(t, repo.Delete(ctx, 1))

	primary.down = false
	ageRecheck(repo)

	got, err := repo.Get(ctx, 1)
	assert.NoError(t, err)
	assert.Nil(t, got)

	// the tombstone was replayed, so primary no longer holds the session
	stale, err := primary.MemoryStore.Get(ctx, 1)
	assert.NoError(t, err)
	assert.Nil(t, stale)
	assert.False(t, repo.Degraded())

	got, err = repo.Get(ctx, 1)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestFailoverDeleteReachesPrimaryBeforeRecheck(t *testing.T) {
	repo, primary, _ := newSwitchableRepo()
	ctx := context.Background()

	assert.NoError(t, repo.Save(ctx, booking.NewSession(1, 2, time.Now())))
	primary.down = true
	_, _ = repo.Get(ctx, 1)
	primary.down = false

	assert.NoError(t, repo.Delete(ctx, 1))

	stale, err := primary.MemoryStore.Get(ctx, 1)
	assert.NoError(t, err)
	assert.Nil(t, stale)
}

func TestFailoverSaveWhileDegradedWinsAfterRecovery(t *testing.T) {
	repo, primary, fallback := newSwitchableRepo()
	ctx := context.Background()

	s := booking.NewSession(1, 2, time.Now())
	s.State = booking.StateChoosingDay
	assert.NoError(t, repo.Save(ctx, s))

	primary.down = true
	newer := booking.NewSession(1, 2, time.Now())
	newer.State = booking.StateChoosingDuration
	assert.NoError(t, repo.Save(ctx, newer))

	primary.down = false
	ageRecheck(repo)

	got, err := repo.Get(ctx, 1)
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.Equal(t, booking.StateChoosingDuration, got.State)
	}

	synced, err := primary.MemoryStore.Get(ctx, 1)
	assert.NoError(t, err)
	if assert.NotNil(t, synced) {
		assert.Equal(t, booking.StateChoosingDuration, synced.State)
	}
	local, err := fallback.Get(ctx, 1)
	assert.NoError(t, err)
	assert.Nil(t, local)
}

func TestFailoverPendingServedFromFallbackWhilePrimaryDown(t *testing.T) {
	repo, primary, _ := newSwitchableRepo()
	ctx := context.Background()

	old := booking.NewSession(1, 2, time.Now())
	old.State = booking.StateChoosingDay
	assert.NoError(t, repo.Save(ctx, old))

	primary.down = true
	assert.NoError(t, repo.Delete(ctx, 1))
	ageRecheck(repo)

	got, err := repo.Get(ctx, 1)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.True(t, repo.isPending(1))
}
