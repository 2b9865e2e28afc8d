package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
	"github.com/noah-isme/classroom-portal/pkg/portal/session"
	"github.com/noah-isme/classroom-portal/pkg/portal/tracker"
)

// memoryRepo is a Repository[string] whose writes can be held open.
type memoryRepo struct {
	mu      sync.Mutex
	data    map[string]map[string]string
	puts    []string
	started int
	gate    chan struct{}
	putErr  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{data: make(map[string]map[string]string)}
}

func (m *memoryRepo) Load(_ context.Context, identityID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	values := make(map[string]string)
	for key, value := range m.data[identityID] {
		values[key] = value
	}
	return values, nil
}

func (m *memoryRepo) Get(_ context.Context, identityID, moduleID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[identityID][moduleID]
	return value, ok, nil
}

func (m *memoryRepo) Put(ctx context.Context, identityID, moduleID, value string) (string, error) {
	m.mu.Lock()
	m.started++
	m.puts = append(m.puts, value)
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	if m.data[identityID] == nil {
		m.data[identityID] = make(map[string]string)
	}
	stored := value + "!"
	m.data[identityID][moduleID] = stored
	return stored, nil
}

func (m *memoryRepo) startedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

var (
	alice = &session.Identity{ID: "alice"}
	bob   = &session.Identity{ID: "bob"}
)

func TestStore_LastSetWinsOverDelayedResponses(t *testing.T) {
	repo := newMemoryRepo()
	repo.gate = make(chan struct{})
	store := tracker.NewStore[string](repo, tracker.Options{}, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.SetIdentity(ctx, alice))

	errs := make(chan error, 3)
	set := func(value string) {
		go func() { errs <- store.Set(ctx, "m1", value) }()
		require.Eventually(t, func() bool {
			got, _ := store.Get("m1")
			return got == value
		}, time.Second, time.Millisecond)
	}

	set("v1")
	require.Eventually(t, func() bool { return repo.startedCount() == 1 }, time.Second, time.Millisecond)
	set("v2")
	set("v3")

	close(repo.gate)
	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}

	got, ok := store.Get("m1")
	require.True(t, ok)
	require.Equal(t, "v3!", got)
	require.Equal(t, []string{"v1", "v3"}, repo.puts, "superseded writes are skipped")

	stored, _, err := repo.Get(ctx, "alice", "m1")
	require.NoError(t, err)
	require.Equal(t, "v3!", stored)
}

func TestStore_SetIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	store := tracker.NewStore[string](repo, tracker.Options{}, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.SetIdentity(ctx, alice))

	require.NoError(t, store.Set(ctx, "m1", "same"))
	require.NoError(t, store.Set(ctx, "m1", "same"))

	got, ok := store.Get("m1")
	require.True(t, ok)
	require.Equal(t, "same!", got)
	require.Len(t, store.All(), 1)
}

func TestStore_GetAbsentIsNotAnError(t *testing.T) {
	store := tracker.NewStore[string](newMemoryRepo(), tracker.Options{}, zerolog.Nop())
	require.NoError(t, store.SetIdentity(context.Background(), alice))

	_, ok := store.Get("unknown")
	require.False(t, ok)
	require.Empty(t, store.Snapshot().Err)
}

func TestStore_FailureKeepsOptimisticValueByDefault(t *testing.T) {
	repo := newMemoryRepo()
	repo.data["alice"] = map[string]string{"m1": "saved"}
	store := tracker.NewStore[string](repo, tracker.Options{}, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.SetIdentity(ctx, alice))

	repo.putErr = apperr.New(apperr.KindNetwork, "unable to reach the backend")
	err := store.Set(ctx, "m1", "draft")
	require.True(t, errors.Is(err, apperr.Network))

	got, _ := store.Get("m1")
	require.Equal(t, "draft", got)
	require.Equal(t, "unable to reach the backend", store.Snapshot().Err)
}

func TestStore_RollbackOnError(t *testing.T) {
	repo := newMemoryRepo()
	repo.data["alice"] = map[string]string{"m1": "saved"}
	store := tracker.NewStore[string](repo, tracker.Options{RollbackOnError: true}, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.SetIdentity(ctx, alice))

	repo.putErr = errors.New("disk full")
	require.Error(t, store.Set(ctx, "m1", "draft"))
	require.Error(t, store.Set(ctx, "m2", "fresh"))

	got, _ := store.Get("m1")
	require.Equal(t, "saved", got)
	_, ok := store.Get("m2")
	require.False(t, ok, "a value never confirmed is removed")
	require.Contains(t, store.Snapshot().Err, "disk full")
}

func TestStore_IdentitySwapDropsInFlightWrite(t *testing.T) {
	repo := newMemoryRepo()
	repo.gate = make(chan struct{})
	repo.data["bob"] = map[string]string{"m9": "bob's"}
	store := tracker.NewStore[string](repo, tracker.Options{}, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.SetIdentity(ctx, alice))

	done := make(chan error, 1)
	go func() { done <- store.Set(ctx, "m1", "alice's") }()
	require.Eventually(t, func() bool { return repo.startedCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, store.SetIdentity(ctx, bob))
	close(repo.gate)
	require.NoError(t, <-done)

	_, ok := store.Get("m1")
	require.False(t, ok)
	got, ok := store.Get("m9")
	require.True(t, ok)
	require.Equal(t, "bob's", got)
	require.Equal(t, "bob", store.Snapshot().IdentityID)
}

func TestStore_SetWithoutIdentity(t *testing.T) {
	store := tracker.NewStore[string](newMemoryRepo(), tracker.Options{}, zerolog.Nop())
	err := store.Set(context.Background(), "m1", "x")
	require.True(t, errors.Is(err, apperr.Authentication))

	require.NoError(t, store.SetIdentity(context.Background(), nil))
	require.Empty(t, store.All())
}

func TestStore_LoadKeepsPendingWrite(t *testing.T) {
	repo := newMemoryRepo()
	repo.data["alice"] = map[string]string{"m1": "old"}
	store := tracker.NewStore[string](repo, tracker.Options{}, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.SetIdentity(ctx, alice))

	gate := make(chan struct{})
	repo.mu.Lock()
	repo.gate = gate
	repo.mu.Unlock()
	done := make(chan error, 1)
	go func() { done <- store.Set(ctx, "m1", "new") }()
	require.Eventually(t, func() bool { return repo.startedCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, store.Load(ctx))
	got, _ := store.Get("m1")
	require.Equal(t, "new", got, "a reload does not clobber a pending write")

	close(gate)
	require.NoError(t, <-done)
	got, _ = store.Get("m1")
	require.Equal(t, "new!", got)
}
