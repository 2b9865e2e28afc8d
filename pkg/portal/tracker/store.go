// Package tracker keeps per-module learner state (progress and notes) for the
// current identity with optimistic, last-write-wins updates.
package tracker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
	"github.com/noah-isme/classroom-portal/pkg/portal/session"
)

// Repository persists values keyed by (identity, module).
type Repository[V any] interface {
	Load(ctx context.Context, identityID string) (map[string]V, error)
	Get(ctx context.Context, identityID, moduleID string) (V, bool, error)
	Put(ctx context.Context, identityID, moduleID string, value V) (V, error)
}

// Options tunes a Store.
type Options struct {
	// RollbackOnError restores the last confirmed value when a write fails.
	RollbackOnError bool
}

// Snapshot is the consumer-facing status of a store.
type Snapshot struct {
	IdentityID string
	Loading    bool
	Err        string
	Entries    int
}

type keyState struct {
	// seq is the tag of the latest Set for the key; acked is the latest tag
	// whose write has completed.
	seq   uint64
	acked uint64
	// writing serialises writes for the key; it holds one token while a write is in flight.
	writing chan struct{}
}

// Store mirrors one identity's values in memory and writes them through a Repository.
type Store[V any] struct {
	repo   Repository[V]
	opts   Options
	logger zerolog.Logger

	mu        sync.RWMutex
	identity  string
	epoch     uint64
	values    map[string]V
	confirmed map[string]V
	keys      map[string]*keyState
	loading   bool
	err       string
	listeners []func()
}

// NewStore constructs an empty store.
func NewStore[V any](repo Repository[V], opts Options, logger zerolog.Logger) *Store[V] {
	return &Store[V]{
		repo:      repo,
		opts:      opts,
		logger:    logger,
		values:    make(map[string]V),
		confirmed: make(map[string]V),
		keys:      make(map[string]*keyState),
	}
}

// OnChange registers fn to run after every content change.
func (s *Store[V]) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store[V]) notify() {
	s.mu.RLock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

// SetIdentity drops every value and loads those of identity. Nil leaves the store empty.
func (s *Store[V]) SetIdentity(ctx context.Context, identity *session.Identity) error {
	s.mu.Lock()
	s.epoch++
	s.identity = ""
	if identity != nil {
		s.identity = identity.ID
	}
	s.values = make(map[string]V)
	s.confirmed = make(map[string]V)
	s.keys = make(map[string]*keyState)
	s.err = ""
	s.loading = false
	s.mu.Unlock()
	s.notify()

	if identity == nil {
		return nil
	}
	return s.Load(ctx)
}

// Load refetches every value of the current identity. Values with a write
// still pending keep their optimistic content.
func (s *Store[V]) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.identity == "" {
		s.mu.Unlock()
		return nil
	}
	identity, epoch := s.identity, s.epoch
	s.loading = true
	s.mu.Unlock()

	values, err := s.repo.Load(ctx, identity)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil
	}
	s.loading = false
	if err != nil {
		s.err = apperr.Message(err)
		s.mu.Unlock()
		s.logger.Warn().Err(err).Msg("failed to load values")
		return err
	}
	for moduleID, value := range values {
		s.confirmed[moduleID] = value
		if key, ok := s.keys[moduleID]; ok && key.seq > key.acked {
			continue
		}
		s.values[moduleID] = value
	}
	s.err = ""
	s.mu.Unlock()

	s.notify()
	return nil
}

// Get returns the in-memory value for moduleID. Absence is not an error.
func (s *Store[V]) Get(moduleID string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[moduleID]
	return value, ok
}

// All returns a copy of every value keyed by module id.
func (s *Store[V]) All() map[string]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make(map[string]V, len(s.values))
	for moduleID, value := range s.values {
		copied[moduleID] = value
	}
	return copied
}

// Snapshot returns the loading and error state.
func (s *Store[V]) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{IdentityID: s.identity, Loading: s.loading, Err: s.err, Entries: len(s.values)}
}

// Set applies value immediately and writes it through. Each key has at most one
// write in flight; a write superseded by a later Set is skipped, and a response
// is applied only if it answers the latest Set of the same identity.
func (s *Store[V]) Set(ctx context.Context, moduleID string, value V) error {
	s.mu.Lock()
	if s.identity == "" {
		s.mu.Unlock()
		return apperr.New(apperr.KindAuthentication, "sign in to save your work")
	}
	key, ok := s.keys[moduleID]
	if !ok {
		key = &keyState{writing: make(chan struct{}, 1)}
		s.keys[moduleID] = key
	}
	key.seq++
	seq, epoch, identity := key.seq, s.epoch, s.identity
	s.values[moduleID] = value
	s.mu.Unlock()
	s.notify()

	select {
	case key.writing <- struct{}{}:
	case <-ctx.Done():
		return apperr.Wrap(apperr.KindTimeout, "save was interrupted", ctx.Err())
	}
	defer func() { <-key.writing }()

	if !s.current(epoch, key, seq) {
		return nil
	}

	stored, err := s.repo.Put(ctx, identity, moduleID, value)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil
	}
	if seq > key.acked {
		key.acked = seq
	}
	if err != nil {
		s.err = apperr.Message(err)
		if s.opts.RollbackOnError && key.seq == seq {
			if previous, ok := s.confirmed[moduleID]; ok {
				s.values[moduleID] = previous
			} else {
				delete(s.values, moduleID)
			}
		}
		s.mu.Unlock()
		s.logger.Warn().Err(err).Str("module_id", moduleID).Msg("failed to save value")
		s.notify()
		return err
	}

	s.confirmed[moduleID] = stored
	latest := key.seq == seq
	if latest {
		s.values[moduleID] = stored
		s.err = ""
	}
	s.mu.Unlock()

	if latest {
		s.notify()
	}
	return nil
}

func (s *Store[V]) current(epoch uint64, key *keyState, seq uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch == epoch && key.seq == seq
}
