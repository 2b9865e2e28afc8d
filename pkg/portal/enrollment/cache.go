// Package enrollment caches the classes the current identity is enrolled in.
package enrollment

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
	"github.com/noah-isme/classroom-portal/pkg/portal/backend"
	"github.com/noah-isme/classroom-portal/pkg/portal/session"
)

// Backend is the slice of the backend API the cache depends on.
type Backend interface {
	ListEnrollments(ctx context.Context) ([]backend.Enrollment, error)
	Enroll(ctx context.Context, classID string) (backend.Enrollment, error)
}

// Options tunes the cache.
type Options struct {
	// Descending lists the latest-starting class first.
	Descending bool
}

// Snapshot is the consumer-facing status of the cache.
type Snapshot struct {
	IdentityID string
	Loading    bool
	Err        string
	Classes    int
}

// Cache holds enrolled classes with their modules and resources.
type Cache struct {
	api    Backend
	opts   Options
	logger zerolog.Logger

	mu        sync.RWMutex
	identity  *session.Identity
	epoch     uint64
	classes   []backend.Class
	loading   bool
	err       string
	listeners []func()
}

// New constructs an empty cache.
func New(api Backend, opts Options, logger zerolog.Logger) *Cache {
	return &Cache{
		api:    api,
		opts:   opts,
		logger: logger.With().Str("component", "enrollment_cache").Logger(),
	}
}

// OnChange registers fn to run after every content change.
func (c *Cache) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Cache) notify() {
	c.mu.RLock()
	listeners := append([]func(){}, c.listeners...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

// SetIdentity swaps the cache to identity. Nil clears it immediately; otherwise
// the contents are dropped and refetched for the new identity.
func (c *Cache) SetIdentity(ctx context.Context, identity *session.Identity) error {
	c.mu.Lock()
	c.epoch++
	c.classes = nil
	c.err = ""
	c.loading = false
	if identity == nil {
		c.identity = nil
	} else {
		copied := *identity
		c.identity = &copied
	}
	c.mu.Unlock()
	c.notify()

	if identity == nil {
		return nil
	}
	return c.Refresh(ctx)
}

// Refresh refetches enrollments. On failure the previous contents are kept
// and the error is recorded.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.identity == nil {
		c.mu.Unlock()
		return nil
	}
	epoch, identityID := c.epoch, c.identity.ID
	c.loading = true
	c.mu.Unlock()

	enrollments, err := c.api.ListEnrollments(backend.ForAccount(ctx, identityID))

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Debug().Msg("discarded enrollments fetched for a previous identity")
		return nil
	}
	c.loading = false
	if err != nil {
		c.err = apperr.Message(err)
		c.mu.Unlock()
		c.logger.Warn().Err(err).Msg("failed to refresh enrollments")
		return err
	}

	classes := make([]backend.Class, 0, len(enrollments))
	for _, enrollment := range enrollments {
		if enrollment.Status != "" && enrollment.Status != "active" {
			continue
		}
		classes = appendUnique(classes, enrollment.Class)
	}
	c.classes = c.sorted(classes)
	c.err = ""
	c.mu.Unlock()

	c.notify()
	return nil
}

// Enroll enrolls the identity in classID. Already cached classes are a no-op.
// When the refetch after enrolling fails, the class returned by the enroll call
// is added instead.
func (c *Cache) Enroll(ctx context.Context, classID string) error {
	c.mu.RLock()
	identity := c.identity
	epoch := c.epoch
	c.mu.RUnlock()

	if identity == nil {
		return apperr.New(apperr.KindAuthentication, "sign in to enroll")
	}
	if _, ok := c.Class(classID); ok {
		return nil
	}

	enrollment, err := c.api.Enroll(backend.ForAccount(ctx, identity.ID), classID)
	if err != nil {
		c.mu.Lock()
		if c.epoch == epoch {
			c.err = apperr.Message(err)
		}
		c.mu.Unlock()
		return err
	}

	if refreshErr := c.Refresh(ctx); refreshErr == nil {
		return nil
	}

	c.mu.Lock()
	if c.epoch != epoch || enrollment.Class.ID == "" {
		c.mu.Unlock()
		return nil
	}
	c.classes = c.sorted(appendUnique(append([]backend.Class(nil), c.classes...), enrollment.Class))
	c.mu.Unlock()
	c.notify()
	return nil
}

// Classes returns the cached classes in display order.
func (c *Cache) Classes() []backend.Class {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]backend.Class(nil), c.classes...)
}

// Class returns one cached class.
func (c *Cache) Class(id string) (backend.Class, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, class := range c.classes {
		if class.ID == id {
			return class, true
		}
	}
	return backend.Class{}, false
}

// Module returns one module of a cached class.
func (c *Cache) Module(classID, moduleID string) (backend.Module, bool) {
	class, ok := c.Class(classID)
	if !ok {
		return backend.Module{}, false
	}
	for _, module := range class.Modules {
		if module.ID == moduleID {
			return module, true
		}
	}
	return backend.Module{}, false
}

// Snapshot returns the loading and error state.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{Loading: c.loading, Err: c.err, Classes: len(c.classes)}
	if c.identity != nil {
		snap.IdentityID = c.identity.ID
	}
	return snap
}

func appendUnique(classes []backend.Class, class backend.Class) []backend.Class {
	for _, existing := range classes {
		if existing.ID == class.ID {
			return classes
		}
	}
	return append(classes, class)
}

// sorted orders classes by schedule start and each class's modules by order.
// Classes without a start date come last.
func (c *Cache) sorted(classes []backend.Class) []backend.Class {
	for i := range classes {
		modules := append([]backend.Module(nil), classes[i].Modules...)
		sort.SliceStable(modules, func(a, b int) bool { return modules[a].Order < modules[b].Order })
		classes[i].Modules = modules
	}

	sort.SliceStable(classes, func(a, b int) bool {
		startA, okA := classes[a].StartsAt()
		startB, okB := classes[b].StartsAt()
		switch {
		case okA != okB:
			return okA
		case !okA || startA.Equal(startB):
			return classes[a].Title < classes[b].Title
		case c.opts.Descending:
			return startA.After(startB)
		default:
			return startA.Before(startB)
		}
	})
	return classes
}
