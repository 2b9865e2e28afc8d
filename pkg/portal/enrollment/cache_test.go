package enrollment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
	"github.com/noah-isme/classroom-portal/pkg/portal/backend"
	"github.com/noah-isme/classroom-portal/pkg/portal/enrollment"
	"github.com/noah-isme/classroom-portal/pkg/portal/internal/portaltest"
	"github.com/noah-isme/classroom-portal/pkg/portal/session"
)

type fakeBackend struct {
	mu          sync.Mutex
	enrollments []backend.Enrollment
	catalog     map[string]backend.Class
	listErr     error
	enrollCalls int
	gate        chan struct{}
}

func (f *fakeBackend) ListEnrollments(ctx context.Context) ([]backend.Enrollment, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]backend.Enrollment(nil), f.enrollments...), nil
}

func (f *fakeBackend) Enroll(_ context.Context, classID string) (backend.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrollCalls++
	class, ok := f.catalog[classID]
	if !ok {
		return backend.Enrollment{}, apperr.New(apperr.KindNotFound, "class not found")
	}
	enrollment := backend.Enrollment{ClassID: classID, Status: "active", Class: class}
	// a lax backend that records duplicates
	f.enrollments = append(f.enrollments, enrollment)
	return enrollment, nil
}

func class(id, title, start string, orders ...int) backend.Class {
	c := backend.Class{ID: id, Title: title}
	if start != "" {
		c.Schedule = &backend.Schedule{StartDate: start}
	}
	for _, order := range orders {
		c.Modules = append(c.Modules, backend.Module{ID: id + "-m" + string(rune('0'+order)), ClassID: id, Order: order})
	}
	return c
}

var student = &session.Identity{ID: "u1", DisplayName: "Student"}

func TestCache_SortsAndDedupes(t *testing.T) {
	api := &fakeBackend{enrollments: []backend.Enrollment{
		{ClassID: "late", Status: "active", Class: class("late", "Late", "2025-09-01", 2, 1)},
		{ClassID: "none", Status: "active", Class: class("none", "Unscheduled", "")},
		{ClassID: "early", Status: "active", Class: class("early", "Early", "2025-01-15")},
		{ClassID: "late", Status: "active", Class: class("late", "Late", "2025-09-01", 2, 1)},
		{ClassID: "gone", Status: "inactive", Class: class("gone", "Gone", "2025-01-01")},
	}}
	cache := enrollment.New(api, enrollment.Options{}, zerolog.Nop())

	require.NoError(t, cache.SetIdentity(context.Background(), student))
	classes := cache.Classes()
	require.Len(t, classes, 3)
	require.Equal(t, []string{"early", "late", "none"}, []string{classes[0].ID, classes[1].ID, classes[2].ID})
	require.Equal(t, 1, classes[1].Modules[0].Order)

	descending := enrollment.New(api, enrollment.Options{Descending: true}, zerolog.Nop())
	require.NoError(t, descending.SetIdentity(context.Background(), student))
	require.Equal(t, "late", descending.Classes()[0].ID)
	require.Equal(t, "none", descending.Classes()[2].ID)
}

func TestCache_FetchErrorPreservesContents(t *testing.T) {
	api := &fakeBackend{enrollments: []backend.Enrollment{{ClassID: "c1", Status: "active", Class: class("c1", "One", "")}}}
	cache := enrollment.New(api, enrollment.Options{}, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, cache.SetIdentity(ctx, student))

	api.listErr = apperr.New(apperr.KindNetwork, "unable to reach the backend")
	err := cache.Refresh(ctx)
	require.True(t, errors.Is(err, apperr.Network))

	require.Len(t, cache.Classes(), 1)
	snap := cache.Snapshot()
	require.Equal(t, "unable to reach the backend", snap.Err)
	require.False(t, snap.Loading)
}

func TestCache_EnrollTwiceKeepsOneEntry(t *testing.T) {
	api := &fakeBackend{catalog: map[string]backend.Class{"c1": class("c1", "One", "", 1)}}
	cache := enrollment.New(api, enrollment.Options{}, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, cache.SetIdentity(ctx, student))

	require.NoError(t, cache.Enroll(ctx, "c1"))
	require.NoError(t, cache.Enroll(ctx, "c1"))
	require.Len(t, cache.Classes(), 1)
	require.Equal(t, 1, api.enrollCalls, "cached classes are not re-enrolled")

	// even when the backend already holds duplicate rows
	api.enrollments = append(api.enrollments, api.enrollments...)
	require.NoError(t, cache.Refresh(ctx))
	require.Len(t, cache.Classes(), 1)

	_, ok := cache.Module("c1", "c1-m1")
	require.True(t, ok)
}

func TestCache_EnrollFallsBackToReturnedClass(t *testing.T) {
	api := &fakeBackend{catalog: map[string]backend.Class{"c2": class("c2", "Two", "")}}
	cache := enrollment.New(api, enrollment.Options{}, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, cache.SetIdentity(ctx, student))

	api.listErr = errors.New("flaky")
	require.NoError(t, cache.Enroll(ctx, "c2"))
	_, ok := cache.Class("c2")
	require.True(t, ok)
}

func TestCache_IdentitySwapDiscardsStaleFetch(t *testing.T) {
	api := &fakeBackend{enrollments: []backend.Enrollment{{ClassID: "c1", Status: "active", Class: class("c1", "One", "")}}, gate: make(chan struct{})}
	cache := enrollment.New(api, enrollment.Options{}, zerolog.Nop())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- cache.SetIdentity(ctx, student) }()
	require.Eventually(t, func() bool { return cache.Snapshot().Loading }, time.Second, time.Millisecond)

	require.NoError(t, cache.SetIdentity(ctx, nil))
	close(api.gate)
	require.NoError(t, <-done)

	require.Empty(t, cache.Classes())
	require.Empty(t, cache.Snapshot().IdentityID)
}

func TestCache_AgainstBackend(t *testing.T) {
	b := portaltest.New(t)
	account := b.Account("learner@example.com", "Lea", models.RoleStudent)
	spring := b.Class("Spring Biology", "2025-04-01", "Cells", "Genetics")
	b.Class("Winter Art", "2025-01-10", "Color")

	client, err := backend.New(backend.Options{BaseURL: portaltest.BaseURL, HTTPClient: b.HTTPClient()})
	require.NoError(t, err)
	store := session.New(client, nil, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, account.Email, portaltest.Password))

	b.Enroll(account, spring)
	cache := enrollment.New(client.WithTokens(store), enrollment.Options{}, zerolog.Nop())
	require.NoError(t, cache.SetIdentity(ctx, store.Identity()))
	require.Len(t, cache.Classes(), 1)

	var art models.Class
	require.NoError(t, b.DB.Where("title = ?", "Winter Art").First(&art).Error)
	require.NoError(t, cache.Enroll(ctx, art.ID))
	require.NoError(t, cache.Enroll(ctx, art.ID))

	classes := cache.Classes()
	require.Len(t, classes, 2)
	require.Equal(t, "Winter Art", classes[0].Title)
	require.Equal(t, "Cells", classes[1].Modules[0].Title)

	require.True(t, errors.Is(cache.Enroll(ctx, "missing-class"), apperr.NotFound))
}
