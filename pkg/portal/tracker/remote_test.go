package tracker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
	"github.com/noah-isme/classroom-portal/pkg/portal/backend"
	"github.com/noah-isme/classroom-portal/pkg/portal/internal/portaltest"
	"github.com/noah-isme/classroom-portal/pkg/portal/session"
	"github.com/noah-isme/classroom-portal/pkg/portal/tracker"
)

func TestRemoteStores_AgainstBackend(t *testing.T) {
	b := portaltest.New(t)
	account := b.Account("notes@example.com", "Nia", models.RoleStudent)
	class := b.Class("Chemistry", "2025-02-01", "Atoms", "Bonds")
	b.Enroll(account, class)
	atoms, bonds := class.Modules[0].ID, class.Modules[1].ID

	client, err := backend.New(backend.Options{BaseURL: portaltest.BaseURL, HTTPClient: b.HTTPClient()})
	require.NoError(t, err)
	store := session.New(client, nil, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, account.Email, portaltest.Password))
	api := client.WithTokens(store)

	notes := tracker.NewNoteStore(tracker.NewRemoteNotes(api), tracker.Options{}, 0, zerolog.Nop())
	require.NoError(t, notes.SetIdentity(ctx, store.Identity()))
	_, ok := notes.GetNoteForModule(atoms)
	require.False(t, ok)

	require.NoError(t, notes.SaveNote(ctx, atoms, "electrons orbit the nucleus"))
	content, ok := notes.GetNoteForModule(atoms)
	require.True(t, ok)
	require.Equal(t, "electrons orbit the nucleus", content)

	_, found, err := tracker.NewRemoteNotes(api).Get(ctx, account.ID, bonds)
	require.NoError(t, err)
	require.False(t, found, "a missing note is absent, not an error")

	progress := tracker.NewProgressTracker(tracker.NewRemoteProgress(api), tracker.Options{}, zerolog.Nop())
	require.NoError(t, progress.SetIdentity(ctx, store.Identity()))
	require.NoError(t, progress.SetCompleted(ctx, atoms, true))

	fresh := tracker.NewProgressTracker(tracker.NewRemoteProgress(api), tracker.Options{}, zerolog.Nop())
	require.NoError(t, fresh.SetIdentity(ctx, store.Identity()))
	require.True(t, fresh.IsCompleted(atoms))
	require.False(t, fresh.IsCompleted(bonds))
}

func TestRemoteStores_WritesStayWithTheirIdentity(t *testing.T) {
	b := portaltest.New(t)
	first := b.Account("first@example.com", "First", models.RoleStudent)
	second := b.Account("second@example.com", "Second", models.RoleStudent)
	class := b.Class("Chemistry", "", "Atoms")
	b.Enroll(first, class)
	b.Enroll(second, class)
	atoms := class.Modules[0].ID

	client, err := backend.New(backend.Options{BaseURL: portaltest.BaseURL, HTTPClient: b.HTTPClient()})
	require.NoError(t, err)
	store := session.New(client, nil, zerolog.Nop())
	ctx := context.Background()
	notes := tracker.NewRemoteNotes(client.WithTokens(store))
	progress := tracker.NewRemoteProgress(client.WithTokens(store))

	require.NoError(t, store.Login(ctx, first.Email, portaltest.Password))
	store.Logout(ctx)
	require.NoError(t, store.Login(ctx, second.Email, portaltest.Password))

	_, err = notes.Put(ctx, first.ID, atoms, tracker.Note{ModuleID: atoms, Content: "first's draft"})
	require.True(t, errors.Is(err, apperr.Authentication))
	_, err = progress.Put(ctx, first.ID, atoms, tracker.Progress{ModuleID: atoms, Completed: true})
	require.True(t, errors.Is(err, apperr.Authentication))

	var count int64
	require.NoError(t, b.DB.Model(&models.Note{}).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, b.DB.Model(&models.ModuleProgress{}).Count(&count).Error)
	require.Zero(t, count)

	_, err = notes.Put(ctx, second.ID, atoms, tracker.Note{ModuleID: atoms, Content: "second's draft"})
	require.NoError(t, err)
}
