package portal

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/pkg/portal/internal/portaltest"
)

func TestPortal_StaleSessionChangeIsIgnored(t *testing.T) {
	b := portaltest.New(t)
	account := b.Account("late@example.com", "Late", models.RoleStudent)
	class := b.Class("Art", "", "Colour")
	b.Enroll(account, class)

	p, err := New(Config{BaseURL: portaltest.BaseURL}, Dependencies{HTTPClient: b.HTTPClient()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	ctx := context.Background()

	require.NoError(t, p.Session.Login(ctx, account.Email, portaltest.Password))
	signedIn := p.Session.Snapshot()
	require.Len(t, p.Enrollments.Classes(), 1)

	p.Session.Logout(ctx)
	require.Empty(t, p.Enrollments.Classes())

	// sign-in notification delivered after the sign-out one
	p.onSession(signedIn)
	require.Empty(t, p.Enrollments.Snapshot().IdentityID)
	require.Empty(t, p.Enrollments.Classes())
	require.Empty(t, p.Notes.Snapshot().IdentityID)
	require.Empty(t, p.Progress.All())
}
