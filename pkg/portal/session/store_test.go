package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-portal/internal/config"
	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
	"github.com/noah-isme/classroom-portal/pkg/portal/backend"
	"github.com/noah-isme/classroom-portal/pkg/portal/internal/portaltest"
	"github.com/noah-isme/classroom-portal/pkg/portal/session"
)

func newLiveStore(t *testing.T, b *portaltest.Backend, persister session.Persister) *session.Store {
	t.Helper()
	client, err := backend.New(backend.Options{BaseURL: portaltest.BaseURL, HTTPClient: b.HTTPClient()})
	require.NoError(t, err)
	return session.New(client, persister, zerolog.Nop())
}

func TestStore_LoginFailureLeavesIdentityUnset(t *testing.T) {
	b := portaltest.New(t)
	store := newLiveStore(t, b, nil)
	ctx := context.Background()
	require.NoError(t, store.Restore(ctx))

	err := store.Login(ctx, "bad@x.com", "wrong")
	require.Error(t, err)
	require.True(t, errors.Is(err, apperr.Authentication))
	require.NotEmpty(t, err.Error())

	snap := store.Snapshot()
	require.Nil(t, snap.Identity)
	require.False(t, snap.Authenticated())
	require.Equal(t, session.StateUnauthenticated, snap.State)
	require.NotEmpty(t, snap.Err)
}

func TestStore_SignupDoesNotSignIn(t *testing.T) {
	b := portaltest.New(t)
	store := newLiveStore(t, b, nil)
	ctx := context.Background()

	_, err := store.Signup(ctx, "new@example.com", "short", "New User")
	require.True(t, errors.Is(err, apperr.Validation))
	require.Contains(t, err.Error(), "at least 8")

	_, err = store.Signup(ctx, "new@example.com", "long-enough-pass", " ")
	require.True(t, errors.Is(err, apperr.Validation))
	require.Contains(t, err.Error(), "display name")

	message, err := store.Signup(ctx, "new@example.com", "long-enough-pass", "New User")
	require.NoError(t, err)
	require.Contains(t, message, "sign in")
	require.Nil(t, store.Identity())

	require.NoError(t, store.Login(ctx, "new@example.com", "long-enough-pass"))
	identity := store.Identity()
	require.NotNil(t, identity)
	require.Equal(t, "New User", identity.DisplayName)
	require.False(t, identity.IsAdmin())
}

func TestStore_LogoutClearsLocallyEvenWhenRemoteFails(t *testing.T) {
	b := portaltest.New(t)
	b.Account("learner@example.com", "Lea", models.RoleStudent)
	persister := &session.MemoryPersister{}
	store := newLiveStore(t, b, persister)
	ctx := context.Background()

	require.NoError(t, store.Login(ctx, "learner@example.com", portaltest.Password))
	_, ok, err := persister.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// drop the backing tables so the remote sign-out fails
	require.NoError(t, b.DB.Exec("DROP TABLE auth_sessions").Error)

	store.Logout(ctx)
	snap := store.Snapshot()
	require.Nil(t, snap.Identity)
	require.Equal(t, session.StateUnauthenticated, snap.State)
	require.Empty(t, snap.Err)
	require.Empty(t, store.AccessToken())

	_, ok, err = persister.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_RestoreFromRedis(t *testing.T) {
	b := portaltest.New(t)
	b.Account("learner@example.com", "Lea", models.RoleStudent)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	first := newLiveStore(t, b, session.NewRedisPersister(rdb, "portal:test:session", time.Hour))
	require.NoError(t, first.Login(ctx, "learner@example.com", portaltest.Password))

	second := newLiveStore(t, b, session.NewRedisPersister(rdb, "portal:test:session", time.Hour))
	require.Equal(t, session.StateUninitialized, second.Snapshot().State)
	require.False(t, second.Snapshot().CanDecideRedirect())

	require.NoError(t, second.Restore(ctx))
	snap := second.Snapshot()
	require.True(t, snap.Authenticated())
	require.True(t, snap.CanDecideRedirect())
	require.Equal(t, "learner@example.com", snap.Identity.Email)
}

func TestStore_UpdatePasswordAndReset(t *testing.T) {
	b := portaltest.New(t)
	b.Account("learner@example.com", "Lea", models.RoleStudent)
	store := newLiveStore(t, b, nil)
	ctx := context.Background()

	err := store.UpdatePassword(ctx, "whatever-long")
	require.True(t, errors.Is(err, apperr.Authentication))

	require.NoError(t, store.Login(ctx, "learner@example.com", portaltest.Password))
	require.True(t, errors.Is(store.UpdatePassword(ctx, "short"), apperr.Validation))
	require.NoError(t, store.UpdatePassword(ctx, "a-brand-new-password"))
	require.True(t, store.Snapshot().Authenticated(), "password change keeps the session")

	store.Logout(ctx)
	require.NoError(t, store.ResetPassword(ctx, "learner@example.com"))

	sent := b.Mail.Sent()
	require.NotEmpty(t, sent)
	link := sent[len(sent)-1].Link
	token := link[strings.Index(link, "token=")+len("token="):]

	require.Error(t, store.CompletePasswordReset(ctx, "garbage", "reset-password-1"))
	require.NoError(t, store.CompletePasswordReset(ctx, unescape(t, token), "reset-password-1"))
	require.NoError(t, store.Login(ctx, "learner@example.com", "reset-password-1"))

	err = store.CompletePasswordReset(ctx, unescape(t, token), "reset-password-2")
	require.True(t, errors.Is(err, apperr.Authentication), "reset links work once")
}

// scriptedBackend lets tests hold restore calls in flight.
type scriptedBackend struct {
	mu          sync.Mutex
	release     chan struct{}
	signOutErr  error
	signOuts    int
	revoked     []string
	sessionUser backend.Account

	signInStarted chan struct{}
	signInRelease chan struct{}
}

func (s *scriptedBackend) SignIn(_ context.Context, email, _ string) (backend.Session, error) {
	if s.signInStarted != nil {
		s.signInStarted <- struct{}{}
	}
	if s.signInRelease != nil {
		<-s.signInRelease
	}
	return backend.Session{AccessToken: "login-token", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour), User: backend.Account{ID: "login-user", Email: email}}, nil
}
func (s *scriptedBackend) SignUp(context.Context, string, string, string) (backend.Account, error) {
	return backend.Account{}, nil
}
func (s *scriptedBackend) GetSession(ctx context.Context, _ string) (backend.Account, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return backend.Account{}, ctx.Err()
		}
	}
	return s.sessionUser, nil
}
func (s *scriptedBackend) Refresh(context.Context, string) (backend.Session, error) {
	return backend.Session{}, apperr.New(apperr.KindAuthentication, "expired")
}
func (s *scriptedBackend) SignOut(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signOuts++
	s.revoked = append(s.revoked, token)
	return s.signOutErr
}

func (s *scriptedBackend) revokedTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}
func (s *scriptedBackend) UpdatePassword(context.Context, string, string) (backend.Account, error) {
	return backend.Account{}, nil
}
func (s *scriptedBackend) RecoverPassword(context.Context, string) error      { return nil }
func (s *scriptedBackend) ResetPassword(context.Context, string, string) error { return nil }

func TestStore_LoginSupersedesPendingRestore(t *testing.T) {
	api := &scriptedBackend{release: make(chan struct{}), sessionUser: backend.Account{ID: "restored-user"}}
	persister := &session.MemoryPersister{}
	ctx := context.Background()
	require.NoError(t, persister.Save(ctx, session.Persisted{AccessToken: "old", RefreshToken: "old-r", ExpiresAt: time.Now().Add(time.Hour)}))

	store := session.New(api, persister, zerolog.Nop())
	var states []session.State
	var statesMu sync.Mutex
	store.Subscribe(func(snap session.Snapshot) {
		statesMu.Lock()
		states = append(states, snap.State)
		statesMu.Unlock()
	})

	restored := make(chan error, 1)
	go func() { restored <- store.Restore(ctx) }()

	require.Eventually(t, func() bool { return store.Snapshot().State == session.StateLoading }, time.Second, time.Millisecond)
	require.True(t, store.Snapshot().Loading())
	require.False(t, store.Snapshot().CanDecideRedirect())

	require.NoError(t, store.Login(ctx, "learner@example.com", "password"))
	close(api.release)
	require.NoError(t, <-restored)

	identity := store.Identity()
	require.NotNil(t, identity)
	require.Equal(t, "login-user", identity.ID, "a late restore must not replace an explicit login")

	statesMu.Lock()
	defer statesMu.Unlock()
	require.Equal(t, session.StateLoading, states[0])
	require.NotContains(t, states, session.StateUnauthenticated)
}

func TestStore_AuthEvents(t *testing.T) {
	api := &scriptedBackend{signOutErr: errors.New("offline"), sessionUser: backend.Account{ID: "login-user", FullName: "Renamed"}}
	store := session.New(api, nil, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, "learner@example.com", "password"))

	store.HandleAuthEvent(ctx, backend.AuthEvent{Type: backend.EventSignedOut, AccountID: "someone-else"})
	require.True(t, store.Snapshot().Authenticated())

	store.HandleAuthEvent(ctx, backend.AuthEvent{Type: backend.EventUserUpdated, AccountID: "login-user"})
	require.Equal(t, "Renamed", store.Identity().DisplayName)

	store.HandleAuthEvent(ctx, backend.AuthEvent{Type: backend.EventPasswordRecovery, AccountID: "login-user"})
	require.True(t, store.Snapshot().PasswordRecovery)

	store.HandleAuthEvent(ctx, backend.AuthEvent{Type: backend.EventSignedOut, AccountID: "login-user"})
	require.False(t, store.Snapshot().Authenticated())
	require.Zero(t, api.signOuts, "backend-driven sign-out needs no remote call")
}

func TestStore_LoginLosingToLogoutRevokesItsSession(t *testing.T) {
	api := &scriptedBackend{signInStarted: make(chan struct{}, 1), signInRelease: make(chan struct{})}
	store := session.New(api, nil, zerolog.Nop())
	ctx := context.Background()

	result := make(chan error, 1)
	go func() { result <- store.Login(ctx, "learner@example.com", "password") }()
	<-api.signInStarted
	store.Logout(ctx)
	close(api.signInRelease)

	err := <-result
	require.True(t, errors.Is(err, apperr.Authentication))
	require.NotContains(t, err.Error(), "sign-out")
	require.Nil(t, store.Identity())
	require.Equal(t, []string{"login-token"}, api.revokedTokens())
}

func TestStore_SnapshotVersionsIncrease(t *testing.T) {
	api := &scriptedBackend{}
	store := session.New(api, nil, zerolog.Nop())
	ctx := context.Background()

	var versions []uint64
	store.Subscribe(func(snap session.Snapshot) { versions = append(versions, snap.Version) })

	require.NoError(t, store.Login(ctx, "learner@example.com", "password"))
	store.Logout(ctx)
	require.NoError(t, store.Login(ctx, "learner@example.com", "password"))

	require.Len(t, versions, 3)
	require.Less(t, versions[0], versions[1])
	require.Less(t, versions[1], versions[2])
	require.Equal(t, versions[2], store.Snapshot().Version)
}

func TestStore_RefreshRotatesAndExpires(t *testing.T) {
	b := portaltest.New(t, func(cfg *config.Config) { cfg.AccessTokenTTL = 2 * time.Second })
	account := b.Account("rotating@example.com", "Rotating", models.RoleStudent)
	store := newLiveStore(t, b, nil)
	ctx := context.Background()

	require.NoError(t, store.Login(ctx, account.Email, portaltest.Password))
	first := store.AccessToken()

	token, err := store.Token(ctx, account.ID, "")
	require.NoError(t, err)
	require.NotEqual(t, first, token, "a token inside the refresh window is rotated")

	_, err = store.Token(ctx, "another-account", "")
	require.True(t, errors.Is(err, apperr.Authentication))

	require.NoError(t, store.Refresh(ctx))
	require.NotEqual(t, token, store.AccessToken())
	require.True(t, store.Snapshot().Authenticated())

	notified := make(chan session.Snapshot, 1)
	store.Subscribe(func(snap session.Snapshot) { notified <- snap })
	require.NoError(t, b.DB.Model(&models.AuthSession{}).Where("account_id = ?", account.ID).Update("revoked_at", time.Now()).Error)

	err = store.Refresh(ctx)
	require.True(t, errors.Is(err, apperr.Authentication))
	snap := store.Snapshot()
	require.False(t, snap.Authenticated())
	require.Equal(t, session.StateUnauthenticated, snap.State)
	require.NotEmpty(t, snap.Err)

	select {
	case delivered := <-notified:
		require.False(t, delivered.Authenticated())
	case <-time.After(time.Second):
		t.Fatal("listeners were not notified of the expired session")
	}
}
