package backend_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
	"github.com/noah-isme/classroom-portal/pkg/portal/backend"
	"github.com/noah-isme/classroom-portal/pkg/portal/internal/portaltest"
)

func newClient(t *testing.T, b *portaltest.Backend) *backend.Client {
	t.Helper()
	client, err := backend.New(backend.Options{BaseURL: portaltest.BaseURL, HTTPClient: b.HTTPClient()})
	require.NoError(t, err)
	return client
}

func TestClient_SignInAndReadContent(t *testing.T) {
	b := portaltest.New(t)
	student := b.Account("learner@example.com", "Lea Learner", models.RoleStudent)
	class := b.Class("Physics", "2025-03-01", "Motion", "Energy")
	b.Resource(class.Modules[0], "Lab sheet")
	b.Enroll(student, class)

	client := newClient(t, b)
	ctx := context.Background()

	session, err := client.SignIn(ctx, "learner@example.com", portaltest.Password)
	require.NoError(t, err)
	require.NotEmpty(t, session.AccessToken)
	require.Equal(t, student.ID, session.User.ID)

	data := client.WithTokens(backend.TokenSourceFunc(func() string { return session.AccessToken }))
	enrollments, err := data.ListEnrollments(ctx)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.Equal(t, "Physics", enrollments[0].Class.Title)
	require.Len(t, enrollments[0].Class.Modules, 2)
	require.Equal(t, "Motion", enrollments[0].Class.Modules[0].Title)
	require.Len(t, enrollments[0].Class.Modules[0].Resources, 1)

	start, ok := enrollments[0].Class.StartsAt()
	require.True(t, ok)
	require.Equal(t, 2025, start.Year())
}

func TestClient_ErrorKinds(t *testing.T) {
	b := portaltest.New(t)
	b.Account("learner@example.com", "Lea Learner", models.RoleStudent)
	client := newClient(t, b)
	ctx := context.Background()

	_, err := client.SignIn(ctx, "learner@example.com", "wrong-password")
	require.Error(t, err)
	require.True(t, errors.Is(err, apperr.Authentication))
	require.NotEmpty(t, apperr.Message(err))

	_, err = client.SignUp(ctx, "not-an-email", "short", "")
	require.True(t, errors.Is(err, apperr.Validation))
	require.Contains(t, err.Error(), "email")

	_, err = client.ListEnrollments(ctx)
	require.True(t, errors.Is(err, apperr.Authentication), "data calls need a token")

	session, err := client.SignIn(ctx, "learner@example.com", portaltest.Password)
	require.NoError(t, err)
	data := client.WithTokens(backend.TokenSourceFunc(func() string { return session.AccessToken }))

	_, err = data.GetNote(ctx, "missing-module")
	require.True(t, errors.Is(err, apperr.NotFound))

	_, err = data.GetClass(ctx, "not-enrolled")
	require.True(t, errors.Is(err, apperr.NotFound))
}

type stallingTransport struct{}

func (stallingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	<-req.Context().Done()
	return nil, req.Context().Err()
}

func TestClient_TimeoutIsDistinctFromNetwork(t *testing.T) {
	client, err := backend.New(backend.Options{
		BaseURL:    portaltest.BaseURL,
		HTTPClient: &http.Client{Transport: stallingTransport{}},
		Timeout:    20 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = client.SignIn(context.Background(), "a@example.com", "whatever1")
	require.True(t, errors.Is(err, apperr.Timeout), "got %v", err)

	unreachable, err := backend.New(backend.Options{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	require.NoError(t, err)
	_, err = unreachable.SignIn(context.Background(), "a@example.com", "whatever1")
	require.True(t, errors.Is(err, apperr.Network), "got %v", err)
}

func TestClient_NotesAndProgressUpsert(t *testing.T) {
	b := portaltest.New(t)
	student := b.Account("learner@example.com", "Lea Learner", models.RoleStudent)
	class := b.Class("Chemistry", "", "Atoms")
	b.Enroll(student, class)
	moduleID := class.Modules[0].ID

	client := newClient(t, b)
	ctx := context.Background()
	session, err := client.SignIn(ctx, "learner@example.com", portaltest.Password)
	require.NoError(t, err)
	data := client.WithTokens(backend.TokenSourceFunc(func() string { return session.AccessToken }))

	_, err = data.UpsertNote(ctx, moduleID, "<p>first</p>")
	require.NoError(t, err)
	note, err := data.UpsertNote(ctx, moduleID, "<p>second</p>")
	require.NoError(t, err)
	require.Equal(t, "<p>second</p>", note.Content)

	notes, err := data.ListNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	record, err := data.UpsertProgress(ctx, moduleID, true)
	require.NoError(t, err)
	require.True(t, record.Completed)

	records, err := data.ListProgress(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestClient_WatchAuthEvents(t *testing.T) {
	b := portaltest.New(t)
	b.Account("learner@example.com", "Lea Learner", models.RoleStudent)
	baseURL := b.Serve()

	client, err := backend.New(backend.Options{BaseURL: baseURL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := client.SignIn(ctx, "learner@example.com", portaltest.Password)
	require.NoError(t, err)

	events := make(chan backend.AuthEvent, 4)
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- client.WatchAuthEvents(ctx, session.AccessToken, func(event backend.AuthEvent) {
			events <- event
		})
	}()

	// the stream subscribes asynchronously; keep updating until an event arrives
	var event backend.AuthEvent
	require.Eventually(t, func() bool {
		_, err := client.UpdatePassword(ctx, session.AccessToken, "another-long-password")
		require.NoError(t, err)
		select {
		case event = <-events:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 4*time.Second, 10*time.Millisecond)
	require.Equal(t, backend.EventUserUpdated, event.Type)
	require.Equal(t, session.User.ID, event.AccountID)

	cancel()
	require.NoError(t, <-watchDone)
}

// rotatingTokens swaps to next once the backend rejects current.
type rotatingTokens struct {
	mu      sync.Mutex
	current string
	next    string
	calls   []string
}

func (r *rotatingTokens) AccessToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *rotatingTokens) Token(_ context.Context, accountID, rejected string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, accountID+"|"+rejected)
	if rejected != "" && rejected == r.current {
		r.current = r.next
	}
	return r.current, nil
}

func TestClient_RetriesOnceWithRotatedToken(t *testing.T) {
	b := portaltest.New(t)
	student := b.Account("learner@example.com", "Lea Learner", models.RoleStudent)
	b.Enroll(student, b.Class("Physics", "", "Motion"))
	client := newClient(t, b)
	ctx := context.Background()

	session, err := client.SignIn(ctx, student.Email, portaltest.Password)
	require.NoError(t, err)

	tokens := &rotatingTokens{current: "expired-token", next: session.AccessToken}
	data := client.WithTokens(tokens)
	enrollments, err := data.ListEnrollments(backend.ForAccount(ctx, student.ID))
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.Equal(t, []string{student.ID + "|", student.ID + "|expired-token"}, tokens.calls)

	stuck := &rotatingTokens{current: "expired-token", next: "expired-token"}
	_, err = client.WithTokens(stuck).ListEnrollments(ctx)
	require.True(t, errors.Is(err, apperr.Authentication))
	require.Len(t, stuck.calls, 2, "a token that does not change is not retried")
}
