// Package session holds the portal's current identity and its credentials.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
	"github.com/noah-isme/classroom-portal/pkg/portal/backend"
)

// State is the lifecycle phase of the session.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "uninitialized"
	}
}

// Identity is the signed-in user.
type Identity struct {
	ID          string
	DisplayName string
	Email       string
	AvatarURL   string
	Role        string
}

// IsAdmin reports the role granted by the backend. It only selects views;
// the backend enforces admin access on every privileged call.
func (i Identity) IsAdmin() bool {
	return i.Role == "admin"
}

func identityFrom(account backend.Account) *Identity {
	return &Identity{
		ID:          account.ID,
		DisplayName: account.FullName,
		Email:       account.Email,
		AvatarURL:   account.AvatarURL,
		Role:        account.Role,
	}
}

// Snapshot is a consistent read of the store.
type Snapshot struct {
	State    State
	Identity *Identity
	Err      string
	// PasswordRecovery is set when the backend reports a pending password reset.
	PasswordRecovery bool
	// Version increases with every change. Listeners may run concurrently, so
	// a snapshot older than one already handled must be ignored.
	Version uint64
}

// Loading reports whether the session has not settled yet.
func (s Snapshot) Loading() bool {
	return s.State == StateUninitialized || s.State == StateLoading
}

// Authenticated reports whether an identity is active.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Identity != nil
}

// CanDecideRedirect reports whether the state is stable enough for routing decisions.
func (s Snapshot) CanDecideRedirect() bool {
	return s.State == StateAuthenticated || s.State == StateUnauthenticated
}

// AuthBackend is the slice of the backend API the store depends on.
type AuthBackend interface {
	SignIn(ctx context.Context, email, password string) (backend.Session, error)
	SignUp(ctx context.Context, email, password, fullName string) (backend.Account, error)
	GetSession(ctx context.Context, accessToken string) (backend.Account, error)
	Refresh(ctx context.Context, refreshToken string) (backend.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	UpdatePassword(ctx context.Context, accessToken, password string) (backend.Account, error)
	RecoverPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
}

// Listener receives a snapshot after every change.
type Listener func(Snapshot)

// Store is the session store. The zero value is not usable; call New.
type Store struct {
	api       AuthBackend
	persister Persister
	validate  *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time

	mu               sync.Mutex
	state            State
	identity         *Identity
	tokens           Persisted
	err              string
	passwordRecovery bool
	// epoch advances on every explicit sign-in or sign-out; restores started
	// under an older epoch are discarded.
	epoch     uint64
	version   uint64
	listeners map[int]Listener
	nextID    int

	// refreshMu serialises rotations so each refresh token is spent once.
	refreshMu sync.Mutex
}

// refreshSkew is how long before expiry an access token is rotated.
const refreshSkew = 30 * time.Second

// sessionExpired is recorded when the backend refuses to rotate the session.
const sessionExpired = "your session has expired, please sign in again"

// New constructs a store. A nil persister keeps the session in memory.
func New(api AuthBackend, persister Persister, logger zerolog.Logger) *Store {
	if persister == nil {
		persister = &MemoryPersister{}
	}
	return &Store{
		api:       api,
		persister: persister,
		validate:  validator.New(),
		logger:    logger.With().Str("component", "session_store").Logger(),
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{State: s.state, Err: s.err, PasswordRecovery: s.passwordRecovery, Version: s.version}
	if s.identity != nil {
		copied := *s.identity
		snap.Identity = &copied
	}
	return snap
}

// Identity returns the active identity, or nil.
func (s *Store) Identity() *Identity {
	return s.Snapshot().Identity
}

// AccessToken implements backend.TokenSource.
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return ""
	}
	return s.tokens.AccessToken
}

// Token implements backend.Refresher. It fails when no identity is active or
// when accountID is set and another identity is active.
func (s *Store) Token(ctx context.Context, accountID, rejected string) (string, error) {
	tokens, _, err := s.credentials(accountID)
	if err != nil {
		return "", err
	}
	if tokens.AccessToken != rejected && !s.expiring(tokens) {
		return tokens.AccessToken, nil
	}
	return s.rotate(ctx, accountID, tokens.AccessToken)
}

// Refresh rotates the tokens of the active identity. When the backend refuses
// the refresh token the identity is signed out and listeners are notified.
func (s *Store) Refresh(ctx context.Context) error {
	tokens, _, err := s.credentials("")
	if err != nil {
		return err
	}
	_, err = s.rotate(ctx, "", tokens.AccessToken)
	return err
}

// credentials returns the tokens of the active identity and the epoch they belong to.
func (s *Store) credentials(accountID string) (Persisted, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return Persisted{}, 0, apperr.New(apperr.KindAuthentication, "not signed in")
	}
	if accountID != "" && s.identity.ID != accountID {
		return Persisted{}, 0, apperr.New(apperr.KindAuthentication, "the signed-in account changed")
	}
	return s.tokens, s.epoch, nil
}

func (s *Store) expiring(tokens Persisted) bool {
	return !tokens.ExpiresAt.IsZero() && tokens.Expired(s.now(), refreshSkew)
}

// rotate exchanges the refresh token for a new pair unless the access token
// already moved on from stale while waiting for another rotation.
func (s *Store) rotate(ctx context.Context, accountID, stale string) (string, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	tokens, epoch, err := s.credentials(accountID)
	if err != nil {
		return "", err
	}
	if tokens.AccessToken != stale {
		return tokens.AccessToken, nil
	}

	// a rotation the caller abandons would still spend the refresh token
	session, err := s.api.Refresh(context.WithoutCancel(ctx), tokens.RefreshToken)
	if err != nil {
		if !errors.Is(err, apperr.Authentication) {
			return "", err
		}
		s.expire(ctx, epoch)
		return "", apperr.Wrap(apperr.KindAuthentication, sessionExpired, err)
	}

	fresh := persistedFrom(session)
	s.mu.Lock()
	applied := s.epoch == epoch && s.identity != nil && s.identity.ID == session.User.ID
	if applied {
		s.tokens = fresh
	}
	s.mu.Unlock()
	if !applied {
		s.discard(ctx, fresh, session.User.ID)
		return "", apperr.New(apperr.KindAuthentication, "the signed-in account changed")
	}

	s.save(ctx, fresh)
	s.logger.Debug().Str("account_id", session.User.ID).Msg("session refreshed")
	return fresh.AccessToken, nil
}

// expire signs out the identity of epoch after its refresh token was refused.
// It runs inside data calls, possibly ones a listener is waiting on, so the
// notification is delivered from its own goroutine.
func (s *Store) expire(ctx context.Context, epoch uint64) {
	notify := s.update(func() bool {
		if s.epoch != epoch || s.identity == nil {
			return false
		}
		s.epoch++
		s.identity = nil
		s.tokens = Persisted{}
		s.state = StateUnauthenticated
		s.err = sessionExpired
		s.passwordRecovery = false
		return true
	})
	if notify == nil {
		return
	}
	go notify()

	if err := s.persister.Clear(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear persisted session")
	}
	s.logger.Info().Msg("session expired")
}

// discard revokes a session that lost a race with another sign-in or sign-out.
// Revocation covers every session of the account, so it is skipped when that
// account is active again.
func (s *Store) discard(ctx context.Context, tokens Persisted, accountID string) {
	s.mu.Lock()
	active := s.identity != nil && s.identity.ID == accountID
	s.mu.Unlock()
	if active || tokens.AccessToken == "" {
		return
	}
	if err := s.api.SignOut(ctx, tokens.AccessToken); err != nil {
		s.logger.Warn().Err(err).Msg("failed to revoke discarded session")
	}
}

// Subscribe registers fn for change notifications and returns its cancel func.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// mutate applies fn under the lock and notifies listeners when it reports a change.
func (s *Store) mutate(fn func() bool) {
	if notify := s.update(fn); notify != nil {
		notify()
	}
}

// update applies fn under the lock. When fn reports a change it returns the
// notification to deliver, bound to the snapshot taken under the same lock.
func (s *Store) update(fn func() bool) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !fn() {
		return nil
	}
	s.version++
	snap := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if listener, ok := s.listeners[i]; ok {
			listeners = append(listeners, listener)
		}
	}
	return func() {
		for _, listener := range listeners {
			listener(snap)
		}
	}
}

// Restore resolves the persisted session, refreshing it when the access token
// has expired or is rejected. The state is loading until it resolves.
func (s *Store) Restore(ctx context.Context) error {
	var (
		epoch  uint64
		active bool
	)
	s.mutate(func() bool {
		epoch = s.epoch
		if s.state == StateAuthenticated {
			active = true
			return false
		}
		s.state = StateLoading
		return true
	})
	if active {
		return nil
	}

	persisted, ok, err := s.persister.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read persisted session")
	}
	if !ok {
		s.settle(epoch, nil, Persisted{}, "")
		return nil
	}

	if !persisted.Expired(s.now(), 30*time.Second) {
		account, err := s.api.GetSession(ctx, persisted.AccessToken)
		if err == nil {
			s.settle(epoch, identityFrom(account), persisted, "")
			return nil
		}
		if !errors.Is(err, apperr.Authentication) {
			// the backend could not decide; keep the persisted session for a later restore
			s.settle(epoch, nil, Persisted{}, apperr.Message(err))
			return err
		}
	}

	session, err := s.api.Refresh(ctx, persisted.RefreshToken)
	if err != nil {
		if errors.Is(err, apperr.Authentication) {
			if clearErr := s.persister.Clear(ctx); clearErr != nil {
				s.logger.Warn().Err(clearErr).Msg("failed to clear persisted session")
			}
			s.settle(epoch, nil, Persisted{}, "")
			return nil
		}
		s.settle(epoch, nil, Persisted{}, apperr.Message(err))
		return err
	}

	tokens := persistedFrom(session)
	if s.settle(epoch, identityFrom(session.User), tokens, "") {
		s.save(ctx, tokens)
	}
	return nil
}

// settle finishes a restore unless an explicit sign-in or sign-out superseded it.
func (s *Store) settle(epoch uint64, identity *Identity, tokens Persisted, errMessage string) bool {
	applied := false
	s.mutate(func() bool {
		if s.epoch != epoch {
			return false
		}
		applied = true
		s.identity = identity
		s.tokens = tokens
		s.err = errMessage
		if identity != nil {
			s.state = StateAuthenticated
		} else {
			s.state = StateUnauthenticated
		}
		return true
	})
	return applied
}

type credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type registration struct {
	Email       string `validate:"required,email"`
	Password    string `validate:"required,min=8"`
	DisplayName string `validate:"required"`
}

type newPassword struct {
	Password string `validate:"required,min=8"`
}

// Login signs in. On failure the identity is left as it was and the error is
// also recorded in the snapshot.
func (s *Store) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if err := s.check(credentials{Email: email, Password: password}); err != nil {
		s.recordError(err)
		return err
	}

	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	session, err := s.api.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, apperr.Authentication) {
			err = apperr.Wrap(apperr.KindAuthentication, "invalid email or password", err)
		}
		s.recordError(err)
		return err
	}

	tokens := persistedFrom(session)
	superseded := false
	s.mutate(func() bool {
		if s.epoch != epoch {
			superseded = true
			return false
		}
		s.epoch++
		s.identity = identityFrom(session.User)
		s.tokens = tokens
		s.state = StateAuthenticated
		s.err = ""
		s.passwordRecovery = false
		return true
	})
	if superseded {
		s.discard(ctx, tokens, session.User.ID)
		return apperr.New(apperr.KindAuthentication, "the session changed while signing in, please try again")
	}

	s.save(ctx, tokens)
	s.logger.Info().Str("account_id", session.User.ID).Msg("signed in")
	return nil
}

// Signup registers an account without signing in. The returned message asks
// the user to continue at the login screen.
func (s *Store) Signup(ctx context.Context, email, password, displayName string) (string, error) {
	input := registration{Email: strings.TrimSpace(email), Password: password, DisplayName: strings.TrimSpace(displayName)}
	if err := s.check(input); err != nil {
		s.recordError(err)
		return "", err
	}

	if _, err := s.api.SignUp(ctx, input.Email, input.Password, input.DisplayName); err != nil {
		s.recordError(err)
		return "", err
	}
	s.recordError(nil)
	return "Account created. Please sign in to continue.", nil
}

// Logout clears the identity locally and then revokes the remote session.
// Remote failures are logged only.
func (s *Store) Logout(ctx context.Context) {
	var token string
	s.mutate(func() bool {
		token = s.tokens.AccessToken
		s.epoch++
		s.identity = nil
		s.tokens = Persisted{}
		s.state = StateUnauthenticated
		s.err = ""
		s.passwordRecovery = false
		return true
	})

	if err := s.persister.Clear(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear persisted session")
	}
	if token == "" {
		return
	}
	if err := s.api.SignOut(ctx, token); err != nil {
		s.logger.Warn().Err(err).Msg("remote sign-out failed")
	}
}

// UpdatePassword changes the password of the active identity. It does not sign out.
func (s *Store) UpdatePassword(ctx context.Context, password string) error {
	if s.AccessToken() == "" {
		err := apperr.New(apperr.KindAuthentication, "sign in to change your password")
		s.recordError(err)
		return err
	}
	if err := s.check(newPassword{Password: password}); err != nil {
		s.recordError(err)
		return err
	}
	token, err := s.Token(ctx, "", "")
	if err != nil {
		s.recordError(err)
		return err
	}

	account, err := s.api.UpdatePassword(ctx, token, password)
	if err != nil {
		s.recordError(err)
		return err
	}

	s.mutate(func() bool {
		if s.identity == nil || s.identity.ID != account.ID {
			return false
		}
		s.identity = identityFrom(account)
		s.err = ""
		s.passwordRecovery = false
		return true
	})
	return nil
}

// ResetPassword asks the backend to email a reset link.
func (s *Store) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		err = apperr.New(apperr.KindValidation, "enter a valid email address")
		s.recordError(err)
		return err
	}
	if err := s.api.RecoverPassword(ctx, email); err != nil {
		s.recordError(err)
		return err
	}
	s.recordError(nil)
	return nil
}

// CompletePasswordReset sets a new password using the token from a reset link.
func (s *Store) CompletePasswordReset(ctx context.Context, token, password string) error {
	if strings.TrimSpace(token) == "" {
		err := apperr.New(apperr.KindAuthentication, "the reset link is invalid or has expired")
		s.recordError(err)
		return err
	}
	if err := s.check(newPassword{Password: password}); err != nil {
		s.recordError(err)
		return err
	}
	if err := s.api.ResetPassword(ctx, token, password); err != nil {
		if errors.Is(err, apperr.Authentication) {
			err = apperr.Wrap(apperr.KindAuthentication, "the reset link is invalid or has expired", err)
		}
		s.recordError(err)
		return err
	}
	s.mutate(func() bool {
		s.passwordRecovery = false
		s.err = ""
		return true
	})
	return nil
}

// HandleAuthEvent applies a notification from the backend event stream.
func (s *Store) HandleAuthEvent(ctx context.Context, event backend.AuthEvent) {
	current := s.Identity()
	if current == nil || current.ID != event.AccountID {
		return
	}

	switch event.Type {
	case backend.EventSignedOut:
		s.mutate(func() bool {
			if s.identity == nil || s.identity.ID != event.AccountID {
				return false
			}
			s.epoch++
			s.identity = nil
			s.tokens = Persisted{}
			s.state = StateUnauthenticated
			return true
		})
		if err := s.persister.Clear(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear persisted session")
		}
	case backend.EventUserUpdated:
		token := s.AccessToken()
		account, err := s.api.GetSession(ctx, token)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to reload identity after update")
			return
		}
		s.mutate(func() bool {
			if s.identity == nil || s.identity.ID != account.ID {
				return false
			}
			s.identity = identityFrom(account)
			return true
		})
	case backend.EventPasswordRecovery:
		s.mutate(func() bool {
			s.passwordRecovery = true
			return true
		})
	}
}

func (s *Store) recordError(err error) {
	message := apperr.Message(err)
	s.mutate(func() bool {
		if s.err == message {
			return false
		}
		s.err = message
		return true
	})
}

func (s *Store) save(ctx context.Context, tokens Persisted) {
	if err := s.persister.Save(ctx, tokens); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist session")
	}
}

// check validates input and converts failures into a readable validation error.
func (s *Store) check(input interface{}) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return apperr.Wrap(apperr.KindValidation, "invalid input", err)
	}

	first := fieldErrors[0]
	field := strings.ToLower(first.Field())
	if first.Field() == "DisplayName" {
		field = "display name"
	}
	var message string
	switch first.Tag() {
	case "required":
		message = fmt.Sprintf("%s is required", field)
	case "email":
		message = "enter a valid email address"
	case "min":
		message = fmt.Sprintf("%s must be at least %s characters", field, first.Param())
	default:
		message = fmt.Sprintf("%s is invalid", field)
	}
	return apperr.Wrap(apperr.KindValidation, message, err)
}

func persistedFrom(session backend.Session) Persisted {
	return Persisted{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt,
	}
}
