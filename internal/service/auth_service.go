package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/internal/observability"
	"github.com/noah-isme/classroom-portal/internal/repository"
)

var (
	// ErrEmailTaken indicates another account already uses the email address.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials indicates the email/password pair did not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken indicates a refresh or reset token is malformed, expired or revoked.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account not found")
)

const (
	tokenPurposeRefresh = "refresh"
	tokenPurposeReset   = "reset"
)

// TokenSettings configures token signing and lifetimes.
type TokenSettings struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTTL      time.Duration
	PublicURL     string
}

// AccessClaims are carried by access tokens and read by the JWT middleware.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type purposeClaims struct {
	Purpose     string `json:"purpose"`
	Fingerprint string `json:"fpr,omitempty"`
	jwt.RegisteredClaims
}

// AuthService implements account authentication and session management.
type AuthService interface {
	Signup(ctx context.Context, req dto.SignupRequest) (dto.AccountResponse, error)
	Login(ctx context.Context, req dto.LoginRequest) (dto.SessionResponse, error)
	Refresh(ctx context.Context, req dto.RefreshRequest) (dto.SessionResponse, error)
	Session(ctx context.Context, accountID string) (dto.AccountResponse, error)
	Logout(ctx context.Context, accountID string) error
	UpdatePassword(ctx context.Context, accountID string, req dto.PasswordUpdateRequest) (dto.AccountResponse, error)
	Recover(ctx context.Context, req dto.RecoverRequest) error
	Reset(ctx context.Context, req dto.ResetRequest) error
	Events(accountID string) (<-chan dto.AuthEvent, func())
	SendCredentialSetup(ctx context.Context, account models.Account) error
}

type authService struct {
	accounts  repository.AccountRepository
	notifier  Notifier
	events    AuthEventHub
	settings  TokenSettings
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewAuthService constructs the authentication service.
func NewAuthService(accounts repository.AccountRepository, notifier Notifier, events AuthEventHub, settings TokenSettings, validate *validator.Validate, logger zerolog.Logger) AuthService {
	if settings.AccessTTL <= 0 {
		settings.AccessTTL = time.Hour
	}
	if settings.RefreshTTL <= 0 {
		settings.RefreshTTL = 30 * 24 * time.Hour
	}
	if settings.ResetTTL <= 0 {
		settings.ResetTTL = 30 * time.Minute
	}

	return &authService{
		accounts:  accounts,
		notifier:  notifier,
		events:    events,
		settings:  settings,
		validator: validate,
		logger:    logger.With().Str("component", "auth_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/classroom-portal/internal/service/auth"),
		now:       time.Now,
	}
}

func (s *authService) Signup(ctx context.Context, req dto.SignupRequest) (dto.AccountResponse, error) {
	req.Email = models.NormalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		return dto.AccountResponse{}, err
	}

	if _, err := s.accounts.GetByEmail(ctx, req.Email); err == nil {
		return dto.AccountResponse{}, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.AccountResponse{}, err
	}

	account := models.Account{
		Email:    req.Email,
		FullName: req.FullName,
		Role:     models.RoleStudent,
	}
	if err := account.SetPassword(req.Password); err != nil {
		return dto.AccountResponse{}, err
	}
	if err := s.accounts.Create(ctx, &account); err != nil {
		return dto.AccountResponse{}, err
	}

	s.logger.Info().Str("account_id", account.ID).Msg("account registered")
	return dto.NewAccountResponse(account), nil
}

func (s *authService) Login(ctx context.Context, req dto.LoginRequest) (dto.SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "auth.login")
	defer span.End()

	req.Email = models.NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return dto.SessionResponse{}, err
	}

	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.AuthAttempts().WithLabelValues("unknown_account").Inc()
			return dto.SessionResponse{}, ErrInvalidCredentials
		}
		span.RecordError(err)
		return dto.SessionResponse{}, err
	}
	if !account.CheckPassword(req.Password) {
		observability.AuthAttempts().WithLabelValues("bad_password").Inc()
		return dto.SessionResponse{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	account.LastSignInAt = &now
	if err := s.accounts.Update(ctx, &account); err != nil {
		s.logger.Warn().Err(err).Str("account_id", account.ID).Msg("failed to record sign-in time")
	}

	span.SetAttributes(attribute.String("auth.account_id", account.ID))
	session, err := s.issueSession(ctx, account)
	if err != nil {
		span.RecordError(err)
		return dto.SessionResponse{}, err
	}

	observability.AuthAttempts().WithLabelValues("success").Inc()
	s.publish(ctx, dto.AuthEventSignedIn, account.ID)
	return session, nil
}

// Refresh rotates the refresh token: the presented session is revoked and a new one issued.
func (s *authService) Refresh(ctx context.Context, req dto.RefreshRequest) (dto.SessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SessionResponse{}, err
	}

	claims, err := s.parsePurposeToken(req.RefreshToken, tokenPurposeRefresh)
	if err != nil {
		return dto.SessionResponse{}, ErrInvalidToken
	}

	stored, err := s.accounts.GetSession(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SessionResponse{}, ErrInvalidToken
		}
		return dto.SessionResponse{}, err
	}
	if !stored.Active(s.now()) || stored.AccountID != claims.Subject {
		return dto.SessionResponse{}, ErrInvalidToken
	}

	account, err := s.accounts.GetByID(ctx, stored.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SessionResponse{}, ErrInvalidToken
		}
		return dto.SessionResponse{}, err
	}

	if err := s.accounts.RevokeSession(ctx, stored.ID, s.now().UTC()); err != nil {
		return dto.SessionResponse{}, err
	}
	return s.issueSession(ctx, account)
}

func (s *authService) Session(ctx context.Context, accountID string) (dto.AccountResponse, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AccountResponse{}, ErrAccountNotFound
		}
		return dto.AccountResponse{}, err
	}
	return dto.NewAccountResponse(account), nil
}

func (s *authService) Logout(ctx context.Context, accountID string) error {
	if err := s.accounts.RevokeSessions(ctx, accountID, s.now().UTC()); err != nil {
		return err
	}
	s.publish(ctx, dto.AuthEventSignedOut, accountID)
	return nil
}

func (s *authService) UpdatePassword(ctx context.Context, accountID string, req dto.PasswordUpdateRequest) (dto.AccountResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AccountResponse{}, err
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AccountResponse{}, ErrAccountNotFound
		}
		return dto.AccountResponse{}, err
	}
	if err := account.SetPassword(req.Password); err != nil {
		return dto.AccountResponse{}, err
	}
	if err := s.accounts.Update(ctx, &account); err != nil {
		return dto.AccountResponse{}, err
	}

	s.publish(ctx, dto.AuthEventUserUpdated, account.ID)
	return dto.NewAccountResponse(account), nil
}

// Recover sends a reset link when the account exists. Unknown emails succeed silently.
func (s *authService) Recover(ctx context.Context, req dto.RecoverRequest) error {
	req.Email = models.NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	return s.sendResetLink(ctx, account, NotificationPasswordReset)
}

func (s *authService) Reset(ctx context.Context, req dto.ResetRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	claims, err := s.parsePurposeToken(req.Token, tokenPurposeReset)
	if err != nil {
		return ErrInvalidToken
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	// The fingerprint changes with the password, so a reset link works once.
	if claims.Fingerprint != passwordFingerprint(account.PasswordHash) {
		return ErrInvalidToken
	}

	if err := account.SetPassword(req.Password); err != nil {
		return err
	}
	account.EmailConfirmed = true
	if err := s.accounts.Update(ctx, &account); err != nil {
		return err
	}
	if err := s.accounts.RevokeSessions(ctx, account.ID, s.now().UTC()); err != nil {
		return err
	}

	s.publish(ctx, dto.AuthEventSignedOut, account.ID)
	return nil
}

func (s *authService) Events(accountID string) (<-chan dto.AuthEvent, func()) {
	return s.events.Subscribe(accountID)
}

// SendCredentialSetup mails a set-password link to an account created by an administrator.
func (s *authService) SendCredentialSetup(ctx context.Context, account models.Account) error {
	return s.sendResetLink(ctx, account, NotificationCredentialSetup)
}

func (s *authService) sendResetLink(ctx context.Context, account models.Account, kind string) error {
	token, err := s.resetToken(account)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.settings.PublicURL, "/"), url.QueryEscape(token))
	notification := AccountNotification{
		Kind:      kind,
		AccountID: account.ID,
		Email:     account.Email,
		FullName:  account.FullName,
		Link:      link,
	}
	if err := s.notifier.Notify(ctx, notification); err != nil {
		return err
	}

	if kind == NotificationPasswordReset {
		s.publish(ctx, dto.AuthEventPasswordRecovery, account.ID)
	}
	return nil
}

func (s *authService) issueSession(ctx context.Context, account models.Account) (dto.SessionResponse, error) {
	now := s.now().UTC()

	stored := models.AuthSession{
		AccountID: account.ID,
		ExpiresAt: now.Add(s.settings.RefreshTTL),
	}
	if err := s.accounts.CreateSession(ctx, &stored); err != nil {
		return dto.SessionResponse{}, err
	}

	accessExpiry := now.Add(s.settings.AccessTTL)
	access := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Email: account.Email,
		Role:  account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        stored.ID,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
		},
	})
	accessToken, err := access.SignedString([]byte(s.settings.AccessSecret))
	if err != nil {
		return dto.SessionResponse{}, err
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, purposeClaims{
		Purpose: tokenPurposeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        stored.ID,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(stored.ExpiresAt),
		},
	})
	refreshToken, err := refresh.SignedString([]byte(s.settings.RefreshSecret))
	if err != nil {
		return dto.SessionResponse{}, err
	}

	return dto.SessionResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.settings.AccessTTL.Seconds()),
		ExpiresAt:    accessExpiry,
		User:         dto.NewAccountResponse(account),
	}, nil
}

func (s *authService) resetToken(account models.Account) (string, error) {
	now := s.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, purposeClaims{
		Purpose:     tokenPurposeReset,
		Fingerprint: passwordFingerprint(account.PasswordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.settings.ResetTTL)),
		},
	})
	return token.SignedString([]byte(s.settings.RefreshSecret))
}

func (s *authService) parsePurposeToken(raw, purpose string) (*purposeClaims, error) {
	claims := &purposeClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(s.settings.RefreshSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *authService) publish(ctx context.Context, eventType, accountID string) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, dto.AuthEvent{Type: eventType, AccountID: accountID, OccurredAt: s.now().UTC()})
}

func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}
