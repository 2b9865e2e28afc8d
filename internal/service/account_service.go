package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/internal/repository"
)

// ErrCannotDeleteSelf prevents an administrator from removing their own account.
var ErrCannotDeleteSelf = errors.New("administrators cannot delete their own account")

// AccountService backs the privileged manage-users function.
type AccountService interface {
	List(ctx context.Context) ([]dto.AccountResponse, error)
	Create(ctx context.Context, req dto.ManageUserCreateRequest) (dto.AccountResponse, error)
	Delete(ctx context.Context, actorID string, req dto.ManageUserDeleteRequest) error
	EnsureAdmin(ctx context.Context, email, password string) error
}

type accountService struct {
	accounts  repository.AccountRepository
	auth      AuthService
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewAccountService constructs the account administration service.
func NewAccountService(accounts repository.AccountRepository, auth AuthService, validate *validator.Validate, logger zerolog.Logger) AccountService {
	return &accountService{
		accounts:  accounts,
		auth:      auth,
		validator: validate,
		logger:    logger.With().Str("component", "account_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/classroom-portal/internal/service/account"),
	}
}

func (s *accountService) List(ctx context.Context) ([]dto.AccountResponse, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewAccountResponseSlice(accounts), nil
}

// Create provisions an account with an unusable random password and mails a set-password link.
func (s *accountService) Create(ctx context.Context, req dto.ManageUserCreateRequest) (dto.AccountResponse, error) {
	req.Email = models.NormalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		return dto.AccountResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "accounts.create")
	defer span.End()

	if _, err := s.accounts.GetByEmail(ctx, req.Email); err == nil {
		return dto.AccountResponse{}, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		return dto.AccountResponse{}, err
	}

	placeholder, err := randomSecret(24)
	if err != nil {
		return dto.AccountResponse{}, err
	}

	account := models.Account{
		Email:          req.Email,
		FullName:       req.FullName,
		Role:           models.RoleStudent,
		EmailConfirmed: true,
	}
	if err := account.SetPassword(placeholder); err != nil {
		return dto.AccountResponse{}, err
	}
	if err := s.accounts.Create(ctx, &account); err != nil {
		span.RecordError(err)
		return dto.AccountResponse{}, err
	}
	span.SetAttributes(attribute.String("accounts.id", account.ID))

	if err := s.auth.SendCredentialSetup(ctx, account); err != nil {
		s.logger.Warn().Err(err).Str("account_id", account.ID).Msg("failed to send credential setup notification")
	}

	return dto.NewAccountResponse(account), nil
}

func (s *accountService) Delete(ctx context.Context, actorID string, req dto.ManageUserDeleteRequest) error {
	req.UserID = strings.TrimSpace(req.UserID)
	if err := s.validator.Struct(req); err != nil {
		return err
	}
	if req.UserID == actorID {
		return ErrCannotDeleteSelf
	}

	if err := s.accounts.Delete(ctx, req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	s.logger.Info().Str("account_id", req.UserID).Str("actor_id", actorID).Msg("account deleted")
	return nil
}

// EnsureAdmin creates or promotes the bootstrap administrator account.
func (s *accountService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if account.IsAdmin() {
			return nil
		}
		account.Role = models.RoleAdmin
		return s.accounts.Update(ctx, &account)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	if len(password) < 8 {
		return errors.New("bootstrap admin password must be at least 8 characters")
	}
	account = models.Account{
		Email:          email,
		FullName:       "Administrator",
		Role:           models.RoleAdmin,
		EmailConfirmed: true,
	}
	if err := account.SetPassword(password); err != nil {
		return err
	}
	if err := s.accounts.Create(ctx, &account); err != nil {
		return err
	}

	s.logger.Info().Str("account_id", account.ID).Msg("bootstrap administrator created")
	return nil
}

func randomSecret(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
