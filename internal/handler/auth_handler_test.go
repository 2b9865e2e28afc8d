package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/handler"
	"github.com/noah-isme/classroom-portal/internal/middleware"
	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/internal/service"
)

type stubAuthService struct {
	recoverErr   error
	loggedOut    string
	sessionErr   error
	recoverCalls int
}

func (s *stubAuthService) Signup(_ context.Context, req dto.SignupRequest) (dto.AccountResponse, error) {
	if req.Email == "taken@example.com" {
		return dto.AccountResponse{}, service.ErrEmailTaken
	}
	return dto.AccountResponse{ID: "new", Email: req.Email, FullName: req.FullName, Role: "student"}, nil
}
func (s *stubAuthService) Login(_ context.Context, req dto.LoginRequest) (dto.SessionResponse, error) {
	if req.Password != "correct-horse" {
		return dto.SessionResponse{}, service.ErrInvalidCredentials
	}
	return dto.SessionResponse{AccessToken: "access", RefreshToken: "refresh", TokenType: "bearer", User: dto.AccountResponse{ID: "u1", Email: req.Email}}, nil
}
func (s *stubAuthService) Refresh(context.Context, dto.RefreshRequest) (dto.SessionResponse, error) {
	return dto.SessionResponse{}, service.ErrInvalidToken
}
func (s *stubAuthService) Session(_ context.Context, accountID string) (dto.AccountResponse, error) {
	if s.sessionErr != nil {
		return dto.AccountResponse{}, s.sessionErr
	}
	return dto.AccountResponse{ID: accountID}, nil
}
func (s *stubAuthService) Logout(_ context.Context, accountID string) error {
	s.loggedOut = accountID
	return nil
}
func (s *stubAuthService) UpdatePassword(_ context.Context, accountID string, _ dto.PasswordUpdateRequest) (dto.AccountResponse, error) {
	return dto.AccountResponse{ID: accountID}, nil
}
func (s *stubAuthService) Recover(context.Context, dto.RecoverRequest) error {
	s.recoverCalls++
	return s.recoverErr
}
func (s *stubAuthService) Reset(context.Context, dto.ResetRequest) error { return service.ErrInvalidToken }
func (s *stubAuthService) Events(string) (<-chan dto.AuthEvent, func()) {
	ch := make(chan dto.AuthEvent)
	return ch, func() {}
}
func (s *stubAuthService) SendCredentialSetup(context.Context, models.Account) error { return nil }

func newAuthApp(svc service.AuthService) *fiber.App {
	app := fiber.New()
	handler.NewAuthHandler(svc, middleware.JWTProtected(testSecret), nil, zerolog.Nop()).Register(app.Group("/api/v1/auth"))
	return app
}

func TestAuthHandler_SignupAndLogin(t *testing.T) {
	app := newAuthApp(&stubAuthService{})

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{"email": "new@example.com", "password": "long-enough", "full_name": "New"}, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{"email": "taken@example.com", "password": "long-enough", "full_name": "Dup"}, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "new@example.com", "password": "wrong"}, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "new@example.com", "password": "correct-horse"}, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body struct {
		Data dto.SessionResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "access", body.Data.AccessToken)
}

func TestAuthHandler_RecoverNeverLeaksFailures(t *testing.T) {
	svc := &stubAuthService{recoverErr: errors.New("smtp down")}
	app := newAuthApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/auth/recover", map[string]string{"email": "ghost@example.com"}, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 1, svc.recoverCalls)
}

func TestAuthHandler_SessionRoutesNeedToken(t *testing.T) {
	svc := &stubAuthService{}
	app := newAuthApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/v1/auth/session", nil, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/api/v1/auth/logout", nil, accessToken(t, "u1", "student")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "u1", svc.loggedOut)

	svc.sessionErr = service.ErrAccountNotFound
	resp, err = app.Test(jsonRequest(t, http.MethodGet, "/api/v1/auth/session", nil, accessToken(t, "gone", "student")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthHandler_EventsRequireUpgrade(t *testing.T) {
	app := newAuthApp(&stubAuthService{})

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/v1/auth/events?access_token="+accessToken(t, "u1", "student"), nil, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
