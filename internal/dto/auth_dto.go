package dto

import (
	"time"

	"github.com/noah-isme/classroom-portal/internal/models"
)

// SignupRequest registers a new student account.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"required,min=1,max=255"`
}

// LoginRequest exchanges credentials for a session.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest exchanges a refresh token for a new session.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// PasswordUpdateRequest changes the password of the signed-in account.
type PasswordUpdateRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// RecoverRequest asks for a password reset message.
type RecoverRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetRequest completes a password reset using the emailed token.
type ResetRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// AccountResponse is the public representation of an identity.
type AccountResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	FullName       string     `json:"full_name"`
	AvatarURL      string     `json:"avatar_url,omitempty"`
	Role           string     `json:"role"`
	EmailConfirmed bool       `json:"email_confirmed"`
	LastSignInAt   *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SessionResponse carries the tokens issued on login or refresh.
type SessionResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int64           `json:"expires_in"`
	ExpiresAt    time.Time       `json:"expires_at"`
	User         AccountResponse `json:"user"`
}

// Auth event types pushed over the event stream.
const (
	AuthEventSignedIn         = "SIGNED_IN"
	AuthEventSignedOut        = "SIGNED_OUT"
	AuthEventUserUpdated      = "USER_UPDATED"
	AuthEventPasswordRecovery = "PASSWORD_RECOVERY"
)

// AuthEvent notifies connected clients about session changes.
type AuthEvent struct {
	Type       string    `json:"type"`
	AccountID  string    `json:"account_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewAccountResponse converts a model into a DTO.
func NewAccountResponse(model models.Account) AccountResponse {
	return AccountResponse{
		ID:             model.ID,
		Email:          model.Email,
		FullName:       model.FullName,
		AvatarURL:      model.AvatarURL,
		Role:           model.Role,
		EmailConfirmed: model.EmailConfirmed,
		LastSignInAt:   model.LastSignInAt,
		CreatedAt:      model.CreatedAt,
	}
}

// NewAccountResponseSlice converts a slice of accounts into DTOs.
func NewAccountResponseSlice(accounts []models.Account) []AccountResponse {
	responses := make([]AccountResponse, 0, len(accounts))
	for _, account := range accounts {
		responses = append(responses, NewAccountResponse(account))
	}
	return responses
}
