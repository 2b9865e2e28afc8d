package models

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	// RoleStudent is assigned to every self-registered account.
	RoleStudent = "student"
	// RoleAdmin grants access to course management and account administration.
	RoleAdmin = "admin"
)

// Account is an authenticated identity of the portal.
type Account struct {
	ID             string `gorm:"primaryKey;size:36"`
	Email          string `gorm:"size:255;uniqueIndex;not null"`
	FullName       string `gorm:"size:255"`
	AvatarURL      string `gorm:"size:512"`
	Role           string `gorm:"size:32;not null;default:'student'"`
	PasswordHash   string `gorm:"size:255;not null"`
	EmailConfirmed bool   `gorm:"not null;default:false"`
	LastSignInAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BeforeCreate assigns identifiers and normalises the account before insert.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	a.Email = NormalizeEmail(a.Email)
	a.Role = normalizeRole(a.Role)
	return nil
}

// SetPassword stores a bcrypt hash of the plain text password.
func (a *Account) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether the password matches the stored hash.
func (a Account) CheckPassword(password string) bool {
	if a.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

// IsAdmin reports whether the account may use administrator operations.
func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// NormalizeEmail lower-cases and trims an email address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleStudent
	}
}

// AuthSession backs a refresh token; revoking it ends the session.
type AuthSession struct {
	ID        string    `gorm:"primaryKey;size:36"`
	AccountID string    `gorm:"size:36;index;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}

// BeforeCreate assigns the session identifier.
func (s *AuthSession) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// Active reports whether the session can still mint access tokens.
func (s AuthSession) Active(reference time.Time) bool {
	return s.RevokedAt == nil && reference.Before(s.ExpiresAt)
}
