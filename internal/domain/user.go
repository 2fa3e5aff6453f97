package domain

import (
	"strings"
	"time"
)

const (
	AuthProviderLocal  = "local"
	AuthProviderGoogle = "google"
)

// User is the aggregate root of the credential store.
// Email is stored lower-cased; lookups normalise with NormalizeEmail.
type User struct {
	UserID           string     `json:"id" dynamodbav:"user_id"`
	Email            string     `json:"email" dynamodbav:"email"`
	FullName         string     `json:"fullName" dynamodbav:"full_name"`
	PasswordHash     string     `json:"-" dynamodbav:"password_hash"`
	Role             Role       `json:"role" dynamodbav:"role"`
	EmailConfirmed   bool       `json:"emailConfirmed" dynamodbav:"email_confirmed"`
	TwoFactorEnabled bool       `json:"twoFactorEnabled" dynamodbav:"two_factor_enabled"`
	AuthProvider     string     `json:"authProvider,omitempty" dynamodbav:"auth_provider"` // "local" | "google"
	LastLoginAt      *time.Time `json:"lastLogin,omitempty" dynamodbav:"last_login_at"`
	CreatedAt        time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt        time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// UserSummary is the user block returned alongside issued tokens.
type UserSummary struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"fullName"`
	Role      Role       `json:"role"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:        u.UserID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		LastLogin: u.LastLoginAt,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"fullName" validate:"required"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
