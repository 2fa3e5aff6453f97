package domain

import "time"

const AnonymousActor = "Anonymous"

// Audit action tags.
const (
	ActionRegister               = "Register"
	ActionLogin                  = "Login"
	ActionLoginFailed            = "LoginFailed"
	ActionGoogleLogin            = "GoogleLogin"
	ActionTwoFactorRequired      = "TwoFactorRequired"
	ActionTwoFactorVerified      = "TwoFactorVerified"
	ActionOTPRequested           = "OtpRequested"
	ActionOTPVerified            = "OtpVerified"
	ActionRefreshToken           = "RefreshToken"
	ActionPasswordResetRequested = "PasswordResetRequested"
	ActionPasswordReset          = "PasswordReset"
	ActionPromoteUser            = "PromoteUser"
	ActionCreateAdmin            = "CreateAdmin"
	ActionDeleteUser             = "DeleteUser"
)

// AuditLog is an append-only record of a security-relevant action.
type AuditLog struct {
	LogID       string    `json:"id" dynamodbav:"log_id"`
	Timestamp   time.Time `json:"timestamp" dynamodbav:"timestamp"`
	UserID      string    `json:"userId" dynamodbav:"user_id"`
	UserEmail   *string   `json:"userEmail" dynamodbav:"user_email"`
	Action      string    `json:"action" dynamodbav:"action"`
	Description string    `json:"description" dynamodbav:"description"`
	IPAddress   string    `json:"ipAddress" dynamodbav:"ip_address"`
}
