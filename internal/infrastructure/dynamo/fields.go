package dynamo

// DynamoDB attribute names used in update and condition expressions across repos.
const (
	fieldUpdatedAt        = "updated_at"
	fieldRole             = "role"
	fieldEmailConfirmed   = "email_confirmed"
	fieldLastLoginAt      = "last_login_at"
	fieldPasswordHash     = "password_hash"
	fieldTwoFactorEnabled = "two_factor_enabled"
	fieldVerified         = "verified"
	fieldIsRevoked        = "is_revoked"
)
