package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "3000", cfg.AppPort)
	assert.Equal(t, 5*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenExpiry)
	assert.Equal(t, "otp_codes", cfg.DynamoTables.OTPCodes)
	assert.False(t, cfg.ResetConcealUnknownEmail)
	assert.False(t, cfg.GoogleLoginRequire2FA)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention())
	assert.False(t, cfg.TrustProxyHeaders)
	assert.Equal(t, 5, cfg.RateLimitRPS)
	assert.Equal(t, 10, cfg.RateLimitBurst)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_EXPIRY", "90m")
	t.Setenv("RESET_CONCEAL_UNKNOWN_EMAIL", "true")
	t.Setenv("RETENTION_DAYS", "7")
	t.Setenv("ALLOWED_ORIGINS", "https://a.edu,https://b.edu")
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	t.Setenv("RATE_LIMIT_BURST", "3")

	cfg := Load()

	assert.Equal(t, 90*time.Minute, cfg.JWTExpiry)
	assert.True(t, cfg.ResetConcealUnknownEmail)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention())
	assert.Equal(t, []string{"https://a.edu", "https://b.edu"}, cfg.AllowedOrigins)
	assert.True(t, cfg.TrustProxyHeaders)
	assert.Equal(t, 3, cfg.RateLimitBurst)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("JWT_EXPIRY", "five hours")
	t.Setenv("GOOGLE_LOGIN_REQUIRE_2FA", "maybe")
	t.Setenv("RETENTION_DAYS", "x")

	cfg := Load()

	assert.Equal(t, 5*time.Hour, cfg.JWTExpiry)
	assert.False(t, cfg.GoogleLoginRequire2FA)
	assert.Equal(t, 30, cfg.RetentionDays)
}
