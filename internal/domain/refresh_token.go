package domain

import "time"

// RefreshToken is the server-side state of an opaque refresh token.
// Only the SHA-256 fingerprint of the token string is stored.
type RefreshToken struct {
	TokenHash string    `json:"-" dynamodbav:"token_hash"`
	ID        string    `json:"id" dynamodbav:"id"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	ExpiresAt int64     `json:"expires_at" dynamodbav:"expires_at"` // unix seconds
	IsRevoked bool      `json:"is_revoked" dynamodbav:"is_revoked"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	TTL       int64     `json:"-" dynamodbav:"ttl"`
}

// Usable reports whether the token can still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.IsRevoked && t.ExpiresAt > now.Unix()
}

// TokenPair is what every successful authentication hands back.
type TokenPair struct {
	Token            string
	TokenExpiresAt   time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
