package domain

import (
	"fmt"
	"time"
)

// OTPType is the delivery channel of a code.
type OTPType string

const (
	OTPTypeEmail OTPType = "email"
	OTPTypePhone OTPType = "phone"
)

func ParseOTPType(s string) (OTPType, error) {
	switch OTPType(s) {
	case OTPTypeEmail, OTPTypePhone:
		return OTPType(s), nil
	case "":
		return OTPTypeEmail, nil
	}
	return "", fmt.Errorf("unknown otp type %q: %w", s, ErrBadRequest)
}

// OTPPurpose separates the independent code streams kept by the ledger.
type OTPPurpose string

const (
	PurposeVerify        OTPPurpose = "verify"
	PurposeTwoFactor     OTPPurpose = "two_factor"
	PurposePasswordReset OTPPurpose = "password_reset"
)

// OTPRecord is one issued code. PK: subject (purpose#type#target), SK: expires_at.
// A verified record is never modified again.
type OTPRecord struct {
	Subject   string     `json:"-" dynamodbav:"subject"`
	ExpiresAt int64      `json:"expires_at" dynamodbav:"expires_at"` // unix nanos
	Target    string     `json:"target" dynamodbav:"target"`
	Type      OTPType    `json:"type" dynamodbav:"type"`
	Purpose   OTPPurpose `json:"purpose" dynamodbav:"purpose"`
	Code      string     `json:"-" dynamodbav:"code"`
	Verified  bool       `json:"verified" dynamodbav:"verified"`
	CreatedAt time.Time  `json:"created" dynamodbav:"created_at"`
	TTL       int64      `json:"-" dynamodbav:"ttl"` // DynamoDB TTL (unix seconds)
}

func OTPSubject(purpose OTPPurpose, typ OTPType, target string) string {
	return string(purpose) + "#" + string(typ) + "#" + target
}

func (r *OTPRecord) Expiry() time.Time { return time.Unix(0, r.ExpiresAt) }

type RequestOTPRequest struct {
	Target string `json:"target" validate:"required"`
	Type   string `json:"type" validate:"omitempty,oneof=email phone"`
}

type VerifyOTPRequest struct {
	Target string `json:"target" validate:"required"`
	Type   string `json:"type" validate:"omitempty,oneof=email phone"`
	Code   string `json:"code" validate:"required"`
}
