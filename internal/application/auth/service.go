package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"

	"github.com/njala-api/internal/domain"
	"github.com/njala-api/internal/infrastructure/google"
	"github.com/njala-api/internal/pkg/metrics"
	pkgtoken "github.com/njala-api/internal/pkg/token"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type GoogleLoginRequest struct {
	Credential string `json:"credential" validate:"required"`
}

type VerifyTwoFactorRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// Result is the outcome of a login step. Exactly one of RequiresTwoFactor or Tokens is set.
type Result struct {
	RequiresTwoFactor bool
	Email             string
	Tokens            *domain.TokenPair
	User              *domain.User
}

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, req LoginRequest) (*Result, error)
	GoogleLogin(ctx context.Context, req GoogleLoginRequest) (*Result, error)
	VerifyTwoFactor(ctx context.Context, req VerifyTwoFactorRequest) (*Result, error)
	RequestOTP(ctx context.Context, req domain.RequestOTPRequest) error
	VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) error
	Refresh(ctx context.Context, req RefreshRequest) (*Result, error)
	RequestPasswordReset(ctx context.Context, req PasswordResetRequest) error
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	Me(ctx context.Context, userID string) (*domain.User, error)
}

type credentialStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, userID string) (*domain.User, error)
	VerifyPassword(u *domain.User, plaintext string) bool
	Create(ctx context.Context, u *domain.User, plaintext string) (*domain.User, error)
	ConfirmEmail(ctx context.Context, u *domain.User) error
	TouchLastLogin(ctx context.Context, u *domain.User) error
	GeneratePasswordResetToken(ctx context.Context, u *domain.User) (string, error)
	ResetPassword(ctx context.Context, u *domain.User, token, newPassword string) error
}

type codeLedger interface {
	RequestCode(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose) (string, error)
	VerifyCode(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose, code string) error
}

type tokenIssuer interface {
	IssuePair(ctx context.Context, u *domain.User) (*domain.TokenPair, error)
	Rotate(ctx context.Context, refreshToken string) (*domain.TokenPair, *domain.User, error)
}

type googleVerifier interface {
	Verify(ctx context.Context, token string) (*google.Payload, error)
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type auditRecorder interface {
	Record(ctx context.Context, subject *domain.User, action, description string)
}

type ServiceDeps struct {
	Credentials    credentialStore
	Ledger         codeLedger
	Tokens         tokenIssuer
	GoogleVerifier googleVerifier
	Mailer         mailer
	Audit          auditRecorder
	Metrics        *metrics.Metrics

	ResetLinkBaseURL         string
	ResetConcealUnknownEmail bool
	GoogleLoginRequire2FA    bool
}

type service struct {
	creds   credentialStore
	ledger  codeLedger
	tokens  tokenIssuer
	google  googleVerifier
	mailer  mailer
	audit   auditRecorder
	metrics *metrics.Metrics

	resetLinkBase  string
	concealReset   bool
	googleRequire2 bool
}

func NewService(deps ServiceDeps) Service {
	return &service{
		creds:          deps.Credentials,
		ledger:         deps.Ledger,
		tokens:         deps.Tokens,
		google:         deps.GoogleVerifier,
		mailer:         deps.Mailer,
		audit:          deps.Audit,
		metrics:        deps.Metrics,
		resetLinkBase:  deps.ResetLinkBaseURL,
		concealReset:   deps.ResetConcealUnknownEmail,
		googleRequire2: deps.GoogleLoginRequire2FA,
	}
}

// Register creates a Student account with an unconfirmed email. It does not log the user in.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	u, err := s.creds.Create(ctx, &domain.User{
		Email:    req.Email,
		FullName: req.FullName,
		Role:     domain.RoleStudent,
	}, req.Password)
	s.metrics.AuthEvent("register", err)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, u, domain.ActionRegister, "User registered")
	return u, nil
}

// Login checks email confirmation before the password, so an unconfirmed account
// always reports ErrEmailNotConfirmed whatever password was sent.
func (s *service) Login(ctx context.Context, req LoginRequest) (*Result, error) {
	res, err := s.login(ctx, req)
	s.metrics.AuthEvent("login", err)
	return res, err
}

func (s *service) login(ctx context.Context, req LoginRequest) (*Result, error) {
	u, err := s.creds.FindByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		s.audit.Record(ctx, nil, domain.ActionLoginFailed, "Unknown email "+domain.NormalizeEmail(req.Email))
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.EmailConfirmed {
		s.audit.Record(ctx, u, domain.ActionLoginFailed, "Email not confirmed")
		return nil, domain.ErrEmailNotConfirmed
	}
	if !s.creds.VerifyPassword(u, req.Password) {
		s.audit.Record(ctx, u, domain.ActionLoginFailed, "Invalid password")
		return nil, domain.ErrInvalidCredentials
	}
	if u.TwoFactorEnabled {
		return s.challenge(ctx, u)
	}
	return s.complete(ctx, u, domain.ActionLogin, true)
}

func (s *service) GoogleLogin(ctx context.Context, req GoogleLoginRequest) (*Result, error) {
	res, err := s.googleLogin(ctx, req)
	s.metrics.AuthEvent("google_login", err)
	return res, err
}

func (s *service) googleLogin(ctx context.Context, req GoogleLoginRequest) (*Result, error) {
	p, err := s.google.Verify(ctx, req.Credential)
	if err != nil {
		s.audit.Record(ctx, nil, domain.ActionLoginFailed, "Google credential rejected")
		return nil, err
	}
	if !p.EmailVerified {
		s.audit.Record(ctx, nil, domain.ActionLoginFailed, "Google email not verified")
		return nil, fmt.Errorf("google email not verified: %w", domain.ErrUnauthorized)
	}
	u, err := s.findOrProvision(ctx, p)
	if err != nil {
		return nil, err
	}
	if s.googleRequire2 && u.TwoFactorEnabled {
		return s.challenge(ctx, u)
	}
	return s.complete(ctx, u, domain.ActionGoogleLogin, false)
}

// findOrProvision returns the local account for a verified Google identity,
// creating a confirmed Student account with an unusable random password if none exists.
func (s *service) findOrProvision(ctx context.Context, p *google.Payload) (*domain.User, error) {
	u, err := s.creds.FindByEmail(ctx, p.Email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	password, err := pkgtoken.NewURLSafe(32)
	if err != nil {
		return nil, err
	}
	u, err = s.creds.Create(ctx, &domain.User{
		Email:          p.Email,
		FullName:       p.Name,
		Role:           domain.RoleStudent,
		EmailConfirmed: true,
		AuthProvider:   domain.AuthProviderGoogle,
	}, password)
	if errors.Is(err, domain.ErrDuplicateEmail) {
		// Lost a race with a concurrent first login for the same address.
		return s.creds.FindByEmail(ctx, p.Email)
	}
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, u, domain.ActionRegister, "User provisioned from Google login")
	return u, nil
}

func (s *service) VerifyTwoFactor(ctx context.Context, req VerifyTwoFactorRequest) (*Result, error) {
	res, err := s.verifyTwoFactor(ctx, req)
	s.metrics.AuthEvent("verify_2fa", err)
	return res, err
}

func (s *service) verifyTwoFactor(ctx context.Context, req VerifyTwoFactorRequest) (*Result, error) {
	u, err := s.creds.FindByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	err = s.ledger.VerifyCode(ctx, u.Email, domain.OTPTypeEmail, domain.PurposeTwoFactor, req.Code)
	if errors.Is(err, domain.ErrInvalidOrExpiredOtp) {
		s.audit.Record(ctx, u, domain.ActionLoginFailed, "Invalid 2FA code")
		return nil, domain.ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, u, domain.ActionTwoFactorVerified, true)
}

func (s *service) RequestOTP(ctx context.Context, req domain.RequestOTPRequest) error {
	typ, target, err := otpTarget(req.Type, req.Target)
	if err != nil {
		return err
	}
	_, err = s.ledger.RequestCode(ctx, target, typ, domain.PurposeVerify)
	s.metrics.AuthEvent("request_otp", err)
	if err != nil {
		return err
	}
	s.audit.Record(ctx, nil, domain.ActionOTPRequested, fmt.Sprintf("OTP requested for %s %s", typ, target))
	return nil
}

// VerifyOTP consumes a verification code. A verified email-type target that belongs
// to an account marks that account's email as confirmed.
func (s *service) VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) error {
	typ, target, err := otpTarget(req.Type, req.Target)
	if err != nil {
		return err
	}
	err = s.ledger.VerifyCode(ctx, target, typ, domain.PurposeVerify, req.Code)
	s.metrics.AuthEvent("verify_otp", err)
	if err != nil {
		return err
	}
	var subject *domain.User
	if typ == domain.OTPTypeEmail {
		u, err := s.creds.FindByEmail(ctx, target)
		switch {
		case err == nil:
			if err := s.creds.ConfirmEmail(ctx, u); err != nil {
				return err
			}
			subject = u
		case errors.Is(err, domain.ErrNotFound):
		default:
			return err
		}
	}
	s.audit.Record(ctx, subject, domain.ActionOTPVerified, fmt.Sprintf("OTP verified for %s %s", typ, target))
	return nil
}

func (s *service) Refresh(ctx context.Context, req RefreshRequest) (*Result, error) {
	pair, u, err := s.tokens.Rotate(ctx, req.RefreshToken)
	s.metrics.AuthEvent("refresh", err)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, u, domain.ActionRefreshToken, "Refresh token rotated")
	return &Result{Tokens: pair, User: u}, nil
}

func (s *service) RequestPasswordReset(ctx context.Context, req PasswordResetRequest) error {
	u, err := s.creds.FindByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		s.audit.Record(ctx, nil, domain.ActionPasswordResetRequested, "Reset requested for unknown email")
		if s.concealReset {
			return nil
		}
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	tok, err := s.creds.GeneratePasswordResetToken(ctx, u)
	if err != nil {
		return err
	}
	body := fmt.Sprintf(`<p>Reset your password by following <a href="%s">this link</a>. It expires in 1 hour.</p>`, html.EscapeString(s.resetLink(u.Email, tok)))
	if err := s.mailer.SendEmail(u.Email, "Reset your password", body); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	s.audit.Record(ctx, u, domain.ActionPasswordResetRequested, "Password reset link sent")
	return nil
}

func (s *service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	u, err := s.creds.FindByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		if s.concealReset {
			return fmt.Errorf("%w: the reset token is invalid or expired", domain.ErrInvalidToken)
		}
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	err = s.creds.ResetPassword(ctx, u, req.Token, req.NewPassword)
	s.metrics.AuthEvent("reset_password", err)
	if err != nil {
		return err
	}
	s.audit.Record(ctx, u, domain.ActionPasswordReset, "Password reset")
	return nil
}

func (s *service) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.creds.FindByID(ctx, userID)
}

// challenge sends a login code and parks the flow until VerifyTwoFactor.
// A code that is still fresh is reused instead of failing the login.
func (s *service) challenge(ctx context.Context, u *domain.User) (*Result, error) {
	_, err := s.ledger.RequestCode(ctx, u.Email, domain.OTPTypeEmail, domain.PurposeTwoFactor)
	if err != nil && !errors.Is(err, domain.ErrTooSoonForOtp) {
		return nil, err
	}
	s.audit.Record(ctx, u, domain.ActionTwoFactorRequired, "2FA code required")
	return &Result{RequiresTwoFactor: true, Email: u.Email}, nil
}

// complete finishes an authentication: stamps the login time, issues tokens and records it.
func (s *service) complete(ctx context.Context, u *domain.User, action string, notify bool) (*Result, error) {
	if err := s.creds.TouchLastLogin(ctx, u); err != nil {
		return nil, err
	}
	pair, err := s.tokens.IssuePair(ctx, u)
	if err != nil {
		return nil, err
	}
	if notify {
		body := fmt.Sprintf("<p>Hello %s, a new sign-in to your account was recorded.</p>", html.EscapeString(u.FullName))
		if err := s.mailer.SendEmail(u.Email, "New sign-in to your account", body); err != nil {
			slog.Warn("failed to send login notification", "user_id", u.UserID, "err", err)
		}
	}
	s.audit.Record(ctx, u, action, "User logged in")
	return &Result{Tokens: pair, User: u}, nil
}

func (s *service) resetLink(email, tok string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", tok)
	return s.resetLinkBase + "?" + q.Encode()
}

func otpTarget(rawType, target string) (domain.OTPType, string, error) {
	typ, err := domain.ParseOTPType(rawType)
	if err != nil {
		return "", "", err
	}
	if typ == domain.OTPTypeEmail {
		target = domain.NormalizeEmail(target)
	}
	return typ, target, nil
}
