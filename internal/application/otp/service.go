package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/njala-api/internal/domain"
	"github.com/njala-api/internal/pkg/metrics"
	pkgtoken "github.com/njala-api/internal/pkg/token"
)

// Policy fixes lifetime, resend window and code shape for one purpose.
type Policy struct {
	TTL time.Duration
	// A new code is refused while the newest one has more than this much life left.
	ResendWindow time.Duration
	// ResendAfterConsumed lets a consumed code be replaced inside the resend window.
	ResendAfterConsumed bool
	Generate            func() (string, error)
}

func sixDigits() (string, error) { return pkgtoken.NewNumericCode(6) }

func resetToken() (string, error) { return pkgtoken.NewURLSafe(32) }

// DefaultPolicies: 10 minute numeric codes that can be re-requested once fewer
// than 5 minutes remain, and 1 hour URL-safe reset tokens. A finished 2FA
// challenge does not hold back the next login's code.
var DefaultPolicies = map[domain.OTPPurpose]Policy{
	domain.PurposeVerify:        {TTL: 10 * time.Minute, ResendWindow: 5 * time.Minute, Generate: sixDigits},
	domain.PurposeTwoFactor:     {TTL: 10 * time.Minute, ResendWindow: 5 * time.Minute, ResendAfterConsumed: true, Generate: sixDigits},
	domain.PurposePasswordReset: {TTL: time.Hour, Generate: resetToken},
}

type codeStore interface {
	Put(ctx context.Context, rec *domain.OTPRecord) error
	Latest(ctx context.Context, subject string) (*domain.OTPRecord, error)
	LatestUnverified(ctx context.Context, subject string) (*domain.OTPRecord, error)
	MarkVerified(ctx context.Context, subject string, expiresAt int64) error
}

type locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Service is the one-time code ledger. Each (purpose, type, target) triple is an
// independent stream of codes.
type Service interface {
	// RequestCode issues a code and delivers it to target over its channel.
	RequestCode(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose) (string, error)
	// Issue persists a code without delivering it. The caller owns delivery.
	Issue(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose) (string, error)
	VerifyCode(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose, code string) error
}

type ServiceDeps struct {
	Repo      codeStore
	Locker    locker
	Mailer    mailer
	SMSSender smsSender
	Metrics   *metrics.Metrics
	Policies  map[domain.OTPPurpose]Policy
	Retention time.Duration
	Now       func() time.Time
}

type service struct {
	repo      codeStore
	locker    locker
	mailer    mailer
	sms       smsSender
	metrics   *metrics.Metrics
	policies  map[domain.OTPPurpose]Policy
	retention time.Duration
	now       func() time.Time
}

func NewService(deps ServiceDeps) Service {
	if deps.Policies == nil {
		deps.Policies = DefaultPolicies
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{
		repo:      deps.Repo,
		locker:    deps.Locker,
		mailer:    deps.Mailer,
		sms:       deps.SMSSender,
		metrics:   deps.Metrics,
		policies:  deps.Policies,
		retention: deps.Retention,
		now:       deps.Now,
	}
}

func (s *service) RequestCode(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose) (string, error) {
	code, err := s.Issue(ctx, target, typ, purpose)
	if err != nil {
		return "", err
	}
	if err := s.deliver(ctx, target, typ, purpose, code); err != nil {
		return "", fmt.Errorf("deliver %s code: %w", purpose, err)
	}
	return code, nil
}

func (s *service) Issue(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose) (string, error) {
	policy, ok := s.policies[purpose]
	if !ok {
		return "", fmt.Errorf("unknown otp purpose %q: %w", purpose, domain.ErrBadRequest)
	}
	subject := domain.OTPSubject(purpose, typ, target)
	unlock, err := s.locker.Lock(ctx, subject)
	if err != nil {
		return "", err
	}
	defer unlock()

	now := s.now()
	latest, err := s.latestForResend(ctx, subject, policy)
	switch {
	case err == nil:
		if policy.ResendWindow > 0 && latest.Expiry().Sub(now) > policy.ResendWindow {
			return "", domain.ErrTooSoonForOtp
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return "", fmt.Errorf("lookup otp: %w", err)
	}

	code, err := policy.Generate()
	if err != nil {
		return "", err
	}
	expiresAt := now.Add(policy.TTL)
	rec := &domain.OTPRecord{
		Subject:   subject,
		ExpiresAt: expiresAt.UnixNano(),
		Target:    target,
		Type:      typ,
		Purpose:   purpose,
		Code:      code,
		CreatedAt: now.UTC(),
		TTL:       expiresAt.Add(s.retention).Unix(),
	}
	if err := s.repo.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	s.metrics.OTPIssued(string(purpose), string(typ))
	return code, nil
}

func (s *service) latestForResend(ctx context.Context, subject string, policy Policy) (*domain.OTPRecord, error) {
	if policy.ResendAfterConsumed {
		return s.repo.LatestUnverified(ctx, subject)
	}
	return s.repo.Latest(ctx, subject)
}

func (s *service) VerifyCode(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose, code string) error {
	err := s.verify(ctx, target, typ, purpose, code)
	s.metrics.OTPVerified(string(purpose), err)
	return err
}

func (s *service) verify(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose, code string) error {
	subject := domain.OTPSubject(purpose, typ, target)
	unlock, err := s.locker.Lock(ctx, subject)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := s.repo.LatestUnverified(ctx, subject)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrInvalidOrExpiredOtp
	}
	if err != nil {
		return fmt.Errorf("lookup otp: %w", err)
	}
	if !s.now().Before(rec.Expiry()) {
		return domain.ErrInvalidOrExpiredOtp
	}
	if code == "" || !pkgtoken.Equal(rec.Code, code) {
		return domain.ErrInvalidOrExpiredOtp
	}
	return s.repo.MarkVerified(ctx, subject, rec.ExpiresAt)
}

func (s *service) deliver(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose, code string) error {
	subject, body := message(purpose, code)
	switch typ {
	case domain.OTPTypeEmail:
		return s.mailer.SendEmail(target, subject, body)
	case domain.OTPTypePhone:
		if s.sms == nil {
			slog.Warn("sms delivery not configured", "purpose", purpose)
			return fmt.Errorf("sms delivery unavailable: %w", domain.ErrBadRequest)
		}
		return s.sms.SendSMS(ctx, target, body)
	}
	return fmt.Errorf("unknown otp type %q: %w", typ, domain.ErrBadRequest)
}

func message(purpose domain.OTPPurpose, code string) (subject, body string) {
	switch purpose {
	case domain.PurposeTwoFactor:
		return "Your login verification code", "Your login verification code is " + code + ". It expires in 10 minutes."
	case domain.PurposePasswordReset:
		return "Password reset", "Your password reset token is " + code + "."
	case domain.PurposeVerify:
		return "Your verification code", "Your verification code is " + code + ". It expires in 10 minutes."
	}
	return "Your code", code
}
