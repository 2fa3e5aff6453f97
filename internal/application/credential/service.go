package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/njala-api/internal/domain"
	"github.com/njala-api/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 6
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLen = 72
)

type Service interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, userID string) (*domain.User, error)
	VerifyPassword(u *domain.User, plaintext string) bool
	Create(ctx context.Context, u *domain.User, plaintext string) (*domain.User, error)
	AssignRole(ctx context.Context, u *domain.User, role domain.Role) error
	ConfirmEmail(ctx context.Context, u *domain.User) error
	TouchLastLogin(ctx context.Context, u *domain.User) error
	GeneratePasswordResetToken(ctx context.Context, u *domain.User) (string, error)
	ResetPassword(ctx context.Context, u *domain.User, token, newPassword string) error
}

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetRole(ctx context.Context, userID string, role domain.Role) error
	SetEmailConfirmed(ctx context.Context, userID string) error
	SetLastLogin(ctx context.Context, userID string, at time.Time) error
	SetPasswordHash(ctx context.Context, userID, hash string) error
}

type codeLedger interface {
	Issue(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose) (string, error)
	VerifyCode(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose, code string) error
}

type tokenRevoker interface {
	RevokeAll(ctx context.Context, userID string) error
}

type ServiceDeps struct {
	UserRepo   userStore
	Ledger     codeLedger
	Tokens     tokenRevoker
	BcryptCost int
	Now        func() time.Time
}

type service struct {
	repo   userStore
	ledger codeLedger
	tokens tokenRevoker
	cost   int
	now    func() time.Time
}

func NewService(deps ServiceDeps) Service {
	if deps.BcryptCost == 0 {
		deps.BcryptCost = bcrypt.DefaultCost
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{
		repo:   deps.UserRepo,
		ledger: deps.Ledger,
		tokens: deps.Tokens,
		cost:   deps.BcryptCost,
		now:    deps.Now,
	}
}

func (s *service) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
}

func (s *service) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	if !id.Valid(userID) {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return s.repo.Get(ctx, userID)
}

func (s *service) VerifyPassword(u *domain.User, plaintext string) bool {
	if u == nil || u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plaintext)) == nil
}

// Create stores u with a hash of plaintext. ID, timestamps and a default role are
// filled in; the email is normalised before the uniqueness check.
func (s *service) Create(ctx context.Context, u *domain.User, plaintext string) (*domain.User, error) {
	if reasons := passwordPolicy(plaintext); len(reasons) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrWeakPassword, strings.Join(reasons, " "))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u.UserID = id.New()
	u.Email = domain.NormalizeEmail(u.Email)
	u.PasswordHash = string(hash)
	if u.Role == "" {
		u.Role = domain.RoleStudent
	}
	if u.AuthProvider == "" {
		u.AuthProvider = domain.AuthProviderLocal
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) AssignRole(ctx context.Context, u *domain.User, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q: %w", role, domain.ErrBadRequest)
	}
	if err := s.repo.SetRole(ctx, u.UserID, role); err != nil {
		return err
	}
	u.Role = role
	return nil
}

func (s *service) ConfirmEmail(ctx context.Context, u *domain.User) error {
	if u.EmailConfirmed {
		return nil
	}
	if err := s.repo.SetEmailConfirmed(ctx, u.UserID); err != nil {
		return err
	}
	u.EmailConfirmed = true
	return nil
}

func (s *service) TouchLastLogin(ctx context.Context, u *domain.User) error {
	now := s.now().UTC()
	if err := s.repo.SetLastLogin(ctx, u.UserID, now); err != nil {
		return err
	}
	u.LastLoginAt = &now
	return nil
}

func (s *service) GeneratePasswordResetToken(ctx context.Context, u *domain.User) (string, error) {
	return s.ledger.Issue(ctx, u.Email, domain.OTPTypeEmail, domain.PurposePasswordReset)
}

// ResetPassword checks the new password against policy before touching the token,
// so a rejected password does not burn it. On success every refresh token of the
// user is revoked.
func (s *service) ResetPassword(ctx context.Context, u *domain.User, token, newPassword string) error {
	if reasons := passwordPolicy(newPassword); len(reasons) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidToken, strings.Join(reasons, " "))
	}
	err := s.ledger.VerifyCode(ctx, u.Email, domain.OTPTypeEmail, domain.PurposePasswordReset, token)
	if errors.Is(err, domain.ErrInvalidOrExpiredOtp) {
		return fmt.Errorf("%w: the reset token is invalid or expired", domain.ErrInvalidToken)
	}
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPasswordHash(ctx, u.UserID, string(hash)); err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return s.tokens.RevokeAll(ctx, u.UserID)
}

func passwordPolicy(p string) []string {
	var reasons []string
	if len(p) < minPasswordLen {
		reasons = append(reasons, fmt.Sprintf("Passwords must be at least %d characters.", minPasswordLen))
	}
	if len(p) > maxPasswordLen {
		reasons = append(reasons, fmt.Sprintf("Passwords must be at most %d bytes.", maxPasswordLen))
	}
	return reasons
}
