package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/njala-api/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Service is the SuperAdmin surface over accounts.
type Service interface {
	List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Promote(ctx context.Context, userID string) (*domain.User, error)
	CreateAdmin(ctx context.Context, req domain.RegisterRequest) (*domain.User, error)
	Delete(ctx context.Context, userID string) error
	// SeedSuperAdmin creates the initial SuperAdmin if no account holds email yet.
	SeedSuperAdmin(ctx context.Context, email, password string) error
}

type credentialStore interface {
	FindByID(ctx context.Context, userID string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User, plaintext string) (*domain.User, error)
	AssignRole(ctx context.Context, u *domain.User, role domain.Role) error
}

type userStore interface {
	ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error)
	Delete(ctx context.Context, u *domain.User) error
}

type tokenRevoker interface {
	RevokeAll(ctx context.Context, userID string) error
}

type auditRecorder interface {
	Record(ctx context.Context, subject *domain.User, action, description string)
}

type ServiceDeps struct {
	Credentials credentialStore
	UserRepo    userStore
	Tokens      tokenRevoker
	Audit       auditRecorder
}

type service struct {
	creds  credentialStore
	repo   userStore
	tokens tokenRevoker
	audit  auditRecorder
}

func NewService(deps ServiceDeps) Service {
	return &service{
		creds:  deps.Credentials,
		repo:   deps.UserRepo,
		tokens: deps.Tokens,
		audit:  deps.Audit,
	}
}

func (s *service) List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error) {
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.repo.ScanPage(ctx, int32(limit), cursor)
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.creds.FindByID(ctx, userID)
}

// Promote grants the Admin role. A SuperAdmin is never demoted through this path.
func (s *service) Promote(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch u.Role {
	case domain.RoleSuperAdmin:
		return nil, fmt.Errorf("cannot change the role of a SuperAdmin: %w", domain.ErrForbidden)
	case domain.RoleAdmin:
		return u, nil
	case domain.RoleStudent:
	}
	if err := s.creds.AssignRole(ctx, u, domain.RoleAdmin); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, nil, domain.ActionPromoteUser, fmt.Sprintf("Promoted %s (%s) to Admin", u.Email, u.UserID))
	return u, nil
}

// CreateAdmin creates a confirmed Admin account on behalf of a SuperAdmin.
func (s *service) CreateAdmin(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	u, err := s.creds.Create(ctx, &domain.User{
		Email:          req.Email,
		FullName:       req.FullName,
		Role:           domain.RoleAdmin,
		EmailConfirmed: true,
	}, req.Password)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, nil, domain.ActionCreateAdmin, fmt.Sprintf("Created Admin %s (%s)", u.Email, u.UserID))
	return u, nil
}

// Delete removes the account and revokes its refresh tokens. SuperAdmin accounts cannot be deleted.
func (s *service) Delete(ctx context.Context, userID string) error {
	u, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role == domain.RoleSuperAdmin {
		return fmt.Errorf("cannot delete a SuperAdmin: %w", domain.ErrForbidden)
	}
	if err := s.repo.Delete(ctx, u); err != nil {
		return err
	}
	if err := s.tokens.RevokeAll(ctx, u.UserID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	s.audit.Record(ctx, nil, domain.ActionDeleteUser, fmt.Sprintf("Deleted %s (%s)", u.Email, u.UserID))
	return nil
}

func (s *service) SeedSuperAdmin(ctx context.Context, email, password string) error {
	if email == "" {
		return nil
	}
	_, err := s.creds.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("lookup superadmin: %w", err)
	}
	if password == "" {
		slog.Warn("superadmin not seeded: SUPERADMIN_PASSWORD is empty", "email", email)
		return nil
	}
	u, err := s.creds.Create(ctx, &domain.User{
		Email:          email,
		FullName:       "Super Admin",
		Role:           domain.RoleSuperAdmin,
		EmailConfirmed: true,
	}, password)
	if errors.Is(err, domain.ErrDuplicateEmail) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed superadmin: %w", err)
	}
	slog.Info("superadmin seeded", "user_id", u.UserID, "email", u.Email)
	return nil
}
