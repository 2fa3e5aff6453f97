package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/njala-api/internal/domain"
	jwtinfra "github.com/njala-api/internal/infrastructure/jwt"
	"github.com/njala-api/internal/pkg/id"
	pkgtoken "github.com/njala-api/internal/pkg/token"
)

type refreshStore interface {
	Put(ctx context.Context, t *domain.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	Rotate(ctx context.Context, oldHash string, next *domain.RefreshToken, now time.Time) error
	RevokeAllByUser(ctx context.Context, userID string) error
}

type userGetter interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type jwtSigner interface {
	Sign(u *domain.User) (string, time.Time, error)
	Verify(tokenStr string) (*jwtinfra.Claims, error)
}

// Service mints session tokens and manages the server-side refresh-token lifecycle.
type Service interface {
	IssueSessionToken(u *domain.User) (string, time.Time, error)
	IssueRefreshToken(ctx context.Context, userID string) (*domain.RefreshToken, string, error)
	// IssuePair mints a session token and a fresh refresh token for u.
	IssuePair(ctx context.Context, u *domain.User) (*domain.TokenPair, error)
	// Rotate exchanges a refresh token for a new pair. The presented token is revoked
	// in the same transaction that stores its successor.
	Rotate(ctx context.Context, refreshToken string) (*domain.TokenPair, *domain.User, error)
	Verify(tokenStr string) (*jwtinfra.Claims, error)
	RevokeAll(ctx context.Context, userID string) error
}

type ServiceDeps struct {
	RefreshRepo     refreshStore
	UserRepo        userGetter
	JWTProvider     jwtSigner
	RefreshTokenDur time.Duration
	Retention       time.Duration
	Now             func() time.Time
}

type service struct {
	repo       refreshStore
	users      userGetter
	jwt        jwtSigner
	refreshDur time.Duration
	retention  time.Duration
	now        func() time.Time
}

func NewService(deps ServiceDeps) Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{
		repo:       deps.RefreshRepo,
		users:      deps.UserRepo,
		jwt:        deps.JWTProvider,
		refreshDur: deps.RefreshTokenDur,
		retention:  deps.Retention,
		now:        deps.Now,
	}
}

func (s *service) IssueSessionToken(u *domain.User) (string, time.Time, error) {
	return s.jwt.Sign(u)
}

func (s *service) IssueRefreshToken(ctx context.Context, userID string) (*domain.RefreshToken, string, error) {
	rt, raw, err := s.newRefresh(userID)
	if err != nil {
		return nil, "", err
	}
	if err := s.repo.Put(ctx, rt); err != nil {
		return nil, "", fmt.Errorf("store refresh token: %w", err)
	}
	return rt, raw, nil
}

func (s *service) IssuePair(ctx context.Context, u *domain.User) (*domain.TokenPair, error) {
	bearer, exp, err := s.jwt.Sign(u)
	if err != nil {
		return nil, err
	}
	rt, raw, err := s.IssueRefreshToken(ctx, u.UserID)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		Token:            bearer,
		TokenExpiresAt:   exp,
		RefreshToken:     raw,
		RefreshExpiresAt: time.Unix(rt.ExpiresAt, 0).UTC(),
	}, nil
}

func (s *service) Rotate(ctx context.Context, refreshToken string) (*domain.TokenPair, *domain.User, error) {
	if refreshToken == "" {
		return nil, nil, domain.ErrInvalidOrExpiredRefresh
	}
	oldHash := pkgtoken.Fingerprint(refreshToken)
	old, err := s.repo.GetByHash(ctx, oldHash)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, domain.ErrInvalidOrExpiredRefresh
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	now := s.now()
	if !old.Usable(now) {
		return nil, nil, domain.ErrInvalidOrExpiredRefresh
	}
	u, err := s.users.Get(ctx, old.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, domain.ErrInvalidOrExpiredRefresh
	}
	if err != nil {
		return nil, nil, err
	}

	next, raw, err := s.newRefresh(u.UserID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.Rotate(ctx, oldHash, next, now); err != nil {
		return nil, nil, err
	}
	bearer, exp, err := s.jwt.Sign(u)
	if err != nil {
		return nil, nil, err
	}
	return &domain.TokenPair{
		Token:            bearer,
		TokenExpiresAt:   exp,
		RefreshToken:     raw,
		RefreshExpiresAt: time.Unix(next.ExpiresAt, 0).UTC(),
	}, u, nil
}

func (s *service) Verify(tokenStr string) (*jwtinfra.Claims, error) {
	return s.jwt.Verify(tokenStr)
}

func (s *service) RevokeAll(ctx context.Context, userID string) error {
	return s.repo.RevokeAllByUser(ctx, userID)
}

func (s *service) newRefresh(userID string) (*domain.RefreshToken, string, error) {
	raw, err := pkgtoken.NewRefreshToken()
	if err != nil {
		return nil, "", err
	}
	now := s.now().UTC()
	exp := now.Add(s.refreshDur)
	return &domain.RefreshToken{
		TokenHash: pkgtoken.Fingerprint(raw),
		ID:        id.New(),
		UserID:    userID,
		ExpiresAt: exp.Unix(),
		CreatedAt: now,
		TTL:       exp.Add(s.retention).Unix(),
	}, raw, nil
}
