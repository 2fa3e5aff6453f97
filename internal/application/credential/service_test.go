package credential

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/njala-api/internal/domain"
	"github.com/njala-api/internal/pkg/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) SetRole(ctx context.Context, userID string, role domain.Role) error {
	return m.Called(ctx, userID, role).Error(0)
}
func (m *mockUserStore) SetEmailConfirmed(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockUserStore) SetLastLogin(ctx context.Context, userID string, at time.Time) error {
	return m.Called(ctx, userID, at).Error(0)
}
func (m *mockUserStore) SetPasswordHash(ctx context.Context, userID, hash string) error {
	return m.Called(ctx, userID, hash).Error(0)
}

type mockLedger struct{ mock.Mock }

func (m *mockLedger) Issue(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose) (string, error) {
	args := m.Called(ctx, target, typ, purpose)
	return args.String(0), args.Error(1)
}
func (m *mockLedger) VerifyCode(ctx context.Context, target string, typ domain.OTPType, purpose domain.OTPPurpose, code string) error {
	return m.Called(ctx, target, typ, purpose, code).Error(0)
}

type mockRevoker struct{ mock.Mock }

func (m *mockRevoker) RevokeAll(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

// --- helpers ---

var fixedNow = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func newSvc(us *mockUserStore, l *mockLedger, rv *mockRevoker) Service {
	return NewService(ServiceDeps{
		UserRepo:   us,
		Ledger:     l,
		Tokens:     rv,
		BcryptCost: bcrypt.MinCost,
		Now:        func() time.Time { return fixedNow },
	})
}

func hashed(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

// --- Create ---

func TestCreate_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	us.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)
	svc := newSvc(us, &mockLedger{}, &mockRevoker{})

	u, err := svc.Create(context.Background(), &domain.User{Email: " Alice@Example.com", FullName: "Alice A"}, "pw123456")
	require.NoError(t, err)
	assert.True(t, id.Valid(u.UserID))
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, domain.RoleStudent, u.Role)
	assert.Equal(t, domain.AuthProviderLocal, u.AuthProvider)
	assert.False(t, u.EmailConfirmed)
	assert.Equal(t, fixedNow, u.CreatedAt)
	assert.NotEqual(t, "pw123456", u.PasswordHash)
	assert.True(t, svc.VerifyPassword(u, "pw123456"))
}

func TestCreate_DuplicateEmail(t *testing.T) {
	us := &mockUserStore{}
	us.On("Create", mock.Anything, mock.Anything).Return(domain.ErrDuplicateEmail)
	svc := newSvc(us, &mockLedger{}, &mockRevoker{})

	_, err := svc.Create(context.Background(), &domain.User{Email: "a@b.com"}, "pw123456")
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
}

func TestCreate_WeakPassword(t *testing.T) {
	us := &mockUserStore{}
	svc := newSvc(us, &mockLedger{}, &mockRevoker{})

	_, err := svc.Create(context.Background(), &domain.User{Email: "a@b.com"}, "12345")
	assert.ErrorIs(t, err, domain.ErrWeakPassword)
	_, err = svc.Create(context.Background(), &domain.User{Email: "a@b.com"}, strings.Repeat("x", 73))
	assert.ErrorIs(t, err, domain.ErrWeakPassword)
	us.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_KeepsExplicitRole(t *testing.T) {
	us := &mockUserStore{}
	us.On("Create", mock.Anything, mock.Anything).Return(nil)
	svc := newSvc(us, &mockLedger{}, &mockRevoker{})

	u, err := svc.Create(context.Background(), &domain.User{Email: "x@y.com", Role: domain.RoleAdmin}, "pw123456")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
}

// --- lookups & password ---

func TestFindByEmail_Normalises(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "alice@example.com").Return(&domain.User{UserID: "u1"}, nil)
	svc := newSvc(us, &mockLedger{}, &mockRevoker{})

	u, err := svc.FindByEmail(context.Background(), "ALICE@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
}

func TestFindByID_RejectsMalformedID(t *testing.T) {
	us := &mockUserStore{}
	svc := newSvc(us, &mockLedger{}, &mockRevoker{})

	_, err := svc.FindByID(context.Background(), "EMAIL#alice@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	us.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestVerifyPassword(t *testing.T) {
	svc := newSvc(&mockUserStore{}, &mockLedger{}, &mockRevoker{})
	u := &domain.User{PasswordHash: hashed(t, "pw123456")}
	assert.True(t, svc.VerifyPassword(u, "pw123456"))
	assert.False(t, svc.VerifyPassword(u, "pw1234567"))
	assert.False(t, svc.VerifyPassword(&domain.User{}, ""))
	assert.False(t, svc.VerifyPassword(nil, "x"))
}

// --- mutations ---

func TestAssignRole(t *testing.T) {
	us := &mockUserStore{}
	us.On("SetRole", mock.Anything, "u1", domain.RoleAdmin).Return(nil)
	svc := newSvc(us, &mockLedger{}, &mockRevoker{})

	u := &domain.User{UserID: "u1", Role: domain.RoleStudent}
	require.NoError(t, svc.AssignRole(context.Background(), u, domain.RoleAdmin))
	assert.Equal(t, domain.RoleAdmin, u.Role)

	assert.ErrorIs(t, svc.AssignRole(context.Background(), u, "Root"), domain.ErrBadRequest)
}

func TestConfirmEmail_Idempotent(t *testing.T) {
	us := &mockUserStore{}
	us.On("SetEmailConfirmed", mock.Anything, "u1").Return(nil).Once()
	svc := newSvc(us, &mockLedger{}, &mockRevoker{})

	u := &domain.User{UserID: "u1"}
	require.NoError(t, svc.ConfirmEmail(context.Background(), u))
	require.NoError(t, svc.ConfirmEmail(context.Background(), u))
	assert.True(t, u.EmailConfirmed)
	us.AssertNumberOfCalls(t, "SetEmailConfirmed", 1)
}

func TestTouchLastLogin(t *testing.T) {
	us := &mockUserStore{}
	us.On("SetLastLogin", mock.Anything, "u1", fixedNow).Return(nil)
	svc := newSvc(us, &mockLedger{}, &mockRevoker{})

	u := &domain.User{UserID: "u1"}
	require.NoError(t, svc.TouchLastLogin(context.Background(), u))
	require.NotNil(t, u.LastLoginAt)
	assert.Equal(t, fixedNow, *u.LastLoginAt)
}

// --- password reset ---

func TestGeneratePasswordResetToken(t *testing.T) {
	l := &mockLedger{}
	l.On("Issue", mock.Anything, "alice@example.com", domain.OTPTypeEmail, domain.PurposePasswordReset).Return("tok", nil)
	svc := newSvc(&mockUserStore{}, l, &mockRevoker{})

	tok, err := svc.GeneratePasswordResetToken(context.Background(), &domain.User{Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}

func TestResetPassword_HappyPathRevokesRefreshTokens(t *testing.T) {
	us, l, rv := &mockUserStore{}, &mockLedger{}, &mockRevoker{}
	l.On("VerifyCode", mock.Anything, "alice@example.com", domain.OTPTypeEmail, domain.PurposePasswordReset, "tok").Return(nil)
	us.On("SetPasswordHash", mock.Anything, "u1", mock.AnythingOfType("string")).Return(nil)
	rv.On("RevokeAll", mock.Anything, "u1").Return(nil)
	svc := newSvc(us, l, rv)

	u := &domain.User{UserID: "u1", Email: "alice@example.com", PasswordHash: hashed(t, "oldpass1")}
	require.NoError(t, svc.ResetPassword(context.Background(), u, "tok", "newpass1"))
	assert.True(t, svc.VerifyPassword(u, "newpass1"))
	rv.AssertExpectations(t)
}

func TestResetPassword_InvalidToken(t *testing.T) {
	us, l, rv := &mockUserStore{}, &mockLedger{}, &mockRevoker{}
	l.On("VerifyCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything, "bad").Return(domain.ErrInvalidOrExpiredOtp)
	svc := newSvc(us, l, rv)

	err := svc.ResetPassword(context.Background(), &domain.User{UserID: "u1", Email: "a@b.com"}, "bad", "newpass1")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	us.AssertNotCalled(t, "SetPasswordHash", mock.Anything, mock.Anything, mock.Anything)
	rv.AssertNotCalled(t, "RevokeAll", mock.Anything, mock.Anything)
}

func TestResetPassword_WeakPasswordDoesNotConsumeToken(t *testing.T) {
	l := &mockLedger{}
	svc := newSvc(&mockUserStore{}, l, &mockRevoker{})

	err := svc.ResetPassword(context.Background(), &domain.User{UserID: "u1", Email: "a@b.com"}, "tok", "123")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	assert.Contains(t, err.Error(), "at least 6 characters")
	l.AssertNotCalled(t, "VerifyCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResetPassword_LedgerInfraErrorPropagates(t *testing.T) {
	l := &mockLedger{}
	l.On("VerifyCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("dynamo down"))
	svc := newSvc(&mockUserStore{}, l, &mockRevoker{})

	err := svc.ResetPassword(context.Background(), &domain.User{UserID: "u1", Email: "a@b.com"}, "tok", "newpass1")
	assert.EqualError(t, err, "dynamo down")
	assert.False(t, errors.Is(err, domain.ErrInvalidToken))
}
