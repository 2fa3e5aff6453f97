package user

import (
	"context"
	"errors"
	"testing"

	"github.com/njala-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockCredentials struct{ mock.Mock }

func (m *mockCredentials) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockCredentials) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockCredentials) Create(ctx context.Context, u *domain.User, plaintext string) (*domain.User, error) {
	args := m.Called(ctx, u, plaintext)
	if out, _ := args.Get(0).(*domain.User); out != nil {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockCredentials) AssignRole(ctx context.Context, u *domain.User, role domain.Role) error {
	err := m.Called(ctx, u, role).Error(0)
	if err == nil {
		u.Role = role
	}
	return err
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error) {
	args := m.Called(ctx, limit, cursor)
	users, _ := args.Get(0).([]domain.User)
	return users, args.String(1), args.Error(2)
}
func (m *mockUserStore) Delete(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

type mockRevoker struct{ mock.Mock }

func (m *mockRevoker) RevokeAll(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockAudit struct{ mock.Mock }

func (m *mockAudit) Record(ctx context.Context, subject *domain.User, action, description string) {
	m.Called(ctx, subject, action, description)
}

// --- helpers ---

func newSvc() (*mockCredentials, *mockUserStore, *mockRevoker, *mockAudit, Service) {
	creds, repo, tokens, audit := &mockCredentials{}, &mockUserStore{}, &mockRevoker{}, &mockAudit{}
	svc := NewService(ServiceDeps{Credentials: creds, UserRepo: repo, Tokens: tokens, Audit: audit})
	return creds, repo, tokens, audit, svc
}

func student() *domain.User {
	return &domain.User{UserID: "01J0000000000000000000000S", Email: "stu@example.com", Role: domain.RoleStudent}
}

// --- List ---

func TestList_DefaultAndClampedLimit(t *testing.T) {
	_, repo, _, _, svc := newSvc()
	repo.On("ScanPage", mock.Anything, int32(defaultPageSize), "").Return([]domain.User{*student()}, "next", nil).Once()
	repo.On("ScanPage", mock.Anything, int32(maxPageSize), "next").Return([]domain.User{}, "", nil).Once()

	users, cursor, err := svc.List(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, "next", cursor)

	_, cursor, err = svc.List(context.Background(), 10000, "next")
	require.NoError(t, err)
	assert.Empty(t, cursor)
	repo.AssertExpectations(t)
}

// --- Promote ---

func TestPromote_StudentBecomesAdmin(t *testing.T) {
	creds, _, _, audit, svc := newSvc()
	u := student()
	creds.On("FindByID", mock.Anything, u.UserID).Return(u, nil)
	creds.On("AssignRole", mock.Anything, u, domain.RoleAdmin).Return(nil)
	audit.On("Record", mock.Anything, (*domain.User)(nil), domain.ActionPromoteUser, mock.Anything).Return()

	got, err := svc.Promote(context.Background(), u.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	audit.AssertExpectations(t)
}

func TestPromote_AdminIsNoOp(t *testing.T) {
	creds, _, _, audit, svc := newSvc()
	u := student()
	u.Role = domain.RoleAdmin
	creds.On("FindByID", mock.Anything, u.UserID).Return(u, nil)

	got, err := svc.Promote(context.Background(), u.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	creds.AssertNotCalled(t, "AssignRole", mock.Anything, mock.Anything, mock.Anything)
	audit.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPromote_SuperAdminForbidden(t *testing.T) {
	creds, _, _, _, svc := newSvc()
	u := student()
	u.Role = domain.RoleSuperAdmin
	creds.On("FindByID", mock.Anything, u.UserID).Return(u, nil)

	_, err := svc.Promote(context.Background(), u.UserID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestPromote_NotFound(t *testing.T) {
	creds, _, _, _, svc := newSvc()
	creds.On("FindByID", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	_, err := svc.Promote(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- CreateAdmin ---

func TestCreateAdmin_ConfirmedAdmin(t *testing.T) {
	creds, _, _, audit, svc := newSvc()
	created := &domain.User{UserID: "a1", Email: "adm@example.com", Role: domain.RoleAdmin, EmailConfirmed: true}
	creds.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Role == domain.RoleAdmin && u.EmailConfirmed && u.Email == "adm@example.com"
	}), "pw123456").Return(created, nil)
	audit.On("Record", mock.Anything, (*domain.User)(nil), domain.ActionCreateAdmin, mock.Anything).Return()

	u, err := svc.CreateAdmin(context.Background(), domain.RegisterRequest{Email: "adm@example.com", Password: "pw123456", FullName: "Adm"})
	require.NoError(t, err)
	assert.Equal(t, "a1", u.UserID)
	audit.AssertExpectations(t)
}

func TestCreateAdmin_Duplicate(t *testing.T) {
	creds, _, _, audit, svc := newSvc()
	creds.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrDuplicateEmail)

	_, err := svc.CreateAdmin(context.Background(), domain.RegisterRequest{Email: "adm@example.com", Password: "pw123456", FullName: "Adm"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	audit.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// --- Delete ---

func TestDelete_RemovesAndRevokes(t *testing.T) {
	creds, repo, tokens, audit, svc := newSvc()
	u := student()
	creds.On("FindByID", mock.Anything, u.UserID).Return(u, nil)
	repo.On("Delete", mock.Anything, u).Return(nil)
	tokens.On("RevokeAll", mock.Anything, u.UserID).Return(nil)
	audit.On("Record", mock.Anything, (*domain.User)(nil), domain.ActionDeleteUser, mock.Anything).Return()

	require.NoError(t, svc.Delete(context.Background(), u.UserID))
	repo.AssertExpectations(t)
	tokens.AssertExpectations(t)
	audit.AssertExpectations(t)
}

func TestDelete_SuperAdminForbidden(t *testing.T) {
	creds, repo, _, _, svc := newSvc()
	u := student()
	u.Role = domain.RoleSuperAdmin
	creds.On("FindByID", mock.Anything, u.UserID).Return(u, nil)

	err := svc.Delete(context.Background(), u.UserID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDelete_StoreFailure(t *testing.T) {
	creds, repo, tokens, _, svc := newSvc()
	u := student()
	creds.On("FindByID", mock.Anything, u.UserID).Return(u, nil)
	repo.On("Delete", mock.Anything, u).Return(errors.New("dynamo down"))

	err := svc.Delete(context.Background(), u.UserID)
	assert.ErrorContains(t, err, "dynamo down")
	tokens.AssertNotCalled(t, "RevokeAll", mock.Anything, mock.Anything)
}

// --- SeedSuperAdmin ---

func TestSeedSuperAdmin_CreatesWhenMissing(t *testing.T) {
	creds, _, _, _, svc := newSvc()
	creds.On("FindByEmail", mock.Anything, "root@njala.edu").Return(nil, domain.ErrNotFound)
	creds.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Role == domain.RoleSuperAdmin && u.EmailConfirmed
	}), "SuperSecurePassword123!").Return(&domain.User{UserID: "s1", Email: "root@njala.edu"}, nil)

	require.NoError(t, svc.SeedSuperAdmin(context.Background(), "root@njala.edu", "SuperSecurePassword123!"))
	creds.AssertExpectations(t)
}

func TestSeedSuperAdmin_Idempotent(t *testing.T) {
	creds, _, _, _, svc := newSvc()
	creds.On("FindByEmail", mock.Anything, "root@njala.edu").Return(&domain.User{UserID: "s1"}, nil)

	require.NoError(t, svc.SeedSuperAdmin(context.Background(), "root@njala.edu", "pw123456"))
	creds.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestSeedSuperAdmin_SkipsWithoutPassword(t *testing.T) {
	creds, _, _, _, svc := newSvc()
	creds.On("FindByEmail", mock.Anything, "root@njala.edu").Return(nil, domain.ErrNotFound)

	require.NoError(t, svc.SeedSuperAdmin(context.Background(), "root@njala.edu", ""))
	creds.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestSeedSuperAdmin_LookupFailure(t *testing.T) {
	creds, _, _, _, svc := newSvc()
	creds.On("FindByEmail", mock.Anything, mock.Anything).Return(nil, errors.New("dynamo down"))

	assert.Error(t, svc.SeedSuperAdmin(context.Background(), "root@njala.edu", "pw123456"))
}
