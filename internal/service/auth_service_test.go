package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type memoryUserRepo struct {
	mu        sync.Mutex
	users     map[string]*models.User
	createErr error
	findErr   error
}

func newMemoryUserRepo(users ...*models.User) *memoryUserRepo {
	repo := &memoryUserRepo{users: map[string]*models.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *memoryUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *u
	return &clone, nil
}

func (m *memoryUserRepo) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	user.ID = "user-" + strings.SplitN(user.Email, "@", 2)[0]
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memoryUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = updatedAt
	return nil
}

type recordingAuditRepo struct {
	logs []*models.AuditLog
	err  error
}

func (r *recordingAuditRepo) Create(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, log)
	return r.err
}

func (r *recordingAuditRepo) actions() []string {
	out := make([]string, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l.Action)
	}
	return out
}

// plainHasher keeps tests fast; bcrypt itself is covered in password_hasher_test.go.
type plainHasher struct {
	err error
}

func (h plainHasher) Hash(plaintext string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "hashed:" + plaintext, nil
}

func (h plainHasher) Verify(plaintext, hash string) bool {
	return hash == "hashed:"+plaintext
}

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec("test-secret", time.Hour)
	require.NoError(t, err)
	return codec
}

func newTestAuthService(t *testing.T, repo *memoryUserRepo, audit *recordingAuditRepo) (*AuthService, *TokenCodec) {
	t.Helper()
	codec := newTestCodec(t)
	return NewAuthService(repo, audit, plainHasher{}, codec, NewMetricsService(), NewValidator(), zap.NewNop()), codec
}

func seededUser(role models.Role, active bool) *models.User {
	return &models.User{
		ID:           "user-1",
		Name:         "Ada",
		Email:        "ada@example.com",
		PasswordHash: "hashed:secret123",
		Role:         role,
		IsActive:     active,
	}
}

func TestAuthServiceRegisterCreatesLearnerSession(t *testing.T) {
	repo := newMemoryUserRepo()
	audit := &recordingAuditRepo{}
	svc, codec := newTestAuthService(t, repo, audit)

	session, err := svc.Register(context.Background(), models.RegisterRequest{
		Name:     "  Grace  ",
		Email:    "  Grace@Example.COM ",
		Password: "password1",
	}, models.RequestMeta{IP: "10.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, "grace@example.com", session.User.Email)
	assert.Equal(t, "Grace", session.User.Name)
	assert.Equal(t, models.RoleLearner, session.User.Role)

	claims, err := codec.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.UserID)
	assert.Equal(t, models.RoleLearner, claims.Role)

	stored, err := repo.FindByEmail(context.Background(), "grace@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hashed:password1", stored.PasswordHash)
	assert.True(t, stored.IsActive)
	assert.Equal(t, []string{models.AuditActionRegister}, audit.actions())
}

func TestAuthServiceRegisterValidation(t *testing.T) {
	svc, _ := newTestAuthService(t, newMemoryUserRepo(), &recordingAuditRepo{})

	cases := []struct {
		name    string
		req     models.RegisterRequest
		message string
	}{
		{"missing name", models.RegisterRequest{Email: "a@example.com", Password: "password1"}, "Name, email and password are required"},
		{"missing password", models.RegisterRequest{Name: "A", Email: "a@example.com"}, "Name, email and password are required"},
		{"bad email", models.RegisterRequest{Name: "A", Email: "nope", Password: "password1"}, "Email must be a valid email address"},
		{"short password", models.RegisterRequest{Name: "A", Email: "a@example.com", Password: "short"}, "Password must be at least 8 characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.req, models.RequestMeta{})
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
			assert.Equal(t, tc.message, appErr.Message)
		})
	}
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	repo := newMemoryUserRepo(seededUser(models.RoleLearner, true))
	svc, _ := newTestAuthService(t, repo, &recordingAuditRepo{})

	_, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Ada", Email: "ADA@example.com", Password: "password1"}, models.RequestMeta{})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrDuplicateEmail)
	assert.Equal(t, 409, appErrors.FromError(err).Status)
}

func TestAuthServiceRegisterDuplicateRaceHitsUniqueIndex(t *testing.T) {
	repo := newMemoryUserRepo()
	repo.createErr = &pq.Error{Code: "23505", Constraint: repository.EmailUniqueConstraint}
	svc, _ := newTestAuthService(t, repo, &recordingAuditRepo{})

	_, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "password1"}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrDuplicateEmail)
}

func TestAuthServiceLogin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		audit := &recordingAuditRepo{}
		svc, codec := newTestAuthService(t, newMemoryUserRepo(seededUser(models.RoleInstructor, true)), audit)

		session, err := svc.Login(context.Background(), models.LoginRequest{Email: " ADA@example.com", Password: "secret123"}, models.RequestMeta{})
		require.NoError(t, err)
		assert.Equal(t, "user-1", session.User.ID)
		assert.WithinDuration(t, time.Now().Add(codec.TTL()), session.ExpiresAt, 5*time.Second)
		assert.Equal(t, []string{models.AuditActionLogin}, audit.actions())
	})

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		svc, _ := newTestAuthService(t, newMemoryUserRepo(seededUser(models.RoleLearner, true)), &recordingAuditRepo{})

		_, errUnknown := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "secret123"}, models.RequestMeta{})
		_, errWrong := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "wrong-pass"}, models.RequestMeta{})

		require.Error(t, errUnknown)
		require.Error(t, errWrong)
		assert.Equal(t, appErrors.FromError(errUnknown).Message, appErrors.FromError(errWrong).Message)
		assert.Equal(t, "Invalid email or password", appErrors.FromError(errWrong).Message)
		assert.Equal(t, 401, appErrors.FromError(errWrong).Status)
	})

	t.Run("inactive account refused after password check", func(t *testing.T) {
		svc, _ := newTestAuthService(t, newMemoryUserRepo(seededUser(models.RoleLearner, false)), &recordingAuditRepo{})

		_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "wrong-pass"}, models.RequestMeta{})
		assert.Equal(t, 401, appErrors.FromError(err).Status)

		_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret123"}, models.RequestMeta{})
		assert.Equal(t, 403, appErrors.FromError(err).Status)
		assert.Equal(t, "Account is inactive", appErrors.FromError(err).Message)
	})

	t.Run("repository failure is internal", func(t *testing.T) {
		repo := newMemoryUserRepo()
		repo.findErr = errors.New("connection reset")
		svc, _ := newTestAuthService(t, repo, &recordingAuditRepo{})

		_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret123"}, models.RequestMeta{})
		assert.Equal(t, 500, appErrors.FromError(err).Status)
	})
}

func TestAuthServiceMe(t *testing.T) {
	svc, _ := newTestAuthService(t, newMemoryUserRepo(seededUser(models.RoleLearner, true)), &recordingAuditRepo{})

	info, err := svc.Me(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", info.Email)

	_, err = svc.Me(context.Background(), "gone")
	assert.Equal(t, 404, appErrors.FromError(err).Status)
	assert.Equal(t, "User not found", appErrors.FromError(err).Message)
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo := newMemoryUserRepo(seededUser(models.RoleInstructor, true))
	audit := &recordingAuditRepo{}
	svc, _ := newTestAuthService(t, repo, audit)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, "user-1", models.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "newpassword"}, models.RequestMeta{})
	assert.Equal(t, 400, appErrors.FromError(err).Status)
	assert.Equal(t, "Current password is incorrect", appErrors.FromError(err).Message)

	err = svc.ChangePassword(ctx, "user-1", models.ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "short"}, models.RequestMeta{})
	assert.Equal(t, 400, appErrors.FromError(err).Status)

	require.NoError(t, svc.ChangePassword(ctx, "user-1", models.ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "newpassword"}, models.RequestMeta{}))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "newpassword"}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Contains(t, audit.actions(), models.AuditActionPasswordChange)
}

func TestAuthServiceAuditFailureIsNotSurfaced(t *testing.T) {
	audit := &recordingAuditRepo{err: errors.New("audit table missing")}
	svc, _ := newTestAuthService(t, newMemoryUserRepo(), audit)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "password1"}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Len(t, audit.logs, 1)
}
