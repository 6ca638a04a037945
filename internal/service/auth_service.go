package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type tokenIssuer interface {
	Issue(userID string, role models.Role) (string, time.Time, error)
}

var loginMessages = messageOverrides{
	"email":    "Email and password are required",
	"password": "Email and password are required",
}

var passwordChangeMessages = messageOverrides{
	"currentPassword.required": "Current and new password are required",
	"newPassword.required":     "Current and new password are required",
	"newPassword.min":          "New password must be at least 8 characters",
	"newPassword.max":          "New password must be at most 72 characters",
}

// AuthService provides authentication use cases.
type AuthService struct {
	repo      authUserRepository
	hasher    passwordHasher
	tokens    tokenIssuer
	audit     auditTrail
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, auditRepo auditRepository, hasher passwordHasher, tokens tokenIssuer, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &AuthService{
		repo:      repo,
		hasher:    hasher,
		tokens:    tokens,
		audit:     auditTrail{repo: auditRepo, logger: logger},
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Register creates a learner account and opens a session for it. The role is
// always learner regardless of input.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, meta models.RequestMeta) (*models.Session, error) {
	session, err := s.register(ctx, req, meta)
	s.metrics.ObserveAuthEvent(AuthEventRegister, outcome(err))
	return session, err
}

func (s *AuthService) register(ctx context.Context, req models.RegisterRequest, meta models.RequestMeta) (*models.Session, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, accountMessages)
	}

	user, err := createAccount(ctx, s.repo, s.hasher, req.Name, req.Email, req.Password, models.RoleLearner)
	if err != nil {
		return nil, err
	}

	session, err := s.openSession(user)
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, user.ID, models.AuditActionRegister, "auth", user.ID, meta, map[string]interface{}{"role": user.Role})
	return session, nil
}

// Login authenticates by email and password. An unknown email and a wrong
// password produce the same error. Inactive accounts are refused only after
// the password verifies.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, meta models.RequestMeta) (*models.Session, error) {
	session, err := s.login(ctx, req, meta)
	s.metrics.ObserveAuthEvent(AuthEventLogin, outcome(err))
	return session, err
}

func (s *AuthService) login(ctx context.Context, req models.LoginRequest, meta models.RequestMeta) (*models.Session, error) {
	req.Email = NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, loginMessages)
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, appErrors.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "Account is inactive")
	}

	session, err := s.openSession(user)
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, user.ID, models.AuditActionLogin, "auth", user.ID, meta, map[string]interface{}{"status": "success"})
	return session, nil
}

// Me returns the account behind a verified session.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	info := user.Info()
	return &info, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest, meta models.RequestMeta) error {
	err := s.changePassword(ctx, userID, req, meta)
	s.metrics.ObserveAuthEvent(AuthEventPassword, outcome(err))
	return err
}

func (s *AuthService) changePassword(ctx context.Context, userID string, req models.ChangePasswordRequest, meta models.RequestMeta) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, passwordChangeMessages)
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	if !s.hasher.Verify(req.CurrentPassword, user.PasswordHash) {
		return appErrors.Clone(appErrors.ErrValidation, "Current password is incorrect")
	}

	newHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	if err := s.repo.UpdatePassword(ctx, userID, newHash, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	s.audit.record(ctx, userID, models.AuditActionPasswordChange, "auth", userID, meta, map[string]interface{}{"status": "changed"})
	return nil
}

func (s *AuthService) openSession(user *models.User) (*models.Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &models.Session{User: user.Info(), Token: token, ExpiresAt: expiresAt}, nil
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return appErrors.FromError(err).Code
}
