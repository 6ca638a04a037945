package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	"github.com/noah-isme/learnhub-api/pkg/database"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type accountRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type passwordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

var accountMessages = messageOverrides{
	"name.required":     "Name, email and password are required",
	"email.required":    "Name, email and password are required",
	"password.required": "Name, email and password are required",
	"email.email":       "Email must be a valid email address",
	"password.min":      "Password must be at least 8 characters",
	"password.max":      "Password must be at most 72 characters",
}

// NormalizeEmail lower-cases and trims an address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// createAccount stores a new active account with the given role. Duplicate
// emails are rejected by the pre-check and, for concurrent requests, by the
// unique index.
func createAccount(ctx context.Context, repo accountRepository, hasher passwordHasher, name, email, password string, role models.Role) (*models.User, error) {
	if _, err := repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.ErrDuplicateEmail
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := repo.Create(ctx, user); err != nil {
		if database.IsUniqueViolation(err, repository.EmailUniqueConstraint) {
			return nil, appErrors.ErrDuplicateEmail
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	return user, nil
}

// UserService provisions privileged accounts.
type UserService struct {
	repo      accountRepository
	hasher    passwordHasher
	audit     auditTrail
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo accountRepository, auditRepo auditRepository, hasher passwordHasher, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &UserService{
		repo:      repo,
		hasher:    hasher,
		audit:     auditTrail{repo: auditRepo, logger: logger},
		validator: validate,
		logger:    logger,
	}
}

// CreateInstructor creates an instructor account on behalf of an admin.
func (s *UserService) CreateInstructor(ctx context.Context, actor models.Actor, req models.CreateInstructorRequest, meta models.RequestMeta) (*models.UserInfo, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, accountMessages)
	}

	user, err := createAccount(ctx, s.repo, s.hasher, req.Name, req.Email, req.Password, models.RoleInstructor)
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, actor.UserID, models.AuditActionInstructorCreate, "users", user.ID, meta, map[string]interface{}{"email": user.Email})
	s.logger.Info("instructor created", zap.String("user_id", user.ID), zap.String("by", actor.UserID))

	info := user.Info()
	return &info, nil
}

// CreateAdmin creates an admin account. It is only reachable from the
// seed-admin command; no HTTP route grants the admin role.
func (s *UserService) CreateAdmin(ctx context.Context, req models.CreateInstructorRequest) (*models.UserInfo, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, accountMessages)
	}

	user, err := createAccount(ctx, s.repo, s.hasher, req.Name, req.Email, req.Password, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.audit.record(ctx, "", models.AuditActionAdminCreate, "users", user.ID, models.RequestMeta{UserAgent: "seed-admin"}, map[string]interface{}{"email": user.Email})

	info := user.Info()
	return &info, nil
}
