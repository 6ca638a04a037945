package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/pkg/config"
	"github.com/noah-isme/learnhub-api/pkg/database"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/logger"
)

// seed-admin creates an admin account. Self-registration only ever creates
// learners, so this is how the first admin comes to exist.
func main() {
	var (
		name     = flag.String("name", "Administrator", "admin display name")
		email    = flag.String("email", "", "admin email (required)")
		password = flag.String("password", "", "admin password; falls back to ADMIN_PASSWORD")
	)
	flag.Parse()

	if *password == "" {
		*password = os.Getenv("ADMIN_PASSWORD")
	}
	if *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	users := service.NewUserService(repository.NewUserRepository(db), repository.NewAuditRepository(db), service.NewPasswordHasher(), nil, logr)
	admin, err := users.CreateAdmin(ctx, models.CreateInstructorRequest{Name: *name, Email: *email, Password: *password})
	if err != nil {
		if errors.Is(err, appErrors.ErrDuplicateEmail) {
			logr.Info("admin already exists", zap.String("email", *email))
			return
		}
		logr.Fatal("failed to create admin", zap.Error(err))
	}

	logr.Info("admin created", zap.String("id", admin.ID), zap.String("email", admin.Email))
}
