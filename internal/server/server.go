package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/learnhub-api/api/swagger"
	"github.com/noah-isme/learnhub-api/internal/handler"
	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/pkg/config"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/learnhub-api/pkg/middleware/cors"
	"github.com/noah-isme/learnhub-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/learnhub-api/pkg/middleware/requestid"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

// Deps are the long-lived resources the HTTP server is built from. Redis may
// be nil.
type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *sqlx.DB
	Redis   *redis.Client
	Metrics *service.MetricsService
}

// New builds the gin engine with every route registered.
func New(deps Deps) (*gin.Engine, error) {
	cfg := deps.Config
	logr := deps.Logger
	if logr == nil {
		logr = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = service.NewMetricsService()
	}

	tokens, err := service.NewTokenCodec(cfg.JWT.Secret, cfg.JWT.Expiration)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	validate := service.NewValidator()
	hasher := service.NewPasswordHasher()

	userRepo := repository.NewUserRepository(deps.DB)
	courseRepo := repository.NewCourseRepository(deps.DB)
	enrollmentRepo := repository.NewEnrollmentRepository(deps.DB)
	auditRepo := repository.NewAuditRepository(deps.DB)

	var cacheRepo service.CacheRepository
	if deps.Redis != nil {
		cacheRepo = repository.NewCacheRepository(deps.Redis)
	}
	cache := service.NewCacheService(cacheRepo, metrics, cfg.Catalog.CacheTTL, logr, deps.Redis != nil)

	authSvc := service.NewAuthService(userRepo, auditRepo, hasher, tokens, metrics, validate, logr)
	userSvc := service.NewUserService(userRepo, auditRepo, hasher, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, cache, cfg.Catalog.CacheTTL, auditRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, metrics, logr)

	authz := middleware.NewAuthorizer(tokens, cfg.Cookie.Name)
	cookie := handler.SessionCookie{Name: cfg.Cookie.Name, Secure: cfg.Cookie.Secure, TTL: tokens.TTL()}

	authHandler := handler.NewAuthHandler(authSvc, cookie)
	adminHandler := handler.NewAdminHandler(userSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	catalogHandler := handler.NewCatalogHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	var pinger handler.Pinger
	if deps.DB != nil {
		pinger = deps.DB
	}
	metricsHandler := handler.NewMetricsHandler(metrics, pinger)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.PageGate(authz, cfg.Cookie.Secure))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// A nil *redis.Client must not reach the Counter interface as a typed nil.
	var counter ratelimit.Counter
	if deps.Redis != nil {
		counter = deps.Redis
	}
	authLimit := ratelimit.Middleware(counter, cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthWindow)

	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", authLimit, authHandler.Register)
	auth.POST("/login", authLimit, authHandler.Login)
	auth.POST("/logout", middleware.OptionalAuth(authz), middleware.Audit(auditRepo, logr, models.AuditActionLogout, "auth"), authHandler.Logout)
	auth.GET("/me", middleware.RequireAuth(authz), authHandler.Me)

	api.POST("/admin/instructors",
		middleware.RequireRolesWithMessage(authz, "Only admins can create instructors", models.RoleAdmin),
		adminHandler.CreateInstructor)

	instructor := api.Group("/instructor")
	courses := instructor.Group("/courses",
		middleware.RequireRolesWithMessage(authz, "Only instructors or admins can manage courses", models.RoleInstructor, models.RoleAdmin))
	courses.GET("", courseHandler.List)
	courses.POST("", courseHandler.Create)
	courses.GET("/stats", courseHandler.Stats)
	courses.GET("/export", courseHandler.Export)
	courses.GET("/:courseId", courseHandler.Get)
	courses.PATCH("/:courseId", courseHandler.Update)
	instructor.PATCH("/profile",
		middleware.RequireRolesWithMessage(authz, "Only instructors can update their profile", models.RoleInstructor),
		authHandler.ChangePassword)

	enrollments := api.Group("/enrollments", middleware.RequireAuth(authz))
	enrollments.POST("", enrollmentHandler.Enroll)
	enrollments.GET("", enrollmentHandler.List)

	api.GET("/learner/stats",
		middleware.RequireRolesWithMessage(authz, "Only learners can view these stats", models.RoleLearner),
		enrollmentHandler.Stats)

	api.GET("/courses", catalogHandler.List)
	api.GET("/courses/:courseId", catalogHandler.Get)

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "Not found"))
	})

	return r, nil
}

// Run serves handler on the configured port until ctx is cancelled, then
// shuts down gracefully.
func Run(ctx context.Context, cfg *config.Config, h http.Handler, logr *zap.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error after shutdown: %w", err)
		}
		logr.Info("server stopped")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}
