// Package app wires configuration, storage and services into one container
// shared by the HTTP server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/vial-compliance-api/internal/handler"
	"github.com/noah-isme/vial-compliance-api/internal/models"
	"github.com/noah-isme/vial-compliance-api/internal/repository"
	"github.com/noah-isme/vial-compliance-api/internal/service"
	"github.com/noah-isme/vial-compliance-api/pkg/cache"
	"github.com/noah-isme/vial-compliance-api/pkg/config"
	"github.com/noah-isme/vial-compliance-api/pkg/database"
	"github.com/noah-isme/vial-compliance-api/pkg/storage"
)

const cachePrefix = "vial"

// App holds the long-lived dependencies of a running process.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Metrics     *service.MetricsService
	Cache       *service.CacheService
	Auth        *service.AuthService
	Users       *service.UserService
	Directory   *service.DirectoryService
	Enrollments *service.EnrollmentService
	Reports     *service.ComplianceReportService
	Exports     *service.ExportService
	Sweep       *service.SweepService
}

// New connects to PostgreSQL (and Redis when enabled), applies migrations if
// configured and builds every service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		version, err := database.Migrate(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("database schema ready", zap.Int("version", version))
	}

	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		// Redis is optional; the report falls back to direct reads.
		logger.Warn("redis unavailable, caching disabled", zap.Error(err))
		client = nil
	}

	a, err := Build(cfg, logger, db, client)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// Build assembles services over already opened connections. client may be nil.
func Build(cfg *config.Config, logger *zap.Logger, db *sqlx.DB, client *redis.Client) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()
	location := cfg.Lifecycle.Location()
	rules := service.LifecycleRules{DeadlineDays: cfg.Lifecycle.DeadlineDays, ValidityDays: cfg.Lifecycle.ValidityDays}

	persons := repository.NewPersonRepository(db)
	courses := repository.NewCourseRepository(db)
	inspectors := repository.NewOfficialRepository(db, models.OfficialInspector)
	judges := repository.NewOfficialRepository(db, models.OfficialJudge)
	enrollments := repository.NewEnrollmentRepository(db)
	users := repository.NewUserRepository(db)
	audits := repository.NewAuditRepository(db)

	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(client, cachePrefix, logger)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Reports.CacheTTL, logger, cacheRepo.Enabled())
	hasher := service.NewBcryptHasher(0)

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("prepare export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	reports := service.NewComplianceReportService(enrollments, service.ReportConfig{
		DefaultHorizonDays: cfg.Reports.DefaultHorizonDays,
		ExcludedStatuses:   service.ParseExcludedStatuses(cfg.Reports.ExcludedStatuses),
		CacheTTL:           cfg.Reports.CacheTTL,
		Location:           location,
	}, cacheSvc, metrics, logger)

	return &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Redis:   client,
		Metrics: metrics,
		Cache:   cacheSvc,
		Auth: service.NewAuthService(users, hasher, audits, validate, logger, service.AuthConfig{
			AccessTokenSecret:  cfg.JWT.Secret,
			AccessTokenExpiry:  cfg.JWT.Expiration,
			RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
			Issuer:             cfg.JWT.Issuer,
		}),
		Users:     service.NewUserService(users, hasher, audits, validate, logger),
		Directory: service.NewDirectoryService(persons, courses, inspectors, judges, audits, validate, logger),
		Enrollments: service.NewEnrollmentService(enrollments, service.IdentitySources{
			Persons:    persons,
			Courses:    courses,
			Inspectors: inspectors,
			Judges:     judges,
		}, service.EnrollmentConfig{Rules: rules, Location: location}, cacheSvc, metrics, audits, validate, logger),
		Reports: reports,
		Exports: service.NewExportService(reports, files, signer, service.ExportConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
		}, audits, validate, logger),
		Sweep: service.NewSweepService(enrollments, service.SweepConfig{
			Interval:  cfg.Sweep.Interval,
			BatchSize: cfg.Sweep.BatchSize,
			Workers:   cfg.Sweep.Workers,
			Retries:   cfg.Sweep.Retries,
			Rules:     rules,
			Location:  location,
		}, cacheSvc, metrics, audits, logger),
	}, nil
}

// Handlers builds the HTTP handler set.
func (a *App) Handlers() handler.Handlers {
	checks := map[string]handler.ReadinessCheck{
		"database": a.DB.PingContext,
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return handler.Handlers{
		Auth:        handler.NewAuthHandler(a.Auth),
		Users:       handler.NewUserHandler(a.Users),
		Directory:   handler.NewDirectoryHandler(a.Directory),
		Enrollments: handler.NewEnrollmentHandler(a.Enrollments),
		Reports:     handler.NewReportHandler(a.Reports, a.Exports),
		Metrics:     handler.NewMetricsHandler(a.Metrics, checks),
	}
}

// APIPrefix returns the configured prefix without a trailing slash.
func (a *App) APIPrefix() string {
	prefix := strings.TrimRight(a.Config.APIPrefix, "/")
	if prefix == "" {
		return "/api/v1"
	}
	return prefix
}

// Close releases connections.
func (a *App) Close() error {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	return a.DB.Close()
}
