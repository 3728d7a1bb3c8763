package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/auth"
	"github.com/cervixai/screening-engine/pkg/config"
	"github.com/cervixai/screening-engine/pkg/database"
	"github.com/cervixai/screening-engine/pkg/handlers"
	"github.com/cervixai/screening-engine/pkg/logging"
	"github.com/cervixai/screening-engine/pkg/middleware"
	"github.com/cervixai/screening-engine/pkg/repositories"
	"github.com/cervixai/screening-engine/pkg/scorer"
	"github.com/cervixai/screening-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.Database, cfg.Database.SSLMode)

	logger.Info("Connecting to database",
		zap.String("dsn", logging.SanitizeConnectionString(connStr)))

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	_ = sqlDB.Close()

	// Repositories
	patientRepo := repositories.NewPatientRepository(db)
	caseRepo := repositories.NewCaseRepository(db)
	sampleRepo := repositories.NewSampleRepository(db)
	resultRepo := repositories.NewResultRepository(db)
	annotationRepo := repositories.NewAnnotationRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	roleRepo := repositories.NewRoleRepository(db)

	// Role bundles are seeded from configuration so permission changes ship
	// as reviewed config, not ad-hoc SQL.
	roleDefs, err := config.LoadRoles(cfg.RolesPath)
	if err != nil {
		return fmt.Errorf("failed to load roles: %w", err)
	}
	if err := services.SeedRoles(ctx, roleRepo, roleDefs, logger); err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}

	// Services
	auditService := services.NewAuditService(auditRepo, cfg.Audit.DefaultPageSize, cfg.Audit.MaxPageSize, logger)
	permissionService := services.NewPermissionService(roleRepo, logger)
	workflowService := services.NewWorkflowService(caseRepo, sampleRepo, resultRepo, annotationRepo, logger)

	var aiScorer scorer.Scorer
	scorerTimeout := time.Duration(cfg.Scorer.TimeoutSeconds) * time.Second
	if cfg.Scorer.BaseURL != "" {
		aiScorer = scorer.NewClient(cfg.Scorer.BaseURL, scorerTimeout, logger)
	} else {
		logger.Warn("No scorer base URL configured, using built-in mock scorer")
		aiScorer = scorer.NewMock()
	}

	orchestrator := services.NewScreeningOrchestrator(
		db, workflowService, permissionService, auditService,
		aiScorer, scorerTimeout, cfg.Scorer.ConfidenceThreshold,
		patientRepo, caseRepo, sampleRepo, resultRepo, annotationRepo,
		logger,
	)

	retention := services.NewRetentionService(db, auditRepo, cfg.Audit.RetentionDays, logger)
	retention.RunScheduler(ctx, time.Duration(cfg.Audit.SweepIntervalHours)*time.Hour)

	// Authentication
	validator, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSURL:            cfg.Auth.JWKSURL,
		Issuer:             cfg.Auth.Issuer,
	})
	if err != nil {
		return fmt.Errorf("failed to create token validator: %w", err)
	}
	authMiddleware := auth.NewMiddleware(validator, logger)

	// HTTP surface
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewPatientsHandler(orchestrator, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewCasesHandler(orchestrator, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAnnotationsHandler(orchestrator, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAuditHandler(orchestrator, logger).RegisterRoutes(mux, authMiddleware)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting screening-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
