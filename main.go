package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/auth"
	"github.com/reachcrm-inc/statecore-engine/pkg/config"
	"github.com/reachcrm-inc/statecore-engine/pkg/database"
	"github.com/reachcrm-inc/statecore-engine/pkg/handlers"
	"github.com/reachcrm-inc/statecore-engine/pkg/middleware"
	"github.com/reachcrm-inc/statecore-engine/pkg/repositories"
	"github.com/reachcrm-inc/statecore-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Database),
		zap.String("record_table", cfg.Reconciler.RecordTable),
		zap.String("state_field", cfg.Reconciler.StateField))

	ctx := context.Background()

	// Migrations run over database/sql; the pool below is pgx-native.
	migrationDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, "migrations", logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := migrationDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Authentication
	validator, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSURL:            cfg.Auth.JWKSURL,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	sessionStore := auth.NewSessionStore(cfg.Auth.SessionSecret)
	authMiddleware := auth.NewMiddleware(validator, sessionStore, logger)

	// Repositories
	recordRepo := repositories.NewRecordRepository()
	auditRepo := repositories.NewAuditRepository()
	roleRepo := repositories.NewUserRoleRepository()

	// Services
	sessionManager := services.NewSessionManager(logger)
	catalogueService := services.NewCatalogueService(db, logger)
	mappingService := services.NewMappingService(cfg.Reconciler, logger)
	permissionService := services.NewPermissionService(db, roleRepo, auditRepo, logger)
	commitService := services.NewCommitService(db, recordRepo, auditRepo, permissionService, cfg.Reconciler.RemoteTimeout, logger)
	auditService := services.NewAuditService(db, auditRepo, logger)
	reconcileService := services.NewReconciliationService(
		cfg.Reconciler, db, sessionManager, catalogueService,
		mappingService, commitService, recordRepo, logger)

	// Handlers
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewReconciliationHandler(reconcileService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAuditHandler(auditService, logger).RegisterRoutes(mux, authMiddleware)

	handler := middleware.RequestLogger(logger)(mux)

	addr := net.JoinHostPort(cfg.BindAddr, cfg.Port)
	logger.Info("Starting statecore-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
