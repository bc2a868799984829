package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AamirKnight/Streamline/internal/application/service"
	"github.com/AamirKnight/Streamline/internal/config"
	"github.com/AamirKnight/Streamline/internal/infrastructure/external/docservice"
	"github.com/AamirKnight/Streamline/internal/infrastructure/persistence/repository"
	"github.com/AamirKnight/Streamline/internal/infrastructure/persistence/sqlite"
	httpiface "github.com/AamirKnight/Streamline/internal/interfaces/http"
	"github.com/AamirKnight/Streamline/internal/notification"
	"github.com/AamirKnight/Streamline/pkg/database"
	"github.com/AamirKnight/Streamline/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting document approval gatekeeper",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := database.Open(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories and transaction manager
	txManager := sqlite.NewDB(db, logger)
	workflowRepo := repository.NewWorkflowRepository(db, logger)
	auditRepo := repository.NewAuditLogRepository(db, logger)

	// Initialize external collaborators
	documents := docservice.NewClient(docservice.Config{
		BaseURL: cfg.DocumentService.BaseURL,
		Timeout: cfg.DocumentService.Timeout,
	}, logger)

	notifier := notification.NewWebhookNotifier(notification.Config{
		Enabled:    cfg.Notifier.Enabled,
		WebhookURL: cfg.Notifier.WebhookURL,
		Timeout:    cfg.Notifier.Timeout,
		MaxRetries: cfg.Notifier.MaxRetries,
	}, logger)

	// Initialize services
	serviceLogger := utils.NewSugarAdapter(logger)
	auditService := service.NewAuditService(auditRepo, serviceLogger)
	workflowService := service.NewWorkflowService(
		workflowRepo,
		auditService,
		txManager,
		documents,
		notifier,
		serviceLogger,
	)

	// Initialize HTTP router
	handlers := httpiface.NewHandlers(workflowService, auditService, serviceLogger)
	router := httpiface.NewRouter(handlers, logger, cfg.Logger.Level == "debug")

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
