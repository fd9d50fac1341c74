package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"foldershare/internal/auth"
	"foldershare/internal/command"
	"foldershare/internal/config"
	"foldershare/internal/handler"
	"foldershare/internal/lock"
	"foldershare/internal/middleware"
	"foldershare/internal/repository/postgres"
	"foldershare/internal/service"
	"foldershare/internal/storage"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logOutput := io.Writer(os.Stdout)
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, 7)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOutput = io.MultiWriter(os.Stdout, logFile)
	}
	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		log.Fatalf("Failed to load site settings: %v", err)
	}

	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.DatabaseURL, cfg.TablePrefix); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("database ready")

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	itemRepo := postgres.NewItemRepository(repoConfig)
	fileRepo := postgres.NewFileRepository(repoConfig)
	grantRepo := postgres.NewGrantRepository(repoConfig)
	taskRepo := postgres.NewTaskRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	store, err := newStore(ctx, settings.Current())
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}

	locks := lock.NewManager()
	if !settings.Current().ProcessLocks {
		logger.Warn("process locks disabled by site settings")
		locks = lock.NewDisabled()
	}
	accessService := service.NewAccessService(itemRepo, grantRepo, logger)
	itemService := service.NewItemService(
		itemRepo, fileRepo, grantRepo, taskRepo, txManager,
		accessService, locks, store, settings, logger,
	)
	commands := command.NewRegistry()

	worker := service.NewWorker(taskRepo, itemService, settings, logger)
	go worker.Run(ctx)

	shareHandler := handler.NewFolderShareHandler(itemService, accessService, commands, settings, logger)
	settingsHandler := handler.NewSettingsHandler(settings, logger)

	logger.Info("services initialized")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /foldershare", shareHandler.List)
	mux.HandleFunc("POST /foldershare", shareHandler.Create)
	mux.HandleFunc("GET /foldershare/usage", shareHandler.Usage)
	mux.HandleFunc("GET /foldershare/settings", settingsHandler.Get)
	mux.HandleFunc("PATCH /foldershare/settings", settingsHandler.Patch)
	mux.HandleFunc("GET /foldershare/{id}", shareHandler.Get)
	mux.HandleFunc("PATCH /foldershare/{id}", shareHandler.Patch)
	mux.HandleFunc("DELETE /foldershare/{id}", shareHandler.Delete)
	mux.HandleFunc("GET /foldershare/{id}/download", shareHandler.Download)

	// Middleware chain: CORS → Recovery → Auth → Routes.
	var root http.Handler = mux
	root = middleware.Auth(jwtVerifier)(root)
	root = middleware.Recovery(logger)(root)
	root = cors.New(cors.Options{
		AllowedOrigins: strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			handler.HeaderGetOperation, handler.HeaderPostOperation,
			handler.HeaderPatchOperation, handler.HeaderDeleteOperation,
			handler.HeaderSearchScope, handler.HeaderReturnFormat,
			handler.HeaderSourcePath, handler.HeaderDestinationPath,
		},
		AllowCredentials: true,
	}).Handler(root)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     root,
		ReadTimeout: 15 * time.Second,
		// Large downloads and uploads need time; rely on read timeout
		// and idle timeout instead of a write deadline.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

// newStore builds the blob store selected by the site settings.
func newStore(ctx context.Context, settings config.Settings) (storage.Store, error) {
	if settings.FileScheme == "s3" {
		return storage.NewS3Store(ctx, storage.S3Config{
			Region:    settings.S3.Region,
			Bucket:    settings.S3.Bucket,
			Endpoint:  settings.S3.Endpoint,
			AccessKey: settings.S3.AccessKey,
			SecretKey: settings.S3.SecretKey,
		})
	}
	return storage.NewFilesystemStore(settings.FileDirectory)
}
