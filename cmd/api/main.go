package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ideaforge/api/internal/app"
	"ideaforge/api/internal/authpw"
	"ideaforge/api/internal/config"
	"ideaforge/api/internal/export"
	"ideaforge/api/internal/history"
	"ideaforge/api/internal/ideastore"
	"ideaforge/api/internal/lifecycle"
	"ideaforge/api/internal/logging"
	"ideaforge/api/internal/metrics"
	"ideaforge/api/internal/search"
	"ideaforge/api/internal/session"
	"ideaforge/api/internal/store"
	"ideaforge/api/internal/synth"
	"ideaforge/api/internal/workspace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ideaforge api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	development := cfg.Environment == "development"

	log, err := logging.New(cfg.LogLevel, development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	if !development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.OpenOptions{})
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	pgStore := store.NewPostgresStore(db)
	ideas := ideastore.New(pgStore)
	collector := metrics.New()

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, log)
	if meiliClient != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	historyService := history.New(cfg.HistoryDir)

	synthesizer, err := synth.New(ctx, synth.Options{
		Backend:     cfg.SynthBackend,
		GenAIAPIKey: cfg.GenAIAPIKey,
		GenAIModel:  cfg.GenAIModel,
		Model:       synth.ModelOptions{Timeout: cfg.SynthTimeout},
	}, log)
	if err != nil {
		return fmt.Errorf("init synthesizer: %w", err)
	}
	log.Info("synthesizer ready", zap.String("backend", synthesizer.Name()))

	coordinator := lifecycle.NewCoordinator(synthesizer, ideas,
		lifecycle.Options{MaxCount: cfg.GenerateMaxCount}, log,
		historyService, searchService, collector,
	)

	archiver, err := export.NewMinioArchiver(ctx, export.ArchiveConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, log)
	if err != nil {
		// Export still works without the archive copy.
		log.Warn("export archive disabled", zap.Error(err))
		archiver = nil
	}

	deps := app.Deps{
		Users:     pgStore,
		Passwords: authpw.NewService(pgStore),
		Ideas:     coordinator,
		Search:    searchService,
		History:   historyService,
		Export:    export.NewService(ideas, archiver, log),
		Log:       log,
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := session.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer client.Close()
		deps.Sessions = session.NewRedisStoreWithClient(client)
		deps.Workspaces = workspace.NewRedisStore(client, cfg.WorkspaceTTL)
		log.Info("using redis for sessions and workspaces")
	} else {
		deps.Sessions = pgStore
		log.Info("using postgres for sessions; workspaces disabled")
	}

	service := app.New(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log, collector)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// PDF export drives a headless browser.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("ideaforge api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	log.Info("ideaforge api stopped")
	return nil
}
