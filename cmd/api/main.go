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

	"go.uber.org/zap"

	"memoboard/api/internal/app"
	"memoboard/api/internal/auth"
	"memoboard/api/internal/canvas"
	"memoboard/api/internal/config"
	"memoboard/api/internal/metrics"
	"memoboard/api/internal/search"
	"memoboard/api/internal/store"
	"memoboard/api/internal/upload"
)

// snapshotStore is what every persistence backend provides.
type snapshotStore interface {
	canvas.Gateway
	Ping(ctx context.Context) error
}

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("memoboard api stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	gateway, closeGateway, err := openGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeGateway()

	loadCtx, cancelLoad := context.WithTimeout(ctx, 30*time.Second)
	state, err := canvas.LoadState(loadCtx, gateway, time.Now(), logger)
	cancelLoad()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	authority := auth.NewAuthority(cfg.AdminToken)
	if !authority.Enabled() {
		logger.Warn("ADMIN_TOKEN is empty, administrator actions are disabled")
	}

	var hub *canvas.Hub
	local := search.NewLocal(func(ctx context.Context) ([]canvas.Memo, error) {
		var memos []canvas.Memo
		err := hub.Query(ctx, func(state *canvas.State, _ *canvas.SessionRegistry) {
			memos = state.Memos.All()
		})
		return memos, err
	})
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.Named("search"))
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, local, logger.Named("search"))
	searchService.ReindexAll(state.Memos.All())

	collector := metrics.NewCollector("memoboard")
	router := canvas.NewRouter(state,
		canvas.WithAdmission(authority),
		canvas.WithGateway(gateway),
		canvas.WithIndexer(searchService),
		canvas.WithMetrics(collector),
		canvas.WithLogger(logger.Named("router")),
		canvas.WithDebounceWindow(cfg.ReactionWindow),
	)
	hub = canvas.NewHub(router, logger.Named("hub"))

	blobs, uploadDir, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	uploads := upload.NewService(blobs, cfg.UploadMaxBytes, logger.Named("upload"))

	service := app.NewService(hub, gateway, searchService, uploads, logger)
	httpServer := app.NewHTTPServer(service, app.ServerOptions{
		CORSOrigins: cfg.CORSOrigins,
		UploadDir:   uploadDir,
		Metrics:     collector,
		Logger:      logger.Named("http"),
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("memoboard api listening",
			zap.String("addr", cfg.Addr),
			zap.String("persistence", cfg.PersistenceBackend),
			zap.String("uploads", cfg.UploadBackend),
			zap.String("search", searchService.Backend()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		stopHub()
		<-hubDone
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	stopHub()
	<-hubDone
	return nil
}

func openGateway(ctx context.Context, cfg config.Config, logger *zap.Logger) (snapshotStore, func(), error) {
	switch cfg.PersistenceBackend {
	case "redis":
		logger.Info("using redis for snapshots", zap.String("prefix", cfg.RedisKeyPrefix))
		redisStore, err := store.NewRedisStore(cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return redisStore, func() { redisStore.Close() }, nil
	case "postgres":
		logger.Info("using postgres for snapshots")
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir)); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrations failed: %w", err)
		}
		return store.NewPostgresStore(db), func() { db.Close() }, nil
	case "file", "":
		logger.Info("using files for snapshots", zap.String("dir", cfg.DataDir))
		fileStore, err := store.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return fileStore, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown PERSISTENCE_BACKEND %q", cfg.PersistenceBackend)
	}
}

// openBlobStore returns the upload store and, for the disk backend, the
// directory to serve under /uploads/.
func openBlobStore(ctx context.Context, cfg config.Config) (upload.Store, string, error) {
	switch cfg.UploadBackend {
	case "minio":
		minioStore, err := upload.NewMinioStore(ctx, upload.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			return nil, "", fmt.Errorf("minio setup failed: %w", err)
		}
		return minioStore, "", nil
	case "disk", "":
		diskStore, err := upload.NewDiskStore(cfg.UploadDir, "/uploads")
		if err != nil {
			return nil, "", err
		}
		return diskStore, diskStore.Dir(), nil
	default:
		return nil, "", fmt.Errorf("unknown UPLOAD_BACKEND %q", cfg.UploadBackend)
	}
}
