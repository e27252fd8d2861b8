package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jason25840/nrg-server/internal/app"
	"github.com/jason25840/nrg-server/internal/chat"
	"github.com/jason25840/nrg-server/internal/config"
	"github.com/jason25840/nrg-server/internal/email"
	"github.com/jason25840/nrg-server/internal/logging"
	"github.com/jason25840/nrg-server/internal/media"
	"github.com/jason25840/nrg-server/internal/metrics"
	"github.com/jason25840/nrg-server/internal/realtime"
	"github.com/jason25840/nrg-server/internal/search"
	"github.com/jason25840/nrg-server/internal/store"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger depends on config, so this is the one plain exit.
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		os.Stderr.WriteString("logger init failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof)); err != nil {
		logger.Warn("maxprocs", zap.Error(err))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		return err
	}
	dataStore := store.NewPostgresStore(db)

	mux := http.NewServeMux()

	var mediaStore media.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		logger.Info("using MinIO for media", zap.String("endpoint", cfg.MinioEndpoint), zap.String("bucket", cfg.MinioBucket))
		mediaStore, err = media.NewMinioStore(ctx, media.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			return err
		}
	} else {
		logger.Info("using local disk for media", zap.String("dir", cfg.UploadsDir))
		local, err := media.NewLocalStore(cfg.UploadsDir, cfg.PublicBaseURL)
		if err != nil {
			return err
		}
		mux.Handle("/uploads/", local.Handler())
		mediaStore = local
	}

	m := metrics.New()

	hubOpts := []realtime.HubOption{
		realtime.WithObserver(m),
		realtime.WithEventRate(cfg.WSEventsPerSecond, cfg.WSEventBurst),
	}
	var relay *realtime.RedisRelay
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using Redis for realtime fan-out", zap.String("channel", cfg.RedisChannel))
		relay, err = realtime.NewRedisRelay(cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			return err
		}
		defer relay.Close()
		hubOpts = append(hubOpts, realtime.WithRelay(relay))
	}
	hub := realtime.NewHub(logger.Named("realtime"), hubOpts...)

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.Named("search"))
		defer meili.Close()
		index = meili
	}
	searchService := search.NewService(index, search.NewPgFTS(db), logger.Named("search"))

	chatService := chat.NewService(dataStore, mediaStore, chat.NewProfanityScreener(), hub, logger.Named("chat"),
		chat.WithRecorder(m),
		chat.WithMaxMediaBytes(cfg.MediaMaxBytes),
	)
	hub.SetReactionHandler(chatService.React)

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		logger.Warn("SMTP not configured; password reset mail is disabled")
	}

	checks := map[string]func(context.Context) error{}
	if relay != nil {
		checks["redis"] = relay.Ping
	}

	service := app.New(cfg, dataStore, app.Dependencies{
		Chat:   chatService,
		Search: searchService,
		Mailer: mailer,
		Logger: logger.Named("app"),
		Checks: checks,
	})

	httpServer := app.NewHTTPServer(service, cfg.AllowedOrigins(), logger.Named("http"), m)
	mux.Handle("/api/", httpServer.Handler())
	mux.Handle("/ws", realtime.ServeWS(hub, service.IdentifyRequest, cfg.AllowedOrigins()))
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Subscribe(gctx, hub.Deliver); err != nil {
				logger.Error("redis relay stopped; reactions are local only", zap.Error(err))
				hub.DropRelay()
			}
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("NRG API listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
