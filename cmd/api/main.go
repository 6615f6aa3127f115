package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"estatehub.org/internal/audit"
	"estatehub.org/internal/auth"
	"estatehub.org/internal/config"
	"estatehub.org/internal/decision"
	"estatehub.org/internal/events"
	"estatehub.org/internal/httpapi"
	"estatehub.org/internal/notify"
	"estatehub.org/internal/obs"
	"estatehub.org/internal/provision"
	"estatehub.org/internal/stickercode"
	"estatehub.org/internal/store"
	"estatehub.org/internal/store/memory"
	"estatehub.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := obs.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer obs.SetLogger(logger)()
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
	logger.Info("stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	checks := map[string]func(context.Context) error{}

	var st store.Store
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		st = pgStore
		checks["postgres"] = pgStore.Ping
	} else {
		logger.Warn("HOA_PG_DSN not set; using in-memory store")
		st = memory.New()
	}

	var (
		dispatcher notify.Dispatcher = notify.Disabled{}
		relay      *notify.Relay
	)
	if cfg.RedisURL != "" {
		client, err := notify.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		outbox := notify.NewOutbox(client, cfg.OutboxKey)
		dispatcher = outbox
		relay = notify.NewRelay(outbox, notify.LogSender{})
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	} else {
		logger.Warn("HOA_REDIS_URL not set; temporary credentials will not be delivered")
	}

	tokens, err := auth.NewTokens(cfg.AuthSecret, auth.WithIssuer(cfg.AuthIssuer))
	if err != nil {
		return err
	}
	codes, err := stickercode.NewIssuer(cfg.CodeSecret, time.Now)
	if err != nil {
		return err
	}
	proxies, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	guard := auth.NewGuard(tokens)
	recorder := audit.NewRecorder(st)
	broker := events.NewBroker(32)

	api := httpapi.New(httpapi.Options{
		Version:        version,
		Ready:          httpapi.ReadyProbe{Checks: checks},
		Guard:          guard,
		Decisions:      decision.NewService(guard, st, codes, recorder, decision.WithBroker(broker)),
		Provisioner:    provision.NewService(guard, st, dispatcher, recorder),
		Events:         broker,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: proxies,
		RateBurst:      cfg.RateBurst,
		RatePerSec:     cfg.RatePerSec,
		MaxBody:        cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting estatehub-api", zap.String("version", version), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
