package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/biofugitive/fieldcache/internal/activity"
	"github.com/biofugitive/fieldcache/internal/api"
	"github.com/biofugitive/fieldcache/internal/platform/config"
	"github.com/biofugitive/fieldcache/internal/platform/logger"
	"github.com/biofugitive/fieldcache/internal/platform/metrics"
	"github.com/biofugitive/fieldcache/internal/recent"
	"github.com/biofugitive/fieldcache/internal/server"
	"github.com/biofugitive/fieldcache/internal/session"
	"github.com/biofugitive/fieldcache/internal/vault"
	"github.com/biofugitive/fieldcache/pkg/sdk"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		os.Stderr.WriteString("fieldcached: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		os.Stderr.WriteString("fieldcached: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("daemon stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting fieldcache daemon", zap.String("data_dir", cfg.DataDir))

	backend, err := sdk.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("finalizing disk writes")
		if err := backend.Close(); err != nil {
			log.Error("backend close failed", zap.Error(err))
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)
	caches := api.Caches{
		Session: session.New(backend.Store, session.Options{
			Duration: cfg.SessionDuration,
			Logger:   log.Named("session"),
			Metrics:  m,
		}),
		Activities: activity.New(backend.Store, activity.Options{Logger: log.Named("activity"), Metrics: m}),
		Recent:     recent.New(backend.Store, recent.Options{Logger: log.Named("recent"), Metrics: m}),
	}
	state := caches.Session.Initialize(ctx)
	caches.Activities.Initialize(ctx)
	caches.Recent.Initialize(ctx)
	log.Info("caches loaded", zap.Stringer("session", state), zap.Int("activities", len(caches.Activities.List())))

	if !cfg.LogDev {
		gin.SetMode(gin.ReleaseMode)
	}
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.RouterOptions{
			Caches:   caches,
			Gatherer: prometheus.DefaultGatherer,
			Logger:   log.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http api listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Only an embedded engine is served over TCP; redis and remote
	// backends already have their own server.
	var router *server.Router
	if backend.Embedded != nil {
		router = server.NewRouter(backend.Embedded, log.Named("tcp"))
		if !cfg.DisableTLS {
			cert, err := vault.GenerateSelfSignedCert()
			if err != nil {
				return err
			}
			router.SetCertificate(cert)
			log.Info("tls encryption enabled")
		} else {
			log.Warn("tls encryption disabled", zap.String("env", "FIELDCACHE_DISABLE_TLS"))
		}

		g.Go(func() error {
			log.Info("store engine listening", zap.String("port", cfg.TCPPort))
			if err := router.Listen(cfg.TCPPort); err != nil && !errors.Is(err, server.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		if router != nil {
			err = errors.Join(err, router.Stop())
		}
		return err
	})

	return g.Wait()
}
