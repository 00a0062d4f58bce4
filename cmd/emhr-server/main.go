package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/emhr/emhr/internal/config"
	"github.com/emhr/emhr/internal/platform/blobstore"
	"github.com/emhr/emhr/internal/platform/cache"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/internal/platform/metrics"
	"github.com/emhr/emhr/internal/platform/notification"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "emhr-server",
		Short:        "Behavioral health EMHR API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(userCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the EMHR API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.Env}); err != nil {
			logger.Warn().Err(err).Msg("sentry disabled")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if _, err := db.NewMigratorFS(pool, migrationSource("")).Up(ctx, db.SchemaName(cfg.DefaultTenant)); err != nil {
		return fmt.Errorf("migrate default tenant: %w", err)
	}

	deps := &serverDeps{cfg: cfg, logger: logger, pool: pool, metrics: metrics.New()}

	sharedCache := false
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, settings cache is process-local")
		} else {
			defer rdb.Close()
			deps.cache = cache.New(cfg.SettingsCacheTTL, rdb, "emhr:settings:", logger)
			sharedCache = true
		}
	}
	if deps.cache == nil {
		deps.cache = cache.New(cfg.SettingsCacheTTL, nil, "", logger)
	}

	store, err := blobstore.NewFileStore(cfg.DocumentDir)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	deps.store = store

	var sender notification.EmailSender = notification.LogMailer{Logger: logger}
	if cfg.MailAPIURL != "" {
		sender = notification.NewHTTPMailer(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom)
	}
	dispatcher := notification.NewDispatcher(sender, notification.NewTemplateEngine(), deps.metrics, logger, 0)
	deps.notifier = dispatcher

	e, err := newServer(deps)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	dispatcher.Start(gctx)

	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Bool("shared_cache", sharedCache).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := e.Shutdown(shutdownCtx)
		dispatcher.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
