package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/auth"
	"github.com/kaenova/prompty/internal/authz"
	"github.com/kaenova/prompty/internal/config"
	"github.com/kaenova/prompty/internal/database"
	"github.com/kaenova/prompty/internal/events"
	"github.com/kaenova/prompty/internal/server"
	"github.com/kaenova/prompty/internal/services"
	"github.com/kaenova/prompty/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	configFile string
	portFlag   int
)

var rootCmd = &cobra.Command{
	Use:          "prompty",
	Short:        "Prompty prompt management server",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json, toml or .env)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Server port (overrides config)")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate()
		},
	}

	rootCmd.AddCommand(serveCmd, migrateCmd, adminCmd())
}

// app is everything a command needs once configuration is loaded.
type app struct {
	cfg      *config.App
	log      *slog.Logger
	services *services.Services
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("failed to close resource", "error", err)
		}
	}
}

func loadConfig() (*config.App, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, logger.Get(), nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	s, closeStore, err := database.OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.closers = append(a.closers, closeStore)

	engine, err := authz.NewEngine(s, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build authorizer: %w", err)
	}

	var pub events.Publisher = events.Noop{}
	if cfg.NATS.URL != "" {
		natsPub, err := events.NewNATSPublisher(events.NATSConfig{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject})
		if err != nil {
			a.Close()
			return nil, err
		}
		pub = natsPub
		log.Info("publishing events to NATS", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
	}
	a.closers = append(a.closers, pub.Close)

	a.services = services.New(services.Deps{
		Store:  s,
		Authz:  engine,
		Events: events.NewEmitter(pub, log),
		Log:    log,
	}, cfg.Invite.TTL)
	return a, nil
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	port := a.cfg.Port
	if portFlag != 0 {
		port = portFlag
	}

	router := server.NewRouter(a.services, auth.NewIssuer(a.cfg.JWT.Secret, a.cfg.JWT.TTL), server.Options{
		CORSOrigin:         a.cfg.CORS.Origin,
		RateLimitPerMinute: a.cfg.RateLimit.PerMinute,
		RateLimitBurst:     a.cfg.RateLimit.Burst,
		Logger:             a.log,
	})
	a.log.Info("store ready", "driver", a.cfg.Store.Driver)
	return server.Run(ctx, fmt.Sprintf(":%d", port), router, a.log)
}

func runMigrate() error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	switch strings.ToLower(cfg.Store.Driver) {
	case "postgres":
		if err := database.MigratePostgres(cfg.Database); err != nil {
			return err
		}
	case "sqlite":
		db, err := database.OpenSQLite(cfg.Store.DSN)
		if err != nil {
			return err
		}
		db.Close()
	default:
		log.Info("store driver has no schema", "driver", cfg.Store.Driver)
		return nil
	}
	log.Info("migrations applied", "driver", cfg.Store.Driver)
	return nil
}
