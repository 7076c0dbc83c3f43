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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/GitDonce/TwoGuys/auth"
	"github.com/GitDonce/TwoGuys/config"
	"github.com/GitDonce/TwoGuys/database"
	"github.com/GitDonce/TwoGuys/database/jsonstore"
	"github.com/GitDonce/TwoGuys/database/sqlstore"
	"github.com/GitDonce/TwoGuys/handlers"
)

const shutdownTimeout = 10 * time.Second

// cli holds the state shared by every subcommand once flags and environment
// have been resolved.
type cli struct {
	cfg    config.Config
	logger *zap.Logger

	port     int
	dataDir  string
	storage  string
	logLevel string
	dev      bool
}

func main() {
	c := &cli{}
	root := c.rootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "twoguys",
		Short:         "Two Guys city guide backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := c.applyFlags(cmd, &cfg); err != nil {
				return err
			}
			c.cfg = cfg
			c.logger, err = newLogger(cfg.LogLevel, c.dev)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.IntVar(&c.port, "port", 0, "HTTP port (overrides PORT)")
	flags.StringVar(&c.dataDir, "data-dir", "", "directory for JSON data files (overrides DATA_DIR)")
	flags.StringVar(&c.storage, "storage", "", "storage driver: json, sqlite or postgres (overrides STORAGE_DRIVER)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flags.BoolVar(&c.dev, "dev", false, "human-friendly development logging")

	root.AddCommand(c.serveCommand(), c.seedCommand())
	return root
}

func (c *cli) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context())
		},
	}
}

func (c *cli) seedCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the seed items and cities into the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSeed(cmd.Context(), force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace existing items and cities")
	return cmd
}

// applyFlags copies explicitly set flags over the environment values.
func (c *cli) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = c.port
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = c.dataDir
		// Re-derive the sqlite path unless it was configured explicitly.
		if os.Getenv("SQLITE_PATH") == "" {
			cfg.SQLitePath = ""
		}
	}
	if flags.Changed("storage") {
		cfg.StorageDriver = c.storage
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	cfg.Normalize()
	return cfg.Validate()
}

func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	if dev {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// openBackend opens the backend selected by cfg.StorageDriver. Only the JSON
// backend writes seed data here, into files that do not exist yet.
func openBackend(ctx context.Context, cfg config.Config, seed database.SeedData, logger *zap.Logger) (database.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverJSON:
		return jsonstore.Open(cfg.DataDir, seed, logger)
	case config.DriverSQLite:
		return sqlstore.OpenSQLite(ctx, cfg.SQLitePath, logger)
	case config.DriverPostgres:
		p := cfg.Postgres
		dsn := sqlstore.PostgresDSN(p.Host, p.Port, p.User, p.Password, p.Name, p.SSLMode)
		return sqlstore.OpenPostgres(ctx, dsn, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// openStore opens the configured backend and applies the one-time seed.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (database.Store, error) {
	seed, err := database.LoadSeed(cfg.SeedFile)
	if err != nil {
		return nil, err
	}
	store, err := openBackend(ctx, cfg, seed, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Seed(ctx, seed, false); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seed %s store: %w", cfg.StorageDriver, err)
	}
	return store, nil
}

func (c *cli) runSeed(ctx context.Context, force bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	seed, err := database.LoadSeed(c.cfg.SeedFile)
	if err != nil {
		return err
	}
	store, err := openBackend(ctx, c.cfg, seed, c.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Seed(ctx, seed, force); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	c.logger.Info("seed complete",
		zap.String("storage", c.cfg.StorageDriver),
		zap.Bool("force", force),
		zap.Int("items", len(seed.Items)),
		zap.Int("cities", len(seed.Cities)),
	)
	return nil
}

func (c *cli) runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger := c.cfg, c.logger
	if cfg.UsesDefaultSecret() {
		if cfg.IsProduction() {
			logger.Warn("JWT_SECRET is not set; tokens are signed with the development secret in production")
		} else {
			logger.Warn("JWT_SECRET is not set; using the development secret")
		}
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close store", zap.Error(err))
		}
	}()

	h := handlers.NewHandlers(store, auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), logger)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.NewRouter(h, cfg.FrontendURLs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("storage", cfg.StorageDriver),
			zap.String("env", cfg.Environment),
			zap.Strings("origins", cfg.FrontendURLs),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
