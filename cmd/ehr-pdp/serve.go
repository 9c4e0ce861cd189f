package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/internal/api/rest"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/attributes"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/audit"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/config"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/db"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/emergency"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/engine"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/metrics"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/policy"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the decision point REST server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger, err := initLogger(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer logger.Sync()

		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("Starting decision point",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port),
		zap.String("token_store", cfg.Token.Store),
		zap.String("audit_type", cfg.Audit.Type),
	)

	var m metrics.Metrics = metrics.NewNoOpMetrics()
	if cfg.Metrics.Enabled {
		m = metrics.NewPrometheusMetrics(cfg.Metrics.Namespace)
	}

	var conn *sql.DB
	if cfg.NeedsDatabase() {
		var err error
		conn, err = db.Open(cfg.Database.DSN, cfg.Database.Pool)
		if err != nil {
			return err
		}
		defer conn.Close()
	}

	sink, err := audit.NewSink(cfg.Audit, conn, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create audit sink: %w", err)
	}

	store, closeStore, err := newTokenStore(ctx, cfg, conn)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, err := emergency.NewManager(store, sink, emergency.Config{Validity: cfg.Token.Validity},
		emergency.WithLogger(logger),
		emergency.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("failed to create token manager: %w", err)
	}

	roles, err := policy.NewRoleTable(cfg.Policy.RoleMinimums())
	if err != nil {
		return fmt.Errorf("invalid role table: %w", err)
	}
	if cfg.Policy.RoleTableFile != "" {
		watcher, err := watchRoleTable(ctx, cfg.Policy.RoleTableFile, roles, logger)
		if err != nil {
			return err
		}
		defer watcher.Stop()
	}

	conditions, err := policy.CompileConditions(cfg.Policy.Conditions)
	if err != nil {
		return fmt.Errorf("failed to compile policy conditions: %w", err)
	}

	eng, err := engine.New(cfg.Engine,
		attributes.NewResolver(cfg.Shifts),
		policy.NewEvaluator(roles, conditions...),
		tokens,
		sink,
		engine.WithLogger(logger),
		engine.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	logger.Info("Decision engine initialized",
		zap.Int("workers", cfg.Engine.ParallelWorkers),
		zap.Duration("token_validity", tokens.Validity()),
		zap.Int("conditions", len(conditions)),
	)

	directory, repository, err := loadData(cfg.Server.DataFile, logger)
	if err != nil {
		return err
	}

	proxies, err := rest.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}
	authenticator, err := rest.NewAuthenticator(cfg.Server.JWTSecret, cfg.Server.JWTIssuer, directory, logger,
		rest.WithTrustedProxies(proxies),
	)
	if err != nil {
		return err
	}

	var serverOpts []rest.Option
	if cfg.RateLimit.Enabled {
		limiter, closeLimiter, err := newRateLimiter(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeLimiter()
		serverOpts = append(serverOpts, rest.WithRateLimiter(limiter))
	}

	srv, err := rest.New(rest.Config{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		MetricsPath:  cfg.Metrics.Path,
		Version:      Version,
	}, eng, repository, authenticator, m, logger, serverOpts...)
	if err != nil {
		return fmt.Errorf("failed to create REST server: %w", err)
	}

	errChan := make(chan error, 1)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
			return err
		}
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to stop REST server", zap.Error(err))
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to stop engine", zap.Error(err))
	}

	logger.Info("Server stopped successfully")
	return nil
}

// newTokenStore builds the configured emergency token store
func newTokenStore(ctx context.Context, cfg *config.Config, conn *sql.DB) (emergency.Store, func(), error) {
	switch cfg.Token.Store {
	case config.StoreRedis:
		client, err := emergency.NewRedisClient(ctx, cfg.Token.Redis)
		if err != nil {
			return nil, nil, err
		}
		store := emergency.NewRedisStore(client, cfg.Token.Redis.KeyPrefix, cfg.Token.Redis.MaxRetries)
		return store, func() { client.Close() }, nil
	case config.StorePostgres:
		return emergency.NewPostgresStore(conn), func() {}, nil
	default:
		return emergency.NewMemoryStore(), func() {}, nil
	}
}

// newRateLimiter builds the configured limiter. The Redis backend reuses the
// token store's connection settings.
func newRateLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func(), error) {
	if cfg.RateLimit.Backend != ratelimit.BackendRedis {
		return ratelimit.NewMemoryLimiter(cfg.RateLimit), func() {}, nil
	}
	client, err := emergency.NewRedisClient(ctx, cfg.Token.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}
	return ratelimit.NewRedisLimiter(client, cfg.RateLimit), func() { client.Close() }, nil
}

// watchRoleTable loads the role table file and reloads it on change
func watchRoleTable(ctx context.Context, path string, roles *policy.RoleTable, logger *zap.Logger) (*policy.RoleTableWatcher, error) {
	minimums, err := policy.LoadRoleTableFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load role table: %w", err)
	}
	if err := roles.Replace(minimums); err != nil {
		return nil, fmt.Errorf("invalid role table %s: %w", path, err)
	}

	watcher, err := policy.NewRoleTableWatcher(path, roles, logger)
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(ctx); err != nil {
		return nil, fmt.Errorf("failed to watch role table: %w", err)
	}
	logger.Info("Watching role table", zap.String("path", path))
	return watcher, nil
}

// loadData seeds the principal directory and resource repository
func loadData(path string, logger *zap.Logger) (*rest.MemoryDirectory, *rest.MemoryRepository, error) {
	if path == "" {
		logger.Warn("No data file configured; directory and repository are empty")
		return rest.NewMemoryDirectory(), rest.NewMemoryRepository(), nil
	}
	directory, repository, err := rest.LoadSeedFile(path)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Loaded data file", zap.String("path", path))
	return directory, repository, nil
}
