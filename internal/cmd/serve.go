package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cartolens/cartolens/internal/config"
	"github.com/cartolens/cartolens/internal/core/resolver"
	errwrap "github.com/cartolens/cartolens/internal/errors"
	"github.com/cartolens/cartolens/internal/metrics"
	"github.com/cartolens/cartolens/internal/observability"
	"github.com/cartolens/cartolens/internal/server"
	"github.com/cartolens/cartolens/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures the telemetry system and exporter are up.
func telemetryHealthChecker(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// resolverHealthChecker resolves a known locator with the resolver current() returns
// to prove the API settings are usable.
func resolverHealthChecker(current func() *resolver.Resolver) handlers.CheckerFunc {
	return func(ctx context.Context) error {
		res := current()
		if res == nil {
			return errors.New("resolver not configured")
		}
		if _, err := res.Style("mapbox://styles/mapbox/streets-v12", ""); err != nil && !errors.Is(err, resolver.ErrMissingToken) {
			return err
		}
		return nil
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP resolver service",
	Long: `Start the HTTP server exposing GET /v1/resolve/{kind}.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload

On startup the daily turnstile event is sent for the configured token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		overrides := map[string]any{}
		if flagChanged(cmd, "host") {
			overrides["server.host"] = serverHost
		}
		if flagChanged(cmd, "port") {
			overrides["server.port"] = serverPort
		}

		cfg, err := loadConfig(ctx, overrides)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "config load failed")
		}

		observability.InitServerLogger(config.AppName, cfg.Logging.Level, cfg.Logging.Profile)
		logger := observability.ServerLogger

		hm := handlers.NewHealthManager(versionInfo.Version)

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
			metrics.SetServerStartTime(time.Now().Unix())
			hm.RegisterChecker("telemetry", handlers.CheckerFunc(telemetryHealthChecker))
		}

		db, err := openStore(ctx, cfg)
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "store initialization failed")
		}
		hm.RegisterChecker("store", db)

		res, err := resolver.NewFromConfig(cfg)
		if err != nil {
			_ = db.Close()
			return errwrap.WrapConfigInvalid(ctx, err, "resolver initialization failed")
		}

		logger.Info("Initializing server",
			zap.String("service", config.AppName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
			zap.Int("metrics_port", observability.GetMetricsPort()),
			zap.String("api_url", cfg.API.BaseURL))

		opts := server.OptionsFromConfig(cfg.Server)
		opts.Resolver = res
		opts.Health = hm
		opts.DisableHealth = !cfg.Health.Enabled
		srv := server.New(opts)
		hm.RegisterChecker("resolver", resolverHealthChecker(srv.Resolver))

		logOutcome(newReporter(cfg, db.Settings()).Report(ctx))

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: the server stops first, the logger flushes last.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			if err := db.Close(); err != nil {
				logger.Warn("Store close failed", zap.Error(err))
			}
			if err := observability.StopMetrics(); err != nil {
				logger.Warn("Metrics exporter stop failed", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: attempting config reload")

			reloaded, err := loadConfig(ctx, overrides)
			if err != nil {
				logger.Error("Failed to reload config", zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			next, err := resolver.NewFromConfig(reloaded)
			if err != nil {
				logger.Error("Failed to rebuild resolver", zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "resolver reload failed")
			}
			srv.SetResolver(next)

			logger.Info("Configuration reloaded; resolver swapped, restart to apply listener changes",
				zap.String("api_url", reloaded.API.BaseURL),
				zap.String("log_level", reloaded.Logging.Level))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(ctx, err, fmt.Sprintf("server error on %s", srv.Addr()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port (overrides server.port)")
}
